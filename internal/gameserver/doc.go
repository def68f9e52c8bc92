// Package gameserver exposes the combat engine over gRPC and supplies the
// engine's room, narration and saving-throw collaborators.
package gameserver
