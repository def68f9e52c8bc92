package gameserver

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls the combat service over a gRPC connection.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Call invokes method with req and returns the decoded reply.
//
// Precondition: req must hold only values structpb.NewStruct accepts.
func (c *Client) Call(ctx context.Context, method string, req map[string]any, opts ...grpc.CallOption) (map[string]any, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", method, err)
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

// Join adds the combatant described by spec.
func (c *Client) Join(ctx context.Context, spec map[string]any) (map[string]any, error) {
	return c.Call(ctx, "Join", map[string]any{"combatant": spec})
}

// Engage starts an engagement between attacker and defender.
func (c *Client) Engage(ctx context.Context, attacker, defender string) (map[string]any, error) {
	return c.Call(ctx, "StartEngagement", map[string]any{"attacker": attacker, "defender": defender})
}

// Attack makes one attack in mode.
func (c *Client) Attack(ctx context.Context, attacker, defender, mode string) (map[string]any, error) {
	return c.Call(ctx, "RequestAttack", map[string]any{"attacker": attacker, "defender": defender, "mode": mode})
}

// View returns the snapshot of id.
func (c *Client) View(ctx context.Context, id string) (map[string]any, error) {
	return c.Call(ctx, "View", map[string]any{"id": id})
}

// Drain returns the messages queued for id.
func (c *Client) Drain(ctx context.Context, id string) ([]string, error) {
	out, err := c.Call(ctx, "Drain", map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	raw, _ := out["messages"].([]any)
	msgs := make([]string, 0, len(raw))
	for _, m := range raw {
		if s, ok := m.(string); ok {
			msgs = append(msgs, s)
		}
	}
	return msgs, nil
}
