package gameserver

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/skirmish/internal/game/combat"
	"github.com/cory-johannsen/skirmish/internal/game/loot"
	"github.com/cory-johannsen/skirmish/internal/storage"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "skirmish.combat.v1.CombatService"

// DefaultKillLimit bounds RecentKills when the request gives no limit.
const DefaultKillLimit = 20

// CombatServiceServer is the server API for the combat service. Every method
// takes and returns a google.protobuf.Struct.
type CombatServiceServer interface {
	Join(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Leave(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StartEngagement(context.Context, *structpb.Struct) (*structpb.Struct, error)
	EndEngagement(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RequestAttack(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ApplyRawDamage(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Maneuver(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Flee(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListAttacks(context.Context, *structpb.Struct) (*structpb.Struct, error)
	View(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Drain(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RecentKills(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Corpses(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(CombatServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func method(name string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(CombatServiceServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*structpb.Struct))
			})
		},
	}
}

// CombatServiceDesc describes the combat service for grpc.Server.RegisterService.
var CombatServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CombatServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		method("Join", CombatServiceServer.Join),
		method("Leave", CombatServiceServer.Leave),
		method("StartEngagement", CombatServiceServer.StartEngagement),
		method("EndEngagement", CombatServiceServer.EndEngagement),
		method("RequestAttack", CombatServiceServer.RequestAttack),
		method("ApplyRawDamage", CombatServiceServer.ApplyRawDamage),
		method("Maneuver", CombatServiceServer.Maneuver),
		method("Flee", CombatServiceServer.Flee),
		method("ListAttacks", CombatServiceServer.ListAttacks),
		method("View", CombatServiceServer.View),
		method("Drain", CombatServiceServer.Drain),
		method("RecentKills", CombatServiceServer.RecentKills),
		method("Corpses", CombatServiceServer.Corpses),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "skirmish/combat/v1/combat.proto",
}

// RegisterCombatServiceServer registers srv on s.
func RegisterCombatServiceServer(s grpc.ServiceRegistrar, srv CombatServiceServer) {
	s.RegisterService(&CombatServiceDesc, srv)
}

// CorpseLister lists the corpses left in a room.
type CorpseLister interface {
	Corpses(room string) []loot.Corpse
}

// CombatService implements CombatServiceServer over a combat.Engine.
type CombatService struct {
	engine  *combat.Engine
	spawner Spawner
	outbox  *Outbox
	store   storage.Store
	corpses CorpseLister
	logger  *zap.Logger
}

// NewCombatService creates a CombatService.
//
// Precondition: engine, outbox and logger must be non-nil.
// Postcondition: a nil store reads as storage.Nop; a nil corpses makes
// Corpses return Unimplemented.
func NewCombatService(engine *combat.Engine, spawner Spawner, outbox *Outbox, store storage.Store, corpses CorpseLister, logger *zap.Logger) *CombatService {
	if store == nil {
		store = storage.Nop{}
	}
	return &CombatService{
		engine:  engine,
		spawner: spawner,
		outbox:  outbox,
		store:   store,
		corpses: corpses,
		logger:  logger,
	}
}

// rpcError maps domain errors onto gRPC status codes.
func rpcError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, combat.ErrCombatantNotFound), errors.Is(err, storage.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, combat.ErrAlreadyJoined):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, ErrInvalidSpec):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, combat.ErrAlreadyEngaged),
		errors.Is(err, combat.ErrNotCoLocated),
		errors.Is(err, combat.ErrCannotEngage):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func reply(m map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding reply: %v", err)
	}
	return out, nil
}

func required(in *structpb.Struct, names ...string) error {
	for _, name := range names {
		if stringField(in, name) == "" {
			return status.Errorf(codes.InvalidArgument, "%s is required", name)
		}
	}
	return nil
}

// Join adds {"combatant": {...}} to the roster and returns its view.
func (s *CombatService) Join(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	spec, err := decodeSpec(in.GetFields()["combatant"].GetStructValue())
	if err != nil {
		return nil, rpcError(err)
	}
	c, err := s.spawner.Build(spec)
	if err != nil {
		return nil, rpcError(err)
	}
	if err := s.engine.Join(c); err != nil {
		return nil, rpcError(err)
	}
	if err := s.store.PersistCombatant(ctx, c); err != nil {
		s.logger.Warn("persisting joined combatant", zap.String("combatant", c.ID), zap.Error(err))
	}
	s.logger.Info("combatant joined",
		zap.String("combatant", c.ID),
		zap.Stringer("kind", c.Kind),
		zap.String("room", c.Room),
	)
	v, err := s.engine.View(c.ID)
	if err != nil {
		return nil, rpcError(err)
	}
	return reply(viewMap(v))
}

// Leave removes {"id"} from the roster and discards its undelivered messages.
func (s *CombatService) Leave(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := required(in, "id"); err != nil {
		return nil, err
	}
	id := stringField(in, "id")
	if err := s.engine.Leave(ctx, id); err != nil {
		return nil, rpcError(err)
	}
	s.outbox.Forget(id)
	return reply(map[string]any{})
}

// StartEngagement engages {"attacker"} with {"defender"} and returns the
// resulting initiative order.
func (s *CombatService) StartEngagement(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := required(in, "attacker", "defender"); err != nil {
		return nil, err
	}
	if err := s.engine.StartEngagement(ctx, stringField(in, "attacker"), stringField(in, "defender")); err != nil {
		return nil, rpcError(err)
	}
	return reply(stringList("order", s.engine.Order()))
}

// EndEngagement disengages {"id"}. Unknown or idle combatants are a no-op.
func (s *CombatService) EndEngagement(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := required(in, "id"); err != nil {
		return nil, err
	}
	s.engine.EndEngagement(ctx, stringField(in, "id"))
	return reply(map[string]any{})
}

// RequestAttack makes one attack: {"attacker", "defender", "mode", "penalty"}.
// Mode defaults to primary.
func (s *CombatService) RequestAttack(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := required(in, "attacker", "defender"); err != nil {
		return nil, err
	}
	mode := combat.ModePrimary
	if name := stringField(in, "mode"); name != "" {
		var ok bool
		if mode, ok = combat.ParseMode(name); !ok {
			return nil, status.Errorf(codes.InvalidArgument, "unknown attack mode %q", name)
		}
	}
	rep := s.engine.RequestAttack(ctx, stringField(in, "attacker"), stringField(in, "defender"), mode, intField(in, "penalty"))
	return reply(attackReportMap(rep))
}

// ApplyRawDamage injects {"amount"} of {"damage_type"} into {"target"} from
// an optional {"source"} with {"origin"} defaulting to spell.
func (s *CombatService) ApplyRawDamage(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := required(in, "target", "damage_type"); err != nil {
		return nil, err
	}
	amount := intField(in, "amount")
	if amount < 0 {
		return nil, status.Errorf(codes.InvalidArgument, "amount must be >= 0, got %d", amount)
	}
	origin := combat.OriginSpell
	if name := stringField(in, "origin"); name != "" {
		var ok bool
		if origin, ok = combat.ParseOrigin(name); !ok {
			return nil, status.Errorf(codes.InvalidArgument, "unknown damage origin %q", name)
		}
	}
	rep := s.engine.ApplyRawDamage(ctx, stringField(in, "source"), stringField(in, "target"), amount, stringField(in, "damage_type"), origin)
	return reply(damageReportMap(rep))
}

// Maneuver attempts {"kind"} by {"initiator"} against {"target"} with an
// optional {"extra"} bonus.
func (s *CombatService) Maneuver(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := required(in, "initiator", "target", "kind"); err != nil {
		return nil, err
	}
	kind, ok := combat.ParseManeuver(stringField(in, "kind"))
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "unknown maneuver %q", stringField(in, "kind"))
	}
	rep := s.engine.Maneuver(ctx, stringField(in, "initiator"), stringField(in, "target"), kind, intField(in, "extra"))
	return reply(maneuverReportMap(rep))
}

// Flee moves {"id"} out of its room by {"direction"}, or any exit when empty.
func (s *CombatService) Flee(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := required(in, "id"); err != nil {
		return nil, err
	}
	res, err := s.engine.Flee(ctx, stringField(in, "id"), stringField(in, "direction"))
	if err != nil {
		return nil, rpcError(err)
	}
	return reply(fleeResultMap(res))
}

// ListAttacks returns {"id"}'s round plan.
func (s *CombatService) ListAttacks(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := required(in, "id"); err != nil {
		return nil, err
	}
	lines, err := s.engine.ListAttacks(stringField(in, "id"))
	if err != nil {
		return nil, rpcError(err)
	}
	return reply(attackLinesMap(lines))
}

// View returns a snapshot of {"id"}.
func (s *CombatService) View(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := required(in, "id"); err != nil {
		return nil, err
	}
	v, err := s.engine.View(stringField(in, "id"))
	if err != nil {
		return nil, rpcError(err)
	}
	return reply(viewMap(v))
}

// Drain returns and clears the narration queued for {"id"}.
func (s *CombatService) Drain(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := required(in, "id"); err != nil {
		return nil, err
	}
	return reply(stringList("messages", s.outbox.Drain(stringField(in, "id"))))
}

// RecentKills returns up to {"limit"} logged kills, newest first.
func (s *CombatService) RecentKills(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	limit := intField(in, "limit")
	if limit <= 0 {
		limit = DefaultKillLimit
	}
	kills, err := s.store.RecentKills(ctx, limit)
	if err != nil {
		return nil, rpcError(err)
	}
	return reply(killsMap(kills))
}

// Corpses lists the corpses in {"room"}.
func (s *CombatService) Corpses(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.corpses == nil {
		return nil, status.Error(codes.Unimplemented, "corpses are not tracked")
	}
	if err := required(in, "room"); err != nil {
		return nil, err
	}
	return reply(corpsesMap(s.corpses.Corpses(stringField(in, "room"))))
}

// LoggingInterceptor logs every unary call with its status code and latency.
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.Stringer("code", code),
			zap.Duration("elapsed", time.Since(start)),
		}
		switch code {
		case codes.OK:
			logger.Debug("rpc", fields...)
		case codes.Internal, codes.Unknown:
			logger.Error("rpc", append(fields, zap.Error(err))...)
		default:
			logger.Info("rpc", append(fields, zap.Error(err))...)
		}
		return resp, err
	}
}

var _ CombatServiceServer = (*CombatService)(nil)
