// Package main provides the combat server binary that runs the combat engine
// behind a gRPC service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/cory-johannsen/skirmish/internal/config"
	"github.com/cory-johannsen/skirmish/internal/game/combat"
	"github.com/cory-johannsen/skirmish/internal/game/dice"
	"github.com/cory-johannsen/skirmish/internal/game/effect"
	"github.com/cory-johannsen/skirmish/internal/game/loot"
	"github.com/cory-johannsen/skirmish/internal/gameserver"
	"github.com/cory-johannsen/skirmish/internal/observability"
	"github.com/cory-johannsen/skirmish/internal/scripting"
	"github.com/cory-johannsen/skirmish/internal/server"
	"github.com/cory-johannsen/skirmish/internal/storage"
	"github.com/cory-johannsen/skirmish/internal/storage/postgres"
	"github.com/cory-johannsen/skirmish/internal/storage/sqlite"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging, "combatd")
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.Tracing)
	if err != nil {
		logger.Fatal("initializing tracing", zap.Error(err))
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(tctx); err != nil {
			logger.Warn("flushing traces", zap.Error(err))
		}
	}()

	roller := dice.NewLoggedRoller(dice.NewCryptoSource(), logger)

	logger.Info("starting combat server",
		zap.String("grpc_addr", cfg.GameServer.Addr()),
		zap.String("storage", cfg.Storage.Driver),
	)

	effects := effect.NewRegistry()
	if dir := cfg.GameServer.EffectsDir; dir != "" {
		effects, err = effect.LoadDirectory(dir)
		if err != nil {
			logger.Fatal("loading effect definitions", zap.String("dir", dir), zap.Error(err))
		}
		logger.Info("loaded effect definitions", zap.Int("count", len(effects.All())))
	}

	var tables map[string]loot.Table
	if dir := cfg.GameServer.LootDir; dir != "" {
		tables, err = loot.LoadDirectory(dir)
		if err != nil {
			logger.Fatal("loading loot tables", zap.String("dir", dir), zap.Error(err))
		}
		logger.Info("loaded loot tables", zap.Int("count", len(tables)))
	}
	ledger := loot.NewLedger(tables, roller, logger)

	var scripts *scripting.Manager
	if dir := cfg.GameServer.ProcScriptDir; dir != "" {
		scriptStart := time.Now()
		scripts = scripting.NewManager(roller, logger)
		defer scripts.Close()
		procs, err := scripts.LoadProcs(dir, cfg.GameServer.ScriptInstructionLimit)
		if err != nil {
			logger.Fatal("loading proc scripts", zap.String("dir", dir), zap.Error(err))
		}
		logger.Info("proc scripts loaded",
			zap.Strings("procs", procs),
			zap.Duration("elapsed", time.Since(scriptStart)),
		)
	}

	collab := combat.Collaborators{
		Saves:   gameserver.SaveTable{Roller: roller, Logger: logger},
		Effects: combat.RegistryInvoker{Registry: effects},
		Economy: ledger,
	}
	if path := cfg.GameServer.RoomsFile; path != "" {
		rooms, err := gameserver.LoadRoomGraph(path, roller, logger)
		if err != nil {
			logger.Fatal("loading rooms", zap.String("path", path), zap.Error(err))
		}
		collab.Mover = rooms
	}

	lifecycle := server.NewLifecycle(logger)

	store, err := openStore(ctx, cfg, logger, lifecycle)
	if err != nil {
		logger.Fatal("opening storage", zap.Error(err))
	}
	defer store.Close()
	collab.Persist = store

	outbox := gameserver.NewOutbox(cfg.GameServer.OutboxDepth, logger)
	collab.Narrator = outbox

	engine := combat.NewEngine(cfg.Combat, roller, logger, combat.WithCollaborators(collab))

	pulses := gameserver.NewPulseManager(cfg.Combat.PhaseLength())
	pulses.Register("combat", engine.Pulse)

	svc := gameserver.NewCombatService(engine,
		gameserver.Spawner{Effects: effects, Scripts: scripts},
		outbox, store, ledger, logger,
	)

	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(gameserver.LoggingInterceptor(logger)),
	)
	gameserver.RegisterCombatServiceServer(grpcServer, svc)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	lifecycle.Add("pulse", &server.FuncService{
		StartFn: func(ctx context.Context) error {
			logger.Info("combat pulse running", zap.Duration("interval", pulses.Interval()))
			return pulses.Run(ctx)
		},
	})

	lifecycle.Add("grpc", &server.FuncService{
		StartFn: func(context.Context) error {
			lis, err := net.Listen("tcp", cfg.GameServer.Addr())
			if err != nil {
				return fmt.Errorf("listening on %s: %w", cfg.GameServer.Addr(), err)
			}
			logger.Info("gRPC server listening",
				zap.String("addr", lis.Addr().String()),
			)
			healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
			healthServer.SetServingStatus(gameserver.ServiceName, healthpb.HealthCheckResponse_SERVING)
			return grpcServer.Serve(lis)
		},
		StopFn: func(ctx context.Context) {
			healthServer.Shutdown()
			stopped := make(chan struct{})
			go func() {
				grpcServer.GracefulStop()
				close(stopped)
			}()
			select {
			case <-stopped:
			case <-ctx.Done():
				logger.Warn("graceful stop timed out, forcing")
				grpcServer.Stop()
			}
		},
	})

	logger.Info("combat server initialized",
		zap.Duration("startup", time.Since(start)),
		zap.String("grpc_addr", cfg.GameServer.Addr()),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

// openStore opens the configured persistence backend. The postgres backend
// migrates the schema first and registers a pool health check with lc.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger, lc *server.Lifecycle) (storage.Store, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		dbStart := time.Now()
		if err := postgres.MigrateUp(cfg.Database.DSN()); err != nil {
			return nil, err
		}
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		logger.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.Duration("elapsed", time.Since(dbStart)),
		)
		lc.Add("postgres", &server.FuncService{
			StartFn: func(ctx context.Context) error {
				ticker := time.NewTicker(30 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return nil
					case <-ticker.C:
						if err := pool.Health(ctx, 5*time.Second); err != nil {
							logger.Warn("database health check failed", zap.Error(err))
						}
					}
				}
			},
		})
		return postgres.NewStore(pool), nil
	case "sqlite":
		s, err := sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info("sqlite store opened", zap.String("path", cfg.Storage.SQLitePath))
		return s, nil
	default:
		return storage.Nop{}, nil
	}
}
