// worldd is the authoritative world server: one tick loop, a websocket
// gateway at the edge, and an ops surface for diagnostics.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/caelmor/world/internal/api"
	"github.com/caelmor/world/internal/combat"
	"github.com/caelmor/world/internal/config"
	"github.com/caelmor/world/internal/core"
	"github.com/caelmor/world/internal/diag"
	"github.com/caelmor/world/internal/ingress"
	"github.com/caelmor/world/internal/logging"
	"github.com/caelmor/world/internal/persist"
	"github.com/caelmor/world/internal/pool"
	"github.com/caelmor/world/internal/replication"
	"github.com/caelmor/world/internal/sim"
	"github.com/caelmor/world/internal/tick"
	"github.com/caelmor/world/internal/transport"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("WORLDD_CONFIG"))
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.Server.Env)
	defer logger.Sync()

	verifyIdentifierNamespaces()
	tick.EnableAssertions(cfg.Tick.AssertTickThread)

	diagnostics := diag.New()
	buffers := pool.NewBufferPool(4096)
	sessions := core.NewSessionTable()
	worldState := worldBoot(logger)

	// Simulation core and effect buffer.
	effects := sim.NewEffectBuffer(cfg.Tick.EffectCapacity)
	engine := sim.NewEngine(worldState, effects, diagnostics.Hooks, logger)
	engine.RegisterGate(worldBootGate(worldState))

	// Command ingress.
	inbound := ingress.New(sessions,
		cfg.Ingress.MaxInboundCommandsPerSession,
		cfg.Ingress.MaxQueuedBytesPerSession,
		diagnostics.Pipeline, logger)

	// Persistence request queue and checkpoint bridge.
	persistQueue := persist.NewQueue(persist.Caps{
		MaxPerPlayer:      cfg.Persistence.MaxWritesPerPlayer,
		MaxGlobal:         cfg.Persistence.MaxWritesGlobal,
		MaxBytesPerPlayer: cfg.Persistence.MaxQueuedBytesPerPlayer,
		MaxBytesGlobal:    cfg.Persistence.MaxQueuedBytesGlobal,
	}, diagnostics.Pipeline, logger)

	// Combat authority and pipeline.
	authority := combat.NewAuthority(engine, logger)
	events := combat.NewEventBus()
	applier := combat.NewApplier(authority, events, persist.NewCheckpointSink(persistQueue),
		worldState, diagnostics.Pipeline, cfg.Replication.AppliedSetCap, logger)
	intents := combat.NewIngressIntentSource(inbound, worldState, cfg.Ingress.MaxCommandsPerDrain, logger)
	engine.RegisterHook(combat.NewPipeline(intents, authority, nil, applier, logger), 10)

	// Replication pipeline.
	serializer := replication.NewDeltaSerializer(buffers)
	outbound := replication.NewOutboundQueue(
		cfg.Replication.MaxOutboundSnapshotsPerSession,
		cfg.Replication.MaxQueuedBytesPerSession,
		diagnostics.Pipeline, logger)
	capturer := replication.NewCapturer(worldState, worldState, sessions, sessions,
		&replication.DeltaPipeline{Serializer: serializer, Outbound: outbound, Counters: diagnostics.Pipeline},
		replication.SliceBudget{
			SliceBudgetPerTick: time.Duration(cfg.Replication.SliceBudgetPerTickUs) * time.Microsecond,
			MaxSlicesPerTick:   cfg.Replication.MaxSlicesPerTick,
			EntitiesPerSlice:   cfg.Replication.EntitiesPerSlice,
		}, diagnostics.Pipeline, logger)
	engine.RegisterHook(capturer, 100)

	// Per-session teardown fan-out.
	sessions.OnDetach(inbound.RemoveSession)
	sessions.OnDetach(outbound.RemoveSession)
	sessions.OnDetach(serializer.RemoveSession)
	sessions.OnDetach(worldState.UnbindSession)

	// Tick scheduler.
	fatal := make(chan error, 1)
	scheduler := tick.NewScheduler(engine, diagnostics.Ticks, logger,
		tick.WithInterval(cfg.Tick.Interval()),
		tick.WithCatchUpLimit(cfg.Tick.MaxCatchUpTicks),
		tick.WithFatalHandler(func(err error) {
			select {
			case fatal <- err:
			default:
			}
		}))

	// Optional persistence drain.
	drainCtx, stopDrain := context.WithCancel(context.Background())
	defer stopDrain()
	if cfg.Persistence.RedisAddr != "" {
		drainer, err := persist.NewDrainer(persistQueue,
			cfg.Persistence.RedisAddr, cfg.Persistence.RedisList, cfg.Persistence.DrainBatch, logger)
		if err != nil {
			logger.Warn("persistence drain unavailable", zap.Error(err))
		} else {
			go drainer.Run(drainCtx)
		}
	}

	// Edge surfaces.
	gateway := transport.NewGateway(sessions, inbound, outbound, buffers, scheduler, cfg.Transport, logger)
	gameMux := http.NewServeMux()
	gameMux.HandleFunc("/ws", gateway.HandleWS)
	gameSrv := &http.Server{Addr: cfg.Server.GameAddr, Handler: gameMux}
	go func() {
		logger.Info("gateway listening", zap.String("addr", cfg.Server.GameAddr))
		if err := gameSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("gateway server failed", zap.Error(err))
		}
	}()

	ops := api.NewOpsServer(cfg.Server.OpsAddr, diagnostics, scheduler, logger)
	go func() {
		if err := ops.Start(); err != nil {
			logger.Error("ops server failed", zap.Error(err))
		}
	}()

	scheduler.Start()
	logger.Info("world server started",
		zap.Duration("tick_interval", cfg.Tick.Interval()),
		zap.Int("catch_up_limit", cfg.Tick.MaxCatchUpTicks))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		logger.Info("shutting down", zap.String("signal", s.String()))
	case err := <-fatal:
		logger.Error("tick core failed, shutting down", zap.Error(err))
	}

	scheduler.Stop()
	stopDrain()

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()
	_ = gameSrv.Shutdown(shutdownCtx)
	_ = ops.Shutdown(shutdownCtx)
}
