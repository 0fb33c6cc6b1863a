package main

import (
	"context"
	"log"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	apiHandler "github.com/fastygo/eventcore/api/handler"
	"github.com/fastygo/eventcore/cache"
	"github.com/fastygo/eventcore/domain"
	"github.com/fastygo/eventcore/eventsourcing"
	"github.com/fastygo/eventcore/internal/config"
	"github.com/fastygo/eventcore/internal/infrastructure/monitor"
	pgInfra "github.com/fastygo/eventcore/internal/infrastructure/postgres"
	redisInfra "github.com/fastygo/eventcore/internal/infrastructure/redis"
	"github.com/fastygo/eventcore/internal/middleware"
	"github.com/fastygo/eventcore/internal/router"
	"github.com/fastygo/eventcore/internal/services/lifecycle"
	"github.com/fastygo/eventcore/outbox"
	"github.com/fastygo/eventcore/pkg/httpcontext"
	"github.com/fastygo/eventcore/pkg/logger"
	"github.com/fastygo/eventcore/projection"
	"github.com/fastygo/eventcore/replayscheduler"
	"github.com/fastygo/eventcore/repository/postgres"
	"github.com/fastygo/eventcore/usecase"
	taskUC "github.com/fastygo/eventcore/usecase/task"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.Logger.Level,
		Encoding: cfg.Logger.Encoding,
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := lifecycle.New(cfg.Context.ShutdownTimeout, zapLogger)
	manager.Listen(cancel)

	if err := pgInfra.RunMigrations(cfg, zapLogger); err != nil {
		zapLogger.Fatal("migrations failed", zap.Error(err))
	}

	pool, err := pgInfra.NewPool(appCtx, cfg.Database, zapLogger)
	if err != nil {
		zapLogger.Fatal("postgres connection failed", zap.Error(err))
	}
	manager.Register("postgres", func(ctx context.Context) error {
		pool.Close()
		return nil
	})

	redisClient, err := redisInfra.NewClient(cfg.Redis)
	if err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	manager.Register("redis", func(ctx context.Context) error {
		return redisClient.Close()
	})

	outboxStore, err := outbox.Open(cfg.Outbox.Path, cfg.Outbox.Bucket)
	if err != nil {
		zapLogger.Fatal("failed to open outbox store", zap.Error(err))
	}
	manager.Register("outbox", func(ctx context.Context) error {
		return outboxStore.Close()
	})

	mon := monitor.New(pool, redisClient, outboxStore, 10*time.Second, zapLogger)
	mon.Start()
	manager.Register("monitor", func(ctx context.Context) error {
		mon.Stop()
		return nil
	})

	recordCache := cache.New(redisClient, cfg.Redis.CacheTTL)

	registry := eventsourcing.NewRegistry()
	domain.RegisterTaskEvents(registry)

	taskProjection := projection.NewTaskProjection(pool, cfg.Replay.InsertWithCSVSize, recordCache)
	eventHandlers := []eventsourcing.Handler{taskProjection}

	store := eventsourcing.NewPostgresStore(pool, zapLogger)
	store.Configure(eventsourcing.StoreConfig{
		Registry: registry,
		Handlers: eventHandlers,
		Buffer:   outboxStore,
	})
	eventsourcing.Configure(eventsourcing.Configuration{Store: store, Registry: registry, Logger: zapLogger})

	scheduler := replayscheduler.New(outboxStore, store, zapLogger, replayscheduler.Config{
		Interval:   cfg.Replay.Interval,
		BatchSize:  cfg.Replay.BatchSize,
		MaxRetries: cfg.Outbox.MaxRetries,
		Ordering:   cfg.Replay.ReplayOrdering(),
	})
	scheduler.Start()
	manager.RegisterDrain("outbox_final_drain", scheduler.Drain)
	manager.Register("replay_scheduler", func(ctx context.Context) error {
		scheduler.Stop(ctx)
		return nil
	})

	taskRepo := postgres.NewTaskReadRepository(pool, recordCache)
	taskUseCase := taskUC.New(store, taskRepo, zapLogger)

	dispatcher := usecase.NewDispatcher(zapLogger)
	taskUseCase.RegisterOn(dispatcher)

	ctxAdapter := httpcontext.NewAdapter(cfg.Context.RequestTimeout)

	handlers := router.Handlers{
		Task:    apiHandler.NewTaskHandler(taskUseCase, ctxAdapter, zapLogger),
		Health:  apiHandler.NewHealthHandler(mon, ctxAdapter, zapLogger),
		Command: apiHandler.NewCommandHandler(dispatcher, ctxAdapter, zapLogger),
	}

	authMiddleware := middleware.JWTAuth(cfg.JWT.Secret, zapLogger)
	r := router.New(handlers, authMiddleware)

	server := &fasthttp.Server{
		Handler:      r.Handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		Name:         cfg.AppName,
	}

	go func() {
		zapLogger.Info("server started", zap.String("address", cfg.Address()))
		if err := server.ListenAndServe(cfg.Address()); err != nil {
			zapLogger.Fatal("server crashed", zap.Error(err))
		}
	}()

	manager.Register("http_server", func(ctx context.Context) error {
		return server.Shutdown()
	})

	<-appCtx.Done()

	if err := manager.Shutdown(context.Background()); err != nil {
		zapLogger.Error("graceful shutdown error", zap.Error(err))
	}
}
