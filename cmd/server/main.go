package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/peppidesu/landmower/config"
	"github.com/peppidesu/landmower/internal/app/keygen"
	appmodel "github.com/peppidesu/landmower/internal/app/model"
	apprepository "github.com/peppidesu/landmower/internal/app/repository"
	appserver "github.com/peppidesu/landmower/internal/app/server"
	"github.com/peppidesu/landmower/internal/app/service"
	"github.com/peppidesu/landmower/internal/app/store"
	"github.com/peppidesu/landmower/internal/infra/logger"
	infraNATS "github.com/peppidesu/landmower/internal/infra/nats"
	infraPostgres "github.com/peppidesu/landmower/internal/infra/postgres"
	infraPrometheus "github.com/peppidesu/landmower/internal/infra/prometheus"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx := context.Background()

	isDev := os.Getenv("APP_ENV") != "production"
	log := logger.MustInit(logger.FromEnv())
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	log.Info("Configuration loaded successfully",
		zap.String("bind_address", cfg.Server.BindAddress),
		zap.String("base_url", cfg.Server.BaseURL),
		zap.String("storage_driver", cfg.Storage.Driver),
		zap.String("nats_host", cfg.NATS.Host),
		zap.Int("nats_port", cfg.NATS.Port),
	)

	repo, closeRepo, err := openRepository(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to open link storage", zap.Error(err))
	}
	defer closeRepo()

	st := store.New(store.Config{
		KeyLength:   cfg.Keys.Length,
		MaxAttempts: cfg.Keys.MaxAttempts,
		Blacklist:   cfg.Keys.BlacklistKeys(),
	}, repo, keygen.New(), log)
	if err := st.Recover(ctx); err != nil {
		log.Fatal("Failed to recover link index", zap.Error(err))
	}
	infraPrometheus.LinksLive.Set(float64(st.Len()))

	natsConn, js, err := infraNATS.Connect(cfg.NATS, log)
	if err != nil {
		log.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer natsConn.Drain()
	log.Info("Connected to NATS successfully", zap.Bool("jetstream_ready", js != nil))

	accessPublisher := service.NewAccessPublisher(js)
	accessConsumer := service.NewAccessConsumer(js, log, st)
	if err := accessConsumer.Start(); err != nil {
		log.Fatal("Failed to start access consumer", zap.Error(err))
	}

	usageSyncer := service.NewUsageSyncer(log, st, cfg.Storage.SyncIntervalDuration())
	usageSyncer.Start()

	var promServer *infraPrometheus.Server
	if !isDev {
		promServer = infraPrometheus.NewServer(cfg.Prometheus, log)
		promServer.Start()
	} else {
		log.Info("Skipping Prometheus metrics server in development mode")
	}

	server := appserver.New(appserver.Dependencies{
		Logger:          log,
		Links:           service.NewLinkService(st),
		AccessPublisher: accessPublisher,
		BaseURL:         cfg.Server.BaseURL,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Listen(cfg.Server.BindAddress)
	}()

	stopCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serverErr:
		if err != nil {
			log.Fatal("Fiber server exited", zap.Error(err))
		}
	case <-stopCtx.Done():
		log.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to shut down HTTP server", zap.Error(err))
	}
	if promServer != nil {
		if err := promServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("Failed to shut down Prometheus server", zap.Error(err))
		}
	}
	accessConsumer.Stop()
	usageSyncer.Stop()
	if err := st.SyncAll(shutdownCtx); err != nil {
		log.Error("Failed to flush usage counters", zap.Error(err))
	}
	log.Info("Shutdown complete")
}

// openRepository builds the configured storage backend. The returned cleanup
// closes backend handles the repository does not own itself.
func openRepository(ctx context.Context, cfg *config.Config, log *zap.Logger) (apprepository.LinkRepository, func(), error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		gormDB, err := infraPostgres.NewGorm(cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := gormDB.DB()
		if err != nil {
			return nil, nil, err
		}
		if err := infraPostgres.AutoMigrate(ctx, gormDB, &appmodel.Link{}); err != nil {
			sqlDB.Close()
			return nil, nil, err
		}
		pool, err := infraPostgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			sqlDB.Close()
			return nil, nil, err
		}
		log.Info("Connected to Postgres successfully")
		cleanup := func() {
			pool.Close()
			_ = sqlDB.Close()
		}
		return apprepository.NewPostgresRepository(gormDB, pool), cleanup, nil

	case config.DriverMemory:
		log.Warn("Using in-memory link storage, links will not survive a restart")
		return apprepository.NewMemoryRepository(), func() {}, nil

	default:
		repo, err := apprepository.NewJournalRepository(cfg.Storage.Path, log)
		if err != nil {
			return nil, nil, err
		}
		log.Info("Opened link journal", zap.String("path", cfg.Storage.Path))
		cleanup := func() {
			if err := repo.Close(); err != nil {
				log.Warn("Failed to close link journal", zap.Error(err))
			}
		}
		return repo, cleanup, nil
	}
}
