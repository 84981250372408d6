package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"cassa/internal/amqp"
	"cassa/internal/auth"
	"cassa/internal/backend"
	"cassa/internal/cache"
	"cassa/internal/cli"
	"cassa/internal/core"
	"cassa/internal/entries"
	apphttp "cassa/internal/http"
	"cassa/internal/log"
	"cassa/internal/services"
	"cassa/internal/sheets"
	gsheet "cassa/internal/sheets/google"
)

const (
	summaryCacheSize = 1000
	shutdownTimeout  = 30 * time.Second
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)
	ctx := context.Background()

	// Storage
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err, log.FieldErrorType, log.ErrorTypeConfiguration)
		os.Exit(1)
	}
	store, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to open data backend", log.FieldError, err, log.FieldBackend, bcfg.Type)
		os.Exit(1)
	}

	registry := entries.NewRegistry(store.Gateway, logger)
	groups := services.NewGroupService(store.Gateway, logger)

	// Idle workspaces and expired summaries are swept by one manager
	manager := cache.NewManager(logger)
	manager.Register(registry)

	// Summary cache: shared through Redis when configured, in-process otherwise
	var summaries cache.Cache[core.MonthSummary]
	if cfg.RedisAddr != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Error("Failed to connect to Redis", log.FieldError, err, "addr", cfg.RedisAddr)
			os.Exit(1)
		}
		defer rdb.Close()
		summaries = cache.NewRedisCache[core.MonthSummary](rdb, "cassa:", cfg.CacheTTL, logger)
		logger.Info("Summary cache backed by Redis", "addr", cfg.RedisAddr)
	} else {
		lru := cache.NewLRUCache[core.MonthSummary](summaryCacheSize, cfg.CacheTTL)
		manager.Register(lru)
		summaries = lru
	}
	manager.StartCleanup(time.Minute)

	// Change events between instances
	var (
		publisher services.Publisher
		consumer  *services.ChangeConsumer
		broker    *amqp.Client
	)
	if cfg.AMQPURL != "" {
		broker, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, cfg.InstanceID, logger)
		if err != nil {
			logger.Warn("Failed to connect to AMQP broker, running without change events", log.FieldError, err)
		} else {
			publisher = broker
			invalidate := services.Invalidators{
				registry,
				services.InvalidatorFunc(func(_ context.Context, groupID string) error {
					summaries.DeletePrefix(cache.GroupPrefix(groupID))
					return nil
				}),
			}
			consumer = services.NewChangeConsumer(broker, invalidate, services.DefaultChangeConsumerConfig(), logger)
			if err := consumer.Start(ctx); err != nil {
				logger.Error("Failed to start change consumer", log.FieldError, err)
				os.Exit(1)
			}
		}
	} else {
		logger.Info("AMQP disabled - instances will not share change events")
	}
	notifier := services.NewChangeNotifier(publisher, logger)

	// Sheets export
	var writer sheets.MonthWriter
	if cfg.ExportEnabled() {
		client, err := gsheet.NewFromEnv(ctx)
		if err != nil {
			logger.Warn("Failed to initialize Google Sheets client, export disabled", log.FieldError, err)
		} else {
			writer = client
		}
	}
	exporter := services.NewExportService(store.Gateway, registry, writer, logger)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Groups:     groups,
		Workspaces: registry,
		Verifier:   auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer),
		Summaries:  summaries,
		Exporter:   exporter,
		Changes:    notifier,
		Ready:      store.Ping,
		Logger:     logger,
	})

	shutdownCtx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if consumer != nil {
			if err := consumer.Stop(ctx); err != nil {
				logger.Error("Change consumer shutdown error", log.FieldError, err)
			}
		}
		if broker != nil {
			broker.Close()
		}
		manager.Stop()
		if err := store.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	logger.Info("Starting cassa server",
		"port", cfg.Port,
		log.FieldBackend, bcfg.Type,
		"instance", cfg.InstanceID,
		"export", exporter.Enabled())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}
