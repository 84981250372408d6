package main

import (
	"context"
	"os"
	"time"

	"cassa/internal/backend"
	"cassa/internal/cli"
	"cassa/internal/config"
	"cassa/internal/core"
	"cassa/internal/entries"
	"cassa/internal/gateway"
	"cassa/internal/log"
	"cassa/internal/notify"
	"cassa/internal/notify/email"
	"cassa/internal/notify/telegram"
	"cassa/internal/services"
	gsheet "cassa/internal/sheets/google"
	"cassa/internal/worker"
)

const (
	jobTimeout      = 10 * time.Minute
	shutdownTimeout = 30 * time.Second
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger)
	ctx := context.Background()

	logger.Info("Starting cassa-worker")

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
	if bcfg.Type == backend.MemoryBackend {
		logger.Warn("Worker running on the memory backend sees no data written by the server")
	}

	scheduler := worker.NewScheduler(logger)

	if notifier := buildNotifier(cfg, logger); notifier != nil {
		rc := services.ReminderConfig{LeadDays: cfg.ReminderLeadDays}
		err := scheduler.Add(worker.Job{
			Name:     "reminders",
			Schedule: cfg.ReminderSchedule,
			Timeout:  jobTimeout,
			Run: func(ctx context.Context) error {
				// a fresh registry per run reads what the server wrote since
				_, err := services.NewReminderService(store.Gateway, freshWorkspaces(store.Gateway, logger), notifier, rc, logger).Run(ctx)
				return err
			},
		})
		if err != nil {
			logger.Error("Failed to schedule reminders", log.FieldError, err)
			os.Exit(1)
		}
	} else {
		logger.Info("Reminders disabled - no SMTP or Telegram configuration")
	}

	if cfg.ExportEnabled() {
		client, err := gsheet.NewFromEnv(ctx)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			os.Exit(1)
		}
		err = scheduler.Add(worker.Job{
			Name:       "monthly-export",
			Schedule:   cfg.ExportSchedule,
			RunOnStart: true,
			Timeout:    jobTimeout,
			Run: func(ctx context.Context) error {
				prev := core.YearMonthOf(time.Now()).AddMonths(-1)
				exporter := services.NewExportService(store.Gateway, freshWorkspaces(store.Gateway, logger), client, logger)
				n, err := exporter.ExportAll(ctx, prev.Year, prev.Month)
				logger.InfoContext(ctx, "Monthly export done", log.FieldCount, n, log.FieldYear, prev.Year, log.FieldMonth, prev.Month)
				return err
			},
		})
		if err != nil {
			logger.Error("Failed to schedule export", log.FieldError, err)
			os.Exit(1)
		}
	} else {
		logger.Info("Google Sheets export disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	shutdownCtx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(ctx context.Context) {
		if err := scheduler.Stop(ctx); err != nil {
			logger.Error("Scheduler shutdown error", log.FieldError, err)
		}
		if err := store.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	scheduler.Start(shutdownCtx)
	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Worker stopped gracefully")
}

func freshWorkspaces(gw gateway.Gateway, logger *log.Logger) *entries.Registry {
	return entries.NewRegistry(gw, logger)
}

// buildNotifier fans reminders out to every configured channel; nil when none is.
func buildNotifier(cfg *config.Config, logger *log.Logger) notify.Notifier {
	var channels notify.Multi
	if cfg.SMTPHost != "" {
		channels = append(channels, email.NewSender(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SenderEmail,
		}, logger))
	}
	if cfg.TelegramBotToken != "" {
		tg, err := telegram.New(cfg.TelegramBotToken, cfg.TelegramChatID, logger)
		if err != nil {
			logger.Error("Failed to initialize Telegram bot, skipping channel", log.FieldError, err)
		} else {
			channels = append(channels, tg)
		}
	}
	if len(channels) == 0 {
		return nil
	}
	return channels
}
