// cmd/server/main.go
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/clearform/photo-upscaler/internal/batch"
	"github.com/clearform/photo-upscaler/internal/bus"
	"github.com/clearform/photo-upscaler/internal/config"
	"github.com/clearform/photo-upscaler/internal/httpapi"
	"github.com/clearform/photo-upscaler/internal/img"
	"github.com/clearform/photo-upscaler/internal/job"
	"github.com/clearform/photo-upscaler/internal/notify"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
		fatal(logger, "load config", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)
	logger.Info("server starting",
		"listen_addr", cfg.ListenAddr,
		"strategy", cfg.Strategy,
		"workers", cfg.Workers,
		"queue_size", cfg.QueueSize,
		"job_ttl", cfg.JobTTL,
	)

	if cfg.WorkDir != "" {
		if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
			fatal(logger, "ensure work directory", err, "work_dir", cfg.WorkDir)
		}
	}

	// Strategy resolution happens exactly once; a missing model asset
	// fails startup rather than a batch halfway through.
	strategy, err := img.SelectStrategy(img.SelectConfig{
		Strategy:    cfg.Strategy,
		ToolCLIPath: cfg.ToolCLIPath,
		ModelPath:   cfg.ModelPath,
	}, logger)
	if err != nil {
		fatal(logger, "select upscaling strategy", err)
	}
	logger.Info("strategy selected", "strategy", strategy.Name())

	ctx := context.Background()

	registry := job.NewRegistry()
	registry.StartJanitor(ctx, cfg.JobTTL, time.Hour, logger)

	notifier := buildNotifier(cfg, logger)

	runner := &batch.Runner{
		Registry: registry,
		Strategy: strategy,
		Notifier: notifier,
		Logger:   logger,
		Limits: batch.Limits{
			MaxSizePasses:   cfg.MaxSizePasses,
			MaxImagePixels:  cfg.MaxImagePixels,
			MaxOutputPixels: cfg.MaxOutputPixels,
		},
		NotifyOnDone: cfg.NotifyOnDone,
	}
	pool := batch.NewPool(ctx, runner, cfg.Workers, cfg.QueueSize, logger)

	server := &httpapi.Server{
		Cfg:      cfg,
		Registry: registry,
		Pool:     pool,
		Notifier: notifier,
		Logger:   logger,
	}

	logger.Info("listening", "addr", cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, server.Router()); err != nil {
		fatal(logger, "listen", err, "addr", cfg.ListenAddr)
	}
}

// buildNotifier assembles the delivery chain: direct Telegram first, the
// external messaging CLI as fallback, and the NATS event stream when a
// broker is configured.
func buildNotifier(cfg config.Config, logger *slog.Logger) notify.Notifier {
	if !cfg.NotifyOnDone {
		return notify.Nop{}
	}

	var notifiers []notify.Notifier
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		notifiers = append(notifiers, notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	if cfg.NotifyCLI != "" && cfg.NotifyTarget != "" {
		notifiers = append(notifiers, notify.NewMessengerCLI(cfg.NotifyCLI, cfg.NotifyChannel, cfg.NotifyTarget))
	}
	if cfg.NATSURL != "" {
		nc, err := bus.Connect(cfg.NATSURL)
		if err != nil {
			logger.Warn("connect to NATS failed, event notifications disabled", "nats_url", cfg.NATSURL, "err", err)
		} else {
			logger.Info("connected to NATS", "nats_url", cfg.NATSURL, "subject", cfg.BatchDoneSubject)
			notifiers = append(notifiers, notify.NewBus(nc, cfg.BatchDoneSubject))
		}
	}

	if len(notifiers) == 0 {
		logger.Info("no notification channel configured")
		return notify.Nop{}
	}
	return notify.Chain{Notifiers: notifiers, Logger: logger}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func fatal(logger *slog.Logger, msg string, err error, attrs ...any) {
	attrs = append(attrs, "err", err)
	logger.Error(msg, attrs...)
	os.Exit(1)
}
