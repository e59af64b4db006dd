// Package config loads process configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries every tunable of the service. Values come from the
// environment with sensible defaults; invalid numeric values fail loading.
type Config struct {
	ListenAddr string
	WorkDir    string
	LogLevel   string

	MaxUploadMB int
	MaxFiles    int

	MinScale    float64
	MinTargetMB float64
	MaxTargetMB float64

	MaxImagePixels  int
	MaxOutputPixels int
	MaxSizePasses   int

	Strategy     string
	ToolCLIPath  string
	ModelPath    string

	Workers   int
	QueueSize int
	JobTTL    time.Duration

	NotifyOnDone     bool
	NotifyCLI        string
	NotifyChannel    string
	NotifyTarget     string
	TelegramBotToken string
	TelegramChatID   string

	NATSURL          string
	BatchDoneSubject string
}

func Load() (Config, error) {
	cfg := Config{
		ListenAddr:       getenv("LISTEN_ADDR", ":5050"),
		WorkDir:          getenv("WORK_DIR", ""),
		LogLevel:         getenv("LOG_LEVEL", "info"),
		Strategy:         getenv("UPSCALE_STRATEGY", "lanczos"),
		ToolCLIPath:      getenv("TOPAZ_CLI_PATH", ""),
		ModelPath:        getenv("MODEL_PATH", ""),
		NotifyCLI:        getenv("NOTIFY_CLI", ""),
		NotifyChannel:    getenv("NOTIFY_CHANNEL", "telegram"),
		NotifyTarget:     getenv("NOTIFY_TARGET", ""),
		TelegramBotToken: getenv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getenv("TELEGRAM_CHAT_ID", ""),
		NATSURL:          getenv("NATS_URL", ""),
		BatchDoneSubject: getenv("BATCH_DONE_SUBJECT", "images.batch.done"),
	}

	var err error
	if cfg.MaxUploadMB, err = getenvInt("MAX_UPLOAD_MB", 3000); err != nil {
		return Config{}, err
	}
	if cfg.MaxFiles, err = getenvInt("MAX_FILES", 200); err != nil {
		return Config{}, err
	}
	if cfg.MinScale, err = getenvFloat("MIN_SCALE", 4.0); err != nil {
		return Config{}, err
	}
	if cfg.MinTargetMB, err = getenvFloat("MIN_TARGET_MB", 20.0); err != nil {
		return Config{}, err
	}
	if cfg.MaxTargetMB, err = getenvFloat("MAX_TARGET_MB", 100.0); err != nil {
		return Config{}, err
	}
	if cfg.MaxImagePixels, err = getenvInt("MAX_IMAGE_PIXELS", 12000*12000); err != nil {
		return Config{}, err
	}
	if cfg.MaxOutputPixels, err = getenvInt("MAX_OUTPUT_PIXELS", 20000*20000); err != nil {
		return Config{}, err
	}
	if cfg.MaxSizePasses, err = getenvInt("MAX_SIZE_PASSES", 6); err != nil {
		return Config{}, err
	}
	if cfg.Workers, err = getenvInt("WORKERS", 2); err != nil {
		return Config{}, err
	}
	if cfg.QueueSize, err = getenvInt("QUEUE_SIZE", 8); err != nil {
		return Config{}, err
	}
	if cfg.JobTTL, err = getenvDuration("JOB_TTL", 24*time.Hour); err != nil {
		return Config{}, err
	}
	cfg.NotifyOnDone = getenvBool("NOTIFY_ON_DONE", true)

	if cfg.MinTargetMB > cfg.MaxTargetMB {
		return Config{}, fmt.Errorf("MIN_TARGET_MB (%v) exceeds MAX_TARGET_MB (%v)", cfg.MinTargetMB, cfg.MaxTargetMB)
	}
	if cfg.MaxSizePasses <= 0 {
		return Config{}, fmt.Errorf("MAX_SIZE_PASSES must be greater than zero (got %d)", cfg.MaxSizePasses)
	}
	if cfg.Workers <= 0 {
		return Config{}, fmt.Errorf("WORKERS must be greater than zero (got %d)", cfg.Workers)
	}
	if cfg.QueueSize < 0 {
		return Config{}, fmt.Errorf("QUEUE_SIZE must not be negative (got %d)", cfg.QueueSize)
	}

	return cfg, nil
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getenvInt(k string, d int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return d, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", k, err)
	}
	return n, nil
}

func getenvFloat(k string, d float64) (float64, error) {
	v := os.Getenv(k)
	if v == "" {
		return d, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", k, err)
	}
	return f, nil
}

func getenvDuration(k string, d time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return d, nil
	}
	dur, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", k, err)
	}
	return dur, nil
}

func getenvBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
