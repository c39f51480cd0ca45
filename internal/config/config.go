// Package config reads the process configuration from the environment.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Database string `env:"DATABASE, default=readersync.db"`

	LoginID   string `env:"LDR_LOGIN_ID"`
	Password  string `env:"LDR_PASSWORD"`
	ReaderURL string `env:"LDR_READER_URL, default=http://reader.livedoor.com"`
	LoginURL  string `env:"LDR_LOGIN_URL, default=https://member.livedoor.com/login/index"`

	UnreadOnlySync  bool `env:"UNREAD_ONLY_SYNC, default=false"`
	AutoMarkAllRead bool `env:"AUTO_MARK_ALL_READ, default=false"`
	// Keep queued pin changes the reader refused instead of dropping them.
	StrictPinFlush bool `env:"STRICT_PIN_FLUSH, default=false"`

	// Rest given to the reader after the subscription list and between subscriptions.
	SubscriptionsPause time.Duration `env:"SUBSCRIPTIONS_PAUSE, default=1s"`
	ItemsPause         time.Duration `env:"ITEMS_PAUSE, default=1s"`
	SyncInterval       time.Duration `env:"SYNC_INTERVAL, default=30m"`

	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT, default=30s"`
	HTTPRetries uint64        `env:"HTTP_RETRIES, default=3"`

	Port int `env:"PORT, default=4444"`

	// Which format to use for logging: either text or json
	LoggerFormat string `env:"LOGGER_FORMAT, default=text"`
	LogLevel     string `env:"LOG_LEVEL, default=info"`
}

// Load reads the configuration from the process environment.
func Load(ctx context.Context) (Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, fmt.Errorf("error parsing config: %w", err)
	}

	return cfg, cfg.validate()
}

// LoadWith reads the configuration from the given values instead of the environment.
func LoadWith(ctx context.Context, values map[string]string) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: envconfig.MapLookuper(values),
	}); err != nil {
		return Config{}, fmt.Errorf("error parsing config: %w", err)
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.SyncInterval <= 0 {
		return fmt.Errorf("SYNC_INTERVAL must be positive, got %s", c.SyncInterval)
	}
	if c.SubscriptionsPause < 0 || c.ItemsPause < 0 {
		return fmt.Errorf("pauses can't be negative")
	}
	if c.LoggerFormat != "text" && c.LoggerFormat != "json" {
		return fmt.Errorf("LOGGER_FORMAT must be text or json, got %q", c.LoggerFormat)
	}

	return nil
}

// LogValue keeps the password out of the logs.
func (c Config) LogValue() slog.Value {
	pw := ""
	if c.Password != "" {
		pw = "REDACTED"
	}

	return slog.GroupValue(
		slog.String("database", c.Database),
		slog.String("login_id", c.LoginID),
		slog.String("password", pw),
		slog.String("reader_url", c.ReaderURL),
		slog.Bool("unread_only_sync", c.UnreadOnlySync),
		slog.Bool("auto_mark_all_read", c.AutoMarkAllRead),
		slog.Bool("strict_pin_flush", c.StrictPinFlush),
		slog.Duration("sync_interval", c.SyncInterval),
		slog.Int("port", c.Port),
	)
}
