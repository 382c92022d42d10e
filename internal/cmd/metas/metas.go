// Package metas parses metas server flags and launches the service.
package metas

import (
	"context"
	"flag"
	"fmt"

	entrypoint "github.com/louisbranch/metas/internal/platform/cmd"
	"github.com/louisbranch/metas/internal/platform/logging"
	server "github.com/louisbranch/metas/internal/services/metas/app"
)

// Config holds metas command configuration. Every variable carries the
// METAS_ prefix.
type Config struct {
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	MetricsAddr string `env:"METRICS_ADDR"`

	StoreDriver string `env:"STORE_DRIVER" envDefault:"sqlite"`
	DBPath      string `env:"DB_PATH" envDefault:"data/metas.db"`
	BadgerDir   string `env:"BADGER_DIR" envDefault:"data/metas-badger"`

	SigningKey string `env:"AUTH_SIGNING_KEY"`
	Issuer     string `env:"AUTH_ISSUER" envDefault:"metas"`
	Audience   string `env:"AUTH_AUDIENCE" envDefault:"metas-api"`

	AllowReopen bool   `env:"ALLOW_REOPEN" envDefault:"false"`
	Locale      string `env:"LOCALE" envDefault:"en-US"`

	NATSURL     string `env:"NATS_URL"`
	NATSSubject string `env:"NATS_SUBJECT" envDefault:"metas.events"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`

	Log logging.Config
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.HTTPAddr, "addr", cfg.HTTPAddr, "The metas HTTP API address")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Optional dedicated Prometheus metrics address")
	fs.StringVar(&cfg.StoreDriver, "store", cfg.StoreDriver, "Storage driver: sqlite or badger")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if cfg.SigningKey == "" {
		return Config{}, fmt.Errorf("METAS_AUTH_SIGNING_KEY is required")
	}
	return cfg, nil
}

// Run starts the metas HTTP API service.
func Run(ctx context.Context, cfg Config) error {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.Named(entrypoint.ServiceMetas)

	return entrypoint.RunWithTelemetryAndOptions(ctx, entrypoint.ServiceMetas, entrypoint.RunOptions{Logger: logger}, func(ctx context.Context) error {
		return server.Run(ctx, server.Config{
			Addr:           cfg.HTTPAddr,
			MetricsAddr:    cfg.MetricsAddr,
			StoreDriver:    cfg.StoreDriver,
			DBPath:         cfg.DBPath,
			BadgerDir:      cfg.BadgerDir,
			SigningKey:     cfg.SigningKey,
			Issuer:         cfg.Issuer,
			Audience:       cfg.Audience,
			AllowReopen:    cfg.AllowReopen,
			Locale:         cfg.Locale,
			NATSURL:        cfg.NATSURL,
			NATSSubject:    cfg.NATSSubject,
			AllowedOrigins: cfg.AllowedOrigins,
			Logger:         logger,
		})
	})
}
