// Package osusud parses daemon flags and starts the circle service.
package osusud

import (
	"context"
	"flag"
	"fmt"

	entrypoint "github.com/osusu/osusu/internal/platform/cmd"
	server "github.com/osusu/osusu/internal/services/circle/app"
)

// Config holds daemon command configuration.
type Config struct {
	HTTPAddr string `env:"OSUSU_HTTP_ADDR" envDefault:":8080"`
	DataDir  string `env:"OSUSU_DATA_DIR"  envDefault:"data"`
	Store    string `env:"OSUSU_STORE"     envDefault:"sqlite"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "circle API listen address")
	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "data directory for store files")
	fs.StringVar(&cfg.Store, "store", cfg.Store, "store backend: sqlite or badger")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the circle service daemon.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceOsusud, func(ctx context.Context) error {
		if err := server.Run(ctx, server.Config{
			HTTPAddr: cfg.HTTPAddr,
			DataDir:  cfg.DataDir,
			Store:    cfg.Store,
		}); err != nil {
			return fmt.Errorf("serve circle api: %w", err)
		}
		return nil
	})
}
