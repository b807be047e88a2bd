// Package mcp parses MCP command flags and starts the stdio tool server.
package mcp

import (
	"context"
	"flag"

	entrypoint "github.com/osusu/osusu/internal/platform/cmd"
	mcpservice "github.com/osusu/osusu/internal/services/mcp/service"
)

// Config holds MCP command configuration.
type Config struct {
	APIBaseURL string `env:"OSUSU_API_BASE_URL" envDefault:"http://localhost:8080"`
	Grant      string `env:"OSUSU_MCP_GRANT"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.APIBaseURL, "api-base-url", cfg.APIBaseURL, "circle API base URL")
	fs.StringVar(&cfg.Grant, "grant", cfg.Grant, "bearer grant presented to the circle API")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the MCP protocol adapter on stdio.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceMCP, func(ctx context.Context) error {
		return mcpservice.Run(ctx, mcpservice.Config{
			APIBaseURL: cfg.APIBaseURL,
			Grant:      cfg.Grant,
		})
	})
}
