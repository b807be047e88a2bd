package mcp

import (
	"flag"
	"testing"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.APIBaseURL != "http://localhost:8080" {
		t.Fatalf("expected default api base url, got %q", cfg.APIBaseURL)
	}
	if cfg.Grant != "" {
		t.Fatalf("expected empty default grant, got %q", cfg.Grant)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	t.Setenv("OSUSU_API_BASE_URL", "http://env-host:9000")
	t.Setenv("OSUSU_MCP_GRANT", "env-grant")

	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	args := []string{"-api-base-url", "http://flag-host:9001"}
	cfg, err := ParseConfig(fs, args)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.APIBaseURL != "http://flag-host:9001" {
		t.Fatalf("expected flag api base url, got %q", cfg.APIBaseURL)
	}
	if cfg.Grant != "env-grant" {
		t.Fatalf("expected env grant, got %q", cfg.Grant)
	}
}
