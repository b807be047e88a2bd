package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/osusu/osusu/internal/platform/branding"
	"github.com/osusu/osusu/internal/services/circle/api/client"
	"github.com/osusu/osusu/internal/services/mcp/domain"
)

// serverVersion identifies the MCP server version.
const serverVersion = "0.1.0"

// serverName identifies this MCP server to clients.
var serverName = branding.AppName + " MCP"

// Config configures the MCP server.
type Config struct {
	// APIBaseURL is the circle service base URL, e.g. http://localhost:8080.
	APIBaseURL string
	// Grant is the bearer token presented on every circle API call.
	Grant string
	// HTTPClient overrides the transport used for circle API calls.
	HTTPClient *http.Client
}

// Server hosts the MCP server.
type Server struct {
	mcpServer *mcp.Server
}

// New creates an MCP server whose tools call the circle service API.
func New(cfg Config) (*Server, error) {
	api, err := client.New(cfg.APIBaseURL, cfg.Grant, cfg.HTTPClient)
	if err != nil {
		return nil, fmt.Errorf("configure circle api client: %w", err)
	}
	return newServer(api), nil
}

// newServer binds MCP tool handlers once against the provided API client.
func newServer(api domain.CircleAPI) *Server {
	mcpServer := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil)
	mcp.AddTool(mcpServer, domain.CircleCreateTool(), domain.CircleCreateHandler(api))
	mcp.AddTool(mcpServer, domain.CircleGetTool(), domain.CircleGetHandler(api))
	mcp.AddTool(mcpServer, domain.CircleListTool(), domain.CircleListHandler(api))
	return &Server{mcpServer: mcpServer}
}

// Serve starts the MCP server on stdio and blocks until it stops or the
// context ends.
func (s *Server) Serve(ctx context.Context) error {
	return s.serveWithTransport(ctx, &mcp.StdioTransport{})
}

// serveWithTransport starts the MCP server using the provided transport.
// Context cancellation is the expected exit path and is not reported as an
// error.
func (s *Server) serveWithTransport(ctx context.Context, transport mcp.Transport) error {
	if s == nil || s.mcpServer == nil {
		return errors.New("mcp server is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := s.mcpServer.Run(ctx, transport)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	if err != nil {
		return fmt.Errorf("serve mcp: %w", err)
	}
	return nil
}

// Run is the service entrypoint for MCP and blocks until context cancellation.
func Run(ctx context.Context, cfg Config) error {
	server, err := New(cfg)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}
