package http

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/osusu/osusu/internal/platform/timeouts"
)

// ServerConfig defines the inputs for the API server.
type ServerConfig struct {
	Addr    string
	Handler http.Handler
}

// Server hosts the circle service HTTP API.
type Server struct {
	addr       string
	httpServer *http.Server
}

// NewServer builds a configured API server.
func NewServer(config ServerConfig) (*Server, error) {
	addr := strings.TrimSpace(config.Addr)
	if addr == "" {
		return nil, errors.New("http address is required")
	}
	if config.Handler == nil {
		return nil, errors.New("handler is required")
	}

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           config.Handler,
		ReadHeaderTimeout: timeouts.ReadHeader,
	}

	return &Server{
		addr:       addr,
		httpServer: httpServer,
	}, nil
}

// ListenAndServe runs the HTTP server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("api server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	serveErr := make(chan error, 1)
	log.Printf("circle api listening on %s", s.addr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}
