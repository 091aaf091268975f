package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/marcogenualdo/hrhub-coa/internal/config"
	"github.com/marcogenualdo/hrhub-coa/internal/store"
)

// Server runs the MCP server over stdio or streamable HTTP.
type Server struct {
	cfg        config.Config
	mcp        *mcp.Server
	health     http.Handler
	store      store.Store
	logger     *slog.Logger
	httpServer *http.Server
}

func New(cfg config.Config, mcpServer *mcp.Server, health http.Handler, st store.Store, logger *slog.Logger) *Server {
	return &Server{
		cfg:    cfg,
		mcp:    mcpServer,
		health: health,
		store:  st,
		logger: logger,
	}
}

// Handler returns the HTTP handler serving /mcp and /health.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Run serves until ctx is cancelled or the stdio peer disconnects, then
// releases the session store.
func (s *Server) Run(ctx context.Context) error {
	defer func() {
		if err := s.store.Close(); err != nil {
			s.logger.Error("error closing session store", "error", err)
		}
	}()

	switch strings.ToLower(s.cfg.Server.Transport) {
	case "http":
		return s.serveHTTP(ctx)
	default:
		s.logger.Info("starting mcp server", "transport", "stdio", "name", s.cfg.Server.Name)
		if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("failed to run stdio server: %w", err)
		}
		s.logger.Info("stdio session closed")
		return nil
	}
}

func (s *Server) serveHTTP(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Server.Host, strconv.Itoa(s.cfg.Server.Port)),
		Handler:           s.setupRoutes(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting mcp server",
			"transport", "http",
			"host", s.cfg.Server.Host,
			"port", s.cfg.Server.Port,
		)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		s.logger.Info("received shutdown signal")
		return s.Shutdown()
	}
}

func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("shutting down server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("error during server shutdown", "error", err)
		return err
	}

	s.logger.Info("server shutdown complete")
	return nil
}
