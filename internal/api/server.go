// Package api serves the discovered devices over HTTP.
package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/rmrfslashbin/device-gateway/internal/discovery"
	"github.com/rmrfslashbin/device-gateway/internal/hazards"
)

const (
	gracefulShutdownTimeout = 10 * time.Second

	readTimeout = 10 * time.Second
	// A discovery request waits for a full pass.
	writeTimeout = 2 * time.Minute
	idleTimeout  = 60 * time.Second
)

// Deps holds what the server needs.
type Deps struct {
	Listen    string
	Discovery *discovery.Service
	DB        *sql.DB
	Catalog   *hazards.Catalog
	Logger    *slog.Logger
	Version   string
}

// Server is the HTTP API server.
type Server struct {
	listen    string
	discovery *discovery.Service
	db        *sql.DB
	catalog   *hazards.Catalog
	logger    *slog.Logger
	version   string
	started   time.Time

	server   *http.Server
	listener net.Listener
}

// New validates deps and creates a server.
func New(deps Deps) (*Server, error) {
	if deps.Discovery == nil {
		return nil, fmt.Errorf("discovery service is required")
	}
	if deps.DB == nil {
		return nil, fmt.Errorf("database is required")
	}
	if deps.Catalog == nil {
		deps.Catalog = hazards.Empty()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &Server{
		listen:    deps.Listen,
		discovery: deps.Discovery,
		db:        deps.DB,
		catalog:   deps.Catalog,
		logger:    deps.Logger,
		version:   deps.Version,
		started:   time.Now(),
	}, nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.listen, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server listening", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close shuts the server down, waiting for in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
