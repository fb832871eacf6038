// Package server provides HTTP server wiring and lifecycle management.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nasirucode/xerosync/internal/auth"
	"github.com/nasirucode/xerosync/internal/config"
	servertls "github.com/nasirucode/xerosync/internal/server/tls"
	"github.com/nasirucode/xerosync/internal/store"
	"github.com/nasirucode/xerosync/internal/sync"
	"github.com/nasirucode/xerosync/internal/webhook"
	"github.com/nasirucode/xerosync/internal/xero"
)

var ErrMissingDep = errors.New("missing required dependency")

// Deps holds all server dependencies.
type Deps struct {
	Tokens  *xero.TokenManager
	Gateway *xero.Gateway
	Engine  *sync.Engine
	Store   store.Driver
	Auth    *auth.Authenticator
}

// Server wraps the HTTP server and its dependencies.
type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	deps       *Deps
	httpServer *http.Server
	webhook    *webhook.Handler
	acme       *servertls.ACMEManager
}

// New creates a Server with the given configuration.
func New(cfg *config.Config, logger *slog.Logger, deps *Deps) (*Server, error) {
	if err := validateDeps(deps); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		deps:    deps,
		webhook: webhook.NewHandler(cfg.Xero.WebhookSecret, deps.Engine, logger),
	}

	if cfg.TLS.Mode == "acme" {
		s.acme = servertls.NewACMEManager(&cfg.TLS.ACME, logger, nil)
	}

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.setupRoutes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Start starts the HTTP server. It blocks until the server is shut down.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("starting server",
		"addr", s.cfg.ListenAddr,
		"public_origin", s.cfg.PublicOrigin,
		"tls_mode", s.cfg.TLS.Mode,
	)

	switch s.cfg.TLS.Mode {
	case "off":
		return s.httpServer.ListenAndServe()

	case "static", "selfsigned":
		manager := servertls.NewManager(&s.cfg.TLS, s.logger)
		tlsConfig, err := manager.GetTLSConfig(s.cfg.Hostname())
		if err != nil {
			return fmt.Errorf("failed to configure TLS: %w", err)
		}
		s.httpServer.TLSConfig = tlsConfig
		// Certs live in TLSConfig.Certificates; empty paths select them.
		return s.httpServer.ListenAndServeTLS("", "")

	case "acme":
		// The challenge handler is already routed; Init may need it while
		// the ACME server validates HTTP-01.
		if err := s.acme.Init(ctx); err != nil {
			return fmt.Errorf("failed to initialize ACME: %w", err)
		}
		s.httpServer.TLSConfig = s.acme.GetTLSConfig()
		return s.httpServer.ListenAndServeTLS("", "")

	default:
		return fmt.Errorf("%w: %s", servertls.ErrInvalidTLSMode, s.cfg.TLS.Mode)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	return s.httpServer.Shutdown(ctx)
}

func validateDeps(deps *Deps) error {
	if deps == nil {
		return errors.New("deps is nil")
	}
	if deps.Tokens == nil {
		return fmt.Errorf("%w: Tokens", ErrMissingDep)
	}
	if deps.Gateway == nil {
		return fmt.Errorf("%w: Gateway", ErrMissingDep)
	}
	if deps.Engine == nil {
		return fmt.Errorf("%w: Engine", ErrMissingDep)
	}
	if deps.Store == nil {
		return fmt.Errorf("%w: Store", ErrMissingDep)
	}
	if deps.Auth == nil {
		return fmt.Errorf("%w: Auth", ErrMissingDep)
	}
	return nil
}
