package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/campuskit/shibgate/internal/logger"
	"github.com/campuskit/shibgate/internal/sessions"
	"github.com/campuskit/shibgate/pkg/config"
	"github.com/campuskit/shibgate/pkg/metrics"
	"github.com/campuskit/shibgate/pkg/shibauth/store"
)

// Server is the gateway HTTP server with graceful shutdown.
type Server struct {
	server       *http.Server
	config       *config.Config
	sessions     *sessions.Manager
	shutdownOnce sync.Once
}

// NewServer assembles the session manager, router, and http.Server. The
// server is created stopped; Start runs it.
func NewServer(cfg *config.Config, st store.Store) *Server {
	if cfg.Metrics {
		metrics.InitRegistry()
	}

	mgr := sessions.NewManager(cfg.Sessions)
	router := NewRouter(cfg, st, mgr, metrics.NewAuthMetrics())

	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		},
		config:   cfg,
		sessions: mgr,
	}
}

// Start serves requests until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("server listening", "port", s.config.Server.Port, "header", s.config.Auth.Header)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown gracefully stops the server. Safe to call more than once.
func (s *Server) Shutdown() error {
	var err error
	s.shutdownOnce.Do(func() {
		logger.Info("server shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer cancel()

		err = s.server.Shutdown(ctx)
		s.sessions.Close()
		if err != nil {
			logger.Error("server shutdown error", "error", err)
		} else {
			logger.Info("server stopped")
		}
	})
	return err
}
