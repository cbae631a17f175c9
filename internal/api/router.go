// Package api assembles the gateway's HTTP surface: the session and
// authentication middleware stack, the login/logout redirect endpoints, the
// session info page, health, and metrics.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/campuskit/shibgate/internal/logger"
	"github.com/campuskit/shibgate/internal/sessions"
	"github.com/campuskit/shibgate/pkg/config"
	"github.com/campuskit/shibgate/pkg/metrics"
	"github.com/campuskit/shibgate/pkg/shibauth"
	"github.com/campuskit/shibgate/pkg/shibauth/store"
)

// NewRouter builds the chi router with the full middleware stack.
//
// Order matters: the session manager must run before the authentication
// middleware, which must run before any handler that reads the principal.
//
// Routes:
//   - GET /         - session user info (auth required, redirects to /login)
//   - GET /login    - clear force-reauth flag, redirect to the IdP initiator
//   - GET /logout   - clear principal, set force-reauth flag, redirect out
//   - GET /health   - liveness probe
//   - GET /metrics  - Prometheus metrics (when enabled)
func NewRouter(cfg *config.Config, st store.Store, mgr *sessions.Manager, authMetrics *metrics.AuthMetrics) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	if cfg.Metrics {
		r.Get("/metrics", metrics.Handler().ServeHTTP)
	}

	authMiddleware := shibauth.NewMiddleware(cfg.Auth.AuthSettings(), st, authMetrics)
	h := NewHandler(cfg, mgr)

	r.Group(func(r chi.Router) {
		r.Use(mgr.Middleware)
		if len(cfg.Auth.MockHeaders) > 0 {
			r.Use(mockHeaders(cfg.Auth.MockHeaders))
		}
		r.Use(authMiddleware.Handler)

		r.Get("/login", h.Login)
		r.Get("/logout", h.Logout)

		r.Group(func(r chi.Router) {
			r.Use(shibauth.RequireAuth("/login", cfg.Auth.RedirectField))
			r.Get("/", h.UserInfo)
		})
	})

	return r
}

// mockHeaders injects fixed headers into every request before authentication
// runs. Development aid only.
func mockHeaders(headers map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for name, value := range headers {
				r.Header.Set(name, value)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger logs requests through the internal logger. Health probes log
// at DEBUG to keep the log readable.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logArgs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).String(),
		}

		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			logger.Debug("request completed", logArgs...)
		} else {
			logger.Info("request completed", logArgs...)
		}
	})
}
