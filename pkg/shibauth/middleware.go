package shibauth

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/campuskit/shibgate/internal/logger"
	"github.com/campuskit/shibgate/pkg/shibauth/models"
	"github.com/campuskit/shibgate/pkg/shibauth/store"
)

// Middleware runs the per-request authentication state machine. It keeps no
// state of its own between requests; everything flows through the session
// attached to the request context by the session manager.
type Middleware struct {
	config  Config
	backend *Backend
	store   store.Store
	metrics Metrics
}

// NewMiddleware wires the state machine to a store. metrics may be nil.
func NewMiddleware(cfg Config, st store.Store, metrics Metrics) *Middleware {
	cfg.applyDefaults()
	return &Middleware{
		config:  cfg,
		backend: NewBackend(st, &cfg, metrics),
		store:   st,
		metrics: metrics,
	}
}

// Backend exposes the identity resolver, mainly for CLI tooling and tests.
func (m *Middleware) Backend() *Backend {
	return m.backend
}

// Handler authenticates the request from the trusted header and passes it
// on. Requests proceed whether or not authentication succeeds; handlers that
// need a principal check UserFromContext or use RequireAuth.
//
// Per-request decision, first match wins:
//
//  1. no session in context: configuration error, panic (the session
//     manager middleware must run first)
//  2. force-reauth flag set: skip authentication, leave session alone
//  3. trusted header absent: optionally de-authenticate, stop
//  4. session already authenticated as the asserted identity: stop, unless
//     the user row has vanished, then de-authenticate and continue fresh
//  5. session authenticated as someone else: de-authenticate, fall through
//  6. parse attributes; on missing required attribute store them anyway,
//     run the parse-error hook, stop
//  7. resolve the user, log them into the session, sync groups, run hooks
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := SessionFromContext(r.Context())
		if sess == nil {
			// Programmer error in the middleware stack, not a request
			// condition. Same failure mode as a missing session backend.
			panic("shibauth: no session in request context; install the session manager middleware before shibauth.Middleware")
		}

		user, err := m.authenticate(r, sess)
		if err != nil {
			logger.Error("authentication aborted", "path", r.URL.Path, "error", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		if user != nil {
			r = r.WithContext(withUser(r.Context(), user))
		}
		next.ServeHTTP(w, r)
	})
}

// authenticate runs states 2-7. A nil user with nil error means the request
// proceeds unauthenticated; a non-nil error aborts the request.
func (m *Middleware) authenticate(r *http.Request, sess Session) (*models.User, error) {
	ctx := r.Context()

	// Logout support: when the flag is set, do not authenticate. The flag
	// survives until the login endpoint removes it, so every request in
	// between stays untouched and the proxy forces a fresh IdP login.
	if flag, ok := sess.Get(m.config.ForceReauthKey); ok {
		if b, _ := flag.(bool); b {
			return nil, nil
		}
		// A stale falsy flag is garbage; drop it.
		sess.Delete(m.config.ForceReauthKey)
	}

	remoteUser := r.Header.Get(m.config.Header)
	if remoteUser == "" {
		// Header disappeared. Depending on policy the session either keeps
		// its user (proxy hiccup tolerance) or is de-authenticated.
		if sess.Username() != "" && m.config.ForceLogoutIfNoHeader {
			logger.Info("trusted header gone, de-authenticating session", "username", sess.Username())
			sess.ClearUsername()
		}
		return nil, nil
	}

	cleaned := m.config.CleanUsername(remoteUser)
	if current := sess.Username(); current != "" {
		if m.config.CleanUsername(current) == cleaned {
			// Same identity, already logged in. Read-only lookup, no
			// writes: this is the hot path for every request after the
			// first.
			user, err := m.store.GetUser(ctx, cleaned)
			if err == nil {
				return user, nil
			}
			if !errors.Is(err, models.ErrUserNotFound) {
				return nil, fmt.Errorf("session user lookup failed: %w", err)
			}
			// The row vanished out-of-band (operator cleanup, database
			// restore). De-authenticate and run a fresh authentication,
			// which re-creates the user when policy allows.
			logger.Info("session user no longer in store, re-authenticating", "username", cleaned)
			sess.ClearUsername()
		} else {
			// Identity changed underneath the session.
			logger.Info("trusted header asserts different identity, de-authenticating",
				"session_user", current, "header_user", cleaned)
			sess.ClearUsername()
		}
	}

	attrs, hadError := ParseAttributes(r.Header, m.config.Attributes)
	sess.Set(SessionKeyAttributes, attrs)
	if hadError {
		if m.metrics != nil {
			m.metrics.ObserveAuthentication("parse_error")
		}
		if m.config.OnParseError != nil {
			if err := m.config.OnParseError(ctx, attrs); err != nil {
				return nil, fmt.Errorf("attribute validation failed: %w", err)
			}
		}
		return nil, nil
	}

	resolved, err := m.backend.Authenticate(ctx, remoteUser, attrs)
	if err != nil {
		if IsAuthFailure(err) {
			logger.Debug("authentication refused", "username", cleaned, "reason", err)
			return nil, nil
		}
		return nil, err
	}

	sess.SetUsername(resolved.Username)
	m.backend.TouchLastLogin(ctx, resolved.Username)

	if len(m.config.GroupAttributes) > 0 {
		target := ParseGroupAttributes(r.Header, m.config.GroupAttributes)
		added, removed, err := SyncGroups(ctx, m.store, resolved, target)
		if err != nil {
			return nil, err
		}
		if m.metrics != nil {
			m.metrics.ObserveGroupSync(added, removed)
		}
		// Reload so downstream handlers see the converged membership set.
		resolved, err = m.store.GetUser(ctx, resolved.Username)
		if err != nil {
			return nil, fmt.Errorf("post-sync user reload failed: %w", err)
		}
	}

	if m.config.MakeProfile != nil {
		if err := m.config.MakeProfile(ctx, resolved, attrs); err != nil {
			return nil, fmt.Errorf("profile hook failed: %w", err)
		}
	}
	if m.config.SetupSession != nil {
		if err := m.config.SetupSession(ctx, sess); err != nil {
			return nil, fmt.Errorf("session hook failed: %w", err)
		}
	}

	return resolved, nil
}

// RequireAuth gates a handler on an authenticated principal, redirecting to
// loginPath with the original URL in redirectField otherwise.
func RequireAuth(loginPath, redirectField string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if UserFromContext(r.Context()) == nil {
				http.Redirect(w, r, loginPath+"?"+redirectField+"="+url.QueryEscape(r.URL.RequestURI()), http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
