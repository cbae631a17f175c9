package shibauth

import (
	"context"

	"github.com/campuskit/shibgate/pkg/shibauth/models"
)

// Session is the per-browser-session state the middleware reads and writes.
// Implementations are external to this package; internal/sessions provides a
// cookie-backed one. Backends are assumed to serialize writes per session
// key, so the middleware performs plain read-then-write within a request.
type Session interface {
	// Username returns the authenticated principal's username, or "" when
	// the session is unauthenticated.
	Username() string

	// SetUsername marks the session authenticated as username.
	SetUsername(username string)

	// ClearUsername de-authenticates the session, leaving other values.
	ClearUsername()

	// Get returns an arbitrary session value.
	Get(key string) (any, bool)

	// Set stores an arbitrary session value.
	Set(key string, value any)

	// Delete removes a session value. Deleting an absent key is a no-op.
	Delete(key string)
}

// SessionKeyAttributes is the session key under which the middleware stores
// the normalized attribute map, overwritten on every request that reaches
// attribute parsing.
const SessionKeyAttributes = "shib"

// DefaultForceReauthKey is the default session key for the force-reauth flag
// set by logout and cleared by login.
const DefaultForceReauthKey = "shib_force_reauth"

type contextKey string

const (
	sessionContextKey contextKey = "shibauth.session"
	userContextKey    contextKey = "shibauth.user"
)

// WithSession returns a context carrying the request's session. Session
// manager middleware calls this before the authentication middleware runs.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, s)
}

// SessionFromContext retrieves the request's session, or nil when no session
// middleware is installed.
func SessionFromContext(ctx context.Context) Session {
	s, ok := ctx.Value(sessionContextKey).(Session)
	if !ok {
		return nil
	}
	return s
}

// withUser attaches the authenticated user to the request context.
func withUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, userContextKey, u)
}

// UserFromContext returns the authenticated user for the request, or nil.
// Only handlers running behind the authentication middleware see a user.
func UserFromContext(ctx context.Context) *models.User {
	u, ok := ctx.Value(userContextKey).(*models.User)
	if !ok {
		return nil
	}
	return u
}
