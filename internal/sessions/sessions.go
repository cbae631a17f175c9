// Package sessions provides the cookie-backed session store the gateway
// mounts ahead of the authentication middleware. Session values live in
// process memory keyed by an opaque random identifier; the browser only ever
// sees the identifier.
package sessions

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"
	"time"

	"github.com/campuskit/shibgate/pkg/shibauth"
)

// Config holds session manager configuration.
type Config struct {
	// CookieName is the session identifier cookie. Default: "shibgate_session".
	CookieName string `mapstructure:"cookie_name" yaml:"cookie_name"`

	// TTL is how long an idle session survives. Default: 12h.
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"`

	// Secure marks the cookie Secure; enable behind TLS.
	Secure bool `mapstructure:"secure" yaml:"secure"`
}

// ApplyDefaults fills in missing configuration with default values.
func (c *Config) ApplyDefaults() {
	if c.CookieName == "" {
		c.CookieName = "shibgate_session"
	}
	if c.TTL == 0 {
		c.TTL = 12 * time.Hour
	}
}

// session is a single browser session. All access goes through the manager's
// lock, which serializes concurrent requests carrying the same cookie.
type session struct {
	manager  *Manager
	id       string
	username string
	values   map[string]any
	expires  time.Time
}

var _ shibauth.Session = (*session)(nil)

func (s *session) Username() string {
	s.manager.mu.RLock()
	defer s.manager.mu.RUnlock()
	return s.username
}

func (s *session) SetUsername(username string) {
	s.manager.mu.Lock()
	defer s.manager.mu.Unlock()
	s.username = username
}

func (s *session) ClearUsername() {
	s.manager.mu.Lock()
	defer s.manager.mu.Unlock()
	s.username = ""
}

func (s *session) Get(key string) (any, bool) {
	s.manager.mu.RLock()
	defer s.manager.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *session) Set(key string, value any) {
	s.manager.mu.Lock()
	defer s.manager.mu.Unlock()
	s.values[key] = value
}

func (s *session) Delete(key string) {
	s.manager.mu.Lock()
	defer s.manager.mu.Unlock()
	delete(s.values, key)
}

// Manager owns all live sessions and hands each request its session via the
// request context.
type Manager struct {
	config Config

	mu       sync.RWMutex
	sessions map[string]*session

	stopOnce sync.Once
	stop     chan struct{}
}

// NewManager creates a session manager and starts its expiry sweeper.
func NewManager(config Config) *Manager {
	config.ApplyDefaults()
	m := &Manager{
		config:   config,
		sessions: make(map[string]*session),
		stop:     make(chan struct{}),
	}
	go m.sweep()
	return m
}

// Close stops the expiry sweeper.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// Middleware attaches the request's session to its context, creating a new
// session (and Set-Cookie) when the request carries no valid identifier.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := m.lookup(r)
		if sess == nil {
			sess = m.create()
			http.SetCookie(w, &http.Cookie{
				Name:     m.config.CookieName,
				Value:    sess.id,
				Path:     "/",
				HttpOnly: true,
				Secure:   m.config.Secure,
				SameSite: http.SameSiteLaxMode,
				MaxAge:   int(m.config.TTL / time.Second),
			})
		}
		ctx := shibauth.WithSession(r.Context(), sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Manager) lookup(r *http.Request) *session {
	cookie, err := r.Cookie(m.config.CookieName)
	if err != nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[cookie.Value]
	if !ok {
		return nil
	}
	if time.Now().After(sess.expires) {
		delete(m.sessions, sess.id)
		return nil
	}
	sess.expires = time.Now().Add(m.config.TTL)
	return sess
}

func (m *Manager) create() *session {
	sess := &session{
		manager: m,
		id:      newSessionID(),
		values:  make(map[string]any),
		expires: time.Now().Add(m.config.TTL),
	}
	m.mu.Lock()
	m.sessions[sess.id] = sess
	m.mu.Unlock()
	return sess
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// sweep drops expired sessions once a minute until Close.
func (m *Manager) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case now := <-ticker.C:
			m.mu.Lock()
			for id, sess := range m.sessions {
				if now.After(sess.expires) {
					delete(m.sessions, id)
				}
			}
			m.mu.Unlock()
		}
	}
}

func newSessionID() string {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		// crypto/rand failure means the process cannot mint identifiers at
		// all; there is no degraded mode worth running in.
		panic("sessions: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(raw)
}
