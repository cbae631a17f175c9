package shibauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/campuskit/shibgate/pkg/shibauth/models"
	"github.com/campuskit/shibgate/pkg/shibauth/store"
)

// fakeSession is an in-memory Session for middleware tests.
type fakeSession struct {
	username string
	values   map[string]any
}

func newFakeSession() *fakeSession {
	return &fakeSession{values: make(map[string]any)}
}

func (s *fakeSession) Username() string            { return s.username }
func (s *fakeSession) SetUsername(username string) { s.username = username }
func (s *fakeSession) ClearUsername()              { s.username = "" }
func (s *fakeSession) Get(key string) (any, bool)  { v, ok := s.values[key]; return v, ok }
func (s *fakeSession) Set(key string, value any)   { s.values[key] = value }
func (s *fakeSession) Delete(key string)           { delete(s.values, key) }

// serve runs one request through the middleware, capturing the user the
// downstream handler observed.
func serve(t *testing.T, m *Middleware, sess Session, header map[string]string) (*httptest.ResponseRecorder, *models.User) {
	t.Helper()
	var seen *models.User
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/page", nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	if sess != nil {
		req = req.WithContext(WithSession(req.Context(), sess))
	}

	rec := httptest.NewRecorder()
	m.Handler(next).ServeHTTP(rec, req)
	return rec, seen
}

func newTestMiddleware(t *testing.T, mutate func(*Config)) (*Middleware, *store.GORMStore) {
	t.Helper()
	st := newTestStore(t)
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	return NewMiddleware(cfg, st, nil), st
}

func TestMiddlewareStateMachine(t *testing.T) {
	ctx := context.Background()

	t.Run("panics without session middleware", func(t *testing.T) {
		m, _ := newTestMiddleware(t, nil)
		defer func() {
			if recover() == nil {
				t.Error("expected panic when the session manager is missing")
			}
		}()
		serve(t, m, nil, nil)
	})

	t.Run("force-reauth flag skips authentication", func(t *testing.T) {
		m, st := newTestMiddleware(t, nil)
		seedUser(t, st, "alice")

		sess := newFakeSession()
		sess.SetUsername("alice")
		sess.Set(DefaultForceReauthKey, true)

		_, seen := serve(t, m, sess, map[string]string{"Remote-User": "alice", "Uid": "alice"})
		if seen != nil {
			t.Error("no principal must be installed while the flag is set")
		}
		if sess.Username() != "alice" {
			t.Error("existing session user must be left untouched")
		}
		if _, ok := sess.Get(DefaultForceReauthKey); !ok {
			t.Error("the flag survives until login clears it")
		}
	})

	t.Run("stale falsy flag is dropped", func(t *testing.T) {
		m, _ := newTestMiddleware(t, nil)
		sess := newFakeSession()
		sess.Set(DefaultForceReauthKey, false)

		serve(t, m, sess, map[string]string{"Remote-User": "alice", "Uid": "alice"})
		if _, ok := sess.Get(DefaultForceReauthKey); ok {
			t.Error("falsy flag must be removed")
		}
	})

	t.Run("missing header de-authenticates by policy", func(t *testing.T) {
		m, st := newTestMiddleware(t, nil)
		seedUser(t, st, "alice")

		sess := newFakeSession()
		sess.SetUsername("alice")

		_, seen := serve(t, m, sess, nil)
		if seen != nil {
			t.Error("request must proceed unauthenticated")
		}
		if sess.Username() != "" {
			t.Error("session must be de-authenticated when the header disappears")
		}
	})

	t.Run("missing header keeps session when policy disabled", func(t *testing.T) {
		m, st := newTestMiddleware(t, func(c *Config) { c.ForceLogoutIfNoHeader = false })
		seedUser(t, st, "alice")

		sess := newFakeSession()
		sess.SetUsername("alice")

		serve(t, m, sess, nil)
		if sess.Username() != "alice" {
			t.Error("session must keep its user when force logout is disabled")
		}
	})

	t.Run("fresh authentication logs the user in", func(t *testing.T) {
		m, st := newTestMiddleware(t, nil)
		sess := newFakeSession()

		_, seen := serve(t, m, sess, map[string]string{
			"Remote-User": "alice", "Uid": "alice", "Mail": "alice@example.edu",
		})
		if seen == nil {
			t.Fatal("expected an authenticated principal")
		}
		if seen.Email != "alice@example.edu" {
			t.Errorf("email = %q, want alice@example.edu", seen.Email)
		}
		if sess.Username() != "alice" {
			t.Errorf("session username = %q, want alice", sess.Username())
		}

		if _, err := st.GetUser(ctx, "alice"); err != nil {
			t.Errorf("expected user persisted: %v", err)
		}

		blob, ok := sess.Get(SessionKeyAttributes)
		if !ok {
			t.Fatal("normalized attributes must be stored in the session")
		}
		attrs := blob.(map[string]string)
		if attrs["email"] != "alice@example.edu" {
			t.Errorf("session attrs = %v", attrs)
		}
	})

	t.Run("same identity is a read-only fast path", func(t *testing.T) {
		st := newTestStore(t)
		counting := &writeCountingStore{Store: st}
		cfg := testConfig()
		m := NewMiddleware(cfg, counting, nil)

		sess := newFakeSession()
		header := map[string]string{"Remote-User": "alice", "Uid": "alice"}

		serve(t, m, sess, header)
		before := counting.writeCount()

		_, seen := serve(t, m, sess, header)
		if seen == nil || seen.Username != "alice" {
			t.Fatal("fast path must still expose the principal")
		}
		if got := counting.writeCount(); got != before {
			t.Errorf("second request performed %d extra writes, want 0", got-before)
		}
	})

	t.Run("deleted user mid-session recovers on the next request", func(t *testing.T) {
		m, st := newTestMiddleware(t, nil)
		sess := newFakeSession()
		header := map[string]string{"Remote-User": "alice", "Uid": "alice"}

		serve(t, m, sess, header)
		if sess.Username() != "alice" {
			t.Fatal("setup authentication failed")
		}

		// Out-of-band cleanup while the browser session stays authenticated.
		if err := st.DB().Where("username = ?", "alice").Delete(&models.User{}).Error; err != nil {
			t.Fatalf("failed to delete user row: %v", err)
		}

		rec, seen := serve(t, m, sess, header)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if seen == nil || seen.Username != "alice" {
			t.Fatal("expected a fresh authentication to re-create the user")
		}
		if sess.Username() != "alice" {
			t.Errorf("session username = %q, want alice", sess.Username())
		}
		if _, err := st.GetUser(context.Background(), "alice"); err != nil {
			t.Errorf("expected the user re-persisted: %v", err)
		}
	})

	t.Run("different identity re-authenticates", func(t *testing.T) {
		m, _ := newTestMiddleware(t, nil)
		sess := newFakeSession()

		serve(t, m, sess, map[string]string{"Remote-User": "alice", "Uid": "alice"})
		_, seen := serve(t, m, sess, map[string]string{"Remote-User": "bob", "Uid": "bob"})

		if seen == nil || seen.Username != "bob" {
			t.Fatal("expected the new identity to be authenticated")
		}
		if sess.Username() != "bob" {
			t.Errorf("session username = %q, want bob", sess.Username())
		}
	})

	t.Run("parse error blocks authentication but stores attributes", func(t *testing.T) {
		m, st := newTestMiddleware(t, nil)
		sess := newFakeSession()

		// Uid maps to the required username field; only Mail arrives.
		_, seen := serve(t, m, sess, map[string]string{
			"Remote-User": "alice", "Mail": "alice@example.edu",
		})
		if seen != nil {
			t.Error("request must not authenticate on a parse error")
		}
		if sess.Username() != "" {
			t.Error("session must stay unauthenticated")
		}
		if _, ok := sess.Get(SessionKeyAttributes); !ok {
			t.Error("attributes are stored even when parsing fails")
		}
		users, _ := st.ListUsers(context.Background())
		if len(users) != 0 {
			t.Errorf("expected no users created, got %d", len(users))
		}
	})

	t.Run("parse-error hook can abort the request", func(t *testing.T) {
		m, _ := newTestMiddleware(t, func(c *Config) {
			c.OnParseError = func(ctx context.Context, attrs map[string]string) error {
				return errors.New("missing required attribute")
			}
		})
		sess := newFakeSession()

		rec, _ := serve(t, m, sess, map[string]string{"Remote-User": "alice"})
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500 when the hook raises", rec.Code)
		}
	})

	t.Run("group attributes drive membership", func(t *testing.T) {
		m, st := newTestMiddleware(t, func(c *Config) { c.GroupAttributes = []string{"Dept"} })
		sess := newFakeSession()

		_, seen := serve(t, m, sess, map[string]string{
			"Remote-User": "alice", "Uid": "alice", "Dept": "x;y;x",
		})
		if seen == nil {
			t.Fatal("expected an authenticated principal")
		}
		if got := groupNames(t, st, "alice"); len(got) != 2 || got[0] != "x" || got[1] != "y" {
			t.Errorf("groups = %v, want [x y]", got)
		}
	})

	t.Run("no group attributes leaves memberships alone", func(t *testing.T) {
		m, st := newTestMiddleware(t, nil)
		seedUser(t, st, "alice")
		if _, err := st.GetOrCreateGroup(context.Background(), "manual"); err != nil {
			t.Fatal(err)
		}
		if err := st.AddUserToGroup(context.Background(), "alice", "manual"); err != nil {
			t.Fatal(err)
		}

		sess := newFakeSession()
		serve(t, m, sess, map[string]string{"Remote-User": "alice", "Uid": "alice"})

		if got := groupNames(t, st, "alice"); len(got) != 1 || got[0] != "manual" {
			t.Errorf("groups = %v, want [manual] untouched", got)
		}
	})

	t.Run("hooks run after successful authentication", func(t *testing.T) {
		profileRan := false
		sessionRan := false
		m, _ := newTestMiddleware(t, func(c *Config) {
			c.MakeProfile = func(ctx context.Context, user *models.User, attrs map[string]string) error {
				profileRan = user.Username == "alice"
				return nil
			}
			c.SetupSession = func(ctx context.Context, sess Session) error {
				sessionRan = true
				return nil
			}
		})

		serve(t, m, newFakeSession(), map[string]string{"Remote-User": "alice", "Uid": "alice"})
		if !profileRan || !sessionRan {
			t.Errorf("profileRan=%v sessionRan=%v, want both", profileRan, sessionRan)
		}
	})
}

func TestRequireAuth(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	gate := RequireAuth("/login", "target")(next)

	t.Run("redirects anonymous requests", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/private?x=1", nil)
		rec := httptest.NewRecorder()
		gate.ServeHTTP(rec, req)

		if rec.Code != http.StatusFound {
			t.Fatalf("status = %d, want 302", rec.Code)
		}
		loc := rec.Header().Get("Location")
		if loc != "/login?target=%2Fprivate%3Fx%3D1" {
			t.Errorf("Location = %q", loc)
		}
	})

	t.Run("passes authenticated requests", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/private", nil)
		req = req.WithContext(withUser(req.Context(), &models.User{Username: "alice"}))
		rec := httptest.NewRecorder()
		gate.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})
}
