package sessions

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/campuskit/shibgate/pkg/shibauth"
)

func newTestManager(t *testing.T, config Config) *Manager {
	t.Helper()
	m := NewManager(config)
	t.Cleanup(m.Close)
	return m
}

// capture runs one request through the session middleware and returns the
// session the downstream handler saw plus the recorded response.
func capture(t *testing.T, m *Manager, cookie *http.Cookie) (shibauth.Session, *httptest.ResponseRecorder) {
	t.Helper()
	var sess shibauth.Session
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess = shibauth.SessionFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if sess == nil {
		t.Fatal("no session reached the handler")
	}
	return sess, rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("no %q cookie in response", name)
	return nil
}

func TestManagerMiddleware(t *testing.T) {
	t.Run("new visitor gets a cookie and a session", func(t *testing.T) {
		m := newTestManager(t, Config{})

		_, rec := capture(t, m, nil)
		cookie := sessionCookie(t, rec, "shibgate_session")

		if len(cookie.Value) != 64 {
			t.Errorf("session id length = %d, want 64 hex chars", len(cookie.Value))
		}
		if !cookie.HttpOnly {
			t.Error("cookie must be HttpOnly")
		}
		if cookie.SameSite != http.SameSiteLaxMode {
			t.Error("cookie must be SameSite=Lax")
		}
		if m.Len() != 1 {
			t.Errorf("Len = %d, want 1", m.Len())
		}
	})

	t.Run("returning visitor keeps state", func(t *testing.T) {
		m := newTestManager(t, Config{})

		first, rec := capture(t, m, nil)
		first.SetUsername("alice")
		first.Set("shib", map[string]string{"username": "alice"})
		cookie := sessionCookie(t, rec, "shibgate_session")

		second, rec2 := capture(t, m, cookie)
		if second.Username() != "alice" {
			t.Errorf("Username = %q, want alice", second.Username())
		}
		if _, ok := second.Get("shib"); !ok {
			t.Error("stored value lost across requests")
		}
		if len(rec2.Result().Cookies()) != 0 {
			t.Error("no Set-Cookie expected for a valid session")
		}
		if m.Len() != 1 {
			t.Errorf("Len = %d, want the same single session", m.Len())
		}
	})

	t.Run("unknown cookie mints a fresh session", func(t *testing.T) {
		m := newTestManager(t, Config{})

		sess, rec := capture(t, m, &http.Cookie{Name: "shibgate_session", Value: "bogus"})
		if sess.Username() != "" {
			t.Error("fresh session must be anonymous")
		}
		if sessionCookie(t, rec, "shibgate_session").Value == "bogus" {
			t.Error("a new identifier must be issued")
		}
	})

	t.Run("expired session is replaced", func(t *testing.T) {
		m := newTestManager(t, Config{TTL: time.Nanosecond})

		first, rec := capture(t, m, nil)
		first.SetUsername("alice")
		cookie := sessionCookie(t, rec, "shibgate_session")

		time.Sleep(10 * time.Millisecond)

		second, _ := capture(t, m, cookie)
		if second.Username() == "alice" {
			t.Error("expired session must not resurface")
		}
	})

	t.Run("custom cookie name", func(t *testing.T) {
		m := newTestManager(t, Config{CookieName: "sid"})
		_, rec := capture(t, m, nil)
		sessionCookie(t, rec, "sid")
	})
}

func TestSessionValues(t *testing.T) {
	m := newTestManager(t, Config{})
	sess, _ := capture(t, m, nil)

	sess.Set("k", 42)
	if v, ok := sess.Get("k"); !ok || v.(int) != 42 {
		t.Errorf("Get(k) = %v, %v", v, ok)
	}

	sess.Delete("k")
	if _, ok := sess.Get("k"); ok {
		t.Error("Delete must remove the key")
	}

	sess.SetUsername("alice")
	sess.ClearUsername()
	if sess.Username() != "" {
		t.Error("ClearUsername must empty the username")
	}
}
