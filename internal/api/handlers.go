package api

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/campuskit/shibgate/internal/logger"
	"github.com/campuskit/shibgate/internal/sessions"
	"github.com/campuskit/shibgate/pkg/config"
	"github.com/campuskit/shibgate/pkg/shibauth"
)

// Handler serves the login/logout redirect endpoints and the session info
// page. Login and logout never talk to the identity provider themselves;
// they only flip session state and bounce the browser to the provider's own
// endpoints.
type Handler struct {
	cfg *config.Config
	mgr *sessions.Manager
}

// NewHandler creates the endpoint handler set.
func NewHandler(cfg *config.Config, mgr *sessions.Manager) *Handler {
	return &Handler{cfg: cfg, mgr: mgr}
}

// Login clears the force-reauth flag so the middleware authenticates again,
// then redirects to the identity provider's session initiator with the
// return target attached.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	sess := shibauth.SessionFromContext(r.Context())
	sess.Delete(h.cfg.Auth.ForceReauthKey)

	target := r.URL.Query().Get(h.cfg.Auth.RedirectField)
	if target == "" {
		target = h.cfg.Auth.LoginRedirectURL
	}

	login := h.cfg.Auth.LoginURL + "?" + h.cfg.Auth.RedirectField + "=" + url.QueryEscape(target)
	http.Redirect(w, r, login, http.StatusFound)
}

// Logout de-authenticates the session and sets the force-reauth flag, so no
// request authenticates again until the browser goes back through Login.
// The browser is sent to the configured logout page, falling back to the
// identity provider's login URL origin when none is set.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	sess := shibauth.SessionFromContext(r.Context())

	if username := sess.Username(); username != "" {
		logger.Info("logging out session", "username", username)
	}
	sess.ClearUsername()
	sess.Delete(shibauth.SessionKeyAttributes)
	sess.Set(h.cfg.Auth.ForceReauthKey, true)

	next := h.cfg.Auth.LogoutRedirectURL
	if next == "" {
		next = "/"
	}
	http.Redirect(w, r, next, http.StatusFound)
}

// userInfoResponse is the JSON body served by UserInfo.
type userInfoResponse struct {
	Username   string            `json:"username"`
	Email      string            `json:"email,omitempty"`
	FirstName  string            `json:"first_name,omitempty"`
	LastName   string            `json:"last_name,omitempty"`
	Groups     []string          `json:"groups,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
	LogoutLink string            `json:"logout_link"`
}

// UserInfo reports the authenticated principal. Runs behind RequireAuth, so
// an unauthenticated request never reaches it.
func (h *Handler) UserInfo(w http.ResponseWriter, r *http.Request) {
	user := shibauth.UserFromContext(r.Context())
	if user == nil {
		// RequireAuth should have redirected already.
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	resp := userInfoResponse{
		Username:   user.Username,
		Email:      user.Email,
		FirstName:  user.FirstName,
		LastName:   user.LastName,
		Groups:     user.GetGroupNames(),
		Extra:      user.Extra,
		LogoutLink: "/logout",
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error("failed to encode user info", "error", err)
	}
}
