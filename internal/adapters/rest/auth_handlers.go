package rest

import (
	"net/http"
	"time"

	"github.com/ewilliams-labs/duet/internal/core/domain"
	"github.com/ewilliams-labs/duet/internal/logging"
)

type sessionResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      domain.User `json:"user"`
}

type demoLoginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=128"`
}

// SpotifyLogin handles GET /auth/spotify/login by redirecting to Spotify.
func (h *Handler) SpotifyLogin(w http.ResponseWriter, r *http.Request) {
	if h.oauth == nil {
		writeError(w, http.StatusNotImplemented, "spotify login is not configured", errCodeNotImplemented)
		return
	}
	url, err := h.oauth.LoginURL(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

// SpotifyCallback handles GET /auth/spotify/callback and returns a session.
func (h *Handler) SpotifyCallback(w http.ResponseWriter, r *http.Request) {
	if h.oauth == nil {
		writeError(w, http.StatusNotImplemented, "spotify login is not configured", errCodeNotImplemented)
		return
	}

	q := r.URL.Query()
	if reason := q.Get("error"); reason != "" {
		writeError(w, http.StatusUnauthorized, "spotify authorization denied: "+reason, errCodeUnauthorized)
		return
	}
	state, code := q.Get("state"), q.Get("code")
	if state == "" || code == "" {
		writeError(w, http.StatusBadRequest, "state and code are required", errCodeValidation)
		return
	}

	token, err := h.oauth.Exchange(r.Context(), state, code)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	user, err := h.svc.LoginWithSpotify(r.Context(), token)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.writeSession(w, r, user)
}

// DemoLogin handles POST /auth/demo.
func (h *Handler) DemoLogin(w http.ResponseWriter, r *http.Request) {
	if h.demo == nil {
		writeError(w, http.StatusNotImplemented, "demo login is not configured", errCodeNotImplemented)
		return
	}

	var req demoLoginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !h.demo.Verify(req.Username, req.Password) {
		logging.Ctx(r.Context()).Warn().Str("remote", r.RemoteAddr).Msg("demo login rejected")
		writeError(w, http.StatusUnauthorized, "invalid credentials", errCodeUnauthorized)
		return
	}

	user, err := h.svc.LoginDemo(r.Context(), req.Username)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.writeSession(w, r, user)
}

func (h *Handler) writeSession(w http.ResponseWriter, r *http.Request, user domain.User) {
	token, expires, err := h.sessions.Issue(user.ID, user.Demo)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Token: token, ExpiresAt: expires, User: user})
}
