package rest

import (
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ewilliams-labs/duet/internal/auth"
	"github.com/ewilliams-labs/duet/internal/core/domain"
	"github.com/ewilliams-labs/duet/internal/core/services"
)

type sendMessageRequest struct {
	Body string `json:"body" validate:"required,max=1000"`
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	return v, err == nil
}

func queryFloat(r *http.Request, name string) (*float64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, false
	}
	return &v, true
}

// FindMatches handles GET /api/match?limit=&min_score=&max_km=&vibe=.
func (h *Handler) FindMatches(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit")
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be an integer", errCodeValidation)
		return
	}
	minScore, ok := queryFloat(r, "min_score")
	if !ok {
		writeError(w, http.StatusBadRequest, "min_score must be a number", errCodeValidation)
		return
	}
	maxKm, ok := queryFloat(r, "max_km")
	if !ok {
		writeError(w, http.StatusBadRequest, "max_km must be a number", errCodeValidation)
		return
	}

	q := services.MatchQuery{
		Limit:    limit,
		MinScore: minScore,
		Vibe:     r.URL.Query().Get("vibe"),
	}
	if maxKm != nil {
		q.MaxDistanceKm = *maxKm
	}

	suggestions, err := h.svc.FindMatches(r.Context(), auth.UserID(r), q)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": suggestions})
}

// ListMatches handles GET /api/matches?status=.
func (h *Handler) ListMatches(w http.ResponseWriter, r *http.Request) {
	matches, err := h.svc.ListMatches(r.Context(), auth.UserID(r), r.URL.Query().Get("status"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if matches == nil {
		matches = []domain.Match{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

// Like handles POST /api/matches/{id}/like.
func (h *Handler) Like(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, domain.DecisionLike)
}

// Pass handles POST /api/matches/{id}/pass.
func (h *Handler) Pass(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, domain.DecisionPass)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, d domain.Decision) {
	m, err := h.svc.Decide(r.Context(), auth.UserID(r), chi.URLParam(r, "id"), d)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// Soundtrack handles GET /api/matches/{id}/soundtrack?limit=.
func (h *Handler) Soundtrack(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit")
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be an integer", errCodeValidation)
		return
	}
	st, err := h.svc.SharedSoundtrack(r.Context(), auth.UserID(r), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// ListMessages handles GET /api/matches/{id}/messages?limit=.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit")
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be an integer", errCodeValidation)
		return
	}
	msgs, err := h.svc.ListMessages(r.Context(), auth.UserID(r), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

// SendMessage handles POST /api/matches/{id}/messages.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	msg, err := h.svc.SendMessage(r.Context(), auth.UserID(r), chi.URLParam(r, "id"), req.Body)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// CompareUser handles GET /api/compatibility/{userID}.
func (h *Handler) CompareUser(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Compare(r.Context(), auth.UserID(r), chi.URLParam(r, "userID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// CurrentMoment handles GET /api/moments/current. 204 means nothing is playing.
func (h *Handler) CurrentMoment(w http.ResponseWriter, r *http.Request) {
	np, err := h.svc.CurrentMoment(r.Context(), auth.UserID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if np == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, np)
}
