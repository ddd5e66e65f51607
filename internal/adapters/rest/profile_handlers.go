package rest

import (
	"net/http"
	"strconv"

	"github.com/ewilliams-labs/duet/internal/auth"
	"github.com/ewilliams-labs/duet/internal/core/domain"
	"github.com/ewilliams-labs/duet/internal/core/services"
)

type libraryBody struct {
	Tracks  []domain.Track  `json:"tracks" validate:"required,min=1,max=1000"`
	Artists []domain.Artist `json:"artists" validate:"max=2000"`
}

type compareTracksRequest struct {
	A libraryBody `json:"a"`
	B libraryBody `json:"b"`
}

type compareTracksResponse struct {
	domain.Compatibility
	ProfileA domain.TasteProfile `json:"profile_a"`
	ProfileB domain.TasteProfile `json:"profile_b"`
}

type locationBody struct {
	Lat *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lon *float64 `json:"lon" validate:"required,gte=-180,lte=180"`
}

type anthemBody struct {
	Title  string `json:"title" validate:"required,max=200"`
	Artist string `json:"artist" validate:"max=200"`
}

type updateMeRequest struct {
	DisplayName      *string       `json:"display_name" validate:"omitempty,min=1,max=100"`
	Location         *locationBody `json:"location"`
	ClearLocation    bool          `json:"clear_location"`
	SourcePlaylistID *string       `json:"source_playlist_id" validate:"omitempty,max=64,alphanum"`
	Anthem           *anthemBody   `json:"anthem"`
}

// Analyze handles POST /api/analyze: a taste profile from posted tracks.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req libraryBody
	if !decodeBody(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, h.svc.AnalyzeTracks(req.Tracks, req.Artists))
}

// CompareTracks handles POST /api/compatibility: scores two posted track sets.
func (h *Handler) CompareTracks(w http.ResponseWriter, r *http.Request) {
	var req compareTracksRequest
	if !decodeBody(w, r, &req) {
		return
	}
	a := h.svc.AnalyzeTracks(req.A.Tracks, req.A.Artists)
	b := h.svc.AnalyzeTracks(req.B.Tracks, req.B.Artists)
	writeJSON(w, http.StatusOK, compareTracksResponse{
		Compatibility: h.svc.CompareProfiles(a, b),
		ProfileA:      a,
		ProfileB:      b,
	})
}

// GetMe handles GET /api/me.
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.GetUser(r.Context(), auth.UserID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// UpdateMe handles PATCH /api/me.
func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var req updateMeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ClearLocation && req.Location != nil {
		writeError(w, http.StatusBadRequest, "location and clear_location are mutually exclusive", errCodeValidation)
		return
	}

	upd := services.UserUpdate{
		DisplayName:      req.DisplayName,
		ClearLocation:    req.ClearLocation,
		SourcePlaylistID: req.SourcePlaylistID,
	}
	if req.Location != nil {
		upd.Location = &domain.Location{Latitude: *req.Location.Lat, Longitude: *req.Location.Lon}
	}
	if req.Anthem != nil {
		upd.AnthemTitle = req.Anthem.Title
		upd.AnthemArtist = req.Anthem.Artist
	}

	u, err := h.svc.UpdateUser(r.Context(), auth.UserID(r), upd)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// GetProfile handles GET /api/me/profile.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.GetProfile(r.Context(), auth.UserID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// SyncProfile handles POST /api/me/profile/sync. With ?async=true the sync
// runs on the worker pool and the response is 202.
func (h *Handler) SyncProfile(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r)

	if raw := r.URL.Query().Get("async"); raw != "" {
		async, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "async must be a boolean", errCodeValidation)
			return
		}
		if async {
			if !h.svc.QueueProfileSync(userID) {
				writeError(w, http.StatusServiceUnavailable, "sync queue is full, try again later", errCodeUpstream)
				return
			}
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
			return
		}
	}

	p, err := h.svc.SyncProfile(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ImportLibrary handles PUT /api/me/library.
func (h *Handler) ImportLibrary(w http.ResponseWriter, r *http.Request) {
	var req libraryBody
	if !decodeBody(w, r, &req) {
		return
	}
	p, err := h.svc.ImportLibrary(r.Context(), auth.UserID(r), req.Tracks, req.Artists)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
