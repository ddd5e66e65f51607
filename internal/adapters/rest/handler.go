// Package rest is the HTTP adapter: a chi router exposing the Matchmaker
// use cases as a JSON API.
package rest

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/ewilliams-labs/duet/internal/auth"
	"github.com/ewilliams-labs/duet/internal/core/services"
	"github.com/ewilliams-labs/duet/internal/metrics"
)

// Options configures the HTTP surface.
type Options struct {
	CORSOrigins []string
	// RateLimit is requests per minute per client IP; 0 disables it.
	RateLimit int

	Sessions *auth.Sessions
	// OAuth and Demo are optional; their login routes answer 501 when nil.
	OAuth *auth.SpotifyOAuth
	Demo  *auth.Demo
}

// Handler manages the HTTP interface for our application.
type Handler struct {
	svc      *services.Matchmaker
	sessions *auth.Sessions
	oauth    *auth.SpotifyOAuth
	demo     *auth.Demo
	router   chi.Router
}

// NewHandler initializes the HTTP adapter and sets up routes.
func NewHandler(svc *services.Matchmaker, opts Options) *Handler {
	h := &Handler{
		svc:      svc,
		sessions: opts.Sessions,
		oauth:    opts.OAuth,
		demo:     opts.Demo,
		router:   chi.NewRouter(),
	}
	h.routes(opts)
	return h
}

// ServeHTTP satisfies the http.Handler interface.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) routes(opts Options) {
	r := h.router
	r.Use(requestID)
	r.Use(chimiddleware.RealIP)
	r.Use(accessLog)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "route not found", errCodeNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", errCodeValidation)
	})

	r.Get("/health", h.HealthCheck)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		if opts.RateLimit > 0 {
			r.Use(httprate.LimitByIP(opts.RateLimit, time.Minute))
		}

		r.Route("/auth", func(r chi.Router) {
			r.Get("/spotify/login", h.SpotifyLogin)
			r.Get("/spotify/callback", h.SpotifyCallback)
			r.Post("/demo", h.DemoLogin)
		})

		r.Post("/api/analyze", h.Analyze)
		r.Post("/api/compatibility", h.CompareTracks)

		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate(h.sessions))

			r.Get("/api/me", h.GetMe)
			r.Patch("/api/me", h.UpdateMe)
			r.Get("/api/me/profile", h.GetProfile)
			r.Post("/api/me/profile/sync", h.SyncProfile)
			r.Put("/api/me/library", h.ImportLibrary)

			r.Get("/api/match", h.FindMatches)
			r.Get("/api/matches", h.ListMatches)
			r.Route("/api/matches/{id}", func(r chi.Router) {
				r.Post("/like", h.Like)
				r.Post("/pass", h.Pass)
				r.Get("/soundtrack", h.Soundtrack)
				r.Get("/messages", h.ListMessages)
				r.Post("/messages", h.SendMessage)
			})
			r.Get("/api/compatibility/{userID}", h.CompareUser)
			r.Get("/api/moments/current", h.CurrentMoment)
		})
	})
}

// HealthCheck is a simple endpoint to verify the API is running.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "Duet is live 🎶"})
}
