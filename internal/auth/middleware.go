package auth

import (
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/ewilliams-labs/duet/internal/logging"
)

// Authenticate rejects requests without a valid bearer session token and
// puts the user ID on the request context.
func Authenticate(sessions *Sessions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				unauthorized(w, "missing bearer token")
				return
			}
			claims, err := sessions.Parse(raw)
			if err != nil {
				logging.Ctx(r.Context()).Debug().Err(err).Msg("rejected session token")
				unauthorized(w, "invalid or expired session")
				return
			}
			ctx := logging.ContextWithUserID(r.Context(), claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserID returns the authenticated user of the request, or "".
func UserID(r *http.Request) string {
	return logging.UserIDFromContext(r.Context())
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="duet"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": "UNAUTHORIZED"})
}
