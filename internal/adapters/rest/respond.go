package rest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/ewilliams-labs/duet/internal/auth"
	"github.com/ewilliams-labs/duet/internal/core/domain"
	"github.com/ewilliams-labs/duet/internal/core/ports"
	"github.com/ewilliams-labs/duet/internal/core/services"
	"github.com/ewilliams-labs/duet/internal/logging"
)

const (
	errCodeValidation       = "VALIDATION_ERROR"
	errCodeNotFound         = "NOT_FOUND"
	errCodeUnauthorized     = "UNAUTHORIZED"
	errCodeConflict         = "CONFLICT"
	errCodeUpstream         = "UPSTREAM_UNAVAILABLE"
	errCodeNoConfidentMatch = "NO_CONFIDENT_MATCH"
	errCodeNotMutual        = "NOT_MUTUAL"
	errCodeInsufficientData = "INSUFFICIENT_DATA"
	errCodeNotImplemented   = "NOT_IMPLEMENTED"
	errCodeUnsupportedMedia = "UNSUPPORTED_MEDIA_TYPE"
	errCodeInternal         = "INTERNAL"
)

const maxBodyBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

// writeServiceError maps domain and port errors onto HTTP responses.
// Anything unrecognized is logged and reported as a 500 without detail.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var noMatch *ports.NoConfidentMatchError
	switch {
	case errors.As(err, &noMatch):
		writeError(w, http.StatusUnprocessableEntity, noMatch.Error(), errCodeNoConfidentMatch)
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrDuplicateISRC):
		writeError(w, http.StatusBadRequest, err.Error(), errCodeValidation)
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrNotParticipant):
		writeError(w, http.StatusNotFound, "not found", errCodeNotFound)
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error(), errCodeConflict)
	case errors.Is(err, domain.ErrNotMutual):
		writeError(w, http.StatusConflict, "match is not mutual", errCodeNotMutual)
	case errors.Is(err, domain.ErrInsufficientData):
		writeError(w, http.StatusUnprocessableEntity, "not enough listening data", errCodeInsufficientData)
	case errors.Is(err, ports.ErrNoConfidentMatch):
		writeError(w, http.StatusUnprocessableEntity, ports.ErrNoConfidentMatch.Error(), errCodeNoConfidentMatch)
	case errors.Is(err, ports.ErrTokenExpired), errors.Is(err, auth.ErrCodeRejected):
		writeError(w, http.StatusUnauthorized, "spotify authorization expired, sign in again", errCodeUnauthorized)
	case errors.Is(err, auth.ErrInvalidState):
		writeError(w, http.StatusBadRequest, "invalid or expired login state", errCodeValidation)
	case errors.Is(err, services.ErrVibeUnavailable):
		writeError(w, http.StatusNotImplemented, "vibe search is not configured", errCodeNotImplemented)
	case errors.Is(err, ports.ErrUpstreamUnavailable):
		writeError(w, http.StatusServiceUnavailable, "spotify is unavailable, try again later", errCodeUpstream)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "upstream timed out", errCodeUpstream)
	default:
		logging.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error", errCodeInternal)
	}
}

func isJSONContentType(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	return err == nil && mediaType == "application/json"
}

// decodeBody reads a JSON body into v and validates it. It writes the
// error response itself and reports whether the handler may continue.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if !isJSONContentType(r) {
		writeError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json", errCodeUnsupportedMedia)
		return false
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		msg := "invalid request body"
		if errors.Is(err, io.EOF) {
			msg = "request body is empty"
		}
		writeError(w, http.StatusBadRequest, msg, errCodeValidation)
		return false
	}

	if err := validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err), errCodeValidation)
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request body"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
