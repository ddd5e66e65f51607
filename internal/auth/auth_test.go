package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/ewilliams-labs/duet/internal/adapters/memory"
	"github.com/ewilliams-labs/duet/internal/core/ports"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestNewSessions_Validation(t *testing.T) {
	_, err := NewSessions("short", time.Hour)
	assert.Error(t, err)

	_, err = NewSessions(testSecret, 0)
	assert.Error(t, err)
}

func TestSessions_IssueAndParse(t *testing.T) {
	s, err := NewSessions(testSecret, time.Hour)
	require.NoError(t, err)

	token, expires, err := s.Issue("user-1", true)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	claims, err := s.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.True(t, claims.Demo)

	_, _, err = s.Issue("", false)
	assert.Error(t, err)
}

func TestSessions_Rejects(t *testing.T) {
	s, err := NewSessions(testSecret, time.Hour)
	require.NoError(t, err)
	valid, _, err := s.Issue("user-1", false)
	require.NoError(t, err)

	other, err := NewSessions("ffffffffffffffffffffffffffffffff", time.Hour)
	require.NoError(t, err)
	foreign, _, err := other.Issue("user-1", false)
	require.NoError(t, err)

	expiredSessions, err := NewSessions(testSecret, time.Minute)
	require.NoError(t, err)
	expiredSessions.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, _, err := expiredSessions.Issue("user-1", false)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject: "user-1", Issuer: issuer, ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-jwt"},
		{"wrong secret", foreign},
		{"expired", expired},
		{"alg none", none},
		{"tampered", valid + "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Parse(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestDemo(t *testing.T) {
	d, err := NewDemo("", "")
	require.NoError(t, err)
	assert.Nil(t, d)
	assert.False(t, d.Verify("", ""), "nil demo accepts nothing")

	_, err = NewDemo("demo", "")
	assert.Error(t, err)

	d, err = NewDemo("demo", "listen-together")
	require.NoError(t, err)
	assert.Equal(t, "demo", d.Username())
	assert.True(t, d.Verify("demo", "listen-together"))
	assert.False(t, d.Verify("demo", "wrong"))
	assert.False(t, d.Verify("Demo", "listen-together"))
}

func TestAuthenticate(t *testing.T) {
	s, err := NewSessions(testSecret, time.Hour)
	require.NoError(t, err)
	token, _, err := s.Issue("user-42", false)
	require.NoError(t, err)

	var seen string
	h := Authenticate(s)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserID(r)
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantUser   string
	}{
		{"valid", "Bearer " + token, http.StatusNoContent, "user-42"},
		{"lowercase scheme", "bearer " + token, http.StatusNoContent, "user-42"},
		{"missing", "", http.StatusUnauthorized, ""},
		{"basic", "Basic abc", http.StatusUnauthorized, ""},
		{"invalid", "Bearer nope", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantUser, seen)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Contains(t, rec.Body.String(), `"code":"UNAUTHORIZED"`)
			}
		})
	}
}

func TestSpotifyOAuth_Flow(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		user, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "client-id", user)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","token_type":"Bearer","refresh_token":"rt","expires_in":3600}`))
	}))
	defer tokenServer.Close()

	states := memory.NewStateStore()
	o := NewSpotifyOAuth(SpotifyOAuthConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:8080/auth/spotify/callback",
		AuthURL:      "https://accounts.example.com/authorize",
		TokenURL:     tokenServer.URL,
	}, states)

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, tokenServer.Client())

	loginURL, err := o.LoginURL(ctx)
	require.NoError(t, err)
	u, err := url.Parse(loginURL)
	require.NoError(t, err)
	state := u.Query().Get("state")
	require.NotEmpty(t, state)
	assert.Contains(t, u.Query().Get("scope"), "user-top-read")
	assert.Equal(t, "code", u.Query().Get("response_type"))

	tok, err := o.Exchange(ctx, state, "good-code")
	require.NoError(t, err)
	assert.Equal(t, "at", tok.AccessToken)
	assert.Equal(t, "rt", tok.RefreshToken)
	assert.True(t, tok.Valid(time.Now()))

	_, err = o.Exchange(ctx, state, "good-code")
	assert.ErrorIs(t, err, ErrInvalidState, "state is single use")

	_, err = o.Exchange(ctx, "forged", "good-code")
	assert.ErrorIs(t, err, ErrInvalidState)

	state2URL, err := o.LoginURL(ctx)
	require.NoError(t, err)
	u2, _ := url.Parse(state2URL)
	_, err = o.Exchange(ctx, u2.Query().Get("state"), "bad-code")
	assert.ErrorIs(t, err, ErrCodeRejected)
}

func TestSpotifyOAuth_UpstreamDown(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer tokenServer.Close()

	states := memory.NewStateStore()
	o := NewSpotifyOAuth(SpotifyOAuthConfig{ClientID: "id", ClientSecret: "secret", AuthURL: "https://a.example.com", TokenURL: tokenServer.URL}, states)
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, tokenServer.Client())
	require.NoError(t, states.PutState(ctx, "s", time.Minute))

	_, err := o.Exchange(ctx, "s", "code")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrUpstreamUnavailable))
}
