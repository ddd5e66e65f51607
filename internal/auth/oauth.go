package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/ewilliams-labs/duet/internal/core/domain"
	"github.com/ewilliams-labs/duet/internal/core/ports"
)

// ErrInvalidState means the OAuth callback carried an unknown, expired or
// already used state.
var ErrInvalidState = errors.New("auth: invalid oauth state")

// ErrCodeRejected means Spotify refused the authorization code.
var ErrCodeRejected = errors.New("auth: authorization code rejected")

// Scopes requested at Spotify sign-in.
var spotifyScopes = []string{
	"user-read-email",
	"user-read-private",
	"user-top-read",
	"playlist-read-private",
	"user-read-currently-playing",
}

// SpotifyOAuthConfig holds the app registration and endpoints.
type SpotifyOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	StateTTL     time.Duration
}

// SpotifyOAuth runs the authorization-code flow with single-use states.
type SpotifyOAuth struct {
	config   *oauth2.Config
	states   ports.StateStore
	stateTTL time.Duration
}

func NewSpotifyOAuth(cfg SpotifyOAuthConfig, states ports.StateStore) *SpotifyOAuth {
	ttl := cfg.StateTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &SpotifyOAuth{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       spotifyScopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		states:   states,
		stateTTL: ttl,
	}
}

// LoginURL stores a fresh state and returns the Spotify consent URL.
func (o *SpotifyOAuth) LoginURL(ctx context.Context) (string, error) {
	state, err := randomState()
	if err != nil {
		return "", err
	}
	if err := o.states.PutState(ctx, state, o.stateTTL); err != nil {
		return "", fmt.Errorf("auth: failed to store state: %w", err)
	}
	return o.config.AuthCodeURL(state), nil
}

// Exchange consumes the state and trades the code for a user token.
func (o *SpotifyOAuth) Exchange(ctx context.Context, state, code string) (domain.SpotifyToken, error) {
	if state == "" || code == "" {
		return domain.SpotifyToken{}, fmt.Errorf("%w: missing state or code", ErrInvalidState)
	}
	ok, err := o.states.ConsumeState(ctx, state)
	if err != nil {
		return domain.SpotifyToken{}, fmt.Errorf("auth: failed to check state: %w", err)
	}
	if !ok {
		return domain.SpotifyToken{}, ErrInvalidState
	}

	tok, err := o.config.Exchange(ctx, code)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode < http.StatusInternalServerError {
			return domain.SpotifyToken{}, fmt.Errorf("%w: %w", ErrCodeRejected, err)
		}
		return domain.SpotifyToken{}, fmt.Errorf("auth: code exchange failed: %w: %w", ports.ErrUpstreamUnavailable, err)
	}
	return domain.SpotifyToken{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	}, nil
}

func randomState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("auth: failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
