// Package auth issues and checks session tokens and runs the Spotify and
// demo sign-in flows.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer          = "duet"
	minSecretLength = 32
)

// ErrInvalidToken is returned for any session token that fails validation.
var ErrInvalidToken = errors.New("auth: invalid session token")

// Claims are the session token claims. The subject is the user ID.
type Claims struct {
	Demo bool `json:"demo,omitempty"`
	jwt.RegisteredClaims
}

// Sessions signs and validates HS256 session tokens.
type Sessions struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSessions(secret string, ttl time.Duration) (*Sessions, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("auth: jwt secret must be at least %d characters", minSecretLength)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("auth: session ttl must be positive")
	}
	return &Sessions{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue returns a signed token for the user and its expiry.
func (s *Sessions) Issue(userID string, demo bool) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, fmt.Errorf("auth: cannot issue a session without a user")
	}
	now := s.now()
	expires := now.Add(s.ttl)
	claims := &Claims{
		Demo: demo,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: failed to sign token: %w", err)
	}
	return signed, expires, nil
}

// Parse validates the token and returns its claims.
func (s *Sessions) Parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
