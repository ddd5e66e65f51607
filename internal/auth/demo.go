package auth

import (
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Demo checks the single configured demo credential pair. The password is
// hashed once at startup.
type Demo struct {
	username     string
	passwordHash []byte
}

// NewDemo returns nil when no demo credentials are configured.
func NewDemo(username, password string) (*Demo, error) {
	if username == "" && password == "" {
		return nil, nil
	}
	if username == "" || password == "" {
		return nil, fmt.Errorf("auth: demo login needs both username and password")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to hash demo password: %w", err)
	}
	return &Demo{username: username, passwordHash: hash}, nil
}

// Username is the configured demo account name.
func (d *Demo) Username() string {
	return d.username
}

// Verify reports whether the credentials match. Both comparisons always run.
func (d *Demo) Verify(username, password string) bool {
	if d == nil {
		return false
	}
	usernameMatch := subtle.ConstantTimeCompare([]byte(username), []byte(d.username)) == 1
	passwordMatch := bcrypt.CompareHashAndPassword(d.passwordHash, []byte(password)) == nil
	return usernameMatch && passwordMatch
}
