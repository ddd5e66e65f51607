package ports

import (
	"context"
	"time"

	"github.com/ewilliams-labs/duet/internal/core/domain"
)

// ProfileCache keeps recently computed taste profiles.
type ProfileCache interface {
	// GetProfile reports false when nothing is cached for the user.
	GetProfile(ctx context.Context, userID string) (domain.TasteProfile, bool, error)
	SetProfile(ctx context.Context, p domain.TasteProfile) error
	InvalidateProfile(ctx context.Context, userID string) error
}

// StateStore holds OAuth state values between login and callback.
type StateStore interface {
	PutState(ctx context.Context, state string, ttl time.Duration) error
	// ConsumeState reports whether the state existed and removes it, so
	// each state is accepted at most once.
	ConsumeState(ctx context.Context, state string) (bool, error)
}
