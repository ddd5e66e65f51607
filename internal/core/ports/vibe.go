package ports

import (
	"context"

	"github.com/ewilliams-labs/duet/internal/core/domain"
)

// VibeInterpreter turns a free-text description of what a user is looking
// for into filter constraints.
type VibeInterpreter interface {
	InterpretVibe(ctx context.Context, text string) (domain.VibeFilter, error)
}
