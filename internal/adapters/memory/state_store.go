package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ewilliams-labs/duet/internal/core/ports"
)

// StateStore keeps OAuth states in a map. Expired states are dropped on
// access and by a periodic sweep on Put.
type StateStore struct {
	mu        sync.Mutex
	states    map[string]time.Time
	now       func() time.Time
	lastSweep time.Time
}

var _ ports.StateStore = (*StateStore)(nil)

const sweepInterval = time.Minute

func NewStateStore() *StateStore {
	return &StateStore{states: make(map[string]time.Time), now: time.Now}
}

func (s *StateStore) PutState(_ context.Context, state string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) >= sweepInterval {
		for k, exp := range s.states {
			if !now.Before(exp) {
				delete(s.states, k)
			}
		}
		s.lastSweep = now
	}
	s.states[state] = now.Add(ttl)
	return nil
}

func (s *StateStore) ConsumeState(_ context.Context, state string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.states[state]
	if !ok {
		return false, nil
	}
	delete(s.states, state)
	return s.now().Before(exp), nil
}
