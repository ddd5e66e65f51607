// Package memory provides in-process implementations of the cache ports,
// used when no Redis address is configured.
package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/ewilliams-labs/duet/internal/core/domain"
	"github.com/ewilliams-labs/duet/internal/core/ports"
)

const maxCachedProfiles = 10_000

// ProfileCache keeps taste profiles in a bounded ristretto cache. Every
// entry costs 1, so the cache holds at most maxCachedProfiles profiles.
type ProfileCache struct {
	cache *ristretto.Cache[string, domain.TasteProfile]
	ttl   time.Duration
}

var _ ports.ProfileCache = (*ProfileCache)(nil)

func NewProfileCache(ttl time.Duration) (*ProfileCache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, domain.TasteProfile]{
		NumCounters: 10 * maxCachedProfiles,
		MaxCost:     maxCachedProfiles,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("memory: failed to create profile cache: %w", err)
	}
	return &ProfileCache{cache: cache, ttl: ttl}, nil
}

func (c *ProfileCache) GetProfile(_ context.Context, userID string) (domain.TasteProfile, bool, error) {
	p, ok := c.cache.Get(userID)
	return p, ok, nil
}

func (c *ProfileCache) SetProfile(_ context.Context, p domain.TasteProfile) error {
	if p.UserID == "" {
		return fmt.Errorf("memory: cache profile: %w: missing user", domain.ErrInvalidArgument)
	}
	if c.ttl > 0 {
		c.cache.SetWithTTL(p.UserID, p, 1, c.ttl)
	} else {
		c.cache.Set(p.UserID, p, 1)
	}
	// Make the write visible to the next Get.
	c.cache.Wait()
	return nil
}

func (c *ProfileCache) InvalidateProfile(_ context.Context, userID string) error {
	c.cache.Del(userID)
	return nil
}

// Close stops the cache's background goroutines.
func (c *ProfileCache) Close() {
	c.cache.Close()
}
