// Package redis implements the cache ports on Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"

	"github.com/ewilliams-labs/duet/internal/core/domain"
	"github.com/ewilliams-labs/duet/internal/core/ports"
)

const (
	profileKeyPrefix = "duet:profile:"
	stateKeyPrefix   = "duet:oauth_state:"
	pingTimeout      = 5 * time.Second
)

// Options configures the connection.
type Options struct {
	Addr       string
	Password   string
	DB         int
	ProfileTTL time.Duration
}

// Cache stores taste profiles as JSON and OAuth states as marker keys,
// both with a TTL.
type Cache struct {
	client     *goredis.Client
	profileTTL time.Duration
}

var (
	_ ports.ProfileCache = (*Cache)(nil)
	_ ports.StateStore   = (*Cache)(nil)
)

// New connects and pings the server.
func New(ctx context.Context, opts Options) (*Cache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: failed to connect to %s: %w", opts.Addr, err)
	}
	return NewWithClient(client, opts.ProfileTTL), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *goredis.Client, profileTTL time.Duration) *Cache {
	return &Cache{client: client, profileTTL: profileTTL}
}

func (c *Cache) Close() error {
	return c.client.Close()
}

func profileKey(userID string) string { return profileKeyPrefix + userID }

func stateKey(state string) string { return stateKeyPrefix + state }

func (c *Cache) GetProfile(ctx context.Context, userID string) (domain.TasteProfile, bool, error) {
	raw, err := c.client.Get(ctx, profileKey(userID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.TasteProfile{}, false, nil
	}
	if err != nil {
		return domain.TasteProfile{}, false, fmt.Errorf("redis: failed to get profile: %w", err)
	}

	var p domain.TasteProfile
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.TasteProfile{}, false, fmt.Errorf("redis: failed to decode profile: %w", err)
	}
	return p, true, nil
}

func (c *Cache) SetProfile(ctx context.Context, p domain.TasteProfile) error {
	if p.UserID == "" {
		return fmt.Errorf("redis: cache profile: %w: missing user", domain.ErrInvalidArgument)
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("redis: failed to encode profile: %w", err)
	}
	if err := c.client.Set(ctx, profileKey(p.UserID), raw, c.profileTTL).Err(); err != nil {
		return fmt.Errorf("redis: failed to set profile: %w", err)
	}
	return nil
}

func (c *Cache) InvalidateProfile(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, profileKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis: failed to invalidate profile: %w", err)
	}
	return nil
}

func (c *Cache) PutState(ctx context.Context, state string, ttl time.Duration) error {
	if err := c.client.Set(ctx, stateKey(state), "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis: failed to store state: %w", err)
	}
	return nil
}

// ConsumeState deletes the key; only the caller whose DEL removed it wins.
func (c *Cache) ConsumeState(ctx context.Context, state string) (bool, error) {
	n, err := c.client.Del(ctx, stateKey(state)).Result()
	if err != nil {
		return false, fmt.Errorf("redis: failed to consume state: %w", err)
	}
	return n == 1, nil
}
