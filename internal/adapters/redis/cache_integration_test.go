//go:build integration

package redis

import (
	"context"
	"fmt"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ewilliams-labs/duet/internal/core/domain"
)

func newContainerCache(t *testing.T) *Cache {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if exec.CommandContext(ctx, "docker", "info").Run() != nil {
		t.Skip("Skipping test: Docker not available")
	}

	container, err := testcontainers.GenericContainer(context.Background(), testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(context.Background())
	require.NoError(t, err)
	port, err := container.MappedPort(context.Background(), "6379/tcp")
	require.NoError(t, err)

	c, err := New(context.Background(), Options{Addr: fmt.Sprintf("%s:%s", host, port.Port()), ProfileTTL: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCache_Profiles(t *testing.T) {
	c := newContainerCache(t)
	ctx := context.Background()

	_, ok, err := c.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.SetProfile(ctx, domain.TasteProfile{UserID: "u1", TrackCount: 4}))
	got, ok, err := c.GetProfile(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 4, got.TrackCount)

	ttl, err := c.client.TTL(ctx, profileKey("u1")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, c.InvalidateProfile(ctx, "u1"))
	_, ok, _ = c.GetProfile(ctx, "u1")
	assert.False(t, ok)
}

func TestCache_StateSingleUse(t *testing.T) {
	c := newContainerCache(t)
	ctx := context.Background()

	require.NoError(t, c.PutState(ctx, "s1", time.Minute))
	ok, err := c.ConsumeState(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.ConsumeState(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)
}
