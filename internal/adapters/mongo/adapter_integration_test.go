//go:build integration

package mongo

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

const mongoImage = "mongo:7"

func skipIfNoDocker(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if exec.CommandContext(ctx, "docker", "info").Run() != nil {
		t.Skip("Skipping test: Docker not available")
	}
}

func newContainerAdapter(t *testing.T) *Adapter {
	t.Helper()
	skipIfNoDocker(t)
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        mongoImage,
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("27017/tcp"),
				wait.ForLog("Waiting for connections"),
			).WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "27017/tcp")
	require.NoError(t, err)

	a, err := NewAdapter(ctx, fmt.Sprintf("mongodb://%s:%s", host, port.Port()), "duet_test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestMongoAdapter_RoundTrips(t *testing.T) {
	a := newContainerAdapter(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("users", func(t *testing.T) {
		u, err := domain.NewUser("u1", "sp1", "Sam", now)
		require.NoError(t, err)
		stored, err := a.UpsertUserBySpotifyID(ctx, u)
		require.NoError(t, err)
		assert.Equal(t, "u1", stored.ID)

		stored.Location = &domain.Location{Latitude: 1, Longitude: 2}
		require.NoError(t, a.UpdateUser(ctx, stored))

		relogin, _ := domain.NewUser("ignored", "sp1", "Sam R", now)
		relogin.Token = &domain.SpotifyToken{AccessToken: "tok", Expiry: now.Add(time.Hour)}
		again, err := a.UpsertUserBySpotifyID(ctx, relogin)
		require.NoError(t, err)
		assert.Equal(t, "u1", again.ID)
		assert.Equal(t, "Sam R", again.DisplayName)
		require.NotNil(t, again.Location)
		require.NotNil(t, again.Token)
		assert.Equal(t, "tok", again.Token.AccessToken)

		clash, _ := domain.NewUser("u1", "sp-other", "Clash", now)
		_, err = a.UpsertUserBySpotifyID(ctx, clash)
		assert.ErrorIs(t, err, domain.ErrConflict)

		_, err = a.GetUser(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		u2, _ := domain.NewUser("u2", "sp2", "Alex", now)
		_, err = a.UpsertUserBySpotifyID(ctx, u2)
		require.NoError(t, err)
		require.NoError(t, a.SaveProfile(ctx, domain.TasteProfile{UserID: "u2", TrackCount: 3}))

		candidates, err := a.ListCandidates(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, candidates, 1)
		assert.Equal(t, 3, candidates[0].Profile.TrackCount)
	})

	t.Run("library", func(t *testing.T) {
		library := domain.Playlist{ID: "top", Name: "Top", OwnerID: "u1", Tracks: []domain.Track{
			{ID: "t2", Title: "Two", Artists: []domain.ArtistRef{{ID: "a1", Name: "A"}}, FeatureSource: domain.FeatureSourceEstimated},
			{ID: "t1", Title: "One", Artists: []domain.ArtistRef{{ID: "a1", Name: "A"}}, FeatureSource: domain.FeatureSourceSpotify, Features: domain.AudioFeatures{Energy: 0.4}},
		}}
		require.NoError(t, a.SaveLibrary(ctx, library, []domain.Artist{{ID: "a1", Name: "A", Genres: []string{"indie"}}}))
		require.NoError(t, a.UpdateTrackFeatures(ctx, "t2", domain.AudioFeatures{Energy: 0.9}, domain.FeatureSourcePreview))
		require.NoError(t, a.SaveLibrary(ctx, library, nil))

		got, artists, err := a.GetLibrary(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, got.Tracks, 2)
		assert.Equal(t, "t2", got.Tracks[0].ID)
		assert.Equal(t, domain.FeatureSourcePreview, got.Tracks[0].FeatureSource)
		assert.InDelta(t, 0.9, got.Tracks[0].Features.Energy, 1e-9)
		require.Len(t, artists, 1)
		assert.Equal(t, []string{"indie"}, artists[0].Genres)

		assert.ErrorIs(t, a.UpdateTrackFeatures(ctx, "missing", domain.AudioFeatures{}, domain.FeatureSourcePreview), domain.ErrNotFound)

		other := domain.Playlist{ID: "p2", OwnerID: "u2", Tracks: library.Tracks[:1]}
		require.NoError(t, a.SaveLibrary(ctx, other, nil))
		owners, err := a.ListTrackOwners(ctx, library.Tracks[0].ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"u1", "u2"}, owners)
	})

	t.Run("matches and messages", func(t *testing.T) {
		m, err := domain.NewMatch("m1", "u2", "u1", domain.Compatibility{Score: 0.6}, now)
		require.NoError(t, err)
		_, err = a.UpsertMatch(ctx, m)
		require.NoError(t, err)

		// Both reads happen before either write.
		_, err = a.GetMatch(ctx, "m1")
		require.NoError(t, err)
		_, err = a.GetMatch(ctx, "m1")
		require.NoError(t, err)

		first, err := a.RecordDecision(ctx, "m1", "u1", domain.DecisionLike, now)
		require.NoError(t, err)
		assert.Equal(t, domain.MatchPending, first.Status)
		second, err := a.RecordDecision(ctx, "m1", "u2", domain.DecisionLike, now)
		require.NoError(t, err)
		assert.Equal(t, domain.DecisionLike, second.DecisionA)
		assert.Equal(t, domain.DecisionLike, second.DecisionB)
		assert.Equal(t, domain.MatchLiked, second.Status)
		assert.True(t, second.Mutual)

		_, err = a.RecordDecision(ctx, "m1", "u9", domain.DecisionLike, now)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		again, _ := domain.NewMatch("m-new", "u1", "u2", domain.Compatibility{Score: 0.7}, now)
		stored, err := a.UpsertMatch(ctx, again)
		require.NoError(t, err)
		assert.Equal(t, "m1", stored.ID)
		assert.True(t, stored.Mutual)
		assert.InDelta(t, 0.7, stored.Score, 1e-9)

		liked, err := a.ListMatches(ctx, "u2", domain.MatchLiked)
		require.NoError(t, err)
		require.Len(t, liked, 1)

		for i, body := range []string{"one", "two", "three"} {
			require.NoError(t, a.AddMessage(ctx, domain.Message{
				ID: fmt.Sprintf("msg-%d", i), MatchID: "m1", SenderID: "u1", Body: body, SentAt: now.Add(time.Duration(i) * time.Second),
			}))
		}
		assert.ErrorIs(t, a.AddMessage(ctx, domain.Message{ID: "msg-0", MatchID: "m1"}), domain.ErrConflict)

		latest, err := a.ListMessages(ctx, "m1", 2)
		require.NoError(t, err)
		require.Len(t, latest, 2)
		assert.Equal(t, "two", latest[0].Body)
		assert.Equal(t, "three", latest[1].Body)
	})
}
