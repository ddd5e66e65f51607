package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("SPOTIFY_CLIENT_ID", "client")
	t.Setenv("SPOTIFY_CLIENT_SECRET", "secret")
	t.Setenv("DUET_AUTH_JWT_SECRET", testSecret)
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, 3, cfg.Spotify.MaxRetries)
	assert.Equal(t, 10*time.Minute, cfg.Auth.StateTTL)
	assert.InDelta(t, 0.4, cfg.Match.Weights.Mood, 1e-9)
	assert.InDelta(t, 0.5, cfg.Match.MinScore, 1e-9)
	assert.Equal(t, "client", cfg.Spotify.ClientID)
}

func TestLoad_EnvOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("DUET_SERVER_ADDR", ":9090")
	t.Setenv("DUET_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("DUET_MATCH_WEIGHTS_GENRE", "0.5")
	t.Setenv("DUET_SPOTIFY_BREAKER_FAILURE_THRESHOLD", "9")
	t.Setenv("DUET_REDIS_PROFILE_TTL", "90s")
	t.Setenv("SPOTIFY_MAX_RETRIES", "5")
	t.Setenv("STORAGE_DRIVER", "mongo")
	t.Setenv("DUET_STORAGE_MONGO_URI", "mongodb://localhost:27017")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.InDelta(t, 0.5, cfg.Match.Weights.Genre, 1e-9)
	assert.Equal(t, uint32(9), cfg.Spotify.Breaker.FailureThreshold)
	assert.Equal(t, 90*time.Second, cfg.Redis.ProfileTTL)
	assert.Equal(t, 5, cfg.Spotify.MaxRetries)
	assert.Equal(t, "mongo", cfg.Storage.Driver)
}

func TestLoad_File(t *testing.T) {
	setRequired(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":7070\"\nworker:\n  workers: 8\n"), 0o600))
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, 8, cfg.Worker.Workers)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "short jwt secret", env: map[string]string{"DUET_AUTH_JWT_SECRET": "short"}},
		{name: "unknown storage driver", env: map[string]string{"STORAGE_DRIVER": "postgres"}},
		{name: "demo user without password", env: map[string]string{"DUET_AUTH_DEMO_USERNAME": "demo"}},
		{name: "min score above one", env: map[string]string{"DUET_MATCH_MIN_SCORE": "1.5"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"DUET_SPOTIFY_CLIENT_ID":            "spotify.client_id",
		"DUET_MATCH_WEIGHTS_AUDIO":          "match.weights.audio",
		"DUET_SPOTIFY_BREAKER_MAX_REQUESTS": "spotify.breaker.max_requests",
		"SPOTIFY_CLIENT_SECRET":             "spotify.client_secret",
		"OLLAMA_HOST":                       "ollama.url",
		"HOME":                              "",
		"DUET_":                             "",
		"DUET_LOG":                          "",
	}
	for in, want := range tests {
		assert.Equal(t, want, envKey(in), in)
	}
}
