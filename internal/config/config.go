// Package config loads service configuration from defaults, an optional
// YAML file and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/ewilliams-labs/duet/internal/core/domain"
	"github.com/ewilliams-labs/duet/internal/logging"
)

// ConfigPathEnvVar names the environment variable pointing at a YAML file.
const ConfigPathEnvVar = "CONFIG_PATH"

const envPrefix = "DUET_"

// DefaultConfigPaths are tried in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{"config.yaml", "/etc/duet/config.yaml"}

type Config struct {
	Server  ServerConfig   `koanf:"server"`
	Log     logging.Config `koanf:"log"`
	Spotify SpotifyConfig  `koanf:"spotify"`
	Auth    AuthConfig     `koanf:"auth"`
	Storage StorageConfig  `koanf:"storage"`
	Redis   RedisConfig    `koanf:"redis"`
	Ollama  OllamaConfig   `koanf:"ollama"`
	Worker  WorkerConfig   `koanf:"worker"`
	Match   MatchConfig    `koanf:"match"`
}

type ServerConfig struct {
	Addr              string        `koanf:"addr" validate:"required"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout" validate:"gt=0"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	// RateLimit is requests per minute per client IP; 0 disables it.
	RateLimit int `koanf:"rate_limit" validate:"gte=0"`
}

type SpotifyConfig struct {
	ClientID       string `koanf:"client_id" validate:"required"`
	ClientSecret   string `koanf:"client_secret" validate:"required"`
	RedirectURL    string `koanf:"redirect_url" validate:"omitempty,url"`
	BaseURL        string `koanf:"base_url" validate:"required,url"`
	AuthURL        string `koanf:"auth_url" validate:"required,url"`
	TokenURL       string `koanf:"token_url" validate:"required,url"`
	Market         string `koanf:"market" validate:"omitempty,len=2"`
	MaxRetries     int    `koanf:"max_retries" validate:"gte=1"`
	RetryBackoffMs int    `koanf:"retry_backoff_ms" validate:"gte=1"`
	// Concurrency bounds parallel batch requests.
	Concurrency int           `koanf:"concurrency" validate:"gte=1"`
	Timeout     time.Duration `koanf:"timeout" validate:"gt=0"`
	Breaker     BreakerConfig `koanf:"breaker"`
}

type BreakerConfig struct {
	MaxRequests uint32        `koanf:"max_requests" validate:"gte=1"`
	Interval    time.Duration `koanf:"interval"`
	Timeout     time.Duration `koanf:"timeout" validate:"gt=0"`
	// FailureThreshold is the consecutive failure count that opens the breaker.
	FailureThreshold uint32 `koanf:"failure_threshold" validate:"gte=1"`
}

type AuthConfig struct {
	JWTSecret    string        `koanf:"jwt_secret" validate:"required,min=32"`
	SessionTTL   time.Duration `koanf:"session_ttl" validate:"gt=0"`
	StateTTL     time.Duration `koanf:"state_ttl" validate:"gt=0"`
	DemoUsername string        `koanf:"demo_username" validate:"required_with=DemoPassword"`
	DemoPassword string        `koanf:"demo_password" validate:"required_with=DemoUsername"`
}

type StorageConfig struct {
	Driver        string `koanf:"driver" validate:"oneof=sqlite mongo"`
	SQLitePath    string `koanf:"sqlite_path" validate:"required_if=Driver sqlite"`
	MongoURI      string `koanf:"mongo_uri" validate:"required_if=Driver mongo"`
	MongoDatabase string `koanf:"mongo_database" validate:"required_if=Driver mongo"`
}

// RedisConfig enables the Redis cache when Addr is set.
type RedisConfig struct {
	Addr       string        `koanf:"addr"`
	Password   string        `koanf:"password"`
	DB         int           `koanf:"db" validate:"gte=0"`
	ProfileTTL time.Duration `koanf:"profile_ttl" validate:"gt=0"`
}

// OllamaConfig enables vibe interpretation when URL is set.
type OllamaConfig struct {
	URL     string        `koanf:"url" validate:"omitempty,url"`
	Model   string        `koanf:"model"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

type WorkerConfig struct {
	Workers   int `koanf:"workers" validate:"gte=1"`
	QueueSize int `koanf:"queue_size" validate:"gte=1"`
}

type MatchConfig struct {
	Weights      domain.Weights `koanf:"weights"`
	MinScore     float64        `koanf:"min_score" validate:"gte=0,lte=1"`
	DefaultLimit int            `koanf:"default_limit" validate:"gte=1"`
	MaxLimit     int            `koanf:"max_limit" validate:"gtefield=DefaultLimit"`
	TopTracks    int            `koanf:"top_tracks" validate:"gte=1,lte=50"`
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 15 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			CORSOrigins:       []string{"http://localhost:5173"},
			RateLimit:         120,
		},
		Log: logging.Config{Level: "info", Format: "json"},
		Spotify: SpotifyConfig{
			BaseURL:        "https://api.spotify.com/v1",
			AuthURL:        "https://accounts.spotify.com/authorize",
			TokenURL:       "https://accounts.spotify.com/api/token",
			RedirectURL:    "http://localhost:8080/auth/spotify/callback",
			Market:         "US",
			MaxRetries:     3,
			RetryBackoffMs: 500,
			Concurrency:    4,
			Timeout:        15 * time.Second,
			Breaker: BreakerConfig{
				MaxRequests:      1,
				Interval:         time.Minute,
				Timeout:          30 * time.Second,
				FailureThreshold: 5,
			},
		},
		Auth: AuthConfig{
			SessionTTL: 24 * time.Hour,
			StateTTL:   10 * time.Minute,
		},
		Storage: StorageConfig{
			Driver:        "sqlite",
			SQLitePath:    "duet.db",
			MongoDatabase: "duet",
		},
		Redis:  RedisConfig{ProfileTTL: time.Hour},
		Ollama: OllamaConfig{Model: "deepseek-r1:8b", Timeout: 30 * time.Second},
		Worker: WorkerConfig{Workers: 2, QueueSize: 100},
		Match: MatchConfig{
			Weights:      domain.DefaultWeights(),
			MinScore:     domain.DefaultMinScore,
			DefaultLimit: 20,
			MaxLimit:     100,
			TopTracks:    50,
		},
	}
}

// Load builds the configuration. Precedence: environment > file > defaults.
func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(&defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	if err := splitList(k, "server.cors_origins"); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	err := validator.New(validator.WithRequiredStructEnabled()).Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("config: invalid: %s", strings.Join(msgs, "; "))
	}
	return fmt.Errorf("config: invalid: %w", err)
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// legacyEnv maps unprefixed variables the service has always honoured.
var legacyEnv = map[string]string{
	"SPOTIFY_CLIENT_ID":        "spotify.client_id",
	"SPOTIFY_CLIENT_SECRET":    "spotify.client_secret",
	"SPOTIFY_REDIRECT_URL":     "spotify.redirect_url",
	"SPOTIFY_MAX_RETRIES":      "spotify.max_retries",
	"SPOTIFY_RETRY_BACKOFF_MS": "spotify.retry_backoff_ms",
	"STORAGE_DRIVER":           "storage.driver",
	"OLLAMA_HOST":              "ollama.url",
	"REDIS_ADDR":               "redis.addr",
	"LOG_LEVEL":                "log.level",
	"LOG_FORMAT":               "log.format",
}

// nestedSections are two-level section prefixes under DUET_.
var nestedSections = []string{"spotify_breaker_", "match_weights_"}

// envKey maps DUET_SECTION_FIELD to section.field. Unknown variables
// return "" so koanf skips them.
func envKey(key string) string {
	if path, ok := legacyEnv[key]; ok {
		return path
	}
	if !strings.HasPrefix(key, envPrefix) {
		return ""
	}

	rest := strings.ToLower(strings.TrimPrefix(key, envPrefix))
	for _, nested := range nestedSections {
		if strings.HasPrefix(rest, nested) {
			parts := strings.SplitN(strings.TrimSuffix(nested, "_"), "_", 2)
			return parts[0] + "." + parts[1] + "." + strings.TrimPrefix(rest, nested)
		}
	}

	section, field, ok := strings.Cut(rest, "_")
	if !ok || field == "" {
		return ""
	}
	return section + "." + field
}

func splitList(k *koanf.Koanf, path string) error {
	s, ok := k.Get(path).(string)
	if !ok {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if err := k.Set(path, out); err != nil {
		return fmt.Errorf("config: set %s: %w", path, err)
	}
	return nil
}
