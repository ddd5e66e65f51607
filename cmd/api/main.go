package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ewilliams-labs/duet/internal/adapters/memory"
	"github.com/ewilliams-labs/duet/internal/adapters/mongo"
	"github.com/ewilliams-labs/duet/internal/adapters/ollama"
	"github.com/ewilliams-labs/duet/internal/adapters/redis"
	"github.com/ewilliams-labs/duet/internal/adapters/rest"
	"github.com/ewilliams-labs/duet/internal/adapters/spotify"
	"github.com/ewilliams-labs/duet/internal/adapters/sqlite"
	"github.com/ewilliams-labs/duet/internal/auth"
	"github.com/ewilliams-labs/duet/internal/config"
	"github.com/ewilliams-labs/duet/internal/core/ports"
	"github.com/ewilliams-labs/duet/internal/core/services"
	"github.com/ewilliams-labs/duet/internal/logging"
	"github.com/ewilliams-labs/duet/internal/worker"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("duet api exited")
	}
}

func run() error {
	// 1. Configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Init(cfg.Log)
	log := logging.Component("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Driven adapters
	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	profiles, states, closeCache, err := openCache(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer closeCache()

	spotifyClient := spotify.NewClient(spotify.Options{
		BaseURL:      cfg.Spotify.BaseURL,
		TokenURL:     cfg.Spotify.TokenURL,
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		Market:       cfg.Spotify.Market,
		MaxRetries:   cfg.Spotify.MaxRetries,
		RetryBackoff: time.Duration(cfg.Spotify.RetryBackoffMs) * time.Millisecond,
		Concurrency:  cfg.Spotify.Concurrency,
		Timeout:      cfg.Spotify.Timeout,
		Breaker: spotify.BreakerSettings{
			MaxRequests:      cfg.Spotify.Breaker.MaxRequests,
			Interval:         cfg.Spotify.Breaker.Interval,
			Timeout:          cfg.Spotify.Breaker.Timeout,
			FailureThreshold: cfg.Spotify.Breaker.FailureThreshold,
		},
	})

	// 3. Core service
	svc := services.NewMatchmaker(store, spotifyClient, profiles, services.Options{
		Weights:      cfg.Match.Weights,
		MinScore:     cfg.Match.MinScore,
		DefaultLimit: cfg.Match.DefaultLimit,
		MaxLimit:     cfg.Match.MaxLimit,
		TopTracks:    cfg.Match.TopTracks,
	})
	if cfg.Ollama.URL != "" {
		svc.WithVibeInterpreter(ollama.NewClient(ollama.Options{
			BaseURL: cfg.Ollama.URL,
			Model:   cfg.Ollama.Model,
			Timeout: cfg.Ollama.Timeout,
		}))
		log.Info().Str("url", cfg.Ollama.URL).Str("model", cfg.Ollama.Model).Msg("vibe search enabled")
	}

	pool := worker.NewPool(svc, worker.Options{
		Workers:   cfg.Worker.Workers,
		QueueSize: cfg.Worker.QueueSize,
	})
	svc.AttachJobs(pool)
	pool.Start(context.WithoutCancel(ctx))
	defer pool.Stop()

	// 4. Driving adapter
	sessions, err := auth.NewSessions(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)
	if err != nil {
		return err
	}
	demo, err := auth.NewDemo(cfg.Auth.DemoUsername, cfg.Auth.DemoPassword)
	if err != nil {
		return err
	}
	var oauth *auth.SpotifyOAuth
	if cfg.Spotify.RedirectURL != "" {
		oauth = auth.NewSpotifyOAuth(auth.SpotifyOAuthConfig{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			RedirectURL:  cfg.Spotify.RedirectURL,
			AuthURL:      cfg.Spotify.AuthURL,
			TokenURL:     cfg.Spotify.TokenURL,
			StateTTL:     cfg.Auth.StateTTL,
		}, states)
	}

	handler := rest.NewHandler(svc, rest.Options{
		CORSOrigins: cfg.Server.CORSOrigins,
		RateLimit:   cfg.Server.RateLimit,
		Sessions:    sessions,
		OAuth:       oauth,
		Demo:        demo,
	})

	// 5. Serve until interrupted
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Str("storage", cfg.Storage.Driver).Msg("🎶 Duet API is running")
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("shutdown error")
		}
	}
	return nil
}

func openStore(ctx context.Context, cfg config.StorageConfig) (ports.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		a, err := sqlite.NewAdapter(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		return a, nil
	case "mongo":
		connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		a, err := mongo.NewAdapter(connectCtx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to mongo: %w", err)
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Driver)
	}
}

// openCache uses Redis when configured and in-process stores otherwise.
func openCache(ctx context.Context, cfg config.RedisConfig) (ports.ProfileCache, ports.StateStore, func(), error) {
	if cfg.Addr != "" {
		c, err := redis.New(ctx, redis.Options{
			Addr:       cfg.Addr,
			Password:   cfg.Password,
			DB:         cfg.DB,
			ProfileTTL: cfg.ProfileTTL,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return c, c, func() { _ = c.Close() }, nil
	}

	profiles, err := memory.NewProfileCache(cfg.ProfileTTL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create profile cache: %w", err)
	}
	return profiles, memory.NewStateStore(), profiles.Close, nil
}
