// Package services holds the application use cases. Matchmaker coordinates
// Spotify, storage and caching to build taste profiles and pair users.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ewilliams-labs/duet/internal/core/domain"
	"github.com/ewilliams-labs/duet/internal/core/ports"
	"github.com/ewilliams-labs/duet/internal/logging"
)

// ErrVibeUnavailable is returned for vibe searches when no interpreter is configured.
var ErrVibeUnavailable = errors.New("service: vibe search is not configured")

const (
	maxDisplayNameLength = 100
	maxMessageLength     = 1000
	defaultSoundtrack    = 20
	maxSoundtrack        = 100
	maxSeeds             = 5
)

// Options tunes matching. Zero values fall back to defaults.
type Options struct {
	Weights      domain.Weights
	MinScore     float64
	DefaultLimit int
	MaxLimit     int
	TopTracks    int

	Now   func() time.Time
	NewID func() string
}

func (o Options) withDefaults() Options {
	if o.Weights == (domain.Weights{}) {
		o.Weights = domain.DefaultWeights()
	}
	if o.MinScore <= 0 || o.MinScore > 1 {
		o.MinScore = domain.DefaultMinScore
	}
	if o.DefaultLimit <= 0 {
		o.DefaultLimit = 20
	}
	if o.MaxLimit < o.DefaultLimit {
		o.MaxLimit = o.DefaultLimit
	}
	if o.TopTracks <= 0 || o.TopTracks > 50 {
		o.TopTracks = 50
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	return o
}

// Matchmaker implements the profile, matching and conversation use cases.
type Matchmaker struct {
	store   ports.Store
	spotify ports.SpotifyProvider
	cache   ports.ProfileCache
	vibes   ports.VibeInterpreter
	jobs    ports.JobQueue
	scorer  domain.Scorer
	opts    Options
}

// NewMatchmaker constructs a Matchmaker.
func NewMatchmaker(store ports.Store, spotify ports.SpotifyProvider, cache ports.ProfileCache, opts Options) *Matchmaker {
	opts = opts.withDefaults()
	return &Matchmaker{
		store:   store,
		spotify: spotify,
		cache:   cache,
		scorer:  domain.NewScorer(opts.Weights),
		opts:    opts,
	}
}

// WithVibeInterpreter enables free-text vibe filtering on FindMatches.
func (m *Matchmaker) WithVibeInterpreter(v ports.VibeInterpreter) *Matchmaker {
	m.vibes = v
	return m
}

// AttachJobs sets the background queue. The queue is created after the
// service since its workers call back into it.
func (m *Matchmaker) AttachJobs(q ports.JobQueue) {
	m.jobs = q
}

// QueueProfileSync schedules a background profile sync. It reports false
// when no queue is attached or the queue is full.
func (m *Matchmaker) QueueProfileSync(userID string) bool {
	if m.jobs == nil {
		return false
	}
	return m.jobs.SubmitProfileSync(userID)
}

// LoginWithSpotify creates or refreshes the user behind a fresh OAuth token.
// New users get a profile sync queued.
func (m *Matchmaker) LoginWithSpotify(ctx context.Context, token domain.SpotifyToken) (domain.User, error) {
	su, err := m.spotify.GetCurrentUser(ctx, token)
	if err != nil {
		return domain.User{}, fmt.Errorf("service: failed to fetch spotify user: %w", err)
	}

	u, err := domain.NewUser(m.opts.NewID(), su.ID, su.DisplayName, m.opts.Now())
	if err != nil {
		return domain.User{}, fmt.Errorf("service: %w", err)
	}
	u.PhotoURL = su.ImageURL
	u.Token = &token

	saved, err := m.store.UpsertUserBySpotifyID(ctx, u)
	if err != nil {
		return domain.User{}, fmt.Errorf("service: failed to save user: %w", err)
	}
	if saved.Profile == nil && m.jobs != nil {
		m.jobs.SubmitProfileSync(saved.ID)
	}

	logging.Ctx(ctx).Info().Str("user_id", saved.ID).Str("spotify_id", saved.SpotifyID).Msg("spotify login")
	return saved, nil
}

// LoginDemo creates or loads the demo account for username.
func (m *Matchmaker) LoginDemo(ctx context.Context, username string) (domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return domain.User{}, fmt.Errorf("service: %w: username is required", domain.ErrInvalidArgument)
	}
	u, err := domain.NewUser(m.opts.NewID(), "demo:"+username, username, m.opts.Now())
	if err != nil {
		return domain.User{}, fmt.Errorf("service: %w", err)
	}
	u.Demo = true

	saved, err := m.store.UpsertUserBySpotifyID(ctx, u)
	if err != nil {
		return domain.User{}, fmt.Errorf("service: failed to save user: %w", err)
	}
	logging.Ctx(ctx).Info().Str("user_id", saved.ID).Msg("demo login")
	return saved, nil
}

// GetUser loads a user.
func (m *Matchmaker) GetUser(ctx context.Context, userID string) (domain.User, error) {
	if userID == "" {
		return domain.User{}, fmt.Errorf("service: %w: user id cannot be empty", domain.ErrInvalidArgument)
	}
	u, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return domain.User{}, fmt.Errorf("service: failed to load user: %w", err)
	}
	return u, nil
}

// UserUpdate lists the editable fields. Nil fields are left unchanged.
type UserUpdate struct {
	DisplayName      *string
	Location         *domain.Location
	ClearLocation    bool
	SourcePlaylistID *string
	// AnthemTitle and AnthemArtist pick the user's anthem by search.
	AnthemTitle  string
	AnthemArtist string
}

// UpdateUser applies an update. Changing the source playlist queues a
// profile sync.
func (m *Matchmaker) UpdateUser(ctx context.Context, userID string, upd UserUpdate) (domain.User, error) {
	u, err := m.GetUser(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}

	if upd.DisplayName != nil {
		name := strings.TrimSpace(*upd.DisplayName)
		if name == "" || len([]rune(name)) > maxDisplayNameLength {
			return domain.User{}, fmt.Errorf("service: %w: display name must be 1-%d characters", domain.ErrInvalidArgument, maxDisplayNameLength)
		}
		u.DisplayName = name
	}

	switch {
	case upd.ClearLocation:
		u.Location = nil
	case upd.Location != nil:
		if err := upd.Location.Validate(); err != nil {
			return domain.User{}, fmt.Errorf("service: %w", err)
		}
		loc := *upd.Location
		u.Location = &loc
	}

	resync := false
	if upd.SourcePlaylistID != nil {
		id := strings.TrimSpace(*upd.SourcePlaylistID)
		resync = id != u.SourcePlaylistID
		u.SourcePlaylistID = id
	}

	if upd.AnthemTitle != "" {
		track, err := m.spotify.GetTrackByMetadata(ctx, upd.AnthemTitle, upd.AnthemArtist)
		if err != nil {
			return domain.User{}, fmt.Errorf("service: failed to find anthem: %w", err)
		}
		u.Anthem = &track
	}

	u.UpdatedAt = m.opts.Now()
	if err := m.store.UpdateUser(ctx, u); err != nil {
		return domain.User{}, fmt.Errorf("service: failed to update user: %w", err)
	}

	if resync {
		m.invalidate(ctx, u.ID)
		if m.jobs != nil {
			m.jobs.SubmitProfileSync(u.ID)
		}
	}
	return u, nil
}

func (m *Matchmaker) invalidate(ctx context.Context, userID string) {
	if err := m.cache.InvalidateProfile(ctx, userID); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("user_id", userID).Msg("profile cache invalidate failed")
	}
}
