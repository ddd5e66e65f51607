package services

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/ewilliams-labs/duet/internal/core/domain"
	"github.com/ewilliams-labs/duet/internal/core/ports"
	"github.com/ewilliams-labs/duet/internal/logging"
	"github.com/ewilliams-labs/duet/internal/metrics"
)

// SyncProfile pulls the user's library from Spotify, stores it and
// rebuilds the taste profile. The library is the user's chosen playlist,
// or their top tracks when none is chosen. Users without a usable token
// (demo accounts) are rebuilt from their stored library instead.
func (m *Matchmaker) SyncProfile(ctx context.Context, userID string) (domain.TasteProfile, error) {
	u, err := m.GetUser(ctx, userID)
	if err != nil {
		return domain.TasteProfile{}, err
	}
	if !u.Token.Valid(m.opts.Now()) {
		if u.Demo {
			return m.rebuildFromLibrary(ctx, userID)
		}
		return domain.TasteProfile{}, fmt.Errorf("service: %w", ports.ErrTokenExpired)
	}

	library, err := m.fetchLibrary(ctx, u)
	if err != nil {
		return domain.TasteProfile{}, err
	}

	// Keep descriptors measured from previews by earlier syncs.
	analyzed := make(map[string]domain.Track)
	if prev, _, err := m.store.GetLibrary(ctx, userID); err == nil {
		for _, t := range prev.Tracks {
			if t.FeatureSource == domain.FeatureSourcePreview {
				analyzed[t.ID] = t
			}
		}
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.TasteProfile{}, fmt.Errorf("service: failed to load library: %w", err)
	}

	pending := make([]domain.Track, 0, len(library.Tracks))
	for _, t := range library.Tracks {
		if _, ok := analyzed[t.ID]; !ok {
			pending = append(pending, t)
		}
	}

	var (
		withFeatures []domain.Track
		artists      []domain.Artist
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		withFeatures, err = m.spotify.GetAudioFeatures(gctx, pending)
		if err != nil {
			return fmt.Errorf("service: failed to fetch audio features: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		artists, err = m.spotify.GetArtists(gctx, library.ArtistIDs())
		if err != nil {
			return fmt.Errorf("service: failed to fetch artists: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.TasteProfile{}, err
	}

	byID := make(map[string]domain.Track, len(withFeatures))
	for _, t := range withFeatures {
		byID[t.ID] = t
	}
	for i, t := range library.Tracks {
		if a, ok := analyzed[t.ID]; ok {
			library.Tracks[i].Features = a.Features
			library.Tracks[i].FeatureSource = a.FeatureSource
		} else if f, ok := byID[t.ID]; ok {
			library.Tracks[i] = f
		}
	}

	if err := m.store.SaveLibrary(ctx, library, artists); err != nil {
		return domain.TasteProfile{}, fmt.Errorf("service: failed to save library: %w", err)
	}

	profile, err := m.storeProfile(ctx, userID, library.Tracks, artists)
	if err != nil {
		return domain.TasteProfile{}, err
	}

	queued := 0
	if m.jobs != nil {
		for _, t := range library.Tracks {
			if t.FeatureSource == domain.FeatureSourceEstimated && t.PreviewURL != "" {
				if m.jobs.SubmitPreviewAnalysis(ports.PreviewJob{TrackID: t.ID, PreviewURL: t.PreviewURL, UserID: userID}) {
					queued++
				}
			}
		}
	}

	logging.Ctx(ctx).Info().
		Str("user_id", userID).
		Int("tracks", profile.TrackCount).
		Int("analyzed", profile.AnalyzedCount).
		Int("previews_queued", queued).
		Msg("profile synced")
	return profile, nil
}

func (m *Matchmaker) fetchLibrary(ctx context.Context, u domain.User) (domain.Playlist, error) {
	if u.SourcePlaylistID != "" {
		pl, err := m.spotify.GetPlaylistTracks(ctx, *u.Token, u.SourcePlaylistID)
		if err != nil {
			return domain.Playlist{}, fmt.Errorf("service: failed to fetch playlist: %w", err)
		}
		pl.OwnerID = u.ID
		return pl, nil
	}

	tracks, err := m.spotify.GetTopTracks(ctx, *u.Token, m.opts.TopTracks)
	if err != nil {
		return domain.Playlist{}, fmt.Errorf("service: failed to fetch top tracks: %w", err)
	}
	pl, err := domain.NewPlaylist("top:"+u.ID, "Top tracks", u.ID)
	if err != nil {
		return domain.Playlist{}, fmt.Errorf("service: %w", err)
	}
	pl.AddTracks(tracks)
	return *pl, nil
}

// ImportLibrary replaces the user's library with tracks supplied by the
// client and rebuilds the profile from them. Demo accounts use this in
// place of a Spotify sync.
func (m *Matchmaker) ImportLibrary(ctx context.Context, userID string, tracks []domain.Track, artists []domain.Artist) (domain.TasteProfile, error) {
	if _, err := m.GetUser(ctx, userID); err != nil {
		return domain.TasteProfile{}, err
	}
	pl, err := domain.NewPlaylist("import:"+userID, "Imported tracks", userID)
	if err != nil {
		return domain.TasteProfile{}, fmt.Errorf("service: %w", err)
	}
	for _, t := range tracks {
		if t.ID == "" {
			return domain.TasteProfile{}, fmt.Errorf("service: %w: track id cannot be empty", domain.ErrInvalidArgument)
		}
	}
	pl.AddTracks(tracks)

	if err := m.store.SaveLibrary(ctx, *pl, artists); err != nil {
		return domain.TasteProfile{}, fmt.Errorf("service: failed to save library: %w", err)
	}
	return m.storeProfile(ctx, userID, pl.Tracks, artists)
}

func (m *Matchmaker) rebuildFromLibrary(ctx context.Context, userID string) (domain.TasteProfile, error) {
	library, artists, err := m.store.GetLibrary(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.TasteProfile{}, fmt.Errorf("service: %w: no library to build a profile from", domain.ErrInsufficientData)
	}
	if err != nil {
		return domain.TasteProfile{}, fmt.Errorf("service: failed to load library: %w", err)
	}
	return m.storeProfile(ctx, userID, library.Tracks, artists)
}

func (m *Matchmaker) storeProfile(ctx context.Context, userID string, tracks []domain.Track, artists []domain.Artist) (domain.TasteProfile, error) {
	profile := domain.BuildTasteProfile(userID, tracks, artists)
	profile.ComputedAt = m.opts.Now()

	if err := m.store.SaveProfile(ctx, profile); err != nil {
		return domain.TasteProfile{}, fmt.Errorf("service: failed to save profile: %w", err)
	}
	if err := m.cache.SetProfile(ctx, profile); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("user_id", userID).Msg("profile cache write failed")
	}
	return profile, nil
}

// GetProfile returns the user's taste profile from the cache, then the
// store, syncing from Spotify only when neither has one.
func (m *Matchmaker) GetProfile(ctx context.Context, userID string) (domain.TasteProfile, error) {
	p, found, err := m.loadProfile(ctx, userID)
	if err != nil {
		return domain.TasteProfile{}, err
	}
	if found {
		return p, nil
	}
	return m.SyncProfile(ctx, userID)
}

// loadProfile looks in the cache and the store. Unknown users are an error;
// known users without a profile report found == false.
func (m *Matchmaker) loadProfile(ctx context.Context, userID string) (domain.TasteProfile, bool, error) {
	if userID == "" {
		return domain.TasteProfile{}, false, fmt.Errorf("service: %w: user id cannot be empty", domain.ErrInvalidArgument)
	}

	p, ok, err := m.cache.GetProfile(ctx, userID)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("user_id", userID).Msg("profile cache read failed")
	}
	if ok {
		metrics.ProfileCacheLookups.WithLabelValues("hit").Inc()
		return p, true, nil
	}
	metrics.ProfileCacheLookups.WithLabelValues("miss").Inc()

	u, err := m.GetUser(ctx, userID)
	if err != nil {
		return domain.TasteProfile{}, false, err
	}
	if u.Profile == nil {
		return domain.TasteProfile{}, false, nil
	}
	if err := m.cache.SetProfile(ctx, *u.Profile); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("user_id", userID).Msg("profile cache write failed")
	}
	return *u.Profile, true, nil
}

// profileOf returns another user's stored profile without syncing on
// their behalf. Users who never synced get an empty profile.
func (m *Matchmaker) profileOf(ctx context.Context, userID string) (domain.TasteProfile, error) {
	p, found, err := m.loadProfile(ctx, userID)
	if err != nil {
		return domain.TasteProfile{}, err
	}
	if !found {
		return domain.TasteProfile{UserID: userID}, nil
	}
	return p, nil
}

// AnalyzeTracks builds a profile from tracks and artists supplied by the
// caller without touching storage.
func (m *Matchmaker) AnalyzeTracks(tracks []domain.Track, artists []domain.Artist) domain.TasteProfile {
	p := domain.BuildTasteProfile("", tracks, artists)
	p.ComputedAt = m.opts.Now()
	return p
}

// ApplyPreviewEnergy stores the energy measured from a track's preview and
// rebuilds the profile of every user whose library holds the track.
func (m *Matchmaker) ApplyPreviewEnergy(ctx context.Context, job ports.PreviewJob, energy float64) error {
	library, _, err := m.store.GetLibrary(ctx, job.UserID)
	if err != nil {
		return fmt.Errorf("service: failed to load library: %w", err)
	}

	idx := -1
	for i, t := range library.Tracks {
		if t.ID == job.TrackID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("service: %w: track %s is not in the library", domain.ErrNotFound, job.TrackID)
	}

	features := library.Tracks[idx].Features
	features.Energy = energy
	if err := m.store.UpdateTrackFeatures(ctx, job.TrackID, features, domain.FeatureSourcePreview); err != nil {
		return fmt.Errorf("service: failed to update track features: %w", err)
	}

	owners, err := m.store.ListTrackOwners(ctx, job.TrackID)
	if err != nil {
		return fmt.Errorf("service: failed to list track owners: %w", err)
	}
	if !slices.Contains(owners, job.UserID) {
		owners = append(owners, job.UserID)
	}

	for _, owner := range owners {
		err := m.refreshProfile(ctx, owner)
		if err == nil {
			continue
		}
		if owner == job.UserID {
			return err
		}
		logging.Ctx(ctx).Warn().Err(err).Str("owner_id", owner).Str("track_id", job.TrackID).Msg("profile refresh failed")
	}
	return nil
}

// refreshProfile rebuilds a stored profile from the owner's library and
// drops the cached copy.
func (m *Matchmaker) refreshProfile(ctx context.Context, ownerID string) error {
	library, artists, err := m.store.GetLibrary(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("service: failed to load library: %w", err)
	}

	m.invalidate(ctx, ownerID)
	profile := domain.BuildTasteProfile(ownerID, library.Tracks, artists)
	profile.ComputedAt = m.opts.Now()
	if err := m.store.SaveProfile(ctx, profile); err != nil {
		return fmt.Errorf("service: failed to save profile: %w", err)
	}
	return nil
}
