package spotify

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ewilliams-labs/duet/internal/core/domain"
	"github.com/ewilliams-labs/duet/internal/logging"
	"github.com/ewilliams-labs/duet/internal/metrics"
)

const audioFeaturesBatchSize = 100

// GetAudioFeatures fills in audio features for the tracks. Batches are
// fetched concurrently. Tracks Spotify has no usable features for get a
// deterministic estimate and FeatureSourceEstimated; tracks already
// analyzed from their preview are left as they are.
func (c *Client) GetAudioFeatures(ctx context.Context, tracks []domain.Track) ([]domain.Track, error) {
	seen := make(map[string]struct{}, len(tracks))
	ids := make([]string, 0, len(tracks))
	for _, t := range tracks {
		if t.ID == "" || t.FeatureSource == domain.FeatureSourcePreview {
			continue
		}
		if _, dup := seen[t.ID]; dup {
			continue
		}
		seen[t.ID] = struct{}{}
		ids = append(ids, t.ID)
	}

	batches := chunk(ids, audioFeaturesBatchSize)
	results := make([]map[string]spotifyAudioFeatures, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, batch := range batches {
		g.Go(func() error {
			found, err := c.fetchAudioFeatures(gctx, batch)
			if err != nil {
				return err
			}
			results[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	features := make(map[string]spotifyAudioFeatures, len(ids))
	for _, r := range results {
		for id, f := range r {
			features[id] = f
		}
	}

	log := logging.Component("spotify")
	out := make([]domain.Track, len(tracks))
	for i, t := range tracks {
		if _, requested := seen[t.ID]; requested {
			if f, ok := features[t.ID]; ok && !allFeaturesZero(f) {
				t.Features = mapFeaturesToDomain(f)
				t.FeatureSource = domain.FeatureSourceSpotify
			} else {
				log.Warn().Str("track_id", t.ID).Msg("falling back to deterministic feature generation")
				t.Features = generateDeterministicFeatures(t.ID)
				t.FeatureSource = domain.FeatureSourceEstimated
				metrics.SpotifyEstimatedFeatures.Inc()
			}
		}
		out[i] = t
	}
	return out, nil
}

// fetchAudioFeatures returns the features Spotify has for one batch. A
// 403 or 404 means the endpoint is unavailable to this app, which yields
// an empty result rather than an error.
func (c *Client) fetchAudioFeatures(ctx context.Context, ids []string) (map[string]spotifyAudioFeatures, error) {
	query := url.Values{}
	query.Set("ids", strings.Join(ids, ","))

	var body struct {
		AudioFeatures []*spotifyAudioFeatures `json:"audio_features"`
	}
	err := c.getJSON(ctx, c.app, "audio-features", "/audio-features", query, &body)

	var se *statusError
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound), errors.As(err, &se) && se.code == http.StatusForbidden:
		logging.Component("spotify").Warn().Err(err).Int("tracks", len(ids)).Msg("audio features unavailable")
		return map[string]spotifyAudioFeatures{}, nil
	default:
		return nil, err
	}

	result := make(map[string]spotifyAudioFeatures, len(body.AudioFeatures))
	for _, f := range body.AudioFeatures {
		// Spotify returns null for tracks it has not analyzed.
		if f != nil && f.ID != "" {
			result[f.ID] = *f
		}
	}
	return result, nil
}
