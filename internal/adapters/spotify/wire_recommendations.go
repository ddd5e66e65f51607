package spotify

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/ewilliams-labs/duet/internal/core/domain"
	"github.com/ewilliams-labs/duet/internal/core/ports"
)

const (
	maxSeeds                 = 5
	defaultRecommendationCap = 20
	maxRecommendations       = 100
)

// GetRecommendations returns tracks seeded by genres first, then tracks,
// up to Spotify's limit of five seeds in total.
func (c *Client) GetRecommendations(ctx context.Context, seeds ports.RecommendationSeeds) ([]domain.Track, error) {
	var genres, trackIDs []string
	for _, g := range seeds.Genres {
		if len(genres) == maxSeeds {
			break
		}
		if g = genreSeed(g); g != "" {
			genres = append(genres, g)
		}
	}
	for _, id := range seeds.TrackIDs {
		if len(genres)+len(trackIDs) == maxSeeds {
			break
		}
		if id != "" {
			trackIDs = append(trackIDs, id)
		}
	}
	if len(genres)+len(trackIDs) == 0 {
		return nil, fmt.Errorf("spotify adapter: %w: recommendations need at least one seed", domain.ErrInvalidArgument)
	}

	limit := seeds.Limit
	if limit <= 0 {
		limit = defaultRecommendationCap
	}
	limit = min(limit, maxRecommendations)

	query := url.Values{}
	if len(genres) > 0 {
		query.Set("seed_genres", strings.Join(genres, ","))
	}
	if len(trackIDs) > 0 {
		query.Set("seed_tracks", strings.Join(trackIDs, ","))
	}
	query.Set("limit", strconv.Itoa(limit))
	if c.market != "" {
		query.Set("market", c.market)
	}

	var body struct {
		Tracks []spotifyTrack `json:"tracks"`
	}
	if err := c.getJSON(ctx, c.app, "recommendations", "/recommendations", query, &body); err != nil {
		return nil, err
	}
	return mapTracksToDomain(body.Tracks), nil
}

// genreSeed turns an artist genre like "Indie Rock" into seed form.
func genreSeed(genre string) string {
	return strings.Join(strings.Fields(strings.ToLower(genre)), "-")
}
