package spotify

import (
	"context"
	"fmt"
	"net/url"

	"github.com/ewilliams-labs/duet/internal/core/domain"
	"github.com/ewilliams-labs/duet/internal/core/ports"
	"github.com/ewilliams-labs/duet/internal/logging"
)

const (
	searchMatchThreshold = 0.8
	searchLimit          = 5
)

// GetTrackByMetadata searches for a track using title and artist metadata.
func (c *Client) GetTrackByMetadata(ctx context.Context, title string, artist string) (domain.Track, error) {
	track, err := c.searchTrack(ctx, title, artist)
	if err != nil {
		return domain.Track{}, err
	}

	return mapTrackToDomain(track), nil
}

func (c *Client) searchTrack(ctx context.Context, title string, artist string) (spotifyTrack, error) {
	normalizedTitle, normalizedArtist := normalizeTitleArtist(title, artist)
	queryTitle := fallbackIfEmpty(normalizedTitle, title)
	queryArtist := fallbackIfEmpty(normalizedArtist, artist)

	query := url.Values{}
	query.Set("q", fmt.Sprintf("track:%s artist:%s", queryTitle, queryArtist))
	query.Set("type", "track")
	query.Set("limit", fmt.Sprint(searchLimit))
	if c.market != "" {
		query.Set("market", c.market)
	}

	var searchBody struct {
		Tracks spotifyPaging[spotifyTrack] `json:"tracks"`
	}
	if err := c.getJSON(ctx, c.app, "search", "/search", query, &searchBody); err != nil {
		return spotifyTrack{}, err
	}

	items := searchBody.Tracks.Items
	if len(items) == 0 {
		return spotifyTrack{}, fmt.Errorf("spotify adapter: %w", &ports.NoConfidentMatchError{Title: title, Artist: artist})
	}
	if len(items) > searchLimit {
		items = items[:searchLimit]
	}

	log := logging.Component("spotify")
	bestScore := 0.0
	bestIndex := -1
	for i, candidate := range items {
		candidateArtist := joinArtistNames(candidate)
		score := ScoreResult(artist, title, candidateArtist, candidate.Name)
		accepted := score >= searchMatchThreshold
		if !accepted {
			if s, ok := trackMatchScore(title, artist, candidate); ok {
				score, accepted = s, true
			}
		}
		log.Debug().Str("candidate", candidateArtist+" - "+candidate.Name).Float64("score", score).Msg("search candidate")
		if accepted && score > bestScore {
			bestScore = score
			bestIndex = i
		}
	}

	if bestIndex == -1 {
		return spotifyTrack{}, fmt.Errorf("spotify adapter: %w", &ports.NoConfidentMatchError{Title: title, Artist: artist})
	}

	return items[bestIndex], nil
}
