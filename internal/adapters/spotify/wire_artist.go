package spotify

import (
	"context"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ewilliams-labs/duet/internal/core/domain"
)

const artistsBatchSize = 50

// GetArtists fetches artists with their genres. Unknown IDs are skipped.
func (c *Client) GetArtists(ctx context.Context, ids []string) ([]domain.Artist, error) {
	seen := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	batches := chunk(unique, artistsBatchSize)
	results := make([][]domain.Artist, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, batch := range batches {
		g.Go(func() error {
			query := url.Values{}
			query.Set("ids", strings.Join(batch, ","))

			var body struct {
				Artists []*spotifyArtist `json:"artists"`
			}
			if err := c.getJSON(gctx, c.app, "artists", "/artists", query, &body); err != nil {
				return err
			}
			artists := make([]domain.Artist, 0, len(body.Artists))
			for _, a := range body.Artists {
				if a != nil && a.ID != "" {
					artists = append(artists, mapArtistToDomain(*a))
				}
			}
			results[i] = artists
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []domain.Artist
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}
