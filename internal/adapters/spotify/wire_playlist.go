package spotify

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/ewilliams-labs/duet/internal/core/domain"
)

const (
	playlistPageSize  = 100
	maxPlaylistTracks = 2000
	maxTopTracks      = 50
)

// GetPlaylistTracks loads a playlist and all of its tracks, one page at a
// time. Local files and removed tracks are skipped. Tracks are returned
// without audio features.
func (c *Client) GetPlaylistTracks(ctx context.Context, token domain.SpotifyToken, playlistID string) (domain.Playlist, error) {
	hc, err := c.userClient(token)
	if err != nil {
		return domain.Playlist{}, err
	}

	path := "/playlists/" + url.PathEscape(playlistID)

	meta := url.Values{}
	meta.Set("fields", "id,name,owner.id")
	var sp spotifyPlaylist
	if err := c.getJSON(ctx, hc, "playlist", path, meta, &sp); err != nil {
		return domain.Playlist{}, err
	}

	playlist := domain.Playlist{ID: sp.ID, Name: sp.Name, OwnerID: sp.Owner.ID, Tracks: []domain.Track{}}
	for offset := 0; offset < maxPlaylistTracks; offset += playlistPageSize {
		query := url.Values{}
		query.Set("limit", strconv.Itoa(playlistPageSize))
		query.Set("offset", strconv.Itoa(offset))
		if c.market != "" {
			query.Set("market", c.market)
		}

		var page spotifyPaging[spotifyPlaylistItem]
		if err := c.getJSON(ctx, hc, "playlist-tracks", path+"/tracks", query, &page); err != nil {
			return domain.Playlist{}, fmt.Errorf("spotify adapter: playlist %s page at %d: %w", playlistID, offset, err)
		}

		items := make([]spotifyTrack, 0, len(page.Items))
		for _, item := range page.Items {
			if item.Track != nil {
				items = append(items, *item.Track)
			}
		}
		playlist.AddTracks(mapTracksToDomain(items))

		if len(page.Items) < playlistPageSize || page.Next == "" {
			break
		}
	}

	return playlist, nil
}

// GetTopTracks returns the user's most played tracks over the medium term.
func (c *Client) GetTopTracks(ctx context.Context, token domain.SpotifyToken, limit int) ([]domain.Track, error) {
	hc, err := c.userClient(token)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > maxTopTracks {
		limit = maxTopTracks
	}

	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("time_range", "medium_term")

	var page spotifyPaging[spotifyTrack]
	if err := c.getJSON(ctx, hc, "top-tracks", "/me/top/tracks", query, &page); err != nil {
		return nil, err
	}
	return mapTracksToDomain(page.Items), nil
}
