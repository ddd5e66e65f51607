package spotify

import (
	"context"
	"errors"
	"net/url"

	"github.com/ewilliams-labs/duet/internal/core/domain"
	"github.com/ewilliams-labs/duet/internal/core/ports"
)

// GetCurrentUser returns the account the token belongs to.
func (c *Client) GetCurrentUser(ctx context.Context, token domain.SpotifyToken) (ports.SpotifyUser, error) {
	hc, err := c.userClient(token)
	if err != nil {
		return ports.SpotifyUser{}, err
	}

	var su spotifyUser
	if err := c.getJSON(ctx, hc, "me", "/me", nil, &su); err != nil {
		return ports.SpotifyUser{}, err
	}

	user := ports.SpotifyUser{ID: su.ID, DisplayName: su.DisplayName, Email: su.Email}
	if len(su.Images) > 0 {
		user.ImageURL = su.Images[0].URL
	}
	return user, nil
}

// GetCurrentlyPlaying returns nil when nothing (or a non-track item such
// as a podcast episode) is playing.
func (c *Client) GetCurrentlyPlaying(ctx context.Context, token domain.SpotifyToken) (*ports.NowPlaying, error) {
	hc, err := c.userClient(token)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	if c.market != "" {
		query.Set("market", c.market)
	}

	var body spotifyCurrentlyPlaying
	err = c.getJSON(ctx, hc, "currently-playing", "/me/player/currently-playing", query, &body)
	if errors.Is(err, errNoContent) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if body.Item == nil || body.Item.ID == "" {
		return nil, nil
	}

	return &ports.NowPlaying{
		Track:      mapTrackToDomain(*body.Item),
		ProgressMs: body.ProgressMs,
		IsPlaying:  body.IsPlaying,
	}, nil
}
