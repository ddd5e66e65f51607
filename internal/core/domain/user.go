package domain

import (
	"fmt"
	"time"
)

// Location is an optional coordinate pair used for distance filtering.
type Location struct {
	Latitude  float64 `json:"lat" bson:"lat"`
	Longitude float64 `json:"lon" bson:"lon"`
}

// SpotifyToken is the user's access token as returned by the OAuth
// exchange. It is not refreshed; an expired token means the user has to
// sign in again.
type SpotifyToken struct {
	AccessToken  string    `json:"-" bson:"access_token"`
	RefreshToken string    `json:"-" bson:"refresh_token,omitempty"`
	TokenType    string    `json:"-" bson:"token_type"`
	Expiry       time.Time `json:"-" bson:"expiry"`
}

// Valid reports whether the token can still be used at the given time.
func (t *SpotifyToken) Valid(now time.Time) bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	return t.Expiry.IsZero() || now.Before(t.Expiry)
}

// User is a person on the service.
type User struct {
	ID               string        `json:"id" bson:"_id"`
	DisplayName      string        `json:"display_name" bson:"display_name"`
	SpotifyID        string        `json:"spotify_id" bson:"spotify_id"`
	PhotoURL         string        `json:"photo_url,omitempty" bson:"photo_url,omitempty"`
	Location         *Location     `json:"location,omitempty" bson:"location,omitempty"`
	SourcePlaylistID string        `json:"source_playlist_id,omitempty" bson:"source_playlist_id,omitempty"`
	Anthem           *Track        `json:"anthem,omitempty" bson:"anthem,omitempty"`
	Demo             bool          `json:"demo" bson:"demo"`
	Token            *SpotifyToken `json:"-" bson:"token,omitempty"`
	Profile          *TasteProfile `json:"profile,omitempty" bson:"profile,omitempty"`
	CreatedAt        time.Time     `json:"created_at" bson:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at" bson:"updated_at"`
}

// NewUser builds a user identified by their Spotify account.
func NewUser(id, spotifyID, displayName string, now time.Time) (User, error) {
	if id == "" || spotifyID == "" {
		return User{}, fmt.Errorf("%w: user requires id and spotify id", ErrInvalidArgument)
	}
	if displayName == "" {
		displayName = spotifyID
	}
	return User{
		ID:          id,
		DisplayName: displayName,
		SpotifyID:   spotifyID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Validate checks the optional location is a real coordinate.
func (l Location) Validate() error {
	if l.Latitude < -90 || l.Latitude > 90 || l.Longitude < -180 || l.Longitude > 180 {
		return fmt.Errorf("%w: location out of range", ErrInvalidArgument)
	}
	return nil
}
