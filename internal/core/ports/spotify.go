package ports

import (
	"context"
	"errors"
	"fmt"

	"github.com/ewilliams-labs/duet/internal/core/domain"
)

// ErrNoConfidentMatch indicates search results did not meet the confidence threshold.
var ErrNoConfidentMatch = errors.New("no confident match")

// ErrUpstreamUnavailable is returned when Spotify calls are being rejected
// without being attempted, e.g. while the circuit breaker is open.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// ErrTokenExpired means the stored user token can no longer be used and
// the user has to sign in again.
var ErrTokenExpired = errors.New("spotify token expired")

// NoConfidentMatchError provides context for a failed track match.
type NoConfidentMatchError struct {
	Title  string
	Artist string
}

func (e NoConfidentMatchError) Error() string {
	if e.Title == "" && e.Artist == "" {
		return ErrNoConfidentMatch.Error()
	}
	return fmt.Sprintf("no confident match found for title %q artist %q", e.Title, e.Artist)
}

func (e NoConfidentMatchError) Is(target error) bool {
	return target == ErrNoConfidentMatch
}

// SpotifyUser is the account behind a user token.
type SpotifyUser struct {
	ID          string
	DisplayName string
	Email       string
	ImageURL    string
}

// NowPlaying is the track a user is currently listening to.
type NowPlaying struct {
	Track      domain.Track `json:"track"`
	ProgressMs int          `json:"progress_ms"`
	IsPlaying  bool         `json:"is_playing"`
}

// RecommendationSeeds are the inputs to a recommendation request. Spotify
// accepts at most five seeds in total.
type RecommendationSeeds struct {
	Genres   []string
	TrackIDs []string
	Limit    int
}

// SpotifyProvider is the music platform. Methods taking a token act on
// behalf of that user; the rest use application credentials.
type SpotifyProvider interface {
	GetCurrentUser(ctx context.Context, token domain.SpotifyToken) (SpotifyUser, error)
	GetPlaylistTracks(ctx context.Context, token domain.SpotifyToken, playlistID string) (domain.Playlist, error)
	GetTopTracks(ctx context.Context, token domain.SpotifyToken, limit int) ([]domain.Track, error)
	// GetCurrentlyPlaying returns nil when nothing is playing.
	GetCurrentlyPlaying(ctx context.Context, token domain.SpotifyToken) (*NowPlaying, error)

	// GetAudioFeatures returns the tracks with Features and FeatureSource
	// populated. Tracks Spotify has no descriptors for get estimated ones.
	GetAudioFeatures(ctx context.Context, tracks []domain.Track) ([]domain.Track, error)
	GetArtists(ctx context.Context, ids []string) ([]domain.Artist, error)
	GetRecommendations(ctx context.Context, seeds RecommendationSeeds) ([]domain.Track, error)
	GetTrackByMetadata(ctx context.Context, title, artist string) (domain.Track, error)
}
