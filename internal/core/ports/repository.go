package ports

import (
	"context"
	"time"

	"github.com/ewilliams-labs/duet/internal/core/domain"
)

// UserRepository stores users and their computed taste profiles.
type UserRepository interface {
	// UpsertUserBySpotifyID creates the user or refreshes the stored
	// display name, photo and token of the existing one. The stored user
	// is returned; its ID is kept when it already existed.
	UpsertUserBySpotifyID(ctx context.Context, u domain.User) (domain.User, error)
	GetUser(ctx context.Context, id string) (domain.User, error)
	GetUserBySpotifyID(ctx context.Context, spotifyID string) (domain.User, error)
	UpdateUser(ctx context.Context, u domain.User) error
	SaveProfile(ctx context.Context, p domain.TasteProfile) error
	// ListCandidates returns every other user that has a profile.
	ListCandidates(ctx context.Context, excludeUserID string) ([]domain.Candidate, error)
}

// LibraryRepository stores the tracks and artists a profile is built from.
type LibraryRepository interface {
	SaveLibrary(ctx context.Context, library domain.Playlist, artists []domain.Artist) error
	// GetLibrary returns the owner's library and the artists its tracks reference.
	GetLibrary(ctx context.Context, ownerID string) (domain.Playlist, []domain.Artist, error)
	UpdateTrackFeatures(ctx context.Context, trackID string, features domain.AudioFeatures, source domain.FeatureSource) error
	// ListTrackOwners returns the IDs of users whose library holds the track.
	ListTrackOwners(ctx context.Context, trackID string) ([]string, error)
}

// MatchRepository stores pairings between users.
type MatchRepository interface {
	// UpsertMatch inserts a match or, when the pair already has one,
	// refreshes its score and breakdown while keeping ID and decisions.
	UpsertMatch(ctx context.Context, m domain.Match) (domain.Match, error)
	GetMatch(ctx context.Context, id string) (domain.Match, error)
	// ListMatches returns the user's matches, best score first. An empty
	// status matches every status.
	ListMatches(ctx context.Context, userID string, status domain.MatchStatus) ([]domain.Match, error)
	// RecordDecision stores one participant's decision and recomputes the
	// status in the same write, leaving the other side's decision as
	// stored. It returns the updated match.
	RecordDecision(ctx context.Context, matchID, userID string, d domain.Decision, at time.Time) (domain.Match, error)
}

// MessageRepository stores conversations on mutual matches.
type MessageRepository interface {
	AddMessage(ctx context.Context, msg domain.Message) error
	// ListMessages returns the most recent limit messages, oldest first.
	// A limit of zero or less returns the whole conversation.
	ListMessages(ctx context.Context, matchID string, limit int) ([]domain.Message, error)
}

// Store is everything the service persists, backed by a single database.
type Store interface {
	UserRepository
	LibraryRepository
	MatchRepository
	MessageRepository
	Close() error
}
