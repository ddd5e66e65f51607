package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/ewilliams-labs/duet/internal/core/domain"
	"github.com/ewilliams-labs/duet/internal/core/ports"
)

// CurrentMoment returns what the caller is listening to right now, with
// audio features. It returns nil when nothing is playing.
func (m *Matchmaker) CurrentMoment(ctx context.Context, userID string) (*ports.NowPlaying, error) {
	u, err := m.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.Token.Valid(m.opts.Now()) {
		return nil, fmt.Errorf("service: %w", ports.ErrTokenExpired)
	}

	np, err := m.spotify.GetCurrentlyPlaying(ctx, *u.Token)
	if err != nil {
		return nil, fmt.Errorf("service: failed to fetch currently playing: %w", err)
	}
	if np == nil || np.Track.ID == "" {
		return nil, nil
	}
	if !np.Track.HasFeatures() {
		tracks, err := m.spotify.GetAudioFeatures(ctx, []domain.Track{np.Track})
		if err != nil {
			return nil, fmt.Errorf("service: failed to fetch audio features: %w", err)
		}
		if len(tracks) == 1 {
			np.Track = tracks[0]
		}
	}
	return np, nil
}

// Soundtrack is a set of recommendations for a mutual match.
type Soundtrack struct {
	MatchID    string         `json:"match_id"`
	SeedGenres []string       `json:"seed_genres"`
	Tracks     []domain.Track `json:"tracks"`
}

// SharedSoundtrack recommends tracks seeded from the genres both users
// share, falling back to each side's top genres.
func (m *Matchmaker) SharedSoundtrack(ctx context.Context, userID, matchID string, limit int) (Soundtrack, error) {
	switch {
	case limit < 0:
		return Soundtrack{}, fmt.Errorf("service: %w: limit cannot be negative", domain.ErrInvalidArgument)
	case limit == 0:
		limit = defaultSoundtrack
	case limit > maxSoundtrack:
		limit = maxSoundtrack
	}

	match, err := m.mutualMatch(ctx, userID, matchID)
	if err != nil {
		return Soundtrack{}, err
	}

	a, err := m.profileOf(ctx, match.UserA)
	if err != nil {
		return Soundtrack{}, err
	}
	b, err := m.profileOf(ctx, match.UserB)
	if err != nil {
		return Soundtrack{}, err
	}

	seeds := soundtrackSeeds(m.scorer.Compare(a, b).Breakdown.SharedGenres, a, b)
	if len(seeds) == 0 {
		return Soundtrack{}, fmt.Errorf("service: %w: neither profile has genres", domain.ErrInsufficientData)
	}

	tracks, err := m.spotify.GetRecommendations(ctx, ports.RecommendationSeeds{Genres: seeds, Limit: limit})
	if err != nil {
		return Soundtrack{}, fmt.Errorf("service: failed to fetch recommendations: %w", err)
	}
	return Soundtrack{MatchID: match.ID, SeedGenres: seeds, Tracks: tracks}, nil
}

// soundtrackSeeds picks up to five genres: shared ones first, then the
// two profiles' top genres taken alternately.
func soundtrackSeeds(shared []string, a, b domain.TasteProfile) []string {
	seen := make(map[string]struct{}, maxSeeds)
	seeds := make([]string, 0, maxSeeds)
	add := func(g string) {
		if len(seeds) == maxSeeds || g == "" {
			return
		}
		if _, ok := seen[g]; ok {
			return
		}
		seen[g] = struct{}{}
		seeds = append(seeds, g)
	}

	for _, g := range shared {
		add(g)
	}
	if len(seeds) > 0 {
		return seeds
	}

	ta, tb := a.TopGenres(maxSeeds), b.TopGenres(maxSeeds)
	for i := 0; i < maxSeeds; i++ {
		if i < len(ta) {
			add(ta[i])
		}
		if i < len(tb) {
			add(tb[i])
		}
	}
	return seeds
}

// SendMessage adds a message to a mutual match's conversation.
func (m *Matchmaker) SendMessage(ctx context.Context, userID, matchID, body string) (domain.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" || len([]rune(body)) > maxMessageLength {
		return domain.Message{}, fmt.Errorf("service: %w: message must be 1-%d characters", domain.ErrInvalidArgument, maxMessageLength)
	}
	match, err := m.mutualMatch(ctx, userID, matchID)
	if err != nil {
		return domain.Message{}, err
	}

	msg := domain.Message{
		ID:       m.opts.NewID(),
		MatchID:  match.ID,
		SenderID: userID,
		Body:     body,
		SentAt:   m.opts.Now(),
	}
	if err := m.store.AddMessage(ctx, msg); err != nil {
		return domain.Message{}, fmt.Errorf("service: failed to save message: %w", err)
	}
	return msg, nil
}

// ListMessages returns the latest messages of a mutual match, oldest first.
func (m *Matchmaker) ListMessages(ctx context.Context, userID, matchID string, limit int) ([]domain.Message, error) {
	if limit < 0 {
		return nil, fmt.Errorf("service: %w: limit cannot be negative", domain.ErrInvalidArgument)
	}
	if _, err := m.mutualMatch(ctx, userID, matchID); err != nil {
		return nil, err
	}
	msgs, err := m.store.ListMessages(ctx, matchID, limit)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list messages: %w", err)
	}
	return msgs, nil
}
