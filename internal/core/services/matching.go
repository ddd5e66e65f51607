package services

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/ewilliams-labs/duet/internal/core/domain"
	"github.com/ewilliams-labs/duet/internal/logging"
	"github.com/ewilliams-labs/duet/internal/metrics"
)

// CompareProfiles scores two profiles.
func (m *Matchmaker) CompareProfiles(a, b domain.TasteProfile) domain.Compatibility {
	c := m.scorer.Compare(a, b)
	metrics.MatchScores.Observe(c.Score)
	return c
}

// Compare scores the caller against another user.
func (m *Matchmaker) Compare(ctx context.Context, userID, otherID string) (domain.Compatibility, error) {
	self, err := m.GetProfile(ctx, userID)
	if err != nil {
		return domain.Compatibility{}, err
	}
	other, err := m.profileOf(ctx, otherID)
	if err != nil {
		return domain.Compatibility{}, err
	}
	return m.CompareProfiles(self, other), nil
}

// MatchQuery narrows FindMatches. Zero values use the configured defaults.
type MatchQuery struct {
	Limit         int
	MinScore      *float64
	MaxDistanceKm float64
	// Vibe is a free-text description of the taste being looked for.
	Vibe string
}

// Suggestion is a ranked candidate with the match record it was saved as.
type Suggestion struct {
	domain.RankedCandidate
	MatchID     string             `json:"match_id"`
	Status      domain.MatchStatus `json:"status"`
	DisplayName string             `json:"display_name,omitempty"`
	PhotoURL    string             `json:"photo_url,omitempty"`
}

// FindMatches ranks every other user against the caller and records a
// pending match for each suggestion. Pairs either side already passed on
// are not suggested again.
func (m *Matchmaker) FindMatches(ctx context.Context, userID string, q MatchQuery) ([]Suggestion, error) {
	opts, err := m.rankOptions(ctx, userID, q)
	if err != nil {
		return nil, err
	}
	limit := opts.Limit
	opts.Limit = 0

	self, err := m.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !self.Scorable() {
		return nil, fmt.Errorf("service: %w", domain.ErrInsufficientData)
	}

	candidates, err := m.store.ListCandidates(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list candidates: %w", err)
	}

	ranked := m.scorer.RankCandidates(self, candidates, opts)
	now := m.opts.Now()
	out := make([]Suggestion, 0, min(limit, len(ranked)))
	for _, rc := range ranked {
		if len(out) == limit {
			break
		}
		metrics.MatchScores.Observe(rc.Compatibility.Score)

		match, err := domain.NewMatch(m.opts.NewID(), userID, rc.UserID, rc.Compatibility, now)
		if err != nil {
			return nil, fmt.Errorf("service: %w", err)
		}
		saved, err := m.store.UpsertMatch(ctx, match)
		if err != nil {
			return nil, fmt.Errorf("service: failed to save match: %w", err)
		}
		if saved.Status == domain.MatchPassed {
			continue
		}

		s := Suggestion{RankedCandidate: rc, MatchID: saved.ID, Status: saved.Status}
		if u, err := m.store.GetUser(ctx, rc.UserID); err == nil {
			s.DisplayName = u.DisplayName
			s.PhotoURL = u.PhotoURL
		}
		out = append(out, s)
	}

	logging.Ctx(ctx).Info().
		Int("candidates", len(candidates)).
		Int("suggested", len(out)).
		Float64("min_score", opts.MinScore).
		Msg("matches ranked")
	return out, nil
}

func (m *Matchmaker) rankOptions(ctx context.Context, userID string, q MatchQuery) (domain.RankOptions, error) {
	opts := domain.RankOptions{
		MinScore:      m.opts.MinScore,
		Limit:         q.Limit,
		MaxDistanceKm: q.MaxDistanceKm,
	}

	switch {
	case q.Limit < 0:
		return opts, fmt.Errorf("service: %w: limit cannot be negative", domain.ErrInvalidArgument)
	case q.Limit == 0:
		opts.Limit = m.opts.DefaultLimit
	case q.Limit > m.opts.MaxLimit:
		opts.Limit = m.opts.MaxLimit
	}

	if q.MinScore != nil {
		if math.IsNaN(*q.MinScore) || *q.MinScore < 0 || *q.MinScore > 1 {
			return opts, fmt.Errorf("service: %w: min score must be within [0,1]", domain.ErrInvalidArgument)
		}
		opts.MinScore = *q.MinScore
	}

	if math.IsNaN(q.MaxDistanceKm) || math.IsInf(q.MaxDistanceKm, 0) || q.MaxDistanceKm < 0 {
		return opts, fmt.Errorf("service: %w: distance must be a non-negative number", domain.ErrInvalidArgument)
	}
	if q.MaxDistanceKm > 0 {
		u, err := m.GetUser(ctx, userID)
		if err != nil {
			return opts, err
		}
		if u.Location == nil {
			return opts, fmt.Errorf("service: %w: set a location to filter by distance", domain.ErrInvalidArgument)
		}
		opts.Origin = u.Location
	}

	if vibe := strings.TrimSpace(q.Vibe); vibe != "" {
		if m.vibes == nil {
			return opts, ErrVibeUnavailable
		}
		filter, err := m.vibes.InterpretVibe(ctx, vibe)
		if err != nil {
			return opts, fmt.Errorf("service: failed to interpret vibe: %w", err)
		}
		opts.Vibe = &filter
	}
	return opts, nil
}

// ListMatches returns the caller's matches, optionally by status.
func (m *Matchmaker) ListMatches(ctx context.Context, userID, status string) ([]domain.Match, error) {
	st, err := domain.ParseMatchStatus(status)
	if err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}
	matches, err := m.store.ListMatches(ctx, userID, st)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list matches: %w", err)
	}
	return matches, nil
}

// Decide records a like or pass from the caller.
func (m *Matchmaker) Decide(ctx context.Context, userID, matchID string, d domain.Decision) (domain.Match, error) {
	match, err := m.participantMatch(ctx, userID, matchID)
	if err != nil {
		return domain.Match{}, err
	}
	if !d.Valid() {
		return domain.Match{}, fmt.Errorf("service: %w: unknown decision %q", domain.ErrInvalidArgument, d)
	}
	updated, err := m.store.RecordDecision(ctx, match.ID, userID, d, m.opts.Now())
	if err != nil {
		return domain.Match{}, fmt.Errorf("service: failed to record decision: %w", err)
	}

	if updated.Mutual && !match.Mutual {
		logging.Ctx(ctx).Info().Str("match_id", updated.ID).Msg("mutual match")
	}
	return updated, nil
}

func (m *Matchmaker) participantMatch(ctx context.Context, userID, matchID string) (domain.Match, error) {
	if matchID == "" {
		return domain.Match{}, fmt.Errorf("service: %w: match id cannot be empty", domain.ErrInvalidArgument)
	}
	match, err := m.store.GetMatch(ctx, matchID)
	if err != nil {
		return domain.Match{}, fmt.Errorf("service: failed to load match: %w", err)
	}
	if !match.Involves(userID) {
		return domain.Match{}, fmt.Errorf("service: %w", domain.ErrNotParticipant)
	}
	return match, nil
}

func (m *Matchmaker) mutualMatch(ctx context.Context, userID, matchID string) (domain.Match, error) {
	match, err := m.participantMatch(ctx, userID, matchID)
	if err != nil {
		return domain.Match{}, err
	}
	if !match.Mutual {
		return domain.Match{}, fmt.Errorf("service: %w", domain.ErrNotMutual)
	}
	return match, nil
}
