package domain

import (
	"fmt"
	"time"
)

// MatchStatus is the lifecycle state of a pairing.
type MatchStatus string

const (
	MatchPending MatchStatus = "pending"
	MatchLiked   MatchStatus = "liked"
	MatchPassed  MatchStatus = "passed"
)

// ParseMatchStatus validates a status filter. The empty string means "any".
func ParseMatchStatus(s string) (MatchStatus, error) {
	switch MatchStatus(s) {
	case "", MatchPending, MatchLiked, MatchPassed:
		return MatchStatus(s), nil
	}
	return "", fmt.Errorf("%w: unknown match status %q", ErrInvalidArgument, s)
}

// Decision is one user's response to a match.
type Decision string

const (
	DecisionNone Decision = ""
	DecisionLike Decision = "like"
	DecisionPass Decision = "pass"
)

// Valid reports whether d is a like or a pass.
func (d Decision) Valid() bool {
	return d == DecisionLike || d == DecisionPass
}

// ResolveStatus derives the match status from both decisions: any pass
// makes the match passed, two likes make it liked and mutual, anything
// else stays pending.
func ResolveStatus(a, b Decision) (MatchStatus, bool) {
	switch {
	case a == DecisionPass || b == DecisionPass:
		return MatchPassed, false
	case a == DecisionLike && b == DecisionLike:
		return MatchLiked, true
	default:
		return MatchPending, false
	}
}

// Match pairs two users with their compatibility. UserA always sorts
// before UserB so a pair has exactly one record.
type Match struct {
	ID        string      `json:"id" bson:"_id"`
	UserA     string      `json:"user_a" bson:"user_a"`
	UserB     string      `json:"user_b" bson:"user_b"`
	Score     float64     `json:"score" bson:"score"`
	Breakdown Breakdown   `json:"breakdown" bson:"breakdown"`
	DecisionA Decision    `json:"decision_a,omitempty" bson:"decision_a,omitempty"`
	DecisionB Decision    `json:"decision_b,omitempty" bson:"decision_b,omitempty"`
	Status    MatchStatus `json:"status" bson:"status"`
	Mutual    bool        `json:"mutual" bson:"mutual"`
	CreatedAt time.Time   `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time   `json:"updated_at" bson:"updated_at"`
}

// NewMatch creates a pending match for an unordered pair of users.
func NewMatch(id, user1, user2 string, c Compatibility, now time.Time) (Match, error) {
	if id == "" || user1 == "" || user2 == "" {
		return Match{}, fmt.Errorf("%w: match requires id and two users", ErrInvalidArgument)
	}
	if user1 == user2 {
		return Match{}, fmt.Errorf("%w: cannot match a user with themselves", ErrInvalidArgument)
	}
	a, b := OrderPair(user1, user2)
	return Match{
		ID:        id,
		UserA:     a,
		UserB:     b,
		Score:     clamp01(c.Score),
		Breakdown: c.Breakdown,
		Status:    MatchPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// OrderPair returns the two IDs in canonical order.
func OrderPair(x, y string) (string, string) {
	if x <= y {
		return x, y
	}
	return y, x
}

// Involves reports whether the user is one side of the match.
func (m Match) Involves(userID string) bool {
	return m.UserA == userID || m.UserB == userID
}

// Other returns the ID of the other participant.
func (m Match) Other(userID string) string {
	if m.UserA == userID {
		return m.UserB
	}
	return m.UserA
}

// Decide records a user's decision and recomputes the status.
func (m *Match) Decide(userID string, d Decision, now time.Time) error {
	if !d.Valid() {
		return fmt.Errorf("%w: unknown decision %q", ErrInvalidArgument, d)
	}
	switch userID {
	case m.UserA:
		m.DecisionA = d
	case m.UserB:
		m.DecisionB = d
	default:
		return ErrNotParticipant
	}

	m.Status, m.Mutual = ResolveStatus(m.DecisionA, m.DecisionB)
	m.UpdatedAt = now
	return nil
}

// Rescore refreshes the compatibility of an existing match without
// touching the decisions.
func (m *Match) Rescore(c Compatibility, now time.Time) {
	m.Score = clamp01(c.Score)
	m.Breakdown = c.Breakdown
	m.UpdatedAt = now
}

// Message is a single chat line on a mutual match.
type Message struct {
	ID       string    `json:"id" bson:"_id"`
	MatchID  string    `json:"match_id" bson:"match_id"`
	SenderID string    `json:"sender_id" bson:"sender_id"`
	Body     string    `json:"body" bson:"body"`
	SentAt   time.Time `json:"sent_at" bson:"sent_at"`
}
