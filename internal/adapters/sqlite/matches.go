package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/ewilliams-labs/duet/internal/core/domain"
)

const matchColumns = "id, user_a, user_b, score, breakdown, decision_a, decision_b, status, mutual, created_at, updated_at"

func scanMatch(s rowScanner) (domain.Match, error) {
	var m domain.Match
	var breakdown, decisionA, decisionB, status string
	if err := s.Scan(&m.ID, &m.UserA, &m.UserB, &m.Score, &breakdown, &decisionA, &decisionB, &status, &m.Mutual, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return domain.Match{}, err
	}
	if err := json.Unmarshal([]byte(breakdown), &m.Breakdown); err != nil {
		return domain.Match{}, fmt.Errorf("sqlite: failed to decode breakdown of %s: %w", m.ID, err)
	}
	m.DecisionA = domain.Decision(decisionA)
	m.DecisionB = domain.Decision(decisionB)
	m.Status = domain.MatchStatus(status)
	return m, nil
}

// UpsertMatch inserts the match or rescores the existing record for the
// same pair, keeping its ID and decisions.
func (a *Adapter) UpsertMatch(ctx context.Context, m domain.Match) (domain.Match, error) {
	m.UserA, m.UserB = domain.OrderPair(m.UserA, m.UserB)
	if m.Status == "" {
		m.Status = domain.MatchPending
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = now
	}

	breakdown, err := json.Marshal(m.Breakdown)
	if err != nil {
		return domain.Match{}, fmt.Errorf("sqlite: failed to encode breakdown: %w", err)
	}

	query := `
		INSERT INTO matches (` + matchColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_a, user_b) DO UPDATE SET
			score=excluded.score,
			breakdown=excluded.breakdown,
			updated_at=excluded.updated_at;
	`
	if _, err := a.db.ExecContext(ctx, query,
		m.ID, m.UserA, m.UserB, m.Score, string(breakdown), string(m.DecisionA), string(m.DecisionB),
		string(m.Status), m.Mutual, m.CreatedAt.UTC(), m.UpdatedAt.UTC(),
	); err != nil {
		if isUniqueViolation(err) {
			return domain.Match{}, fmt.Errorf("sqlite: upsert match %s: %w", m.ID, domain.ErrConflict)
		}
		return domain.Match{}, fmt.Errorf("sqlite: failed to upsert match: %w", err)
	}

	row := a.db.QueryRowContext(ctx, "SELECT "+matchColumns+" FROM matches WHERE user_a = ? AND user_b = ?", m.UserA, m.UserB)
	stored, err := scanMatch(row)
	if err != nil {
		return domain.Match{}, fmt.Errorf("sqlite: failed to reload match: %w", err)
	}
	return stored, nil
}

func (a *Adapter) GetMatch(ctx context.Context, id string) (domain.Match, error) {
	row := a.db.QueryRowContext(ctx, "SELECT "+matchColumns+" FROM matches WHERE id = ?", id)
	m, err := scanMatch(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Match{}, fmt.Errorf("sqlite: match %s: %w", id, domain.ErrNotFound)
		}
		return domain.Match{}, fmt.Errorf("sqlite: failed to load match: %w", err)
	}
	return m, nil
}

func (a *Adapter) ListMatches(ctx context.Context, userID string, status domain.MatchStatus) ([]domain.Match, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT `+matchColumns+`
		FROM matches
		WHERE (user_a = ? OR user_b = ?) AND (? = '' OR status = ?)
		ORDER BY score DESC, id ASC
	`, userID, userID, string(status), string(status))
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list matches: %w", err)
	}
	defer rows.Close()

	matches := []domain.Match{}
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: failed to iterate matches: %w", err)
	}
	return matches, nil
}

// RecordDecision writes only the caller's column; the status is derived
// from the row as it stands inside the same statement.
func (a *Adapter) RecordDecision(ctx context.Context, matchID, userID string, d domain.Decision, at time.Time) (domain.Match, error) {
	res, err := a.db.ExecContext(ctx, `
		UPDATE matches SET
			decision_a = n.a,
			decision_b = n.b,
			status = CASE
				WHEN n.a = @pass OR n.b = @pass THEN @passed
				WHEN n.a = @like AND n.b = @like THEN @liked
				ELSE @pending
			END,
			mutual = (n.a = @like AND n.b = @like),
			updated_at = @at
		FROM (
			SELECT id,
				CASE WHEN user_a = @user THEN @decision ELSE decision_a END AS a,
				CASE WHEN user_b = @user THEN @decision ELSE decision_b END AS b
			FROM matches
			WHERE id = @id
		) AS n
		WHERE matches.id = n.id AND (matches.user_a = @user OR matches.user_b = @user)
	`,
		sql.Named("id", matchID),
		sql.Named("user", userID),
		sql.Named("decision", string(d)),
		sql.Named("at", at.UTC()),
		sql.Named("like", string(domain.DecisionLike)),
		sql.Named("pass", string(domain.DecisionPass)),
		sql.Named("liked", string(domain.MatchLiked)),
		sql.Named("passed", string(domain.MatchPassed)),
		sql.Named("pending", string(domain.MatchPending)),
	)
	if err != nil {
		return domain.Match{}, fmt.Errorf("sqlite: failed to record decision: %w", err)
	}
	if err := requireRow(res, "match "+matchID); err != nil {
		return domain.Match{}, err
	}
	return a.GetMatch(ctx, matchID)
}
