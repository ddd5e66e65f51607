package sqlite

import (
	"context"
	"fmt"
	"slices"

	"github.com/ewilliams-labs/duet/internal/core/domain"
)

func (a *Adapter) AddMessage(ctx context.Context, msg domain.Message) error {
	if _, err := a.db.ExecContext(ctx, `
		INSERT INTO messages (id, match_id, sender_id, body, sent_at) VALUES (?, ?, ?, ?, ?)
	`, msg.ID, msg.MatchID, msg.SenderID, msg.Body, msg.SentAt.UTC()); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("sqlite: message %s: %w", msg.ID, domain.ErrConflict)
		}
		return fmt.Errorf("sqlite: failed to add message: %w", err)
	}
	return nil
}

func (a *Adapter) ListMessages(ctx context.Context, matchID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, match_id, sender_id, body, sent_at
		FROM messages
		WHERE match_id = ?
		ORDER BY sent_at DESC, id DESC
		LIMIT ?
	`, matchID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.MatchID, &m.SenderID, &m.Body, &m.SentAt); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: failed to iterate messages: %w", err)
	}
	slices.Reverse(messages)
	return messages, nil
}
