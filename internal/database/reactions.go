package database

import (
	"context"
	"database/sql"
	"errors"
)

// ErrReactionExists is returned by CreateReaction when the same user already
// reacted to the message with the same emoji.
var ErrReactionExists = errors.New("reaction already exists")

func scanReaction(row rowScanner) (Reaction, error) {
	var r Reaction
	err := row.Scan(
		&r.Id,
		&r.MessageId,
		&r.UserId,
		&r.Emoji,
		&r.CreatedAt,
	)
	return r, err
}

func (q *queries) CreateReaction(ctx context.Context, params CreateReactionParams) (Reaction, error) {
	row := q.conn.QueryRowContext(ctx,
		q.rebind("INSERT INTO reactions (message_id, user_id, emoji, created_at) VALUES (?, ?, ?, ?) "+
			"ON CONFLICT (message_id, user_id, emoji) DO NOTHING RETURNING id, message_id, user_id, emoji, created_at"),
		params.MessageId,
		params.UserId,
		params.Emoji,
		params.CreatedAt,
	)

	r, err := scanReaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Reaction{}, ErrReactionExists
	}
	return r, err
}

func (q *queries) DeleteReaction(ctx context.Context, reactionId int) error {
	_, err := q.conn.ExecContext(ctx,
		q.rebind("DELETE FROM reactions WHERE id = ?"),
		reactionId,
	)

	return err
}

func (q *queries) GetReaction(ctx context.Context, messageId, userId int, emoji string) (Reaction, error) {
	row := q.conn.QueryRowContext(ctx,
		q.rebind("SELECT id, message_id, user_id, emoji, created_at FROM reactions "+
			"WHERE message_id = ? AND user_id = ? AND emoji = ? LIMIT 1"),
		messageId,
		userId,
		emoji,
	)

	return scanReaction(row)
}

// ListReactionsForConversation returns every stored reaction on the
// conversation's messages, including reactions on deleted messages.
func (q *queries) ListReactionsForConversation(ctx context.Context, conversationId int) ([]Reaction, error) {
	rows, err := q.conn.QueryContext(ctx,
		q.rebind("SELECT r.id, r.message_id, r.user_id, r.emoji, r.created_at FROM reactions r "+
			"JOIN messages m ON m.id = r.message_id WHERE m.conversation_id = ? ORDER BY r.id"),
		conversationId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reactions := make([]Reaction, 0)
	for rows.Next() {
		r, err := scanReaction(rows)
		if err != nil {
			return nil, err
		}
		reactions = append(reactions, r)
	}

	return reactions, rows.Err()
}
