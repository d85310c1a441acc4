package database

import (
	"context"
)

const messageColumns = "id, conversation_id, sender_id, body, deleted, created_at"

func scanMessage(row rowScanner) (Message, error) {
	var m Message
	err := row.Scan(
		&m.Id,
		&m.ConversationId,
		&m.SenderId,
		&m.Body,
		&m.Deleted,
		&m.CreatedAt,
	)
	return m, err
}

func (q *queries) CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error) {
	row := q.conn.QueryRowContext(ctx,
		q.rebind("INSERT INTO messages (conversation_id, sender_id, body, deleted, created_at) "+
			"VALUES (?, ?, ?, ?, ?) RETURNING "+messageColumns),
		params.ConversationId,
		params.SenderId,
		params.Body,
		false,
		params.CreatedAt,
	)

	return scanMessage(row)
}

func (q *queries) GetMessage(ctx context.Context, messageId int) (Message, error) {
	row := q.conn.QueryRowContext(ctx,
		q.rebind("SELECT "+messageColumns+" FROM messages WHERE id = ? LIMIT 1"),
		messageId,
	)

	return scanMessage(row)
}

func (q *queries) MarkMessageDeleted(ctx context.Context, messageId int) error {
	_, err := q.conn.ExecContext(ctx,
		q.rebind("UPDATE messages SET deleted = ? WHERE id = ?"),
		true,
		messageId,
	)

	return err
}

// ListMessages returns the conversation's messages oldest first. Messages
// sharing a timestamp keep their insertion order.
func (q *queries) ListMessages(ctx context.Context, conversationId int) ([]Message, error) {
	rows, err := q.conn.QueryContext(ctx,
		q.rebind("SELECT "+messageColumns+" FROM messages WHERE conversation_id = ? ORDER BY created_at ASC, id ASC"),
		conversationId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

func (q *queries) GetLastMessage(ctx context.Context, conversationId int) (Message, error) {
	row := q.conn.QueryRowContext(ctx,
		q.rebind("SELECT "+messageColumns+" FROM messages WHERE conversation_id = ? "+
			"ORDER BY created_at DESC, id DESC LIMIT 1"),
		conversationId,
	)

	return scanMessage(row)
}

// CountUnread counts messages newer than since that were not sent by userId.
func (q *queries) CountUnread(ctx context.Context, conversationId, userId int, since int64) (int, error) {
	var n int
	err := q.conn.QueryRowContext(ctx,
		q.rebind("SELECT COUNT(*) FROM messages WHERE conversation_id = ? AND created_at > ? AND sender_id <> ?"),
		conversationId,
		since,
		userId,
	).Scan(&n)

	return n, err
}
