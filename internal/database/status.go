package database

import "context"

func (q *queries) GetTypingStatus(ctx context.Context, conversationId, userId int) (TypingStatus, error) {
	var ts TypingStatus
	err := q.conn.QueryRowContext(ctx,
		q.rebind("SELECT conversation_id, user_id, is_typing, last_typed_at FROM typing_status "+
			"WHERE conversation_id = ? AND user_id = ? LIMIT 1"),
		conversationId,
		userId,
	).Scan(&ts.ConversationId, &ts.UserId, &ts.IsTyping, &ts.LastTypedAt)

	return ts, err
}

func (q *queries) UpsertTypingStatus(ctx context.Context, status TypingStatus) error {
	_, err := q.conn.ExecContext(ctx,
		q.rebind("INSERT INTO typing_status (conversation_id, user_id, is_typing, last_typed_at) VALUES (?, ?, ?, ?) "+
			"ON CONFLICT (conversation_id, user_id) DO UPDATE SET is_typing = excluded.is_typing, last_typed_at = excluded.last_typed_at"),
		status.ConversationId,
		status.UserId,
		status.IsTyping,
		status.LastTypedAt,
	)

	return err
}

func (q *queries) ListTypingStatuses(ctx context.Context, conversationId int) ([]TypingStatus, error) {
	rows, err := q.conn.QueryContext(ctx,
		q.rebind("SELECT conversation_id, user_id, is_typing, last_typed_at FROM typing_status "+
			"WHERE conversation_id = ? ORDER BY user_id"),
		conversationId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	statuses := make([]TypingStatus, 0)
	for rows.Next() {
		var ts TypingStatus
		if err := rows.Scan(&ts.ConversationId, &ts.UserId, &ts.IsTyping, &ts.LastTypedAt); err != nil {
			return nil, err
		}
		statuses = append(statuses, ts)
	}

	return statuses, rows.Err()
}

func (q *queries) GetReadStatus(ctx context.Context, conversationId, userId int) (ReadStatus, error) {
	var rs ReadStatus
	err := q.conn.QueryRowContext(ctx,
		q.rebind("SELECT conversation_id, user_id, last_read_at FROM read_status "+
			"WHERE conversation_id = ? AND user_id = ? LIMIT 1"),
		conversationId,
		userId,
	).Scan(&rs.ConversationId, &rs.UserId, &rs.LastReadAt)

	return rs, err
}

func (q *queries) UpsertReadStatus(ctx context.Context, status ReadStatus) error {
	_, err := q.conn.ExecContext(ctx,
		q.rebind("INSERT INTO read_status (conversation_id, user_id, last_read_at) VALUES (?, ?, ?) "+
			"ON CONFLICT (conversation_id, user_id) DO UPDATE SET last_read_at = excluded.last_read_at"),
		status.ConversationId,
		status.UserId,
		status.LastReadAt,
	)

	return err
}
