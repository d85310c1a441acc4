package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrDirectConversationExists is returned by CreateConversation when a direct
// conversation between the same two users was committed concurrently.
var ErrDirectConversationExists = errors.New("direct conversation already exists")

const conversationColumns = "c.id, c.name, c.is_group, c.dm_key, c.created_at"

func scanConversation(row rowScanner) (Conversation, error) {
	var c Conversation
	err := row.Scan(
		&c.Id,
		&c.Name,
		&c.IsGroup,
		&c.DmKey,
		&c.CreatedAt,
	)
	return c, err
}

func (q *queries) CreateConversation(ctx context.Context, params CreateConversationParams) (Conversation, error) {
	var dmKey sql.NullString
	if !params.IsGroup {
		if len(params.Participants) != 2 {
			return Conversation{}, fmt.Errorf("direct conversation needs 2 participants, got %d", len(params.Participants))
		}
		dmKey = sql.NullString{String: DirectKey(params.Participants[0], params.Participants[1]), Valid: true}
	}

	row := q.conn.QueryRowContext(ctx,
		q.rebind("INSERT INTO conversations (name, is_group, dm_key, created_at) VALUES (?, ?, ?, ?) "+
			"ON CONFLICT (dm_key) DO NOTHING RETURNING id, name, is_group, dm_key, created_at"),
		sql.NullString{String: params.Name, Valid: params.Name != ""},
		params.IsGroup,
		dmKey,
		params.CreatedAt,
	)

	conv, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Conversation{}, ErrDirectConversationExists
		}
		return Conversation{}, err
	}

	for i, userId := range params.Participants {
		_, err := q.conn.ExecContext(ctx,
			q.rebind("INSERT INTO conversation_participants (conversation_id, user_id, ordinal) VALUES (?, ?, ?)"),
			conv.Id,
			userId,
			i,
		)
		if err != nil {
			return Conversation{}, fmt.Errorf("add participant %d: %w", userId, err)
		}
	}

	conv.Participants = append([]int(nil), params.Participants...)
	return conv, nil
}

func (q *queries) GetConversation(ctx context.Context, conversationId int) (Conversation, error) {
	row := q.conn.QueryRowContext(ctx,
		q.rebind("SELECT "+conversationColumns+" FROM conversations c WHERE c.id = ? LIMIT 1"),
		conversationId,
	)

	conv, err := scanConversation(row)
	if err != nil {
		return Conversation{}, err
	}

	participants, err := q.participants(ctx, []int{conv.Id})
	if err != nil {
		return Conversation{}, err
	}
	conv.Participants = participants[conv.Id]

	return conv, nil
}

func (q *queries) GetDirectConversation(ctx context.Context, userA, userB int) (Conversation, error) {
	row := q.conn.QueryRowContext(ctx,
		q.rebind("SELECT "+conversationColumns+" FROM conversations c WHERE c.dm_key = ? LIMIT 1"),
		DirectKey(userA, userB),
	)

	conv, err := scanConversation(row)
	if err != nil {
		return Conversation{}, err
	}

	participants, err := q.participants(ctx, []int{conv.Id})
	if err != nil {
		return Conversation{}, err
	}
	conv.Participants = participants[conv.Id]

	return conv, nil
}

func (q *queries) ListConversationsForUser(ctx context.Context, userId int) ([]Conversation, error) {
	rows, err := q.conn.QueryContext(ctx,
		q.rebind("SELECT "+conversationColumns+" FROM conversations c "+
			"JOIN conversation_participants p ON p.conversation_id = c.id "+
			"WHERE p.user_id = ? ORDER BY c.id"),
		userId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	convs := make([]Conversation, 0)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if len(convs) == 0 {
		return convs, nil
	}

	ids := make([]int, len(convs))
	for i, c := range convs {
		ids[i] = c.Id
	}

	participants, err := q.participants(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range convs {
		convs[i].Participants = participants[convs[i].Id]
	}

	return convs, nil
}

func (q *queries) IsParticipant(ctx context.Context, conversationId, userId int) (bool, error) {
	var n int
	err := q.conn.QueryRowContext(ctx,
		q.rebind("SELECT COUNT(*) FROM conversation_participants WHERE conversation_id = ? AND user_id = ?"),
		conversationId,
		userId,
	).Scan(&n)

	return n > 0, err
}

// participants returns the ordered participant ids keyed by conversation id.
func (q *queries) participants(ctx context.Context, conversationIds []int) (map[int][]int, error) {
	rows, err := q.conn.QueryContext(ctx,
		q.rebind("SELECT conversation_id, user_id FROM conversation_participants "+
			"WHERE conversation_id IN ("+placeholders(len(conversationIds))+") ORDER BY conversation_id, ordinal"),
		intArgs(conversationIds)...,
	)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	out := make(map[int][]int, len(conversationIds))
	for rows.Next() {
		var convId, userId int
		if err := rows.Scan(&convId, &userId); err != nil {
			return nil, err
		}
		out[convId] = append(out[convId], userId)
	}

	return out, rows.Err()
}
