package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/npezzotti/go-convo/internal/database"
	"github.com/npezzotti/go-convo/internal/types"
)

// SetTyping records a keystroke signal from principal. Unknown principals and
// non-participants are ignored, and a stop signal without a prior start
// stores nothing.
func (s *Service) SetTyping(ctx context.Context, principal string, conversationId int, isTyping bool) error {
	if principal == "" {
		return nil
	}

	var stored bool
	err := s.repo.WithTx(ctx, func(q database.Queries) error {
		me, ok, err := lookupUser(ctx, q, principal)
		if err != nil || !ok {
			return err
		}

		member, err := q.IsParticipant(ctx, conversationId, me.Id)
		if err != nil {
			return fmt.Errorf("is participant: %w", err)
		}
		if !member {
			return nil
		}

		if !isTyping {
			_, err := q.GetTypingStatus(ctx, conversationId, me.Id)
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("get typing status: %w", err)
			}
		}

		if err := q.UpsertTypingStatus(ctx, database.TypingStatus{
			ConversationId: conversationId,
			UserId:         me.Id,
			IsTyping:       isTyping,
			LastTypedAt:    s.now(),
		}); err != nil {
			return fmt.Errorf("upsert typing status: %w", err)
		}
		stored = true
		return nil
	})
	if err != nil {
		return err
	}

	if stored {
		s.notify(ctx, Change{Topic: TopicTyping, ConversationId: conversationId})
	}

	return nil
}

// GetTyping returns the other participants currently typing in the
// conversation. A typing flag expires TypingWindow after its last refresh.
func (s *Service) GetTyping(ctx context.Context, conversationId int, principal string) ([]types.TypingUser, error) {
	me, ok, err := lookupUser(ctx, s.repo, principal)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []types.TypingUser{}, nil
	}

	statuses, err := s.repo.ListTypingStatuses(ctx, conversationId)
	if err != nil {
		return nil, fmt.Errorf("list typing statuses: %w", err)
	}

	now := s.now()
	var typingIds []int
	for _, ts := range statuses {
		if ts.UserId == me.Id || !ts.IsTyping {
			continue
		}
		if now-ts.LastTypedAt >= TypingWindow.Milliseconds() {
			continue
		}
		typingIds = append(typingIds, ts.UserId)
	}

	out := make([]types.TypingUser, 0, len(typingIds))
	if len(typingIds) == 0 {
		return out, nil
	}

	users, err := s.repo.GetUsersByIds(ctx, typingIds)
	if err != nil {
		return nil, fmt.Errorf("get typing users: %w", err)
	}
	for _, u := range users {
		out = append(out, types.TypingUser{UserId: u.Id, UserName: u.Name})
	}

	return out, nil
}

// MarkRead moves principal's read cursor for the conversation to now.
// Unknown principals and non-participants are ignored.
func (s *Service) MarkRead(ctx context.Context, principal string, conversationId int) error {
	if principal == "" {
		return nil
	}

	var readerId int
	err := s.repo.WithTx(ctx, func(q database.Queries) error {
		me, ok, err := lookupUser(ctx, q, principal)
		if err != nil || !ok {
			return err
		}

		member, err := q.IsParticipant(ctx, conversationId, me.Id)
		if err != nil {
			return fmt.Errorf("is participant: %w", err)
		}
		if !member {
			return nil
		}

		readAt, err := s.conversationNow(ctx, q, conversationId)
		if err != nil {
			return err
		}

		if err := q.UpsertReadStatus(ctx, database.ReadStatus{
			ConversationId: conversationId,
			UserId:         me.Id,
			LastReadAt:     readAt,
		}); err != nil {
			return fmt.Errorf("upsert read status: %w", err)
		}
		readerId = me.Id
		return nil
	})
	if err != nil {
		return err
	}

	if readerId != 0 {
		s.notify(ctx, Change{Topic: TopicConversations, ConversationId: conversationId, UserIds: []int{readerId}})
	}

	return nil
}

// GetUnreadCount returns how many messages from other users arrived in the
// conversation after principal's read cursor.
func (s *Service) GetUnreadCount(ctx context.Context, conversationId int, principal string) (int, error) {
	me, ok, err := lookupUser(ctx, s.repo, principal)
	if err != nil || !ok {
		return 0, err
	}

	return s.unreadCount(ctx, conversationId, me.Id)
}

func (s *Service) unreadCount(ctx context.Context, conversationId, userId int) (int, error) {
	var since int64
	rs, err := s.repo.GetReadStatus(ctx, conversationId, userId)
	switch {
	case err == nil:
		since = rs.LastReadAt
	case !errors.Is(err, sql.ErrNoRows):
		return 0, fmt.Errorf("get read status: %w", err)
	}

	n, err := s.repo.CountUnread(ctx, conversationId, userId, since)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}
