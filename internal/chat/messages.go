package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/npezzotti/go-convo/internal/database"
	"github.com/npezzotti/go-convo/internal/types"
)

// SendMessage appends body to the conversation on behalf of principal.
// Only participants may send.
func (s *Service) SendMessage(ctx context.Context, principal string, conversationId int, body string) error {
	body = strings.TrimSpace(body)

	var conv database.Conversation
	err := s.repo.WithTx(ctx, func(q database.Queries) error {
		sender, err := requireUser(ctx, q, principal)
		if err != nil {
			return err
		}
		if body == "" {
			return newError(KindInvalidArgument, "message body is required")
		}

		conv, err = q.GetConversation(ctx, conversationId)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return newError(KindNotFound, "conversation %d not found", conversationId)
			}
			return fmt.Errorf("get conversation: %w", err)
		}
		if !contains(conv.Participants, sender.Id) {
			return newError(KindForbidden, "not a participant of conversation %d", conversationId)
		}

		createdAt, err := s.conversationNow(ctx, q, conversationId)
		if err != nil {
			return err
		}

		if _, err := q.CreateMessage(ctx, database.CreateMessageParams{
			ConversationId: conversationId,
			SenderId:       sender.Id,
			Body:           body,
			CreatedAt:      createdAt,
		}); err != nil {
			return fmt.Errorf("create message: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.notify(ctx,
		Change{Topic: TopicMessages, ConversationId: conversationId},
		Change{Topic: TopicConversations, ConversationId: conversationId, UserIds: conv.Participants},
	)

	return nil
}

// DeleteMessage soft-deletes a message. Only its sender may delete it and
// deletion cannot be undone.
func (s *Service) DeleteMessage(ctx context.Context, principal string, messageId int) error {
	var (
		conv    database.Conversation
		deleted bool
	)
	err := s.repo.WithTx(ctx, func(q database.Queries) error {
		me, err := requireUser(ctx, q, principal)
		if err != nil {
			return err
		}

		msg, err := q.GetMessage(ctx, messageId)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return newError(KindNotFound, "message %d not found", messageId)
			}
			return fmt.Errorf("get message: %w", err)
		}
		if msg.SenderId != me.Id {
			return newError(KindForbidden, "only the sender can delete message %d", messageId)
		}
		if msg.Deleted {
			return nil
		}

		if err := q.MarkMessageDeleted(ctx, messageId); err != nil {
			return fmt.Errorf("mark message deleted: %w", err)
		}

		conv, err = q.GetConversation(ctx, msg.ConversationId)
		if err != nil {
			return fmt.Errorf("get conversation: %w", err)
		}
		deleted = true
		return nil
	})
	if err != nil {
		return err
	}

	if deleted {
		s.notify(ctx,
			Change{Topic: TopicMessages, ConversationId: conv.Id},
			Change{Topic: TopicConversations, ConversationId: conv.Id, UserIds: conv.Participants},
		)
	}

	return nil
}

// ListMessages returns the conversation's messages oldest first with sender
// details and reaction aggregates attached.
func (s *Service) ListMessages(ctx context.Context, conversationId int) ([]types.Message, error) {
	msgs, err := s.repo.ListMessages(ctx, conversationId)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	if len(msgs) == 0 {
		return []types.Message{}, nil
	}

	reactions, err := s.repo.ListReactionsForConversation(ctx, conversationId)
	if err != nil {
		return nil, fmt.Errorf("list reactions: %w", err)
	}
	byMessage := make(map[int][]database.Reaction)
	for _, r := range reactions {
		byMessage[r.MessageId] = append(byMessage[r.MessageId], r)
	}

	var senderIds []int
	for _, m := range msgs {
		if !contains(senderIds, m.SenderId) {
			senderIds = append(senderIds, m.SenderId)
		}
	}
	senders, err := s.repo.GetUsersByIds(ctx, senderIds)
	if err != nil {
		return nil, fmt.Errorf("get senders: %w", err)
	}
	byId := make(map[int]database.User, len(senders))
	for _, u := range senders {
		byId[u.Id] = u
	}

	out := make([]types.Message, len(msgs))
	for i, m := range msgs {
		view := types.Message{
			Id:             m.Id,
			ConversationId: m.ConversationId,
			SenderId:       m.SenderId,
			SenderName:     UnknownSenderName,
			Body:           m.Body,
			Deleted:        m.Deleted,
			CreatedAt:      millisToTime(m.CreatedAt),
		}
		if u, ok := byId[m.SenderId]; ok {
			view.SenderName = u.Name
			view.SenderImage = u.AvatarUrl
		}

		if m.Deleted {
			view.Body = DeletedPlaceholder
			view.Reactions = map[string]types.ReactionGroup{}
		} else {
			view.Reactions = aggregateReactions(byMessage[m.Id])
		}

		out[i] = view
	}

	return out, nil
}
