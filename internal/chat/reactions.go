package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/npezzotti/go-convo/internal/database"
	"github.com/npezzotti/go-convo/internal/types"
)

// ToggleReaction adds principal's emoji reaction to a message, or removes it
// when it is already present.
func (s *Service) ToggleReaction(ctx context.Context, principal string, messageId int, emoji string) error {
	if !allowedEmoji[emoji] {
		return newError(KindInvalidArgument, "emoji %q is not allowed", emoji)
	}

	var conversationId int
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
		conversationId = msg.ConversationId

		member, err := q.IsParticipant(ctx, msg.ConversationId, me.Id)
		if err != nil {
			return fmt.Errorf("is participant: %w", err)
		}
		if !member {
			return newError(KindForbidden, "not a participant of conversation %d", msg.ConversationId)
		}

		existing, err := q.GetReaction(ctx, messageId, me.Id, emoji)
		if err == nil {
			return removeReaction(ctx, q, existing.Id)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("get reaction: %w", err)
		}

		_, err = q.CreateReaction(ctx, database.CreateReactionParams{
			MessageId: messageId,
			UserId:    me.Id,
			Emoji:     emoji,
			CreatedAt: s.now(),
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, database.ErrReactionExists) {
			return fmt.Errorf("create reaction: %w", err)
		}

		// a concurrent toggle added the reaction first, so this one removes it
		existing, err = q.GetReaction(ctx, messageId, me.Id, emoji)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get reaction: %w", err)
		}
		return removeReaction(ctx, q, existing.Id)
	})
	if err != nil {
		return err
	}

	s.notify(ctx, Change{Topic: TopicMessages, ConversationId: conversationId})
	return nil
}

func removeReaction(ctx context.Context, q database.Queries, reactionId int) error {
	if err := q.DeleteReaction(ctx, reactionId); err != nil {
		return fmt.Errorf("delete reaction: %w", err)
	}
	return nil
}

// aggregateReactions groups a message's reactions by emoji. Reactions must
// be in insertion order.
func aggregateReactions(reactions []database.Reaction) map[string]types.ReactionGroup {
	groups := make(map[string]types.ReactionGroup)
	for _, r := range reactions {
		g := groups[r.Emoji]
		if contains(g.UserIds, r.UserId) {
			continue
		}
		g.UserIds = append(g.UserIds, r.UserId)
		g.Count = len(g.UserIds)
		groups[r.Emoji] = g
	}
	return groups
}
