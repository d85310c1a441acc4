package chat

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/npezzotti/go-convo/internal/database"
	"github.com/npezzotti/go-convo/internal/types"
)

type conversationKind int

const (
	kindDirect conversationKind = iota
	kindGroup
)

func kindOf(c database.Conversation) conversationKind {
	if c.IsGroup {
		return kindGroup
	}
	return kindDirect
}

// CreateOrGetDirect returns the direct conversation between principal and
// otherUserId, creating it if it does not exist yet. Concurrent first calls
// for the same pair converge on one conversation through the store's unique
// direct key.
func (s *Service) CreateOrGetDirect(ctx context.Context, principal string, otherUserId int) (int, error) {
	var (
		conv    database.Conversation
		created bool
	)
	err := s.repo.WithTx(ctx, func(q database.Queries) error {
		me, err := requireUser(ctx, q, principal)
		if err != nil {
			return err
		}
		if otherUserId == me.Id {
			return newError(KindInvalidArgument, "cannot start a conversation with yourself")
		}

		if _, err := q.GetUserById(ctx, otherUserId); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return newError(KindNotFound, "user %d not found", otherUserId)
			}
			return fmt.Errorf("get user: %w", err)
		}

		conv, err = q.GetDirectConversation(ctx, me.Id, otherUserId)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("get direct conversation: %w", err)
		}

		conv, err = q.CreateConversation(ctx, database.CreateConversationParams{
			CreatedAt:    s.now(),
			Participants: []int{me.Id, otherUserId},
		})
		if errors.Is(err, database.ErrDirectConversationExists) {
			conv, err = q.GetDirectConversation(ctx, me.Id, otherUserId)
			if err != nil {
				return fmt.Errorf("get direct conversation: %w", err)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("create conversation: %w", err)
		}

		created = true
		return nil
	})
	if err != nil {
		return 0, err
	}

	if created {
		s.log.Info().Int("conversation_id", conv.Id).Ints("participants", conv.Participants).Msg("created direct conversation")
		s.notify(ctx, Change{Topic: TopicConversations, ConversationId: conv.Id, UserIds: conv.Participants})
	}

	return conv.Id, nil
}

// CreateGroup always creates a new group conversation made of principal and
// memberIds.
func (s *Service) CreateGroup(ctx context.Context, principal, name string, memberIds []int) (int, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, newError(KindInvalidArgument, "group name is required")
	}
	if len(memberIds) == 0 {
		return 0, newError(KindInvalidArgument, "at least one member is required")
	}

	var conv database.Conversation
	err := s.repo.WithTx(ctx, func(q database.Queries) error {
		me, err := requireUser(ctx, q, principal)
		if err != nil {
			return err
		}

		participants := []int{me.Id}
		for _, id := range memberIds {
			if !contains(participants, id) {
				participants = append(participants, id)
			}
		}
		if len(participants) < 2 {
			return newError(KindInvalidArgument, "a group needs at least one other member")
		}

		found, err := q.GetUsersByIds(ctx, participants[1:])
		if err != nil {
			return fmt.Errorf("get members: %w", err)
		}
		if len(found) != len(participants)-1 {
			return newError(KindNotFound, "one or more members not found")
		}

		conv, err = q.CreateConversation(ctx, database.CreateConversationParams{
			Name:         name,
			IsGroup:      true,
			CreatedAt:    s.now(),
			Participants: participants,
		})
		if err != nil {
			return fmt.Errorf("create conversation: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.Info().Int("conversation_id", conv.Id).Int("members", len(conv.Participants)).Msg("created group conversation")
	s.notify(ctx, Change{Topic: TopicConversations, ConversationId: conv.Id, UserIds: conv.Participants})

	return conv.Id, nil
}

// ListConversations returns principal's conversations, most recently active
// first. Direct conversations whose other participant no longer exists are
// left out.
func (s *Service) ListConversations(ctx context.Context, principal string) ([]types.ConversationSummary, error) {
	me, ok, err := lookupUser(ctx, s.repo, principal)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []types.ConversationSummary{}, nil
	}

	convs, err := s.repo.ListConversationsForUser(ctx, me.Id)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	now := s.now()
	summaries := make([]types.ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		summary, ok, err := s.summarize(ctx, conv, me.Id, now)
		if err != nil {
			return nil, err
		}
		if ok {
			summaries = append(summaries, summary)
		}
	}

	slices.SortStableFunc(summaries, func(a, b types.ConversationSummary) int {
		if c := b.LastMessageTime.Compare(a.LastMessageTime); c != 0 {
			return c
		}
		return cmp.Compare(b.Id, a.Id)
	})

	return summaries, nil
}

func (s *Service) summarize(ctx context.Context, conv database.Conversation, userId int, now int64) (types.ConversationSummary, bool, error) {
	summary := types.ConversationSummary{
		Id:              conv.Id,
		LastMessageTime: millisToTime(conv.CreatedAt),
	}

	last, err := s.repo.GetLastMessage(ctx, conv.Id)
	switch {
	case err == nil:
		body := last.Body
		if last.Deleted {
			body = DeletedPlaceholder
		}
		summary.LastMessageBody = &body
		summary.LastMessageTime = millisToTime(last.CreatedAt)
	case !errors.Is(err, sql.ErrNoRows):
		return summary, false, fmt.Errorf("get last message: %w", err)
	}

	unread, err := s.unreadCount(ctx, conv.Id, userId)
	if err != nil {
		return summary, false, err
	}
	summary.UnreadCount = unread

	switch kindOf(conv) {
	case kindGroup:
		users, err := s.repo.GetUsersByIds(ctx, conv.Participants)
		if err != nil {
			return summary, false, fmt.Errorf("get members: %w", err)
		}
		byId := make(map[int]database.User, len(users))
		for _, u := range users {
			byId[u.Id] = u
		}

		summary.IsGroup = true
		summary.GroupName = DefaultGroupName
		if conv.Name.Valid && conv.Name.String != "" {
			summary.GroupName = conv.Name.String
		}
		summary.Members = make([]types.Member, 0, len(conv.Participants))
		summary.MemberImages = make([]string, 0, 3)
		for _, id := range conv.Participants {
			u, ok := byId[id]
			if !ok {
				continue
			}
			online := isOnline(u.LastSeenAt, now)
			if online {
				summary.MembersOnline++
			}
			if len(summary.MemberImages) < 3 {
				summary.MemberImages = append(summary.MemberImages, u.AvatarUrl)
			}
			summary.Members = append(summary.Members, types.Member{
				Id:        u.Id,
				Name:      u.Name,
				AvatarUrl: u.AvatarUrl,
				IsOnline:  online,
			})
		}
		summary.MemberCount = len(summary.Members)

	case kindDirect:
		otherId := 0
		for _, id := range conv.Participants {
			if id != userId {
				otherId = id
				break
			}
		}
		if otherId == 0 {
			return summary, false, nil
		}

		other, err := s.repo.GetUserById(ctx, otherId)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				s.log.Debug().Int("conversation_id", conv.Id).Int("user_id", otherId).Msg("skipping conversation with missing user")
				return summary, false, nil
			}
			return summary, false, fmt.Errorf("get user: %w", err)
		}

		summary.MemberCount = 2
		summary.OtherUserId = other.Id
		summary.OtherUserName = other.Name
		summary.OtherUserImage = other.AvatarUrl
		summary.OtherUserIsOnline = isOnline(other.LastSeenAt, now)
		summary.OtherUserLastSeen = nullMillisToTime(other.LastSeenAt)
	}

	return summary, true, nil
}

// IsParticipant reports whether principal is a member of conversationId.
func (s *Service) IsParticipant(ctx context.Context, principal string, conversationId int) (bool, error) {
	me, ok, err := lookupUser(ctx, s.repo, principal)
	if err != nil || !ok {
		return false, err
	}

	member, err := s.repo.IsParticipant(ctx, conversationId, me.Id)
	if err != nil {
		return false, fmt.Errorf("is participant: %w", err)
	}
	return member, nil
}
