package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/npezzotti/go-convo/internal/database"
	"github.com/rs/zerolog"
)

const (
	// OnlineWindow is how long after the last heartbeat a user counts as online.
	OnlineWindow = 60 * time.Second
	// TypingWindow is how long after the last keystroke a typing flag is honored.
	TypingWindow = 3 * time.Second

	DeletedPlaceholder = "This message was deleted"
	DefaultUserName    = "Anonymous"
	DefaultGroupName   = "Group"
	UnknownSenderName  = "Unknown"
)

var allowedEmoji = map[string]bool{
	"👍":  true,
	"❤️": true,
	"😂":  true,
	"😮":  true,
	"😢":  true,
}

// AllowedEmoji returns the emoji accepted by ToggleReaction.
func AllowedEmoji() []string {
	return []string{"👍", "❤️", "😂", "😮", "😢"}
}

// Service is the conversation and presence engine. Every mutation runs in a
// single store transaction and notifies subscribers after it commits.
type Service struct {
	log   zerolog.Logger
	repo  database.ChatRepository
	clock Clock

	mu       sync.RWMutex
	notifier Notifier
}

func NewService(logger zerolog.Logger, repo database.ChatRepository, clock Clock) *Service {
	if clock == nil {
		clock = SystemClock{}
	}

	return &Service{
		log:      logger.With().Str("component", "chat").Logger(),
		repo:     repo,
		clock:    clock,
		notifier: nopNotifier{},
	}
}

func (s *Service) SetNotifier(n Notifier) {
	if n == nil {
		n = nopNotifier{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifier = n
}

func (s *Service) notify(ctx context.Context, changes ...Change) {
	s.mu.RLock()
	n := s.notifier
	s.mu.RUnlock()

	for _, c := range changes {
		n.Notify(ctx, c)
	}
}

func (s *Service) now() int64 {
	return s.clock.Now().UnixMilli()
}

// conversationNow returns the current time, never earlier than the newest
// message in the conversation, so message timestamps and read cursors keep
// moving forward when the clock steps back.
func (s *Service) conversationNow(ctx context.Context, q database.Queries, conversationId int) (int64, error) {
	now := s.now()
	last, err := q.GetLastMessage(ctx, conversationId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return now, nil
		}
		return 0, fmt.Errorf("get last message: %w", err)
	}
	return max(now, last.CreatedAt), nil
}

func isOnline(lastSeen sql.NullInt64, now int64) bool {
	return lastSeen.Valid && now-lastSeen.Int64 < OnlineWindow.Milliseconds()
}

// requireUser resolves principal for a mutation that must fail when the
// caller has no stored profile.
func requireUser(ctx context.Context, q database.Queries, principal string) (database.User, error) {
	if principal == "" {
		return database.User{}, ErrNotAuthenticated
	}

	u, err := q.GetUserByPrincipal(ctx, principal)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.User{}, ErrUnknownUser
		}
		return database.User{}, fmt.Errorf("get user by principal: %w", err)
	}

	return u, nil
}

// lookupUser resolves principal for queries and best-effort mutations. ok is
// false when the principal is empty or unknown.
func lookupUser(ctx context.Context, q database.Queries, principal string) (u database.User, ok bool, err error) {
	if principal == "" {
		return database.User{}, false, nil
	}

	u, err = q.GetUserByPrincipal(ctx, principal)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.User{}, false, nil
		}
		return database.User{}, false, fmt.Errorf("get user by principal: %w", err)
	}

	return u, true, nil
}

func contains(ids []int, id int) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func millisToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullMillisToTime(ms sql.NullInt64) *time.Time {
	if !ms.Valid {
		return nil
	}
	t := millisToTime(ms.Int64)
	return &t
}
