package database

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockChatRepository is a testify mock of ChatRepository. WithTx hands the
// mock itself to fn, so expectations set on the query methods apply inside
// transactions as well.
type MockChatRepository struct {
	mock.Mock
}

func (m *MockChatRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
func (m *MockChatRepository) WithTx(ctx context.Context, fn func(q Queries) error) error {
	args := m.Called(ctx)
	if err := args.Error(0); err != nil {
		return err
	}
	return fn(m)
}
func (m *MockChatRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockChatRepository) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) UpdateUser(ctx context.Context, params UpdateUserParams) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}
func (m *MockChatRepository) UpdateUserLastSeen(ctx context.Context, userId int, at int64) error {
	args := m.Called(ctx, userId, at)
	return args.Error(0)
}
func (m *MockChatRepository) GetUserById(ctx context.Context, userId int) (User, error) {
	args := m.Called(ctx, userId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) GetUserByPrincipal(ctx context.Context, principal string) (User, error) {
	args := m.Called(ctx, principal)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) GetUsersByIds(ctx context.Context, userIds []int) ([]User, error) {
	args := m.Called(ctx, userIds)
	if users, ok := args.Get(0).([]User); ok {
		return users, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockChatRepository) ListUsersExcluding(ctx context.Context, userId int) ([]User, error) {
	args := m.Called(ctx, userId)
	if users, ok := args.Get(0).([]User); ok {
		return users, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockChatRepository) CreateConversation(ctx context.Context, params CreateConversationParams) (Conversation, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Conversation), args.Error(1)
}
func (m *MockChatRepository) GetConversation(ctx context.Context, conversationId int) (Conversation, error) {
	args := m.Called(ctx, conversationId)
	return args.Get(0).(Conversation), args.Error(1)
}
func (m *MockChatRepository) GetDirectConversation(ctx context.Context, userA, userB int) (Conversation, error) {
	args := m.Called(ctx, userA, userB)
	return args.Get(0).(Conversation), args.Error(1)
}
func (m *MockChatRepository) ListConversationsForUser(ctx context.Context, userId int) ([]Conversation, error) {
	args := m.Called(ctx, userId)
	if convs, ok := args.Get(0).([]Conversation); ok {
		return convs, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockChatRepository) IsParticipant(ctx context.Context, conversationId, userId int) (bool, error) {
	args := m.Called(ctx, conversationId, userId)
	return args.Bool(0), args.Error(1)
}
func (m *MockChatRepository) CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatRepository) GetMessage(ctx context.Context, messageId int) (Message, error) {
	args := m.Called(ctx, messageId)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatRepository) MarkMessageDeleted(ctx context.Context, messageId int) error {
	args := m.Called(ctx, messageId)
	return args.Error(0)
}
func (m *MockChatRepository) ListMessages(ctx context.Context, conversationId int) ([]Message, error) {
	args := m.Called(ctx, conversationId)
	if msgs, ok := args.Get(0).([]Message); ok {
		return msgs, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockChatRepository) GetLastMessage(ctx context.Context, conversationId int) (Message, error) {
	args := m.Called(ctx, conversationId)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatRepository) CountUnread(ctx context.Context, conversationId, userId int, since int64) (int, error) {
	args := m.Called(ctx, conversationId, userId, since)
	return args.Int(0), args.Error(1)
}
func (m *MockChatRepository) CreateReaction(ctx context.Context, params CreateReactionParams) (Reaction, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Reaction), args.Error(1)
}
func (m *MockChatRepository) DeleteReaction(ctx context.Context, reactionId int) error {
	args := m.Called(ctx, reactionId)
	return args.Error(0)
}
func (m *MockChatRepository) GetReaction(ctx context.Context, messageId, userId int, emoji string) (Reaction, error) {
	args := m.Called(ctx, messageId, userId, emoji)
	return args.Get(0).(Reaction), args.Error(1)
}
func (m *MockChatRepository) ListReactionsForConversation(ctx context.Context, conversationId int) ([]Reaction, error) {
	args := m.Called(ctx, conversationId)
	if reactions, ok := args.Get(0).([]Reaction); ok {
		return reactions, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockChatRepository) GetTypingStatus(ctx context.Context, conversationId, userId int) (TypingStatus, error) {
	args := m.Called(ctx, conversationId, userId)
	return args.Get(0).(TypingStatus), args.Error(1)
}
func (m *MockChatRepository) UpsertTypingStatus(ctx context.Context, status TypingStatus) error {
	args := m.Called(ctx, status)
	return args.Error(0)
}
func (m *MockChatRepository) ListTypingStatuses(ctx context.Context, conversationId int) ([]TypingStatus, error) {
	args := m.Called(ctx, conversationId)
	if statuses, ok := args.Get(0).([]TypingStatus); ok {
		return statuses, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockChatRepository) GetReadStatus(ctx context.Context, conversationId, userId int) (ReadStatus, error) {
	args := m.Called(ctx, conversationId, userId)
	return args.Get(0).(ReadStatus), args.Error(1)
}
func (m *MockChatRepository) UpsertReadStatus(ctx context.Context, status ReadStatus) error {
	args := m.Called(ctx, status)
	return args.Error(0)
}
