package database

import "context"

// Queries is the set of statements the chat engine runs. Single-row lookups
// return sql.ErrNoRows when nothing matches.
type Queries interface {
	CreateUser(ctx context.Context, params CreateUserParams) (User, error)
	UpdateUser(ctx context.Context, params UpdateUserParams) error
	UpdateUserLastSeen(ctx context.Context, userId int, at int64) error
	GetUserById(ctx context.Context, userId int) (User, error)
	GetUserByPrincipal(ctx context.Context, principal string) (User, error)
	GetUsersByIds(ctx context.Context, userIds []int) ([]User, error)
	ListUsersExcluding(ctx context.Context, userId int) ([]User, error)

	CreateConversation(ctx context.Context, params CreateConversationParams) (Conversation, error)
	GetConversation(ctx context.Context, conversationId int) (Conversation, error)
	GetDirectConversation(ctx context.Context, userA, userB int) (Conversation, error)
	ListConversationsForUser(ctx context.Context, userId int) ([]Conversation, error)
	IsParticipant(ctx context.Context, conversationId, userId int) (bool, error)

	CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error)
	GetMessage(ctx context.Context, messageId int) (Message, error)
	MarkMessageDeleted(ctx context.Context, messageId int) error
	ListMessages(ctx context.Context, conversationId int) ([]Message, error)
	GetLastMessage(ctx context.Context, conversationId int) (Message, error)
	CountUnread(ctx context.Context, conversationId, userId int, since int64) (int, error)

	CreateReaction(ctx context.Context, params CreateReactionParams) (Reaction, error)
	DeleteReaction(ctx context.Context, reactionId int) error
	GetReaction(ctx context.Context, messageId, userId int, emoji string) (Reaction, error)
	ListReactionsForConversation(ctx context.Context, conversationId int) ([]Reaction, error)

	GetTypingStatus(ctx context.Context, conversationId, userId int) (TypingStatus, error)
	UpsertTypingStatus(ctx context.Context, status TypingStatus) error
	ListTypingStatuses(ctx context.Context, conversationId int) ([]TypingStatus, error)

	GetReadStatus(ctx context.Context, conversationId, userId int) (ReadStatus, error)
	UpsertReadStatus(ctx context.Context, status ReadStatus) error
}

type ChatRepository interface {
	Queries
	Ping(ctx context.Context) error
	// WithTx runs fn in a single transaction. The transaction is committed
	// when fn returns nil and rolled back otherwise.
	WithTx(ctx context.Context, fn func(q Queries) error) error
	Close() error
}
