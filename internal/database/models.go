package database

import "database/sql"

// All *At fields hold unix milliseconds.

type User struct {
	Id         int
	Principal  string
	Name       string
	Email      string
	AvatarUrl  string
	LastSeenAt sql.NullInt64
	CreatedAt  int64
}

type Conversation struct {
	Id      int
	Name    sql.NullString
	IsGroup bool
	// DmKey is set for direct conversations only, see DirectKey.
	DmKey        sql.NullString
	CreatedAt    int64
	Participants []int
}

type Message struct {
	Id             int
	ConversationId int
	SenderId       int
	Body           string
	Deleted        bool
	CreatedAt      int64
}

type Reaction struct {
	Id        int
	MessageId int
	UserId    int
	Emoji     string
	CreatedAt int64
}

type TypingStatus struct {
	ConversationId int
	UserId         int
	IsTyping       bool
	LastTypedAt    int64
}

type ReadStatus struct {
	ConversationId int
	UserId         int
	LastReadAt     int64
}

type CreateUserParams struct {
	Principal string
	Name      string
	Email     string
	AvatarUrl string
	CreatedAt int64
}

type UpdateUserParams struct {
	UserId    int
	Name      string
	Email     string
	AvatarUrl string
}

type CreateConversationParams struct {
	Name         string
	IsGroup      bool
	CreatedAt    int64
	Participants []int
}

type CreateMessageParams struct {
	ConversationId int
	SenderId       int
	Body           string
	CreatedAt      int64
}

type CreateReactionParams struct {
	MessageId int
	UserId    int
	Emoji     string
	CreatedAt int64
}
