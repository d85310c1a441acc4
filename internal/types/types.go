package types

import (
	"time"
)

type User struct {
	Id        int        `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email,omitempty"`
	AvatarUrl string     `json:"avatar_url"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`
	IsOnline  bool       `json:"is_online"`
	CreatedAt time.Time  `json:"created_at,omitempty"`
}

type Member struct {
	Id        int    `json:"id"`
	Name      string `json:"name"`
	AvatarUrl string `json:"avatar_url"`
	IsOnline  bool   `json:"is_online"`
}

// ConversationSummary is one row of a user's conversation list. Group fields
// are set when IsGroup is true, the OtherUser fields otherwise.
type ConversationSummary struct {
	Id          int  `json:"id"`
	IsGroup     bool `json:"is_group"`
	MemberCount int  `json:"member_count"`

	GroupName     string   `json:"group_name,omitempty"`
	MemberImages  []string `json:"member_images,omitempty"`
	MembersOnline int      `json:"members_online"`
	Members       []Member `json:"members,omitempty"`

	OtherUserId       int        `json:"other_user_id,omitempty"`
	OtherUserName     string     `json:"other_user_name,omitempty"`
	OtherUserImage    string     `json:"other_user_image,omitempty"`
	OtherUserIsOnline bool       `json:"other_user_is_online"`
	OtherUserLastSeen *time.Time `json:"other_user_last_seen,omitempty"`

	LastMessageBody *string   `json:"last_message_body"`
	LastMessageTime time.Time `json:"last_message_time"`
	UnreadCount     int       `json:"unread_count"`
}

type Message struct {
	Id             int                      `json:"id"`
	ConversationId int                      `json:"conversation_id"`
	SenderId       int                      `json:"sender_id"`
	SenderName     string                   `json:"sender_name"`
	SenderImage    string                   `json:"sender_image"`
	Body           string                   `json:"body"`
	Deleted        bool                     `json:"deleted"`
	Reactions      map[string]ReactionGroup `json:"reactions"`
	CreatedAt      time.Time                `json:"created_at"`
}

type ReactionGroup struct {
	Count   int   `json:"count"`
	UserIds []int `json:"user_ids"`
}

type TypingUser struct {
	UserId   int    `json:"user_id"`
	UserName string `json:"user_name"`
}
