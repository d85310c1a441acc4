package chat

import "context"

type Topic string

const (
	TopicUsers         Topic = "users"
	TopicConversations Topic = "conversations"
	TopicMessages      Topic = "messages"
	TopicTyping        Topic = "typing"
)

// Change describes committed state that one or more query results depend on.
// An empty UserIds means the change is relevant to every user.
type Change struct {
	Topic          Topic `json:"topic"`
	ConversationId int   `json:"conversation_id,omitempty"`
	UserIds        []int `json:"user_ids,omitempty"`
}

// Notifier receives changes after the mutation producing them commits.
type Notifier interface {
	Notify(ctx context.Context, change Change)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Change) {}

// AffectsUser reports whether a subscriber with userId should re-evaluate
// its queries for this change.
func (c Change) AffectsUser(userId int) bool {
	if len(c.UserIds) == 0 {
		return true
	}
	for _, id := range c.UserIds {
		if id == userId {
			return true
		}
	}
	return false
}
