package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/npezzotti/go-convo/internal/chat"
)

type Query string

const (
	QueryMe            Query = "me"
	QueryUsers         Query = "users"
	QueryConversations Query = "conversations"
	QueryMessages      Query = "messages"
	QueryTyping        Query = "typing"
)

func (q Query) valid() bool {
	switch q {
	case QueryMe, QueryUsers, QueryConversations, QueryMessages, QueryTyping:
		return true
	}
	return false
}

// perConversation reports whether the query is scoped to one conversation.
func (q Query) perConversation() bool {
	return q == QueryMessages || q == QueryTyping
}

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ClientMessage struct {
	BaseMessage
	Subscribe   *Subscribe `json:"subscribe,omitempty"`
	Unsubscribe *Subscribe `json:"unsubscribe,omitempty"`
	Publish     *Publish   `json:"publish,omitempty"`
	Typing      *Typing    `json:"typing,omitempty"`
	Read        *Read      `json:"read,omitempty"`
	Heartbeat   *Heartbeat `json:"heartbeat,omitempty"`
}

type Subscribe struct {
	Query          Query `json:"query"`
	ConversationId int   `json:"conversation_id,omitempty"`
}

type Publish struct {
	ConversationId int    `json:"conversation_id"`
	Body           string `json:"body"`
}

type Typing struct {
	ConversationId int  `json:"conversation_id"`
	IsTyping       bool `json:"is_typing"`
}

type Read struct {
	ConversationId int `json:"conversation_id"`
}

type Heartbeat struct{}

type ServerMessage struct {
	BaseMessage
	Response *Response `json:"response,omitempty"`
	Update   *Update   `json:"update,omitempty"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
	Retryable    bool   `json:"retryable,omitempty"`
	Data         any    `json:"data,omitempty"`
}

// Update carries the full current result of a subscribed query.
type Update struct {
	Query          Query           `json:"query"`
	ConversationId int             `json:"conversation_id,omitempty"`
	Data           json.RawMessage `json:"data"`
}

func newResponse(id, code int, errMsg string) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: code,
			Error:        errMsg,
		},
	}
}

func NoErrOK(id int, data any) *ServerMessage {
	msg := newResponse(id, http.StatusOK, "")
	msg.Response.Data = data
	return msg
}

func NoErrAccepted(id int) *ServerMessage {
	return newResponse(id, http.StatusAccepted, "")
}

func ErrInvalidMessage(id int) *ServerMessage {
	if id < 0 {
		id = 0
	}
	return newResponse(id, http.StatusBadRequest, "invalid message format")
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return newResponse(id, http.StatusServiceUnavailable, "service unavailable")
}

func ErrInternalError(id int) *ServerMessage {
	return newResponse(id, http.StatusInternalServerError, "internal server error")
}

// ErrFromChat converts an engine error into a response frame. Internal
// errors are not exposed to the client.
func ErrFromChat(id int, err error) *ServerMessage {
	kind := chat.KindOf(err)
	if kind == chat.KindInternal {
		return ErrInternalError(id)
	}
	return newResponse(id, responseCode(kind), err.Error())
}

func responseCode(kind chat.Kind) int {
	switch kind {
	case chat.KindNotAuthenticated:
		return http.StatusUnauthorized
	case chat.KindUnknownUser, chat.KindNotFound:
		return http.StatusNotFound
	case chat.KindForbidden:
		return http.StatusForbidden
	case chat.KindInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func newUpdate(query Query, conversationId int, data json.RawMessage) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Update: &Update{
			Query:          query,
			ConversationId: conversationId,
			Data:           data,
		},
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
