package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-convo/internal/chat"
	"github.com/npezzotti/go-convo/internal/server"
)

type CreateDirectRequest struct {
	OtherUserId int `json:"other_user_id" validate:"required,gt=0"`
}

type CreateGroupRequest struct {
	Name      string `json:"name" validate:"required"`
	MemberIds []int  `json:"member_ids" validate:"required,min=1,dive,gt=0"`
}

type SendMessageRequest struct {
	Body string `json:"body" validate:"required"`
}

type ReactionRequest struct {
	Emoji string `json:"emoji" validate:"required,reaction"`
}

type TypingRequest struct {
	IsTyping *bool `json:"is_typing" validate:"required"`
}

type IdResponse struct {
	Id int `json:"id"`
}

type UnreadResponse struct {
	UnreadCount int `json:"unread_count"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("reaction", func(fl validator.FieldLevel) bool {
		return slices.Contains(chat.AllowedEmoji(), fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

func decodeRequest(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("validate body: %w", err)
	}
	return nil
}

func pathId(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	return id, err == nil && id > 0
}

func (s *ChatApp) writeJson(w http.ResponseWriter, r *http.Request, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger(r).Error().Err(err).Msg("json encode")
	}
}

func (s *ChatApp) writeError(w http.ResponseWriter, r *http.Request, errResp *ApiError) {
	if errResp.StatusCode >= http.StatusInternalServerError {
		s.logger(r).Error().Err(errResp.Err).Str("path", r.URL.Path).Msg("request failed")
	}
	s.writeJson(w, r, errResp.StatusCode, errResp)
}

func (s *ChatApp) identity(w http.ResponseWriter, r *http.Request) (Identity, bool) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		s.writeError(w, r, NewUnauthorizedError())
	}
	return id, ok
}

func (s *ChatApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger(r).Error().Err(err).Msg("health check failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *ChatApp) upsertUser(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}

	userId, err := s.svc.UpsertUser(r.Context(), id.Principal, id.Profile)
	if err != nil {
		s.writeError(w, r, NewChatError(err))
		return
	}

	s.writeJson(w, r, http.StatusOK, IdResponse{Id: userId})
}

func (s *ChatApp) currentUser(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}

	user, err := s.svc.GetCurrentUser(r.Context(), id.Principal)
	if err != nil {
		s.writeError(w, r, NewChatError(err))
		return
	}
	if user == nil {
		s.writeError(w, r, NewChatError(chat.ErrUnknownUser))
		return
	}

	s.writeJson(w, r, http.StatusOK, user)
}

func (s *ChatApp) heartbeat(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}

	if err := s.svc.Heartbeat(r.Context(), id.Principal); err != nil {
		s.writeError(w, r, NewChatError(err))
		return
	}

	s.writeJson(w, r, http.StatusNoContent, nil)
}

func (s *ChatApp) listUsers(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}

	users, err := s.svc.ListUsersExcluding(r.Context(), id.Principal)
	if err != nil {
		s.writeError(w, r, NewChatError(err))
		return
	}

	s.writeJson(w, r, http.StatusOK, users)
}

func (s *ChatApp) createDirect(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}

	var req CreateDirectRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, r, NewBadRequestError())
		return
	}

	convId, err := s.svc.CreateOrGetDirect(r.Context(), id.Principal, req.OtherUserId)
	if err != nil {
		s.writeError(w, r, NewChatError(err))
		return
	}

	s.writeJson(w, r, http.StatusOK, IdResponse{Id: convId})
}

func (s *ChatApp) createGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}

	var req CreateGroupRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, r, NewBadRequestError())
		return
	}

	convId, err := s.svc.CreateGroup(r.Context(), id.Principal, req.Name, req.MemberIds)
	if err != nil {
		s.writeError(w, r, NewChatError(err))
		return
	}

	s.writeJson(w, r, http.StatusCreated, IdResponse{Id: convId})
}

func (s *ChatApp) listConversations(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}

	convs, err := s.svc.ListConversations(r.Context(), id.Principal)
	if err != nil {
		s.writeError(w, r, NewChatError(err))
		return
	}

	s.writeJson(w, r, http.StatusOK, convs)
}

// requireParticipant resolves the conversation id path value and rejects
// callers outside the conversation.
func (s *ChatApp) requireParticipant(w http.ResponseWriter, r *http.Request, principal string) (int, bool) {
	convId, ok := pathId(r)
	if !ok {
		s.writeError(w, r, NewBadRequestError())
		return 0, false
	}

	member, err := s.svc.IsParticipant(r.Context(), principal, convId)
	if err != nil {
		s.writeError(w, r, NewChatError(err))
		return 0, false
	}
	if !member {
		s.writeError(w, r, NewForbiddenError())
		return 0, false
	}

	return convId, true
}

func (s *ChatApp) listMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}

	convId, ok := s.requireParticipant(w, r, id.Principal)
	if !ok {
		return
	}

	msgs, err := s.svc.ListMessages(r.Context(), convId)
	if err != nil {
		s.writeError(w, r, NewChatError(err))
		return
	}

	s.writeJson(w, r, http.StatusOK, msgs)
}

func (s *ChatApp) sendMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}

	convId, ok := pathId(r)
	if !ok {
		s.writeError(w, r, NewBadRequestError())
		return
	}

	var req SendMessageRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, r, NewBadRequestError())
		return
	}

	if err := s.svc.SendMessage(r.Context(), id.Principal, convId, req.Body); err != nil {
		errResp := NewChatError(err)
		// the draft stays with the client, which may offer to resend it
		errResp.Retryable = chat.Retryable(err)
		s.writeError(w, r, errResp)
		return
	}

	s.writeJson(w, r, http.StatusAccepted, nil)
}

func (s *ChatApp) deleteMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}

	msgId, ok := pathId(r)
	if !ok {
		s.writeError(w, r, NewBadRequestError())
		return
	}

	if err := s.svc.DeleteMessage(r.Context(), id.Principal, msgId); err != nil {
		s.writeError(w, r, NewChatError(err))
		return
	}

	s.writeJson(w, r, http.StatusNoContent, nil)
}

func (s *ChatApp) toggleReaction(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}

	msgId, ok := pathId(r)
	if !ok {
		s.writeError(w, r, NewBadRequestError())
		return
	}

	var req ReactionRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, r, NewBadRequestError())
		return
	}

	if err := s.svc.ToggleReaction(r.Context(), id.Principal, msgId, req.Emoji); err != nil {
		s.writeError(w, r, NewChatError(err))
		return
	}

	s.writeJson(w, r, http.StatusNoContent, nil)
}

func (s *ChatApp) setTyping(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}

	convId, ok := pathId(r)
	if !ok {
		s.writeError(w, r, NewBadRequestError())
		return
	}

	var req TypingRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, r, NewBadRequestError())
		return
	}

	if err := s.svc.SetTyping(r.Context(), id.Principal, convId, *req.IsTyping); err != nil {
		s.writeError(w, r, NewChatError(err))
		return
	}

	s.writeJson(w, r, http.StatusNoContent, nil)
}

func (s *ChatApp) getTyping(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}

	convId, ok := s.requireParticipant(w, r, id.Principal)
	if !ok {
		return
	}

	typing, err := s.svc.GetTyping(r.Context(), convId, id.Principal)
	if err != nil {
		s.writeError(w, r, NewChatError(err))
		return
	}

	s.writeJson(w, r, http.StatusOK, typing)
}

func (s *ChatApp) markRead(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}

	convId, ok := pathId(r)
	if !ok {
		s.writeError(w, r, NewBadRequestError())
		return
	}

	if err := s.svc.MarkRead(r.Context(), id.Principal, convId); err != nil {
		s.writeError(w, r, NewChatError(err))
		return
	}

	s.writeJson(w, r, http.StatusNoContent, nil)
}

func (s *ChatApp) unreadCount(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}

	convId, ok := s.requireParticipant(w, r, id.Principal)
	if !ok {
		return
	}

	n, err := s.svc.GetUnreadCount(r.Context(), convId, id.Principal)
	if err != nil {
		s.writeError(w, r, NewChatError(err))
		return
	}

	s.writeJson(w, r, http.StatusOK, UnreadResponse{UnreadCount: n})
}

func (s *ChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(w, r)
	if !ok {
		return
	}

	// the client resolves its user id lazily when the profile does not exist yet
	var userId int
	user, err := s.svc.GetCurrentUser(r.Context(), id.Principal)
	if err != nil {
		s.writeError(w, r, NewChatError(err))
		return
	}
	if user != nil {
		userId = user.Id
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				// if no origin header, allow the request
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger(r).Warn().Err(err).Msg("error upgrading connection")
		return
	}

	client := server.NewClient(id.Principal, userId, conn, s.cs, *s.logger(r))

	s.cs.RegisterClient(client)
	go client.Write()
	go client.Evaluate()
	go client.Read()
}
