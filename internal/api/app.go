package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-convo/internal/chat"
	"github.com/npezzotti/go-convo/internal/config"
	"github.com/npezzotti/go-convo/internal/database"
	"github.com/npezzotti/go-convo/internal/server"
	"github.com/rs/zerolog"
)

type ChatApp struct {
	log            zerolog.Logger
	svc            *chat.Service
	cs             *server.ChatServer
	store          database.ChatRepository
	srv            *http.Server
	signingKey     []byte
	allowedOrigins []string
}

func NewChatApp(mux *http.ServeMux, logger zerolog.Logger, svc *chat.Service, cs *server.ChatServer, store database.ChatRepository, cfg *config.Config) *ChatApp {
	s := &ChatApp{
		log:            logger.With().Str("component", "api").Logger(),
		svc:            svc,
		cs:             cs,
		store:          store,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)

	mux.Handle("POST /api/users/me", s.authMiddleware(s.upsertUser))
	mux.Handle("GET /api/users/me", s.authMiddleware(s.currentUser))
	mux.Handle("POST /api/users/me/heartbeat", s.authMiddleware(s.heartbeat))
	mux.Handle("GET /api/users", s.authMiddleware(s.listUsers))

	mux.Handle("POST /api/conversations/direct", s.authMiddleware(s.createDirect))
	mux.Handle("POST /api/conversations/group", s.authMiddleware(s.createGroup))
	mux.Handle("GET /api/conversations", s.authMiddleware(s.listConversations))
	mux.Handle("GET /api/conversations/{id}/messages", s.authMiddleware(s.listMessages))
	mux.Handle("POST /api/conversations/{id}/messages", s.authMiddleware(s.sendMessage))
	mux.Handle("PUT /api/conversations/{id}/typing", s.authMiddleware(s.setTyping))
	mux.Handle("GET /api/conversations/{id}/typing", s.authMiddleware(s.getTyping))
	mux.Handle("POST /api/conversations/{id}/read", s.authMiddleware(s.markRead))
	mux.Handle("GET /api/conversations/{id}/unread", s.authMiddleware(s.unreadCount))

	mux.Handle("DELETE /api/messages/{id}", s.authMiddleware(s.deleteMessage))
	mux.Handle("POST /api/messages/{id}/reactions", s.authMiddleware(s.toggleReaction))

	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.ExposedHeaders([]string{requestIdHeader}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)
	h = s.requestLogger(h)

	s.srv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

// Handler returns the fully wrapped root handler.
func (s *ChatApp) Handler() http.Handler {
	return s.srv.Handler
}

func (s *ChatApp) Start() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("starting server")
	return s.srv.ListenAndServe()
}

func (s *ChatApp) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
