package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/npezzotti/go-convo/internal/chat"
	"github.com/npezzotti/go-convo/internal/stats"
	"github.com/npezzotti/go-convo/internal/types"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/teris-io/shortid"
)

const (
	defaultTypingRefresh   = time.Second
	defaultPresenceRefresh = 15 * time.Second
)

// Engine is the part of the chat engine the hub serves to websocket clients.
type Engine interface {
	GetCurrentUser(ctx context.Context, principal string) (*types.User, error)
	ListUsersExcluding(ctx context.Context, principal string) ([]types.User, error)
	ListConversations(ctx context.Context, principal string) ([]types.ConversationSummary, error)
	ListMessages(ctx context.Context, conversationId int) ([]types.Message, error)
	GetTyping(ctx context.Context, conversationId int, principal string) ([]types.TypingUser, error)
	IsParticipant(ctx context.Context, principal string, conversationId int) (bool, error)
	SendMessage(ctx context.Context, principal string, conversationId int, body string) error
	SetTyping(ctx context.Context, principal string, conversationId int, isTyping bool) error
	MarkRead(ctx context.Context, principal string, conversationId int) error
	Heartbeat(ctx context.Context, principal string) error
}

type Option func(*ChatServer)

// WithRedis relays changes through redis so clients connected to other
// instances see them.
func WithRedis(rdb *redis.Client) Option {
	return func(cs *ChatServer) {
		cs.rdb = rdb
	}
}

// WithRefreshIntervals sets how often time-derived views are re-evaluated.
func WithRefreshIntervals(typing, presence time.Duration) Option {
	return func(cs *ChatServer) {
		cs.typingRefresh = typing
		cs.presenceRefresh = presence
	}
}

// ChatServer tracks connected clients and routes committed changes to the
// subscriptions that depend on them.
type ChatServer struct {
	log        zerolog.Logger
	engine     Engine
	stats      stats.StatsProvider
	instanceId string
	rdb        *redis.Client

	clients        map[*Client]struct{}
	clientsLock    sync.Mutex
	registerChan   chan *Client
	deRegisterChan chan *Client
	changeChan     chan chat.Change

	typingRefresh   time.Duration
	presenceRefresh time.Duration

	ctx      context.Context
	cancel   context.CancelFunc
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewChatServer(logger zerolog.Logger, engine Engine, statsProvider stats.StatsProvider, opts ...Option) (*ChatServer, error) {
	instanceId, err := shortid.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate instance id: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cs := &ChatServer{
		log:             logger.With().Str("component", "hub").Str("instance_id", instanceId).Logger(),
		engine:          engine,
		stats:           statsProvider,
		instanceId:      instanceId,
		clients:         make(map[*Client]struct{}),
		registerChan:    make(chan *Client),
		deRegisterChan:  make(chan *Client),
		changeChan:      make(chan chat.Change, 256),
		typingRefresh:   defaultTypingRefresh,
		presenceRefresh: defaultPresenceRefresh,
		ctx:             ctx,
		cancel:          cancel,
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
	}

	for _, opt := range opts {
		opt(cs)
	}

	cs.stats.RegisterMetric(stats.MetricActiveClients)
	cs.stats.RegisterMetric(stats.MetricSubscriptions)
	cs.stats.RegisterMetric(stats.MetricUpdatesPushed)
	cs.stats.RegisterMetric(stats.MetricMessagesSent)

	return cs, nil
}

func (cs *ChatServer) Run() {
	if cs.rdb != nil {
		go cs.subscribeRemote()
	}

	typingTicker := time.NewTicker(cs.typingRefresh)
	presenceTicker := time.NewTicker(cs.presenceRefresh)
	defer func() {
		typingTicker.Stop()
		presenceTicker.Stop()
	}()

	for {
		select {
		case client := <-cs.registerChan:
			cs.log.Debug().Str("client_id", client.id).Msg("adding connection")
			cs.addClient(client)
			cs.stats.Incr(stats.MetricActiveClients)
		case client := <-cs.deRegisterChan:
			cs.log.Debug().Str("client_id", client.id).Msg("removing connection")
			if cs.removeClient(client) {
				cs.stats.Decr(stats.MetricActiveClients)
				for i := client.subscriptionCount(); i > 0; i-- {
					cs.stats.Decr(stats.MetricSubscriptions)
				}
			}
		case change := <-cs.changeChan:
			cs.dispatch(change)
		case <-typingTicker.C:
			cs.refreshAll(QueryTyping)
		case <-presenceTicker.C:
			cs.refreshAll(QueryMe, QueryUsers, QueryConversations)
		case <-cs.stop:
			cs.log.Info().Msg("closing client connections")
			cs.clientsLock.Lock()
			for c := range cs.clients {
				c.stopClient()
			}
			cs.clientsLock.Unlock()

			close(cs.done)
			return
		}
	}
}

// Notify implements chat.Notifier. Local clients see the change through the
// hub loop, other instances through redis.
func (cs *ChatServer) Notify(ctx context.Context, change chat.Change) {
	cs.publishRemote(ctx, change)
	cs.enqueue(ctx, change)
}

func (cs *ChatServer) enqueue(ctx context.Context, change chat.Change) {
	select {
	case cs.changeChan <- change:
	case <-cs.stop:
	case <-ctx.Done():
		cs.log.Warn().Str("topic", string(change.Topic)).Msg("dropped change, context done")
	}
}

func (cs *ChatServer) dispatch(change chat.Change) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	for c := range cs.clients {
		c.invalidate(change)
	}
}

func (cs *ChatServer) refreshAll(queries ...Query) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	for c := range cs.clients {
		c.refresh(queries...)
	}
}

func (cs *ChatServer) RegisterClient(c *Client) {
	select {
	case cs.registerChan <- c:
	case <-cs.stop:
		c.stopClient()
	}
}

func (cs *ChatServer) deregister(c *Client) {
	select {
	case cs.deRegisterChan <- c:
	case <-cs.done:
	}
}

func (cs *ChatServer) addClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	cs.clients[c] = struct{}{}
}

func (cs *ChatServer) removeClient(c *Client) bool {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	if _, ok := cs.clients[c]; !ok {
		return false
	}
	delete(cs.clients, c)
	return true
}

func (cs *ChatServer) numClients() int {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	return len(cs.clients)
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Info().Msg("received shutdown signal")
	cs.stopOnce.Do(func() {
		cs.cancel()
		close(cs.stop)
	})

	select {
	case <-cs.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
