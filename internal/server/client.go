package server

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-convo/internal/chat"
	"github.com/npezzotti/go-convo/internal/stats"
	"github.com/rs/zerolog"
	"github.com/teris-io/shortid"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
	queryTimeout   = 5 * time.Second
)

type subscription struct {
	query          Query
	conversationId int
}

type Client struct {
	id         string
	conn       *websocket.Conn
	chatServer *ChatServer
	log        zerolog.Logger
	principal  string
	userId     atomic.Int64
	send       chan *ServerMessage

	// subs maps each subscription to the last payload pushed for it.
	subs     map[subscription][]byte
	pending  map[subscription]struct{}
	subsLock sync.Mutex
	wake     chan struct{}

	stop     chan struct{}
	stopOnce sync.Once
}

func NewClient(principal string, userId int, conn *websocket.Conn, cs *ChatServer, l zerolog.Logger) *Client {
	id, err := shortid.Generate()
	if err != nil {
		id = principal
	}

	c := &Client{
		id:         id,
		conn:       conn,
		chatServer: cs,
		principal:  principal,
		send:       make(chan *ServerMessage, 256),
		subs:       make(map[subscription][]byte),
		pending:    make(map[subscription]struct{}),
		wake:       make(chan struct{}, 1),
		stop:       make(chan struct{}),
	}
	c.log = l.With().Str("client_id", id).Str("principal", principal).Logger()
	c.userId.Store(int64(userId))

	return c
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Debug().Msg("write exiting")
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			raw, err := c.serializeMessage(msg)
			if err != nil {
				c.log.Error().Err(err).Msg("failed to serialize message")
				continue
			}

			if !c.sendMessage(websocket.TextMessage, raw) {
				return
			}
		case <-c.stop:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Debug().Msg("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("ws: read")
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Debug().Err(err).Msg("error parsing message")
			c.queueMessage(ErrInvalidMessage(-1))
			continue
		}
		msg.Timestamp = Now()

		c.handle(&msg)
	}
}

// Evaluate re-runs pending subscription queries and pushes results that
// changed since the last push. It returns when the client stops.
func (c *Client) Evaluate() {
	for {
		select {
		case <-c.wake:
			c.flush()
		case <-c.stop:
			return
		}
	}
}

func (c *Client) handle(msg *ClientMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	engine := c.chatServer.engine
	switch {
	case msg.Subscribe != nil:
		c.subscribe(ctx, msg.Id, msg.Subscribe)
	case msg.Unsubscribe != nil:
		c.unsubscribe(msg.Id, msg.Unsubscribe)
	case msg.Publish != nil:
		if err := engine.SendMessage(ctx, c.principal, msg.Publish.ConversationId, msg.Publish.Body); err != nil {
			resp := ErrFromChat(msg.Id, err)
			resp.Response.Retryable = chat.Retryable(err)
			c.queueMessage(resp)
			return
		}
		c.chatServer.stats.Incr(stats.MetricMessagesSent)
		c.queueMessage(NoErrAccepted(msg.Id))
	case msg.Typing != nil:
		c.reply(msg.Id, engine.SetTyping(ctx, c.principal, msg.Typing.ConversationId, msg.Typing.IsTyping))
	case msg.Read != nil:
		c.reply(msg.Id, engine.MarkRead(ctx, c.principal, msg.Read.ConversationId))
	case msg.Heartbeat != nil:
		c.reply(msg.Id, engine.Heartbeat(ctx, c.principal))
	default:
		c.queueMessage(ErrInvalidMessage(msg.Id))
	}
}

func (c *Client) reply(id int, err error) {
	if err != nil {
		c.log.Debug().Err(err).Msg("request failed")
		c.queueMessage(ErrFromChat(id, err))
		return
	}
	c.queueMessage(NoErrOK(id, nil))
}

func (c *Client) subscribe(ctx context.Context, id int, req *Subscribe) {
	if !req.Query.valid() {
		c.queueMessage(ErrInvalidMessage(id))
		return
	}

	sub := subscription{query: req.Query}
	if req.Query.perConversation() {
		if req.ConversationId <= 0 {
			c.queueMessage(ErrInvalidMessage(id))
			return
		}

		member, err := c.chatServer.engine.IsParticipant(ctx, c.principal, req.ConversationId)
		if err != nil {
			c.log.Error().Err(err).Int("conversation_id", req.ConversationId).Msg("failed to check membership")
			c.queueMessage(ErrInternalError(id))
			return
		}
		if !member {
			c.queueMessage(ErrFromChat(id, chat.ErrForbidden))
			return
		}
		sub.conversationId = req.ConversationId
	}

	c.subsLock.Lock()
	_, exists := c.subs[sub]
	if !exists {
		c.subs[sub] = nil
	}
	c.subsLock.Unlock()

	if !exists {
		c.chatServer.stats.Incr(stats.MetricSubscriptions)
	}

	c.queueMessage(NoErrOK(id, nil))
	c.markPending(sub)
}

func (c *Client) unsubscribe(id int, req *Subscribe) {
	sub := subscription{query: req.Query}
	if req.Query.perConversation() {
		sub.conversationId = req.ConversationId
	}

	c.subsLock.Lock()
	_, exists := c.subs[sub]
	delete(c.subs, sub)
	delete(c.pending, sub)
	c.subsLock.Unlock()

	if exists {
		c.chatServer.stats.Decr(stats.MetricSubscriptions)
	}
	c.queueMessage(NoErrOK(id, nil))
}

// invalidate marks the subscriptions depending on change for re-evaluation.
func (c *Client) invalidate(change chat.Change) {
	userId := int(c.userId.Load())

	c.subsLock.Lock()
	defer c.subsLock.Unlock()

	marked := false
	for sub := range c.subs {
		if affects(sub, change, userId) {
			c.pending[sub] = struct{}{}
			marked = true
		}
	}
	if marked {
		c.signal()
	}
}

// refresh marks every subscription to one of queries for re-evaluation.
func (c *Client) refresh(queries ...Query) {
	c.subsLock.Lock()
	defer c.subsLock.Unlock()

	marked := false
	for sub := range c.subs {
		for _, q := range queries {
			if sub.query == q {
				c.pending[sub] = struct{}{}
				marked = true
			}
		}
	}
	if marked {
		c.signal()
	}
}

func (c *Client) markPending(sub subscription) {
	c.subsLock.Lock()
	defer c.subsLock.Unlock()

	c.pending[sub] = struct{}{}
	c.signal()
}

// signal must be called with subsLock held.
func (c *Client) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func affects(sub subscription, change chat.Change, userId int) bool {
	switch change.Topic {
	case chat.TopicUsers:
		return sub.query == QueryMe || sub.query == QueryUsers || sub.query == QueryConversations
	case chat.TopicConversations:
		return sub.query == QueryConversations && change.AffectsUser(userId)
	case chat.TopicMessages:
		return sub.query == QueryMessages && sub.conversationId == change.ConversationId
	case chat.TopicTyping:
		return sub.query == QueryTyping && sub.conversationId == change.ConversationId
	}
	return false
}

func (c *Client) flush() {
	c.subsLock.Lock()
	pending := c.pending
	c.pending = make(map[subscription]struct{})
	c.subsLock.Unlock()

	for sub := range pending {
		c.push(sub)
	}
}

func (c *Client) push(sub subscription) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	data, err := c.evaluate(ctx, sub)
	if err != nil {
		c.log.Error().Err(err).Str("query", string(sub.query)).Int("conversation_id", sub.conversationId).Msg("failed to evaluate query")
		return
	}

	payload, err := json.Marshal(data)
	if err != nil {
		c.log.Error().Err(err).Str("query", string(sub.query)).Msg("failed to marshal query result")
		return
	}

	c.subsLock.Lock()
	last, ok := c.subs[sub]
	if !ok || (last != nil && bytes.Equal(last, payload)) {
		c.subsLock.Unlock()
		return
	}
	c.subs[sub] = payload
	c.subsLock.Unlock()

	if c.queueMessage(newUpdate(sub.query, sub.conversationId, payload)) {
		c.chatServer.stats.Incr(stats.MetricUpdatesPushed)
		return
	}

	// a dropped update must not count as delivered, or the next identical
	// result would be suppressed
	c.subsLock.Lock()
	if last, ok := c.subs[sub]; ok && bytes.Equal(last, payload) {
		c.subs[sub] = nil
	}
	c.subsLock.Unlock()
}

func (c *Client) evaluate(ctx context.Context, sub subscription) (any, error) {
	engine := c.chatServer.engine

	if c.userId.Load() == 0 || sub.query == QueryMe {
		me, err := engine.GetCurrentUser(ctx, c.principal)
		if err != nil {
			return nil, err
		}
		if me != nil {
			c.userId.Store(int64(me.Id))
		}
		if sub.query == QueryMe {
			return me, nil
		}
	}

	switch sub.query {
	case QueryUsers:
		return engine.ListUsersExcluding(ctx, c.principal)
	case QueryConversations:
		return engine.ListConversations(ctx, c.principal)
	case QueryMessages:
		return engine.ListMessages(ctx, sub.conversationId)
	case QueryTyping:
		return engine.GetTyping(ctx, sub.conversationId, c.principal)
	}
	return nil, nil
}

func (c *Client) subscriptionCount() int {
	c.subsLock.Lock()
	defer c.subsLock.Unlock()
	return len(c.subs)
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Warn().Msg("failed to send message to client, channel is full")
		return false
	}

	return true
}

func (c *Client) serializeMessage(msg *ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Warn().Err(err).Msg("write message")
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) cleanup() {
	c.chatServer.deregister(c)
	c.stopClient()
}
