package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-convo/internal/chat"
	"github.com/npezzotti/go-convo/internal/testutil"
	"github.com/npezzotti/go-convo/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hubEnv struct {
	svc *chat.Service
	cs  *ChatServer
	srv *httptest.Server
}

// newHubEnv wires a chat service on sqlite to a running hub and serves
// websocket connections whose principal is taken from the "p" query param.
func newHubEnv(t *testing.T) *hubEnv {
	t.Helper()

	store := testutil.NewTestStore(t)
	svc := chat.NewService(testutil.TestLogger(t), store, nil)
	cs := newTestChatServer(t, svc, newMockStats(), WithRefreshIntervals(time.Hour, time.Hour))
	svc.SetNotifier(cs)
	runChatServer(t, cs)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := NewClient(r.URL.Query().Get("p"), 0, conn, cs, testutil.TestLogger(t))
		cs.RegisterClient(c)
		go c.Write()
		go c.Evaluate()
		go c.Read()
	}))
	t.Cleanup(srv.Close)

	return &hubEnv{svc: svc, cs: cs, srv: srv}
}

func (e *hubEnv) dial(t *testing.T, principal string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/?p=" + principal
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err, "failed to dial websocket")
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (e *hubEnv) upsert(t *testing.T, principal string) int {
	t.Helper()
	id, err := e.svc.UpsertUser(context.Background(), principal, chat.Profile{Name: principal})
	require.NoError(t, err)
	return id
}

func writeFrame(t *testing.T, conn *websocket.Conn, msg ClientMessage) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

// readUntil reads frames until match returns true or the deadline passes.
func readUntil(t *testing.T, conn *websocket.Conn, match func(ServerMessage) bool) ServerMessage {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg ServerMessage
		require.NoError(t, conn.ReadJSON(&msg), "timed out waiting for frame")
		if match(msg) {
			return msg
		}
	}
}

func responseTo(id int) func(ServerMessage) bool {
	return func(m ServerMessage) bool {
		return m.Response != nil && m.Id == id
	}
}

func messagesUpdate(conversationId int, pred func([]types.Message) bool) func(ServerMessage) bool {
	return func(m ServerMessage) bool {
		if m.Update == nil || m.Update.Query != QueryMessages || m.Update.ConversationId != conversationId {
			return false
		}
		var msgs []types.Message
		if err := json.Unmarshal(m.Update.Data, &msgs); err != nil {
			return false
		}
		return pred(msgs)
	}
}

func TestClient_SubscribeMessages(t *testing.T) {
	ctx := context.Background()
	env := newHubEnv(t)

	env.upsert(t, "alice")
	bobId := env.upsert(t, "bob")
	convId, err := env.svc.CreateOrGetDirect(ctx, "alice", bobId)
	require.NoError(t, err)

	conn := env.dial(t, "alice")
	writeFrame(t, conn, ClientMessage{
		BaseMessage: BaseMessage{Id: 1},
		Subscribe:   &Subscribe{Query: QueryMessages, ConversationId: convId},
	})

	resp := readUntil(t, conn, responseTo(1))
	assert.Equal(t, http.StatusOK, resp.Response.ResponseCode)

	readUntil(t, conn, messagesUpdate(convId, func(msgs []types.Message) bool { return len(msgs) == 0 }))

	require.NoError(t, env.svc.SendMessage(ctx, "bob", convId, "hi"))

	update := readUntil(t, conn, messagesUpdate(convId, func(msgs []types.Message) bool { return len(msgs) == 1 }))
	var msgs []types.Message
	require.NoError(t, json.Unmarshal(update.Update.Data, &msgs))
	assert.Equal(t, "hi", msgs[0].Body)
	assert.Equal(t, "bob", msgs[0].SenderName)
}

func TestClient_Publish(t *testing.T) {
	ctx := context.Background()
	env := newHubEnv(t)

	env.upsert(t, "alice")
	bobId := env.upsert(t, "bob")
	convId, err := env.svc.CreateOrGetDirect(ctx, "alice", bobId)
	require.NoError(t, err)

	conn := env.dial(t, "alice")

	tcases := []struct {
		name           string
		id             int
		conversationId int
		body           string
		expectedCode   int
		retryable      bool
	}{
		{name: "accepted", id: 1, conversationId: convId, body: "hello", expectedCode: http.StatusAccepted},
		{name: "empty body", id: 2, conversationId: convId, body: "  ", expectedCode: http.StatusBadRequest},
		{name: "missing conversation", id: 3, conversationId: 9999, body: "hello", expectedCode: http.StatusNotFound},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			writeFrame(t, conn, ClientMessage{
				BaseMessage: BaseMessage{Id: tc.id},
				Publish:     &Publish{ConversationId: tc.conversationId, Body: tc.body},
			})

			resp := readUntil(t, conn, responseTo(tc.id))
			assert.Equal(t, tc.expectedCode, resp.Response.ResponseCode)
			assert.Equal(t, tc.retryable, resp.Response.Retryable)
		})
	}

	msgs, err := env.svc.ListMessages(ctx, convId)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Body)
}

func TestClient_SubscribeRejected(t *testing.T) {
	ctx := context.Background()
	env := newHubEnv(t)

	env.upsert(t, "alice")
	bobId := env.upsert(t, "bob")
	env.upsert(t, "mallory")
	convId, err := env.svc.CreateOrGetDirect(ctx, "alice", bobId)
	require.NoError(t, err)

	conn := env.dial(t, "mallory")

	tcases := []struct {
		name         string
		id           int
		sub          *Subscribe
		expectedCode int
	}{
		{name: "not a participant", id: 1, sub: &Subscribe{Query: QueryMessages, ConversationId: convId}, expectedCode: http.StatusForbidden},
		{name: "typing needs conversation", id: 2, sub: &Subscribe{Query: QueryTyping}, expectedCode: http.StatusBadRequest},
		{name: "unknown query", id: 3, sub: &Subscribe{Query: "rooms"}, expectedCode: http.StatusBadRequest},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			writeFrame(t, conn, ClientMessage{BaseMessage: BaseMessage{Id: tc.id}, Subscribe: tc.sub})
			resp := readUntil(t, conn, responseTo(tc.id))
			assert.Equal(t, tc.expectedCode, resp.Response.ResponseCode)
		})
	}
}

func TestClient_InvalidFrame(t *testing.T) {
	env := newHubEnv(t)
	conn := env.dial(t, "alice")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	resp := readUntil(t, conn, func(m ServerMessage) bool { return m.Response != nil })
	assert.Equal(t, http.StatusBadRequest, resp.Response.ResponseCode)

	writeFrame(t, conn, ClientMessage{BaseMessage: BaseMessage{Id: 7}})
	resp = readUntil(t, conn, responseTo(7))
	assert.Equal(t, http.StatusBadRequest, resp.Response.ResponseCode, "expected frame without action to be rejected")
}

func TestClient_HeartbeatAndRead(t *testing.T) {
	ctx := context.Background()
	env := newHubEnv(t)

	env.upsert(t, "alice")
	bobId := env.upsert(t, "bob")
	convId, err := env.svc.CreateOrGetDirect(ctx, "alice", bobId)
	require.NoError(t, err)
	require.NoError(t, env.svc.SendMessage(ctx, "bob", convId, "unread"))

	conn := env.dial(t, "alice")

	writeFrame(t, conn, ClientMessage{BaseMessage: BaseMessage{Id: 1}, Heartbeat: &Heartbeat{}})
	resp := readUntil(t, conn, responseTo(1))
	assert.Equal(t, http.StatusOK, resp.Response.ResponseCode)

	writeFrame(t, conn, ClientMessage{BaseMessage: BaseMessage{Id: 2}, Read: &Read{ConversationId: convId}})
	resp = readUntil(t, conn, responseTo(2))
	assert.Equal(t, http.StatusOK, resp.Response.ResponseCode)

	me, err := env.svc.GetCurrentUser(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, me.IsOnline, "expected heartbeat to mark user online")

	unread, err := env.svc.GetUnreadCount(ctx, convId, "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, unread)
}

func TestClient_pushSuppressesUnchanged(t *testing.T) {
	env := newHubEnv(t)
	env.upsert(t, "alice")
	env.upsert(t, "bob")

	c := NewClient("alice", 0, nil, env.cs, testutil.TestLogger(t))
	sub := subscription{query: QueryUsers}
	c.subs[sub] = nil

	c.push(sub)
	c.push(sub)
	assert.Len(t, c.send, 1, "expected identical result to be pushed once")

	env.upsert(t, "carol")
	c.push(sub)
	assert.Len(t, c.send, 2, "expected changed result to be pushed")

	update := <-c.send
	assert.Equal(t, QueryUsers, update.Update.Query)
	assert.NotZero(t, c.userId.Load(), "expected user id to be resolved while evaluating")
}

func TestClient_pushRetriesDroppedUpdate(t *testing.T) {
	env := newHubEnv(t)
	env.upsert(t, "alice")
	env.upsert(t, "bob")

	c := NewClient("alice", 0, nil, env.cs, testutil.TestLogger(t))
	sub := subscription{query: QueryUsers}
	c.subs[sub] = nil

	for len(c.send) < cap(c.send) {
		c.send <- &ServerMessage{}
	}

	c.push(sub)
	assert.Nil(t, c.subs[sub], "expected dropped update not to be recorded as pushed")

	for len(c.send) > 0 {
		<-c.send
	}

	c.push(sub)
	require.Len(t, c.send, 1, "expected unchanged result to be pushed after a drop")
	update := <-c.send
	require.NotNil(t, update.Update)
	assert.Equal(t, QueryUsers, update.Update.Query)
}

func TestClient_unsubscribe(t *testing.T) {
	cs := newTestChatServer(t, nil, newMockStats())

	c := NewClient("alice", 1, nil, cs, testutil.TestLogger(t))
	sub := subscription{query: QueryTyping, conversationId: 4}
	c.subs[sub] = nil
	c.pending[sub] = struct{}{}

	c.unsubscribe(3, &Subscribe{Query: QueryTyping, ConversationId: 4})

	assert.Equal(t, 0, c.subscriptionCount())
	assert.False(t, isPending(c, sub))
	resp := <-c.send
	assert.Equal(t, 3, resp.Id)
	assert.Equal(t, http.StatusOK, resp.Response.ResponseCode)
}

func Test_queueMessage(t *testing.T) {
	t.Run("successful queue", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerMessage, 1),
			log:  testutil.TestLogger(t),
		}

		res := c.queueMessage(&ServerMessage{})
		assert.True(t, res, "expected queueMessage to return true when channel is not full")
		assert.Len(t, c.send, 1)
	})
	t.Run("channel full", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerMessage, 1),
			log:  testutil.TestLogger(t),
		}

		c.send <- &ServerMessage{}
		res := c.queueMessage(&ServerMessage{})
		assert.False(t, res, "expected queueMessage to return false when channel is full")
	})
}

func Test_stopClient(t *testing.T) {
	c := &Client{
		stop: make(chan struct{}),
	}

	c.stopClient()
	c.stopClient()

	select {
	case <-c.stop:
	default:
		t.Error("expected stop channel to be closed")
	}
}
