package server

import (
	"context"
	"encoding/json"

	"github.com/npezzotti/go-convo/internal/chat"
)

const redisChangesChannel = "convo:changes"

type relayEnvelope struct {
	Origin string      `json:"origin"`
	Change chat.Change `json:"change"`
}

func (cs *ChatServer) publishRemote(ctx context.Context, change chat.Change) {
	if cs.rdb == nil {
		return
	}

	data, err := json.Marshal(relayEnvelope{Origin: cs.instanceId, Change: change})
	if err != nil {
		cs.log.Error().Err(err).Msg("failed to marshal change")
		return
	}

	if err := cs.rdb.Publish(ctx, redisChangesChannel, data).Err(); err != nil {
		cs.log.Warn().Err(err).Str("topic", string(change.Topic)).Msg("failed to publish change")
	}
}

// subscribeRemote applies changes published by other instances.
func (cs *ChatServer) subscribeRemote() {
	pubsub := cs.rdb.Subscribe(cs.ctx, redisChangesChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}

			env, ok := cs.decodeRemote([]byte(msg.Payload))
			if !ok {
				continue
			}
			cs.enqueue(cs.ctx, env.Change)
		case <-cs.ctx.Done():
			return
		}
	}
}

// decodeRemote parses a relayed change, skipping ones this instance sent.
func (cs *ChatServer) decodeRemote(payload []byte) (relayEnvelope, bool) {
	var env relayEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		cs.log.Warn().Err(err).Msg("invalid relayed change")
		return env, false
	}
	if env.Origin == cs.instanceId {
		return env, false
	}
	return env, true
}
