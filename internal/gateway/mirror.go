package gateway

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/drope29/api-flashbets/pkg/contracts/events"
)

// envelope embrulha um delta com o escopo de entrega pro Pub/Sub
type envelope struct {
	Scope string      `json:"scope"` // "match" | "account"
	Key   string      `json:"key"`
	Push  events.Push `json:"push"`
}

// RedisMirror espelha cada delta de broadcast num canal Redis Pub/Sub, pra
// réplicas de gateway e consumidores externos. Best-effort: falha vira log.
type RedisMirror struct {
	log     *zap.Logger
	r       *redis.Client
	channel string
}

func NewRedisMirror(log *zap.Logger, r *redis.Client, channel string) *RedisMirror {
	return &RedisMirror{log: log, r: r, channel: channel}
}

func (m *RedisMirror) PublishMatch(matchID string, p events.Push) {
	m.publish(envelope{Scope: "match", Key: matchID, Push: p})
}

func (m *RedisMirror) PublishAccount(accountID string, p events.Push) {
	m.publish(envelope{Scope: "account", Key: accountID, Push: p})
}

func (m *RedisMirror) publish(e envelope) {
	b, _ := json.Marshal(e)
	if err := m.r.Publish(context.Background(), m.channel, b).Err(); err != nil {
		m.log.Debug("broadcast mirror publish", zap.Error(err))
	}
}

// StartRedisSubscriber escuta o canal espelho e repassa os deltas recebidos
// pro hub local. Usado por réplicas de gateway que não hospedam o motor.
func StartRedisSubscriber(ctx context.Context, r *redis.Client, hub *Hub, channel string) {
	sub := r.Subscribe(ctx, channel)
	ch := sub.Channel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg := <-ch:
				if msg == nil {
					continue
				}
				var e envelope
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					continue
				}
				switch e.Scope {
				case "match":
					hub.PublishMatch(e.Key, e.Push)
				case "account":
					hub.PublishAccount(e.Key, e.Push)
				}
			}
		}
	}()
}

// Fanout replica cada delta pra vários alvos (hub local + espelho Redis)
type Fanout []interface {
	PublishMatch(matchID string, p events.Push)
	PublishAccount(accountID string, p events.Push)
}

func (f Fanout) PublishMatch(matchID string, p events.Push) {
	for _, t := range f {
		t.PublishMatch(matchID, p)
	}
}

func (f Fanout) PublishAccount(accountID string, p events.Push) {
	for _, t := range f {
		t.PublishAccount(accountID, p)
	}
}
