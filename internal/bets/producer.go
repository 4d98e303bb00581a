package bets

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/drope29/api-flashbets/internal/shared/kafka"
	"github.com/drope29/api-flashbets/pkg/contracts/events"
)

// KafkaPublisher emite os eventos de domínio do pipeline. Publicação é
// best-effort: falha vira log, nunca bloqueia o aceite.
type KafkaPublisher struct {
	log      *zap.Logger
	accepted *kafka.Writer
	settled  *kafka.Writer
	finished *kafka.Writer
}

// NewKafkaPublisher cria um writer por tópico; os nomes vêm da configuração
// (defaults em pkg/contracts/topics)
func NewKafkaPublisher(log *zap.Logger, brokers, accepted, settled, finished string) *KafkaPublisher {
	return &KafkaPublisher{
		log:      log,
		accepted: kafka.NewWriter(brokers, accepted),
		settled:  kafka.NewWriter(brokers, settled),
		finished: kafka.NewWriter(brokers, finished),
	}
}

func (p *KafkaPublisher) Close() {
	_ = p.accepted.Close()
	_ = p.settled.Close()
	_ = p.finished.Close()
}

func (p *KafkaPublisher) PublishBetAccepted(ctx context.Context, e events.BetAccepted) error {
	e.TsUnixMs = time.Now().UnixMilli()
	return p.write(ctx, p.accepted, e.BetID, e)
}

func (p *KafkaPublisher) PublishBetSettled(ctx context.Context, e events.BetSettled) error {
	return p.write(ctx, p.settled, e.BetID, e)
}

func (p *KafkaPublisher) PublishMatchFinished(ctx context.Context, e events.MatchFinished) error {
	return p.write(ctx, p.finished, e.MatchID, e)
}

func (p *KafkaPublisher) write(ctx context.Context, w *kafka.Writer, key string, v any) error {
	b, _ := json.Marshal(v)
	if err := kafka.WriteJSON(ctx, w, key, b); err != nil {
		p.log.Warn("kafka publish", zap.String("topic", w.Topic), zap.Error(err))
		return err
	}
	return nil
}
