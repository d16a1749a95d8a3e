package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/contracts"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/domain"
)

type Message struct {
	Topic   string
	Key     []byte
	Payload []byte
}

type Consumer interface {
	Poll(ctx context.Context, max int) ([]Message, error)
}

// EventHandler applies one catalog or agency event.
type EventHandler interface {
	HandleDomainEvent(ctx context.Context, envelope contracts.EventEnvelope) error
}

// NoopConsumer is used when no broker is configured.
type NoopConsumer struct{}

func NewNoopConsumer() *NoopConsumer {
	return &NoopConsumer{}
}

func (NoopConsumer) Poll(context.Context, int) ([]Message, error) {
	return nil, nil
}

type ConsumerWorker struct {
	logger   *slog.Logger
	consumer Consumer
	handler  EventHandler
	interval time.Duration
}

func NewConsumerWorker(logger *slog.Logger, consumer Consumer, handler EventHandler, interval time.Duration) *ConsumerWorker {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &ConsumerWorker{logger: logger, consumer: consumer, handler: handler, interval: interval}
}

func (w *ConsumerWorker) Run(ctx context.Context) error {
	return runEvery(ctx, w.logger, "events.consumer_worker", w.interval, func(ctx context.Context) error {
		_, err := w.processOnce(ctx)
		return err
	})
}

// processOnce returns how many messages were applied. Malformed and
// unsupported messages are logged and skipped. A handler failure is logged
// so the event can be delivered again under the same id.
func (w *ConsumerWorker) processOnce(ctx context.Context) (int, error) {
	msgs, err := w.consumer.Poll(ctx, 50)
	if err != nil {
		return 0, err
	}
	applied := 0
	for _, msg := range msgs {
		var envelope contracts.EventEnvelope
		if err := json.Unmarshal(msg.Payload, &envelope); err != nil {
			w.logger.WarnContext(ctx, "dropping malformed event",
				"module", "events.consumer_worker",
				"layer", "adapter",
				"operation", "decode",
				"outcome", "failure",
				"topic", msg.Topic,
				"error", err,
			)
			continue
		}
		if err := w.handler.HandleDomainEvent(ctx, envelope); err != nil {
			level := slog.LevelWarn
			if errors.Is(err, domain.ErrUnsupportedEventType) {
				level = slog.LevelDebug
			}
			w.logger.Log(ctx, level, "event not applied",
				"module", "events.consumer_worker",
				"layer", "adapter",
				"operation", "handle_event",
				"outcome", "failure",
				"topic", msg.Topic,
				"event_id", envelope.EventID,
				"event_type", envelope.EventType,
				"error", err,
			)
			continue
		}
		applied++
	}
	return applied, nil
}
