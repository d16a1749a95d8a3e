package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/contracts"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/domain"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/ports"
)

func (s *Service) enqueueEvent(ctx context.Context, outbox ports.OutboxRepository, eventType, partitionKey string, data any, occurredAt time.Time) error {
	if !domain.IsCanonicalEmittedEvent(eventType) {
		return fmt.Errorf("%w: %s", domain.ErrUnsupportedEventType, eventType)
	}
	rawData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	eventID := uuid.New()
	envelope := contracts.EventEnvelope{
		EventID:          eventID.String(),
		EventType:        eventType,
		OccurredAt:       occurredAt,
		PartitionKeyPath: domain.CanonicalPartitionKeyPath(eventType),
		PartitionKey:     partitionKey,
		SourceService:    s.cfg.ServiceName,
		SchemaVersion:    "1.0",
		Data:             rawData,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	return outbox.Enqueue(ctx, ports.OutboxEvent{
		EventID:          eventID,
		EventType:        eventType,
		PartitionKey:     partitionKey,
		PartitionKeyPath: envelope.PartitionKeyPath,
		Payload:          payload,
		OccurredAt:       occurredAt,
		SchemaVersion:    envelope.SchemaVersion,
	})
}

func hashRequest(v any) string {
	raw, _ := json.Marshal(v)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// replayIdempotent returns the stored response for key, or false when the key
// is new. A key reused with a different request is a conflict.
func (s *Service) replayIdempotent(ctx context.Context, key string, request any, out any) (bool, error) {
	rec, err := s.idempotency.Get(ctx, key, s.nowFn())
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}
	if rec.RequestHash != hashRequest(request) {
		return false, fmt.Errorf("%w: key reused with a different request", domain.ErrIdempotencyConflict)
	}
	if rec.Status != "completed" {
		return false, fmt.Errorf("%w: request is still being processed", domain.ErrIdempotencyConflict)
	}
	if err := json.Unmarshal(rec.ResponseBody, out); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) reserveIdempotency(ctx context.Context, key string, request any) error {
	err := s.idempotency.Reserve(ctx, key, hashRequest(request), s.nowFn().Add(s.cfg.IdempotencyTTL))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIdempotencyConflict, err)
	}
	return nil
}

func (s *Service) completeIdempotency(ctx context.Context, key string, code int, response any) {
	body, err := json.Marshal(response)
	if err == nil {
		err = s.idempotency.Complete(ctx, key, code, body, s.nowFn())
	}
	if err != nil {
		s.logger.WarnContext(ctx, "idempotency completion failed",
			"module", "application",
			"layer", "service",
			"operation", "complete_idempotency",
			"outcome", "failure",
			"error", err,
		)
	}
}

func (s *Service) releaseIdempotency(ctx context.Context, key string) {
	if err := s.idempotency.Release(ctx, key); err != nil {
		s.logger.WarnContext(ctx, "idempotency release failed",
			"module", "application",
			"layer", "service",
			"operation", "release_idempotency",
			"outcome", "failure",
			"error", err,
		)
	}
}
