package memory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/ports"
)

type OutboxRepository struct {
	v view
}

func (r *OutboxRepository) Enqueue(_ context.Context, event ports.OutboxEvent) error {
	return r.v.with(func(st *state) error {
		st.outbox = append(st.outbox, ports.OutboxRecord{
			OutboxID:     event.EventID,
			EventType:    event.EventType,
			PartitionKey: event.PartitionKey,
			Payload:      append([]byte(nil), event.Payload...),
			FirstSeenAt:  event.OccurredAt,
		})
		return nil
	})
}

func (r *OutboxRepository) FetchUnpublished(_ context.Context, limit int) ([]ports.OutboxRecord, error) {
	out := make([]ports.OutboxRecord, 0)
	err := r.v.with(func(st *state) error {
		for _, rec := range st.outbox {
			if rec.PublishedAt != nil {
				continue
			}
			out = append(out, rec)
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return nil
	})
	return out, err
}

func (r *OutboxRepository) MarkPublished(_ context.Context, outboxID uuid.UUID, at time.Time) error {
	return r.v.with(func(st *state) error {
		for i := range st.outbox {
			if st.outbox[i].OutboxID == outboxID {
				published := at
				st.outbox[i].PublishedAt = &published
				return nil
			}
		}
		return nil
	})
}

func (r *OutboxRepository) MarkFailed(_ context.Context, outboxID uuid.UUID, errMsg string, at time.Time) error {
	return r.v.with(func(st *state) error {
		for i := range st.outbox {
			if st.outbox[i].OutboxID == outboxID {
				msg, failedAt := errMsg, at
				st.outbox[i].RetryCount++
				st.outbox[i].LastError = &msg
				st.outbox[i].LastErrorAt = &failedAt
				return nil
			}
		}
		return nil
	})
}

type EventDedupRepository struct {
	v view
}

func (r *EventDedupRepository) IsDuplicate(_ context.Context, eventID string, now time.Time) (bool, error) {
	dup := false
	err := r.v.with(func(st *state) error {
		rec, ok := st.dedup[eventID]
		dup = ok && rec.expiresAt.After(now)
		return nil
	})
	return dup, err
}

func (r *EventDedupRepository) MarkProcessed(_ context.Context, eventID, eventType string, expiresAt time.Time) error {
	return r.v.with(func(st *state) error {
		st.dedup[eventID] = dedupRecord{eventType: eventType, expiresAt: expiresAt}
		return nil
	})
}

type IdempotencyRepository struct {
	v view
}

func (r *IdempotencyRepository) Get(_ context.Context, key string, now time.Time) (*ports.IdempotencyRecord, error) {
	var out *ports.IdempotencyRecord
	err := r.v.with(func(st *state) error {
		rec, ok := st.idempotency[key]
		if !ok || !rec.ExpiresAt.After(now) {
			return nil
		}
		copied := rec
		copied.ResponseBody = append([]byte(nil), rec.ResponseBody...)
		out = &copied
		return nil
	})
	return out, err
}

func (r *IdempotencyRepository) Reserve(_ context.Context, key, requestHash string, expiresAt time.Time) error {
	return r.v.with(func(st *state) error {
		if rec, ok := st.idempotency[key]; ok && rec.ExpiresAt.After(time.Now().UTC()) {
			return errors.New("already reserved")
		}
		st.idempotency[key] = ports.IdempotencyRecord{
			Key:         key,
			RequestHash: requestHash,
			Status:      "reserved",
			ExpiresAt:   expiresAt,
		}
		return nil
	})
}

func (r *IdempotencyRepository) Complete(_ context.Context, key string, responseCode int, responseBody []byte, _ time.Time) error {
	return r.v.with(func(st *state) error {
		rec, ok := st.idempotency[key]
		if !ok {
			return nil
		}
		rec.Status = "completed"
		rec.ResponseCode = responseCode
		rec.ResponseBody = append([]byte(nil), responseBody...)
		st.idempotency[key] = rec
		return nil
	})
}

func (r *IdempotencyRepository) Release(_ context.Context, key string) error {
	return r.v.with(func(st *state) error {
		if rec, ok := st.idempotency[key]; ok && rec.Status != "completed" {
			delete(st.idempotency, key)
		}
		return nil
	})
}

var (
	_ ports.OutboxRepository      = (*OutboxRepository)(nil)
	_ ports.EventDedupRepository  = (*EventDedupRepository)(nil)
	_ ports.IdempotencyRepository = (*IdempotencyRepository)(nil)
)
