package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/domain"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/ports"
)

const changeKeyPrefix = "retail:cart:change:"

// Each script answers with the record's HGETALL pairs, an empty list when
// nothing existed before, or an error reply carrying a short code.
var (
	beginChangeScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  return redis.call("HGETALL", KEYS[1])
end
redis.call("HSET", KEYS[1], "owner_id", ARGV[1], "store_id", ARGV[2], "product_id", ARGV[3],
  "delta", ARGV[4], "state", "pending", "updated_at", ARGV[5])
redis.call("PEXPIRE", KEYS[1], ARGV[6])
return {}
`)

	beginRevertScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  redis.call("HSET", KEYS[1], "owner_id", ARGV[1], "delta", "0", "state", "reverted", "updated_at", ARGV[2])
  redis.call("PEXPIRE", KEYS[1], ARGV[3])
  return redis.call("HGETALL", KEYS[1])
end
if redis.call("HGET", KEYS[1], "owner_id") ~= ARGV[1] then
  return redis.error_reply("FORBIDDEN")
end
local state = redis.call("HGET", KEYS[1], "state")
if state == "applied" then
  redis.call("HSET", KEYS[1], "state", "reverting", "updated_at", ARGV[2])
  return redis.call("HGETALL", KEYS[1])
end
if state == "reverted" then
  return redis.call("HGETALL", KEYS[1])
end
return redis.error_reply("IN_FLIGHT " .. state)
`)

	transitionScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return redis.error_reply("NOT_FOUND")
end
local state = redis.call("HGET", KEYS[1], "state")
if state ~= ARGV[1] then
  return redis.error_reply("STATE " .. state)
end
redis.call("HSET", KEYS[1], "state", ARGV[2], "updated_at", ARGV[3])
return "OK"
`)

	discardScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "state") == "pending" then
  return redis.call("DEL", KEYS[1])
end
return 0
`)
)

// RedisCartChangeLog tracks change ids so retried and reverted quantity
// changes are applied at most once.
type RedisCartChangeLog struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisCartChangeLog(client *redis.Client) *RedisCartChangeLog {
	return &RedisCartChangeLog{client: client, now: func() time.Time { return time.Now().UTC() }}
}

func changeKey(changeID string) string {
	return changeKeyPrefix + changeID
}

func ttlMillis(ttl time.Duration) int64 {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return ttl.Milliseconds()
}

func (l *RedisCartChangeLog) Begin(ctx context.Context, rec ports.CartChangeRecord, ttl time.Duration) (*ports.CartChangeRecord, error) {
	at := rec.UpdatedAt
	if at.IsZero() {
		at = l.now()
	}
	fields, err := beginChangeScript.Run(ctx, l.client, []string{changeKey(rec.ChangeID)},
		rec.OwnerID, rec.StoreID, rec.ProductID, rec.Delta, at.UnixMilli(), ttlMillis(ttl)).StringSlice()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	existing := decodeChange(rec.ChangeID, fields)
	return &existing, nil
}

func (l *RedisCartChangeLog) BeginRevert(ctx context.Context, changeID, ownerID string, ttl time.Duration) (ports.CartChangeRecord, error) {
	fields, err := beginRevertScript.Run(ctx, l.client, []string{changeKey(changeID)},
		ownerID, l.now().UnixMilli(), ttlMillis(ttl)).StringSlice()
	if err != nil {
		return ports.CartChangeRecord{}, scriptError(changeID, err)
	}
	return decodeChange(changeID, fields), nil
}

func (l *RedisCartChangeLog) Transition(ctx context.Context, changeID string, from, to ports.CartChangeState) error {
	err := transitionScript.Run(ctx, l.client, []string{changeKey(changeID)},
		string(from), string(to), l.now().UnixMilli()).Err()
	if err != nil {
		if strings.HasPrefix(err.Error(), "STATE ") {
			return fmt.Errorf("%w: change %s is %s, expected %s", domain.ErrConflict, changeID, strings.TrimPrefix(err.Error(), "STATE "), from)
		}
		return scriptError(changeID, err)
	}
	return nil
}

func (l *RedisCartChangeLog) Discard(ctx context.Context, changeID string) error {
	return discardScript.Run(ctx, l.client, []string{changeKey(changeID)}).Err()
}

func scriptError(changeID string, err error) error {
	msg := err.Error()
	switch {
	case errors.Is(err, redis.Nil):
		return fmt.Errorf("%w: change %s", domain.ErrNotFound, changeID)
	case msg == "FORBIDDEN":
		return fmt.Errorf("%w: change %s belongs to another owner", domain.ErrForbidden, changeID)
	case msg == "NOT_FOUND":
		return fmt.Errorf("%w: change %s", domain.ErrNotFound, changeID)
	case strings.HasPrefix(msg, "IN_FLIGHT"):
		return fmt.Errorf("%w: change %s", domain.ErrChangeInFlight, changeID)
	default:
		return err
	}
}

func decodeChange(changeID string, fields []string) ports.CartChangeRecord {
	rec := ports.CartChangeRecord{ChangeID: changeID}
	for i := 0; i+1 < len(fields); i += 2 {
		value := fields[i+1]
		switch fields[i] {
		case "owner_id":
			rec.OwnerID = value
		case "store_id":
			rec.StoreID = value
		case "product_id":
			rec.ProductID = value
		case "delta":
			rec.Delta, _ = strconv.Atoi(value)
		case "state":
			rec.State = ports.CartChangeState(value)
		case "updated_at":
			if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
				rec.UpdatedAt = time.UnixMilli(ms).UTC()
			}
		}
	}
	return rec
}

var _ ports.CartChangeLog = (*RedisCartChangeLog)(nil)
