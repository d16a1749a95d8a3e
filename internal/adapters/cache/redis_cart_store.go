package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/domain"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/ports"
)

const (
	cartKeyPrefix     = "retail:cart:"
	cartActivityKey   = "retail:cart:activity"
	cartRefSeparator  = "\x1f"
	maxCartTxAttempts = 64
)

// claimIdleScript picks the carts whose activity score is at or below the
// cutoff and pushes their score to the lease deadline in the same call.
var claimIdleScript = redis.NewScript(`
local members = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, tonumber(ARGV[3]))
for _, member in ipairs(members) do
  redis.call("ZADD", KEYS[1], ARGV[2], member)
end
return members
`)

// RedisCartStore keeps each cart as one JSON document. Writers use
// WATCH/MULTI so concurrent changes to the same cart retry instead of
// overwriting each other.
type RedisCartStore struct {
	client *redis.Client
}

func NewRedisCartStore(client *redis.Client) *RedisCartStore {
	return &RedisCartStore{client: client}
}

func cartKey(ownerID, storeID string) string {
	return cartKeyPrefix + ownerID + ":" + storeID
}

func cartMember(ownerID, storeID string) string {
	return ownerID + cartRefSeparator + storeID
}

func (s *RedisCartStore) Get(ctx context.Context, ownerID, storeID string) (domain.Cart, error) {
	cart, found, err := loadCart(ctx, s.client, cartKey(ownerID, storeID))
	if err != nil {
		return domain.Cart{}, err
	}
	if !found {
		return domain.Cart{OwnerID: ownerID, StoreID: storeID}, nil
	}
	return cart, nil
}

func (s *RedisCartStore) ApplyChange(ctx context.Context, params ports.ApplyCartChangeParams) (domain.CartLine, error) {
	key := cartKey(params.OwnerID, params.StoreID)
	var out domain.CartLine
	err := s.update(ctx, key, func(tx *redis.Tx) (*domain.Cart, error) {
		cart, found, err := loadCart(ctx, tx, key)
		if err != nil {
			return nil, err
		}
		if !found {
			if params.Delta < 0 {
				return nil, fmt.Errorf("%w: quantity for %s cannot go below zero", domain.ErrInvalidInput, params.ProductID)
			}
			cart = domain.Cart{CartID: uuid.NewString(), OwnerID: params.OwnerID, StoreID: params.StoreID}
		}
		if cart.Locked {
			return nil, fmt.Errorf("%w: cart is being submitted", domain.ErrConflict)
		}
		line, ok := cart.Line(params.ProductID)
		if !ok {
			line = domain.CartLine{ProductID: params.ProductID, StoreID: params.StoreID, UnitPrice: params.UnitPrice}
		}
		next, err := domain.QuantityChange{ProductID: params.ProductID, Delta: params.Delta}.ApplyTo(line.Quantity)
		if err != nil {
			return nil, err
		}
		line.Quantity = next
		cart.Lines = replaceLine(cart.Lines, line)
		cart.UpdatedAt = params.At
		out = line
		return &cart, nil
	}, func(p redis.Pipeliner) {
		p.ZAdd(ctx, cartActivityKey, redis.Z{
			Score:  float64(params.At.UnixMilli()),
			Member: cartMember(params.OwnerID, params.StoreID),
		})
	})
	if err != nil {
		return domain.CartLine{}, err
	}
	return out, nil
}

func (s *RedisCartStore) Lock(ctx context.Context, ownerID, storeID, holder string, at time.Time) (domain.Cart, error) {
	key := cartKey(ownerID, storeID)
	var out domain.Cart
	err := s.update(ctx, key, func(tx *redis.Tx) (*domain.Cart, error) {
		cart, found, err := loadCart(ctx, tx, key)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("%w: cart is empty", domain.ErrInvalidInput)
		}
		if err := cart.Lock(holder, at); err != nil {
			return nil, err
		}
		out = cart
		return &cart, nil
	}, func(p redis.Pipeliner) {
		p.ZAdd(ctx, cartActivityKey, redis.Z{
			Score:  float64(at.UnixMilli()),
			Member: cartMember(ownerID, storeID),
		})
	})
	return out, err
}

func (s *RedisCartStore) Unlock(ctx context.Context, ownerID, storeID string) error {
	key := cartKey(ownerID, storeID)
	return s.update(ctx, key, func(tx *redis.Tx) (*domain.Cart, error) {
		cart, found, err := loadCart(ctx, tx, key)
		if err != nil || !found || !cart.Locked {
			return nil, err
		}
		cart.Unlock()
		return &cart, nil
	}, nil)
}

func (s *RedisCartStore) Delete(ctx context.Context, ownerID, storeID string) error {
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, cartKey(ownerID, storeID))
		p.ZRem(ctx, cartActivityKey, cartMember(ownerID, storeID))
		return nil
	})
	return err
}

func (s *RedisCartStore) ClaimIdle(ctx context.Context, cutoff, leaseUntil time.Time, limit int) ([]ports.CartRef, error) {
	if limit <= 0 {
		limit = 100
	}
	members, err := claimIdleScript.Run(ctx, s.client, []string{cartActivityKey},
		cutoff.UnixMilli(), leaseUntil.UnixMilli(), limit).StringSlice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]ports.CartRef, 0, len(members))
	for _, member := range members {
		ownerID, storeID, ok := strings.Cut(member, cartRefSeparator)
		if !ok {
			continue
		}
		out = append(out, ports.CartRef{OwnerID: ownerID, StoreID: storeID})
	}
	return out, nil
}

// update runs mutate under WATCH on key and writes the returned cart. A nil
// cart with a nil error means there is nothing to write. extra adds commands
// to the same MULTI block.
func (s *RedisCartStore) update(ctx context.Context, key string, mutate func(tx *redis.Tx) (*domain.Cart, error), extra func(p redis.Pipeliner)) error {
	for attempt := 0; attempt < maxCartTxAttempts; attempt++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			cart, err := mutate(tx)
			if err != nil || cart == nil {
				return err
			}
			raw, err := json.Marshal(cart)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				p.Set(ctx, key, raw, 0)
				if extra != nil {
					extra(p)
				}
				return nil
			})
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("%w: cart %s is under heavy contention", domain.ErrConflict, key)
}

func loadCart(ctx context.Context, cmd redis.Cmdable, key string) (domain.Cart, bool, error) {
	raw, err := cmd.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Cart{}, false, nil
		}
		return domain.Cart{}, false, err
	}
	var cart domain.Cart
	if err := json.Unmarshal(raw, &cart); err != nil {
		return domain.Cart{}, false, fmt.Errorf("decode cart %s: %w", key, err)
	}
	return cart, true, nil
}

func replaceLine(lines []domain.CartLine, line domain.CartLine) []domain.CartLine {
	out := make([]domain.CartLine, 0, len(lines)+1)
	replaced := false
	for _, existing := range lines {
		if existing.ProductID != line.ProductID {
			out = append(out, existing)
			continue
		}
		replaced = true
		if line.Quantity > 0 {
			out = append(out, line)
		}
	}
	if !replaced && line.Quantity > 0 {
		out = append(out, line)
	}
	return out
}

var _ ports.CartStore = (*RedisCartStore)(nil)
