package grpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/cart"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/domain"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

type BreakerConfig struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.MaxRequests == 0 {
		c.MaxRequests = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.ConsecutiveFailures == 0 {
		c.ConsecutiveFailures = 5
	}
	return c
}

// CartClient is the cart session's remote. Calls go through a circuit
// breaker that only counts transport failures. Refusals from the server,
// such as insufficient stock, leave the breaker closed.
type CartClient struct {
	conn        grpc.ClientConnInterface
	closer      func() error
	breaker     *gobreaker.CircuitBreaker
	token       string
	callTimeout time.Duration
}

// DialCartClient connects to the cart service at target.
func DialCartClient(target, token string, breaker BreakerConfig, logger *slog.Logger, opts ...grpc.DialOption) (*CartClient, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial cart grpc: %w", err)
	}
	client := NewCartClient(conn, token, breaker, logger)
	client.closer = conn.Close
	return client, nil
}

func NewCartClient(conn grpc.ClientConnInterface, token string, cfg BreakerConfig, logger *slog.Logger) *CartClient {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	settings := gobreaker.Settings{
		Name:        cartServiceName,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, domain.ErrNetworkFailure)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("cart client breaker changed state",
				"module", "grpc.cart_client",
				"layer", "adapter",
				"operation", "breaker",
				"outcome", to.String(),
				"breaker", name,
				"from", from.String(),
			)
		},
	}
	return &CartClient{
		conn:        conn,
		breaker:     gobreaker.NewCircuitBreaker(settings),
		token:       token,
		callTimeout: 5 * time.Second,
	}
}

func (c *CartClient) Close() error {
	if c.closer != nil {
		return c.closer()
	}
	return nil
}

func (c *CartClient) ChangeQuantity(ctx context.Context, storeID string, change domain.QuantityChange) (cart.Confirmation, error) {
	var reply CartLineReply
	err := c.invoke(ctx, changeQuantityMethod, &ChangeQuantityRequest{
		StoreID:   storeID,
		ChangeID:  change.ChangeID,
		ProductID: change.ProductID,
		Delta:     change.Delta,
	}, &reply)
	if err != nil {
		return cart.Confirmation{}, err
	}
	return cart.Confirmation{ProductID: reply.ProductID, Quantity: reply.Quantity, AvailablePacks: reply.AvailablePacks}, nil
}

func (c *CartClient) RevertChange(ctx context.Context, changeID string) error {
	var reply CartLineReply
	return c.invoke(ctx, revertChangeMethod, &RevertChangeRequest{ChangeID: changeID}, &reply)
}

func (c *CartClient) invoke(ctx context.Context, method string, req, reply any) error {
	_, err := c.breaker.Execute(func() (any, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
		if c.token != "" {
			callCtx = metadata.AppendToOutgoingContext(callCtx, "authorization", "Bearer "+c.token)
		}
		return nil, fromStatus(c.conn.Invoke(callCtx, method, req, reply, grpc.CallContentSubtype(codecName)))
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: cart service circuit %v", domain.ErrNetworkFailure, err)
	}
	return err
}

var _ cart.Remote = (*CartClient)(nil)
