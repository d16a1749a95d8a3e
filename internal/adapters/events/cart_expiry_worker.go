package events

import (
	"context"
	"log/slog"
	"time"
)

// CartSweeper releases the reservations of carts that went idle.
type CartSweeper interface {
	SweepExpiredCarts(ctx context.Context) (int, error)
}

type CartExpiryWorker struct {
	logger   *slog.Logger
	sweeper  CartSweeper
	interval time.Duration
}

func NewCartExpiryWorker(logger *slog.Logger, sweeper CartSweeper, interval time.Duration) *CartExpiryWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &CartExpiryWorker{logger: logger, sweeper: sweeper, interval: interval}
}

func (w *CartExpiryWorker) Run(ctx context.Context) error {
	return runEvery(ctx, w.logger, "events.cart_expiry_worker", w.interval, w.sweepOnce)
}

func (w *CartExpiryWorker) sweepOnce(ctx context.Context) error {
	expired, err := w.sweeper.SweepExpiredCarts(ctx)
	if expired > 0 {
		w.logger.InfoContext(ctx, "expired carts released",
			"module", "events.cart_expiry_worker",
			"layer", "adapter",
			"operation", "sweep",
			"outcome", "success",
			"carts", expired,
		)
	}
	return err
}
