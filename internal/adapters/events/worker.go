package events

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// runEvery calls step immediately and then on every tick until ctx ends.
// A failed step is logged and the loop keeps going.
func runEvery(ctx context.Context, logger *slog.Logger, module string, interval time.Duration, step func(context.Context) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := step(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.ErrorContext(ctx, "worker iteration failed",
				"module", module,
				"layer", "adapter",
				"operation", "process_once",
				"outcome", "failure",
				"error", err,
			)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
