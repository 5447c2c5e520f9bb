package stream

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/lao-tseu-is-alive/go-crowd-avoidance/internal/crowd"
)

// Run steps the world and broadcasts a snapshot after every step. Steps are
// paced so that simulated time runs speed times faster than wall time; a
// speed <= 0 runs as fast as possible.
func Run(ctx context.Context, w *crowd.World, hub *Hub, steps int, dt, speed float64, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if speed > 0 && dt > 0 {
		limit = rate.Every(time.Duration(dt / speed * float64(time.Second)))
	}
	limiter := rate.NewLimiter(limit, 1)

	return w.Run(ctx, steps, dt, func(snap crowd.Snapshot) {
		if _, err := hub.Broadcast(snap); err != nil {
			logger.Error("failed to encode snapshot", zap.Int("step", snap.Step), zap.Error(err))
		}
		if err := limiter.Wait(ctx); err != nil {
			// Wait gives up early when the deadline would pass first; the run
			// ends there anyway.
			<-ctx.Done()
		}
	})
}
