package idempotency

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Janitor periodically purges expired records.
type Janitor struct {
	store     Store
	interval  time.Duration
	batchSize int
	logger    *zap.Logger
	clock     func() time.Time
}

// NewJanitor constructs a Janitor. A non-positive interval disables it.
func NewJanitor(store Store, interval time.Duration, batchSize int, logger *zap.Logger) *Janitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Janitor{store: store, interval: interval, batchSize: batchSize, logger: logger, clock: time.Now}
}

// Run purges on every tick until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	if j == nil || j.store == nil || j.interval <= 0 {
		return
	}
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	removed, err := j.store.Purge(ctx, j.clock().UTC(), j.batchSize)
	if err != nil {
		j.logger.Warn("idempotency purge failed", zap.Error(err), zap.Int("removed", removed))
		return
	}
	if removed > 0 {
		j.logger.Debug("idempotency records purged", zap.Int("removed", removed))
	}
}
