package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/Vasilion/UnyX-Social/internal/repository"
	"github.com/Vasilion/UnyX-Social/pkg/logger"
)

// Janitor periodically returns stuck outbox rows to pending and purges
// delivered rows past retention.
type Janitor struct {
	outbox       repository.OutboxRepository
	reclaimAfter time.Duration
	retention    time.Duration
	now          func() time.Time
}

func NewJanitor(outbox repository.OutboxRepository, reclaimAfter, retention time.Duration) *Janitor {
	if reclaimAfter <= 0 {
		reclaimAfter = 2 * time.Minute
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &Janitor{outbox: outbox, reclaimAfter: reclaimAfter, retention: retention, now: time.Now}
}

// RunOnce performs one reclaim + purge pass.
func (j *Janitor) RunOnce(ctx context.Context) error {
	now := j.now()
	reclaimed, err := j.outbox.Reclaim(ctx, now.Add(-j.reclaimAfter))
	if err != nil {
		return fmt.Errorf("reclaim outbox: %w", err)
	}
	purged, err := j.outbox.Purge(ctx, now.Add(-j.retention))
	if err != nil {
		return fmt.Errorf("purge outbox: %w", err)
	}
	if reclaimed > 0 || purged > 0 {
		logger.Info("outbox janitor pass",
			zap.Int64("reclaimed", reclaimed),
			zap.Int64("purged", purged))
	}
	return nil
}

// Start schedules RunOnce on spec (standard cron or "@every 1m").
func (j *Janitor) Start(spec string) (func(context.Context) error, error) {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := j.RunOnce(ctx); err != nil {
			logger.Warn("outbox janitor failed", zap.Error(err))
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule outbox janitor %q: %w", spec, err)
	}
	c.Start()
	return func(ctx context.Context) error {
		select {
		case <-c.Stop().Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}, nil
}
