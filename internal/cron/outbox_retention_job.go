package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/tradepost/pkg/logger"
)

const (
	defaultOutboxRetention  = 30 * 24 * time.Hour
	defaultParkedAttempts   = 10
	defaultPruneBatch       = 1000
	maxPruneBatchesPerCycle = 100
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPruner interface {
	PruneDelivered(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount, limit int) (int64, error)
}

// OutboxRetentionJobParams configure outbox pruning. ParkedAttempts should
// match the publisher's attempt budget so only parked events are removed
// alongside delivered ones.
type OutboxRetentionJobParams struct {
	Logger         *logger.Logger
	DB             txRunner
	Repository     outboxPruner
	Retention      time.Duration
	ParkedAttempts int
	BatchSize      int
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.DB == nil:
		return nil, fmt.Errorf("db runner required")
	case params.Repository == nil:
		return nil, fmt.Errorf("outbox repository required")
	}
	return &outboxRetentionJob{
		logg:      params.Logger,
		db:        params.DB,
		pruner:    params.Repository,
		retention: positiveOr(params.Retention, defaultOutboxRetention),
		parked:    positiveOr(params.ParkedAttempts, defaultParkedAttempts),
		batch:     positiveOr(params.BatchSize, defaultPruneBatch),
		now:       time.Now,
	}, nil
}

// outboxRetentionJob deletes in short transactions so the relay never waits
// behind one long delete. Whatever is left after maxPruneBatchesPerCycle
// batches is picked up on the next cycle.
type outboxRetentionJob struct {
	logg      *logger.Logger
	db        txRunner
	pruner    outboxPruner
	retention time.Duration
	parked    int
	batch     int
	now       func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)

	var total int64
	batches := 0
	for batches < maxPruneBatchesPerCycle {
		if err := ctx.Err(); err != nil {
			return err
		}
		var n int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			n, err = j.pruner.PruneDelivered(ctx, tx, cutoff, j.parked, j.batch)
			return err
		})
		if err != nil {
			return fmt.Errorf("outbox retention after %d rows: %w", total, err)
		}
		batches++
		total += n
		if n < int64(j.batch) {
			break
		}
	}

	if total > 0 {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"cutoff":       cutoff,
			"rows_deleted": total,
			"batches":      batches,
		}), "outbox.pruned")
	}
	return nil
}

func positiveOr[T int | time.Duration](v, fallback T) T {
	if v > 0 {
		return v
	}
	return fallback
}
