package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/tradepost/pkg/logger"
)

func TestOutboxRetentionJobUsesDefaults(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	pruner := &scriptedPruner{batches: []int64{7}}
	job := newRetentionJob(t, pruner, OutboxRetentionJobParams{})
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	require.Len(t, pruner.calls, 1)
	call := pruner.calls[0]
	assert.True(t, call.cutoff.Equal(now.Add(-defaultOutboxRetention)))
	assert.Equal(t, defaultParkedAttempts, call.minAttempts)
	assert.Equal(t, defaultPruneBatch, call.limit)
}

func TestOutboxRetentionJobDrainsFullBatches(t *testing.T) {
	pruner := &scriptedPruner{batches: []int64{3, 3, 1}}
	job := newRetentionJob(t, pruner, OutboxRetentionJobParams{BatchSize: 3, ParkedAttempts: 4, Retention: time.Hour})

	require.NoError(t, job.Run(context.Background()))
	assert.Len(t, pruner.calls, 3)
	for _, call := range pruner.calls {
		assert.Equal(t, 3, call.limit)
		assert.Equal(t, 4, call.minAttempts)
	}
}

func TestOutboxRetentionJobStopsAtBatchCap(t *testing.T) {
	pruner := &scriptedPruner{always: 2}
	job := newRetentionJob(t, pruner, OutboxRetentionJobParams{BatchSize: 2})

	require.NoError(t, job.Run(context.Background()))
	assert.Len(t, pruner.calls, maxPruneBatchesPerCycle)
}

func TestOutboxRetentionJobPropagatesError(t *testing.T) {
	pruner := &scriptedPruner{batches: []int64{5}, err: errors.New("boom"), failAt: 2}
	job := newRetentionJob(t, pruner, OutboxRetentionJobParams{BatchSize: 5})

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 5 rows")
}

func TestOutboxRetentionJobHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pruner := &scriptedPruner{always: 1}
	job := newRetentionJob(t, pruner, OutboxRetentionJobParams{})

	require.ErrorIs(t, job.Run(ctx), context.Canceled)
	assert.Empty(t, pruner.calls)
}

func TestNewOutboxRetentionJobValidatesParams(t *testing.T) {
	_, err := NewOutboxRetentionJob(OutboxRetentionJobParams{DB: passthroughTx{}, Repository: &scriptedPruner{}})
	assert.Error(t, err)
	_, err = NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: logger.Nop(), Repository: &scriptedPruner{}})
	assert.Error(t, err)
	_, err = NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: logger.Nop(), DB: passthroughTx{}})
	assert.Error(t, err)
}

func newRetentionJob(t *testing.T, pruner *scriptedPruner, params OutboxRetentionJobParams) *outboxRetentionJob {
	t.Helper()
	params.Logger = logger.Nop()
	params.DB = passthroughTx{}
	params.Repository = pruner
	job, err := NewOutboxRetentionJob(params)
	require.NoError(t, err)
	typed, ok := job.(*outboxRetentionJob)
	require.True(t, ok, "unexpected job type %T", job)
	return typed
}

type pruneCall struct {
	cutoff      time.Time
	minAttempts int
	limit       int
}

// scriptedPruner returns batches in order, then always (zero by default).
// When failAt is set, that call (1-based) returns err.
type scriptedPruner struct {
	batches []int64
	always  int64
	err     error
	failAt  int
	calls   []pruneCall
}

func (p *scriptedPruner) PruneDelivered(_ context.Context, _ *gorm.DB, cutoff time.Time, minAttemptCount, limit int) (int64, error) {
	p.calls = append(p.calls, pruneCall{cutoff: cutoff, minAttempts: minAttemptCount, limit: limit})
	if p.failAt > 0 && len(p.calls) == p.failAt {
		return 0, p.err
	}
	if i := len(p.calls) - 1; i < len(p.batches) {
		return p.batches[i], nil
	}
	return p.always, nil
}

type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}
