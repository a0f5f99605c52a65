package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/tradepost/internal/listings"
	"github.com/angelmondragon/tradepost/pkg/logger"
)

type offerSweeper interface {
	ExpireStaleOffers(ctx context.Context, now time.Time) (listings.SweepResult, error)
}

type auctionSweeper interface {
	CloseEndedAuctions(ctx context.Context, now time.Time) (listings.SweepResult, error)
}

// OfferExpiryJobParams configure the stale offer sweep.
type OfferExpiryJobParams struct {
	Logger  *logger.Logger
	Sweeper offerSweeper
}

// NewOfferExpiryJob builds the job that expires pending offers past their
// TTL and pending offers stranded on closed listings.
func NewOfferExpiryJob(params OfferExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("offer sweeper required")
	}
	return &sweepJob{
		name: "offer-expiry",
		logg: params.Logger,
		now:  time.Now,
		sweep: func(ctx context.Context, now time.Time) (listings.SweepResult, error) {
			return params.Sweeper.ExpireStaleOffers(ctx, now)
		},
	}, nil
}

// AuctionCloseJobParams configure the ended auction sweep.
type AuctionCloseJobParams struct {
	Logger  *logger.Logger
	Sweeper auctionSweeper
}

// NewAuctionCloseJob builds the job that settles auctions past their end time.
func NewAuctionCloseJob(params AuctionCloseJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("auction sweeper required")
	}
	return &sweepJob{
		name: "auction-close",
		logg: params.Logger,
		now:  time.Now,
		sweep: func(ctx context.Context, now time.Time) (listings.SweepResult, error) {
			return params.Sweeper.CloseEndedAuctions(ctx, now)
		},
	}, nil
}

type sweepJob struct {
	name  string
	logg  *logger.Logger
	now   func() time.Time
	sweep func(ctx context.Context, now time.Time) (listings.SweepResult, error)
}

func (j *sweepJob) Name() string { return j.name }

// Run performs one pass. Entities that failed are reported together while
// the rest of the batch still settles.
func (j *sweepJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	result, err := j.sweep(ctx, now)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"processed": result.Processed,
		"events":    len(result.Events),
		"as_of":     now,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	if result.Processed > 0 {
		j.logg.Info(logCtx, "sweep settled entities")
		return nil
	}
	j.logg.Debug(logCtx, "sweep found nothing to settle")
	return nil
}
