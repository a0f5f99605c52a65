package listings

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/tradepost/pkg/outbox"
)

// SweepResult reports what a sweep changed.
type SweepResult struct {
	Processed int
	Events    []outbox.DomainEvent
}

// ExpireStaleOffers expires pending offers older than the offer TTL and
// pending offers left on closed listings. Each offer is handled on its own;
// failures are collected and the rest still run. Safe to call repeatedly.
func (c *Coordinator) ExpireStaleOffers(ctx context.Context, now time.Time) (SweepResult, error) {
	cutoff := now.Add(-c.settings.OfferTTL)
	stale, err := c.repo.ListPendingOffersBefore(ctx, cutoff, c.settings.SweepBatch)
	if err != nil {
		return SweepResult{}, err
	}
	orphaned, err := c.repo.ListPendingOffersOnClosedListings(ctx, c.settings.SweepBatch)
	if err != nil {
		return SweepResult{}, err
	}

	var (
		result SweepResult
		errs   error
	)
	seen := make(map[uuid.UUID]struct{}, len(stale)+len(orphaned))
	for _, offer := range append(stale, orphaned...) {
		if _, ok := seen[offer.ID]; ok {
			continue
		}
		seen[offer.ID] = struct{}{}
		if err := ctx.Err(); err != nil {
			return result, multierr.Append(errs, err)
		}
		res, err := c.ExpireOffer(ctx, offer.ID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire offer %s: %w", offer.ID, err))
			continue
		}
		if len(res.Events) > 0 {
			result.Processed++
			result.Events = append(result.Events, res.Events...)
		}
	}
	return result, errs
}

// CloseEndedAuctions settles every active auction whose end time has passed.
func (c *Coordinator) CloseEndedAuctions(ctx context.Context, now time.Time) (SweepResult, error) {
	ids, err := c.repo.ListEndedAuctions(ctx, now, c.settings.SweepBatch)
	if err != nil {
		return SweepResult{}, err
	}
	var (
		result SweepResult
		errs   error
	)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, multierr.Append(errs, err)
		}
		res, err := c.closeAuction(ctx, id, now)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close auction %s: %w", id, err))
			continue
		}
		if len(res.Events) > 0 {
			result.Processed++
			result.Events = append(result.Events, res.Events...)
		}
	}
	return result, errs
}
