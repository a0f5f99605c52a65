package pickups

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tradepost/internal/market"
	"github.com/angelmondragon/tradepost/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost/pkg/errors"
)

// Proposal is what the listing creator offers as hand-off options.
type Proposal struct {
	AvailableDates []time.Time
	Window         market.TimeWindow
	Location       string
}

// Defaults fill in a proposal when the creator accepts without one.
type Defaults struct {
	Days     int
	Window   market.TimeWindow
	Location string
}

// DefaultProposal offers the next Days calendar days after now.
func (d Defaults) DefaultProposal(now time.Time) Proposal {
	days := d.Days
	if days <= 0 {
		days = 1
	}
	today := market.Day(now)
	dates := make([]time.Time, 0, days)
	for i := 1; i <= days; i++ {
		dates = append(dates, today.AddDate(0, 0, i))
	}
	return Proposal{AvailableDates: dates, Window: d.Window, Location: d.Location}
}

type Coordinator struct {
	now func() time.Time
}

func NewCoordinator() *Coordinator {
	return &Coordinator{now: func() time.Time { return time.Now().UTC() }}
}

// WithClock replaces the time source used for pickup timestamps.
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	if now != nil {
		c.now = now
	}
	return c
}

// Propose creates the pickup for an accepted offer. existing is the pickup
// already attached to the offer, if any.
func (c *Coordinator) Propose(listing market.Listing, offer market.Offer, proposal Proposal, existing *market.Pickup) (market.Pickup, error) {
	if offer.Status != enums.OfferStatusAccepted {
		return market.Pickup{}, pkgerrors.New(pkgerrors.CodeStateConflict, "pickup requires an accepted offer").
			WithDetails(map[string]any{"offer_id": offer.ID, "status": offer.Status})
	}
	if existing != nil && existing.Status.IsActive() {
		return market.Pickup{}, pkgerrors.New(pkgerrors.CodeStateConflict, "offer already has an active pickup").
			WithDetails(map[string]any{"pickup_id": existing.ID})
	}
	if len(proposal.AvailableDates) == 0 {
		return market.Pickup{}, pkgerrors.New(pkgerrors.CodeValidation, "at least one pickup date is required")
	}
	if err := proposal.Window.Validate(); err != nil {
		return market.Pickup{}, err
	}

	now := c.now()
	return market.Pickup{
		ID:             uuid.New(),
		OfferID:        offer.ID,
		ListingID:      listing.ID,
		ProposerID:     listing.CreatorID,
		RecipientID:    offer.OfferingUserID,
		AvailableDates: normalizeDates(proposal.AvailableDates),
		Window:         proposal.Window,
		Location:       proposal.Location,
		Status:         enums.PickupStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// SelectTime records the slot the offering user picked.
func (c *Coordinator) SelectTime(p market.Pickup, actorID uuid.UUID, date time.Time, at market.TimeOfDay) (market.Pickup, error) {
	if actorID != p.RecipientID {
		return market.Pickup{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "only the offering user can pick a slot")
	}
	if err := requireStatus(p, enums.PickupStatusPending); err != nil {
		return market.Pickup{}, err
	}
	if !p.OffersDate(date) {
		return market.Pickup{}, pkgerrors.New(pkgerrors.CodePickupSlotInvalid, "date is not one of the proposed dates").
			WithDetails(map[string]any{"date": market.Day(date).Format(time.DateOnly)})
	}
	if !p.Window.Contains(at) {
		return market.Pickup{}, pkgerrors.New(pkgerrors.CodePickupSlotInvalid, "time is outside the pickup window").
			WithDetails(map[string]any{
				"time":         at.String(),
				"window_start": p.Window.Start.String(),
				"window_end":   p.Window.End.String(),
			})
	}

	next := p.Clone()
	day := market.Day(date)
	next.SelectedDate = &day
	next.SelectedTime = &at
	next.UpdatedAt = c.now()
	return next, nil
}

// Accept confirms the selected slot.
func (c *Coordinator) Accept(p market.Pickup, actorID uuid.UUID) (market.Pickup, error) {
	if actorID != p.RecipientID {
		return market.Pickup{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "only the offering user can confirm a pickup")
	}
	if err := requireStatus(p, enums.PickupStatusPending); err != nil {
		return market.Pickup{}, err
	}
	if p.SelectedDate == nil || p.SelectedTime == nil {
		return market.Pickup{}, pkgerrors.New(pkgerrors.CodePickupSlotInvalid, "select a pickup slot before confirming")
	}
	return c.advance(p, enums.PickupStatusAccepted), nil
}

func (c *Coordinator) Decline(p market.Pickup, actorID uuid.UUID) (market.Pickup, error) {
	if actorID != p.RecipientID {
		return market.Pickup{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "only the offering user can decline a pickup")
	}
	if err := requireStatus(p, enums.PickupStatusPending); err != nil {
		return market.Pickup{}, err
	}
	return c.advance(p, enums.PickupStatusDeclined), nil
}

func (c *Coordinator) Complete(p market.Pickup, actorID uuid.UUID) (market.Pickup, error) {
	if !p.IsParticipant(actorID) {
		return market.Pickup{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "not a participant of this pickup")
	}
	if err := requireStatus(p, enums.PickupStatusAccepted); err != nil {
		return market.Pickup{}, err
	}
	return c.advance(p, enums.PickupStatusCompleted), nil
}

func (c *Coordinator) Cancel(p market.Pickup, actorID uuid.UUID) (market.Pickup, error) {
	if !p.IsParticipant(actorID) {
		return market.Pickup{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "not a participant of this pickup")
	}
	if err := requireStatus(p, enums.PickupStatusAccepted); err != nil {
		return market.Pickup{}, err
	}
	return c.advance(p, enums.PickupStatusCancelled), nil
}

// Void cancels a pickup whose offer was called off, whatever handshake step
// it reached. Pickups that are no longer active come back unchanged.
func (c *Coordinator) Void(p market.Pickup) (market.Pickup, bool) {
	if !p.Status.IsActive() {
		return p, false
	}
	return c.advance(p, enums.PickupStatusCancelled), true
}

func (c *Coordinator) advance(p market.Pickup, status enums.PickupStatus) market.Pickup {
	next := p.Clone()
	next.Status = status
	next.UpdatedAt = c.now()
	return next
}

func requireStatus(p market.Pickup, want enums.PickupStatus) error {
	if p.Status == want {
		return nil
	}
	return pkgerrors.Newf(pkgerrors.CodeStateConflict, "pickup is %s, expected %s", p.Status, want).
		WithDetails(map[string]any{"pickup_id": p.ID, "status": p.Status})
}

func normalizeDates(dates []time.Time) []time.Time {
	seen := make(map[time.Time]struct{}, len(dates))
	out := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		day := market.Day(d)
		if _, ok := seen[day]; ok {
			continue
		}
		seen[day] = struct{}{}
		out = append(out, day)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
