// Package persistence stores marketplace aggregates with GORM. Every change
// set runs in one transaction together with its outbox events.
package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/tradepost/internal/auction"
	"github.com/angelmondragon/tradepost/internal/listings"
	"github.com/angelmondragon/tradepost/internal/market"
	"github.com/angelmondragon/tradepost/pkg/db"
	"github.com/angelmondragon/tradepost/pkg/db/models"
	"github.com/angelmondragon/tradepost/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost/pkg/errors"
	"github.com/angelmondragon/tradepost/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventWriter interface {
	EmitAll(ctx context.Context, tx *gorm.DB, events []outbox.DomainEvent) error
}

type Repository struct {
	db     *gorm.DB
	tx     txRunner
	events eventWriter
}

var _ listings.Repository = (*Repository)(nil)

func NewRepository(conn *gorm.DB, tx txRunner, events eventWriter) (*Repository, error) {
	if conn == nil {
		return nil, fmt.Errorf("db required")
	}
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if events == nil {
		return nil, fmt.Errorf("event writer required")
	}
	return &Repository{db: conn, tx: tx, events: events}, nil
}

var closedListingStatuses = []enums.ListingStatus{
	enums.ListingStatusCompleted,
	enums.ListingStatusCancelled,
	enums.ListingStatusExpired,
}

func notFound(kind string, id uuid.UUID, err error) error {
	if db.IsNotFound(err) {
		return pkgerrors.Newf(pkgerrors.CodeNotFound, "%s not found", kind).
			WithDetails(map[string]any{"id": id})
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("loading %s", kind))
}

func (r *Repository) FindItem(ctx context.Context, id uuid.UUID) (market.Item, error) {
	var row models.Item
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return market.Item{}, notFound("item", id, err)
	}
	return itemFromRow(row), nil
}

func (r *Repository) FindListing(ctx context.Context, id uuid.UUID) (market.Listing, error) {
	var row models.Listing
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return market.Listing{}, notFound("listing", id, err)
	}
	var items []models.ListingItem
	if err := r.db.WithContext(ctx).
		Where("listing_id = ?", id).
		Order("position ASC").
		Find(&items).Error; err != nil {
		return market.Listing{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading listing items")
	}
	return listingFromRows(row, items)
}

func (r *Repository) FindOffer(ctx context.Context, id uuid.UUID) (market.Offer, error) {
	var row models.Offer
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return market.Offer{}, notFound("offer", id, err)
	}
	loaded, err := r.hydrateOffers(ctx, []models.Offer{row})
	if err != nil {
		return market.Offer{}, err
	}
	return loaded[0], nil
}

func (r *Repository) FindPickup(ctx context.Context, id uuid.UUID) (market.Pickup, error) {
	var row models.Pickup
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return market.Pickup{}, notFound("pickup", id, err)
	}
	return pickupFromRow(row)
}

// FindPickupByOffer prefers an active pickup, then the most recent one.
func (r *Repository) FindPickupByOffer(ctx context.Context, offerID uuid.UUID) (*market.Pickup, error) {
	var rows []models.Pickup
	if err := r.db.WithContext(ctx).
		Where("offer_id = ?", offerID).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading pickup")
	}
	if len(rows) == 0 {
		return nil, nil
	}
	chosen := rows[0]
	for _, row := range rows {
		if row.Status == enums.PickupStatusPending || row.Status == enums.PickupStatusAccepted {
			chosen = row
			break
		}
	}
	p, err := pickupFromRow(chosen)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repository) ListOffersByListing(ctx context.Context, listingID uuid.UUID) ([]market.Offer, error) {
	var rows []models.Offer
	if err := r.db.WithContext(ctx).
		Where("listing_id = ?", listingID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing offers")
	}
	return r.hydrateOffers(ctx, rows)
}

func (r *Repository) ListPendingOffersBefore(ctx context.Context, cutoff time.Time, limit int) ([]market.Offer, error) {
	var rows []models.Offer
	if err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.OfferStatusPending, cutoff.UTC()).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing stale offers")
	}
	return r.hydrateOffers(ctx, rows)
}

func (r *Repository) ListPendingOffersOnClosedListings(ctx context.Context, limit int) ([]market.Offer, error) {
	var rows []models.Offer
	if err := r.db.WithContext(ctx).
		Model(&models.Offer{}).
		Select("offers.*").
		Joins("JOIN listings ON listings.id = offers.listing_id").
		Where("offers.status = ? AND listings.status IN ?", enums.OfferStatusPending, closedListingStatuses).
		Order("offers.created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing orphaned offers")
	}
	return r.hydrateOffers(ctx, rows)
}

func (r *Repository) ListEndedAuctions(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("type = ? AND status = ? AND auction_end_time < ?",
			enums.ListingTypeAuction, enums.ListingStatusActive, now.UTC()).
		Order("auction_end_time ASC").
		Limit(limit).
		Pluck("id", &ids).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing ended auctions")
	}
	return ids, nil
}

// Bids returns the bid history of a listing in sequence order.
func (r *Repository) Bids(ctx context.Context, listingID uuid.UUID) ([]auction.Bid, error) {
	var rows []models.Bid
	if err := r.db.WithContext(ctx).
		Where("listing_id = ?", listingID).
		Order("sequence ASC").
		Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing bids")
	}
	out := make([]auction.Bid, 0, len(rows))
	for _, row := range rows {
		out = append(out, bidFromRow(row))
	}
	return out, nil
}

// Commit writes the change set and its events in one transaction. Rows are
// guarded by their version and stock moves by the quantity bounds, so two
// processes racing on the same rows cannot both win.
func (r *Repository) Commit(ctx context.Context, changes listings.ChangeSet) error {
	return commitError(r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		for _, item := range changes.Items {
			if err := insertItem(tx, item); err != nil {
				return err
			}
		}
		if err := applyStock(tx, changes.Stock, time.Now().UTC()); err != nil {
			return err
		}
		for _, l := range changes.Listings {
			if err := saveListing(tx, l); err != nil {
				return err
			}
		}
		for _, o := range changes.Offers {
			if err := saveOffer(tx, o); err != nil {
				return err
			}
		}
		for _, p := range changes.Pickups {
			row, err := pickupRow(p)
			if err != nil {
				return err
			}
			if err := saveVersioned(tx, "pickup", p.ID, p.Version, &row, &row.Version); err != nil {
				return err
			}
		}
		for _, b := range changes.Bids {
			row := bidRow(b)
			if err := tx.Create(&row).Error; err != nil {
				if db.IsUniqueViolation(err, "") {
					return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "bid sequence already taken").
						WithDetails(map[string]any{"listing_id": b.ListingID, "sequence": b.Sequence})
				}
				return fmt.Errorf("save bid %s: %w", b.ID, err)
			}
		}
		return r.events.EmitAll(ctx, tx, changes.Events)
	}))
}

// commitError maps storage failures the engine can act on to domain codes.
func commitError(err error) error {
	if err == nil || pkgerrors.As(err) != nil {
		return err
	}
	switch {
	case db.IsCheckViolation(err):
		return pkgerrors.Wrap(pkgerrors.CodeInsufficientStock, err, "item quantity out of range")
	case db.IsTransient(err):
		return pkgerrors.Wrap(pkgerrors.CodeReservationConflict, err, "concurrent update, retry")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "committing changes")
}

// insertItem stores a new item. An item that already exists keeps its
// stored quantities.
func insertItem(tx *gorm.DB, item market.Item) error {
	row := itemRow(item)
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return fmt.Errorf("save item %s: %w", item.ID, err)
	}
	return nil
}

// applyStock moves item quantities relative to what is stored. A move that
// would leave 0 <= available <= total matches no row and fails the commit.
func applyStock(tx *gorm.DB, moves []listings.StockMove, now time.Time) error {
	for _, m := range listings.NetStock(moves) {
		res := tx.Model(&models.Item{}).
			Where("id = ?", m.ItemID).
			Where("available_quantity + ? >= 0 AND total_quantity + ? >= 0", m.Available, m.Total).
			Where("available_quantity + ? <= total_quantity + ?", m.Available, m.Total).
			Updates(map[string]any{
				"available_quantity": gorm.Expr("available_quantity + ?", m.Available),
				"total_quantity":     gorm.Expr("total_quantity + ?", m.Total),
				"version":            gorm.Expr("version + 1"),
				"updated_at":         now,
			})
		if res.Error != nil {
			return fmt.Errorf("move stock %s: %w", m.ItemID, res.Error)
		}
		if res.RowsAffected == 0 {
			return pkgerrors.New(pkgerrors.CodeInsufficientStock, "item stock changed, not enough units left").
				WithDetails(map[string]any{"item_id": m.ItemID, "available_delta": m.Available, "total_delta": m.Total})
		}
	}
	return nil
}

// saveVersioned inserts a row read at version 0. Otherwise the row is
// rewritten only while the stored version still equals read, and moves to
// read+1.
func saveVersioned[T any](tx *gorm.DB, kind string, id uuid.UUID, read int64, row *T, version *int64) error {
	if read == 0 {
		*version = 1
		if err := tx.Create(row).Error; err != nil {
			if db.IsUniqueViolation(err, "") {
				return staleWrite(kind, id, err)
			}
			return fmt.Errorf("save %s %s: %w", kind, id, err)
		}
		return nil
	}
	*version = read + 1
	res := tx.Model(row).Where("version = ?", read).Select("*").Updates(row)
	if res.Error != nil {
		return fmt.Errorf("save %s %s: %w", kind, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return staleWrite(kind, id, nil)
	}
	return nil
}

func staleWrite(kind string, id uuid.UUID, cause error) error {
	return pkgerrors.Wrap(pkgerrors.CodeReservationConflict, cause, fmt.Sprintf("%s changed concurrently, retry", kind)).
		WithDetails(map[string]any{kind + "_id": id})
}

func saveListing(tx *gorm.DB, l market.Listing) error {
	row, items, err := listingRows(l)
	if err != nil {
		return err
	}
	if err := saveVersioned(tx, "listing", l.ID, l.Version, &row, &row.Version); err != nil {
		return err
	}
	if err := tx.Where("listing_id = ?", l.ID).Delete(&models.ListingItem{}).Error; err != nil {
		return fmt.Errorf("clear listing items %s: %w", l.ID, err)
	}
	if len(items) == 0 {
		return nil
	}
	if err := tx.Create(&items).Error; err != nil {
		return fmt.Errorf("save listing items %s: %w", l.ID, err)
	}
	return nil
}

func saveOffer(tx *gorm.DB, o market.Offer) error {
	row, lines, reservations := offerRows(o)
	if err := saveVersioned(tx, "offer", o.ID, o.Version, &row, &row.Version); err != nil {
		return err
	}
	if err := tx.Where("offer_id = ?", o.ID).Delete(&models.OfferLineItem{}).Error; err != nil {
		return fmt.Errorf("clear offer lines %s: %w", o.ID, err)
	}
	if err := tx.Where("offer_id = ?", o.ID).Delete(&models.OfferReservation{}).Error; err != nil {
		return fmt.Errorf("clear offer reservations %s: %w", o.ID, err)
	}
	if len(lines) > 0 {
		if err := tx.Create(&lines).Error; err != nil {
			return fmt.Errorf("save offer lines %s: %w", o.ID, err)
		}
	}
	if len(reservations) > 0 {
		if err := tx.Create(&reservations).Error; err != nil {
			return fmt.Errorf("save offer reservations %s: %w", o.ID, err)
		}
	}
	return nil
}

// hydrateOffers loads line items and reservations for a batch of offers.
func (r *Repository) hydrateOffers(ctx context.Context, rows []models.Offer) ([]market.Offer, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}

	var lines []models.OfferLineItem
	if err := r.db.WithContext(ctx).
		Where("offer_id IN ?", ids).
		Order("item_id ASC").
		Find(&lines).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading offer lines")
	}
	var reservations []models.OfferReservation
	if err := r.db.WithContext(ctx).
		Where("offer_id IN ?", ids).
		Order("item_id ASC").
		Find(&reservations).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading offer reservations")
	}

	linesByOffer := make(map[uuid.UUID][]models.OfferLineItem, len(rows))
	for _, li := range lines {
		linesByOffer[li.OfferID] = append(linesByOffer[li.OfferID], li)
	}
	resByOffer := make(map[uuid.UUID][]models.OfferReservation, len(rows))
	for _, res := range reservations {
		resByOffer[res.OfferID] = append(resByOffer[res.OfferID], res)
	}

	out := make([]market.Offer, 0, len(rows))
	for _, row := range rows {
		out = append(out, offerFromRows(row, linesByOffer[row.ID], resByOffer[row.ID]))
	}
	return out, nil
}
