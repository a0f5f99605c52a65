package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/tradepost/pkg/db/models"
	"github.com/angelmondragon/tradepost/pkg/enums"
)

func newOutboxDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:outbox_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.OutboxEvent{}); err != nil {
		t.Fatalf("migrate outbox: %v", err)
	}
	return db
}

func TestEmitAllStoresEnvelopes(t *testing.T) {
	db := newOutboxDB(t)
	svc := NewService(NewRepository(db), nil)
	offerID := uuid.New()
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	err := svc.EmitAll(context.Background(), db, []DomainEvent{
		{EventType: enums.EventOfferCreated, AggregateType: enums.AggregateOffer, AggregateID: offerID, Data: map[string]string{"k": "v"}, OccurredAt: at},
		{EventType: enums.EventOfferAccepted, AggregateType: enums.AggregateOffer, AggregateID: offerID, OccurredAt: at.Add(time.Second)},
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}

	var rows []models.OutboxEvent
	if err := db.Order("created_at ASC").Find(&rows).Error; err != nil {
		t.Fatalf("load rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].EventType != enums.EventOfferCreated || rows[1].EventType != enums.EventOfferAccepted {
		t.Fatalf("unexpected order %s, %s", rows[0].EventType, rows[1].EventType)
	}
	if len(rows[0].Payload) == 0 {
		t.Fatal("expected payload envelope")
	}
}

func TestEmitRequiresTransaction(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	if err := svc.Emit(context.Background(), nil, DomainEvent{}); err == nil {
		t.Fatal("expected error without transaction")
	}
}

func TestFetchSkipsExhaustedAndPublished(t *testing.T) {
	db := newOutboxDB(t)
	repo := NewRepository(db)
	now := time.Now().UTC()
	published := now
	rows := []models.OutboxEvent{
		{ID: uuid.New(), EventType: enums.EventBidPlaced, AggregateType: enums.AggregateListing, AggregateID: uuid.New(), Payload: []byte(`{}`), CreatedAt: now.Add(-3 * time.Minute)},
		{ID: uuid.New(), EventType: enums.EventBidPlaced, AggregateType: enums.AggregateListing, AggregateID: uuid.New(), Payload: []byte(`{}`), CreatedAt: now.Add(-2 * time.Minute), AttemptCount: 5},
		{ID: uuid.New(), EventType: enums.EventBidPlaced, AggregateType: enums.AggregateListing, AggregateID: uuid.New(), Payload: []byte(`{}`), CreatedAt: now.Add(-time.Minute), PublishedAt: &published},
	}
	if err := db.Create(&rows).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := repo.FetchUnpublishedForPublish(db, 10, 5)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 1 || got[0].ID != rows[0].ID {
		t.Fatalf("expected only the fresh unpublished row, got %d rows", len(got))
	}

	if err := repo.MarkFailedTx(db, rows[0].ID, errors.New("redis down")); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	var reloaded models.OutboxEvent
	if err := db.First(&reloaded, "id = ?", rows[0].ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.AttemptCount != 1 || reloaded.LastError == nil || *reloaded.LastError != "redis down" {
		t.Fatalf("unexpected failure bookkeeping: %+v", reloaded)
	}

	if err := repo.MarkPublishedTx(db, rows[0].ID); err != nil {
		t.Fatalf("mark published: %v", err)
	}
	got, err = repo.FetchUnpublishedForPublish(db, 10, 5)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected nothing left to publish, got %d", len(got))
	}
}

func TestPruneDeliveredKeepsRecentAndRetryable(t *testing.T) {
	db := newOutboxDB(t)
	repo := NewRepository(db)
	cutoff := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	old := cutoff.Add(-time.Hour)
	recent := cutoff.Add(time.Hour)

	mk := func(created time.Time, publishedAt *time.Time, attempts int) models.OutboxEvent {
		return models.OutboxEvent{
			ID: uuid.New(), EventType: enums.EventOfferExpired, AggregateType: enums.AggregateOffer,
			AggregateID: uuid.New(), Payload: []byte(`{}`), CreatedAt: created,
			PublishedAt: publishedAt, AttemptCount: attempts,
		}
	}
	rows := []models.OutboxEvent{
		mk(old, &old, 0),       // delivered long ago
		mk(recent, &recent, 0), // delivered recently
		mk(old, nil, 10),       // dead letter
		mk(old, nil, 1),        // still retrying
	}
	if err := db.Create(&rows).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	deleted, err := repo.PruneDelivered(context.Background(), db, cutoff, 5, 0)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 rows deleted, got %d", deleted)
	}
	var left int64
	if err := db.Model(&models.OutboxEvent{}).Count(&left).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if left != 2 {
		t.Fatalf("expected 2 rows kept, got %d", left)
	}
}

func TestPruneDeliveredHonoursLimit(t *testing.T) {
	db := newOutboxDB(t)
	repo := NewRepository(db)
	cutoff := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	var rows []models.OutboxEvent
	for i := 0; i < 5; i++ {
		at := cutoff.Add(-time.Duration(i+1) * time.Hour)
		rows = append(rows, models.OutboxEvent{
			ID: uuid.New(), EventType: enums.EventOfferExpired, AggregateType: enums.AggregateOffer,
			AggregateID: uuid.New(), Payload: []byte(`{}`), CreatedAt: at, PublishedAt: &at,
		})
	}
	if err := db.Create(&rows).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	for _, want := range []int64{2, 2, 1, 0} {
		got, err := repo.PruneDelivered(context.Background(), db, cutoff, 5, 2)
		if err != nil {
			t.Fatalf("prune: %v", err)
		}
		if got != want {
			t.Fatalf("expected %d rows pruned, got %d", want, got)
		}
	}
}
