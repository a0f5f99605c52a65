package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tradepost/pkg/enums"
)

// OutboxEvent is one marketplace event waiting for, or past, relay to the
// Redis stream. Rows are written in the same transaction as the change.
type OutboxEvent struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	EventType     enums.OutboxEventType     `gorm:"column:event_type;type:text;not null"`
	AggregateType enums.OutboxAggregateType `gorm:"column:aggregate_type;type:text;not null"`
	AggregateID   uuid.UUID                 `gorm:"column:aggregate_id;type:uuid;not null;index"`
	Payload       json.RawMessage           `gorm:"column:payload;type:jsonb;not null"`
	CreatedAt     time.Time                 `gorm:"column:created_at"`
	PublishedAt   *time.Time                `gorm:"column:published_at"`
	AttemptCount  int                       `gorm:"column:attempt_count;not null;default:0"`
	LastError     *string                   `gorm:"column:last_error"`
}

func (OutboxEvent) TableName() string { return "outbox_events" }

// FinalAttempt reports whether the attempt in progress is the last one the
// relay allows before parking the row.
func (e OutboxEvent) FinalAttempt(maxAttempts int) bool {
	return e.AttemptCount+1 >= maxAttempts
}

// All lists every model for test schemas.
func All() []any {
	return []any{
		&Item{},
		&Listing{},
		&ListingItem{},
		&Offer{},
		&OfferLineItem{},
		&OfferReservation{},
		&Pickup{},
		&Bid{},
		&OutboxEvent{},
	}
}
