package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tradepost/pkg/enums"
)

type Pickup struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	OfferID        uuid.UUID          `gorm:"column:offer_id;type:uuid;not null;index"`
	ListingID      uuid.UUID          `gorm:"column:listing_id;type:uuid;not null"`
	ProposerID     uuid.UUID          `gorm:"column:proposer_id;type:uuid;not null"`
	RecipientID    uuid.UUID          `gorm:"column:recipient_id;type:uuid;not null"`
	AvailableDates json.RawMessage    `gorm:"column:available_dates;type:jsonb;not null"`
	WindowStart    int                `gorm:"column:window_start;not null"`
	WindowEnd      int                `gorm:"column:window_end;not null"`
	Location       string             `gorm:"column:location;not null;default:''"`
	SelectedDate   *time.Time         `gorm:"column:selected_date"`
	SelectedTime   *int               `gorm:"column:selected_time"`
	Status         enums.PickupStatus `gorm:"column:status;type:text;not null"`
	CreatedAt      time.Time          `gorm:"column:created_at"`
	UpdatedAt      time.Time          `gorm:"column:updated_at;autoUpdateTime:false"`
	Version        int64              `gorm:"column:version;not null;default:1"`
}

func (Pickup) TableName() string { return "pickups" }
