package market

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tradepost/pkg/enums"
	pkgerrors "github.com/angelmondragon/tradepost/pkg/errors"
)

// TimeOfDay is a wall-clock time expressed in minutes after midnight.
type TimeOfDay int

const minutesPerDay = 24 * 60

func NewTimeOfDay(hour, minute int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid time of day %02d:%02d", hour, minute)
	}
	return TimeOfDay(hour*60 + minute), nil
}

// ParseTimeOfDay accepts "HH:MM".
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	parsed, err := time.Parse("15:04", value)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("invalid time of day %q", value))
	}
	return NewTimeOfDay(parsed.Hour(), parsed.Minute())
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

func (t TimeOfDay) valid() bool {
	return t >= 0 && t < minutesPerDay
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// TimeWindow is an inclusive daily range.
type TimeWindow struct {
	Start TimeOfDay `json:"start"`
	End   TimeOfDay `json:"end"`
}

func (w TimeWindow) Validate() error {
	if !w.Start.valid() || !w.End.valid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "pickup window out of range")
	}
	if w.Start >= w.End {
		return pkgerrors.New(pkgerrors.CodeValidation, "pickup window start must be before end").
			WithDetails(map[string]any{"start": w.Start.String(), "end": w.End.String()})
	}
	return nil
}

func (w TimeWindow) Contains(t TimeOfDay) bool {
	return t >= w.Start && t <= w.End
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Pickup is the hand-off arrangement attached to an accepted offer.
type Pickup struct {
	ID             uuid.UUID          `json:"id"`
	OfferID        uuid.UUID          `json:"offerId"`
	ListingID      uuid.UUID          `json:"listingId"`
	ProposerID     uuid.UUID          `json:"proposerId"`
	RecipientID    uuid.UUID          `json:"recipientId"`
	AvailableDates []time.Time        `json:"availableDates"`
	Window         TimeWindow         `json:"window"`
	Location       string             `json:"location"`
	SelectedDate   *time.Time         `json:"selectedDate,omitempty"`
	SelectedTime   *TimeOfDay         `json:"selectedTime,omitempty"`
	Status         enums.PickupStatus `json:"status"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
	Version        int64              `json:"-"`
}

// OffersDate reports whether day (any time on it) is one of the proposed dates.
func (p Pickup) OffersDate(day time.Time) bool {
	target := Day(day)
	for _, d := range p.AvailableDates {
		if Day(d).Equal(target) {
			return true
		}
	}
	return false
}

// IsParticipant reports whether the user is either side of the hand-off.
func (p Pickup) IsParticipant(userID uuid.UUID) bool {
	return userID == p.ProposerID || userID == p.RecipientID
}

func (p Pickup) Clone() Pickup {
	out := p
	out.AvailableDates = append([]time.Time(nil), p.AvailableDates...)
	if p.SelectedDate != nil {
		d := *p.SelectedDate
		out.SelectedDate = &d
	}
	if p.SelectedTime != nil {
		t := *p.SelectedTime
		out.SelectedTime = &t
	}
	return out
}
