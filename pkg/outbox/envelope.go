package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnvelopeVersion is written on every new row. Consumers must reject
// versions they do not know.
const EnvelopeVersion = 1

// Actor roles recorded on marketplace events.
const (
	RoleCreator = "creator"
	RoleOfferer = "offerer"
	RoleBidder  = "bidder"
	RoleSystem  = "system"
)

// ErrMalformedEnvelope marks payloads that can never be delivered.
var ErrMalformedEnvelope = errors.New("malformed outbox envelope")

// ActorRef names who caused the event. UserID is omitted for sweeps.
type ActorRef struct {
	UserID uuid.UUID `json:"userId,omitzero"`
	Role   string    `json:"role"`
}

// PayloadEnvelope is the JSON stored in outbox_events.payload and copied
// verbatim into the stream entry.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// DecodeEnvelope parses a stored payload and checks the fields the relay
// depends on.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return PayloadEnvelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	switch {
	case env.EventID == "":
		return PayloadEnvelope{}, fmt.Errorf("%w: missing event id", ErrMalformedEnvelope)
	case env.Version < 1 || env.Version > EnvelopeVersion:
		return PayloadEnvelope{}, fmt.Errorf("%w: unsupported version %d", ErrMalformedEnvelope, env.Version)
	}
	return env, nil
}
