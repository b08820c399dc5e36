package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const currentEnvelopeVersion = 1

var errMissingEventID = errors.New("envelope missing event id")

// ActorRef names the admin that triggered an event. Webhook and catalog
// events carry none.
type ActorRef struct {
	Subject string `json:"subject"`
	Role    string `json:"role,omitempty"`
}

// PayloadEnvelope wraps every outbox payload. The same bytes are stored in
// outbox_events.payload and published as the Pub/Sub message body.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// DecodeEnvelope parses raw and requires an event id. Envelopes written
// before versioning decode as version 1.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return PayloadEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if strings.TrimSpace(env.EventID) == "" {
		return PayloadEnvelope{}, errMissingEventID
	}
	if env.Version <= 0 {
		env.Version = currentEnvelopeVersion
	}
	return env, nil
}
