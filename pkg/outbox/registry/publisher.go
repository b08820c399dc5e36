package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/angelmondragon/storyblok-sync/pkg/config"
	"github.com/angelmondragon/storyblok-sync/pkg/db/models"
	"github.com/angelmondragon/storyblok-sync/pkg/enums"
	"github.com/angelmondragon/storyblok-sync/pkg/outbox"
	"github.com/angelmondragon/storyblok-sync/pkg/outbox/payloads"
)

// EventDescriptor ties an event type to its aggregate, topic and payload shape.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string

	newPayload func() any
}

func describe[T any](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType) EventDescriptor {
	return EventDescriptor{
		EventType:     eventType,
		AggregateType: aggregate,
		newPayload:    func() any { return new(T) },
	}
}

var catalog = []EventDescriptor{
	describe[payloads.ProductEvent](enums.EventProductCreated, enums.AggregateProduct),
	describe[payloads.ProductEvent](enums.EventProductUpdated, enums.AggregateProduct),
	describe[payloads.ProductEvent](enums.EventProductDeleted, enums.AggregateProduct),
	describe[payloads.VariantsCreatedEvent](enums.EventProductVariantCreated, enums.AggregateProductVariant),
	describe[payloads.VariantDeletedEvent](enums.EventProductVariantDeleted, enums.AggregateProductVariant),
	describe[payloads.BulkSyncEvent](enums.EventStoryblokBulkSync, enums.AggregateStoryblokBulk),
	describe[payloads.BulkSyncEvent](enums.EventStoryblokBulkForce, enums.AggregateStoryblokBulk),
}

// Descriptors returns every known event bound to topic. All sync events share
// one topic and are told apart by the event_type attribute.
func Descriptors(topic string) []EventDescriptor {
	out := slices.Clone(catalog)
	for i := range out {
		out[i].Topic = topic
	}
	return out
}

// decode unmarshals data into a fresh payload. Empty and null data are
// rejected since every sync event carries at least an id.
func (d EventDescriptor) decode(data json.RawMessage) (any, error) {
	body := bytes.TrimSpace(data)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil, fmt.Errorf("%s: empty payload", d.EventType)
	}
	if d.newPayload == nil {
		return nil, fmt.Errorf("%s: no payload type", d.EventType)
	}
	payload := d.newPayload()
	if err := json.Unmarshal(body, payload); err != nil {
		return nil, fmt.Errorf("%s: decode payload: %w", d.EventType, err)
	}
	return payload, nil
}

// ResolvedEvent is an outbox row after validation and payload decoding.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks a row that will fail the same way on every attempt.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func permanent(format string, args ...any) error {
	return NewNonRetryableError(fmt.Errorf(format, args...))
}

// EventRegistry resolves outbox rows for the publisher.
type EventRegistry struct {
	byType map[enums.OutboxEventType]EventDescriptor
}

func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topic := strings.TrimSpace(cfg.SyncTopic)
	if topic == "" {
		return nil, errors.New("sync topic is required")
	}
	byType := make(map[enums.OutboxEventType]EventDescriptor, len(catalog))
	for _, d := range Descriptors(topic) {
		byType[d.EventType] = d
	}
	return &EventRegistry{byType: byType}, nil
}

// Resolve checks the row against its descriptor and decodes the stored
// envelope. Every failure is non-retryable.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	d, ok := r.byType[event.EventType]
	switch {
	case !ok:
		return nil, permanent("unsupported event type %q", event.EventType)
	case d.AggregateType != event.AggregateType:
		return nil, permanent("%s belongs to %s aggregates, row has %s", event.EventType, d.AggregateType, event.AggregateType)
	case strings.TrimSpace(event.AggregateID) == "":
		return nil, permanent("%s row has no aggregate_id", event.EventType)
	}

	env, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, NewNonRetryableError(err)
	}
	payload, err := d.decode(env.Data)
	if err != nil {
		return nil, NewNonRetryableError(err)
	}
	return &ResolvedEvent{Descriptor: d, Envelope: env, Payload: payload}, nil
}
