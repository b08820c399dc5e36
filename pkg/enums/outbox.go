package enums

import "fmt"

// OutboxAggregateType identifies the entity an event is about.
type OutboxAggregateType string

const (
	AggregateProduct        OutboxAggregateType = "product"
	AggregateProductVariant OutboxAggregateType = "product_variant"
	AggregateStoryblokBulk  OutboxAggregateType = "storyblok_bulk"
)

var aggregateTypes = []OutboxAggregateType{
	AggregateProduct,
	AggregateProductVariant,
	AggregateStoryblokBulk,
}

func (a OutboxAggregateType) IsValid() bool { return oneOf(a, aggregateTypes) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse(value, aggregateTypes, "aggregate type")
}

// OutboxEventType is carried in the `event_type` message attribute.
type OutboxEventType string

const (
	EventProductCreated        OutboxEventType = "product.created"
	EventProductUpdated        OutboxEventType = "product.updated"
	EventProductDeleted        OutboxEventType = "product.deleted"
	EventProductVariantCreated OutboxEventType = "product-variant.created"
	EventProductVariantDeleted OutboxEventType = "product-variant.deleted"
	EventStoryblokBulkSync     OutboxEventType = "storyblok.bulk_sync"
	EventStoryblokBulkForce    OutboxEventType = "storyblok.bulk_force_sync"
)

var eventTypes = []OutboxEventType{
	EventProductCreated,
	EventProductUpdated,
	EventProductDeleted,
	EventProductVariantCreated,
	EventProductVariantDeleted,
	EventStoryblokBulkSync,
	EventStoryblokBulkForce,
}

func (e OutboxEventType) IsValid() bool { return oneOf(e, eventTypes) }

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse(value, eventTypes, "event type")
}

// OutboxDLQErrorReason records why a row was moved to outbox_dlq. Values
// mirror the error_reason CHECK constraint.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

var dlqReasons = []OutboxDLQErrorReason{
	OutboxDLQReasonMaxAttempts,
	OutboxDLQReasonNonRetryable,
}

func (r OutboxDLQErrorReason) IsValid() bool { return oneOf(r, dlqReasons) }

func oneOf[T ~string](v T, set []T) bool {
	for _, candidate := range set {
		if candidate == v {
			return true
		}
	}
	return false
}

func parse[T ~string](value string, set []T, kind string) (T, error) {
	if v := T(value); oneOf(v, set) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, value)
}
