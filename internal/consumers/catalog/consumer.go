package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/storyblok-sync/internal/reconcile"
	"github.com/angelmondragon/storyblok-sync/internal/stories"
	"github.com/angelmondragon/storyblok-sync/pkg/enums"
	"github.com/angelmondragon/storyblok-sync/pkg/logger"
	"github.com/angelmondragon/storyblok-sync/pkg/metrics"
	"github.com/angelmondragon/storyblok-sync/pkg/outbox"
	"github.com/angelmondragon/storyblok-sync/pkg/outbox/payloads"
)

const (
	consumerName      = "storyblok-sync"
	eventTypeAttr     = "event_type"
	requeueScope      = "evt:requeue:" + consumerName
	requeueCounterTTL = 24 * time.Hour
)

type workflows interface {
	ProductCreated(ctx context.Context, productID string) error
	ProductUpdated(ctx context.Context, productID string) error
	ProductDeleted(ctx context.Context, productID string) error
	VariantsCreated(ctx context.Context, productID string, variantIDs []string) error
	VariantDeleted(ctx context.Context, productID, variantID string) error
	BulkSync(ctx context.Context, all bool, productIDs []string) (reconcile.BulkResult, error)
	BulkForceSync(ctx context.Context, all bool, productIDs []string) (reconcile.BulkResult, error)
}

type idempotencyGuard interface {
	Claim(ctx context.Context, consumer, eventID string) (bool, error)
	Release(ctx context.Context, consumer, eventID string) error
}

type payloadDecoder interface {
	Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (interface{}, error)
}

// AttemptCounter counts requeues of one event when the subscription does not
// report delivery attempts. *redis.Client satisfies it.
type AttemptCounter interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	IdempotencyKey(scope, id string) string
}

// Params wires the catalog event consumer.
type Params struct {
	Subscription    *pubsub.Subscriber
	Workflows       workflows
	Decoders        payloadDecoder
	Idempotency     idempotencyGuard
	Attempts        AttemptCounter
	Metrics         *metrics.SyncMetrics
	RequeueAttempts int
	Logger          *logger.Logger
}

// Consumer turns commerce lifecycle and bulk-sync events into reconciliation
// workflows.
type Consumer struct {
	subscription    *pubsub.Subscriber
	workflows       workflows
	decoders        payloadDecoder
	idempotency     idempotencyGuard
	attempts        AttemptCounter
	metrics         *metrics.SyncMetrics
	requeueAttempts int
	logg            *logger.Logger
}

// NewConsumer validates dependencies. A nil subscription is allowed for
// callers that only drive Handle.
func NewConsumer(p Params) (*Consumer, error) {
	if p.Workflows == nil {
		return nil, errors.New("sync workflows required")
	}
	if p.Decoders == nil {
		return nil, errors.New("payload decoders required")
	}
	if p.Idempotency == nil {
		return nil, errors.New("idempotency manager required")
	}
	if p.Logger == nil {
		return nil, errors.New("logger required")
	}
	return &Consumer{
		subscription:    p.Subscription,
		workflows:       p.Workflows,
		decoders:        p.Decoders,
		idempotency:     p.Idempotency,
		attempts:        p.Attempts,
		metrics:         p.Metrics,
		requeueAttempts: p.RequeueAttempts,
		logg:            p.Logger,
	}, nil
}

// Run processes messages until the context is canceled or the subscription errors.
func (c *Consumer) Run(ctx context.Context) error {
	if c.subscription == nil {
		return errors.New("sync subscription required")
	}
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		d := Delivery{
			MessageID:  msg.ID,
			Attributes: msg.Attributes,
			Data:       msg.Data,
		}
		if msg.DeliveryAttempt != nil {
			d.Attempt = *msg.DeliveryAttempt
		}
		if c.Handle(ctx, d).Nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// Delivery is the transport-neutral view of one message.
type Delivery struct {
	MessageID  string
	Attributes map[string]string
	Data       []byte
	Attempt    int
}

// Result tells the transport whether to redeliver.
type Result struct {
	Nack bool
}

var (
	ack  = Result{}
	nack = Result{Nack: true}
)

// Handle runs one delivery through idempotency, decoding and dispatch.
func (c *Consumer) Handle(ctx context.Context, d Delivery) Result {
	eventType := enums.OutboxEventType(d.Attributes[eventTypeAttr])
	fields := map[string]any{
		"message_id": d.MessageID,
		"event_type": eventType,
	}
	logCtx := c.logg.WithFields(ctx, fields)

	if !eventType.IsValid() {
		c.logg.Info(logCtx, "skipping unsupported event")
		return ack
	}

	envelope, err := outbox.DecodeEnvelope(d.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return ack
	}
	logCtx = c.logg.WithField(logCtx, "event_id", envelope.EventID)

	payload, err := c.decoders.Decode(eventType, envelope.Version, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode payload", err)
		return ack
	}

	claimed, err := c.idempotency.Claim(ctx, consumerName, envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return nack
	}
	if !claimed {
		c.logg.Info(logCtx, "event already processed")
		return ack
	}

	err = c.dispatch(logCtx, eventType, payload)
	if err == nil {
		c.logg.Info(logCtx, "event processed")
		return ack
	}
	return c.handleFailure(logCtx, eventType, envelope.EventID, d.Attempt, err)
}

func (c *Consumer) handleFailure(ctx context.Context, eventType enums.OutboxEventType, eventID string, attempt int, err error) Result {
	if errors.Is(err, stories.ErrParentStoryMissing) {
		return c.requeue(ctx, eventType, eventID, attempt)
	}
	if !reconcile.Retryable(err) {
		c.logg.Error(ctx, "event failed permanently", err)
		return ack
	}
	c.logg.Error(ctx, "event failed, requesting redelivery", err)
	c.release(ctx, eventID)
	return nack
}

// requeue redelivers variant events that raced ahead of their product story,
// up to the configured number of attempts.
func (c *Consumer) requeue(ctx context.Context, eventType enums.OutboxEventType, eventID string, attempt int) Result {
	if attempt <= 0 {
		attempt = c.countAttempt(ctx, eventID)
	}
	ctx = c.logg.WithField(ctx, "delivery_attempt", attempt)
	if attempt > c.requeueAttempts {
		c.logg.Warn(ctx, "parent story still missing, giving up on event")
		return ack
	}
	c.logg.Warn(ctx, "parent story missing, requeueing event")
	c.metrics.IncRequeue(string(eventType))
	c.release(ctx, eventID)
	return nack
}

func (c *Consumer) countAttempt(ctx context.Context, eventID string) int {
	if c.attempts == nil {
		return 1
	}
	key := c.attempts.IdempotencyKey(requeueScope, eventID)
	n, err := c.attempts.IncrWithTTL(ctx, key, requeueCounterTTL)
	if err != nil {
		c.logg.Error(ctx, "requeue counter failed", err)
		return c.requeueAttempts + 1
	}
	return int(n)
}

func (c *Consumer) release(ctx context.Context, eventID string) {
	if err := c.idempotency.Release(ctx, consumerName, eventID); err != nil {
		c.logg.Error(ctx, "failed to release idempotency marker", err)
	}
}

func (c *Consumer) dispatch(ctx context.Context, eventType enums.OutboxEventType, payload interface{}) error {
	switch p := payload.(type) {
	case *payloads.ProductEvent:
		if strings.TrimSpace(p.ID) == "" {
			return invalidPayload(eventType, "product id missing")
		}
		ctx = c.logg.WithProductID(ctx, p.ID)
		switch eventType {
		case enums.EventProductCreated:
			return c.workflows.ProductCreated(ctx, p.ID)
		case enums.EventProductUpdated:
			return c.workflows.ProductUpdated(ctx, p.ID)
		case enums.EventProductDeleted:
			return c.workflows.ProductDeleted(ctx, p.ID)
		}
	case *payloads.VariantsCreatedEvent:
		ids := p.VariantIDs()
		if strings.TrimSpace(p.ProductID) == "" || len(ids) == 0 {
			return invalidPayload(eventType, "product id and variant ids required")
		}
		return c.workflows.VariantsCreated(ctx, p.ProductID, ids)
	case *payloads.VariantDeletedEvent:
		if strings.TrimSpace(p.ProductID) == "" || strings.TrimSpace(p.ID) == "" {
			return invalidPayload(eventType, "product id and variant id required")
		}
		return c.workflows.VariantDeleted(ctx, p.ProductID, p.ID)
	case *payloads.BulkSyncEvent:
		run := c.workflows.BulkSync
		if eventType == enums.EventStoryblokBulkForce {
			run = c.workflows.BulkForceSync
		}
		res, err := run(ctx, p.All, p.ProductIDs)
		if err != nil {
			return err
		}
		if res.Err != nil {
			c.logg.Warn(c.logg.WithFields(ctx, map[string]any{
				"total":  res.Total,
				"failed": res.Failed,
				"errors": res.Err.Error(),
			}), "bulk sync finished with failures")
		}
		return nil
	}
	return invalidPayload(eventType, fmt.Sprintf("unexpected payload %T", payload))
}
