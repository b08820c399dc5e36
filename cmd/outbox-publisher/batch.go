package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storyblok-sync/pkg/db/models"
	"github.com/angelmondragon/storyblok-sync/pkg/enums"
	"github.com/angelmondragon/storyblok-sync/pkg/outbox/registry"
)

type verdict int

const (
	verdictPublished verdict = iota
	verdictRetry
	verdictDead
)

// inflight is one outbox row between Publish and settlement.
type inflight struct {
	event  models.OutboxEvent
	topic  string
	env    string
	result publishResult

	verdict verdict
	reason  enums.OutboxDLQErrorReason
	err     error
}

func (f *inflight) dead(reason enums.OutboxDLQErrorReason, err error) {
	f.verdict, f.reason, f.err = verdictDead, reason, err
}

// processBatch reports whether any row was fetched. Its error is reserved for
// failures to persist row state, which roll the whole batch back.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	started := time.Now()
	rows := 0
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox batch: %w", err)
		}
		rows = len(events)

		publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
		defer cancel()

		batch := make([]*inflight, 0, len(events))
		for _, event := range events {
			batch = append(batch, s.send(publishCtx, event))
		}
		for _, f := range batch {
			s.await(publishCtx, f)
			if err := s.settle(ctx, tx, f); err != nil {
				return err
			}
		}
		return nil
	})
	s.metrics.ObserveBatch(rows, time.Since(started))
	return rows > 0, err
}

// send resolves the row and hands the stored envelope to its topic's
// publisher without waiting. The worker routes on the event_type attribute.
func (s *Service) send(ctx context.Context, event models.OutboxEvent) *inflight {
	f := &inflight{event: event}

	resolved, err := s.registry.Resolve(event)
	if err != nil {
		f.dead(enums.OutboxDLQReasonNonRetryable, err)
		return f
	}
	f.topic = resolved.Descriptor.Topic
	f.env = resolved.Envelope.EventID

	pub := s.publish(f.topic)
	if pub == nil {
		f.dead(enums.OutboxDLQReasonNonRetryable, fmt.Errorf("no publisher for topic %q", f.topic))
		return f
	}
	f.result = pub.Publish(ctx, &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       f.env,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID,
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
		OrderingKey: event.AggregateID,
	})
	if f.result == nil {
		f.dead(enums.OutboxDLQReasonNonRetryable, fmt.Errorf("publisher for topic %q returned no result", f.topic))
	}
	return f
}

func (s *Service) await(ctx context.Context, f *inflight) {
	if f.result == nil {
		return
	}
	_, err := f.result.Get(ctx)
	var nonRetryable registry.NonRetryableError
	switch {
	case err == nil:
		f.verdict = verdictPublished
	case errors.As(err, &nonRetryable):
		f.dead(enums.OutboxDLQReasonNonRetryable, err)
	case f.event.AttemptCount+1 >= s.maxAttempts:
		f.dead(enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("max publish attempts reached: %w", err))
	default:
		f.verdict, f.err = verdictRetry, err
	}
}

func (s *Service) settle(ctx context.Context, tx *gorm.DB, f *inflight) error {
	event := f.event
	eventType := string(event.EventType)
	logCtx := s.logg.WithFields(ctx, f.fields())

	switch f.verdict {
	case verdictPublished:
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.metrics.IncPublished(eventType)
		s.logg.Info(logCtx, "outbox event published")

	case verdictRetry:
		if err := s.repo.MarkFailedTx(tx, event.ID, f.err); err != nil {
			return fmt.Errorf("mark failed %s: %w", event.ID, err)
		}
		s.metrics.IncRetried(eventType)
		s.logg.Warn(s.logg.WithField(logCtx, "error", f.err.Error()), "outbox publish failed, will retry")

	case verdictDead:
		msg := f.err.Error()
		entry := models.OutboxDLQ{
			ID:            uuid.New(),
			EventID:       event.ID,
			EventType:     event.EventType,
			AggregateType: event.AggregateType,
			AggregateID:   event.AggregateID,
			Payload:       event.Payload,
			ErrorReason:   f.reason,
			ErrorMessage:  &msg,
			AttemptCount:  event.AttemptCount,
			FailedAt:      time.Now().UTC(),
		}
		if err := s.dlq.InsertTx(tx, entry); err != nil {
			return fmt.Errorf("insert dlq %s: %w", event.ID, err)
		}
		if err := s.repo.MarkTerminalTx(tx, event.ID, f.err, s.maxAttempts); err != nil {
			return fmt.Errorf("mark terminal %s: %w", event.ID, err)
		}
		s.metrics.IncDeadLettered(eventType, string(f.reason))
		s.logg.Warn(s.logg.WithField(logCtx, "error", msg), "outbox event dead-lettered")
	}
	return nil
}

func (f *inflight) fields() map[string]any {
	fields := map[string]any{
		"outbox_id":      f.event.ID.String(),
		"event_type":     f.event.EventType,
		"aggregate_type": f.event.AggregateType,
		"aggregate_id":   f.event.AggregateID,
		"attempt_count":  f.event.AttemptCount,
	}
	if f.env != "" {
		fields["event_id"] = f.env
	}
	if f.topic != "" {
		fields["topic"] = f.topic
	}
	if f.verdict == verdictDead {
		fields["error_reason"] = f.reason
	}
	return fields
}
