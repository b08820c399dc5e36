package bulk

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/storyblok-sync/pkg/enums"
	pkgerrors "github.com/angelmondragon/storyblok-sync/pkg/errors"
	"github.com/angelmondragon/storyblok-sync/pkg/logger"
	"github.com/angelmondragon/storyblok-sync/pkg/outbox"
	"github.com/angelmondragon/storyblok-sync/pkg/outbox/payloads"
)

const (
	aggregateAll      = "all"
	aggregateSelected = "selected"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) (string, error)
}

// Request selects the products of a bulk run. Exactly one of All and
// ProductIDs must be set.
type Request struct {
	All        bool
	ProductIDs []string
	Force      bool
	Actor      *outbox.ActorRef
}

// Service queues bulk sync runs for the worker instead of running them inline.
type Service interface {
	Enqueue(ctx context.Context, req Request) (string, error)
}

type service struct {
	tx     txRunner
	outbox outboxPublisher
	logg   *logger.Logger
}

// NewService wires the bulk sync queue.
func NewService(tx txRunner, publisher outboxPublisher, logg *logger.Logger) (Service, error) {
	if tx == nil {
		return nil, errors.New("transaction runner required")
	}
	if publisher == nil {
		return nil, errors.New("outbox publisher required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	return &service{tx: tx, outbox: publisher, logg: logg}, nil
}

// Enqueue validates the selection and writes the bulk event to the outbox.
func (s *service) Enqueue(ctx context.Context, req Request) (string, error) {
	ids := cleanIDs(req.ProductIDs)
	if req.All == (len(ids) > 0) {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "exactly one of all or product ids is required")
	}

	eventType := enums.EventStoryblokBulkSync
	if req.Force {
		eventType = enums.EventStoryblokBulkForce
	}
	aggregateID := aggregateSelected
	if req.All {
		aggregateID = aggregateAll
	}

	var eventID string
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		eventID, err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregateStoryblokBulk,
			AggregateID:   aggregateID,
			Actor:         req.Actor,
			Data:          payloads.BulkSyncEvent{All: req.All, ProductIDs: ids},
		})
		return err
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue bulk sync")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"event_id":      eventID,
		"event_type":    eventType,
		"all":           req.All,
		"product_count": len(ids),
	}), "bulk sync queued")
	return eventID, nil
}

func cleanIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
