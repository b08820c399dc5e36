package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/storyblok-sync/pkg/logger"
	"gorm.io/gorm"
)

const (
	outboxRetentionDays = 30
	dlqRetentionDays    = 90
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type dlqRetentionRepo interface {
	DeleteFailedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

// RetentionJobParams configure the outbox and DLQ retention jobs.
type RetentionJobParams struct {
	Logger        *logger.Logger
	DB            txRunner
	RetentionDays int
}

// NewOutboxRetentionJob deletes published outbox rows older than the
// retention window. Unpublished rows are never touched.
func NewOutboxRetentionJob(params RetentionJobParams, repo outboxRetentionRepo) (Job, error) {
	if repo == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	job, err := newRetentionJob("outbox-retention", params, outboxRetentionDays, repo.DeletePublishedBefore)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// NewDLQRetentionJob deletes dead-lettered events older than the retention
// window.
func NewDLQRetentionJob(params RetentionJobParams, repo dlqRetentionRepo) (Job, error) {
	if repo == nil {
		return nil, fmt.Errorf("dlq repository required")
	}
	job, err := newRetentionJob("dlq-retention", params, dlqRetentionDays, repo.DeleteFailedBefore)
	if err != nil {
		return nil, err
	}
	return job, nil
}

type deleteBeforeFunc func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)

func newRetentionJob(name string, params RetentionJobParams, defaultDays int, del deleteBeforeFunc) (*retentionJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	days := params.RetentionDays
	if days <= 0 {
		days = defaultDays
	}
	return &retentionJob{
		name:      name,
		logg:      params.Logger,
		db:        params.DB,
		del:       del,
		retention: days,
		now:       time.Now,
	}, nil
}

type retentionJob struct {
	name      string
	logg      *logger.Logger
	db        txRunner
	del       deleteBeforeFunc
	retention int
	now       func() time.Time
}

func (j *retentionJob) Name() string { return j.name }

func (j *retentionJob) cutoff() time.Time {
	return j.now().UTC().Add(-time.Duration(j.retention) * 24 * time.Hour)
}

func (j *retentionJob) Run(ctx context.Context) (int64, error) {
	cutoff := j.cutoff()
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.del(ctx, tx, cutoff)
		if err != nil {
			return err
		}
		deleted = rows
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", j.name, err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"rows_deleted":   deleted,
	})
	j.logg.Info(logCtx, "retention cleanup complete")
	return deleted, nil
}
