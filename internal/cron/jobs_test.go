package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/storyblok-sync/pkg/logger"
	"gorm.io/gorm"
)

type fakeDeleter struct {
	cutoff time.Time
	called int
	rows   int64
	err    error
}

func (f *fakeDeleter) DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	return f.record(cutoff)
}

func (f *fakeDeleter) DeleteFailedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	return f.record(cutoff)
}

func (f *fakeDeleter) record(cutoff time.Time) (int64, error) {
	f.called++
	f.cutoff = cutoff
	return f.rows, f.err
}

type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func TestOutboxRetentionJobUsesDefaultWindow(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	repo := &fakeDeleter{rows: 7}
	iface, err := NewOutboxRetentionJob(RetentionJobParams{Logger: logger.Nop(), DB: passthroughTx{}}, repo)
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	job := iface.(*retentionJob)
	job.now = func() time.Time { return now }

	deleted, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if deleted != 7 {
		t.Fatalf("expected 7 rows deleted, got %d", deleted)
	}
	expected := now.Add(-outboxRetentionDays * 24 * time.Hour)
	if !repo.cutoff.Equal(expected) {
		t.Fatalf("expected cutoff %s, got %s", expected, repo.cutoff)
	}
	if job.Name() != "outbox-retention" {
		t.Fatalf("unexpected name %q", job.Name())
	}
}

func TestDLQRetentionJobHonorsConfiguredWindow(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	repo := &fakeDeleter{}
	iface, err := NewDLQRetentionJob(RetentionJobParams{Logger: logger.Nop(), DB: passthroughTx{}, RetentionDays: 7}, repo)
	if err != nil {
		t.Fatalf("NewDLQRetentionJob: %v", err)
	}
	job := iface.(*retentionJob)
	job.now = func() time.Time { return now }
	if _, err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !repo.cutoff.Equal(now.Add(-7 * 24 * time.Hour)) {
		t.Fatalf("unexpected cutoff %s", repo.cutoff)
	}
}

func TestRetentionJobPropagatesError(t *testing.T) {
	job, err := NewOutboxRetentionJob(RetentionJobParams{Logger: logger.Nop(), DB: passthroughTx{}}, &fakeDeleter{err: errors.New("boom")})
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	if _, err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestRetentionJobRequiresDependencies(t *testing.T) {
	if _, err := NewOutboxRetentionJob(RetentionJobParams{Logger: logger.Nop(), DB: passthroughTx{}}, nil); err == nil {
		t.Fatal("expected error for missing repo")
	}
	if _, err := NewDLQRetentionJob(RetentionJobParams{Logger: logger.Nop()}, &fakeDeleter{}); err == nil {
		t.Fatal("expected error for missing db")
	}
}

type fakeCatalog struct {
	ids []string
	err error
}

func (f fakeCatalog) ListProductIDs(context.Context) ([]string, error) { return f.ids, f.err }

type fakeLinks struct {
	ids     []string
	deleted []string
}

func (f *fakeLinks) ListProductIDs(context.Context) ([]string, error) { return f.ids, nil }

func (f *fakeLinks) DeleteByProductIDs(ctx context.Context, ids []string) (int64, error) {
	f.deleted = append(f.deleted, ids...)
	return int64(len(ids)), nil
}

func TestLinkPruneJobDeletesOrphans(t *testing.T) {
	links := &fakeLinks{ids: []string{"prod_a", "prod_b", "prod_c"}}
	job, err := NewLinkPruneJob(LinkPruneJobParams{
		Logger:  logger.Nop(),
		Catalog: fakeCatalog{ids: []string{"prod_b", "prod_z"}},
		Links:   links,
	})
	if err != nil {
		t.Fatalf("NewLinkPruneJob: %v", err)
	}
	deleted, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted, got %d", deleted)
	}
	if len(links.deleted) != 2 || links.deleted[0] != "prod_a" || links.deleted[1] != "prod_c" {
		t.Fatalf("unexpected deletions %v", links.deleted)
	}
}

func TestLinkPruneJobSkipsEmptyCatalog(t *testing.T) {
	links := &fakeLinks{ids: []string{"prod_a"}}
	job, _ := NewLinkPruneJob(LinkPruneJobParams{Logger: logger.Nop(), Catalog: fakeCatalog{}, Links: links})
	deleted, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if deleted != 0 || len(links.deleted) != 0 {
		t.Fatalf("expected no deletions, got %v", links.deleted)
	}
}

func TestLinkPruneJobPropagatesCatalogError(t *testing.T) {
	links := &fakeLinks{ids: []string{"prod_a"}}
	job, _ := NewLinkPruneJob(LinkPruneJobParams{Logger: logger.Nop(), Catalog: fakeCatalog{err: errors.New("down")}, Links: links})
	if _, err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
