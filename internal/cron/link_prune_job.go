package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storyblok-sync/pkg/logger"
)

type catalogIDs interface {
	ListProductIDs(ctx context.Context) ([]string, error)
}

type linkStore interface {
	ListProductIDs(ctx context.Context) ([]string, error)
	DeleteByProductIDs(ctx context.Context, productIDs []string) (int64, error)
}

// LinkPruneJobParams configure the orphaned link job.
type LinkPruneJobParams struct {
	Logger  *logger.Logger
	Catalog catalogIDs
	Links   linkStore
}

// NewLinkPruneJob drops product to story links whose product no longer
// exists in the commerce catalog. Stories are left in place.
func NewLinkPruneJob(params LinkPruneJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog required")
	}
	if params.Links == nil {
		return nil, fmt.Errorf("link store required")
	}
	return &linkPruneJob{logg: params.Logger, catalog: params.Catalog, links: params.Links}, nil
}

type linkPruneJob struct {
	logg    *logger.Logger
	catalog catalogIDs
	links   linkStore
}

func (j *linkPruneJob) Name() string { return "link-prune" }

func (j *linkPruneJob) Run(ctx context.Context) (int64, error) {
	linked, err := j.links.ListProductIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list links: %w", err)
	}
	if len(linked) == 0 {
		return 0, nil
	}
	products, err := j.catalog.ListProductIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list catalog: %w", err)
	}
	// An empty catalog is treated as a bad read, never as "delete everything".
	if len(products) == 0 {
		j.logg.Warn(ctx, "catalog returned no products; skipping link prune")
		return 0, nil
	}
	live := make(map[string]struct{}, len(products))
	for _, id := range products {
		live[id] = struct{}{}
	}
	var orphaned []string
	for _, id := range linked {
		if _, ok := live[id]; !ok {
			orphaned = append(orphaned, id)
		}
	}
	if len(orphaned) == 0 {
		return 0, nil
	}
	deleted, err := j.links.DeleteByProductIDs(ctx, orphaned)
	if err != nil {
		return 0, fmt.Errorf("delete links: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"linked":       len(linked),
		"orphaned":     len(orphaned),
		"rows_deleted": deleted,
	}), "orphaned links pruned")
	return deleted, nil
}
