package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/storyblok-sync/internal/commerce"
	"github.com/angelmondragon/storyblok-sync/internal/imagediff"
	"github.com/angelmondragon/storyblok-sync/internal/stories"
	"github.com/angelmondragon/storyblok-sync/internal/storyblok"
	"github.com/angelmondragon/storyblok-sync/pkg/config"
	pkgerrors "github.com/angelmondragon/storyblok-sync/pkg/errors"
	"github.com/angelmondragon/storyblok-sync/pkg/logger"
	"github.com/angelmondragon/storyblok-sync/pkg/metrics"
	"go.uber.org/multierr"
)

type commerceAPI interface {
	GetProduct(ctx context.Context, productID string) (*commerce.Product, error)
	ListProductIDs(ctx context.Context) ([]string, error)
	ListVariants(ctx context.Context, productID string, ids []string) ([]commerce.Variant, error)
	UpdateProduct(ctx context.Context, productID string, in commerce.ProductUpdate) (*commerce.Product, error)
	UpdateVariant(ctx context.Context, productID, variantID string, in commerce.VariantUpdate) error
	BatchVariantImages(ctx context.Context, productID, variantID string, batch commerce.ImageBatch) error
	DeleteProduct(ctx context.Context, productID string) error
}

type linkResolver interface {
	ProductIDForStory(ctx context.Context, storyID int64) (string, bool, error)
	DeleteByStoryID(ctx context.Context, storyID int64) error
}

// Params wires the reconciliation workflows.
type Params struct {
	Commerce                   commerceAPI
	Stories                    stories.Service
	Links                      linkResolver
	Metrics                    *metrics.SyncMetrics
	Sync                       config.SyncConfig
	Images                     imagediff.Optimization
	DeleteProductOnStoryDelete bool
	Logger                     *logger.Logger
}

// Workflows orchestrates the story service, the image diff engine and the
// commerce catalog for lifecycle events and webhooks.
type Workflows struct {
	commerce       commerceAPI
	stories        stories.Service
	links          linkResolver
	metrics        *metrics.SyncMetrics
	mapURL         imagediff.MapFunc
	deleteProducts bool
	stepTimeout    time.Duration
	stepRetries    uint64
	backoffBase    time.Duration
	backoffCap     time.Duration
	logg           *logger.Logger
}

// BulkResult summarizes a bulk run. Err aggregates per-product failures.
type BulkResult struct {
	Total     int
	Succeeded int
	Failed    int
	Err       error
}

// New constructs the workflows.
func New(p Params) (*Workflows, error) {
	if p.Commerce == nil {
		return nil, errors.New("commerce client required")
	}
	if p.Stories == nil {
		return nil, errors.New("story service required")
	}
	if p.Logger == nil {
		return nil, errors.New("logger required")
	}
	w := &Workflows{
		commerce:       p.Commerce,
		stories:        p.Stories,
		links:          p.Links,
		metrics:        p.Metrics,
		mapURL:         p.Images.Mapper(),
		deleteProducts: p.DeleteProductOnStoryDelete,
		stepTimeout:    p.Sync.StepTimeout,
		stepRetries:    p.Sync.StepRetries,
		backoffBase:    p.Sync.BackoffBase,
		backoffCap:     p.Sync.BackoffCap,
		logg:           p.Logger,
	}
	if w.stepTimeout <= 0 {
		w.stepTimeout = defaultStepTimeout
	}
	if w.backoffBase <= 0 {
		w.backoffBase = defaultBackoffBase
	}
	if w.backoffCap <= 0 {
		w.backoffCap = defaultBackoffCap
	}
	return w, nil
}

// ProductCreated creates the product story. Redelivered events find the
// story already present and do nothing.
func (w *Workflows) ProductCreated(ctx context.Context, productID string) (err error) {
	defer w.observe("product_created", time.Now(), &err)
	ctx = w.logg.WithProductID(ctx, productID)
	product, err := w.getProduct(ctx, productID)
	if err != nil {
		return err
	}
	_, err = w.ensureStory(ctx, product)
	return err
}

// ProductUpdated carries the product handle over to its story.
func (w *Workflows) ProductUpdated(ctx context.Context, productID string) (err error) {
	defer w.observe("product_updated", time.Now(), &err)
	ctx = w.logg.WithProductID(ctx, productID)
	product, err := w.getProduct(ctx, productID)
	if err != nil {
		return err
	}
	return w.step(ctx, "update_story", func(ctx context.Context) error {
		_, err := w.stories.Update(ctx, *product)
		return err
	})
}

// ProductDeleted removes the product story and its asset folder.
func (w *Workflows) ProductDeleted(ctx context.Context, productID string) (err error) {
	defer w.observe("product_deleted", time.Now(), &err)
	ctx = w.logg.WithProductID(ctx, productID)
	return w.step(ctx, "delete_story", func(ctx context.Context) error {
		return w.stories.Delete(ctx, productID)
	})
}

// VariantsCreated appends new variant bloks. stories.ErrParentStoryMissing is
// returned untouched so the consumer can requeue.
func (w *Workflows) VariantsCreated(ctx context.Context, productID string, variantIDs []string) (err error) {
	defer w.observe("variants_created", time.Now(), &err)
	ctx = w.logg.WithFields(ctx, map[string]any{"product_id": productID, "variant_ids": variantIDs})
	var variants []commerce.Variant
	err = w.step(ctx, "list_variants", func(ctx context.Context) error {
		var err error
		variants, err = w.commerce.ListVariants(ctx, productID, variantIDs)
		return err
	})
	if err != nil {
		return err
	}
	if len(variants) == 0 {
		w.logg.Warn(ctx, "no variants found for event")
		return nil
	}
	return w.step(ctx, "create_variants", func(ctx context.Context) error {
		return w.stories.CreateVariants(ctx, productID, variants)
	})
}

// VariantDeleted drops one variant blok.
func (w *Workflows) VariantDeleted(ctx context.Context, productID, variantID string) (err error) {
	defer w.observe("variant_deleted", time.Now(), &err)
	ctx = w.logg.WithFields(ctx, map[string]any{"product_id": productID, "variant_id": variantID})
	return w.step(ctx, "delete_variant", func(ctx context.Context) error {
		return w.stories.DeleteVariant(ctx, productID, variantID)
	})
}

// SyncProduct makes sure the story exists and replaces its variants.
func (w *Workflows) SyncProduct(ctx context.Context, productID string) (story *storyblok.Story, err error) {
	defer w.observe("sync_product", time.Now(), &err)
	ctx = w.logg.WithProductID(ctx, productID)
	product, err := w.getProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	story, err = w.ensureStory(ctx, product)
	if err != nil {
		return nil, err
	}
	if err := w.syncVariants(ctx, product); err != nil {
		return nil, err
	}
	return story, nil
}

// ForceSyncProduct overwrites the story gallery and variants from commerce.
func (w *Workflows) ForceSyncProduct(ctx context.Context, productID string) (story *storyblok.Story, err error) {
	defer w.observe("force_sync_product", time.Now(), &err)
	ctx = w.logg.WithProductID(ctx, productID)
	product, err := w.getProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	err = w.step(ctx, "force_sync_story", func(ctx context.Context) error {
		var err error
		story, err = w.stories.ForceSync(ctx, *product)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := w.syncVariants(ctx, product); err != nil {
		return nil, err
	}
	return story, nil
}

// BulkSync runs SyncProduct for every requested product.
func (w *Workflows) BulkSync(ctx context.Context, all bool, productIDs []string) (BulkResult, error) {
	return w.bulk(ctx, "bulk_sync", all, productIDs, func(ctx context.Context, id string) error {
		_, err := w.SyncProduct(ctx, id)
		return err
	})
}

// BulkForceSync runs ForceSyncProduct for every requested product.
func (w *Workflows) BulkForceSync(ctx context.Context, all bool, productIDs []string) (BulkResult, error) {
	return w.bulk(ctx, "bulk_force_sync", all, productIDs, func(ctx context.Context, id string) error {
		_, err := w.ForceSyncProduct(ctx, id)
		return err
	})
}

// bulk never stops on a product failure. Only resolving the id list or a
// cancelled context fails the run.
func (w *Workflows) bulk(ctx context.Context, name string, all bool, productIDs []string, run func(context.Context, string) error) (res BulkResult, err error) {
	defer w.observe(name, time.Now(), &err)
	ids := productIDs
	if all {
		err = w.step(ctx, "list_product_ids", func(ctx context.Context) error {
			var err error
			ids, err = w.commerce.ListProductIDs(ctx)
			return err
		})
		if err != nil {
			return res, err
		}
	}
	res.Total = len(ids)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := run(ctx, id); err != nil {
			res.Failed++
			res.Err = multierr.Append(res.Err, err)
			w.logg.Error(w.logg.WithProductID(ctx, id), "bulk sync failed for product", err)
			continue
		}
		res.Succeeded++
	}
	w.logg.Info(w.logg.WithFields(ctx, map[string]any{
		"workflow":  name,
		"total":     res.Total,
		"succeeded": res.Succeeded,
		"failed":    res.Failed,
	}), "bulk sync finished")
	return res, nil
}

func (w *Workflows) getProduct(ctx context.Context, productID string) (*commerce.Product, error) {
	var product *commerce.Product
	err := w.step(ctx, "get_product", func(ctx context.Context) error {
		var err error
		product, err = w.commerce.GetProduct(ctx, productID)
		return err
	})
	return product, err
}

func (w *Workflows) ensureStory(ctx context.Context, product *commerce.Product) (*storyblok.Story, error) {
	var story *storyblok.Story
	err := w.step(ctx, "create_story", func(ctx context.Context) error {
		existing, err := w.stories.RetrieveByProductID(ctx, product.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			w.logg.Info(w.logg.WithStoryID(ctx, existing.ID), "product story already exists")
			story = existing
			return nil
		}
		story, err = w.stories.Create(ctx, *product)
		return err
	})
	return story, err
}

func (w *Workflows) syncVariants(ctx context.Context, product *commerce.Product) error {
	if len(product.Variants) == 0 {
		return nil
	}
	return w.step(ctx, "force_sync_variants", func(ctx context.Context) error {
		return w.stories.ForceSyncVariants(ctx, product.ID, product.Variants)
	})
}

func (w *Workflows) observe(workflow string, started time.Time, errp *error) {
	var err error
	if errp != nil {
		err = *errp
	}
	w.metrics.Observe(workflow, started, err)
}

func notFound(format string, args ...any) error {
	return pkgerrors.Newf(pkgerrors.CodeNotFound, format, args...)
}
