package reconcile

import (
	"context"
	"time"

	"github.com/angelmondragon/storyblok-sync/internal/commerce"
	"github.com/angelmondragon/storyblok-sync/internal/imagediff"
	"github.com/angelmondragon/storyblok-sync/internal/storyblok"
	pkgerrors "github.com/angelmondragon/storyblok-sync/pkg/errors"
)

const thumbnailAltKey = "thumbnail_alt"

// StoryPublished converges the commerce product onto a published story:
// product images, thumbnail and handle first, then variant titles and
// thumbnails, then per-variant image batches where the diff is not empty.
func (w *Workflows) StoryPublished(ctx context.Context, storyID int64) (err error) {
	defer w.observe("story_published", time.Now(), &err)
	ctx = w.logg.WithStoryID(ctx, storyID)

	var story *storyblok.Story
	err = w.step(ctx, "retrieve_story", func(ctx context.Context) error {
		var err error
		story, err = w.stories.RetrieveByStoryID(ctx, storyID)
		return err
	})
	if err != nil {
		return err
	}
	if story == nil {
		return notFound("no product story for story %d", storyID)
	}
	productID := story.Content.MedusaProductID
	if productID == "" {
		return pkgerrors.Newf(pkgerrors.CodeInvalidData, "story %d has no product id", storyID)
	}
	ctx = w.logg.WithFields(ctx, map[string]any{"product_id": productID, "slug": story.Slug})

	productGallery := imagediff.ExtractGallery(story.Content.Gallery, w.mapURL)
	variantGalleries := imagediff.VariantImages(story.Content.Variants, w.mapURL)

	product, err := w.getProduct(ctx, productID)
	if err != nil {
		return err
	}

	plan := imagediff.PlanProduct(imagediff.ProductPool(productGallery.Images, variantGalleries), currentImages(product.Images))
	updated, err := w.updateProduct(ctx, productID, story.Slug, productGallery.Thumbnail, plan)
	if err != nil {
		return err
	}

	for _, vg := range variantGalleries {
		if err := w.updateVariant(ctx, productID, vg); err != nil {
			return err
		}
	}

	urlToID := imagediff.URLToID(currentImages(updated.Images))
	batches := 0
	for _, vg := range variantGalleries {
		current := variantImageIDs(updated.Variants, vg.VariantID)
		diff := imagediff.Diff(vg.URLs(), urlToID, current)
		if diff.Empty() {
			continue
		}
		batch := commerce.ImageBatch{Add: diff.Add, Remove: diff.Remove}
		err := w.step(ctx, "batch_variant_images", func(ctx context.Context) error {
			return w.commerce.BatchVariantImages(ctx, productID, vg.VariantID, batch)
		})
		if err != nil {
			return err
		}
		batches++
	}

	w.logg.Info(w.logg.WithFields(ctx, map[string]any{
		"images_kept":     len(plan.Keep),
		"images_added":    len(plan.New),
		"images_removed":  len(plan.Remove),
		"variant_batches": batches,
	}), "product updated from story")
	return nil
}

// StoryDeleted deletes the commerce product behind a deleted story when
// enabled. The link table is authoritative, the CMS lookup is the fallback.
func (w *Workflows) StoryDeleted(ctx context.Context, storyID int64) (err error) {
	defer w.observe("story_deleted", time.Now(), &err)
	ctx = w.logg.WithStoryID(ctx, storyID)
	if !w.deleteProducts {
		w.logg.Info(ctx, "product deletion on story delete disabled")
		return nil
	}

	productID, err := w.resolveProductID(ctx, storyID)
	if err != nil {
		return err
	}
	if productID == "" {
		w.logg.Warn(ctx, "no product linked to deleted story")
		return nil
	}
	ctx = w.logg.WithProductID(ctx, productID)

	err = w.step(ctx, "delete_product", func(ctx context.Context) error {
		return w.commerce.DeleteProduct(ctx, productID)
	})
	if err != nil {
		if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return err
		}
		w.logg.Warn(ctx, "product already gone")
	}
	if w.links != nil {
		if err := w.links.DeleteByStoryID(ctx, storyID); err != nil {
			w.logg.Error(ctx, "failed to drop product story link", err)
		}
	}
	w.logg.Info(ctx, "product deleted after story deletion")
	return nil
}

func (w *Workflows) resolveProductID(ctx context.Context, storyID int64) (string, error) {
	if w.links != nil {
		id, ok, err := w.links.ProductIDForStory(ctx, storyID)
		if err != nil {
			w.logg.Error(ctx, "link lookup failed, falling back to story lookup", err)
		} else if ok {
			return id, nil
		}
	}
	story, err := w.stories.RetrieveByStoryID(ctx, storyID)
	if err != nil {
		w.logg.Error(ctx, "story lookup failed", err)
		return "", nil
	}
	if story == nil {
		return "", nil
	}
	return story.Content.MedusaProductID, nil
}

// updateProduct writes handle, thumbnail and the converged image set, then
// re-issues the write without the remove set if stale images survived it.
func (w *Workflows) updateProduct(ctx context.Context, productID, slug string, thumb *imagediff.Image, plan imagediff.ProductPlan) (*commerce.Product, error) {
	images := make([]commerce.ImageInput, 0, len(plan.Keep)+len(plan.New))
	for _, id := range plan.Keep {
		images = append(images, commerce.ImageInput{ID: id})
	}
	for _, img := range plan.New {
		images = append(images, commerce.ImageInput{URL: img.URL, Metadata: map[string]any{"alt": img.Alt}})
	}
	in := commerce.ProductUpdate{Handle: slug, Images: images}
	if thumb != nil {
		url := thumb.URL
		in.Thumbnail = &url
		in.Metadata = map[string]any{thumbnailAltKey: thumb.Alt}
	}

	var updated *commerce.Product
	err := w.step(ctx, "update_product", func(ctx context.Context) error {
		var err error
		updated, err = w.commerce.UpdateProduct(ctx, productID, in)
		return err
	})
	if err != nil {
		return nil, err
	}

	stale := staleImages(updated.Images, plan.Remove)
	if len(stale) == 0 {
		return updated, nil
	}
	w.logg.Warn(w.logg.WithField(ctx, "stale_images", stale), "removed images survived update, re-issuing")
	retain := make([]commerce.ImageInput, 0, len(updated.Images))
	drop := make(map[string]struct{}, len(stale))
	for _, id := range stale {
		drop[id] = struct{}{}
	}
	for _, img := range updated.Images {
		if _, ok := drop[img.ID]; !ok {
			retain = append(retain, commerce.ImageInput{ID: img.ID})
		}
	}
	err = w.step(ctx, "remove_stale_images", func(ctx context.Context) error {
		var err error
		updated, err = w.commerce.UpdateProduct(ctx, productID, commerce.ProductUpdate{Images: retain})
		return err
	})
	return updated, err
}

func (w *Workflows) updateVariant(ctx context.Context, productID string, vg imagediff.VariantGallery) error {
	in := commerce.VariantUpdate{Title: vg.Title}
	if vg.Thumbnail != nil {
		url := vg.Thumbnail.URL
		in.Thumbnail = &url
		if vg.Thumbnail.Alt != "" {
			in.Metadata = map[string]any{thumbnailAltKey: vg.Thumbnail.Alt}
		}
	}
	return w.step(ctx, "update_variant", func(ctx context.Context) error {
		return w.commerce.UpdateVariant(ctx, productID, vg.VariantID, in)
	})
}

func currentImages(images []commerce.Image) []imagediff.CurrentImage {
	out := make([]imagediff.CurrentImage, 0, len(images))
	for _, img := range images {
		out = append(out, imagediff.CurrentImage{ID: img.ID, URL: img.URL})
	}
	return out
}

func variantImageIDs(variants []commerce.Variant, variantID string) []string {
	for _, v := range variants {
		if v.ID == variantID {
			return v.ImageIDs()
		}
	}
	return nil
}

func staleImages(images []commerce.Image, remove []string) []string {
	if len(remove) == 0 {
		return nil
	}
	present := make(map[string]struct{}, len(images))
	for _, img := range images {
		present[img.ID] = struct{}{}
	}
	var out []string
	for _, id := range remove {
		if _, ok := present[id]; ok {
			out = append(out, id)
		}
	}
	return out
}
