package reconcile

import (
	"context"
	"fmt"
	"path"
	"sync"

	"github.com/angelmondragon/storyblok-sync/internal/commerce"
	"github.com/angelmondragon/storyblok-sync/internal/stories"
	"github.com/angelmondragon/storyblok-sync/internal/storyblok"
	pkgerrors "github.com/angelmondragon/storyblok-sync/pkg/errors"
)

type batchCall struct {
	variantID string
	batch     commerce.ImageBatch
}

type fakeCommerce struct {
	mu             sync.Mutex
	products       map[string]*commerce.Product
	updates        []commerce.ProductUpdate
	variantUpdates map[string]commerce.VariantUpdate
	batches        []batchCall
	deleted        []string
	getCalls       int
	ignoreRemovals bool
}

func newFakeCommerce(products ...commerce.Product) *fakeCommerce {
	f := &fakeCommerce{products: map[string]*commerce.Product{}, variantUpdates: map[string]commerce.VariantUpdate{}}
	for i := range products {
		p := products[i]
		f.products[p.ID] = &p
	}
	return f
}

func (f *fakeCommerce) GetProduct(_ context.Context, productID string) (*commerce.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	p, ok := f.products[productID]
	if !ok {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "product %s not found", productID)
	}
	cp := *p
	return &cp, nil
}

func (f *fakeCommerce) ListProductIDs(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.products))
	for id := range f.products {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeCommerce) ListVariants(_ context.Context, productID string, ids []string) ([]commerce.Variant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[productID]
	if !ok {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "product %s not found", productID)
	}
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []commerce.Variant
	for _, v := range p.Variants {
		if len(ids) == 0 || want[v.ID] {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeCommerce) UpdateProduct(_ context.Context, productID string, in commerce.ProductUpdate) (*commerce.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, in)
	p := f.products[productID]
	byID := map[string]commerce.Image{}
	for _, img := range p.Images {
		byID[img.ID] = img
	}
	var images []commerce.Image
	for _, in := range in.Images {
		if in.ID != "" {
			images = append(images, byID[in.ID])
			continue
		}
		images = append(images, commerce.Image{ID: "img_" + path.Base(in.URL), URL: in.URL})
	}
	if f.ignoreRemovals {
		for _, img := range p.Images {
			found := false
			for _, kept := range images {
				if kept.ID == img.ID {
					found = true
				}
			}
			if !found {
				images = append(images, img)
			}
		}
		f.ignoreRemovals = false
	}
	p.Images = images
	if in.Handle != "" {
		p.Handle = in.Handle
	}
	cp := *p
	return &cp, nil
}

func (f *fakeCommerce) UpdateVariant(_ context.Context, _ string, variantID string, in commerce.VariantUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.variantUpdates[variantID] = in
	return nil
}

func (f *fakeCommerce) BatchVariantImages(_ context.Context, _ string, variantID string, batch commerce.ImageBatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, batchCall{variantID: variantID, batch: batch})
	return nil
}

func (f *fakeCommerce) DeleteProduct(_ context.Context, productID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.products[productID]; !ok {
		return pkgerrors.Newf(pkgerrors.CodeNotFound, "product %s not found", productID)
	}
	delete(f.products, productID)
	f.deleted = append(f.deleted, productID)
	return nil
}

type fakeStories struct {
	mu          sync.Mutex
	byProduct   map[string]*storyblok.Story
	createErr   map[string]error
	createCalls map[string]int
	forced      map[string][]commerce.Variant
	nextID      int64
}

func newFakeStories() *fakeStories {
	return &fakeStories{
		byProduct:   map[string]*storyblok.Story{},
		createErr:   map[string]error{},
		createCalls: map[string]int{},
		forced:      map[string][]commerce.Variant{},
		nextID:      500,
	}
}

var _ stories.Service = (*fakeStories)(nil)

func (f *fakeStories) Create(_ context.Context, p commerce.Product) (*storyblok.Story, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls[p.ID]++
	if err := f.createErr[p.ID]; err != nil {
		return nil, err
	}
	f.nextID++
	s := &storyblok.Story{ID: f.nextID, Slug: p.Handle, Content: storyblok.ProductContent{MedusaProductID: p.ID}}
	f.byProduct[p.ID] = s
	return s, nil
}

func (f *fakeStories) Update(_ context.Context, p commerce.Product) (*storyblok.Story, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byProduct[p.ID]
	if !ok {
		return nil, nil
	}
	s.Slug = p.Handle
	return s, nil
}

func (f *fakeStories) Delete(_ context.Context, productID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byProduct, productID)
	return nil
}

func (f *fakeStories) ForceSync(_ context.Context, p commerce.Product) (*storyblok.Story, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byProduct[p.ID]
	if !ok {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "story not found for product %s", p.ID)
	}
	return s, nil
}

func (f *fakeStories) CreateVariants(_ context.Context, productID string, variants []commerce.Variant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byProduct[productID]
	if !ok {
		return stories.ErrParentStoryMissing
	}
	for _, v := range variants {
		s.Content.Variants = append(s.Content.Variants, storyblok.VariantBlok{MedusaProductVariantID: v.ID, Title: v.Title})
	}
	return nil
}

func (f *fakeStories) ForceSyncVariants(_ context.Context, productID string, variants []commerce.Variant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byProduct[productID]; !ok {
		return pkgerrors.Newf(pkgerrors.CodeNotFound, "story not found for product %s", productID)
	}
	f.forced[productID] = variants
	return nil
}

func (f *fakeStories) DeleteVariant(context.Context, string, string) error { return nil }

func (f *fakeStories) RetrieveByProductID(_ context.Context, productID string) (*storyblok.Story, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.byProduct[productID]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeStories) RetrieveByStoryID(_ context.Context, storyID int64) (*storyblok.Story, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.byProduct {
		if s.ID == storyID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStories) ListByProductIDs(context.Context, []string) ([]storyblok.Story, error) {
	return nil, nil
}

func (f *fakeStories) EditorURL(storyID int64) string {
	return fmt.Sprintf("editor/%d", storyID)
}

type fakeLinks struct {
	byStory map[int64]string
	dropped []int64
}

func (f *fakeLinks) ProductIDForStory(_ context.Context, storyID int64) (string, bool, error) {
	id, ok := f.byStory[storyID]
	return id, ok, nil
}

func (f *fakeLinks) DeleteByStoryID(_ context.Context, storyID int64) error {
	f.dropped = append(f.dropped, storyID)
	return nil
}
