package stories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/angelmondragon/storyblok-sync/internal/commerce"
	"github.com/angelmondragon/storyblok-sync/internal/links"
	"github.com/angelmondragon/storyblok-sync/internal/storyblok"
	pkgerrors "github.com/angelmondragon/storyblok-sync/pkg/errors"
	"github.com/angelmondragon/storyblok-sync/pkg/logger"
)

type fakeStoryAPI struct {
	mu       sync.Mutex
	nextID   int64
	stories  map[int64]storyblok.Story
	creates  int
	updates  int
	deletes  []int64
	listErr  error
	writeErr error
	queries  []storyblok.StoryQuery
}

func newFakeStoryAPI() *fakeStoryAPI {
	return &fakeStoryAPI{nextID: 100, stories: map[int64]storyblok.Story{}}
}

func (f *fakeStoryAPI) CreateStory(_ context.Context, story storyblok.Story) (*storyblok.Story, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	f.creates++
	f.nextID++
	story.ID = f.nextID
	f.stories[story.ID] = story
	return &story, nil
}

func (f *fakeStoryAPI) UpdateStory(_ context.Context, story storyblok.Story) (*storyblok.Story, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	f.updates++
	f.stories[story.ID] = story
	return &story, nil
}

func (f *fakeStoryAPI) DeleteStory(_ context.Context, storyID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, storyID)
	delete(f.stories, storyID)
	return nil
}

func (f *fakeStoryAPI) ListStories(_ context.Context, q storyblok.StoryQuery) ([]storyblok.Story, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []storyblok.Story
	for _, s := range f.stories {
		switch {
		case q.ProductIDLike != "" && s.Content.MedusaProductID == q.ProductIDLike:
			out = append(out, s)
		case len(q.ByIDs) > 0 && s.ID == q.ByIDs[0]:
			out = append(out, s)
		case len(q.ProductIDsIn) > 0:
			for _, id := range q.ProductIDsIn {
				if s.Content.MedusaProductID == id {
					out = append(out, s)
				}
			}
		}
	}
	limit := q.PerPage
	if limit <= 0 || limit > storyblok.MaxPerPage {
		limit = storyblok.MaxPerPage
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeFolders struct {
	deleted []string
	err     error
}

func (f *fakeFolders) DeleteFolder(_ context.Context, slug string) error {
	f.deleted = append(f.deleted, slug)
	return f.err
}

type fakeGallery struct {
	calls int
	err   error
}

func (f *fakeGallery) Build(_ context.Context, slug, thumbnailURL string, images []string, altText string) ([]storyblok.GalleryImage, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := []storyblok.GalleryImage{}
	if thumbnailURL != "" {
		out = append(out, storyblok.GalleryImage{Component: storyblok.ComponentGalleryImage, Image: storyblok.AssetRef{Filename: slug + "/" + thumbnailURL, Alt: altText}, IsThumbnail: true})
	}
	for _, u := range images {
		out = append(out, storyblok.GalleryImage{Component: storyblok.ComponentGalleryImage, Image: storyblok.AssetRef{Filename: slug + "/" + u, Alt: altText}})
	}
	return out, nil
}

type fakeLinks struct {
	recorded map[string]int64
	dropped  []string
}

func (f *fakeLinks) Record(_ context.Context, productID string, storyID int64, _ string, _ links.Snapshot) error {
	if f.recorded == nil {
		f.recorded = map[string]int64{}
	}
	f.recorded[productID] = storyID
	return nil
}

func (f *fakeLinks) DeleteByProductID(_ context.Context, productID string) error {
	f.dropped = append(f.dropped, productID)
	return nil
}

type fixture struct {
	api     *fakeStoryAPI
	folders *fakeFolders
	gallery *fakeGallery
	links   *fakeLinks
	svc     Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{api: newFakeStoryAPI(), folders: &fakeFolders{}, gallery: &fakeGallery{}, links: &fakeLinks{}}
	svc, err := NewService(ServiceParams{
		API:            f.api,
		Folders:        f.folders,
		Gallery:        f.gallery,
		Links:          f.links,
		SpaceID:        42,
		ParentFolderID: 7,
		Logger:         logger.Nop(),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	f.svc = svc
	return f
}

func TestCreateWithoutImages(t *testing.T) {
	f := newFixture(t)
	story, err := f.svc.Create(context.Background(), commerce.Product{ID: "p1", Title: "Shoe", Handle: "shoe"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if story.Slug != "shoe" || story.Name != "Shoe" || story.ParentID != 7 {
		t.Fatalf("unexpected story %+v", story)
	}
	if story.Content.Gallery != nil {
		t.Fatalf("gallery should be omitted, got %v", story.Content.Gallery)
	}
	if f.links.recorded["p1"] != story.ID {
		t.Fatalf("link not recorded: %v", f.links.recorded)
	}
}

func TestCreateWithImages(t *testing.T) {
	f := newFixture(t)
	story, err := f.svc.Create(context.Background(), commerce.Product{
		ID: "p1", Title: "Shoe", Handle: "shoe", Thumbnail: "t.jpg",
		Images: []commerce.Image{{ID: "i1", URL: "a.jpg"}, {ID: "i2", URL: "b.jpg"}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	g := story.Content.Gallery
	if len(g) != 3 || !g[0].IsThumbnail || g[1].IsThumbnail || g[2].Image.Filename != "shoe/b.jpg" {
		t.Fatalf("unexpected gallery %+v", g)
	}
}

func TestCreateFailureIsUnexpectedState(t *testing.T) {
	f := newFixture(t)
	f.api.writeErr = errors.New("boom")
	_, err := f.svc.Create(context.Background(), commerce.Product{ID: "p1", Handle: "shoe"})
	if pkgerrors.CodeOf(err) != pkgerrors.CodeUnexpectedState {
		t.Fatalf("expected unexpected state, got %v", err)
	}
}

func TestUpdateOnlyCarriesSlugAndNeverCreates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	got, err := f.svc.Update(ctx, commerce.Product{ID: "p1", Handle: "shoe"})
	if err != nil || got != nil || f.api.creates != 0 {
		t.Fatalf("update of untracked product must be a no-op, got %v %v", got, err)
	}

	f.api.stories[5] = storyblok.Story{ID: 5, Name: "Shoe", Slug: "shoe", Content: storyblok.ProductContent{
		MedusaProductID: "p1",
		Title:           "CMS title",
		Extra:           map[string]json.RawMessage{"seo": json.RawMessage(`{"title":"x"}`)},
	}}
	updated, err := f.svc.Update(ctx, commerce.Product{ID: "p1", Title: "New", Handle: "shoe-2"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Slug != "shoe-2" || updated.Content.Title != "CMS title" {
		t.Fatalf("unexpected update %+v", updated)
	}
	if _, ok := updated.Content.Extra["seo"]; !ok {
		t.Fatalf("authored content lost")
	}
	last := f.api.queries[len(f.api.queries)-1]
	if last.Version != "draft" {
		t.Fatalf("update should read the draft version, got %q", last.Version)
	}
}

func TestDeleteAbsentIsNoop(t *testing.T) {
	f := newFixture(t)
	if err := f.svc.Delete(context.Background(), "p1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(f.folders.deleted) != 0 || len(f.api.deletes) != 0 {
		t.Fatalf("nothing should be deleted")
	}
}

func TestDeleteSwallowsFolderFailure(t *testing.T) {
	f := newFixture(t)
	f.api.stories[5] = storyblok.Story{ID: 5, Slug: "shoe", Content: storyblok.ProductContent{MedusaProductID: "p1"}}
	f.folders.err = errors.New("folder busy")

	if err := f.svc.Delete(context.Background(), "p1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(f.api.deletes) != 1 || f.folders.deleted[0] != "shoe" {
		t.Fatalf("story and folder deletion expected")
	}
	if len(f.links.dropped) != 1 {
		t.Fatalf("link should be dropped")
	}
}

func TestForceSyncUntrackedIsNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ForceSync(context.Background(), commerce.Product{ID: "ghost", Handle: "ghost", Thumbnail: "t.jpg"})
	if pkgerrors.CodeOf(err) != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if f.api.updates != 0 || f.gallery.calls != 0 {
		t.Fatalf("no partial write expected")
	}
}

func TestForceSyncReplacesGallery(t *testing.T) {
	f := newFixture(t)
	f.api.stories[5] = storyblok.Story{ID: 5, Slug: "shoe", Content: storyblok.ProductContent{
		MedusaProductID: "p1",
		Gallery:         []storyblok.GalleryImage{{Image: storyblok.AssetRef{Filename: "stale.jpg"}}},
		Variants:        []storyblok.VariantBlok{{MedusaProductVariantID: "v1"}},
	}}
	updated, err := f.svc.ForceSync(context.Background(), commerce.Product{ID: "p1", Title: "Shoe", Handle: "shoe"})
	if err != nil {
		t.Fatalf("force sync: %v", err)
	}
	if updated.Content.Gallery == nil || len(updated.Content.Gallery) != 0 {
		t.Fatalf("gallery should be replaced with an empty one, got %v", updated.Content.Gallery)
	}
	if len(updated.Content.Variants) != 1 || updated.Content.Title != "Shoe" {
		t.Fatalf("unexpected content %+v", updated.Content)
	}
}

func TestCreateVariantsRequiresParent(t *testing.T) {
	f := newFixture(t)
	err := f.svc.CreateVariants(context.Background(), "p1", []commerce.Variant{{ID: "v1"}})
	if !errors.Is(err, ErrParentStoryMissing) {
		t.Fatalf("expected parent missing, got %v", err)
	}
}

func TestVariantLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.api.stories[5] = storyblok.Story{ID: 5, Slug: "shoe", Content: storyblok.ProductContent{
		MedusaProductID: "p1",
		Variants:        []storyblok.VariantBlok{{MedusaProductVariantID: "v0", Title: "Old"}},
	}}

	if err := f.svc.CreateVariants(ctx, "p1", []commerce.Variant{{ID: "v1", Thumbnail: "vt.jpg"}}); err != nil {
		t.Fatalf("create variants: %v", err)
	}
	variants := f.api.stories[5].Content.Variants
	if len(variants) != 2 || variants[1].Title != storyblok.DefaultVariantTitle || len(variants[1].Gallery) != 1 {
		t.Fatalf("unexpected variants %+v", variants)
	}
	if variants[1].Gallery[0].Image.Filename != "shoe/vt.jpg" {
		t.Fatalf("variant images belong to the product folder, got %s", variants[1].Gallery[0].Image.Filename)
	}

	if err := f.svc.DeleteVariant(ctx, "p1", "v0"); err != nil {
		t.Fatalf("delete variant: %v", err)
	}
	if got := f.api.stories[5].Content.Variants; len(got) != 1 || got[0].MedusaProductVariantID != "v1" {
		t.Fatalf("unexpected variants after delete %+v", got)
	}

	updates := f.api.updates
	if err := f.svc.DeleteVariant(ctx, "p1", "missing"); err != nil {
		t.Fatalf("delete missing variant: %v", err)
	}
	if f.api.updates != updates {
		t.Fatalf("absent variant must not trigger a write")
	}

	if err := f.svc.ForceSyncVariants(ctx, "p1", []commerce.Variant{{ID: "v2", Title: "Large"}, {ID: "v3", Title: "Small"}}); err != nil {
		t.Fatalf("force sync variants: %v", err)
	}
	got := f.api.stories[5].Content.Variants
	if len(got) != 2 || got[0].MedusaProductVariantID != "v2" || got[1].Title != "Small" {
		t.Fatalf("variants should be replaced, got %+v", got)
	}
}

func TestForceSyncVariantsKeepsAuthoredVariantKeys(t *testing.T) {
	f := newFixture(t)
	f.api.stories[5] = storyblok.Story{ID: 5, Slug: "shoe", Content: storyblok.ProductContent{
		MedusaProductID: "p1",
		Variants: []storyblok.VariantBlok{{
			UID:                    "u2",
			MedusaProductVariantID: "v2",
			Title:                  "Old",
			Extra:                  map[string]json.RawMessage{"badge": json.RawMessage(`"new"`)},
		}},
	}}

	if err := f.svc.ForceSyncVariants(context.Background(), "p1", []commerce.Variant{{ID: "v2", Title: "Large"}, {ID: "v3"}}); err != nil {
		t.Fatalf("force sync variants: %v", err)
	}
	got := f.api.stories[5].Content.Variants
	if len(got) != 2 || got[0].Title != "Large" || got[0].UID != "u2" || string(got[0].Extra["badge"]) != `"new"` {
		t.Fatalf("existing variant should keep uid and authored keys, got %+v", got)
	}
	if got[1].UID != "" || got[1].Extra != nil {
		t.Fatalf("new variant should start clean, got %+v", got[1])
	}
}

func TestRetrieveDistinguishesAbsenceFromFailure(t *testing.T) {
	f := newFixture(t)
	story, err := f.svc.RetrieveByStoryID(context.Background(), 999)
	if err != nil || story != nil {
		t.Fatalf("absent story should be nil, nil; got %v %v", story, err)
	}

	f.api.listErr = pkgerrors.New(pkgerrors.CodeUnexpectedState, "cdn down")
	_, err = f.svc.RetrieveByProductID(context.Background(), "p1")
	if pkgerrors.CodeOf(err) != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if !pkgerrors.IsCode(err, pkgerrors.CodeUnexpectedState) {
		t.Fatalf("transport failure should stay in the chain")
	}
}

func TestListAndEditorURL(t *testing.T) {
	f := newFixture(t)
	f.api.stories[5] = storyblok.Story{ID: 5, Content: storyblok.ProductContent{MedusaProductID: "p1"}}
	list, err := f.svc.ListByProductIDs(context.Background(), []string{"p1", "p2"})
	if err != nil || len(list) != 1 {
		t.Fatalf("unexpected list %v %v", list, err)
	}
	if got := f.svc.EditorURL(5); got != "https://app.storyblok.com/#/me/spaces/42/stories/0/0/5" {
		t.Fatalf("unexpected editor url %s", got)
	}
}

func TestListByProductIDsBatchesPastPageLimit(t *testing.T) {
	f := newFixture(t)
	ids := make([]string, 0, 230)
	for i := range 230 {
		id := fmt.Sprintf("p%d", i)
		ids = append(ids, id)
		f.api.stories[int64(i+1)] = storyblok.Story{ID: int64(i + 1), Content: storyblok.ProductContent{MedusaProductID: id}}
	}

	list, err := f.svc.ListByProductIDs(context.Background(), ids)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != len(ids) {
		t.Fatalf("expected %d stories, got %d", len(ids), len(list))
	}
	var sizes []int
	for _, q := range f.api.queries {
		sizes = append(sizes, len(q.ProductIDsIn))
		if q.PerPage != len(q.ProductIDsIn) {
			t.Fatalf("per_page %d does not match batch of %d", q.PerPage, len(q.ProductIDsIn))
		}
	}
	if fmt.Sprint(sizes) != "[100 100 30]" {
		t.Fatalf("unexpected batches %v", sizes)
	}
}

func TestSnapshot(t *testing.T) {
	snap := Snapshot(storyblok.ProductContent{
		Gallery: []storyblok.GalleryImage{
			{Image: storyblok.AssetRef{Filename: "t.jpg"}, IsThumbnail: true},
			{Image: storyblok.AssetRef{Filename: "a.jpg"}},
		},
		Variants: []storyblok.VariantBlok{{MedusaProductVariantID: "v1"}},
	})
	if snap.ThumbnailURL != "t.jpg" || len(snap.ImageURLs) != 1 || snap.VariantIDs[0] != "v1" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}
