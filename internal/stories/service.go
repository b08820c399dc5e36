package stories

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/angelmondragon/storyblok-sync/internal/commerce"
	"github.com/angelmondragon/storyblok-sync/internal/links"
	"github.com/angelmondragon/storyblok-sync/internal/storyblok"
	pkgerrors "github.com/angelmondragon/storyblok-sync/pkg/errors"
	"github.com/angelmondragon/storyblok-sync/pkg/logger"
)

const editorURLFormat = "https://app.storyblok.com/#/me/spaces/%d/stories/0/0/%d"

// ErrParentStoryMissing is returned when variants arrive before the product
// story exists. Callers may requeue.
var ErrParentStoryMissing = pkgerrors.New(pkgerrors.CodeNotFound, "parent product story not found")

// Service owns the product story of every synced product.
type Service interface {
	Create(ctx context.Context, product commerce.Product) (*storyblok.Story, error)
	Update(ctx context.Context, product commerce.Product) (*storyblok.Story, error)
	Delete(ctx context.Context, productID string) error
	ForceSync(ctx context.Context, product commerce.Product) (*storyblok.Story, error)
	CreateVariants(ctx context.Context, productID string, variants []commerce.Variant) error
	ForceSyncVariants(ctx context.Context, productID string, variants []commerce.Variant) error
	DeleteVariant(ctx context.Context, productID, variantID string) error
	RetrieveByProductID(ctx context.Context, productID string) (*storyblok.Story, error)
	RetrieveByStoryID(ctx context.Context, storyID int64) (*storyblok.Story, error)
	ListByProductIDs(ctx context.Context, productIDs []string) ([]storyblok.Story, error)
	EditorURL(storyID int64) string
}

type storyAPI interface {
	CreateStory(ctx context.Context, story storyblok.Story) (*storyblok.Story, error)
	UpdateStory(ctx context.Context, story storyblok.Story) (*storyblok.Story, error)
	DeleteStory(ctx context.Context, storyID int64) error
	ListStories(ctx context.Context, q storyblok.StoryQuery) ([]storyblok.Story, error)
}

type folderRemover interface {
	DeleteFolder(ctx context.Context, slug string) error
}

type galleryBuilder interface {
	Build(ctx context.Context, slug, thumbnailURL string, images []string, altText string) ([]storyblok.GalleryImage, error)
}

// LinkRecorder persists product to story links. *links.Repository satisfies it.
type LinkRecorder interface {
	Record(ctx context.Context, productID string, storyID int64, slug string, snap links.Snapshot) error
	DeleteByProductID(ctx context.Context, productID string) error
}

// ServiceParams wires the story service.
type ServiceParams struct {
	API            storyAPI
	Folders        folderRemover
	Gallery        galleryBuilder
	Links          LinkRecorder
	SpaceID        int64
	ParentFolderID int64
	Logger         *logger.Logger
}

type service struct {
	api      storyAPI
	folders  folderRemover
	gallery  galleryBuilder
	links    LinkRecorder
	spaceID  int64
	parentID int64
	logg     *logger.Logger
}

// NewService constructs the story service.
func NewService(p ServiceParams) (Service, error) {
	if p.API == nil {
		return nil, errors.New("storyblok api required")
	}
	if p.Folders == nil {
		return nil, errors.New("asset folders required")
	}
	if p.Gallery == nil {
		return nil, errors.New("gallery builder required")
	}
	if p.ParentFolderID <= 0 {
		return nil, errors.New("products folder id required")
	}
	if p.Logger == nil {
		return nil, errors.New("logger required")
	}
	return &service{
		api:      p.API,
		folders:  p.Folders,
		gallery:  p.Gallery,
		links:    p.Links,
		spaceID:  p.SpaceID,
		parentID: p.ParentFolderID,
		logg:     p.Logger,
	}, nil
}

func (s *service) Create(ctx context.Context, product commerce.Product) (*storyblok.Story, error) {
	ctx = s.productContext(ctx, product.ID, product.Handle)
	gallery, err := s.productGallery(ctx, product)
	if err != nil {
		s.logg.Error(ctx, "failed to build product gallery", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnexpectedState, err, "create product story")
	}
	content := storyblok.ProductContent{
		Component:       storyblok.ComponentProduct,
		MedusaProductID: product.ID,
		Title:           product.Title,
	}
	if len(gallery) > 0 {
		content.Gallery = gallery
	}
	created, err := s.api.CreateStory(ctx, storyblok.Story{
		Name:     product.Title,
		Slug:     product.Handle,
		ParentID: s.parentID,
		Content:  content,
	})
	if err != nil {
		s.logg.Error(ctx, "failed to create product story", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnexpectedState, err, "create product story")
	}
	s.recordLink(s.logg.WithStoryID(ctx, created.ID), product.ID, created)
	s.logg.Info(s.logg.WithStoryID(ctx, created.ID), "product story created")
	return created, nil
}

func (s *service) Update(ctx context.Context, product commerce.Product) (*storyblok.Story, error) {
	ctx = s.productContext(ctx, product.ID, product.Handle)
	existing, err := s.retrieve(ctx, storyblok.StoryQuery{ProductIDLike: product.ID, Version: "draft"})
	if err != nil {
		return nil, err
	}
	if existing == nil {
		s.logg.Warn(ctx, "no product story to update")
		return nil, nil
	}
	existing.Slug = product.Handle
	updated, err := s.api.UpdateStory(ctx, *existing)
	if err != nil {
		s.logg.Error(ctx, "failed to update product story", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnexpectedState, err, "update product story")
	}
	s.logg.Info(s.logg.WithStoryID(ctx, updated.ID), "product story updated")
	return updated, nil
}

func (s *service) Delete(ctx context.Context, productID string) error {
	ctx = s.logg.WithProductID(ctx, productID)
	existing, err := s.RetrieveByProductID(ctx, productID)
	if err != nil {
		return err
	}
	if existing == nil {
		s.logg.Warn(ctx, "no product story found, skipping deletion")
		return nil
	}
	ctx = s.logg.WithFields(s.logg.WithStoryID(ctx, existing.ID), map[string]any{"slug": existing.Slug})
	if err := s.api.DeleteStory(ctx, existing.ID); err != nil {
		s.logg.Error(ctx, "failed to delete product story", err)
		return pkgerrors.Wrap(pkgerrors.CodeUnexpectedState, err, "delete product story")
	}
	s.logg.Info(ctx, "product story deleted")

	if err := s.folders.DeleteFolder(ctx, existing.Slug); err != nil {
		s.logg.Error(ctx, "failed to delete asset folder", err)
	}
	if s.links != nil {
		if err := s.links.DeleteByProductID(ctx, productID); err != nil {
			s.logg.Error(ctx, "failed to drop product story link", err)
		}
	}
	return nil
}

func (s *service) ForceSync(ctx context.Context, product commerce.Product) (*storyblok.Story, error) {
	ctx = s.productContext(ctx, product.ID, product.Handle)
	existing, err := s.retrieve(ctx, storyblok.StoryQuery{ProductIDLike: product.ID, Version: "draft"})
	if err != nil {
		return nil, err
	}
	if existing == nil {
		s.logg.Warn(ctx, "no product story to force sync")
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "story not found for product %s", product.ID)
	}
	gallery, err := s.productGallery(ctx, product)
	if err != nil {
		s.logg.Error(ctx, "failed to build product gallery", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnexpectedState, err, "force sync product story")
	}
	existing.Slug = product.Handle
	existing.Content.Component = storyblok.ComponentProduct
	existing.Content.MedusaProductID = product.ID
	existing.Content.Title = product.Title
	existing.Content.Gallery = gallery
	updated, err := s.api.UpdateStory(ctx, *existing)
	if err != nil {
		s.logg.Error(ctx, "failed to force sync product story", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnexpectedState, err, "force sync product story")
	}
	s.recordLink(s.logg.WithStoryID(ctx, updated.ID), product.ID, updated)
	s.logg.Info(s.logg.WithStoryID(ctx, updated.ID), "product story force synced")
	return updated, nil
}

func (s *service) CreateVariants(ctx context.Context, productID string, variants []commerce.Variant) error {
	ctx = s.logg.WithProductID(ctx, productID)
	story, err := s.RetrieveByProductID(ctx, productID)
	if err != nil {
		return err
	}
	if story == nil {
		s.logg.Warn(ctx, "no product story found for new variants")
		return ErrParentStoryMissing
	}
	bloks, err := s.variantBloks(ctx, story.Slug, variants)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUnexpectedState, err, "create product variants")
	}
	story.Content.Variants = append(story.Content.Variants, bloks...)
	if _, err := s.api.UpdateStory(ctx, *story); err != nil {
		s.logg.Error(ctx, "failed to add variants to product story", err)
		return pkgerrors.Wrap(pkgerrors.CodeUnexpectedState, err, "create product variants")
	}
	s.logg.Info(s.logg.WithField(ctx, "variant_count", len(bloks)), "variants added to product story")
	return nil
}

func (s *service) ForceSyncVariants(ctx context.Context, productID string, variants []commerce.Variant) error {
	ctx = s.logg.WithProductID(ctx, productID)
	story, err := s.RetrieveByProductID(ctx, productID)
	if err != nil {
		return err
	}
	if story == nil {
		s.logg.Warn(ctx, "no product story to force sync variants into")
		return pkgerrors.Newf(pkgerrors.CodeNotFound, "story not found for product %s", productID)
	}
	bloks, err := s.variantBloks(ctx, story.Slug, variants)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUnexpectedState, err, "force sync product variants")
	}
	// Replaced bloks keep their identity and the keys editors added.
	for i := range bloks {
		if j := story.Content.VariantByID(bloks[i].MedusaProductVariantID); j >= 0 {
			bloks[i].UID = story.Content.Variants[j].UID
			bloks[i].Extra = story.Content.Variants[j].Extra
		}
	}
	story.Content.Variants = bloks
	updated, err := s.api.UpdateStory(ctx, *story)
	if err != nil {
		s.logg.Error(ctx, "failed to force sync variants", err)
		return pkgerrors.Wrap(pkgerrors.CodeUnexpectedState, err, "force sync product variants")
	}
	s.recordLink(ctx, productID, updated)
	s.logg.Info(s.logg.WithField(ctx, "variant_count", len(bloks)), "product variants force synced")
	return nil
}

func (s *service) DeleteVariant(ctx context.Context, productID, variantID string) error {
	ctx = s.logg.WithFields(ctx, map[string]any{"product_id": productID, "variant_id": variantID})
	story, err := s.RetrieveByProductID(ctx, productID)
	if err != nil {
		return err
	}
	if story == nil {
		s.logg.Warn(ctx, "no product story found for deleted variant")
		return nil
	}
	kept := make([]storyblok.VariantBlok, 0, len(story.Content.Variants))
	for _, v := range story.Content.Variants {
		if v.MedusaProductVariantID != variantID {
			kept = append(kept, v)
		}
	}
	if len(kept) == len(story.Content.Variants) {
		s.logg.Info(ctx, "variant not present in product story")
		return nil
	}
	story.Content.Variants = kept
	if _, err := s.api.UpdateStory(ctx, *story); err != nil {
		s.logg.Error(ctx, "failed to remove variant from product story", err)
		return pkgerrors.Wrap(pkgerrors.CodeUnexpectedState, err, "delete product variant")
	}
	s.logg.Info(ctx, "variant removed from product story")
	return nil
}

func (s *service) RetrieveByProductID(ctx context.Context, productID string) (*storyblok.Story, error) {
	return s.retrieve(ctx, storyblok.StoryQuery{ProductIDLike: productID})
}

func (s *service) RetrieveByStoryID(ctx context.Context, storyID int64) (*storyblok.Story, error) {
	return s.retrieve(ctx, storyblok.StoryQuery{ByIDs: []int64{storyID}})
}

// ListByProductIDs looks the ids up in pages the CDN serves in full.
func (s *service) ListByProductIDs(ctx context.Context, productIDs []string) ([]storyblok.Story, error) {
	out := []storyblok.Story{}
	for batch := range slices.Chunk(productIDs, storyblok.MaxPerPage) {
		list, err := s.api.ListStories(ctx, storyblok.StoryQuery{ProductIDsIn: batch, PerPage: len(batch)})
		if err != nil {
			s.logg.Error(ctx, "failed to list product stories", err)
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "stories not found")
		}
		out = append(out, list...)
	}
	return out, nil
}

func (s *service) EditorURL(storyID int64) string {
	return fmt.Sprintf(editorURLFormat, s.spaceID, storyID)
}

// retrieve returns the first match, nil on absence and NOT_FOUND wrapping the
// transport failure otherwise.
func (s *service) retrieve(ctx context.Context, q storyblok.StoryQuery) (*storyblok.Story, error) {
	list, err := s.api.ListStories(ctx, q)
	if err != nil {
		s.logg.Error(ctx, "failed to retrieve product story", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "story not found")
	}
	if len(list) == 0 {
		return nil, nil
	}
	story := list[0]
	return &story, nil
}

func (s *service) productGallery(ctx context.Context, product commerce.Product) ([]storyblok.GalleryImage, error) {
	return s.gallery.Build(ctx, product.Handle, product.Thumbnail, product.ImageURLs(), product.Title)
}

func (s *service) variantBloks(ctx context.Context, slug string, variants []commerce.Variant) ([]storyblok.VariantBlok, error) {
	out := make([]storyblok.VariantBlok, 0, len(variants))
	for _, v := range variants {
		title := strings.TrimSpace(v.Title)
		if title == "" {
			title = storyblok.DefaultVariantTitle
		}
		gallery, err := s.gallery.Build(ctx, slug, v.Thumbnail, v.ImageURLs(), title)
		if err != nil {
			s.logg.Error(s.logg.WithField(ctx, "variant_id", v.ID), "failed to build variant gallery", err)
			return nil, err
		}
		blok := storyblok.VariantBlok{
			Component:              storyblok.ComponentVariant,
			MedusaProductVariantID: v.ID,
			Title:                  title,
		}
		if len(gallery) > 0 {
			blok.Gallery = gallery
		}
		out = append(out, blok)
	}
	return out, nil
}

func (s *service) recordLink(ctx context.Context, productID string, story *storyblok.Story) {
	if s.links == nil || story == nil || story.ID == 0 {
		return
	}
	if err := s.links.Record(ctx, productID, story.ID, story.Slug, Snapshot(story.Content)); err != nil {
		s.logg.Error(ctx, "failed to record product story link", err)
	}
}

func (s *service) productContext(ctx context.Context, productID, slug string) context.Context {
	return s.logg.WithFields(ctx, map[string]any{"product_id": productID, "slug": slug})
}

// Snapshot summarizes story content for the link table.
func Snapshot(content storyblok.ProductContent) links.Snapshot {
	snap := links.Snapshot{ImageURLs: []string{}, VariantIDs: []string{}}
	for _, img := range content.Gallery {
		if img.IsThumbnail && snap.ThumbnailURL == "" {
			snap.ThumbnailURL = img.Image.Filename
			continue
		}
		snap.ImageURLs = append(snap.ImageURLs, img.Image.Filename)
	}
	for _, v := range content.Variants {
		snap.VariantIDs = append(snap.VariantIDs, v.MedusaProductVariantID)
	}
	return snap
}
