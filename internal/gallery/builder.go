package gallery

import (
	"context"
	"errors"

	"github.com/angelmondragon/storyblok-sync/internal/storyblok"
	"github.com/angelmondragon/storyblok-sync/pkg/logger"
	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 4

// Folders resolves the asset folder of a product slug.
type Folders interface {
	GetOrCreateFolder(ctx context.Context, slug string) (int64, error)
}

// Uploader turns a source URL into an asset inside a folder.
type Uploader interface {
	Upload(ctx context.Context, folderID int64, sourceURL, altText string) (storyblok.AssetRef, error)
}

// Builder assembles story galleries from commerce image URLs.
type Builder struct {
	folders     Folders
	uploader    Uploader
	concurrency int
	logg        *logger.Logger
}

// NewBuilder wires a gallery builder.
func NewBuilder(folders Folders, uploader Uploader, concurrency int, logg *logger.Logger) (*Builder, error) {
	if folders == nil {
		return nil, errors.New("folder store required")
	}
	if uploader == nil {
		return nil, errors.New("uploader required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Builder{folders: folders, uploader: uploader, concurrency: concurrency, logg: logg}, nil
}

// Build uploads the thumbnail and images into the slug's folder and returns
// the gallery, thumbnail first and images in input order. Nothing to upload
// yields an empty gallery without touching folders. Any failed upload fails
// the whole build.
func (b *Builder) Build(ctx context.Context, slug, thumbnailURL string, images []string, altText string) ([]storyblok.GalleryImage, error) {
	urls := make([]string, 0, len(images))
	for _, u := range images {
		if u != "" {
			urls = append(urls, u)
		}
	}
	if thumbnailURL == "" && len(urls) == 0 {
		return []storyblok.GalleryImage{}, nil
	}

	folderID, err := b.folders.GetOrCreateFolder(ctx, slug)
	if err != nil {
		return nil, err
	}

	out := make([]storyblok.GalleryImage, 0, len(urls)+1)
	if thumbnailURL != "" {
		ref, err := b.uploader.Upload(ctx, folderID, thumbnailURL, altText)
		if err != nil {
			return nil, err
		}
		out = append(out, newImage(ref, true))
	}

	refs := make([]storyblok.AssetRef, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i, u := range urls {
		g.Go(func() error {
			ref, err := b.uploader.Upload(gctx, folderID, u, altText)
			if err != nil {
				return err
			}
			refs[i] = ref
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		b.logg.Error(b.logg.WithField(ctx, "slug", slug), "gallery upload failed", err)
		return nil, err
	}
	for _, ref := range refs {
		out = append(out, newImage(ref, false))
	}
	return out, nil
}

func newImage(ref storyblok.AssetRef, thumbnail bool) storyblok.GalleryImage {
	return storyblok.GalleryImage{
		Component:   storyblok.ComponentGalleryImage,
		Image:       ref,
		IsThumbnail: thumbnail,
	}
}
