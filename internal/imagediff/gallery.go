package imagediff

import "github.com/angelmondragon/storyblok-sync/internal/storyblok"

// MapFunc turns a stored asset URL into the URL registered with the catalog.
type MapFunc func(string) string

// Image is a desired catalog image.
type Image struct {
	URL string
	Alt string
}

// Gallery splits a story gallery into its thumbnail and the other images.
type Gallery struct {
	Thumbnail *Image
	Images    []Image
}

// URLs lists the gallery thumbnail first.
func (g Gallery) URLs() []string {
	out := make([]string, 0, len(g.Images)+1)
	if g.Thumbnail != nil {
		out = append(out, g.Thumbnail.URL)
	}
	for _, img := range g.Images {
		out = append(out, img.URL)
	}
	return out
}

// All returns the thumbnail (when set) followed by the images.
func (g Gallery) All() []Image {
	out := make([]Image, 0, len(g.Images)+1)
	if g.Thumbnail != nil {
		out = append(out, *g.Thumbnail)
	}
	return append(out, g.Images...)
}

// VariantGallery is the desired gallery of one variant blok.
type VariantGallery struct {
	VariantID string
	Title     string
	Gallery
}

// ExtractGallery keeps galleryImage bloks with a filename. The first
// thumbnail-flagged entry becomes the thumbnail.
func ExtractGallery(gallery []storyblok.GalleryImage, mapURL MapFunc) Gallery {
	if mapURL == nil {
		mapURL = identity
	}
	var out Gallery
	out.Images = []Image{}
	for _, item := range gallery {
		if item.Component != "" && item.Component != storyblok.ComponentGalleryImage {
			continue
		}
		if item.Image.Filename == "" {
			continue
		}
		img := Image{URL: mapURL(item.Image.Filename), Alt: item.Image.Alt}
		if item.IsThumbnail {
			if out.Thumbnail == nil {
				out.Thumbnail = &img
			}
			continue
		}
		out.Images = append(out.Images, img)
	}
	return out
}

// VariantImages extracts every variant's gallery, in blok order.
func VariantImages(variants []storyblok.VariantBlok, mapURL MapFunc) []VariantGallery {
	out := make([]VariantGallery, 0, len(variants))
	for _, v := range variants {
		if v.MedusaProductVariantID == "" {
			continue
		}
		out = append(out, VariantGallery{
			VariantID: v.MedusaProductVariantID,
			Title:     v.Title,
			Gallery:   ExtractGallery(v.Gallery, mapURL),
		})
	}
	return out
}

// ProductPool is the product's image set: its own gallery images followed by
// every variant's images, deduplicated by URL. The catalog stores variant
// images at product scope.
func ProductPool(product []Image, variants []VariantGallery) []Image {
	seen := make(map[string]struct{})
	out := make([]Image, 0, len(product))
	add := func(img Image) {
		if _, ok := seen[img.URL]; ok {
			return
		}
		seen[img.URL] = struct{}{}
		out = append(out, img)
	}
	for _, img := range product {
		add(img)
	}
	for _, v := range variants {
		for _, img := range v.All() {
			add(img)
		}
	}
	return out
}

func identity(s string) string { return s }
