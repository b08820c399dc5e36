package commerce

// Image is a product image record.
type Image struct {
	ID       string         `json:"id"`
	URL      string         `json:"url"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Variant is a product variant with the images attached to it.
type Variant struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	ProductID string         `json:"product_id,omitempty"`
	Thumbnail string         `json:"thumbnail,omitempty"`
	Images    []Image        `json:"images,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Product is the catalog view the sync engine reads.
type Product struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Handle    string         `json:"handle"`
	Thumbnail string         `json:"thumbnail,omitempty"`
	Images    []Image        `json:"images,omitempty"`
	Variants  []Variant      `json:"variants,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ImageURLs lists the product's image URLs in catalog order.
func (p Product) ImageURLs() []string {
	out := make([]string, 0, len(p.Images))
	for _, img := range p.Images {
		if img.URL != "" {
			out = append(out, img.URL)
		}
	}
	return out
}

// ImageIDs lists the variant's attached image ids.
func (v Variant) ImageIDs() []string {
	out := make([]string, 0, len(v.Images))
	for _, img := range v.Images {
		if img.ID != "" {
			out = append(out, img.ID)
		}
	}
	return out
}

// ImageURLs lists the variant's image URLs in catalog order.
func (v Variant) ImageURLs() []string {
	out := make([]string, 0, len(v.Images))
	for _, img := range v.Images {
		if img.URL != "" {
			out = append(out, img.URL)
		}
	}
	return out
}

// ImageInput keeps an existing image by ID or registers a new one by URL.
type ImageInput struct {
	ID       string         `json:"id,omitempty"`
	URL      string         `json:"url,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ProductUpdate is the partial product write issued on story publish.
type ProductUpdate struct {
	Handle    string         `json:"handle,omitempty"`
	Thumbnail *string        `json:"thumbnail,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Images    []ImageInput   `json:"images"`
}

// VariantUpdate is the partial variant write issued on story publish.
type VariantUpdate struct {
	Title     string         `json:"title,omitempty"`
	Thumbnail *string        `json:"thumbnail,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ImageBatch attaches and detaches product images on a variant.
type ImageBatch struct {
	Add    []string `json:"add"`
	Remove []string `json:"remove"`
}

// ProductPage is one page of the catalog listing.
type ProductPage struct {
	Products []Product `json:"products"`
	Count    int       `json:"count"`
	Offset   int       `json:"offset"`
	Limit    int       `json:"limit"`
}

type productEnvelope struct {
	Product Product `json:"product"`
}

type variantsEnvelope struct {
	Variants []Variant `json:"variants"`
	Count    int       `json:"count"`
}
