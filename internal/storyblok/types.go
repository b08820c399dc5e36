package storyblok

import "encoding/json"

const (
	ComponentProduct      = "product"
	ComponentVariant      = "productVariant"
	ComponentGalleryImage = "galleryImage"
	FieldtypeAsset        = "asset"
	DefaultVariantTitle   = "Unnamed Variant"
)

// AssetRef is the value stored in an asset field of a story. Keys it does
// not model are kept in Extra.
type AssetRef struct {
	ID            int64
	Filename      string
	Alt           string
	Name          string
	Title         string
	Focus         string
	Copyright     string
	Fieldtype     string
	MetaData      map[string]any
	IsExternalURL bool
	Extra         map[string]json.RawMessage
}

// GalleryImage is one entry of a product or variant gallery.
type GalleryImage struct {
	UID         string
	Component   string
	Image       AssetRef
	IsThumbnail bool
	Extra       map[string]json.RawMessage
}

// VariantBlok mirrors a commerce variant inside a product story.
type VariantBlok struct {
	UID                    string
	Component              string
	MedusaProductVariantID string
	Title                  string
	Gallery                []GalleryImage
	Extra                  map[string]json.RawMessage
}

// Story is the subset of a Storyblok story the sync engine reads and writes.
type Story struct {
	ID        int64          `json:"id,omitempty"`
	UUID      string         `json:"uuid,omitempty"`
	Name      string         `json:"name"`
	Slug      string         `json:"slug"`
	FullSlug  string         `json:"full_slug,omitempty"`
	ParentID  int64          `json:"parent_id,omitempty"`
	Published bool           `json:"published,omitempty"`
	Content   ProductContent `json:"content"`
}

// Asset is an entry of the asset library as returned by the management API.
type Asset struct {
	ID            int64          `json:"id"`
	Filename      string         `json:"filename"`
	Alt           string         `json:"alt"`
	Name          string         `json:"name"`
	Title         string         `json:"title"`
	Focus         string         `json:"focus"`
	Copyright     string         `json:"copyright"`
	AssetFolderID int64          `json:"asset_folder_id"`
	MetaData      map[string]any `json:"meta_data"`
	IsExternalURL bool           `json:"is_external_url"`
}

// Ref converts a library asset into a story asset value.
func (a Asset) Ref() AssetRef {
	meta := a.MetaData
	if meta == nil {
		meta = map[string]any{}
	}
	return AssetRef{
		ID:            a.ID,
		Filename:      a.Filename,
		Alt:           a.Alt,
		Name:          a.Name,
		Title:         a.Title,
		Focus:         a.Focus,
		Copyright:     a.Copyright,
		Fieldtype:     FieldtypeAsset,
		MetaData:      meta,
		IsExternalURL: a.IsExternalURL,
	}
}

// AssetFolder is a folder in the asset library.
type AssetFolder struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ParentID int64  `json:"parent_id,omitempty"`
}

// SignedUpload is the response to an asset upload request.
type SignedUpload struct {
	ID        int64             `json:"id"`
	PostURL   string            `json:"post_url"`
	Fields    map[string]string `json:"fields"`
	PrettyURL string            `json:"pretty_url"`
	PublicURL string            `json:"public_url"`
}

type storyEnvelope struct {
	Story       Story  `json:"story"`
	ForceUpdate string `json:"force_update,omitempty"`
}

type storiesEnvelope struct {
	Stories []Story `json:"stories"`
}

type assetsEnvelope struct {
	Assets []Asset `json:"assets"`
}

type assetFoldersEnvelope struct {
	AssetFolders []AssetFolder `json:"asset_folders"`
}

type assetFolderEnvelope struct {
	AssetFolder AssetFolder `json:"asset_folder"`
}

type signedUploadRequest struct {
	Filename       string `json:"filename"`
	Size           string `json:"size"`
	AssetFolderID  int64  `json:"asset_folder_id"`
	ValidateUpload int    `json:"validate_upload"`
}
