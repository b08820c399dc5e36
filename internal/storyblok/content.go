package storyblok

import (
	"encoding/json"
	"maps"

	pkgerrors "github.com/angelmondragon/storyblok-sync/pkg/errors"
)

// ProductContent is the content of a product story. Keys authored in the CMS
// that the sync engine does not own are kept in Extra and written back as is.
// The nested bloks and asset values follow the same rule.
type ProductContent struct {
	Component       string
	MedusaProductID string
	Title           string
	Gallery         []GalleryImage
	Variants        []VariantBlok
	Extra           map[string]json.RawMessage
}

// MarshalJSON emits the owned keys over the preserved ones.
func (c ProductContent) MarshalJSON() ([]byte, error) {
	variants := c.Variants
	if variants == nil {
		variants = []VariantBlok{}
	}
	owned := map[string]any{
		"component":       orDefault(c.Component, ComponentProduct),
		"medusaProductId": c.MedusaProductID,
		"title":           c.Title,
		"variants":        variants,
	}
	if c.Gallery != nil {
		owned["gallery"] = c.Gallery
	}
	return encodeObject(c.Extra, owned)
}

// UnmarshalJSON splits owned keys from preserved ones and drops `_editable`
// markers at every depth.
func (c *ProductContent) UnmarshalJSON(data []byte) error {
	var out ProductContent
	extra, err := decodeObject(data, "product content", fields{
		"component":       &out.Component,
		"medusaProductId": &out.MedusaProductID,
		"title":           &out.Title,
		"gallery":         &out.Gallery,
		"variants":        &out.Variants,
	})
	if err != nil {
		return err
	}
	out.Extra = extra
	*c = out
	return nil
}

func (v VariantBlok) MarshalJSON() ([]byte, error) {
	owned := map[string]any{
		"component":              v.Component,
		"medusaProductVariantId": v.MedusaProductVariantID,
		"title":                  v.Title,
	}
	if v.UID != "" {
		owned["_uid"] = v.UID
	}
	if len(v.Gallery) > 0 {
		owned["gallery"] = v.Gallery
	}
	return encodeObject(v.Extra, owned)
}

func (v *VariantBlok) UnmarshalJSON(data []byte) error {
	var out VariantBlok
	extra, err := decodeObject(data, "variant blok", fields{
		"_uid":                   &out.UID,
		"component":              &out.Component,
		"medusaProductVariantId": &out.MedusaProductVariantID,
		"title":                  &out.Title,
		"gallery":                &out.Gallery,
	})
	if err != nil {
		return err
	}
	out.Extra = extra
	*v = out
	return nil
}

func (g GalleryImage) MarshalJSON() ([]byte, error) {
	owned := map[string]any{
		"component":   g.Component,
		"image":       g.Image,
		"isThumbnail": g.IsThumbnail,
	}
	if g.UID != "" {
		owned["_uid"] = g.UID
	}
	return encodeObject(g.Extra, owned)
}

func (g *GalleryImage) UnmarshalJSON(data []byte) error {
	var out GalleryImage
	extra, err := decodeObject(data, "gallery image", fields{
		"_uid":        &out.UID,
		"component":   &out.Component,
		"image":       &out.Image,
		"isThumbnail": &out.IsThumbnail,
	})
	if err != nil {
		return err
	}
	out.Extra = extra
	*g = out
	return nil
}

func (a AssetRef) MarshalJSON() ([]byte, error) {
	meta := a.MetaData
	if meta == nil {
		meta = map[string]any{}
	}
	return encodeObject(a.Extra, map[string]any{
		"id":              a.ID,
		"filename":        a.Filename,
		"alt":             a.Alt,
		"name":            a.Name,
		"title":           a.Title,
		"focus":           a.Focus,
		"copyright":       a.Copyright,
		"fieldtype":       orDefault(a.Fieldtype, FieldtypeAsset),
		"meta_data":       meta,
		"is_external_url": a.IsExternalURL,
	})
}

func (a *AssetRef) UnmarshalJSON(data []byte) error {
	var out AssetRef
	extra, err := decodeObject(data, "asset", fields{
		"id":              &out.ID,
		"filename":        &out.Filename,
		"alt":             &out.Alt,
		"name":            &out.Name,
		"title":           &out.Title,
		"focus":           &out.Focus,
		"copyright":       &out.Copyright,
		"fieldtype":       &out.Fieldtype,
		"meta_data":       &out.MetaData,
		"is_external_url": &out.IsExternalURL,
	})
	if err != nil {
		return err
	}
	out.Extra = extra
	*a = out
	return nil
}

// VariantByID returns the index of the variant blok for id, or -1.
func (c ProductContent) VariantByID(id string) int {
	for i, v := range c.Variants {
		if v.MedusaProductVariantID == id {
			return i
		}
	}
	return -1
}

// fields maps owned keys to their decode targets.
type fields map[string]any

// decodeObject decodes the owned keys of a JSON object into their targets and
// returns the remaining keys, `_editable` removed at every depth. Null owned
// values leave the target untouched.
func decodeObject(data []byte, what string, owned fields) (map[string]json.RawMessage, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInvalidData, err, "decode "+what)
	}
	for key, dst := range owned {
		v, ok := raw[key]
		delete(raw, key)
		if !ok || isNull(v) {
			continue
		}
		if err := json.Unmarshal(v, dst); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInvalidData, err, "decode "+what+" "+key)
		}
	}
	delete(raw, "_editable")
	if len(raw) == 0 {
		return nil, nil
	}
	for key, v := range raw {
		cleaned, err := StripEditable(v)
		if err != nil {
			return nil, err
		}
		raw[key] = cleaned
	}
	return raw, nil
}

func encodeObject(extra map[string]json.RawMessage, owned map[string]any) ([]byte, error) {
	out := make(map[string]any, len(extra)+len(owned))
	for k, v := range extra {
		out[k] = v
	}
	maps.Copy(out, owned)
	return json.Marshal(out)
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// StripEditable removes `_editable` keys from any JSON value, recursively.
func StripEditable(data json.RawMessage) (json.RawMessage, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInvalidData, err, "decode content")
	}
	return json.Marshal(stripEditable(v))
}

func stripEditable(v any) any {
	switch t := v.(type) {
	case map[string]any:
		cleaned := make(map[string]any, len(t))
		for k, val := range t {
			if k == "_editable" {
				continue
			}
			cleaned[k] = stripEditable(val)
		}
		return cleaned
	case []any:
		cleaned := make([]any, len(t))
		for i, val := range t {
			cleaned[i] = stripEditable(val)
		}
		return cleaned
	default:
		return v
	}
}

func isNull(v json.RawMessage) bool {
	return len(v) == 0 || string(v) == "null"
}
