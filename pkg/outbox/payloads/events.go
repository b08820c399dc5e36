package payloads

// ProductEvent is published by the commerce platform for product lifecycle
// changes. Only the id is relied on.
type ProductEvent struct {
	ID string `json:"id"`
}

// VariantsCreatedEvent lists the variants added to a product. Single-variant
// producers send `id` instead of `ids`.
type VariantsCreatedEvent struct {
	ProductID string   `json:"product_id"`
	ID        string   `json:"id,omitempty"`
	IDs       []string `json:"ids,omitempty"`
}

// VariantIDs merges both id forms, dropping blanks and duplicates.
func (e VariantsCreatedEvent) VariantIDs() []string {
	seen := make(map[string]struct{}, len(e.IDs)+1)
	out := make([]string, 0, len(e.IDs)+1)
	for _, id := range append([]string{e.ID}, e.IDs...) {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// VariantDeletedEvent identifies a removed variant and its product.
type VariantDeletedEvent struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
}

// BulkSyncEvent requests a sync (or force-sync) over the whole catalog or an
// explicit product list.
type BulkSyncEvent struct {
	All        bool     `json:"all,omitempty"`
	ProductIDs []string `json:"product_ids,omitempty"`
}
