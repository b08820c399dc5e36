package links

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/angelmondragon/storyblok-sync/pkg/db"
	"github.com/angelmondragon/storyblok-sync/pkg/db/models"
	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const idPrefix = "sbp_"

// Snapshot summarizes the gallery last written to the story.
type Snapshot struct {
	ThumbnailURL string   `json:"thumbnail_url,omitempty"`
	ImageURLs    []string `json:"image_urls"`
	VariantIDs   []string `json:"variant_ids"`
}

// Repository persists product to story links.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRepository binds the repo to the provided GORM connection.
func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{db: conn, now: time.Now}
}

// NewID returns a sortable link id.
func NewID() string {
	return idPrefix + ulid.Make().String()
}

// Record creates or refreshes the link of productID.
func (r *Repository) Record(ctx context.Context, productID string, storyID int64, slug string, snap Snapshot) error {
	if productID == "" || storyID == 0 {
		return errors.New("product id and story id are required")
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	now := r.now().UTC()
	link := &models.ProductStoryLink{
		ID:               NewID(),
		ProductID:        productID,
		StoryblokStoryID: storyID,
		StorySlug:        slug,
		LastSyncedAt:     &now,
		Snapshot:         payload,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "product_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"storyblok_story_id", "story_slug", "last_synced_at", "snapshot", "updated_at"}),
		}).
		Create(link).Error
}

// FindByProductID returns nil when productID has no link.
func (r *Repository) FindByProductID(ctx context.Context, productID string) (*models.ProductStoryLink, error) {
	return r.first(ctx, "product_id = ?", productID)
}

// FindByStoryID returns nil when storyID has no link.
func (r *Repository) FindByStoryID(ctx context.Context, storyID int64) (*models.ProductStoryLink, error) {
	return r.first(ctx, "storyblok_story_id = ?", storyID)
}

// ProductIDForStory resolves the commerce product of a story.
func (r *Repository) ProductIDForStory(ctx context.Context, storyID int64) (string, bool, error) {
	link, err := r.FindByStoryID(ctx, storyID)
	if err != nil || link == nil {
		return "", false, err
	}
	return link.ProductID, true, nil
}

// DeleteByProductID drops the link of productID, if any.
func (r *Repository) DeleteByProductID(ctx context.Context, productID string) error {
	return r.db.WithContext(ctx).Where("product_id = ?", productID).Delete(&models.ProductStoryLink{}).Error
}

// DeleteByStoryID drops the link of storyID, if any.
func (r *Repository) DeleteByStoryID(ctx context.Context, storyID int64) error {
	return r.db.WithContext(ctx).Where("storyblok_story_id = ?", storyID).Delete(&models.ProductStoryLink{}).Error
}

// ListProductIDs returns every linked product id in ascending order.
func (r *Repository) ListProductIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.ProductStoryLink{}).
		Order("product_id ASC").
		Pluck("product_id", &ids).Error
	return ids, err
}

// DeleteByProductIDs drops the links of productIDs and reports how many went.
func (r *Repository) DeleteByProductIDs(ctx context.Context, productIDs []string) (int64, error) {
	if len(productIDs) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Where("product_id IN ?", productIDs).Delete(&models.ProductStoryLink{})
	return res.RowsAffected, res.Error
}

func (r *Repository) first(ctx context.Context, query string, arg any) (*models.ProductStoryLink, error) {
	var link models.ProductStoryLink
	err := r.db.WithContext(ctx).Where(query, arg).First(&link).Error
	if db.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// DecodeSnapshot reads the stored snapshot of link.
func DecodeSnapshot(link *models.ProductStoryLink) (Snapshot, error) {
	var snap Snapshot
	if link == nil || len(link.Snapshot) == 0 {
		return snap, nil
	}
	err := json.Unmarshal(link.Snapshot, &snap)
	return snap, err
}
