package models

import (
	"encoding/json"
	"time"
)

// ProductStoryLink pairs a commerce product with the Storyblok story that
// mirrors it. Both sides are unique.
type ProductStoryLink struct {
	ID               string          `gorm:"column:id;primaryKey"`
	ProductID        string          `gorm:"column:product_id;not null;uniqueIndex:ux_product_storyblok_link_product"`
	StoryblokStoryID int64           `gorm:"column:storyblok_story_id;not null;uniqueIndex:ux_product_storyblok_link_story"`
	StorySlug        string          `gorm:"column:story_slug;not null"`
	LastSyncedAt     *time.Time      `gorm:"column:last_synced_at"`
	Snapshot         json.RawMessage `gorm:"column:snapshot;type:jsonb"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (ProductStoryLink) TableName() string { return "product_storyblok_link" }
