package storyblok

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// MaxPerPage is the largest page the content delivery API serves.
const MaxPerPage = 100

// StoryQuery selects product stories through the content delivery API.
type StoryQuery struct {
	ProductIDLike string
	ProductIDsIn  []string
	ByIDs         []int64
	Version       string
	PerPage       int
	Page          int
}

// CreateStory creates a story and returns it as stored.
func (c *Client) CreateStory(ctx context.Context, story Story) (*Story, error) {
	var resp storyEnvelope
	if err := c.management(ctx, "storyblok.create_story", http.MethodPost, c.spacePath("/stories"), nil, storyEnvelope{Story: story}, &resp); err != nil {
		return nil, err
	}
	return &resp.Story, nil
}

// UpdateStory replaces a story. force_update overrides editor locks.
func (c *Client) UpdateStory(ctx context.Context, story Story) (*Story, error) {
	var resp storyEnvelope
	path := c.spacePath("/stories/%d", story.ID)
	if err := c.management(ctx, "storyblok.update_story", http.MethodPut, path, nil, storyEnvelope{Story: story, ForceUpdate: "1"}, &resp); err != nil {
		return nil, err
	}
	return &resp.Story, nil
}

// DeleteStory removes a story by id.
func (c *Client) DeleteStory(ctx context.Context, storyID int64) error {
	return c.management(ctx, "storyblok.delete_story", http.MethodDelete, c.spacePath("/stories/%d", storyID), nil, nil, nil)
}

// ListStories reads product stories under the products folder.
func (c *Client) ListStories(ctx context.Context, q StoryQuery) ([]Story, error) {
	params := url.Values{}
	version := c.version
	if q.Version != "" {
		version = q.Version
	}
	params.Set("version", version)
	params.Set("cv", strconv.FormatInt(c.now().Unix(), 10))
	if c.productsFolderName != "" {
		params.Set("starts_with", c.productsFolderName+"/")
	}
	if q.ProductIDLike != "" {
		params.Set("filter_query[medusaProductId][like]", q.ProductIDLike)
	}
	if len(q.ProductIDsIn) > 0 {
		params.Set("filter_query[medusaProductId][in]", strings.Join(q.ProductIDsIn, ","))
	}
	if len(q.ByIDs) > 0 {
		ids := make([]string, 0, len(q.ByIDs))
		for _, id := range q.ByIDs {
			ids = append(ids, strconv.FormatInt(id, 10))
		}
		params.Set("by_ids", strings.Join(ids, ","))
	}
	if q.PerPage > 0 {
		params.Set("per_page", strconv.Itoa(q.PerPage))
	}
	if q.Page > 0 {
		params.Set("page", strconv.Itoa(q.Page))
	}
	var resp storiesEnvelope
	if err := c.content(ctx, "storyblok.list_stories", "/cdn/stories", params, &resp); err != nil {
		return nil, err
	}
	return resp.Stories, nil
}
