package admin

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/storyblok-sync/api/middleware"
	"github.com/angelmondragon/storyblok-sync/api/responses"
	"github.com/angelmondragon/storyblok-sync/api/validators"
	"github.com/angelmondragon/storyblok-sync/internal/bulk"
	"github.com/angelmondragon/storyblok-sync/internal/commerce"
	"github.com/angelmondragon/storyblok-sync/internal/storyblok"
	pkgerrors "github.com/angelmondragon/storyblok-sync/pkg/errors"
	"github.com/angelmondragon/storyblok-sync/pkg/logger"
	"github.com/angelmondragon/storyblok-sync/pkg/outbox"
)

var listWindow = validators.WindowLimits{DefaultLimit: 20, MaxLimit: 200, MaxOffset: 1 << 20}

// CatalogLister pages the commerce catalog.
type CatalogLister interface {
	ListProducts(ctx context.Context, offset, limit int) (*commerce.ProductPage, error)
}

// StoryFinder looks up product stories. stories.Service satisfies it.
type StoryFinder interface {
	RetrieveByProductID(ctx context.Context, productID string) (*storyblok.Story, error)
	ListByProductIDs(ctx context.Context, productIDs []string) ([]storyblok.Story, error)
	EditorURL(storyID int64) string
}

type ProductSyncer interface {
	SyncProduct(ctx context.Context, productID string) (*storyblok.Story, error)
	ForceSyncProduct(ctx context.Context, productID string) (*storyblok.Story, error)
}

type productStory struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	Handle             string  `json:"handle"`
	StoryblokEditorURL *string `json:"storyblok_editor_url"`
}

type listStoriesResponse struct {
	Products []productStory `json:"products"`
	Count    int            `json:"count"`
	Limit    int            `json:"limit"`
	Offset   int            `json:"offset"`
}

type editorURLResponse struct {
	StoryblokEditorURL string `json:"storyblok_editor_url"`
}

type bulkSyncRequest struct {
	All         bool     `json:"all"`
	ProductsIDs []string `json:"products_ids" validate:"omitempty,dive,required"`
	ProductIDs  []string `json:"product_ids" validate:"omitempty,dive,required"`
}

type bulkSyncResponse struct {
	EventID string `json:"event_id"`
}

// ListStories pages the catalog and joins each product with its story link.
func ListStories(catalog CatalogLister, finder StoryFinder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		win, err := validators.ParseWindow(r, listWindow)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		page, err := catalog.ListProducts(ctx, win.Offset, win.Limit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		ids := make([]string, 0, len(page.Products))
		for _, p := range page.Products {
			ids = append(ids, p.ID)
		}
		stories, err := finder.ListByProductIDs(ctx, ids)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		byProduct := make(map[string]int64, len(stories))
		for _, s := range stories {
			if s.Content.MedusaProductID != "" {
				byProduct[s.Content.MedusaProductID] = s.ID
			}
		}

		out := listStoriesResponse{
			Products: make([]productStory, 0, len(page.Products)),
			Count:    page.Count,
			Limit:    win.Limit,
			Offset:   win.Offset,
		}
		for _, p := range page.Products {
			item := productStory{ID: p.ID, Name: p.Title, Handle: p.Handle}
			if storyID, ok := byProduct[p.ID]; ok {
				url := finder.EditorURL(storyID)
				item.StoryblokEditorURL = &url
			}
			out.Products = append(out.Products, item)
		}

		responses.WriteJSON(w, http.StatusOK, out)
	}
}

// GetStory returns the editor URL of a product's story.
func GetStory(finder StoryFinder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		productID := strings.TrimSpace(chi.URLParam(r, "productID"))
		ctx = logg.WithProductID(ctx, productID)

		story, err := finder.RetrieveByProductID(ctx, productID)
		if err == nil && story == nil {
			err = pkgerrors.New(pkgerrors.CodeNotFound, "story not found")
		}
		if err != nil {
			logg.Error(ctx, "retrieve product story", err)
			responses.WriteStatus(w, http.StatusInternalServerError)
			return
		}

		responses.WriteJSON(w, http.StatusOK, editorURLResponse{StoryblokEditorURL: finder.EditorURL(story.ID)})
	}
}

// SyncStory creates the story when missing and syncs its variants.
func SyncStory(syncer ProductSyncer, finder StoryFinder, logg *logger.Logger) http.HandlerFunc {
	return runSync("sync product story", syncer.SyncProduct, finder, logg)
}

// ForceSyncStory overwrites the story gallery and variants from the catalog.
func ForceSyncStory(syncer ProductSyncer, finder StoryFinder, logg *logger.Logger) http.HandlerFunc {
	return runSync("force sync product story", syncer.ForceSyncProduct, finder, logg)
}

func runSync(name string, run func(context.Context, string) (*storyblok.Story, error), finder StoryFinder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		productID := strings.TrimSpace(chi.URLParam(r, "productID"))
		ctx = logg.WithProductID(ctx, productID)

		story, err := run(ctx, productID)
		if err == nil && story == nil {
			err = pkgerrors.New(pkgerrors.CodeUnexpectedState, "story missing after sync")
		}
		if err != nil {
			logg.Error(ctx, name, err)
			responses.WriteStatus(w, responses.StatusFor(err))
			return
		}

		responses.WriteJSON(w, http.StatusOK, editorURLResponse{StoryblokEditorURL: finder.EditorURL(story.ID)})
	}
}

// BulkSync queues a bulk sync run.
func BulkSync(svc bulk.Service, logg *logger.Logger) http.HandlerFunc {
	return enqueueBulk(svc, false, logg)
}

// BulkForceSync queues a bulk force-sync run.
func BulkForceSync(svc bulk.Service, logg *logger.Logger) http.HandlerFunc {
	return enqueueBulk(svc, true, logg)
}

func enqueueBulk(svc bulk.Service, force bool, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var payload bulkSyncRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		ids := payload.ProductIDs
		if len(ids) == 0 {
			ids = payload.ProductsIDs
		}

		req := bulk.Request{All: payload.All, ProductIDs: ids, Force: force}
		if subject := middleware.SubjectFromContext(ctx); subject != "" {
			req.Actor = &outbox.ActorRef{Subject: subject, Role: middleware.RoleFromContext(ctx)}
		}

		eventID, err := svc.Enqueue(ctx, req)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteJSON(w, http.StatusAccepted, bulkSyncResponse{EventID: eventID})
	}
}
