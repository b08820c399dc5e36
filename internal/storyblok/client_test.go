package storyblok

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/storyblok-sync/pkg/config"
	pkgerrors "github.com/angelmondragon/storyblok-sync/pkg/errors"
	"github.com/angelmondragon/storyblok-sync/pkg/logger"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := config.StoryblokConfig{
		AccessToken:         "public-token",
		PersonalAccessToken: "pat",
		SpaceID:             42,
		Version:             "draft",
		ProductsFolderName:  "products",
	}
	return NewClient(cfg, srv.Client(), logger.Nop(),
		WithHosts(Hosts{Management: srv.URL + "/v1", Content: srv.URL + "/v2"}),
		WithClock(func() time.Time { return time.Unix(1700000000, 0) }),
	)
}

func TestCreateAndUpdateStory(t *testing.T) {
	var seenForce string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "pat" {
			t.Errorf("missing management token")
		}
		var body map[string]json.RawMessage
		_ = json.NewDecoder(r.Body).Decode(&body)
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/spaces/42/stories":
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"story":{"id":9,"slug":"shirt","name":"Shirt","content":{"component":"product","medusaProductId":"prod_1"}}}`))
		case r.Method == http.MethodPut && r.URL.Path == "/v1/spaces/42/stories/9":
			_ = json.Unmarshal(body["force_update"], &seenForce)
			_, _ = w.Write([]byte(`{"story":{"id":9,"slug":"shirt-new","content":{}}}`))
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	ctx := context.Background()
	created, err := client.CreateStory(ctx, Story{Name: "Shirt", Slug: "shirt", ParentID: 5, Content: ProductContent{MedusaProductID: "prod_1"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID != 9 || created.Content.MedusaProductID != "prod_1" {
		t.Fatalf("unexpected created story %+v", created)
	}
	created.Slug = "shirt-new"
	updated, err := client.UpdateStory(ctx, *created)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Slug != "shirt-new" || seenForce != "1" {
		t.Fatalf("unexpected update result slug=%s force=%s", updated.Slug, seenForce)
	}
}

func TestListStoriesQuery(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/v2/cdn/stories" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if q.Get("token") != "public-token" || q.Get("version") != "draft" || q.Get("starts_with") != "products/" {
			t.Errorf("unexpected query %v", q)
		}
		if q.Get("cv") != "1700000000" {
			t.Errorf("cache version missing: %v", q)
		}
		if q.Get("filter_query[medusaProductId][in]") != "prod_1,prod_2" {
			t.Errorf("unexpected in filter %v", q)
		}
		_, _ = w.Write([]byte(`{"stories":[{"id":1,"slug":"a","content":{"medusaProductId":"prod_1"}}]}`))
	}))
	stories, err := client.ListStories(context.Background(), StoryQuery{ProductIDsIn: []string{"prod_1", "prod_2"}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stories) != 1 || stories[0].Content.MedusaProductID != "prod_1" {
		t.Fatalf("unexpected stories %+v", stories)
	}
}

func TestNon2xxIsUnexpectedState(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"slug taken"}`))
	}))
	err := client.DeleteStory(context.Background(), 3)
	if !pkgerrors.IsCode(err, pkgerrors.CodeUnexpectedState) {
		t.Fatalf("expected unexpected state, got %v", err)
	}
	if !IsStatus(err, http.StatusUnprocessableEntity) {
		t.Fatalf("expected status 422 in chain, got %v", err)
	}
}

func TestListAssetsPaginates(t *testing.T) {
	pages := 0
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages++
		if r.URL.Query().Get("in_folder") != "77" || r.URL.Query().Get("per_page") != "100" {
			t.Errorf("unexpected query %v", r.URL.Query())
		}
		count := 100
		if r.URL.Query().Get("page") == "2" {
			count = 3
		}
		assets := make([]Asset, count)
		for i := range assets {
			assets[i] = Asset{ID: int64(i + 1), Filename: "https://a.storyblok.com/f/42/x.png"}
		}
		_ = json.NewEncoder(w).Encode(assetsEnvelope{Assets: assets})
	}))
	assets, err := client.ListAssets(context.Background(), 77)
	if err != nil {
		t.Fatalf("list assets: %v", err)
	}
	if len(assets) != 103 || pages != 2 {
		t.Fatalf("expected 103 assets over 2 pages, got %d over %d", len(assets), pages)
	}
}

func TestSignedUploadFlow(t *testing.T) {
	var gotFields []string
	var gotFile string
	var signBody signedUploadRequest
	var srvURL string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/spaces/42/assets/":
			_ = json.NewDecoder(r.Body).Decode(&signBody)
			_, _ = w.Write([]byte(`{"id":501,"post_url":"` + srvURL + `/bucket","fields":{"key":"f/42/shirt.png","policy":"p"}}`))
		case r.Method == http.MethodPost && r.URL.Path == "/bucket":
			_, params, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
			reader := multipart.NewReader(r.Body, params["boundary"])
			for {
				part, err := reader.NextPart()
				if err != nil {
					break
				}
				data, _ := io.ReadAll(part)
				if part.FormName() == "file" {
					gotFile = string(data)
				} else {
					gotFields = append(gotFields, part.FormName())
				}
			}
			w.WriteHeader(http.StatusNoContent)
		case r.URL.Path == "/v1/spaces/42/assets/501/finish_upload":
			_, _ = w.Write([]byte(`{"id":501,"filename":"https://s3.amazonaws.com/a.storyblok.com/f/42/shirt.png"}`))
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	}))
	srvURL = strings.TrimSuffix(client.hosts.Management, "/v1")

	ctx := context.Background()
	signed, err := client.RequestSignedUpload(ctx, "shirt.png", "800x600", 77)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if signBody.Size != "800x600" || signBody.AssetFolderID != 77 || signBody.ValidateUpload != 1 {
		t.Fatalf("unexpected sign body %+v", signBody)
	}
	if err := client.PushSignedUpload(ctx, signed, "shirt.png", "image/png", []byte("PNGDATA")); err != nil {
		t.Fatalf("push: %v", err)
	}
	if gotFile != "PNGDATA" || len(gotFields) != 2 {
		t.Fatalf("unexpected multipart fields=%v file=%q", gotFields, gotFile)
	}
	asset, err := client.FinishUpload(ctx, signed.ID)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if asset.ID != 501 {
		t.Fatalf("unexpected asset %+v", asset)
	}
}

func TestSignedUploadWithoutPostURLIsInvalidData(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":1}`))
	}))
	_, err := client.RequestSignedUpload(context.Background(), "x.png", "1x1", 1)
	if pkgerrors.CodeOf(err) != pkgerrors.CodeInvalidData {
		t.Fatalf("expected invalid data, got %v", err)
	}
}
