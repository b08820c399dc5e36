package webhooks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/angelmondragon/storyblok-sync/pkg/errors"
	"github.com/angelmondragon/storyblok-sync/pkg/logger"
)

type stubStoryWorkflows struct {
	published []int64
	deleted   []int64
	err       error
}

func (s *stubStoryWorkflows) StoryPublished(_ context.Context, storyID int64) error {
	s.published = append(s.published, storyID)
	return s.err
}

func (s *stubStoryWorkflows) StoryDeleted(_ context.Context, storyID int64) error {
	s.deleted = append(s.deleted, storyID)
	return s.err
}

func serveWebhook(h http.HandlerFunc, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStoryblokUpdateWebhook(t *testing.T) {
	const body = `{"story_id":42,"action":"published","space_id":7,"full_slug":"products/shirt","text":"ignored"}`

	cases := []struct {
		name      string
		secret    string
		target    string
		body      string
		err       error
		status    int
		published int
	}{
		{name: "published", secret: "s3cret", target: "/webhook/story/update?token=s3cret", body: body, status: http.StatusOK, published: 1},
		{name: "no secret configured", target: "/webhook/story/update", body: body, status: http.StatusOK, published: 1},
		{name: "wrong token", secret: "s3cret", target: "/webhook/story/update?token=nope", body: body, status: http.StatusUnauthorized},
		{name: "missing token", secret: "s3cret", target: "/webhook/story/update", body: body, status: http.StatusUnauthorized},
		{name: "other action", target: "/webhook/story/update", body: `{"story_id":42,"action":"unpublished"}`, status: http.StatusOK},
		{name: "malformed body", target: "/webhook/story/update", body: `{`, status: http.StatusOK},
		{name: "workflow failure", target: "/webhook/story/update", body: body, err: pkgerrors.New(pkgerrors.CodeNotFound, "story not found"), status: http.StatusInternalServerError, published: 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubStoryWorkflows{err: tc.err}
			rec := serveWebhook(StoryblokUpdate(svc, tc.secret, logger.Nop()), tc.target, tc.body)
			if rec.Code != tc.status {
				t.Fatalf("expected %d got %d", tc.status, rec.Code)
			}
			if rec.Body.Len() != 0 {
				t.Fatalf("expected empty body, got %q", rec.Body.String())
			}
			if len(svc.published) != tc.published {
				t.Fatalf("expected %d publish calls, got %v", tc.published, svc.published)
			}
			if tc.published > 0 && svc.published[0] != 42 {
				t.Fatalf("unexpected story id %d", svc.published[0])
			}
			if len(svc.deleted) != 0 {
				t.Fatalf("update route must not delete, got %v", svc.deleted)
			}
		})
	}
}

func TestStoryblokDeleteWebhook(t *testing.T) {
	svc := &stubStoryWorkflows{}
	h := StoryblokDelete(svc, "", logger.Nop())

	rec := serveWebhook(h, "/webhook/story/delete", `{"story_id":9,"action":"published"}`)
	if rec.Code != http.StatusOK || len(svc.deleted) != 0 {
		t.Fatalf("expected published action to be ignored, got %d %v", rec.Code, svc.deleted)
	}

	rec = serveWebhook(h, "/webhook/story/delete", `{"story_id":9,"action":"deleted"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if len(svc.deleted) != 1 || svc.deleted[0] != 9 {
		t.Fatalf("expected delete for story 9, got %v", svc.deleted)
	}
}

func TestStoryblokDeleteWebhookChecksSecret(t *testing.T) {
	body := `{"story_id":9,"action":"deleted"}`
	cases := []struct {
		name    string
		target  string
		status  int
		deleted int
	}{
		{name: "wrong token", target: "/webhook/story/delete?token=nope", status: http.StatusUnauthorized},
		{name: "missing token", target: "/webhook/story/delete", status: http.StatusUnauthorized},
		{name: "matching token", target: "/webhook/story/delete?token=s3cret", status: http.StatusOK, deleted: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubStoryWorkflows{}
			rec := serveWebhook(StoryblokDelete(svc, "s3cret", logger.Nop()), tc.target, body)
			if rec.Code != tc.status {
				t.Fatalf("expected %d got %d", tc.status, rec.Code)
			}
			if len(svc.deleted) != tc.deleted {
				t.Fatalf("expected %d deletes, got %v", tc.deleted, svc.deleted)
			}
		})
	}
}
