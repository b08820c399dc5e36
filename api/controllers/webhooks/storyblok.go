package webhooks

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"

	"github.com/angelmondragon/storyblok-sync/api/responses"
	pkgerrors "github.com/angelmondragon/storyblok-sync/pkg/errors"
	"github.com/angelmondragon/storyblok-sync/pkg/logger"
)

const (
	actionPublished = "published"
	actionDeleted   = "deleted"
	maxWebhookBody  = 64 << 10
)

// StoryWorkflows applies CMS callbacks to the commerce catalog.
type StoryWorkflows interface {
	StoryPublished(ctx context.Context, storyID int64) error
	StoryDeleted(ctx context.Context, storyID int64) error
}

type storyWebhookPayload struct {
	StoryID  int64  `json:"story_id"`
	Action   string `json:"action"`
	SpaceID  int64  `json:"space_id"`
	FullSlug string `json:"full_slug"`
}

// StoryblokUpdate handles the story publish webhook.
func StoryblokUpdate(svc StoryWorkflows, secret string, logg *logger.Logger) http.HandlerFunc {
	return storyWebhook(actionPublished, secret, logg, func(ctx context.Context, storyID int64) error {
		return svc.StoryPublished(ctx, storyID)
	})
}

// StoryblokDelete handles the story delete webhook.
func StoryblokDelete(svc StoryWorkflows, secret string, logg *logger.Logger) http.HandlerFunc {
	return storyWebhook(actionDeleted, secret, logg, func(ctx context.Context, storyID int64) error {
		return svc.StoryDeleted(ctx, storyID)
	})
}

func storyWebhook(action, secret string, logg *logger.Logger, run func(context.Context, int64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if !tokenMatches(secret, r.URL.Query().Get("token")) {
			logg.Warn(logg.WithField(ctx, "action", action), "storyblok webhook rejected")
			responses.WriteStatus(w, responses.StatusFor(pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook secret mismatch")))
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			logg.Error(ctx, "read storyblok webhook", err)
			responses.WriteStatus(w, http.StatusInternalServerError)
			return
		}

		var payload storyWebhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			logg.Warn(logg.WithField(ctx, "error", err.Error()), "storyblok webhook body ignored")
			responses.WriteStatus(w, http.StatusOK)
			return
		}

		ctx = logg.WithStoryID(ctx, payload.StoryID)
		if payload.Action != action {
			logg.Info(logg.WithField(ctx, "action", payload.Action), "storyblok webhook action ignored")
			responses.WriteStatus(w, http.StatusOK)
			return
		}

		if err := run(ctx, payload.StoryID); err != nil {
			logg.Error(logg.WithField(ctx, "full_slug", payload.FullSlug), "storyblok webhook failed", err)
			responses.WriteStatus(w, responses.StatusFor(err))
			return
		}

		responses.WriteStatus(w, http.StatusOK)
	}
}

// tokenMatches passes every request when no secret is configured.
func tokenMatches(secret, token string) bool {
	if secret == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(token)) == 1
}
