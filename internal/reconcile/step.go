package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/storyblok-sync/internal/stories"
	pkgerrors "github.com/angelmondragon/storyblok-sync/pkg/errors"
	"github.com/sethvargo/go-retry"
)

const (
	defaultStepTimeout = 2 * time.Minute
	defaultBackoffBase = 500 * time.Millisecond
	defaultBackoffCap  = 10 * time.Second
	jitterPercent      = 20
)

// step runs fn under a per-attempt timeout and retries transient failures
// with capped exponential backoff.
func (w *Workflows) step(ctx context.Context, name string, fn func(context.Context) error) error {
	attempt := 0
	return retry.Do(ctx, w.backoff(), func(ctx context.Context) error {
		attempt++
		stepCtx, cancel := context.WithTimeout(ctx, w.stepTimeout)
		defer cancel()
		err := fn(stepCtx)
		if err == nil {
			return nil
		}
		if !Retryable(err) {
			return err
		}
		w.logg.Warn(w.logg.WithFields(ctx, map[string]any{"step": name, "attempt": attempt, "error": err.Error()}), "sync step failed, retrying")
		return retry.RetryableError(err)
	})
}

func (w *Workflows) backoff() retry.Backoff {
	b := retry.NewExponential(w.backoffBase)
	b = retry.WithJitterPercent(jitterPercent, b)
	b = retry.WithCappedDuration(w.backoffCap, b)
	return retry.WithMaxRetries(w.stepRetries, b)
}

// Retryable keeps absent entities, bad data and auth failures out of the
// retry loop. A NOT_FOUND that wraps a transport failure is still retried.
func Retryable(err error) bool {
	if errors.Is(err, stories.ErrParentStoryMissing) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	switch pkgerrors.CodeOf(err) {
	case pkgerrors.CodeNotFound:
		return pkgerrors.IsCode(err, pkgerrors.CodeUnexpectedState)
	case pkgerrors.CodeInvalidData, pkgerrors.CodeUnauthorized, pkgerrors.CodeForbidden, pkgerrors.CodeValidation:
		return false
	}
	return pkgerrors.IsRetryable(err)
}
