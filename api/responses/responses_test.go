package responses

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/storyblok-sync/pkg/errors"
	"github.com/angelmondragon/storyblok-sync/pkg/logger"
)

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestSuccessWriters(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteSuccess(rec, map[string]int{"queued": 3})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	env := decode[SuccessEnvelope](t, rec)
	assert.Equal(t, map[string]any{"queued": float64(3)}, env.Data)

	rec = httptest.NewRecorder()
	WriteJSON(rec, http.StatusAccepted, map[string]string{"event_id": "evt"})
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, map[string]string{"event_id": "evt"}, decode[map[string]string](t, rec))

	rec = httptest.NewRecorder()
	WriteStatus(rec, http.StatusNoContent)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, rec.Body.Len())
}

func TestStatusFor(t *testing.T) {
	wrapped := fmt.Errorf("verify: %w", pkgerrors.New(pkgerrors.CodeUnauthorized, "bad signature"))
	assert.Equal(t, http.StatusUnauthorized, StatusFor(wrapped))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(pkgerrors.New(pkgerrors.CodeNotFound, "story")))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("boom")))
}

func TestWriteError(t *testing.T) {
	cases := []struct {
		name        string
		err         error
		status      int
		code        pkgerrors.Code
		message     string
		wantDetails bool
	}{
		{
			name:        "validation echoes message and details",
			err:         pkgerrors.New(pkgerrors.CodeValidation, "bad input").WithDetails(map[string]string{"all": "is required"}),
			status:      http.StatusBadRequest,
			code:        pkgerrors.CodeValidation,
			message:     "bad input",
			wantDetails: true,
		},
		{
			name:    "not found echoes message",
			err:     fmt.Errorf("lookup: %w", pkgerrors.New(pkgerrors.CodeNotFound, "story 42 not found")),
			status:  http.StatusNotFound,
			code:    pkgerrors.CodeNotFound,
			message: "story 42 not found",
		},
		{
			name:    "dependency hides message keeps details",
			err:     pkgerrors.New(pkgerrors.CodeDependency, "storyblok 502 from mapi").WithDetails(map[string]int{"upstream": 502}),
			status:  http.StatusServiceUnavailable,
			code:    pkgerrors.CodeDependency,
			message: "dependency unavailable",
			wantDetails: true,
		},
		{
			name:    "untyped becomes internal",
			err:     errors.New("pq: connection refused"),
			status:  http.StatusInternalServerError,
			code:    pkgerrors.CodeInternal,
			message: "internal server error",
		},
		{
			name:    "nil error",
			status:  http.StatusInternalServerError,
			code:    pkgerrors.CodeInternal,
			message: "internal server error",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(t.Context(), logger.Nop(), rec, tc.err)

			assert.Equal(t, tc.status, rec.Code)
			body := decode[ErrorEnvelope](t, rec).Error
			assert.Equal(t, string(tc.code), body.Code)
			assert.Equal(t, tc.message, body.Message)
			assert.Equal(t, tc.wantDetails, body.Details != nil)
		})
	}
}

func TestWriteErrorLogsClientFaultsAtWarn(t *testing.T) {
	var buf strings.Builder
	logg := logger.New(logger.Options{ServiceName: "api-test", Output: &buf})

	WriteError(t.Context(), logg, httptest.NewRecorder(), pkgerrors.New(pkgerrors.CodeConflict, "already queued"))
	assert.Contains(t, buf.String(), `"level":"warn"`)

	buf.Reset()
	WriteError(t.Context(), logg, httptest.NewRecorder(), errors.New("boom"))
	assert.Contains(t, buf.String(), `"level":"error"`)
}

func TestWriteJSONUnencodablePayloadBecomesInternalError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusOK, map[string]any{"ch": make(chan int)})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeInternal), decode[ErrorEnvelope](t, rec).Error.Code)
}
