package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/storyblok-sync/pkg/errors"
)

// Window is an offset/limit slice of a listing.
type Window struct {
	Offset int
	Limit  int
}

// WindowLimits bounds the offset and limit query parameters.
type WindowLimits struct {
	DefaultLimit int
	MaxLimit     int
	MaxOffset    int
}

// ParseWindow reads ?offset= and ?limit= from r. Missing values fall back to
// zero and DefaultLimit.
func ParseWindow(r *http.Request, bounds WindowLimits) (Window, error) {
	offset, err := ParseQueryInt(r, "offset", 0, 0, bounds.MaxOffset)
	if err != nil {
		return Window{}, err
	}
	limit, err := ParseQueryInt(r, "limit", bounds.DefaultLimit, 1, bounds.MaxLimit)
	if err != nil {
		return Window{}, err
	}
	return Window{Offset: offset, Limit: limit}, nil
}

// ParseQueryInt parses an integer query parameter constrained to [min, max].
func ParseQueryInt(r *http.Request, key string, fallback, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "query parameter must be an integer").
			WithDetails(map[string]any{"field": key, "value": raw})
	}
	if value < min || value > max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").
			WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}
