package storyblok

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/storyblok-sync/pkg/config"
	pkgerrors "github.com/angelmondragon/storyblok-sync/pkg/errors"
	"github.com/angelmondragon/storyblok-sync/pkg/logger"
)

const maxErrorBody = 512

// APIError describes a non-2xx answer from Storyblok.
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Body)
}

// UpstreamStatus exposes the Storyblok status code to error logging.
func (e *APIError) UpstreamStatus() int { return e.Status }

// IsStatus reports whether err carries an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// Client talks to the management API (writes, assets) and the content
// delivery API (story reads) of one space.
type Client struct {
	http                *http.Client
	hosts               Hosts
	accessToken         string
	personalAccessToken string
	spaceID             int64
	version             string
	productsFolderName  string
	logg                *logger.Logger
	now                 func() time.Time
}

// Option tweaks a Client, mostly for tests.
type Option func(*Client)

// WithHosts overrides the region hosts.
func WithHosts(h Hosts) Option {
	return func(c *Client) { c.hosts = h }
}

// WithClock overrides the cache-busting clock.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient builds a client for the configured space. httpClient should carry
// the retrying transport.
func NewClient(cfg config.StoryblokConfig, httpClient *http.Client, logg *logger.Logger, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	c := &Client{
		http:                httpClient,
		hosts:               RegionHosts(cfg.Region),
		accessToken:         cfg.AccessToken,
		personalAccessToken: cfg.PersonalAccessToken,
		spaceID:             cfg.SpaceID,
		version:             cfg.Version,
		productsFolderName:  strings.Trim(cfg.ProductsFolderName, "/"),
		logg:                logg,
		now:                 time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.version == "" {
		c.version = "draft"
	}
	return c
}

// SpaceID returns the configured space.
func (c *Client) SpaceID() int64 {
	return c.spaceID
}

func (c *Client) spacePath(format string, args ...any) string {
	return fmt.Sprintf("/spaces/%d", c.spaceID) + fmt.Sprintf(format, args...)
}

// management issues an authenticated management API call. out may be nil.
func (c *Client) management(ctx context.Context, op, method, path string, query url.Values, body any, out any) error {
	endpoint := c.hosts.Management + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInvalidData, err, op+": encode body")
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, op+": build request")
	}
	req.Header.Set("Authorization", c.personalAccessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, op, out)
}

// content issues a content delivery API call authenticated by access token.
func (c *Client) content(ctx context.Context, op, path string, query url.Values, out any) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("token", c.accessToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.hosts.Content+path+"?"+query.Encode(), nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, op+": build request")
	}
	return c.do(req, op, out)
}

func (c *Client) do(req *http.Request, op string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUnexpectedState, err, op)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
		return pkgerrors.Wrap(pkgerrors.CodeUnexpectedState, apiErr, op)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUnexpectedState, err, op+": decode response")
	}
	return nil
}
