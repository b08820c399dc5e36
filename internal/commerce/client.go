package commerce

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/angelmondragon/storyblok-sync/pkg/config"
	pkgerrors "github.com/angelmondragon/storyblok-sync/pkg/errors"
	"github.com/angelmondragon/storyblok-sync/pkg/logger"
)

const (
	productFields = "id,title,handle,thumbnail,metadata,*images,*variants,*variants.images"
	listFields    = "id,title,handle"
	maxErrorBody  = 512
)

// Client talks to the Medusa admin API.
type Client struct {
	http     *http.Client
	baseURL  string
	auth     string
	pageSize int
	logg     *logger.Logger
}

// NewClient builds a client. httpClient should carry the retrying transport.
func NewClient(cfg config.CommerceConfig, httpClient *http.Client, logg *logger.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Client{
		http:     httpClient,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		auth:     "Basic " + base64.StdEncoding.EncodeToString([]byte(cfg.APIKey+":")),
		pageSize: pageSize,
		logg:     logg,
	}
}

// PageSize is the default listing page size.
func (c *Client) PageSize() int {
	return c.pageSize
}

// GetProduct loads a product with its images and variants.
func (c *Client) GetProduct(ctx context.Context, productID string) (*Product, error) {
	q := url.Values{}
	q.Set("fields", productFields)
	var resp productEnvelope
	if err := c.do(ctx, "commerce.get_product", http.MethodGet, "/admin/products/"+url.PathEscape(productID), q, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Product, nil
}

// ListProducts pages through the catalog.
func (c *Client) ListProducts(ctx context.Context, offset, limit int) (*ProductPage, error) {
	if limit <= 0 {
		limit = c.pageSize
	}
	q := url.Values{}
	q.Set("fields", listFields)
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	var resp ProductPage
	if err := c.do(ctx, "commerce.list_products", http.MethodGet, "/admin/products", q, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Limit == 0 {
		resp.Limit = limit
	}
	resp.Offset = offset
	return &resp, nil
}

// ListProductIDs returns every product id of the catalog.
func (c *Client) ListProductIDs(ctx context.Context) ([]string, error) {
	var ids []string
	for offset := 0; ; {
		page, err := c.ListProducts(ctx, offset, c.pageSize)
		if err != nil {
			return nil, err
		}
		for _, p := range page.Products {
			ids = append(ids, p.ID)
		}
		offset += len(page.Products)
		c.logg.Debug(c.logg.WithField(ctx, "offset", offset), "catalog page loaded")
		if len(page.Products) == 0 || offset >= page.Count {
			return ids, nil
		}
	}
}

// ListVariants loads the variants of productID, restricted to ids when given.
// Pages are read until the reported count is reached.
func (c *Client) ListVariants(ctx context.Context, productID string, ids []string) ([]Variant, error) {
	q := url.Values{}
	q.Set("fields", "id,title,product_id,thumbnail,metadata,*images")
	q.Set("limit", strconv.Itoa(c.pageSize))
	for _, id := range ids {
		q.Add("id[]", id)
	}
	path := "/admin/products/" + url.PathEscape(productID) + "/variants"

	var variants []Variant
	for {
		q.Set("offset", strconv.Itoa(len(variants)))
		var resp variantsEnvelope
		if err := c.do(ctx, "commerce.list_variants", http.MethodGet, path, q, nil, &resp); err != nil {
			return nil, err
		}
		variants = append(variants, resp.Variants...)
		if len(resp.Variants) == 0 || len(variants) >= resp.Count {
			return variants, nil
		}
	}
}

// UpdateProduct applies a partial update and returns the updated product.
func (c *Client) UpdateProduct(ctx context.Context, productID string, in ProductUpdate) (*Product, error) {
	q := url.Values{}
	q.Set("fields", productFields)
	var resp productEnvelope
	if err := c.do(ctx, "commerce.update_product", http.MethodPost, "/admin/products/"+url.PathEscape(productID), q, in, &resp); err != nil {
		return nil, err
	}
	return &resp.Product, nil
}

// UpdateVariant applies a partial update to one variant.
func (c *Client) UpdateVariant(ctx context.Context, productID, variantID string, in VariantUpdate) error {
	path := fmt.Sprintf("/admin/products/%s/variants/%s", url.PathEscape(productID), url.PathEscape(variantID))
	return c.do(ctx, "commerce.update_variant", http.MethodPost, path, nil, in, nil)
}

// BatchVariantImages attaches and detaches product images on a variant.
func (c *Client) BatchVariantImages(ctx context.Context, productID, variantID string, batch ImageBatch) error {
	if batch.Add == nil {
		batch.Add = []string{}
	}
	if batch.Remove == nil {
		batch.Remove = []string{}
	}
	path := fmt.Sprintf("/admin/products/%s/variants/%s/images/batch", url.PathEscape(productID), url.PathEscape(variantID))
	return c.do(ctx, "commerce.batch_variant_images", http.MethodPost, path, nil, batch, nil)
}

// DeleteProduct removes a product.
func (c *Client) DeleteProduct(ctx context.Context, productID string) error {
	return c.do(ctx, "commerce.delete_product", http.MethodDelete, "/admin/products/"+url.PathEscape(productID), nil, nil, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body any, out any) error {
	endpoint := c.baseURL + path
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
	req.Header.Set("Authorization", c.auth)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUnexpectedState, err, op)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return pkgerrors.Newf(pkgerrors.CodeNotFound, "%s: not found", op)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return pkgerrors.Newf(pkgerrors.CodeUnexpectedState, "%s: status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInvalidData, err, op+": decode response")
	}
	return nil
}
