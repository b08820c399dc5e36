package storyblok

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"

	pkgerrors "github.com/angelmondragon/storyblok-sync/pkg/errors"
)

const assetsPerPage = 100

// ListAssets returns every asset in folderID, following pagination.
func (c *Client) ListAssets(ctx context.Context, folderID int64) ([]Asset, error) {
	var all []Asset
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("in_folder", strconv.FormatInt(folderID, 10))
		q.Set("per_page", strconv.Itoa(assetsPerPage))
		q.Set("page", strconv.Itoa(page))
		var resp assetsEnvelope
		if err := c.management(ctx, "storyblok.list_assets", http.MethodGet, c.spacePath("/assets"), q, nil, &resp); err != nil {
			return nil, err
		}
		all = append(all, resp.Assets...)
		if len(resp.Assets) < assetsPerPage {
			return all, nil
		}
	}
}

// ListAssetFolders returns every asset folder of the space.
func (c *Client) ListAssetFolders(ctx context.Context) ([]AssetFolder, error) {
	var resp assetFoldersEnvelope
	if err := c.management(ctx, "storyblok.list_asset_folders", http.MethodGet, c.spacePath("/asset_folders/"), nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.AssetFolders, nil
}

// CreateAssetFolder creates a root-level asset folder.
func (c *Client) CreateAssetFolder(ctx context.Context, name string) (*AssetFolder, error) {
	var resp assetFolderEnvelope
	body := assetFolderEnvelope{AssetFolder: AssetFolder{Name: name}}
	if err := c.management(ctx, "storyblok.create_asset_folder", http.MethodPost, c.spacePath("/asset_folders/"), nil, body, &resp); err != nil {
		return nil, err
	}
	if resp.AssetFolder.ID == 0 {
		return nil, pkgerrors.Newf(pkgerrors.CodeUnexpectedState, "asset folder %q created without id", name)
	}
	return &resp.AssetFolder, nil
}

// DeleteAssetFolder removes an (empty) asset folder.
func (c *Client) DeleteAssetFolder(ctx context.Context, folderID int64) error {
	return c.management(ctx, "storyblok.delete_asset_folder", http.MethodDelete, c.spacePath("/asset_folders/%d", folderID), nil, nil, nil)
}

// DeleteAsset removes one asset.
func (c *Client) DeleteAsset(ctx context.Context, assetID int64) error {
	return c.management(ctx, "storyblok.delete_asset", http.MethodDelete, c.spacePath("/assets/%d", assetID), nil, nil, nil)
}

// RequestSignedUpload registers a new asset and returns the storage form
// to push the bytes to. size is "WIDTHxHEIGHT".
func (c *Client) RequestSignedUpload(ctx context.Context, filename, size string, folderID int64) (*SignedUpload, error) {
	body := signedUploadRequest{
		Filename:       filename,
		Size:           size,
		AssetFolderID:  folderID,
		ValidateUpload: 1,
	}
	var resp SignedUpload
	if err := c.management(ctx, "storyblok.sign_upload", http.MethodPost, c.spacePath("/assets/"), nil, body, &resp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInvalidData, err, "signed upload rejected")
	}
	if resp.PostURL == "" {
		return nil, pkgerrors.Newf(pkgerrors.CodeInvalidData, "signed upload for %s has no post_url", filename)
	}
	return &resp, nil
}

// PushSignedUpload posts the file as multipart form data to the storage URL.
// Signed fields go first, the file last.
func (c *Client) PushSignedUpload(ctx context.Context, signed *SignedUpload, filename, contentType string, data []byte) error {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	for k, v := range signed.Fields {
		if err := form.WriteField(k, v); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build upload form")
		}
	}
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", contentType)
	part, err := form.CreatePart(header)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build upload form")
	}
	if _, err := part.Write(data); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build upload form")
	}
	if err := form.Close(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build upload form")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, signed.PostURL, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build upload request")
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	resp, err := c.http.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUnexpectedState, err, "asset upload failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{Op: "storyblok.push_upload", Status: resp.StatusCode, Body: string(snippet)}
		return pkgerrors.Wrap(pkgerrors.CodeUnexpectedState, apiErr, "asset upload failed")
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// FinishUpload finalizes a pushed asset and returns it.
func (c *Client) FinishUpload(ctx context.Context, assetID int64) (*Asset, error) {
	var asset Asset
	path := c.spacePath("/assets/%d/finish_upload", assetID)
	if err := c.management(ctx, "storyblok.finish_upload", http.MethodGet, path, nil, nil, &asset); err != nil {
		return nil, err
	}
	return &asset, nil
}
