package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/angelmondragon/storyblok-sync/internal/storyblok"
	pkgerrors "github.com/angelmondragon/storyblok-sync/pkg/errors"
	"github.com/angelmondragon/storyblok-sync/pkg/logger"
	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/singleflight"
)

const defaultMaxImageBytes int64 = 25 << 20

// Uploader turns source image URLs into library assets, reusing an asset with
// the same normalized filename when the folder already holds one.
type Uploader struct {
	store    *Store
	fetch    *http.Client
	maxBytes int64
	logg     *logger.Logger
	group    singleflight.Group
}

// NewUploader builds an uploader. fetch downloads source images.
func NewUploader(store *Store, fetch *http.Client, maxBytes int64, logg *logger.Logger) (*Uploader, error) {
	if store == nil {
		return nil, errors.New("asset store required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	if fetch == nil {
		fetch = http.DefaultClient
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxImageBytes
	}
	return &Uploader{store: store, fetch: fetch, maxBytes: maxBytes, logg: logg}, nil
}

// Upload returns an asset for sourceURL inside folderID with alt, name and
// title set. Identical concurrent calls share one upload.
func (u *Uploader) Upload(ctx context.Context, folderID int64, sourceURL, altText string) (storyblok.AssetRef, error) {
	filename := NormalizeFilename(sourceURL)
	key := strconv.FormatInt(folderID, 10) + "/" + filename
	v, err, _ := u.group.Do(key, func() (any, error) {
		return u.upload(ctx, folderID, sourceURL, filename, altText)
	})
	if err != nil {
		return storyblok.AssetRef{}, err
	}
	return decorate(v.(storyblok.AssetRef), altText), nil
}

func (u *Uploader) upload(ctx context.Context, folderID int64, sourceURL, filename, altText string) (storyblok.AssetRef, error) {
	ctx = u.logg.WithFields(ctx, map[string]any{"folder_id": folderID, "filename": filename})

	existing, err := u.store.ListAssetsInFolder(ctx, folderID)
	if err != nil {
		return storyblok.AssetRef{}, err
	}
	if ref, ok := existing[filename]; ok {
		u.logg.Debug(ctx, "reusing existing asset")
		return ref, nil
	}

	data, err := u.download(ctx, sourceURL)
	if err != nil {
		return storyblok.AssetRef{}, err
	}
	contentType, size, err := probeImage(data)
	if err != nil {
		return storyblok.AssetRef{}, err
	}

	signed, err := u.store.api.RequestSignedUpload(ctx, filename, size, folderID)
	if err != nil {
		return storyblok.AssetRef{}, err
	}
	if err := u.store.api.PushSignedUpload(ctx, signed, filename, contentType, data); err != nil {
		return storyblok.AssetRef{}, err
	}
	asset, err := u.store.api.FinishUpload(ctx, signed.ID)
	if err != nil {
		return storyblok.AssetRef{}, pkgerrors.Wrap(pkgerrors.CodeUnexpectedState, err, "finish asset upload")
	}
	if asset.ID == 0 {
		asset.ID = signed.ID
	}
	if asset.Filename == "" {
		asset.Filename = signed.PrettyURL
	}
	asset.Filename = PublicURL(asset.Filename)
	u.logg.Info(u.logg.WithField(ctx, "asset_id", asset.ID), "asset uploaded")
	return asset.Ref(), nil
}

func (u *Uploader) download(ctx context.Context, sourceURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnexpectedState, err, "fetch image")
	}
	resp, err := u.fetch.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnexpectedState, err, "fetch image")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, pkgerrors.Newf(pkgerrors.CodeUnexpectedState, "fetch image: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, u.maxBytes+1))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnexpectedState, err, "read image")
	}
	if int64(len(data)) > u.maxBytes {
		return nil, pkgerrors.Newf(pkgerrors.CodeInvalidData, "image exceeds %d bytes", u.maxBytes)
	}
	return data, nil
}

// probeImage returns the sniffed content type and the "WxH" size descriptor.
func probeImage(data []byte) (string, string, error) {
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", "", pkgerrors.Newf(pkgerrors.CodeInvalidData, "source is %s, not an image", mt.String())
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", "", pkgerrors.Wrap(pkgerrors.CodeInvalidData, err, "read image dimensions")
	}
	return mt.String(), fmt.Sprintf("%dx%d", cfg.Width, cfg.Height), nil
}

func decorate(ref storyblok.AssetRef, altText string) storyblok.AssetRef {
	ref.Alt = firstNonEmpty(altText, ref.Alt)
	ref.Name = firstNonEmpty(altText, ref.Name)
	ref.Title = firstNonEmpty(altText, ref.Title)
	ref.Fieldtype = storyblok.FieldtypeAsset
	if ref.MetaData == nil {
		ref.MetaData = map[string]any{}
	}
	return ref
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
