package assets

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/angelmondragon/storyblok-sync/internal/storyblok"
	pkgerrors "github.com/angelmondragon/storyblok-sync/pkg/errors"
	"github.com/angelmondragon/storyblok-sync/pkg/lock"
	"github.com/angelmondragon/storyblok-sync/pkg/logger"
	"go.uber.org/multierr"
)

const (
	folderLockScope    = "asset_folder"
	folderLockInterval = 200 * time.Millisecond
	folderLockAttempts = 25
)

// API is the slice of the Storyblok management API the store relies on.
type API interface {
	ListAssets(ctx context.Context, folderID int64) ([]storyblok.Asset, error)
	ListAssetFolders(ctx context.Context) ([]storyblok.AssetFolder, error)
	CreateAssetFolder(ctx context.Context, name string) (*storyblok.AssetFolder, error)
	DeleteAssetFolder(ctx context.Context, folderID int64) error
	DeleteAsset(ctx context.Context, assetID int64) error
	RequestSignedUpload(ctx context.Context, filename, size string, folderID int64) (*storyblok.SignedUpload, error)
	PushSignedUpload(ctx context.Context, signed *storyblok.SignedUpload, filename, contentType string, data []byte) error
	FinishUpload(ctx context.Context, assetID int64) (*storyblok.Asset, error)
}

// LockStore backs the per-slug folder creation lock. *redis.Client satisfies it.
type LockStore interface {
	lock.Store
	LockKey(scope, id string) string
}

// Store owns the asset folder and asset lifecycle of product galleries.
type Store struct {
	api     API
	locks   LockStore
	lockTTL time.Duration
	logg    *logger.Logger
}

// NewStore wires the store. locks may be nil, in which case folder creation
// relies on the re-list alone.
func NewStore(api API, locks LockStore, lockTTL time.Duration, logg *logger.Logger) (*Store, error) {
	if api == nil {
		return nil, errors.New("storyblok api required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	return &Store{api: api, locks: locks, lockTTL: lockTTL, logg: logg}, nil
}

// ListAssetsInFolder returns the folder's assets keyed by lowercased filename.
func (s *Store) ListAssetsInFolder(ctx context.Context, folderID int64) (map[string]storyblok.AssetRef, error) {
	list, err := s.api.ListAssets(ctx, folderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnexpectedState, err, "list assets in folder")
	}
	out := make(map[string]storyblok.AssetRef, len(list))
	for _, a := range list {
		out[AssetKey(a.Filename)] = a.Ref()
	}
	return out, nil
}

// GetOrCreateFolder returns the id of the folder named slug (case-insensitive),
// creating it when absent. Creation is serialized per slug across replicas and
// the folder list is re-read under the lock.
func (s *Store) GetOrCreateFolder(ctx context.Context, slug string) (int64, error) {
	name := strings.TrimSpace(slug)
	if name == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "folder slug is required")
	}
	if id, ok, err := s.findFolder(ctx, name); err != nil || ok {
		return id, err
	}

	release := s.lockFolder(ctx, name)
	defer release()

	if id, ok, err := s.findFolder(ctx, name); err != nil || ok {
		return id, err
	}
	folder, err := s.api.CreateAssetFolder(ctx, name)
	if err != nil {
		// a concurrent creator may have won without holding our lock
		if id, ok, findErr := s.findFolder(ctx, name); findErr == nil && ok {
			return id, nil
		}
		return 0, pkgerrors.Wrap(pkgerrors.CodeUnexpectedState, err, "create asset folder")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{"slug": name, "folder_id": folder.ID})
	s.logg.Info(ctx, "asset folder created")
	return folder.ID, nil
}

// DeleteFolder removes the folder named slug with every asset in it. A missing
// folder is a no-op. Asset failures are logged and returned together after the
// folder itself has been attempted.
func (s *Store) DeleteFolder(ctx context.Context, slug string) error {
	ctx = s.logg.WithField(ctx, "slug", slug)
	id, ok, err := s.findFolder(ctx, slug)
	if err != nil {
		return err
	}
	if !ok {
		s.logg.Info(ctx, "asset folder not found, nothing to delete")
		return nil
	}
	list, err := s.api.ListAssets(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUnexpectedState, err, "list assets in folder")
	}
	var errs error
	for _, a := range list {
		if err := s.api.DeleteAsset(ctx, a.ID); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "asset_id", a.ID), "failed to delete asset")
			errs = multierr.Append(errs, err)
		}
	}
	if err := s.api.DeleteAssetFolder(ctx, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUnexpectedState, multierr.Append(errs, err), "delete asset folder")
	}
	s.logg.Info(s.logg.WithField(ctx, "folder_id", id), "asset folder deleted")
	if errs != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUnexpectedState, errs, "delete folder assets")
	}
	return nil
}

// DeleteAsset removes a single asset.
func (s *Store) DeleteAsset(ctx context.Context, assetID int64) error {
	if err := s.api.DeleteAsset(ctx, assetID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUnexpectedState, err, "delete asset")
	}
	return nil
}

func (s *Store) findFolder(ctx context.Context, slug string) (int64, bool, error) {
	folders, err := s.api.ListAssetFolders(ctx)
	if err != nil {
		return 0, false, pkgerrors.Wrap(pkgerrors.CodeUnexpectedState, err, "list asset folders")
	}
	want := strings.ToLower(strings.TrimSpace(slug))
	for _, f := range folders {
		if strings.ToLower(f.Name) == want {
			return f.ID, true, nil
		}
	}
	return 0, false, nil
}

// lockFolder holds the creation lock for slug when it can. Failing to get it
// in time is not fatal: the caller re-lists before creating.
func (s *Store) lockFolder(ctx context.Context, slug string) func() {
	noop := func() {}
	if s.locks == nil {
		return noop
	}
	l, err := lock.NewRedisLock(s.locks, s.locks.LockKey(folderLockScope, slug), s.lockTTL)
	if err != nil {
		s.logg.Warn(ctx, "folder lock unavailable")
		return noop
	}
	if err := l.AcquireWait(ctx, folderLockInterval, folderLockAttempts); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "lock_key", l.Key()), "folder lock not acquired, continuing")
		return noop
	}
	return func() {
		if err := l.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "release folder lock", err)
		}
	}
}
