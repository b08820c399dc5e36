package assets

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/angelmondragon/storyblok-sync/internal/storyblok"
	pkgerrors "github.com/angelmondragon/storyblok-sync/pkg/errors"
)

type fakeAPI struct {
	mu          sync.Mutex
	nextID      int64
	folders     []storyblok.AssetFolder
	assets      map[int64][]storyblok.Asset
	pending     map[int64]pendingUpload
	createCalls int
	signCalls   int
	finishCalls int
	deleted     []int64
	deleteFail  map[int64]bool
	signNoURL   bool
	pushErr     error
}

type pendingUpload struct {
	folderID int64
	filename string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		nextID:     1000,
		assets:     map[int64][]storyblok.Asset{},
		pending:    map[int64]pendingUpload{},
		deleteFail: map[int64]bool{},
	}
}

func (f *fakeAPI) ListAssets(_ context.Context, folderID int64) ([]storyblok.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]storyblok.Asset(nil), f.assets[folderID]...), nil
}

func (f *fakeAPI) ListAssetFolders(context.Context) ([]storyblok.AssetFolder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]storyblok.AssetFolder(nil), f.folders...), nil
}

func (f *fakeAPI) CreateAssetFolder(_ context.Context, name string) (*storyblok.AssetFolder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	f.nextID++
	folder := storyblok.AssetFolder{ID: f.nextID, Name: name}
	f.folders = append(f.folders, folder)
	return &folder, nil
}

func (f *fakeAPI) DeleteAssetFolder(_ context.Context, folderID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, folder := range f.folders {
		if folder.ID == folderID {
			f.folders = append(f.folders[:i], f.folders[i+1:]...)
			return nil
		}
	}
	return errors.New("folder not found")
}

func (f *fakeAPI) DeleteAsset(_ context.Context, assetID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteFail[assetID] {
		return errors.New("asset delete failed")
	}
	f.deleted = append(f.deleted, assetID)
	return nil
}

func (f *fakeAPI) RequestSignedUpload(_ context.Context, filename, _ string, folderID int64) (*storyblok.SignedUpload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signCalls++
	f.nextID++
	f.pending[f.nextID] = pendingUpload{folderID: folderID, filename: filename}
	if f.signNoURL {
		return nil, pkgerrors.Newf(pkgerrors.CodeInvalidData, "signed upload for %s has no post_url", filename)
	}
	return &storyblok.SignedUpload{ID: f.nextID, PostURL: "https://bucket.example", Fields: map[string]string{"key": filename}}, nil
}

func (f *fakeAPI) PushSignedUpload(context.Context, *storyblok.SignedUpload, string, string, []byte) error {
	return f.pushErr
}

func (f *fakeAPI) FinishUpload(_ context.Context, assetID int64) (*storyblok.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finishCalls++
	p := f.pending[assetID]
	asset := storyblok.Asset{
		ID:            assetID,
		Filename:      "https://s3.amazonaws.com/a.storyblok.com/f/42/" + p.filename,
		AssetFolderID: p.folderID,
	}
	stored := asset
	stored.Filename = "https://a.storyblok.com/f/42/" + p.filename
	f.assets[p.folderID] = append(f.assets[p.folderID], stored)
	return &asset, nil
}

func (f *fakeAPI) seedAsset(folderID int64, asset storyblok.Asset) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assets[folderID] = append(f.assets[folderID], asset)
}

type memoryLocks struct {
	mu   sync.Mutex
	data map[string]string
	sets int
}

func newMemoryLocks() *memoryLocks {
	return &memoryLocks{data: map[string]string{}}
}

func (m *memoryLocks) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value.(string)
	m.sets++
	return true, nil
}

func (m *memoryLocks) CompareAndDelete(_ context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[key] != value {
		return false, nil
	}
	delete(m.data, key)
	return true, nil
}

func (m *memoryLocks) LockKey(scope, id string) string {
	return "sbsync:lock:" + scope + ":" + id
}
