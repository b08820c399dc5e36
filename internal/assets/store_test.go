package assets

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/storyblok-sync/internal/storyblok"
	pkgerrors "github.com/angelmondragon/storyblok-sync/pkg/errors"
	"github.com/angelmondragon/storyblok-sync/pkg/logger"
)

func newTestStore(t *testing.T, api *fakeAPI, locks LockStore) *Store {
	t.Helper()
	store, err := NewStore(api, locks, time.Second, logger.Nop())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestGetOrCreateFolderReusesCaseInsensitive(t *testing.T) {
	api := newFakeAPI()
	api.folders = []storyblok.AssetFolder{{ID: 7, Name: "Blue-Shirt"}}
	store := newTestStore(t, api, newMemoryLocks())

	id, err := store.GetOrCreateFolder(context.Background(), "blue-shirt")
	if err != nil {
		t.Fatalf("get folder: %v", err)
	}
	if id != 7 || api.createCalls != 0 {
		t.Fatalf("expected reuse of folder 7, got id=%d creates=%d", id, api.createCalls)
	}
}

func TestGetOrCreateFolderConcurrentCreatesOnce(t *testing.T) {
	api := newFakeAPI()
	locks := newMemoryLocks()
	store := newTestStore(t, api, locks)

	var wg sync.WaitGroup
	ids := make([]int64, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := store.GetOrCreateFolder(context.Background(), "shoe")
			if err != nil {
				t.Errorf("get folder: %v", err)
			}
			ids[i] = id
		}(i)
	}
	wg.Wait()

	if api.createCalls != 1 {
		t.Fatalf("expected exactly one folder creation, got %d", api.createCalls)
	}
	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("callers saw different folders: %v", ids)
		}
	}
	if len(locks.data) != 0 {
		t.Fatalf("lock should be released, still held: %v", locks.data)
	}
}

func TestGetOrCreateFolderRequiresSlug(t *testing.T) {
	store := newTestStore(t, newFakeAPI(), nil)
	_, err := store.GetOrCreateFolder(context.Background(), "  ")
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDeleteFolderMissingIsNoop(t *testing.T) {
	api := newFakeAPI()
	store := newTestStore(t, api, nil)
	if err := store.DeleteFolder(context.Background(), "ghost"); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
	if len(api.deleted) != 0 {
		t.Fatalf("no asset should be deleted")
	}
}

func TestDeleteFolderKeepsGoingOnAssetFailure(t *testing.T) {
	api := newFakeAPI()
	api.folders = []storyblok.AssetFolder{{ID: 9, Name: "shoe"}}
	api.seedAsset(9, storyblok.Asset{ID: 1, Filename: "https://a.storyblok.com/f/42/a.jpg"})
	api.seedAsset(9, storyblok.Asset{ID: 2, Filename: "https://a.storyblok.com/f/42/b.jpg"})
	api.seedAsset(9, storyblok.Asset{ID: 3, Filename: "https://a.storyblok.com/f/42/c.jpg"})
	api.deleteFail[2] = true
	store := newTestStore(t, api, nil)

	err := store.DeleteFolder(context.Background(), "SHOE")
	if !pkgerrors.IsCode(err, pkgerrors.CodeUnexpectedState) {
		t.Fatalf("expected aggregated asset failure, got %v", err)
	}
	if len(api.deleted) != 2 {
		t.Fatalf("expected the other assets deleted, got %v", api.deleted)
	}
	if len(api.folders) != 0 {
		t.Fatalf("folder should still be deleted")
	}
}

func TestListAssetsInFolderKeysByFilename(t *testing.T) {
	api := newFakeAPI()
	api.seedAsset(4, storyblok.Asset{ID: 11, Filename: "https://a.storyblok.com/f/42/100x100/ab/Shirt.JPG"})
	store := newTestStore(t, api, nil)

	got, err := store.ListAssetsInFolder(context.Background(), 4)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	ref, ok := got["shirt.jpg"]
	if !ok || ref.ID != 11 || ref.Fieldtype != storyblok.FieldtypeAsset {
		t.Fatalf("unexpected assets %+v", got)
	}
}
