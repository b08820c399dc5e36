package gallery

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/angelmondragon/storyblok-sync/internal/storyblok"
	"github.com/angelmondragon/storyblok-sync/pkg/logger"
)

type stubFolders struct {
	calls atomic.Int32
}

func (s *stubFolders) GetOrCreateFolder(context.Context, string) (int64, error) {
	s.calls.Add(1)
	return 12, nil
}

type stubUploader struct {
	mu       sync.Mutex
	inFlight int
	maxSeen  int
	failOn   string
}

func (s *stubUploader) Upload(_ context.Context, folderID int64, sourceURL, altText string) (storyblok.AssetRef, error) {
	s.mu.Lock()
	s.inFlight++
	if s.inFlight > s.maxSeen {
		s.maxSeen = s.inFlight
	}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()
	// a.jpg finishes last
	if strings.HasPrefix(sourceURL, "a") {
		time.Sleep(20 * time.Millisecond)
	}
	if sourceURL == s.failOn {
		return storyblok.AssetRef{}, errors.New("upload failed")
	}
	return storyblok.AssetRef{ID: folderID, Filename: sourceURL, Alt: altText}, nil
}

func newTestBuilder(t *testing.T, uploader *stubUploader, concurrency int) (*Builder, *stubFolders) {
	t.Helper()
	folders := &stubFolders{}
	b, err := NewBuilder(folders, uploader, concurrency, logger.Nop())
	if err != nil {
		t.Fatalf("new builder: %v", err)
	}
	return b, folders
}

func TestBuildEmptySkipsFolder(t *testing.T) {
	b, folders := newTestBuilder(t, &stubUploader{}, 2)
	got, err := b.Build(context.Background(), "shoe", "", nil, "Shoe")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty gallery, got %v", got)
	}
	if folders.calls.Load() != 0 {
		t.Fatalf("folder must not be created for an empty gallery")
	}
}

func TestBuildOrderAndThumbnail(t *testing.T) {
	uploader := &stubUploader{}
	b, folders := newTestBuilder(t, uploader, 2)
	got, err := b.Build(context.Background(), "shoe", "t.jpg", []string{"a.jpg", "b.jpg", "c.jpg"}, "Shoe")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	want := []string{"t.jpg", "a.jpg", "b.jpg", "c.jpg"}
	if len(got) != len(want) {
		t.Fatalf("expected %d images, got %d", len(want), len(got))
	}
	thumbs := 0
	for i, img := range got {
		if img.Image.Filename != want[i] {
			t.Fatalf("position %d: got %s want %s", i, img.Image.Filename, want[i])
		}
		if img.IsThumbnail {
			thumbs++
		}
		if img.Component != storyblok.ComponentGalleryImage {
			t.Fatalf("unexpected component %s", img.Component)
		}
	}
	if thumbs != 1 || !got[0].IsThumbnail {
		t.Fatalf("expected exactly one leading thumbnail")
	}
	if folders.calls.Load() != 1 {
		t.Fatalf("folder should be resolved once, got %d", folders.calls.Load())
	}
	if uploader.maxSeen > 2 {
		t.Fatalf("concurrency limit exceeded: %d", uploader.maxSeen)
	}
}

func TestBuildFailsWholeGallery(t *testing.T) {
	b, _ := newTestBuilder(t, &stubUploader{failOn: "b.jpg"}, 3)
	got, err := b.Build(context.Background(), "shoe", "", []string{"a.jpg", "b.jpg"}, "")
	if err == nil || got != nil {
		t.Fatalf("expected failure without partial gallery, got %v %v", got, err)
	}
}
