package assets

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tottales/internal/logging"
	"tottales/internal/services"
)

func TestLocalStoreUploadAndFetch(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), logging.NewNop())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}

	url, err := store.Upload(context.Background(), "story-images", "story-1/page-1-1000.jpg", []byte("jpeg-bytes"), "image/jpeg")
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}
	if !strings.HasPrefix(url, "file://") {
		t.Fatalf("expected file URL, got %q", url)
	}

	data, err := NewFetcher(0).Fetch(context.Background(), url)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if string(data) != "jpeg-bytes" {
		t.Fatalf("fetched content mismatch: %q", data)
	}
}

func TestLocalStoreRemove(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(root, logging.NewNop())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}

	ctx := context.Background()
	if _, err := store.Upload(ctx, "child-photos", "user/child/1-0.jpg", []byte("x"), ""); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if err := store.Remove(ctx, "child-photos", "user/child/1-0.jpg"); err != nil {
		t.Fatalf("Remove returned error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "child-photos", "user", "child", "1-0.jpg")); !os.IsNotExist(err) {
		t.Fatal("object file should be gone")
	}

	// Removing again is a no-op.
	if err := store.Remove(ctx, "child-photos", "user/child/1-0.jpg"); err != nil {
		t.Fatalf("second Remove returned error: %v", err)
	}
}

func TestLocalStoreSignedURLMissingObject(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), logging.NewNop())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	if _, err := store.SignedURL(context.Background(), "story-images", "missing.jpg", time.Hour); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFetcherHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.jpg" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("photo-bytes"))
	}))
	defer server.Close()

	fetcher := NewFetcher(5 * time.Second)
	data, err := fetcher.Fetch(context.Background(), server.URL+"/photo.jpg")
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if string(data) != "photo-bytes" {
		t.Fatalf("unexpected body %q", data)
	}

	if _, err := fetcher.Fetch(context.Background(), server.URL+"/missing.jpg"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for 404, got %v", err)
	}
}

func TestFetcherRejectsUnknownScheme(t *testing.T) {
	if _, err := NewFetcher(0).Fetch(context.Background(), "ftp://example.com/a.jpg"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestKeys(t *testing.T) {
	now := time.UnixMilli(1700000000000)

	if got := ChildPhotoKey("user-1", "child-2", 0, now); got != "user-1/child-2/1700000000000-0.jpg" {
		t.Fatalf("ChildPhotoKey = %q", got)
	}
	if got := StoryPageKey("story-9", 3, now); got != "story-9/page-3-1700000000000.jpg" {
		t.Fatalf("StoryPageKey = %q", got)
	}
	if got := PreviewKey("themes", "space", now); got != "themes/space-1700000000000.jpg" {
		t.Fatalf("PreviewKey = %q", got)
	}
}

func TestKeyFromURL(t *testing.T) {
	key, ok := KeyFromURL("http://minio:9000/story-images/story-1/page-2-123.jpg", "story-images")
	if !ok || key != "story-1/page-2-123.jpg" {
		t.Fatalf("KeyFromURL = %q, %v", key, ok)
	}
	key, ok = KeyFromURL("file:///data/objects/story-images/story-1/page-2-123.jpg?X-Amz-Signature=abc", "story-images")
	if !ok || key != "story-1/page-2-123.jpg" {
		t.Fatalf("KeyFromURL with query = %q, %v", key, ok)
	}
	if _, ok := KeyFromURL("http://example.com/elsewhere/a.jpg", "story-images"); ok {
		t.Fatal("unrelated URL should not resolve")
	}
}

func TestContentTypeForKey(t *testing.T) {
	if got := ContentTypeForKey("a/b.png"); got != "image/png" {
		t.Fatalf("png mapped to %q", got)
	}
	if got := ContentTypeForKey("a/b.jpg"); got != "image/jpeg" {
		t.Fatalf("jpg mapped to %q", got)
	}
	if got := ContentTypeForKey("a/b.bin"); got != "application/octet-stream" {
		t.Fatalf("fallback mapped to %q", got)
	}
}
