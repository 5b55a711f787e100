package archive

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	getErr  error
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: map[string][]byte{}}
}

func (m *memBlobs) Put(_ context.Context, key string, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.objects[key] = append([]byte(nil), data...)
	return nil
}

func (m *memBlobs) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	data, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

func TestArchive_UploadDownloadRoundTrip(t *testing.T) {
	ctx := context.Background()
	a := New(newMemBlobs())

	ref, ok := a.Upload(ctx, []byte("png-bytes"), "image/png")
	if !ok {
		t.Fatal("Expected upload to succeed")
	}
	if !strings.HasPrefix(ref, "generated/") || !strings.HasSuffix(ref, ".png") {
		t.Errorf("Unexpected key %q", ref)
	}

	data, ok := a.Download(ctx, ref)
	if !ok || string(data) != "png-bytes" {
		t.Errorf("Expected stored bytes, got %q ok=%v", data, ok)
	}
}

func TestArchive_UploadKeysAreUnique(t *testing.T) {
	ctx := context.Background()
	a := New(newMemBlobs())
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		ref, ok := a.Upload(ctx, []byte{1}, "image/jpeg")
		if !ok {
			t.Fatal("Expected upload to succeed")
		}
		if seen[ref] {
			t.Fatalf("Duplicate key %s", ref)
		}
		seen[ref] = true
	}
}

func TestArchive_UploadFailureIsAbsent(t *testing.T) {
	blobs := newMemBlobs()
	blobs.putErr = errors.New("bucket unavailable")
	a := New(blobs)

	ref, ok := a.Upload(context.Background(), []byte("x"), "image/png")
	if ok || ref != "" {
		t.Errorf("Expected absence on failure, got %q %v", ref, ok)
	}
}

func TestArchive_DownloadUnknownRefIsAbsent(t *testing.T) {
	a := New(newMemBlobs())
	if data, ok := a.Download(context.Background(), "generated/never.png"); ok || data != nil {
		t.Errorf("Expected absence, got %q %v", data, ok)
	}

	blobs := newMemBlobs()
	blobs.getErr = errors.New("timeout")
	if _, ok := New(blobs).Download(context.Background(), "generated/x.png"); ok {
		t.Error("Expected absence on backend error")
	}
}

func TestArchive_DisabledIsAbsent(t *testing.T) {
	a := New(nil)
	if a.Enabled() {
		t.Error("Expected nil store to disable the archive")
	}
	if _, ok := a.Upload(context.Background(), []byte("x"), "image/png"); ok {
		t.Error("Expected disabled upload to be absent")
	}
	if _, ok := a.Download(context.Background(), "generated/x.png"); ok {
		t.Error("Expected disabled download to be absent")
	}
}

func TestFileName(t *testing.T) {
	if got := FileName("generated/abc.png"); got != "abc.png" {
		t.Errorf("Unexpected file name %q", got)
	}
	if got := FileName("flat.jpg"); got != "flat.jpg" {
		t.Errorf("Unexpected file name %q", got)
	}
}
