// Package archive keeps durable copies of generated images. Every operation
// is best-effort: callers get "absent" instead of an error and fall back to
// the copy Telegram already holds.
package archive

import (
	"context"
	"errors"
	"mime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/genrelay/tgbot/internal/logger"
)

var ErrNotFound = errors.New("blob not found")

// BlobStore is the minimal blob API the archive needs.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
}

const (
	keyPrefix = "generated/"
	opTimeout = 30 * time.Second
)

type Archive struct {
	blobs BlobStore
}

// New returns an archive over blobs; a nil store yields a disabled archive.
func New(blobs BlobStore) *Archive {
	return &Archive{blobs: blobs}
}

func (a *Archive) Enabled() bool {
	return a != nil && a.blobs != nil
}

// Upload stores data under a fresh random key and returns it.
func (a *Archive) Upload(ctx context.Context, data []byte, contentType string) (string, bool) {
	if !a.Enabled() || len(data) == 0 {
		return "", false
	}
	key := keyPrefix + uuid.NewString() + extensionFor(contentType)

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := a.blobs.Put(ctx, key, data, contentType); err != nil {
		logger.Log.WithFields(logrus.Fields{"key": key, "size": len(data), "error": err}).Error("Failed to archive generated image")
		return "", false
	}
	logger.Log.WithFields(logrus.Fields{"key": key, "size": len(data)}).Debug("Archived generated image")
	return key, true
}

// Download fetches an archived image. Unknown or unreadable refs are absent.
func (a *Archive) Download(ctx context.Context, ref string) ([]byte, bool) {
	if !a.Enabled() || ref == "" {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	data, err := a.blobs.Get(ctx, ref)
	if err != nil {
		log := logger.Log.WithFields(logrus.Fields{"key": ref, "error": err})
		if errors.Is(err, ErrNotFound) {
			log.Warn("Archived image not found")
		} else {
			log.Error("Failed to download archived image")
		}
		return nil, false
	}
	if len(data) == 0 {
		return nil, false
	}
	return data, true
}

func extensionFor(contentType string) string {
	switch strings.ToLower(contentType) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

// FileName returns the last path element of key, for sending as a document.
func FileName(key string) string {
	if i := strings.LastIndex(key, "/"); i >= 0 {
		return key[i+1:]
	}
	return key
}
