// Package storage archives inspection photographs and their thumbnails.
//
// Two backends implement the Storage interface:
// - LocalStorage: filesystem storage for development
// - R2Storage: Cloudflare R2 (S3-compatible) object storage for production
//
// Storage is best-effort from the workflow's point of view: an inspection
// whose photo failed to upload still classifies and persists, it just has no
// image reference.
package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Storage is the contract for the photo archive. All methods are
// context-aware.
type Storage interface {
	// Put stores data at the given key, replacing any existing object.
	Put(ctx context.Context, key string, data io.Reader, opts PutOptions) error

	// Get retrieves the object at the given key. The caller must close the
	// returned reader. Returns ErrNotFound if the key doesn't exist.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)

	// Delete removes the object at the given key. Idempotent.
	Delete(ctx context.Context, key string) error

	// URL returns an access URL for the object. Backends with a public base
	// URL return a permanent URL when expires is zero; otherwise the URL is
	// presigned and valid for the given duration.
	URL(ctx context.Context, key string, expires time.Duration) (string, error)
}

// PutOptions configures how an object is stored.
type PutOptions struct {
	// ContentType is the MIME type. Empty means detect from the key.
	ContentType string

	// MaxSize rejects objects larger than this many bytes with ErrTooLarge.
	// Zero means no limit.
	MaxSize int64
}

// ObjectInfo is metadata about a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
	ETag         string
}

// LocalConfig configures filesystem storage.
type LocalConfig struct {
	// BasePath is the root directory, e.g. "./data/photos".
	BasePath string

	// BaseURL is the public URL prefix files are served under.
	BaseURL string
}

// R2Config configures Cloudflare R2 storage.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string

	// PublicURL is the bucket's custom-domain URL. Empty means presigned
	// URLs for all access.
	PublicURL string

	// Region defaults to "auto"; R2 is globally distributed.
	Region string
}

// Storage provider identifiers, as configured via STORAGE_PROVIDER.
const (
	ProviderLocal = "local"
	ProviderR2    = "r2"
)

// ImageKey is the storage key for an inspection's original photograph.
// Keys are deterministic per inspection so re-uploads replace rather than
// accumulate.
func ImageKey(inspectionID uuid.UUID, filename string) string {
	ext := filepath.Ext(filename)
	if ext == "" {
		ext = ".jpg"
	}
	return fmt.Sprintf("photos/%s/original%s", inspectionID, ext)
}

// ThumbnailKey is the storage key for an inspection's thumbnail. Thumbnails
// are always JPEG.
func ThumbnailKey(inspectionID uuid.UUID, _ string) string {
	return fmt.Sprintf("photos/%s/thumbnail.jpg", inspectionID)
}
