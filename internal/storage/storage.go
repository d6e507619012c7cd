// Package storage persists uploaded resume documents behind a common
// interface, with a local filesystem backend for development and Cloudflare
// R2 for production.
package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Storage is the resume document store. All methods take a context so
// request cancellation propagates into the backend.
type Storage interface {
	// Put writes data at key. Fails with ErrKeyExists if the key is taken
	// and opts.Overwrite is false, and with ErrTooLarge past opts.MaxSize.
	Put(ctx context.Context, key string, data io.Reader, opts PutOptions) error

	// Get returns the document body and metadata, or ErrNotFound. The
	// caller closes the body.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)

	// Delete removes the document at key. Idempotent.
	Delete(ctx context.Context, key string) error

	// URL returns a link to the document: permanent where the backend has
	// a public base, otherwise presigned for the expires window.
	URL(ctx context.Context, key string, expires time.Duration) (string, error)

	// Exists reports whether a document is stored at key.
	Exists(ctx context.Context, key string) (bool, error)
}

// PutOptions configures a single Put.
type PutOptions struct {
	// ContentType is the document MIME type; detected from the key's
	// extension when empty.
	ContentType string

	// MaxSize caps the document size in bytes. Zero means no cap.
	MaxSize int64

	// Overwrite allows replacing an existing document at the same key.
	Overwrite bool

	// Public marks the object world-readable (R2 ACL; informational for
	// local storage).
	Public bool
}

// ObjectInfo is the metadata carried alongside a fetched document.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
	ETag         string // empty for local storage
}

// LocalConfig configures filesystem storage.
type LocalConfig struct {
	// BasePath is the root directory, e.g. "/var/lib/cvforge/files".
	BasePath string

	// BaseURL is the public prefix files are served under, e.g.
	// "http://localhost:8080/files".
	BaseURL string
}

// R2Config configures Cloudflare R2 storage.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string

	// PublicURL is the bucket's custom domain, e.g.
	// "https://files.cvforge.app". When empty every URL is presigned.
	PublicURL string

	// Region is required by the AWS SDK; R2 accepts anything and defaults
	// to "auto".
	Region string
}

// Storage provider names as they appear in configuration.
const (
	ProviderLocal = "local"
	ProviderR2    = "r2"
)

// ResumeKey generates the storage key for an uploaded resume:
// resumes/{userID}/{uuid}.{ext}.
//
// A fresh UUID per upload means re-uploading never clobbers an earlier
// resume that a questionnaire still references.
func ResumeKey(userID uuid.UUID, filename string) string {
	ext := filepath.Ext(filename)
	fileID := uuid.New()
	return fmt.Sprintf("resumes/%s/%s%s", userID, fileID, ext)
}
