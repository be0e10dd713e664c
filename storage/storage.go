package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Storage interface for document storage operations
type Storage interface {
	// Upload stores a document and returns the storage path
	Upload(ctx context.Context, key ObjectKey, contentType string, data io.Reader) (string, error)

	// Download retrieves a document by storage path
	Download(ctx context.Context, storagePath string) (io.ReadCloser, error)

	// Delete removes a document by storage path
	Delete(ctx context.Context, storagePath string) error

	// URL returns a retrievable URI for a storage path
	URL(storagePath string) string
}

// ObjectKey identifies a stored document.
type ObjectKey struct {
	FileID   uuid.UUID
	Owner    string
	Kind     string
	Filename string
}

// Path returns "<owner>/<kind>_<fileID>_<name><ext>".
func (k ObjectKey) Path() string {
	ext := strings.ToLower(filepath.Ext(k.Filename))
	baseName := sanitize(strings.TrimSuffix(filepath.Base(k.Filename), filepath.Ext(k.Filename)))
	owner := sanitize(k.Owner)
	if owner == "" {
		owner = "anonymous"
	}
	kind := sanitize(k.Kind)
	if kind == "" {
		kind = "document"
	}
	if baseName == "" {
		return fmt.Sprintf("%s/%s_%s%s", owner, kind, k.FileID.String(), ext)
	}
	return fmt.Sprintf("%s/%s_%s_%s%s", owner, kind, k.FileID.String(), baseName, ext)
}

func sanitize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, "..", "_")
	return s
}

// StorageType represents the storage backend type
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeS3    StorageType = "s3"
)

// StorageConfig holds configuration for storage
type StorageConfig struct {
	Type          StorageType
	LocalPath     string // For local storage
	PublicBaseURL string // Prefix for retrievable URIs
	S3Bucket      string // For S3 storage
	S3Region      string // For S3 storage
	AWSAccessKey  string
	AWSSecretKey  string
}

// NewStorage creates a new storage instance based on configuration
func NewStorage(ctx context.Context, cfg StorageConfig) (Storage, error) {
	switch cfg.Type {
	case StorageTypeLocal, "":
		return NewLocalStorage(cfg.LocalPath, cfg.PublicBaseURL)
	case StorageTypeS3:
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3 bucket is required for S3 storage")
		}
		return NewS3Storage(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// DetectContentType infers a MIME type from the filename extension.
func DetectContentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	case ".heic":
		return "image/heic"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
