// Package objects stores immutable blobs (audit records) in memory, on disk or in S3.
package objects

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound      = errors.New("object not found")
	ErrInvalidKey    = errors.New("invalid object key")
	ErrAlreadyExists = errors.New("object already exists")
)

// ObjectStore is a write-once key/value blob store. Objects are never overwritten.
type ObjectStore interface {
	// Put stores an object. Writing an existing key fails with ErrAlreadyExists.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Get retrieves an object
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns the objects under prefix ordered by key
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// ObjectInfo contains metadata about an object
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

const (
	MemoryStoreType     = "memory"
	FilesystemStoreType = "filesystem"
	S3StoreType         = "s3"
)

// ObjectStoreConfig contains configuration for object store implementations
type ObjectStoreConfig struct {
	Type     string
	BasePath string // filesystem
	S3       S3Config
}

// NewObjectStore creates a new object store based on the provided configuration
func NewObjectStore(cfg ObjectStoreConfig) (ObjectStore, error) {
	switch cfg.Type {
	case FilesystemStoreType:
		basePath := cfg.BasePath
		if basePath == "" {
			basePath = "./audit"
		}
		return NewFilesystemObjectStore(basePath), nil
	case MemoryStoreType:
		return NewMemoryObjectStore(), nil
	case S3StoreType:
		return NewS3ObjectStore(cfg.S3)
	default:
		return nil, fmt.Errorf("unsupported object store type: %q", cfg.Type)
	}
}

// validateKey rejects empty, absolute and path traversing keys
func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") || strings.Contains(key, "\\") {
		return ErrInvalidKey
	}
	return nil
}
