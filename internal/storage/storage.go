package storage

import (
	"context"
	"io"
)

// ObjectStorage is the interface for the dataset archive backend.
type ObjectStorage interface {
	// EnsureBucket creates the archive bucket if it doesn't exist
	EnsureBucket(ctx context.Context) error

	// Upload uploads an object to the archive
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download downloads an object from the archive
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete deletes an object from the archive
	Delete(ctx context.Context, key string) error

	// Exists checks if an object exists
	Exists(ctx context.Context, key string) (bool, error)
}
