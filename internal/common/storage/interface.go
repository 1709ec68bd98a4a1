package storage

import (
	"context"
	"io"
)

// ObjectStorage is the object store surface used for archiving sources.
type ObjectStorage interface {
	PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string) error

	// GetObject opens a reader for an object. Caller must close it.
	GetObject(ctx context.Context, bucket, objectKey string) (io.ReadCloser, error)
}
