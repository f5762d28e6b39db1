package gcs

import (
	"context"
)

// StorageService provides an interface for cloud storage operations.
// This interface enables mocking and testing of storage functionality.
type StorageService interface {
	// Fetch downloads an object, failing with ErrObjectTooLarge past the size limit.
	Fetch(ctx context.Context, bucket, key string) ([]byte, error)

	// UploadFile uploads a local file to a storage bucket under the given object name.
	UploadFile(ctx context.Context, bucket, object, filePath string) error

	Close() error
}
