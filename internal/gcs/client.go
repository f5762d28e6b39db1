package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"cloud.google.com/go/storage"
)

// ErrObjectTooLarge is returned when an object exceeds the configured size.
var ErrObjectTooLarge = errors.New("gcs: object exceeds maximum file size")

// Client is the Cloud Storage implementation of StorageService.
type Client struct {
	client   *storage.Client
	maxBytes int64
}

var _ StorageService = (*Client)(nil)

// NewClient creates a storage client using Application Default Credentials.
// Objects larger than maxBytes are rejected; maxBytes <= 0 disables the limit.
func NewClient(ctx context.Context, maxBytes int64) (*Client, error) {
	c, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewClient: create storage client: %w", err)
	}
	return &Client{client: c, maxBytes: maxBytes}, nil
}

// Fetch implements StorageService.
func (c *Client) Fetch(ctx context.Context, bucket, key string) ([]byte, error) {
	rc, err := c.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading object %s/%s: %w", bucket, key, err)
	}
	defer rc.Close()

	if c.maxBytes > 0 && rc.Attrs.Size > c.maxBytes {
		return nil, ErrObjectTooLarge
	}
	return readLimited(rc, c.maxBytes)
}

// UploadFile implements StorageService.
func (c *Client) UploadFile(ctx context.Context, bucket, object, filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open file %q: %w", filePath, err)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := c.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = ContentTypeFor(object)

	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return fmt.Errorf("copy file to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (c *Client) Close() error {
	return c.client.Close()
}

// readLimited reads at most max bytes and fails if more remain.
func readLimited(r io.Reader, max int64) ([]byte, error) {
	if max <= 0 {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read object: %w", err)
		}
		return data, nil
	}
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	if int64(len(data)) > max {
		return nil, ErrObjectTooLarge
	}
	return data, nil
}
