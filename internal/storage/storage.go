// Package storage holds the bytes of downloadable product files.
package storage

import (
	"context"
	"io"
)

// BlobStore reads and writes file content by key. Open returns an error
// matching domain.ErrFileMissing when the key has no content.
type BlobStore interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
}
