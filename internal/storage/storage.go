// Package storage holds the object store the archive workflow uploads
// snapshot archives and their manifest sidecars into, backed by the
// local filesystem or an S3-compatible endpoint.
package storage

import (
	"context"
	"io"
	"time"
)

// ObjectInfo describes one stored archive or manifest object.
type ObjectInfo struct {
	Key        string
	Size       int64
	Modified   time.Time
	ETag       string
	Metadata   map[string]string
	IsManifest bool
}

// Storage is the backend an archive stream is uploaded into. Put must
// accept size -1 for streamed uploads of unknown length.
type Storage interface {
	Put(ctx context.Context, key string, reader io.Reader, size int64, metadata map[string]string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}
