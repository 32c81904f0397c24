package repository

import (
	"context"
	"errors"
	"io"
	"time"
)

var ErrObjectNotFound = errors.New("object not found")

type Blob struct {
	Data        []byte
	ContentType string
}

type StoredObject struct {
	Key string
	URL string
}

type ObjectInfo struct {
	Key         string
	ContentType string
	Size        uint64
	ModTime     time.Time
}

type ObjectStorage interface {
	// Upload stores every blob under a fresh key. The first failure is returned;
	// objects already written are left in place.
	Upload(ctx context.Context, blobs []Blob, metadata map[string]string) ([]StoredObject, error)
	Delete(ctx context.Context, key string) error
	URLFor(key string) string
	Open(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	List(ctx context.Context) ([]ObjectInfo, error)
}
