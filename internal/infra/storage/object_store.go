// Package storage keeps generated images in a NATS JetStream object store bucket.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/daffahilmyf/go-imagegen/internal/domain/repository"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"
)

const contentTypeHeader = "Content-Type"

// Bucket is the subset of nats.ObjectStore used here.
type Bucket interface {
	Put(obj *nats.ObjectMeta, reader io.Reader, opts ...nats.ObjectOpt) (*nats.ObjectInfo, error)
	Get(name string, opts ...nats.GetObjectOpt) (nats.ObjectResult, error)
	Delete(name string) error
	List(opts ...nats.ListObjectsOpt) ([]*nats.ObjectInfo, error)
}

type ObjectStore struct {
	bucket  Bucket
	baseURL string
	newKey  func() string
}

var _ repository.ObjectStorage = (*ObjectStore)(nil)

func New(bucket Bucket, publicBaseURL string) *ObjectStore {
	return &ObjectStore{
		bucket:  bucket,
		baseURL: strings.TrimRight(publicBaseURL, "/"),
		newKey:  uuid.NewString,
	}
}

// ExtensionFor returns the subtype of a MIME type, e.g. "png" for image/png.
func ExtensionFor(contentType string) (string, error) {
	mediaType, _, _ := strings.Cut(contentType, ";")
	_, ext, ok := strings.Cut(strings.TrimSpace(mediaType), "/")
	if !ok || ext == "" {
		return "", fmt.Errorf("storage: no extension for content type %q", contentType)
	}
	return strings.ToLower(ext), nil
}

func (s *ObjectStore) Upload(ctx context.Context, blobs []repository.Blob, metadata map[string]string) ([]repository.StoredObject, error) {
	out := make([]repository.StoredObject, len(blobs))
	g, gctx := errgroup.WithContext(ctx)
	for i, blob := range blobs {
		i, blob := i, blob
		g.Go(func() error {
			ext, err := ExtensionFor(blob.ContentType)
			if err != nil {
				return err
			}
			key := s.newKey() + "." + ext
			meta := &nats.ObjectMeta{
				Name:     key,
				Headers:  nats.Header{},
				Metadata: metadata,
			}
			meta.Headers.Set(contentTypeHeader, blob.ContentType)
			if _, err := s.bucket.Put(meta, bytes.NewReader(blob.Data), nats.Context(gctx)); err != nil {
				return fmt.Errorf("storage: put %s: %w", key, err)
			}
			out[i] = repository.StoredObject{Key: key, URL: s.URLFor(key)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *ObjectStore) Delete(_ context.Context, key string) error {
	err := s.bucket.Delete(key)
	if errors.Is(err, nats.ErrObjectNotFound) {
		return repository.ErrObjectNotFound
	}
	return err
}

func (s *ObjectStore) URLFor(key string) string {
	return s.baseURL + "/" + key
}

func (s *ObjectStore) Open(ctx context.Context, key string) (io.ReadCloser, repository.ObjectInfo, error) {
	res, err := s.bucket.Get(key, nats.Context(ctx))
	if errors.Is(err, nats.ErrObjectNotFound) {
		return nil, repository.ObjectInfo{}, repository.ErrObjectNotFound
	}
	if err != nil {
		return nil, repository.ObjectInfo{}, err
	}
	info, err := res.Info()
	if err != nil {
		_ = res.Close()
		return nil, repository.ObjectInfo{}, err
	}
	return res, toInfo(info), nil
}

func (s *ObjectStore) List(ctx context.Context) ([]repository.ObjectInfo, error) {
	infos, err := s.bucket.List(nats.Context(ctx))
	if errors.Is(err, nats.ErrNoObjectsFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]repository.ObjectInfo, 0, len(infos))
	for _, info := range infos {
		if info.Deleted {
			continue
		}
		out = append(out, toInfo(info))
	}
	return out, nil
}

func toInfo(info *nats.ObjectInfo) repository.ObjectInfo {
	ct := ""
	if info.Headers != nil {
		ct = info.Headers.Get(contentTypeHeader)
	}
	return repository.ObjectInfo{
		Key:         info.Name,
		ContentType: ct,
		Size:        info.Size,
		ModTime:     info.ModTime,
	}
}
