// Package gcs stores batch artifacts in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/kgr-crawler/internal/keyword"
)

// MaxArtifactBytes caps how much of one object GetObject will read.
const MaxArtifactBytes = 8 << 20

// Config selects the bucket and how artifact URLs are rendered.
type Config struct {
	Bucket string `mapstructure:"bucket"`
	// URLBase replaces the gs://<bucket> prefix in returned URLs, e.g.
	// https://storage.googleapis.com/<bucket> for public buckets.
	URLBase string `mapstructure:"url_base"`
}

// BlobStore reads and writes artifacts as bucket objects.
type BlobStore struct {
	bucket  *storage.BucketHandle
	name    string
	urlBase string
}

// New binds a store to cfg.Bucket.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, errors.New("gcs: storage client is required")
	}
	name := strings.TrimSpace(cfg.Bucket)
	if name == "" {
		return nil, errors.New("gcs: bucket is required")
	}
	base := strings.TrimRight(cfg.URLBase, "/")
	if base == "" {
		base = "gs://" + name
	}
	return &BlobStore{bucket: client.Bucket(name), name: name, urlBase: base}, nil
}

// PutObject uploads body in a single request. Artifacts are written with
// no-store caching because the tracker polls for them right after upload.
func (s *BlobStore) PutObject(ctx context.Context, path string, contentType string, body io.Reader) (string, error) {
	path = strings.TrimLeft(strings.TrimSpace(path), "/")
	if path == "" {
		return "", errors.New("gcs: object path is required")
	}
	w := s.bucket.Object(path).NewWriter(ctx)
	w.ChunkSize = 0
	w.CacheControl = "no-store"
	w.ContentType = contentType
	if _, err := io.Copy(w, body); err != nil {
		return "", errors.Join(fmt.Errorf("upload %s: %w", path, err), w.Close())
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize %s: %w", path, err)
	}
	return s.URL(path), nil
}

// GetObject downloads one artifact. A missing object (or bucket) maps to
// keyword.ErrArtifactNotFound so the tracker keeps waiting.
func (s *BlobStore) GetObject(ctx context.Context, path string) (keyword.Artifact, error) {
	path = strings.TrimLeft(path, "/")
	r, err := s.bucket.Object(path).NewReader(ctx)
	switch {
	case errors.Is(err, storage.ErrObjectNotExist), errors.Is(err, storage.ErrBucketNotExist):
		return keyword.Artifact{}, keyword.ErrArtifactNotFound
	case err != nil:
		return keyword.Artifact{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = r.Close() }()
	if r.Attrs.Size > MaxArtifactBytes {
		return keyword.Artifact{}, fmt.Errorf("%s is %d bytes: %w", path, r.Attrs.Size, keyword.ErrMalformedArtifact)
	}
	data, err := io.ReadAll(io.LimitReader(r, MaxArtifactBytes))
	if err != nil {
		return keyword.Artifact{}, fmt.Errorf("read %s: %w", path, err)
	}
	return keyword.Artifact{Data: data, URL: s.URL(path)}, nil
}

// URL renders the content address of path.
func (s *BlobStore) URL(path string) string {
	return s.urlBase + "/" + strings.TrimLeft(path, "/")
}
