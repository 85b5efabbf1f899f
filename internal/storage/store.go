// Package storage adapts raw object stores into the batch result store.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/JakeFAU/kgr-crawler/internal/artifact"
	"github.com/JakeFAU/kgr-crawler/internal/keyword"
)

// ObjectStore reads and writes raw objects by path. GetObject returns
// keyword.ErrArtifactNotFound for absent objects.
type ObjectStore interface {
	PutObject(ctx context.Context, path string, contentType string, body io.Reader) (string, error)
	GetObject(ctx context.Context, path string) (keyword.Artifact, error)
}

// Throttle bounds how often a store is read.
type Throttle interface {
	Wait(ctx context.Context, key string) error
}

// ArtifactStore maps batch ids onto object paths under a prefix.
type ArtifactStore struct {
	objects  ObjectStore
	prefix   string
	name     string
	throttle Throttle
}

// Option customizes an ArtifactStore.
type Option func(*ArtifactStore)

// WithThrottle rate limits reads through t.
func WithThrottle(t Throttle) Option {
	return func(s *ArtifactStore) {
		s.throttle = t
	}
}

// NewArtifactStore wraps objects. name labels throttle metrics.
func NewArtifactStore(objects ObjectStore, prefix, name string, opts ...Option) *ArtifactStore {
	s := &ArtifactStore{objects: objects, prefix: prefix, name: name}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the object path for a batch.
func (s *ArtifactStore) Path(batchID string) string {
	return artifact.ObjectPath(s.prefix, batchID)
}

// PutObject writes a raw object.
func (s *ArtifactStore) PutObject(ctx context.Context, path string, contentType string, body io.Reader) (string, error) {
	uri, err := s.objects.PutObject(ctx, path, contentType, body)
	if err != nil {
		return "", fmt.Errorf("put %s: %w", path, err)
	}
	return uri, nil
}

// Put writes an encoded batch artifact and returns its URI.
func (s *ArtifactStore) Put(ctx context.Context, batchID string, data []byte) (string, error) {
	return s.PutObject(ctx, s.Path(batchID), artifact.ContentType, bytes.NewReader(data))
}

// Get returns the artifact for batchID or keyword.ErrArtifactNotFound.
func (s *ArtifactStore) Get(ctx context.Context, batchID string) (keyword.Artifact, error) {
	if s.throttle != nil {
		if err := s.throttle.Wait(ctx, s.name); err != nil {
			return keyword.Artifact{}, err
		}
	}
	art, err := s.objects.GetObject(ctx, s.Path(batchID))
	if err != nil {
		if errors.Is(err, keyword.ErrArtifactNotFound) {
			return keyword.Artifact{}, keyword.ErrArtifactNotFound
		}
		return keyword.Artifact{}, fmt.Errorf("get %s: %w", batchID, err)
	}
	return art, nil
}
