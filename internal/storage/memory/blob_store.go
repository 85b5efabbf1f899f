// Package memory keeps batch artifacts in process memory. It backs the queue
// dispatch backend, where workers and tracker share one process.
package memory

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/JakeFAU/kgr-crawler/internal/keyword"
)

type object struct {
	data        []byte
	contentType string
}

// BlobStore maps object paths to artifact bytes and counts reads per path.
type BlobStore struct {
	mu      sync.RWMutex
	objects map[string]object
	reads   map[string]int
}

// NewBlobStore returns an empty store.
func NewBlobStore() *BlobStore {
	return &BlobStore{
		objects: make(map[string]object),
		reads:   make(map[string]int),
	}
}

// PutObject stores a private copy of body under path and returns a memory:// URL.
func (s *BlobStore) PutObject(_ context.Context, path string, contentType string, body io.Reader) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read artifact body: %w", err)
	}
	s.mu.Lock()
	s.objects[path] = object{data: data, contentType: contentType}
	s.mu.Unlock()
	return "memory://" + path, nil
}

// GetObject returns a copy of the artifact at path.
func (s *BlobStore) GetObject(_ context.Context, path string) (keyword.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads[path]++
	obj, ok := s.objects[path]
	if !ok {
		return keyword.Artifact{}, keyword.ErrArtifactNotFound
	}
	return keyword.Artifact{Data: append([]byte(nil), obj.data...), URL: "memory://" + path}, nil
}

// ContentType reports the content type recorded for path.
func (s *BlobStore) ContentType(path string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[path]
	return obj.contentType, ok
}

// Reads reports how many times path was looked up, found or not.
func (s *BlobStore) Reads(path string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reads[path]
}

// Paths lists stored paths in lexical order.
func (s *BlobStore) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.objects))
	for p := range s.objects {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Delete removes path; missing paths are ignored.
func (s *BlobStore) Delete(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, path)
}
