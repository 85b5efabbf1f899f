package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/kgr-crawler/internal/keyword"
	"github.com/JakeFAU/kgr-crawler/internal/storage/memory"
)

func TestArtifactStorePutGet(t *testing.T) {
	t.Parallel()

	objects := memory.NewBlobStore()
	throttle := &countingThrottle{}
	store := NewArtifactStore(objects, "results", "memory", WithThrottle(throttle))

	uri, err := store.Put(context.Background(), "job-batch1", []byte("keyword,searchType,count\n"))
	require.NoError(t, err)
	require.Equal(t, "memory://results/job-batch1.csv", uri)

	art, err := store.Get(context.Background(), "job-batch1")
	require.NoError(t, err)
	require.Equal(t, "keyword,searchType,count\n", string(art.Data))
	require.Equal(t, uri, art.URL)
	require.Equal(t, 1, throttle.calls)
	require.Equal(t, "memory", throttle.key)
}

func TestArtifactStoreNotFound(t *testing.T) {
	t.Parallel()

	store := NewArtifactStore(memory.NewBlobStore(), "", "memory")
	_, err := store.Get(context.Background(), "job-batch9")
	require.ErrorIs(t, err, keyword.ErrArtifactNotFound)
}

func TestArtifactStoreWrapsBackendErrors(t *testing.T) {
	t.Parallel()

	store := NewArtifactStore(failingObjects{memory.NewBlobStore()}, "", "broken")
	_, err := store.Get(context.Background(), "job-batch1")
	require.Error(t, err)
	require.NotErrorIs(t, err, keyword.ErrArtifactNotFound)
	require.Contains(t, err.Error(), "job-batch1")
}

func TestArtifactStoreThrottleError(t *testing.T) {
	t.Parallel()

	store := NewArtifactStore(memory.NewBlobStore(), "", "memory", WithThrottle(&countingThrottle{err: context.Canceled}))
	_, err := store.Get(context.Background(), "job-batch1")
	require.ErrorIs(t, err, context.Canceled)
}

type countingThrottle struct {
	calls int
	key   string
	err   error
}

func (c *countingThrottle) Wait(_ context.Context, key string) error {
	c.calls++
	c.key = key
	return c.err
}

type failingObjects struct{ *memory.BlobStore }

func (failingObjects) GetObject(context.Context, string) (keyword.Artifact, error) {
	return keyword.Artifact{}, errors.New("connection reset")
}
