package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/kgr-crawler/internal/keyword"
)

func TestArtifactsAreCopiedOnWriteAndRead(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("keyword,searchType,count\n")
	url, err := store.PutObject(context.Background(), "results/seo-batch1.csv", "text/csv", bytes.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, "memory://results/seo-batch1.csv", url)

	payload[0] = 'K'
	art, err := store.GetObject(context.Background(), "results/seo-batch1.csv")
	require.NoError(t, err)
	require.Equal(t, "keyword,searchType,count\n", string(art.Data))
	require.Equal(t, url, art.URL)

	art.Data[0] = 'X'
	again, err := store.GetObject(context.Background(), "results/seo-batch1.csv")
	require.NoError(t, err)
	require.Equal(t, byte('k'), again.Data[0])

	ct, ok := store.ContentType("results/seo-batch1.csv")
	require.True(t, ok)
	require.Equal(t, "text/csv", ct)
}

func TestMissingArtifactsAreCountedAsReads(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	for i := 0; i < 3; i++ {
		_, err := store.GetObject(context.Background(), "results/seo-batch2.csv")
		require.ErrorIs(t, err, keyword.ErrArtifactNotFound)
	}
	require.Equal(t, 3, store.Reads("results/seo-batch2.csv"))
	require.Zero(t, store.Reads("results/other.csv"))
}

func TestPathsAndDelete(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	for _, p := range []string{"r/b.csv", "r/a.csv"} {
		_, err := store.PutObject(context.Background(), p, "", bytes.NewReader([]byte("x")))
		require.NoError(t, err)
	}
	require.Equal(t, []string{"r/a.csv", "r/b.csv"}, store.Paths())

	store.Delete("r/a.csv")
	store.Delete("r/missing.csv")
	require.Equal(t, []string{"r/b.csv"}, store.Paths())
	_, err := store.GetObject(context.Background(), "r/a.csv")
	require.ErrorIs(t, err, keyword.ErrArtifactNotFound)
}
