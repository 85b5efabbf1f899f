// Package local_test tests the local filesystem blob store.
package local_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/kgr-crawler/internal/keyword"
	"github.com/JakeFAU/kgr-crawler/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})
	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})
	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "results")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})
	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})
}

func TestPutGetObject(t *testing.T) {
	tempDir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: tempDir})
	require.NoError(t, err)
	ctx := context.Background()

	uri, err := store.PutObject(ctx, "results/job-batch1.csv", "text/csv", bytes.NewReader([]byte("keyword,searchType,count\n")))
	require.NoError(t, err)
	assert.Equal(t, "file://"+filepath.Join(tempDir, "results", "job-batch1.csv"), uri)

	art, err := store.GetObject(ctx, "results/job-batch1.csv")
	require.NoError(t, err)
	assert.Equal(t, "keyword,searchType,count\n", string(art.Data))
	assert.Equal(t, uri, art.URL)

	entries, err := os.ReadDir(filepath.Join(tempDir, "results"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not linger")
}

func TestGetObjectMissing(t *testing.T) {
	store, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	_, err = store.GetObject(context.Background(), "results/nope.csv")
	require.ErrorIs(t, err, keyword.ErrArtifactNotFound)
}

func TestPathTraversal(t *testing.T) {
	store, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	_, err = store.PutObject(context.Background(), "../escape.csv", "", bytes.NewReader(nil))
	require.Error(t, err)
	_, err = store.GetObject(context.Background(), "../../etc/passwd")
	require.Error(t, err)
	_, err = store.PutObject(context.Background(), " ", "", bytes.NewReader(nil))
	require.Error(t, err)
}
