package gcs

import (
	"context"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newTestClient(t *testing.T) *storage.Client {
	t.Helper()
	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.ErrorContains(t, err, "client")

	client := newTestClient(t)
	_, err = New(client, Config{Bucket: "  "})
	require.ErrorContains(t, err, "bucket")
}

func TestURLRendering(t *testing.T) {
	t.Parallel()

	client := newTestClient(t)
	store, err := New(client, Config{Bucket: "kgr-results"})
	require.NoError(t, err)
	require.Equal(t, "gs://kgr-results/results/j-batch1.csv", store.URL("results/j-batch1.csv"))

	public, err := New(client, Config{Bucket: "kgr-results", URLBase: "https://storage.googleapis.com/kgr-results/"})
	require.NoError(t, err)
	require.Equal(t, "https://storage.googleapis.com/kgr-results/results/j-batch1.csv", public.URL("/results/j-batch1.csv"))
}

func TestPutObjectRequiresPath(t *testing.T) {
	t.Parallel()

	store, err := New(newTestClient(t), Config{Bucket: "kgr-results"})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), " / ", "text/csv", nil)
	require.ErrorContains(t, err, "path")
}
