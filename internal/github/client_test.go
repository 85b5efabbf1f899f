package github

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewClientValidatesRepository(t *testing.T) {
	t.Parallel()

	for _, repo := range []string{"", "owner", "owner/", "/repo", "a/b/c"} {
		_, err := NewClient(context.Background(), Config{Repository: repo})
		require.Error(t, err, repo)
	}
	c, err := NewClient(context.Background(), Config{Repository: "acme/kgr"})
	require.NoError(t, err)
	require.Equal(t, "/repos/acme/kgr/contents/x.csv", c.RepoPath("/contents/x.csv"))
	require.Equal(t, DefaultBaseURL, c.baseURL)
}

func TestDoSendsTokenAndDecodes(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
		require.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"kgr"}`))
	}))
	defer srv.Close()

	c, err := NewClient(context.Background(), Config{BaseURL: srv.URL, Repository: "acme/kgr", Token: "s3cret"})
	require.NoError(t, err)
	var out struct {
		Name string `json:"name"`
	}
	require.NoError(t, c.Do(context.Background(), http.MethodGet, c.RepoPath(""), nil, &out))
	require.Equal(t, "kgr", out.Name)
}

func TestDoReturnsAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"Unexpected inputs provided"}`))
	}))
	defer srv.Close()

	c, err := NewClient(context.Background(), Config{BaseURL: srv.URL, Repository: "acme/kgr"})
	require.NoError(t, err)
	err = c.Do(context.Background(), http.MethodPost, "/x", map[string]string{"a": "b"}, nil)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	require.Equal(t, "Unexpected inputs provided", apiErr.Message)
}
