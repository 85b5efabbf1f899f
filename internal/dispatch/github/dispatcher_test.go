package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	ghapi "github.com/JakeFAU/kgr-crawler/internal/github"
	"github.com/JakeFAU/kgr-crawler/internal/keyword"
	"github.com/JakeFAU/kgr-crawler/internal/partition"
)

func TestSubmitPostsWorkflowDispatch(t *testing.T) {
	t.Parallel()

	var (
		gotPath string
		gotAuth string
		gotBody dispatchBody
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client, err := ghapi.NewClient(context.Background(), ghapi.Config{
		BaseURL:    srv.URL,
		Repository: "acme/kgr",
		Token:      "secret",
	})
	require.NoError(t, err)
	d, err := New(client, Config{Workflow: "scrape.yml"})
	require.NoError(t, err)

	ack, err := d.Submit(context.Background(), keyword.BatchRequest{
		BatchID:  "seo-batch1",
		Keywords: []string{"red shoes", "blue shoes"},
	})
	require.NoError(t, err)
	require.Equal(t, "scrape.yml@main:seo-batch1", ack.Reference)
	require.Equal(t, "/repos/acme/kgr/actions/workflows/scrape.yml/dispatches", gotPath)
	require.Equal(t, "Bearer secret", gotAuth)
	require.Equal(t, "main", gotBody.Ref)
	require.Equal(t, map[string]string{"id": "seo-batch1", "keywords": "red shoes,blue shoes"}, gotBody.Inputs)
}

func TestSubmitSurfacesRejection(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"Unexpected inputs provided"}`))
	}))
	defer srv.Close()

	client, err := ghapi.NewClient(context.Background(), ghapi.Config{BaseURL: srv.URL, Repository: "acme/kgr"})
	require.NoError(t, err)
	d, err := New(client, Config{Workflow: "scrape.yml", Ref: "release"})
	require.NoError(t, err)

	_, err = d.Submit(context.Background(), keyword.BatchRequest{BatchID: "b", Keywords: []string{"k"}, Ref: "feature"})
	var apiErr *ghapi.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	require.Contains(t, err.Error(), "Unexpected inputs provided")
}

func TestInputsUsesCSVForCommaKeywords(t *testing.T) {
	t.Parallel()

	inputs, err := Inputs(keyword.BatchRequest{BatchID: "b", Keywords: []string{"shoes, red", "hats"}})
	require.NoError(t, err)
	require.NotContains(t, inputs, "keywords")

	raw, err := base64.StdEncoding.DecodeString(inputs["csvFile"])
	require.NoError(t, err)
	parsed, err := partition.ParseSource(partition.Source{File: raw})
	require.NoError(t, err)
	require.Equal(t, []string{"shoes, red", "hats"}, parsed.Keywords)

	_, err = Inputs(keyword.BatchRequest{BatchID: "b"})
	require.Error(t, err)
}

func TestNewRequiresWorkflow(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Workflow: "x"})
	require.Error(t, err)
	_, err = newDispatcher(&ghapi.Client{}, Config{})
	require.Error(t, err)
}
