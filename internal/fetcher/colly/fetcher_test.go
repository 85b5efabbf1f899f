package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"
)

func TestFetcherBuildCollector(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "kgr-agent", Timeout: time.Second})
	collector := f.buildCollector(new([]byte), new(error))
	if collector.UserAgent != "kgr-agent" {
		t.Fatalf("expected user agent override, got %q", collector.UserAgent)
	}
	if !collector.IgnoreRobotsTxt {
		t.Fatal("expected robots txt to be ignored")
	}
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{AcceptLanguage: "en-US", Headers: http.Header{"X-Trace": {"yes"}}})
	var (
		body     []byte
		fetchErr error
	)
	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, &body, &fetchErr)
	if hooks.onRequest == nil || hooks.onResponse == nil || hooks.onError == nil {
		t.Fatal("expected hooks to be registered")
	}

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	if collyReq.Headers.Get("X-Trace") != "yes" || collyReq.Headers.Get("Accept-Language") != "en-US" {
		t.Fatalf("expected header propagation, got %+v", collyReq.Headers)
	}

	hooks.onResponse(&colly.Response{StatusCode: http.StatusOK, Body: []byte("body")})
	if string(body) != "body" {
		t.Fatalf("unexpected body: %q", body)
	}

	hooks.onError(&colly.Response{StatusCode: http.StatusTooManyRequests}, errors.New("Too Many Requests"))
	if fetchErr == nil || fetchErr.Error() != "status 429: Too Many Requests" {
		t.Fatalf("expected fetchErr set, got %v", fetchErr)
	}
}

func TestFetchAgainstServer(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") == "blocked" {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprintf(w, `<div id="result-stats">About 12 results</div><p>%s</p>`, r.UserAgent())
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "kgr-test", Timeout: 2 * time.Second})
	body, err := f.Fetch(context.Background(), srv.URL+"/search?q=ok")
	require.NoError(t, err)
	require.Contains(t, string(body), "About 12 results")
	require.Contains(t, string(body), "kgr-test")

	_, err = f.Fetch(context.Background(), srv.URL+"/search?q=blocked")
	require.Error(t, err)
	require.Contains(t, err.Error(), "429")
}

func TestFetchCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Config{}).Fetch(ctx, "http://127.0.0.1:1/search")
	require.Error(t, err)
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
