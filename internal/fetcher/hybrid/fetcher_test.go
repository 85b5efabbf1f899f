package hybrid

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectorPromote(t *testing.T) {
	t.Parallel()

	d := NewDetector("#result-stats", 0)
	cases := []struct {
		name    string
		body    string
		reason  string
		promote bool
	}{
		{"marker present", `<div id="result-stats">About 1,234 results</div>`, "", false},
		{"empty", "  \n", ReasonEmpty, true},
		{"blocked", "<p>Our systems have detected Unusual Traffic</p>", ReasonBlocked, true},
		{"script heavy", "<html><script>" + strings.Repeat("x", 200) + "</script><div></div></html>", ReasonScriptHeavy, true},
		{"missing marker", "<html><body>" + strings.Repeat("plain ", 50) + "</body></html>", ReasonMissingMarker, true},
	}
	for _, tc := range cases {
		reason, promote := d.Promote([]byte(tc.body))
		require.Equal(t, tc.promote, promote, tc.name)
		require.Equal(t, tc.reason, reason, tc.name)
	}
}

func TestDetectorWithoutMarker(t *testing.T) {
	t.Parallel()

	d := NewDetector("", 0)
	_, promote := d.Promote([]byte("<html><body>anything</body></html>"))
	require.False(t, promote)
}

func TestSelectorMarker(t *testing.T) {
	t.Parallel()

	require.Equal(t, "result-stats", selectorMarker("#result-stats"))
	require.Equal(t, "stats", selectorMarker(".stats > span"))
	require.Equal(t, "", selectorMarker(""))
}

func TestScriptDensityUnclosedTag(t *testing.T) {
	t.Parallel()

	require.True(t, scriptDensityHigh("<p>a</p><script"))
	require.False(t, scriptDensityHigh(strings.Repeat("text ", 40)+"<script>x</script>"))
}

func TestFetcherKeepsUsablePlainPage(t *testing.T) {
	t.Parallel()

	primary := &stubFetcher{body: `<div id="result-stats">About 5 results</div>`}
	renderer := &stubFetcher{body: "rendered"}
	f, err := New(primary, renderer, NewDetector("#result-stats", 0), nil)
	require.NoError(t, err)

	body, err := f.Fetch(context.Background(), "https://example.test/search?q=a")
	require.NoError(t, err)
	require.Contains(t, string(body), "About 5 results")
	require.Zero(t, renderer.calls)
}

func TestFetcherPromotesBlockedAndFailedFetches(t *testing.T) {
	t.Parallel()

	renderer := &stubFetcher{body: `<div id="result-stats">About 9 results</div>`}
	f, err := New(&stubFetcher{body: "captcha"}, renderer, NewDetector("#result-stats", 0), nil)
	require.NoError(t, err)
	body, err := f.Fetch(context.Background(), "u")
	require.NoError(t, err)
	require.Contains(t, string(body), "About 9 results")

	f, err = New(&stubFetcher{err: errors.New("status 429")}, renderer, nil, nil)
	require.NoError(t, err)
	_, err = f.Fetch(context.Background(), "u")
	require.NoError(t, err)
	require.Equal(t, 2, renderer.calls)
}

func TestFetcherRendererErrorAndCanceledContext(t *testing.T) {
	t.Parallel()

	renderer := &stubFetcher{err: errors.New("chrome crashed")}
	f, err := New(&stubFetcher{body: ""}, renderer, nil, nil)
	require.NoError(t, err)
	_, err = f.Fetch(context.Background(), "u")
	require.ErrorContains(t, err, "empty_body")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f, err = New(&stubFetcher{err: context.Canceled}, renderer, nil, nil)
	require.NoError(t, err)
	_, err = f.Fetch(ctx, "u")
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, renderer.calls)

	_, err = New(nil, renderer, nil, nil)
	require.Error(t, err)
}

type stubFetcher struct {
	body  string
	err   error
	calls int
}

func (s *stubFetcher) Fetch(context.Context, string) ([]byte, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return []byte(s.body), nil
}
