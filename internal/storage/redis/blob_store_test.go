package redis

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/kgr-crawler/internal/keyword"
)

func TestPutGetObject(t *testing.T) {
	t.Parallel()

	fake := newFakeRedis()
	store, err := New(fake, Config{KeyPrefix: "kgr:", TTL: time.Hour})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "results/j-batch1.csv", "text/csv", bytes.NewReader([]byte("data")))
	require.NoError(t, err)
	require.Equal(t, "redis://kgr:results/j-batch1.csv", uri)
	require.Equal(t, time.Hour, fake.ttls["kgr:results/j-batch1.csv"])

	art, err := store.GetObject(context.Background(), "results/j-batch1.csv")
	require.NoError(t, err)
	require.Equal(t, "data", string(art.Data))
	require.Equal(t, uri, art.URL)
}

func TestGetObjectMissing(t *testing.T) {
	t.Parallel()

	store, err := New(newFakeRedis(), Config{})
	require.NoError(t, err)
	_, err = store.GetObject(context.Background(), "absent")
	require.ErrorIs(t, err, keyword.ErrArtifactNotFound)
}

func TestGetObjectBackendError(t *testing.T) {
	t.Parallel()

	fake := newFakeRedis()
	fake.err = errors.New("connection refused")
	store, err := New(fake, Config{})
	require.NoError(t, err)
	_, err = store.GetObject(context.Background(), "x")
	require.Error(t, err)
	require.NotErrorIs(t, err, keyword.ErrArtifactNotFound)

	_, err = store.PutObject(context.Background(), "x", "", bytes.NewReader(nil))
	require.Error(t, err)
}

func TestNewRequiresClient(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{})
	require.Error(t, err)
}

type fakeRedis struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
	err  error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *goredis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := goredis.NewStringCmd(ctx, "get", key)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	v, ok := f.data[key]
	if !ok {
		cmd.SetErr(goredis.Nil)
		return cmd
	}
	cmd.SetVal(string(v))
	return cmd
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := goredis.NewStatusCmd(ctx, "set", key, value)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	b, _ := value.([]byte)
	f.data[key] = append([]byte(nil), b...)
	f.ttls[key] = expiration
	cmd.SetVal("OK")
	return cmd
}
