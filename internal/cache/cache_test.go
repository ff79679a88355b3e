package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/any-hub/release-hub/internal/apperr"
	"github.com/any-hub/release-hub/internal/store"
)

type payload struct {
	Version string   `json:"version"`
	Items   []string `json:"items"`
}

// counter 记录 fetch 调用次数，返回值随 upstream 变化。
type counter struct {
	calls    atomic.Int32
	mu       sync.Mutex
	upstream payload
	err      error
}

func (c *counter) fetch(context.Context) (payload, error) {
	c.calls.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.upstream, c.err
}

func (c *counter) set(p payload, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.upstream, c.err = p, err
}

func newRedisBacked(t *testing.T) (store.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := store.NewRedisStore(store.RedisOptions{
		Addr: mr.Addr(),
		Databases: map[store.Namespace]int{
			store.NamespaceClients:       0,
			store.NamespaceTokens:        1,
			store.NamespaceCache:         2,
			store.NamespaceMirrors:       3,
			store.NamespaceAnnouncements: 4,
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestLoadHitReturnsSameValueWithoutFetching(t *testing.T) {
	ctx := context.Background()
	c := New(store.NewMemoryStore(), Options{TTL: time.Minute})
	up := &counter{upstream: payload{Version: "v1", Items: []string{"a", "b"}}}

	first, status, err := Load(ctx, c, KeyReleases, up.fetch)
	require.NoError(t, err)
	assert.Equal(t, StatusMiss, status)

	for i := 0; i < 3; i++ {
		again, status, err := Load(ctx, c, KeyReleases, up.fetch)
		require.NoError(t, err)
		assert.Equal(t, StatusHit, status)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, int32(1), up.calls.Load())
}

func TestLoadRepopulatesAfterExpiry(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisBacked(t)
	c := New(s, Options{TTL: 30 * time.Second})
	up := &counter{upstream: payload{Version: "v1"}}

	_, _, err := Load(ctx, c, KeyPatches, up.fetch)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, mr.DB(2).TTL(KeyPatches))

	up.set(payload{Version: "v2"}, nil)
	got, status, err := Load(ctx, c, KeyPatches, up.fetch)
	require.NoError(t, err)
	assert.Equal(t, StatusHit, status)
	assert.Equal(t, "v1", got.Version, "hit must not revalidate")

	mr.FastForward(31 * time.Second)
	got, status, err = Load(ctx, c, KeyPatches, up.fetch)
	require.NoError(t, err)
	assert.Equal(t, StatusMiss, status)
	assert.Equal(t, "v2", got.Version)
	assert.Equal(t, int32(2), up.calls.Load())
}

func TestInvalidateForcesSingleRefetch(t *testing.T) {
	ctx := context.Background()
	c := New(store.NewMemoryStore(), Options{TTL: time.Hour})
	up := &counter{upstream: payload{Version: "v1"}}
	key := CommitsKey("revanced/revanced-cli", "v1.0.0", "latest")

	_, _, err := Load(ctx, c, key, up.fetch)
	require.NoError(t, err)

	deleted, err := c.Invalidate(ctx, key)
	require.NoError(t, err)
	assert.True(t, deleted)

	up.set(payload{Version: "v2"}, nil)
	got, _, err := Load(ctx, c, key, up.fetch)
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Version)
	_, status, err := Load(ctx, c, key, up.fetch)
	require.NoError(t, err)
	assert.Equal(t, StatusHit, status)
	assert.Equal(t, int32(2), up.calls.Load())

	deleted, err = c.Invalidate(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = c.Invalidate(ctx, "")
	assert.ErrorIs(t, err, apperr.ErrBadRequest)
}

func TestFetchFailureIsNotCached(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	c := New(mem, Options{TTL: time.Hour})
	up := &counter{}
	up.set(payload{}, apperr.ErrUpstreamUnavailable)

	_, _, err := Load(ctx, c, KeyContributors, up.fetch)
	assert.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)

	exists, err := mem.Exists(ctx, store.NamespaceCache, KeyContributors)
	require.NoError(t, err)
	assert.False(t, exists)

	up.set(payload{Version: "ok"}, nil)
	got, status, err := Load(ctx, c, KeyContributors, up.fetch)
	require.NoError(t, err)
	assert.Equal(t, StatusMiss, status)
	assert.Equal(t, "ok", got.Version)
}

func TestConcurrentMissesShareOneFetch(t *testing.T) {
	ctx := context.Background()
	c := New(store.NewMemoryStore(), Options{TTL: time.Hour})

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(context.Context) (payload, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return payload{Version: "v1"}, nil
	}

	const n = 8
	var wg sync.WaitGroup
	results := make([]payload, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _, errs[i] = Load(ctx, c, KeyReleases, fetch)
		}()
	}

	<-started
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "v1", results[i].Version)
	}
}

func TestWaitingCallerHonoursItsOwnDeadline(t *testing.T) {
	c := New(store.NewMemoryStore(), Options{TTL: time.Hour})

	started := make(chan struct{})
	release := make(chan struct{})
	slow := func(context.Context) (payload, error) {
		close(started)
		<-release
		return payload{Version: "v1"}, nil
	}

	leader := make(chan error, 1)
	go func() {
		_, _, err := Load(context.Background(), c, KeyReleases, slow)
		leader <- err
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	begin := time.Now()
	_, _, err := Load(ctx, c, KeyReleases, func(context.Context) (payload, error) {
		t.Error("follower must not fetch")
		return payload{}, nil
	})
	assert.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(begin), time.Second)

	close(release)
	require.NoError(t, <-leader)
}

func TestWriteFailureStillReturnsFetchedValue(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisBacked(t)
	c := New(s, Options{TTL: time.Minute})
	mr.Close()

	up := &counter{upstream: payload{Version: "v1"}}
	got, status, err := Load(ctx, c, KeyReleases, up.fetch)
	require.NoError(t, err)
	assert.Equal(t, StatusMiss, status)
	assert.Equal(t, "v1", got.Version)
}

func TestCorruptEntryIsTreatedAsMiss(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	require.NoError(t, mem.Set(ctx, store.NamespaceCache, KeyReleases, []byte("{not json"), time.Hour))

	c := New(mem, Options{TTL: time.Hour})
	up := &counter{upstream: payload{Version: "fresh"}}
	got, status, err := Load(ctx, c, KeyReleases, up.fetch)
	require.NoError(t, err)
	assert.Equal(t, StatusMiss, status)
	assert.Equal(t, "fresh", got.Version)
}

func TestMetricsCountHitsMissesAndErrors(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	c := New(store.NewMemoryStore(), Options{TTL: time.Hour, Metrics: metrics})

	up := &counter{upstream: payload{Version: "v1"}}
	_, _, _ = Load(ctx, c, KeyReleases, up.fetch)
	_, _, _ = Load(ctx, c, KeyReleases, up.fetch)
	_, _, _ = Load(ctx, c, KeyPatches, func(context.Context) (payload, error) {
		return payload{}, errors.New("boom")
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.requests.WithLabelValues(KeyReleases, "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.requests.WithLabelValues(KeyReleases, "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.requests.WithLabelValues(KeyPatches, "error")))

	metrics.ObserveUpstream("releases", 200, 10*time.Millisecond)
	metrics.ObserveUpstream("releases", 0, time.Millisecond)
	assert.Equal(t, 2, testutil.CollectAndCount(metrics.upstream))
}

func TestCatalogue(t *testing.T) {
	c := DefaultCatalogue(time.Minute)
	assert.Equal(t, []string{KeyCommits, KeyContributors, KeyPatches, KeyReleases}, c.Keys())

	res, ok := c.Resolve(CommitsKey("revanced/revanced-cli", "v1", "latest"))
	require.True(t, ok)
	assert.Equal(t, KeyCommits, res.Key)

	_, ok = c.Resolve(KeyCommits)
	assert.False(t, ok, "commits requires parameters")
	_, ok = c.Resolve("releases:extra")
	assert.False(t, ok)
	_, ok = c.Resolve("RELEASES")
	assert.True(t, ok)

	assert.Error(t, c.Register(Resource{Key: "releases"}))
	assert.Error(t, c.Register(Resource{Key: ""}))
	assert.Error(t, c.Register(Resource{Key: "a:b"}))
}

func TestTTLForUsesResourceOverride(t *testing.T) {
	catalogue := NewCatalogue()
	catalogue.MustRegister(Resource{Key: KeyPatches, TTL: 10 * time.Second})
	c := New(store.NewMemoryStore(), Options{TTL: time.Minute, Catalogue: catalogue})

	assert.Equal(t, 10*time.Second, c.TTLFor(KeyPatches))
	assert.Equal(t, time.Minute, c.TTLFor(KeyReleases))
}
