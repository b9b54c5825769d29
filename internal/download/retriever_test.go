package download

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoyee/globetile/internal/model"
	"github.com/geoyee/globetile/internal/store"
)

// fakeFetcher counts fetches and can hold them until released.
type fakeFetcher struct {
	mu      sync.Mutex
	calls   map[string]int
	payload []byte
	err     error
	gate    chan struct{}
}

func newFakeFetcher(payload []byte) *fakeFetcher {
	return &fakeFetcher{calls: map[string]int{}, payload: payload}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.calls[url]++
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.payload, f.err
}

func (f *fakeFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

type bytesDecoder struct{}

func (bytesDecoder) Decode(data []byte) (any, int64, error) {
	if string(data) == "corrupt" {
		return nil, 0, errors.New("decode failed: corrupt")
	}
	return string(data), int64(len(data)), nil
}

// memTier is an in-memory store tier.
type memTier struct {
	name   string
	mu     sync.Mutex
	data   map[string][]byte
	failed map[string]string
	getErr error
}

func newMemTier(name string) *memTier {
	return &memTier{name: name, data: map[string][]byte{}, failed: map[string]string{}}
}

func (m *memTier) Name() string { return m.name }

func (m *memTier) Get(_ context.Context, _ model.Tile, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	d, ok := m.data[key]
	return d, ok, nil
}

func (m *memTier) Put(_ context.Context, _ model.Tile, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = data
	return nil
}

func (m *memTier) MarkFailed(key, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed[key] = reason
}

func (m *memTier) Close() error { return nil }

func (m *memTier) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

const template = "https://tiles.example.com/{z}/{x}/{y}.png"

func newTestRetriever(t *testing.T, opts Options) *Retriever {
	t.Helper()
	opts.URLTemplate = template
	if opts.Decoder == nil {
		opts.Decoder = bytesDecoder{}
	}
	if opts.Threads == 0 {
		opts.Threads = 4
	}
	if opts.QueueSize == 0 {
		opts.QueueSize = 16
	}
	r, err := NewRetriever(opts)
	require.NoError(t, err)
	t.Cleanup(r.Stop)
	return r
}

func waitIdle(t *testing.T, r *Retriever) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, r.Wait(ctx))
}

func TestNewRetrieverRequiresCollaborators(t *testing.T) {
	_, err := NewRetriever(Options{URLTemplate: template, Decoder: bytesDecoder{}})
	assert.Error(t, err)
	_, err = NewRetriever(Options{URLTemplate: template, Fetcher: newFakeFetcher(nil)})
	assert.Error(t, err)
	_, err = NewRetriever(Options{Fetcher: newFakeFetcher(nil), Decoder: bytesDecoder{}})
	assert.Error(t, err)
}

func TestRequestDeduplicatesInFlight(t *testing.T) {
	f := newFakeFetcher([]byte("tile"))
	f.gate = make(chan struct{})
	r := newTestRetriever(t, Options{Fetcher: f})

	tile := model.Tile{Level: 2, Row: 1, Column: 3}
	key := tile.CacheKey("imagery")
	var completions atomic.Int32
	done := func(model.Tile, any, int64, error) { completions.Add(1) }

	assert.True(t, r.Request(tile, key, done))
	assert.False(t, r.Request(tile, key, done))
	assert.False(t, r.Request(tile, key, done))
	assert.True(t, r.IsInFlight(key))

	close(f.gate)
	waitIdle(t, r)

	assert.Equal(t, 1, f.count("https://tiles.example.com/2/3/1.png"))
	assert.Equal(t, int32(1), completions.Load())
	assert.Equal(t, int64(2), atomic.LoadInt64(&r.Stats().Deduplicated))
	assert.False(t, r.IsInFlight(key))

	// Once complete, the key can be requested again.
	assert.True(t, r.Request(tile, key, done))
	waitIdle(t, r)
	assert.Equal(t, 2, f.count("https://tiles.example.com/2/3/1.png"))
}

func TestKeyReleasedAfterCallback(t *testing.T) {
	r := newTestRetriever(t, Options{Fetcher: newFakeFetcher([]byte("tile"))})
	tile := model.Tile{Level: 1}
	key := tile.CacheKey("imagery")

	seenInFlight := make(chan bool, 1)
	require.True(t, r.Request(tile, key, func(model.Tile, any, int64, error) {
		seenInFlight <- r.IsInFlight(key)
	}))
	assert.True(t, <-seenInFlight)
	waitIdle(t, r)
}

func TestSuccessWritesTiers(t *testing.T) {
	f := newFakeFetcher([]byte("fresh"))
	mem, disk := newMemTier("redis"), newMemTier("disk")
	r := newTestRetriever(t, Options{Fetcher: f, Tiers: []store.Store{mem, disk}})

	tile := model.Tile{Level: 3, Row: 2, Column: 1}
	key := tile.CacheKey("imagery")
	var got any
	var gotSize int64
	require.True(t, r.Request(tile, key, func(_ model.Tile, res any, size int64, err error) {
		assert.NoError(t, err)
		got, gotSize = res, size
	}))
	waitIdle(t, r)

	assert.Equal(t, "fresh", got)
	assert.Equal(t, int64(5), gotSize)
	assert.True(t, mem.has(key))
	assert.True(t, disk.has(key))
	assert.Equal(t, int64(1), atomic.LoadInt64(&r.Stats().Succeeded))
	assert.Equal(t, int64(5), atomic.LoadInt64(&r.Stats().BytesTotal))
}

func TestTiersConsultedBeforeNetwork(t *testing.T) {
	f := newFakeFetcher([]byte("network"))
	mem, disk := newMemTier("redis"), newMemTier("disk")
	mem.getErr = errors.New("connection refused")
	tile := model.Tile{Level: 4, Row: 4, Column: 4}
	key := tile.CacheKey("imagery")
	disk.data[key] = []byte("stored")

	r := newTestRetriever(t, Options{Fetcher: f, Tiers: []store.Store{mem, disk}})
	var got any
	require.True(t, r.Request(tile, key, func(_ model.Tile, res any, _ int64, _ error) { got = res }))
	waitIdle(t, r)

	assert.Equal(t, "stored", got)
	assert.Equal(t, 0, f.count("https://tiles.example.com/4/4/4.png"))
	assert.Equal(t, int64(1), atomic.LoadInt64(&r.Stats().StoreHits))
	assert.True(t, mem.has(key), "faster tier is refilled")
}

func TestCorruptStoredPayloadFallsBackToNetwork(t *testing.T) {
	f := newFakeFetcher([]byte("network"))
	disk := newMemTier("disk")
	tile := model.Tile{Level: 1, Row: 0, Column: 1}
	key := tile.CacheKey("imagery")
	disk.data[key] = []byte("corrupt")

	r := newTestRetriever(t, Options{Fetcher: f, Tiers: []store.Store{disk}})
	var got any
	require.True(t, r.Request(tile, key, func(_ model.Tile, res any, _ int64, _ error) { got = res }))
	waitIdle(t, r)
	assert.Equal(t, "network", got)
	assert.Equal(t, []byte("network"), disk.data[key])
}

func TestFailureIsAbsorbed(t *testing.T) {
	f := newFakeFetcher(nil)
	f.err = errors.New("HTTP 404")
	disk := newMemTier("disk")
	absent := NewAbsentList(1, time.Hour, time.Hour)
	r := newTestRetriever(t, Options{Fetcher: f, Tiers: []store.Store{disk}, Absent: absent})

	tile := model.Tile{Level: 5, Row: 1, Column: 1}
	key := tile.CacheKey("imagery")
	var gotErr error
	require.True(t, r.Request(tile, key, func(_ model.Tile, _ any, _ int64, err error) { gotErr = err }))
	waitIdle(t, r)

	assert.EqualError(t, gotErr, "HTTP 404")
	assert.Equal(t, int64(1), atomic.LoadInt64(&r.Stats().Failed))
	assert.Equal(t, map[string]int{"HTTP 404 not found": 1}, r.ErrorStats())
	assert.Equal(t, "HTTP 404", disk.failed[key])
	r.LogErrorStats()

	// The absent list now holds the key back.
	assert.False(t, r.Request(tile, key, nil))
	assert.Equal(t, 1, f.count("https://tiles.example.com/5/1/1.png"))
}

func TestFailuresRetriedWhenAbsentListDisabled(t *testing.T) {
	f := newFakeFetcher(nil)
	f.err = errors.New("dial tcp: connection refused")
	r := newTestRetriever(t, Options{Fetcher: f})
	tile := model.Tile{}
	key := tile.CacheKey("imagery")

	require.True(t, r.Request(tile, key, nil))
	waitIdle(t, r)
	require.True(t, r.Request(tile, key, nil))
	waitIdle(t, r)
	assert.Equal(t, 2, f.count("https://tiles.example.com/0/0/0.png"))
}

func TestValidationRejectsPayload(t *testing.T) {
	f := newFakeFetcher([]byte("<html>error</html>"))
	r := newTestRetriever(t, Options{Fetcher: f, Validate: func([]byte) bool { return false }})
	var gotErr error
	require.True(t, r.Request(model.Tile{}, "k", func(_ model.Tile, _ any, _ int64, err error) { gotErr = err }))
	waitIdle(t, r)
	assert.ErrorIs(t, gotErr, ErrInvalidPayload)
}

func TestRequestRejectedWhenQueueFull(t *testing.T) {
	f := newFakeFetcher([]byte("x"))
	f.gate = make(chan struct{})
	r := newTestRetriever(t, Options{Fetcher: f, Threads: 1, QueueSize: 1})

	require.True(t, r.Request(model.Tile{Level: 1}, "a", nil))
	require.Eventually(t, func() bool { return f.count("https://tiles.example.com/1/0/0.png") == 1 }, time.Second, time.Millisecond)
	require.True(t, r.Request(model.Tile{Level: 2}, "b", nil))
	assert.False(t, r.Request(model.Tile{Level: 3}, "c", nil))
	assert.False(t, r.IsInFlight("c"))
	assert.Equal(t, int64(1), atomic.LoadInt64(&r.Stats().Rejected))

	close(f.gate)
	waitIdle(t, r)
}

func TestStoppedRetrieverRejects(t *testing.T) {
	r := newTestRetriever(t, Options{Fetcher: newFakeFetcher([]byte("x"))})
	r.Stop()
	assert.False(t, r.Request(model.Tile{}, "k", nil))
}

func TestWaitHonorsContext(t *testing.T) {
	f := newFakeFetcher([]byte("x"))
	f.gate = make(chan struct{})
	r := newTestRetriever(t, Options{Fetcher: f})
	require.True(t, r.Request(model.Tile{}, "k", nil))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Wait(ctx), context.DeadlineExceeded)
	close(f.gate)
	waitIdle(t, r)
}

func TestRequestWaitBlocksForQueueSpace(t *testing.T) {
	f := newFakeFetcher([]byte("x"))
	f.gate = make(chan struct{})
	r := newTestRetriever(t, Options{Fetcher: f, Threads: 1, QueueSize: 1})

	require.True(t, r.Request(model.Tile{Level: 1}, "a", nil))
	require.Eventually(t, func() bool { return f.count("https://tiles.example.com/1/0/0.png") == 1 }, time.Second, time.Millisecond)
	require.True(t, r.Request(model.Tile{Level: 2}, "b", nil))

	// Queue is full: a short deadline gives up and releases the key.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	started, err := r.RequestWait(ctx, model.Tile{Level: 3}, "c", nil)
	cancel()
	assert.False(t, started)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, r.IsInFlight("c"))

	// With the gate open the request gets queued.
	close(f.gate)
	started, err = r.RequestWait(context.Background(), model.Tile{Level: 3}, "c", nil)
	require.NoError(t, err)
	assert.True(t, started)
	waitIdle(t, r)
	assert.Equal(t, 1, f.count("https://tiles.example.com/3/0/0.png"))

	// Duplicates are skipped without error.
	f.gate = make(chan struct{})
	require.True(t, r.Request(model.Tile{Level: 4}, "d", nil))
	started, err = r.RequestWait(context.Background(), model.Tile{Level: 4}, "d", nil)
	assert.NoError(t, err)
	assert.False(t, started)
	close(f.gate)
	waitIdle(t, r)

	r.Stop()
	_, err = r.RequestWait(context.Background(), model.Tile{Level: 5}, "e", nil)
	assert.ErrorIs(t, err, ErrPoolStopped)
}
