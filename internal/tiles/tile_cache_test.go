package tiles

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoyee/globetile/internal/cache"
	"github.com/geoyee/globetile/internal/calculator"
	"github.com/geoyee/globetile/internal/download"
	"github.com/geoyee/globetile/internal/model"
)

var (
	world = model.Sector{MinLat: -90, MaxLat: 90, MinLon: -180, MaxLon: 180}
	// view lies inside level-0 tile (0,1,2) and level-1 row 2.
	view = model.Sector{MinLat: 10, MaxLat: 40, MinLon: 10, MaxLon: 80}
)

type request struct {
	tile model.Tile
	key  string
	done download.Completion
}

// fakeRequester records requests and completes them on demand.
type fakeRequester struct {
	mu       sync.Mutex
	requests []request
	accept   bool
}

func (f *fakeRequester) Request(tile model.Tile, key string, done download.Completion) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, request{tile: tile, key: key, done: done})
	return f.accept
}

func (f *fakeRequester) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.requests))
	for _, r := range f.requests {
		keys = append(keys, r.key)
	}
	return keys
}

// newTestTileCache builds a cache over a 3-level world level set with
// 90-degree level-zero tiles and 256-pixel tiles.
func newTestTileCache(t *testing.T, req Requester) (*TileCache, *calculator.LevelSet) {
	t.Helper()
	ls, err := calculator.NewLevelSet(world, 90, 3, 256, 256)
	require.NoError(t, err)
	mc, err := cache.NewMemoryCache(1<<20, 0)
	require.NoError(t, err)
	tc, err := New(Options{Tiling: ls, Cache: mc, Requester: req})
	require.NoError(t, err)
	return tc, ls
}

func tileAt(t *testing.T, ls *calculator.LevelSet, level, row, col int) model.Tile {
	t.Helper()
	tile, err := ls.Tile(level, row, col)
	require.NoError(t, err)
	return tile
}

func coords(tiles []model.Tile) [][3]int {
	out := make([][3]int, 0, len(tiles))
	for _, tile := range tiles {
		out = append(out, [3]int{tile.Level, tile.Row, tile.Column})
	}
	return out
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	tc, _ := newTestTileCache(t, &fakeRequester{})
	assert.Equal(t, "imagery", tc.ResourceType())
	assert.Equal(t, "imagery/1/2/4", tc.Key(model.Tile{Level: 1, Row: 2, Column: 4}))
}

func TestComputeVisibleTilesFallsBackToFinestCached(t *testing.T) {
	tc, ls := newTestTileCache(t, &fakeRequester{})
	for _, col := range []int{4, 5} {
		tile := tileAt(t, ls, 1, 2, col)
		require.NoError(t, tc.Insert(tc.Key(tile), "level1", 100))
	}
	require.NoError(t, tc.Insert(tc.Key(tileAt(t, ls, 0, 1, 2)), "level0", 100))

	// Finer than the last level: targets are level-2 tiles, none cached.
	visible, missing, err := tc.computeTiles(view, 0.001)
	require.NoError(t, err)
	assert.Equal(t, [][3]int{{1, 2, 4}, {1, 2, 5}}, coords(visible))
	assert.Len(t, missing, 8)
	for _, tile := range missing {
		assert.Equal(t, 2, tile.Level)
	}
}

func TestComputeVisibleTilesPrefersTarget(t *testing.T) {
	tc, ls := newTestTileCache(t, &fakeRequester{})
	require.NoError(t, tc.Insert(tc.Key(tileAt(t, ls, 0, 1, 2)), "level0", 100))
	require.NoError(t, tc.Insert(tc.Key(tileAt(t, ls, 1, 2, 4)), "level1", 100))

	// 0.2 degrees per texel selects level 1 (45/256 per texel).
	visible, missing, err := tc.computeTiles(view, 0.2)
	require.NoError(t, err)
	assert.Equal(t, [][3]int{{1, 2, 4}, {0, 1, 2}}, coords(visible))
	assert.Equal(t, [][3]int{{1, 2, 5}}, coords(missing))

	// Coarse enough for level 0.
	visible, err = tc.ComputeVisibleTiles(view, 1)
	require.NoError(t, err)
	assert.Equal(t, [][3]int{{0, 1, 2}}, coords(visible))
}

func TestComputeVisibleTilesNothingCached(t *testing.T) {
	tc, _ := newTestTileCache(t, &fakeRequester{})
	visible, missing, err := tc.computeTiles(view, 0.2)
	require.NoError(t, err)
	assert.Empty(t, visible)
	assert.Equal(t, [][3]int{{1, 2, 4}, {1, 2, 5}}, coords(missing))
}

func TestComputeVisibleTilesMarksTilesInUse(t *testing.T) {
	tc, ls := newTestTileCache(t, &fakeRequester{})
	require.NoError(t, tc.SetCapacity(200))
	level0 := tileAt(t, ls, 0, 1, 2)
	require.NoError(t, tc.Insert(tc.Key(level0), "level0", 100))
	require.NoError(t, tc.Insert("other", "x", 100))

	tc.Cache().BeginFrame()
	_, err := tc.ComputeVisibleTiles(view, 1)
	require.NoError(t, err)

	// level0 is in use, so "other" is evicted even though it is newer.
	require.NoError(t, tc.Insert("new", "y", 100))
	assert.True(t, tc.Cache().ContainsKey(tc.Key(level0)))
	assert.False(t, tc.Cache().ContainsKey("other"))
}

func TestComputeVisibleTilesInvalidArguments(t *testing.T) {
	tc, _ := newTestTileCache(t, &fakeRequester{})
	_, err := tc.ComputeVisibleTiles(view, 0)
	assert.ErrorIs(t, err, ErrInvalidResolution)
	_, err = tc.ComputeVisibleTiles(view, -1)
	assert.ErrorIs(t, err, ErrInvalidResolution)
	_, err = tc.ComputeVisibleTiles(model.Sector{MinLat: 50, MaxLat: 10, MinLon: 0, MaxLon: 10}, 1)
	assert.Error(t, err)
}

func TestRequestTileResource(t *testing.T) {
	req := &fakeRequester{accept: true}
	tc, ls := newTestTileCache(t, req)
	tile := tileAt(t, ls, 1, 2, 4)

	var got any
	require.True(t, tc.RequestTileResource(tile, func(_ model.Tile, res any) { got = res }))
	require.Len(t, req.requests, 1)
	assert.False(t, tc.Redraw().Pending())

	req.requests[0].done(tile, "texture", 64, nil)
	assert.Equal(t, "texture", got)
	res, ok := tc.ResourceForTile(tile)
	require.True(t, ok)
	assert.Equal(t, "texture", res)
	assert.True(t, tc.Redraw().Pending())

	// Cached now: no further request.
	assert.False(t, tc.RequestTileResource(tile, nil))
	assert.Len(t, req.requests, 1)
}

func TestRequestTileResourceFailureLeavesTileAbsent(t *testing.T) {
	req := &fakeRequester{accept: true}
	tc, ls := newTestTileCache(t, req)
	tile := tileAt(t, ls, 0, 1, 2)

	called := false
	require.True(t, tc.RequestTileResource(tile, func(model.Tile, any) { called = true }))
	req.requests[0].done(tile, nil, 0, assert.AnError)

	assert.False(t, called)
	_, ok := tc.ResourceForTile(tile)
	assert.False(t, ok)
	assert.False(t, tc.Redraw().Pending())
}

type countingFetcher struct {
	mu    sync.Mutex
	calls int
	gate  chan struct{}
}

func (f *countingFetcher) Fetch(ctx context.Context, _ string) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	select {
	case <-f.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return []byte("payload"), nil
}

type stringDecoder struct{}

func (stringDecoder) Decode(data []byte) (any, int64, error) {
	return string(data), int64(len(data)), nil
}

func TestRequestTileResourceDeduplicatesInFlight(t *testing.T) {
	fetcher := &countingFetcher{gate: make(chan struct{})}
	r, err := download.NewRetriever(download.Options{
		Threads:     2,
		QueueSize:   4,
		URLTemplate: "https://tiles.test/{z}/{x}/{y}.png",
		Fetcher:     fetcher,
		Decoder:     stringDecoder{},
	})
	require.NoError(t, err)
	defer r.Stop()

	tc, ls := newTestTileCache(t, r)
	tile := tileAt(t, ls, 0, 1, 2)

	assert.True(t, tc.RequestTileResource(tile, nil))
	assert.False(t, tc.RequestTileResource(tile, nil))
	close(fetcher.gate)

	select {
	case <-tc.Redraw().C():
	case <-time.After(5 * time.Second):
		t.Fatal("no redraw after retrieval")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Wait(ctx))

	fetcher.mu.Lock()
	assert.Equal(t, 1, fetcher.calls)
	fetcher.mu.Unlock()
	res, ok := tc.ResourceForTile(tile)
	require.True(t, ok)
	assert.Equal(t, "payload", res)
}

func TestAssembleTilesRequestsMissingAndLevelZero(t *testing.T) {
	req := &fakeRequester{accept: true}
	tc, ls := newTestTileCache(t, req)
	require.NoError(t, tc.Insert(tc.Key(tileAt(t, ls, 0, 1, 2)), "level0", 100))

	// 30 degrees over 150 pixels is 0.2 degrees per pixel: level 1.
	dc := DrawContext{VisibleSector: view, Viewport: Viewport{Width: 300, Height: 150}}
	visible, err := tc.AssembleTiles(dc)
	require.NoError(t, err)
	assert.Equal(t, [][3]int{{0, 1, 2}}, coords(visible))
	// The cached level-zero tile is not requested again.
	assert.Equal(t, []string{"imagery/1/2/4", "imagery/1/2/5"}, req.keys())
	assert.Equal(t, uint64(2), tc.Cache().Stats().Frame)

	_, err = tc.AssembleTiles(DrawContext{VisibleSector: view})
	assert.ErrorIs(t, err, ErrInvalidViewport)
}

func TestDetailControlCoarsensTargets(t *testing.T) {
	ls, err := calculator.NewLevelSet(world, 90, 3, 256, 256)
	require.NoError(t, err)
	mc, err := cache.NewMemoryCache(1<<20, 0)
	require.NoError(t, err)
	req := &fakeRequester{accept: true}
	tc, err := New(Options{Tiling: ls, Cache: mc, Requester: req, DetailControl: 2})
	require.NoError(t, err)

	dc := DrawContext{VisibleSector: view, Viewport: Viewport{Width: 300, Height: 150}}
	res, err := dc.TargetResolution(2)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, res, 1e-9)

	_, err = tc.AssembleTiles(dc)
	require.NoError(t, err)
	assert.Equal(t, []string{"imagery/0/1/2"}, req.keys())
}
