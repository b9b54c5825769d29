// Package tiles selects the tiles visible for a view and keeps their
// resources cached.
package tiles

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/geoyee/globetile/internal/cache"
	"github.com/geoyee/globetile/internal/calculator"
	"github.com/geoyee/globetile/internal/download"
	"github.com/geoyee/globetile/internal/logger"
	"github.com/geoyee/globetile/internal/model"
)

var (
	// ErrInvalidResolution is returned for a non-positive target resolution.
	ErrInvalidResolution = errors.New("target resolution must be positive")
	// ErrInvalidViewport is returned for a draw context without a viewport.
	ErrInvalidViewport = errors.New("viewport must have a positive size")
)

// Requester starts asynchronous resource retrievals. It is implemented by
// *download.Retriever.
type Requester interface {
	Request(tile model.Tile, key string, done download.Completion) bool
}

// Options configures a TileCache.
type Options struct {
	// ResourceType namespaces cache keys, e.g. "imagery" or "elevation".
	ResourceType string
	Tiling       calculator.Tiling
	Cache        *cache.MemoryCache
	Requester    Requester
	// DetailControl scales the target resolution derived from a draw
	// context. Larger values select coarser tiles.
	DetailControl float64
	Redraw        *RedrawSignal
}

// TileCache ties a tiling scheme to a resource cache and a retriever.
type TileCache struct {
	resourceType  string
	tiling        calculator.Tiling
	cache         *cache.MemoryCache
	requester     Requester
	detailControl float64
	redraw        *RedrawSignal
	log           *slog.Logger
}

// New creates a tile cache. Tiling, Cache and Requester are required.
func New(opts Options) (*TileCache, error) {
	if opts.Tiling == nil || opts.Cache == nil || opts.Requester == nil {
		return nil, errors.New("tile cache requires a tiling, a cache and a requester")
	}
	if opts.ResourceType == "" {
		opts.ResourceType = "imagery"
	}
	if opts.DetailControl <= 0 {
		opts.DetailControl = 1
	}
	if opts.Redraw == nil {
		opts.Redraw = NewRedrawSignal()
	}
	return &TileCache{
		resourceType:  opts.ResourceType,
		tiling:        opts.Tiling,
		cache:         opts.Cache,
		requester:     opts.Requester,
		detailControl: opts.DetailControl,
		redraw:        opts.Redraw,
		log:           logger.Component("tiles").With("resource", opts.ResourceType),
	}, nil
}

// Key returns the cache key of tile's resource.
func (tc *TileCache) Key(tile model.Tile) string {
	return tile.CacheKey(tc.resourceType)
}

// ComputeVisibleTiles returns, for each part of sector, the coarsest tile
// whose texel size is at most targetResolution, or the deepest cached
// ancestor of that tile when it is not cached yet. Areas with no cached tile
// on the path are left out. Returned tiles are marked in use for the current
// frame.
func (tc *TileCache) ComputeVisibleTiles(sector model.Sector, targetResolution float64) ([]model.Tile, error) {
	visible, _, err := tc.computeTiles(sector, targetResolution)
	return visible, err
}

// computeTiles walks the quadtree depth-first and also returns the target
// tiles that are not cached.
func (tc *TileCache) computeTiles(sector model.Sector, targetResolution float64) ([]model.Tile, []model.Tile, error) {
	if !(targetResolution > 0) {
		tc.log.Error("invalid target resolution", "op", "computeVisibleTiles", "resolution", targetResolution)
		return nil, nil, fmt.Errorf("%v: %w", targetResolution, ErrInvalidResolution)
	}
	if err := sector.Validate(); err != nil {
		tc.log.Error("invalid sector", "op", "computeVisibleTiles", "sector", sector.String())
		return nil, nil, err
	}
	roots, err := tc.tiling.LevelZeroTiles(sector)
	if err != nil {
		return nil, nil, err
	}

	lastLevel := tc.tiling.NumLevels() - 1
	var visible, missing []model.Tile
	emitted := make(map[string]bool)
	emit := func(tile model.Tile, key string) {
		if emitted[key] {
			return
		}
		emitted[key] = true
		tc.cache.Touch(key)
		visible = append(visible, tile)
	}

	var walk func(tile model.Tile, fallback *model.Tile) error
	walk = func(tile model.Tile, fallback *model.Tile) error {
		level, err := tc.tiling.Level(tile.Level)
		if err != nil {
			return err
		}
		key := tc.Key(tile)
		cached := tc.cache.ContainsKey(key)
		if cached {
			fallback = &tile
		}

		if level.TexelSize <= targetResolution || tile.Level >= lastLevel {
			switch {
			case cached:
				emit(tile, key)
			case fallback != nil:
				missing = append(missing, tile)
				emit(*fallback, tc.Key(*fallback))
			default:
				missing = append(missing, tile)
			}
			return nil
		}

		children, err := tc.tiling.Children(tile)
		if err != nil {
			return err
		}
		for _, child := range children {
			if !calculator.TileIntersects(child.Sector, sector) {
				continue
			}
			if err := walk(child, fallback); err != nil {
				return err
			}
		}
		return nil
	}

	for _, root := range roots {
		if err := walk(root, nil); err != nil {
			return nil, nil, err
		}
	}
	return visible, missing, nil
}

// ResourceForTile looks up tile's resource without side effects.
func (tc *TileCache) ResourceForTile(tile model.Tile) (any, bool) {
	return tc.cache.Peek(tc.Key(tile))
}

// RequestTileResource retrieves tile's resource unless it is cached or
// already being retrieved, and reports whether a retrieval started. On
// success the resource is cached, onComplete is called and a redraw is
// requested. Failures are logged by the retriever and leave the tile absent
// until a later request.
func (tc *TileCache) RequestTileResource(tile model.Tile, onComplete func(tile model.Tile, resource any)) bool {
	key := tc.Key(tile)
	if tc.cache.ContainsKey(key) {
		return false
	}
	return tc.requester.Request(tile, key, func(tile model.Tile, res any, size int64, err error) {
		if err != nil {
			return
		}
		if err := tc.cache.Put(key, res, size); err != nil {
			tc.log.Warn("resource not cached", "op", "requestTileResource", "key", key, "error", err)
			return
		}
		if onComplete != nil {
			onComplete(tile, res)
		}
		tc.redraw.Request()
	})
}

// Insert adds or replaces a cache entry.
func (tc *TileCache) Insert(key string, resource any, size int64) error {
	return tc.cache.Put(key, resource, size)
}

// SetCapacity sets the cache budget in bytes.
func (tc *TileCache) SetCapacity(bytes int64) error {
	return tc.cache.SetCapacity(bytes)
}

func (tc *TileCache) Cache() *cache.MemoryCache { return tc.cache }

func (tc *TileCache) Tiling() calculator.Tiling { return tc.tiling }

func (tc *TileCache) Redraw() *RedrawSignal { return tc.redraw }

func (tc *TileCache) ResourceType() string { return tc.resourceType }
