// Package pipeline assembles the tile pipeline from a configuration: tiling,
// memory cache, fetch client, persistent tiers, retriever and tile cache.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/geoyee/globetile/internal/cache"
	"github.com/geoyee/globetile/internal/calculator"
	"github.com/geoyee/globetile/internal/client"
	"github.com/geoyee/globetile/internal/config"
	"github.com/geoyee/globetile/internal/download"
	"github.com/geoyee/globetile/internal/logger"
	"github.com/geoyee/globetile/internal/model"
	"github.com/geoyee/globetile/internal/resource"
	"github.com/geoyee/globetile/internal/stats"
	"github.com/geoyee/globetile/internal/store"
	"github.com/geoyee/globetile/internal/tiles"
	"github.com/geoyee/globetile/internal/util"
)

// ErrSkipped is reported to Prefetch callbacks for tiles that were not
// retrieved because another caller is already retrieving them or the key is
// on the absent list.
var ErrSkipped = errors.New("tile skipped: in flight elsewhere or marked absent")

// Pipeline owns every component built from one configuration.
type Pipeline struct {
	Config    *model.Config
	Tiling    calculator.Tiling
	Cache     *cache.MemoryCache
	Tiles     *tiles.TileCache
	Retriever *download.Retriever
	Monitor   *stats.Monitor
	Disk      *store.DiskStore
	Redis     *store.RedisStore

	http *client.HTTPClient
	log  *slog.Logger
}

// Option customizes New.
type Option func(*options)

type options struct {
	fetcher         client.Fetcher
	monitorInterval time.Duration
	noRedis         bool
}

// WithFetcher replaces the HTTP client.
func WithFetcher(f client.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithMonitorInterval sets how often progress is logged.
func WithMonitorInterval(d time.Duration) Option {
	return func(o *options) { o.monitorInterval = d }
}

// WithoutRedis skips the Redis tier even when configured.
func WithoutRedis() Option {
	return func(o *options) { o.noRedis = true }
}

// NewTiling returns the tiling scheme named by cfg.Tiling.
func NewTiling(cfg *model.Config) (calculator.Tiling, error) {
	switch cfg.Tiling {
	case "mercator", "":
		return calculator.NewMercatorTiling(cfg.NumLevels, cfg.TileWidth)
	case "geographic":
		return calculator.NewLevelSet(model.FullSphere, cfg.LevelZeroDelta, cfg.NumLevels, cfg.TileWidth, cfg.TileHeight)
	default:
		return nil, fmt.Errorf("unknown tiling %q", cfg.Tiling)
	}
}

// New validates cfg and builds the pipeline. The retriever workers are
// running when New returns; call Close to stop them.
func New(cfg *model.Config, opts ...Option) (*Pipeline, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if cfg.URLTemplate == "" {
		return nil, errors.New("url template is required")
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	p := &Pipeline{Config: cfg, log: logger.Component("pipeline")}
	var err error
	if p.Tiling, err = NewTiling(cfg); err != nil {
		return nil, err
	}
	if p.Cache, err = cache.NewMemoryCache(cfg.CacheCapacity, cfg.CacheLowWater); err != nil {
		return nil, err
	}

	var tiers []store.Store
	if cfg.SaveDir != "" {
		if err := util.EnsureDirExists(cfg.SaveDir); err != nil {
			return nil, fmt.Errorf("failed to create save directory: %w", err)
		}
		if p.Disk, err = store.NewDiskStore(cfg.SaveDir, cfg.Format, cfg.IndexFile, cfg.URLTemplate); err != nil {
			return nil, err
		}
		tiers = append(tiers, p.Disk)
	}
	if rc := redisClient(cfg, o.noRedis); rc != nil {
		p.Redis = store.NewRedisStore(rc, time.Duration(cfg.RedisTTL)*time.Second)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := p.Redis.Ping(ctx); err != nil {
			p.log.Warn("redis tier unavailable", "op", "new", "addr", cfg.RedisAddr, "error", err)
		}
		cancel()
		tiers = append(tiers, p.Redis)
	}

	fetcher := o.fetcher
	if fetcher == nil {
		p.http = client.NewHTTPClient(&client.Config{
			Timeout:     cfg.Timeout,
			ProxyURL:    cfg.ProxyURL,
			UseHTTP2:    cfg.UseHTTP2,
			KeepAlive:   cfg.KeepAlive,
			UserAgent:   cfg.UserAgent,
			Referer:     cfg.Referer,
			MaxFileSize: cfg.MaxFileSize,
			BufferSize:  cfg.BufferSize,
			Retries:     cfg.Retries,
		})
		fetcher = p.http
	}

	p.Monitor = stats.NewMonitor(o.monitorInterval)
	p.Retriever, err = download.NewRetriever(download.Options{
		Threads:     cfg.Threads,
		QueueSize:   cfg.QueueSize,
		RateLimit:   cfg.RateLimit,
		Timeout:     time.Duration(cfg.Timeout) * time.Second,
		URLTemplate: cfg.URLTemplate,
		Fetcher:     fetcher,
		Decoder:     resource.DecoderFor(cfg.ResourceType, cfg.TileWidth, cfg.TileHeight),
		Tiers:       tiers,
		Validate:    payloadValidator(cfg),
		Absent: download.NewAbsentList(cfg.AbsentMaxTries,
			time.Duration(cfg.AbsentMinCheckInterval)*time.Second,
			time.Duration(cfg.AbsentTryAgainInterval)*time.Second),
		Stats: p.Monitor.Stats(),
	})
	if err != nil {
		p.closeTiers()
		return nil, err
	}

	p.Tiles, err = tiles.New(tiles.Options{
		ResourceType:  cfg.ResourceType,
		Tiling:        p.Tiling,
		Cache:         p.Cache,
		Requester:     p.Retriever,
		DetailControl: cfg.DetailControl,
	})
	if err != nil {
		p.Retriever.Stop()
		p.closeTiers()
		return nil, err
	}

	p.log.Info("pipeline ready", "op", "new", "tiling", cfg.Tiling, "resource", cfg.ResourceType,
		"levels", cfg.NumLevels, "tiers", len(tiers), "capacity", cfg.CacheCapacity)
	return p, nil
}

func redisClient(cfg *model.Config, disabled bool) *redis.Client {
	if disabled {
		return nil
	}
	return store.OpenRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
}

func payloadValidator(cfg *model.Config) func([]byte) bool {
	minSize, maxSize := cfg.MinFileSize, cfg.MaxFileSize
	if maxSize <= 0 {
		maxSize = 1 << 62
	}
	if cfg.ResourceType == "elevation" {
		return func(data []byte) bool {
			n := int64(len(data))
			return n >= minSize && n <= maxSize
		}
	}
	return func(data []byte) bool {
		return util.ValidateFileFormat(data, minSize, maxSize)
	}
}

// Prefetch retrieves every tile of levels minLevel..maxLevel covering sector
// into the persistent tiers and the memory cache, and waits for completion.
// onTile, if not nil, is called exactly once per tile, with ErrSkipped for
// tiles another caller is retrieving or that are marked absent. It returns
// the number of tiles retrieved successfully.
func (p *Pipeline) Prefetch(ctx context.Context, sector model.Sector, minLevel, maxLevel int, onTile func(tile model.Tile, err error)) (int64, error) {
	list, err := calculator.CalculateTiles(p.Tiling, sector, minLevel, maxLevel)
	if err != nil {
		return 0, err
	}
	p.Monitor.SetExpected(int64(len(list)))
	p.log.Info("prefetch started", "op", "prefetch", "sector", sector.String(),
		"min_level", minLevel, "max_level", maxLevel, "tiles", len(list))

	var ok atomic.Int64
	for _, tile := range list {
		key := p.Tiles.Key(tile)
		if p.Cache.ContainsKey(key) {
			ok.Add(1)
			if onTile != nil {
				onTile(tile, nil)
			}
			continue
		}
		started, err := p.Retriever.RequestWait(ctx, tile, key, func(tile model.Tile, res any, size int64, err error) {
			if err == nil {
				ok.Add(1)
				if err := p.Tiles.Insert(key, res, size); err != nil {
					p.log.Warn("resource not cached", "op", "prefetch", "key", key, "error", err)
				}
			}
			if onTile != nil {
				onTile(tile, err)
			}
		})
		if err != nil {
			return ok.Load(), err
		}
		if !started && onTile != nil {
			onTile(tile, ErrSkipped)
		}
	}
	if err := p.Retriever.Wait(ctx); err != nil {
		return ok.Load(), err
	}
	if p.Disk != nil {
		if err := p.Disk.Flush(); err != nil {
			p.log.Warn("index flush failed", "op", "prefetch", "error", err)
		}
	}
	return ok.Load(), nil
}

// IndexPath is the disk tier's index file, or "" without a disk tier.
func (p *Pipeline) IndexPath() string {
	if p.Disk == nil {
		return ""
	}
	return filepath.Join(p.Config.SaveDir, p.Config.IndexFile)
}

// Close stops the retriever and closes the tiers.
func (p *Pipeline) Close() error {
	p.Retriever.Stop()
	p.Monitor.Stop()
	if p.http != nil {
		p.http.CloseIdleConnections()
	}
	return p.closeTiers()
}

func (p *Pipeline) closeTiers() error {
	var errs []error
	if p.Disk != nil {
		errs = append(errs, p.Disk.Close())
	}
	if p.Redis != nil {
		errs = append(errs, p.Redis.Close())
	}
	return errors.Join(errs...)
}
