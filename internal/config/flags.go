package config

import (
	"flag"
	"io"

	"github.com/geoyee/globetile/internal/model"
)

// BindFlags registers the pipeline flags on fs with cfg's values as
// defaults. Parsing writes into cfg.
func BindFlags(fs *flag.FlagSet, cfg *model.Config) {
	fs.StringVar(&cfg.URLTemplate, "url", cfg.URLTemplate, "Tile URL template (e.g., https://tile.openstreetmap.org/{z}/{x}/{y}.png)")
	fs.StringVar(&cfg.ResourceType, "resource", cfg.ResourceType, "Resource type (imagery, elevation)")
	fs.StringVar(&cfg.Tiling, "tiling", cfg.Tiling, "Tiling scheme (mercator, geographic)")
	fs.Float64Var(&cfg.LevelZeroDelta, "level-zero-delta", cfg.LevelZeroDelta, "Level-zero tile size in degrees (geographic tiling)")
	fs.IntVar(&cfg.NumLevels, "levels", cfg.NumLevels, "Number of levels")
	fs.IntVar(&cfg.TileWidth, "tile-width", cfg.TileWidth, "Tile width in pixels")
	fs.IntVar(&cfg.TileHeight, "tile-height", cfg.TileHeight, "Tile height in pixels")
	fs.Float64Var(&cfg.DetailControl, "detail", cfg.DetailControl, "Detail control; larger values select coarser tiles")
	fs.Int64Var(&cfg.CacheCapacity, "cache-capacity", cfg.CacheCapacity, "Memory cache capacity in bytes")
	fs.Int64Var(&cfg.CacheLowWater, "cache-low-water", cfg.CacheLowWater, "Memory cache low-water mark in bytes")
	fs.IntVar(&cfg.Threads, "threads", cfg.Threads, "Number of concurrent retrievals")
	fs.IntVar(&cfg.QueueSize, "queue", cfg.QueueSize, "Retrieval queue size")
	fs.IntVar(&cfg.Timeout, "timeout", cfg.Timeout, "Timeout in seconds")
	fs.IntVar(&cfg.RateLimit, "rate", cfg.RateLimit, "Rate limit in requests/second (0 disables)")
	fs.IntVar(&cfg.Retries, "retries", cfg.Retries, "Extra attempts after transient network errors")
	fs.StringVar(&cfg.ProxyURL, "proxy", cfg.ProxyURL, "Proxy URL (e.g., http://127.0.0.1:7890)")
	fs.StringVar(&cfg.UserAgent, "user-agent", cfg.UserAgent, "User agent")
	fs.StringVar(&cfg.Referer, "referer", cfg.Referer, "Referer header")
	fs.BoolVar(&cfg.UseHTTP2, "http2", cfg.UseHTTP2, "Enable HTTP/2")
	fs.BoolVar(&cfg.KeepAlive, "keep-alive", cfg.KeepAlive, "Enable persistent connections")
	fs.Int64Var(&cfg.MinFileSize, "min-size", cfg.MinFileSize, "Minimum payload size in bytes")
	fs.Int64Var(&cfg.MaxFileSize, "max-size", cfg.MaxFileSize, "Maximum payload size in bytes")
	fs.IntVar(&cfg.BufferSize, "buffer", cfg.BufferSize, "Download buffer size")
	fs.StringVar(&cfg.SaveDir, "dir", cfg.SaveDir, "Disk tier directory (empty disables)")
	fs.StringVar(&cfg.Format, "format", cfg.Format, "Disk layout (zxy, xyz, z/x/y, zrc)")
	fs.StringVar(&cfg.IndexFile, "index", cfg.IndexFile, "Disk tier index file name")
	fs.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "Redis tier address (empty disables)")
	fs.IntVar(&cfg.RedisDB, "redis-db", cfg.RedisDB, "Redis database")
	fs.IntVar(&cfg.RedisTTL, "redis-ttl", cfg.RedisTTL, "Redis payload TTL in seconds (0 keeps forever)")
	fs.IntVar(&cfg.AbsentMaxTries, "absent-tries", cfg.AbsentMaxTries, "Failures before a tile is marked absent (0 disables)")
}

// ParseArgs loads a command's configuration: defaults, the YAML file named by
// -config, the file named by -env-file and the environment, then the flags
// in args. bindExtra, if not nil, registers command-specific flags; it is
// called twice and must bind the same variables each time.
func ParseArgs(fs *flag.FlagSet, args []string, bindExtra func(fs *flag.FlagSet)) (*model.Config, error) {
	var path, envFile string
	bindCommon := func(fs *flag.FlagSet) {
		fs.StringVar(&path, "config", path, "YAML configuration file")
		fs.StringVar(&envFile, "env-file", ".env", "Environment file")
		if bindExtra != nil {
			bindExtra(fs)
		}
	}

	probe := flag.NewFlagSet(fs.Name(), flag.ContinueOnError)
	probe.SetOutput(io.Discard)
	BindFlags(probe, Default())
	bindCommon(probe)
	if perr := probe.Parse(args); perr != nil {
		// Parse again through fs so usage goes to the caller's output.
		BindFlags(fs, Default())
		bindCommon(fs)
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		return nil, perr
	}

	cfg, err := Load(path, envFile)
	if err != nil {
		return nil, err
	}
	BindFlags(fs, cfg)
	bindCommon(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}
