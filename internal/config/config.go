// Package config loads the pipeline configuration from defaults, an optional
// YAML file, .env files and GLOBETILE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/geoyee/globetile/internal/calculator"
	"github.com/geoyee/globetile/internal/model"
	"github.com/geoyee/globetile/internal/util"
)

// EnvPrefix prefixes every environment override. The rest of the name is the
// field's env tag, the upper-cased yaml key, e.g. GLOBETILE_CACHE_CAPACITY.
const EnvPrefix = "GLOBETILE_"

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Default returns the built-in configuration.
func Default() *model.Config {
	return &model.Config{
		ResourceType:   "imagery",
		Tiling:         "mercator",
		LevelZeroDelta: 36,
		NumLevels:      19,
		TileWidth:      256,
		TileHeight:     256,
		DetailControl:  1,

		CacheCapacity: 256 << 20,
		CacheLowWater: 192 << 20,

		Threads:     10,
		QueueSize:   1000,
		Timeout:     60,
		RateLimit:   10,
		UserAgent:   defaultUserAgent,
		UseHTTP2:    true,
		KeepAlive:   true,
		MinFileSize: 100,
		MaxFileSize: 2097152,
		BufferSize:  8192,

		SaveDir:   "./tiles",
		Format:    "zxy",
		IndexFile: ".globetile-index.json",

		RedisTTL: 86400,

		AbsentMaxTries:         3,
		AbsentMinCheckInterval: 10,
		AbsentTryAgainInterval: 60,
	}
}

// Load builds a configuration from the defaults, the YAML file at path (if
// not empty) and the environment. envFiles are loaded with godotenv first;
// missing files are skipped.
func Load(path string, envFiles ...string) (*model.Config, error) {
	cfg := Default()
	if path != "" {
		if err := LoadFile(cfg, path); err != nil {
			return nil, err
		}
	}
	if err := LoadEnv(cfg, envFiles...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path onto cfg. Keys absent from the file
// keep their current values.
func LoadFile(cfg *model.Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// LoadEnv loads envFiles into the process environment, without overriding
// variables already set, then applies GLOBETILE_* overrides to cfg.
func LoadEnv(cfg *model.Config, envFiles ...string) error {
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("failed to apply %s* environment: %w", EnvPrefix, err)
	}
	return nil
}

// Validate checks cfg for values the pipeline cannot run with.
func Validate(cfg *model.Config) error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(cfg.ResourceType == "imagery" || cfg.ResourceType == "elevation",
		"resource_type %q must be imagery or elevation", cfg.ResourceType)
	check(cfg.Tiling == "mercator" || cfg.Tiling == "geographic",
		"tiling %q must be mercator or geographic", cfg.Tiling)
	check(cfg.Tiling != "geographic" || (cfg.LevelZeroDelta > 0 &&
		calculator.Aligned(model.FullSphere.DeltaLat(), cfg.LevelZeroDelta) &&
		calculator.Aligned(model.FullSphere.DeltaLon(), cfg.LevelZeroDelta)),
		"level_zero_delta must divide 180 evenly")
	check(cfg.NumLevels > 0 && cfg.NumLevels <= 31, "num_levels must be in 1..31")
	check(cfg.TileWidth > 0 && cfg.TileHeight > 0, "tile size must be positive")
	check(cfg.DetailControl > 0, "detail_control must be positive")
	check(cfg.CacheCapacity > 0, "cache_capacity must be positive")
	check(cfg.CacheLowWater >= 0 && cfg.CacheLowWater <= cfg.CacheCapacity,
		"cache_low_water must be between 0 and cache_capacity")
	check(cfg.Threads > 0, "threads must be positive")
	check(cfg.QueueSize > 0, "queue_size must be positive")
	check(cfg.Timeout > 0, "timeout must be positive")
	check(cfg.RateLimit >= 0, "rate_limit must not be negative")
	check(cfg.Retries >= 0, "retries must not be negative")
	check(cfg.MinFileSize >= 0 && (cfg.MaxFileSize == 0 || cfg.MaxFileSize >= cfg.MinFileSize),
		"file size bounds are inverted")
	check(cfg.RedisTTL >= 0, "redis_ttl must not be negative")
	if cfg.ProxyURL != "" {
		_, err := url.Parse(cfg.ProxyURL)
		check(err == nil, "proxy_url: %v", err)
	}
	if cfg.SaveDir != "" {
		_, err := util.GetSavePath(cfg.SaveDir, cfg.Format, 0, 0, 0, ".png")
		check(err == nil, "format: %v", err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
