// Package model defines the data model shared by the tile pipeline.
package model

import (
	"fmt"
	"time"
)

// Tile is a quadtree cell at a given resolution level.
type Tile struct {
	Level  int
	Row    int
	Column int
	Sector Sector
}

// CacheKey returns the key that identifies the tile's resource of the given
// type. Keys are stable and unique per (level, row, column) for a fixed type.
func (t Tile) CacheKey(resourceType string) string {
	return fmt.Sprintf("%s/%d/%d/%d", resourceType, t.Level, t.Row, t.Column)
}

func (t Tile) String() string {
	return fmt.Sprintf("tile(%d,%d,%d)", t.Level, t.Row, t.Column)
}

// Level describes one level of resolution of a tiling scheme.
type Level struct {
	Number       int
	TileDeltaLat float64
	TileDeltaLon float64
	// TexelSize is degrees of latitude covered by one texel.
	TexelSize  float64
	Rows       int
	Columns    int
	TileWidth  int
	TileHeight int
}

// RetrievalTask is one queued resource retrieval.
type RetrievalTask struct {
	Tile       Tile
	Key        string
	URL        string
	OnComplete func(res any, size int64, err error)
}

// RetrievalStats are the running counters of a retriever.
type RetrievalStats struct {
	Requested     int64
	Succeeded     int64
	Failed        int64
	Deduplicated  int64
	Rejected      int64
	StoreHits     int64
	BytesTotal    int64
	ActiveWorkers int32
	StartTime     time.Time
	SpeedHistory  []SpeedRecord
}

// SpeedRecord is one sample of retrieval throughput.
type SpeedRecord struct {
	Time  time.Time
	Speed float64
	Count int64
}

// StoreIndex is the persisted index of a disk tier.
type StoreIndex struct {
	Version     string              `json:"version"`
	URLTemplate string              `json:"url_template"`
	SaveDir     string              `json:"save_dir"`
	Format      string              `json:"format"`
	Completed   map[string]TileInfo `json:"completed"`
	Failed      map[string]string   `json:"failed"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// TileInfo records one stored tile payload.
type TileInfo struct {
	Level    int       `json:"level"`
	Row      int       `json:"row"`
	Column   int       `json:"column"`
	FilePath string    `json:"file_path"`
	FileSize int64     `json:"file_size"`
	Stored   time.Time `json:"stored"`
}

// Config is the pipeline configuration.
type Config struct {
	URLTemplate  string `yaml:"url_template" env:"URL_TEMPLATE"`
	ResourceType string `yaml:"resource_type" env:"RESOURCE_TYPE"`
	Tiling       string `yaml:"tiling" env:"TILING"`

	LevelZeroDelta float64 `yaml:"level_zero_delta" env:"LEVEL_ZERO_DELTA"`
	NumLevels      int     `yaml:"num_levels" env:"NUM_LEVELS"`
	TileWidth      int     `yaml:"tile_width" env:"TILE_WIDTH"`
	TileHeight     int     `yaml:"tile_height" env:"TILE_HEIGHT"`
	DetailControl  float64 `yaml:"detail_control" env:"DETAIL_CONTROL"`

	CacheCapacity int64 `yaml:"cache_capacity" env:"CACHE_CAPACITY"`
	CacheLowWater int64 `yaml:"cache_low_water" env:"CACHE_LOW_WATER"`

	Threads     int    `yaml:"threads" env:"THREADS"`
	QueueSize   int    `yaml:"queue_size" env:"QUEUE_SIZE"`
	Timeout     int    `yaml:"timeout" env:"TIMEOUT"`
	RateLimit   int    `yaml:"rate_limit" env:"RATE_LIMIT"`
	ProxyURL    string `yaml:"proxy_url" env:"PROXY_URL"`
	UserAgent   string `yaml:"user_agent" env:"USER_AGENT"`
	Referer     string `yaml:"referer" env:"REFERER"`
	UseHTTP2    bool   `yaml:"use_http2" env:"USE_HTTP2"`
	KeepAlive   bool   `yaml:"keep_alive" env:"KEEP_ALIVE"`
	MinFileSize int64  `yaml:"min_file_size" env:"MIN_FILE_SIZE"`
	MaxFileSize int64  `yaml:"max_file_size" env:"MAX_FILE_SIZE"`
	BufferSize  int    `yaml:"buffer_size" env:"BUFFER_SIZE"`
	Retries     int    `yaml:"retries" env:"RETRIES"`

	SaveDir   string `yaml:"save_dir" env:"SAVE_DIR"`
	Format    string `yaml:"format" env:"FORMAT"`
	IndexFile string `yaml:"index_file" env:"INDEX_FILE"`

	RedisAddr     string `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"REDIS_DB"`
	RedisTTL      int    `yaml:"redis_ttl" env:"REDIS_TTL"`

	AbsentMaxTries         int `yaml:"absent_max_tries" env:"ABSENT_MAX_TRIES"`
	AbsentMinCheckInterval int `yaml:"absent_min_check_interval" env:"ABSENT_MIN_CHECK_INTERVAL"`
	AbsentTryAgainInterval int `yaml:"absent_try_again_interval" env:"ABSENT_TRY_AGAIN_INTERVAL"`
}
