package calculator

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"github.com/geoyee/globetile/internal/model"
)

// MaxMercatorLat is the latitude limit of the Web-Mercator square.
const MaxMercatorLat = 85.05112877980659

// MercatorSector is the region covered by Web-Mercator tiles.
var MercatorSector = model.Sector{MinLat: -MaxMercatorLat, MaxLat: MaxMercatorLat, MinLon: -180, MaxLon: 180}

// MercatorTiling is the XYZ Web-Mercator quadtree. Row 0 is the northern edge
// and level z has 2^z rows and columns. Row is the XYZ y, column the XYZ x.
type MercatorTiling struct {
	numLevels int
	tileSize  int
}

// NewMercatorTiling returns a Web-Mercator tiling with levels 0..numLevels-1.
func NewMercatorTiling(numLevels, tileSize int) (*MercatorTiling, error) {
	if numLevels <= 0 || numLevels > 31 || tileSize <= 0 {
		return nil, ErrInvalidLevelSet
	}
	return &MercatorTiling{numLevels: numLevels, tileSize: tileSize}, nil
}

func (m *MercatorTiling) NumLevels() int { return m.numLevels }

func (m *MercatorTiling) Level(n int) (model.Level, error) {
	if n < 0 || n >= m.numLevels {
		return model.Level{}, fmt.Errorf("level %d: %w", n, ErrInvalidLevel)
	}
	count := 1 << n
	deltaLon := 360 / float64(count)
	return model.Level{
		Number:       n,
		TileDeltaLat: 2 * MaxMercatorLat / float64(count),
		TileDeltaLon: deltaLon,
		// Texel size at the equator, where Mercator is conformal with the
		// geographic grid.
		TexelSize:  deltaLon / float64(m.tileSize),
		Rows:       count,
		Columns:    count,
		TileWidth:  m.tileSize,
		TileHeight: m.tileSize,
	}, nil
}

// Tile returns the XYZ tile at (level, row, col), row 0 at the north edge.
func (m *MercatorTiling) Tile(level, row, col int) (model.Tile, error) {
	lvl, err := m.Level(level)
	if err != nil {
		return model.Tile{}, err
	}
	if row < 0 || row >= lvl.Rows || col < 0 || col >= lvl.Columns {
		return model.Tile{}, fmt.Errorf("tile (%d,%d,%d): %w", level, row, col, ErrInvalidTile)
	}
	mt := maptile.New(uint32(col), uint32(row), maptile.Zoom(level))
	return model.Tile{
		Level:  level,
		Row:    row,
		Column: col,
		Sector: model.SectorFromBound(mt.Bound()),
	}, nil
}

// LevelZeroTiles returns the single root tile when sector intersects the
// Mercator extent.
func (m *MercatorTiling) LevelZeroTiles(sector model.Sector) ([]model.Tile, error) {
	if err := sector.Validate(); err != nil {
		return nil, err
	}
	if !MercatorSector.Intersects(sector) {
		return nil, nil
	}
	tile, err := m.Tile(0, 0, 0)
	if err != nil {
		return nil, err
	}
	return []model.Tile{tile}, nil
}

func (m *MercatorTiling) Children(tile model.Tile) ([]model.Tile, error) {
	return quadChildren(m, tile)
}

func (m *MercatorTiling) Parent(tile model.Tile) (model.Tile, error) {
	if tile.Level <= 0 {
		return model.Tile{}, fmt.Errorf("%v has no parent: %w", tile, ErrInvalidLevel)
	}
	p := maptile.New(uint32(tile.Column), uint32(tile.Row), maptile.Zoom(tile.Level)).Parent()
	return m.Tile(int(p.Z), int(p.Y), int(p.X))
}

// TileAt returns the tile containing (lat, lon) at level.
func (m *MercatorTiling) TileAt(lat, lon float64, level int) (model.Tile, error) {
	lvl, err := m.Level(level)
	if err != nil {
		return model.Tile{}, err
	}
	mt := maptile.At(orb.Point{lon, lat}, maptile.Zoom(level))
	// maptile.At yields 2^z on the east and south edges.
	_, _, row, col := ClampTileCoords(0, 0, int(mt.Y), int(mt.X), lvl.Rows, lvl.Columns)
	return m.Tile(level, row, col)
}
