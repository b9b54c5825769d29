package calculator

import (
	"fmt"
	"math"

	"github.com/geoyee/globetile/internal/model"
)

// Tiling is a quadtree tiling scheme. Each level has twice the rows and
// columns of the previous one, and a tile's four children partition it.
type Tiling interface {
	NumLevels() int
	Level(n int) (model.Level, error)
	Tile(level, row, col int) (model.Tile, error)
	LevelZeroTiles(sector model.Sector) ([]model.Tile, error)
	Children(tile model.Tile) ([]model.Tile, error)
	Parent(tile model.Tile) (model.Tile, error)
}

// LevelSet is a geographic (equirectangular) tiling. Rows count northward
// from the sector's south edge, columns eastward from its west edge.
type LevelSet struct {
	Sector         model.Sector
	LevelZeroDelta float64
	levels         []model.Level
}

// NewLevelSet builds a level set over sector whose level-zero tiles span
// levelZeroDelta degrees on each side. The sector must be a whole number of
// level-zero tiles in both directions so every cell lies inside it.
func NewLevelSet(sector model.Sector, levelZeroDelta float64, numLevels, tileWidth, tileHeight int) (*LevelSet, error) {
	if err := sector.Validate(); err != nil {
		return nil, err
	}
	if levelZeroDelta <= 0 || numLevels <= 0 || tileWidth <= 0 || tileHeight <= 0 {
		return nil, ErrInvalidLevelSet
	}
	if sector.DeltaLat() <= 0 || sector.DeltaLon() <= 0 {
		return nil, ErrInvalidLevelSet
	}
	if !Aligned(sector.DeltaLat(), levelZeroDelta) || !Aligned(sector.DeltaLon(), levelZeroDelta) {
		return nil, fmt.Errorf("sector %v is not a whole number of %g° tiles: %w", sector, levelZeroDelta, ErrUnalignedSector)
	}

	ls := &LevelSet{
		Sector:         sector,
		LevelZeroDelta: levelZeroDelta,
		levels:         make([]model.Level, numLevels),
	}
	rows := countTiles(sector.DeltaLat(), levelZeroDelta)
	cols := countTiles(sector.DeltaLon(), levelZeroDelta)
	delta := levelZeroDelta
	for n := range numLevels {
		ls.levels[n] = model.Level{
			Number:       n,
			TileDeltaLat: delta,
			TileDeltaLon: delta,
			TexelSize:    delta / float64(tileHeight),
			Rows:         rows,
			Columns:      cols,
			TileWidth:    tileWidth,
			TileHeight:   tileHeight,
		}
		delta /= 2
		rows *= 2
		cols *= 2
	}
	return ls, nil
}

// Aligned reports whether span is a whole number of delta-sized tiles.
func Aligned(span, delta float64) bool {
	n := span / delta
	return n >= 1 && math.Abs(n-math.Round(n)) < 1e-9
}

func countTiles(span, delta float64) int {
	return int(math.Round(span / delta))
}

func (ls *LevelSet) NumLevels() int { return len(ls.levels) }

// Level returns level n.
func (ls *LevelSet) Level(n int) (model.Level, error) {
	if n < 0 || n >= len(ls.levels) {
		return model.Level{}, fmt.Errorf("level %d: %w", n, ErrInvalidLevel)
	}
	return ls.levels[n], nil
}

// LastLevel returns the finest level.
func (ls *LevelSet) LastLevel() model.Level {
	return ls.levels[len(ls.levels)-1]
}

// Tile returns the tile at (level, row, col).
func (ls *LevelSet) Tile(level, row, col int) (model.Tile, error) {
	lvl, err := ls.Level(level)
	if err != nil {
		return model.Tile{}, err
	}
	if row < 0 || row >= lvl.Rows || col < 0 || col >= lvl.Columns {
		return model.Tile{}, fmt.Errorf("tile (%d,%d,%d): %w", level, row, col, ErrInvalidTile)
	}
	s := model.Sector{
		MinLat: ls.Sector.MinLat + float64(row)*lvl.TileDeltaLat,
		MaxLat: math.Min(ls.Sector.MinLat+float64(row+1)*lvl.TileDeltaLat, ls.Sector.MaxLat),
		MinLon: ls.Sector.MinLon + float64(col)*lvl.TileDeltaLon,
		MaxLon: math.Min(ls.Sector.MinLon+float64(col+1)*lvl.TileDeltaLon, ls.Sector.MaxLon),
	}
	return model.Tile{Level: level, Row: row, Column: col, Sector: s}, nil
}

// LevelZeroTiles returns the level-zero tiles covering sector in row-major
// order, south to north and west to east.
func (ls *LevelSet) LevelZeroTiles(sector model.Sector) ([]model.Tile, error) {
	if err := sector.Validate(); err != nil {
		return nil, err
	}
	if !ls.Sector.Intersects(sector) {
		return nil, nil
	}
	lvl := ls.levels[0]
	minRow, maxRow := ls.span(sector.MinLat-ls.Sector.MinLat, sector.MaxLat-ls.Sector.MinLat, lvl.TileDeltaLat)
	minCol, maxCol := ls.span(sector.MinLon-ls.Sector.MinLon, sector.MaxLon-ls.Sector.MinLon, lvl.TileDeltaLon)
	minRow, minCol, maxRow, maxCol = ClampTileCoords(minRow, minCol, maxRow, maxCol, lvl.Rows, lvl.Columns)

	tiles := make([]model.Tile, 0, (maxRow-minRow+1)*(maxCol-minCol+1))
	for row := minRow; row <= maxRow; row++ {
		for col := minCol; col <= maxCol; col++ {
			tile, err := ls.Tile(0, row, col)
			if err != nil {
				return nil, err
			}
			tiles = append(tiles, tile)
		}
	}
	return tiles, nil
}

// span returns the first and last tile index covering [lo, hi], where a
// boundary landing exactly on a tile edge does not pull in the next tile.
func (ls *LevelSet) span(lo, hi, delta float64) (int, int) {
	first := int(math.Floor(lo / delta))
	last := int(math.Ceil(hi/delta)) - 1
	if last < first {
		last = first
	}
	return first, last
}

// Children returns the four children, or none on the last level.
func (ls *LevelSet) Children(tile model.Tile) ([]model.Tile, error) {
	return quadChildren(ls, tile)
}

// Parent returns the tile one level up that contains tile.
func (ls *LevelSet) Parent(tile model.Tile) (model.Tile, error) {
	if tile.Level <= 0 {
		return model.Tile{}, fmt.Errorf("%v has no parent: %w", tile, ErrInvalidLevel)
	}
	return ls.Tile(tile.Level-1, tile.Row/2, tile.Column/2)
}

// quadChildren returns the children (2r,2c), (2r,2c+1), (2r+1,2c), (2r+1,2c+1).
func quadChildren(t Tiling, tile model.Tile) ([]model.Tile, error) {
	if tile.Level+1 >= t.NumLevels() {
		return nil, nil
	}
	children := make([]model.Tile, 0, 4)
	for _, d := range [4][2]int{{0, 0}, {0, 1}, {1, 0}, {1, 1}} {
		child, err := t.Tile(tile.Level+1, 2*tile.Row+d[0], 2*tile.Column+d[1])
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}

// ClampTileCoords clamps a row/column range to a level's extent.
func ClampTileCoords(minRow, minCol, maxRow, maxCol, rows, cols int) (int, int, int, int) {
	if minRow < 0 {
		minRow = 0
	}
	if minCol < 0 {
		minCol = 0
	}
	if maxRow >= rows {
		maxRow = rows - 1
	}
	if maxCol >= cols {
		maxCol = cols - 1
	}
	return minRow, minCol, maxRow, maxCol
}
