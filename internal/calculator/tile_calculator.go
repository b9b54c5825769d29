package calculator

import (
	"github.com/geoyee/globetile/internal/model"
)

// CalculateTiles returns every tile of levels minLevel..maxLevel that covers
// sector, level by level, each level in quadtree traversal order.
func CalculateTiles(t Tiling, sector model.Sector, minLevel, maxLevel int) ([]model.Tile, error) {
	if err := ValidateLevelRange(t, minLevel, maxLevel); err != nil {
		return nil, err
	}
	roots, err := t.LevelZeroTiles(sector)
	if err != nil {
		return nil, err
	}

	perLevel := make([][]model.Tile, maxLevel+1)
	var walk func(tile model.Tile) error
	walk = func(tile model.Tile) error {
		if tile.Level >= minLevel {
			perLevel[tile.Level] = append(perLevel[tile.Level], tile)
		}
		if tile.Level == maxLevel {
			return nil
		}
		children, err := t.Children(tile)
		if err != nil {
			return err
		}
		for _, child := range children {
			if !TileIntersects(child.Sector, sector) {
				continue
			}
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}
	for _, root := range roots {
		if err := walk(root); err != nil {
			return nil, err
		}
	}

	var tiles []model.Tile
	for level := minLevel; level <= maxLevel; level++ {
		tiles = append(tiles, perLevel[level]...)
	}
	if len(tiles) == 0 {
		return nil, ErrNoTilesFound
	}
	return tiles, nil
}

// TileIntersects reports whether a tile sector covers part of sector. For
// sectors with area, tiles that merely touch an edge do not count.
func TileIntersects(tileSector, sector model.Sector) bool {
	if sector.DeltaLat() == 0 || sector.DeltaLon() == 0 {
		return tileSector.Intersects(sector)
	}
	return tileSector.Overlaps(sector)
}

// ValidateLevelRange checks minLevel..maxLevel exists in t.
func ValidateLevelRange(t Tiling, minLevel, maxLevel int) error {
	if minLevel < 0 || maxLevel >= t.NumLevels() || minLevel > maxLevel {
		return ErrInvalidLevelRange
	}
	return nil
}
