// Package calculator provides quadtree tiling schemes and tile range computation.
package calculator

import "errors"

var (
	// ErrInvalidLevelRange is returned for level ranges outside the tiling.
	ErrInvalidLevelRange = errors.New("invalid level range (0 <= min-level <= max-level < num-levels)")
	// ErrInvalidLevel is returned for a level number the tiling does not have.
	ErrInvalidLevel = errors.New("level out of range")
	// ErrInvalidTile is returned for a row or column outside its level.
	ErrInvalidTile = errors.New("row or column out of range")
	// ErrInvalidLevelSet is returned for a level set that cannot be built.
	ErrInvalidLevelSet = errors.New("invalid level set (delta > 0, num-levels > 0, tile size > 0)")
	// ErrUnalignedSector is returned for a level-set sector that is not a
	// whole number of level-zero tiles.
	ErrUnalignedSector = errors.New("sector span is not a multiple of the level-zero delta")
	// ErrNoTilesFound is returned when a sector covers no tiles.
	ErrNoTilesFound = errors.New("no tiles found in sector")
)
