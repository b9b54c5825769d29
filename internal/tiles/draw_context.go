package tiles

import (
	"fmt"

	"github.com/geoyee/globetile/internal/model"
)

// Position is a geographic position with altitude in meters.
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
}

// Viewport is the drawing surface size in pixels.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DrawContext is the per-frame view state.
type DrawContext struct {
	EyePosition   Position
	VisibleSector model.Sector
	Viewport      Viewport
}

// TargetResolution is the texel size, in degrees of latitude, that matches
// one viewport pixel scaled by detailControl.
func (dc DrawContext) TargetResolution(detailControl float64) (float64, error) {
	if dc.Viewport.Width <= 0 || dc.Viewport.Height <= 0 {
		return 0, fmt.Errorf("%dx%d: %w", dc.Viewport.Width, dc.Viewport.Height, ErrInvalidViewport)
	}
	res := dc.VisibleSector.DeltaLat() / float64(dc.Viewport.Height) * detailControl
	if !(res > 0) {
		return 0, fmt.Errorf("visible sector %v: %w", dc.VisibleSector, ErrInvalidResolution)
	}
	return res, nil
}

// AssembleTiles prepares a frame: it advances the cache frame, computes the
// visible tiles and requests every missing target and level-zero tile.
func (tc *TileCache) AssembleTiles(dc DrawContext) ([]model.Tile, error) {
	res, err := dc.TargetResolution(tc.detailControl)
	if err != nil {
		return nil, err
	}
	tc.cache.BeginFrame()

	visible, missing, err := tc.computeTiles(dc.VisibleSector, res)
	if err != nil {
		return nil, err
	}

	roots, err := tc.tiling.LevelZeroTiles(dc.VisibleSector)
	if err != nil {
		return nil, err
	}
	started := 0
	seen := make(map[string]bool, len(roots)+len(missing))
	for _, tile := range append(roots, missing...) {
		key := tc.Key(tile)
		if seen[key] {
			continue
		}
		seen[key] = true
		if tc.RequestTileResource(tile, nil) {
			started++
		}
	}
	tc.log.Debug("frame assembled", "op", "assembleTiles", "visible", len(visible),
		"missing", len(missing), "requested", started, "resolution", res)
	return visible, nil
}
