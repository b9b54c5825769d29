package model

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
)

// ErrInvalidSector is returned for sectors outside the globe or with inverted ranges.
var ErrInvalidSector = errors.New("invalid sector (-90 <= min-lat <= max-lat <= 90, -180 <= min-lon <= max-lon <= 180)")

// Sector is a geographic bounding box in degrees.
type Sector struct {
	MinLat float64 `json:"min_lat" yaml:"min_lat"`
	MaxLat float64 `json:"max_lat" yaml:"max_lat"`
	MinLon float64 `json:"min_lon" yaml:"min_lon"`
	MaxLon float64 `json:"max_lon" yaml:"max_lon"`
}

// FullSphere covers the whole globe.
var FullSphere = Sector{MinLat: -90, MaxLat: 90, MinLon: -180, MaxLon: 180}

// SectorFromBound converts an orb bound (X = longitude, Y = latitude).
func SectorFromBound(b orb.Bound) Sector {
	return Sector{MinLat: b.Min.Y(), MaxLat: b.Max.Y(), MinLon: b.Min.X(), MaxLon: b.Max.X()}
}

// Bound returns the sector as an orb bound.
func (s Sector) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{s.MinLon, s.MinLat},
		Max: orb.Point{s.MaxLon, s.MaxLat},
	}
}

// DeltaLat is the latitude span in degrees.
func (s Sector) DeltaLat() float64 { return s.MaxLat - s.MinLat }
// DeltaLon is the longitude span in degrees.
func (s Sector) DeltaLon() float64 { return s.MaxLon - s.MinLon }

// Centroid returns the center as (lat, lon).
func (s Sector) Centroid() (lat, lon float64) {
	c := s.Bound().Center()
	return c.Y(), c.X()
}

// Intersects reports whether the sectors share any point, edges included.
func (s Sector) Intersects(o Sector) bool {
	return s.Bound().Intersects(o.Bound())
}

// Overlaps reports whether the sectors share a region of positive area.
func (s Sector) Overlaps(o Sector) bool {
	return s.MinLat < o.MaxLat && o.MinLat < s.MaxLat &&
		s.MinLon < o.MaxLon && o.MinLon < s.MaxLon
}

// Contains reports whether o lies entirely inside s.
func (s Sector) Contains(o Sector) bool {
	return o.MinLat >= s.MinLat && o.MaxLat <= s.MaxLat &&
		o.MinLon >= s.MinLon && o.MaxLon <= s.MaxLon
}

// Union returns the smallest sector covering both.
func (s Sector) Union(o Sector) Sector {
	return SectorFromBound(s.Bound().Union(o.Bound()))
}

// Validate checks the sector lies on the globe with ordered ranges.
func (s Sector) Validate() error {
	if s.MinLat < -90 || s.MaxLat > 90 || s.MinLat > s.MaxLat {
		return ErrInvalidSector
	}
	if s.MinLon < -180 || s.MaxLon > 180 || s.MinLon > s.MaxLon {
		return ErrInvalidSector
	}
	return nil
}

func (s Sector) String() string {
	return fmt.Sprintf("[%g,%g]x[%g,%g]", s.MinLat, s.MaxLat, s.MinLon, s.MaxLon)
}
