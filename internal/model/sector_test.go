package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSectorValidate(t *testing.T) {
	tests := []struct {
		s       Sector
		wantErr bool
	}{
		{FullSphere, false},
		{Sector{39, 40, 116, 117}, false},
		{Sector{10, 10, 20, 20}, false},
		{Sector{-91, 0, 0, 1}, true},
		{Sector{0, 91, 0, 1}, true},
		{Sector{50, 40, 0, 1}, true},
		{Sector{0, 1, -181, 0}, true},
		{Sector{0, 1, 10, 5}, true},
	}
	for _, tt := range tests {
		err := tt.s.Validate()
		assert.Equal(t, tt.wantErr, err != nil, "Validate(%v)", tt.s)
	}
}

func TestSectorIntersectsAndOverlaps(t *testing.T) {
	a := Sector{0, 10, 0, 10}
	touching := Sector{10, 20, 0, 10}
	inside := Sector{2, 3, 2, 3}
	apart := Sector{30, 40, 30, 40}

	assert.True(t, a.Intersects(touching))
	assert.False(t, a.Overlaps(touching))
	assert.True(t, a.Overlaps(inside))
	assert.True(t, a.Contains(inside))
	assert.False(t, a.Intersects(apart))
	assert.False(t, a.Overlaps(apart))
}

func TestSectorUnionAndBound(t *testing.T) {
	a := Sector{0, 10, 0, 10}
	b := Sector{-5, 5, 20, 30}
	assert.Equal(t, Sector{-5, 10, 0, 30}, a.Union(b))
	assert.Equal(t, a, SectorFromBound(a.Bound()))

	lat, lon := a.Centroid()
	assert.Equal(t, 5.0, lat)
	assert.Equal(t, 5.0, lon)
}

func TestTileCacheKey(t *testing.T) {
	seen := make(map[string][3]int)
	for level := 0; level < 4; level++ {
		for row := 0; row < 12; row++ {
			for col := 0; col < 12; col++ {
				tile := Tile{Level: level, Row: row, Column: col}
				key := tile.CacheKey("imagery")
				if prev, ok := seen[key]; ok {
					t.Fatalf("key %q produced by %v and (%d,%d,%d)", key, prev, level, row, col)
				}
				seen[key] = [3]int{level, row, col}
				assert.Equal(t, key, tile.CacheKey("imagery"))
			}
		}
	}
	assert.Equal(t, "imagery/1/2/3", Tile{Level: 1, Row: 2, Column: 3}.CacheKey("imagery"))
	assert.NotEqual(t, Tile{}.CacheKey("imagery"), Tile{}.CacheKey("elevation"))
}
