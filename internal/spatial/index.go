// Package spatial indexes renderables by geographic bounding box.
package spatial

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dhconnelly/rtreego"
)

const (
	minChildren = 25
	maxChildren = 50

	// pad keeps degenerate boxes representable as rtreego rectangles, which
	// require positive side lengths.
	pad = 1e-9
)

// ErrInvalidBox is returned for a box whose minimum exceeds its maximum.
var ErrInvalidBox = errors.New("invalid bounding box")

// Box is a lon/lat bounding box. Min equal to max is a valid point or line.
type Box struct {
	MinLon, MinLat, MaxLon, MaxLat float64
}

// Validate checks that b is not inverted.
func (b Box) Validate() error {
	if b.MinLon > b.MaxLon || b.MinLat > b.MaxLat {
		return fmt.Errorf("%v: %w", b, ErrInvalidBox)
	}
	return nil
}

// Intersects is inclusive of shared edges.
func (b Box) Intersects(o Box) bool {
	return b.MinLon <= o.MaxLon && o.MinLon <= b.MaxLon &&
		b.MinLat <= o.MaxLat && o.MinLat <= b.MaxLat
}

func (b Box) rect() rtreego.Rect {
	r, err := rtreego.NewRect(
		rtreego.Point{b.MinLon - pad, b.MinLat - pad},
		[]float64{b.MaxLon - b.MinLon + 2*pad, b.MaxLat - b.MinLat + 2*pad},
	)
	if err != nil {
		// Validate has already rejected inverted boxes.
		panic(err)
	}
	return r
}

// Entry associates a payload with its bounding box.
type Entry struct {
	Box     Box
	Payload any
}

type item struct {
	Entry
	r rtreego.Rect
}

func (it *item) Bounds() rtreego.Rect { return it.r }

// Index is an R-tree of entries. Queries return exactly the entries whose box
// intersects the query box.
type Index struct {
	mu   sync.RWMutex
	tree *rtreego.Rtree
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{tree: rtreego.NewTree(2, minChildren, maxChildren)}
}

// Insert adds a single entry.
func (idx *Index) Insert(box Box, payload any) error {
	if err := box.Validate(); err != nil {
		return err
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.tree.Insert(&item{Entry: Entry{Box: box, Payload: payload}, r: box.rect()})
	return nil
}

// InsertBulk adds a batch of entries. An empty index is bulk-loaded. No entry
// is inserted if any box is invalid.
func (idx *Index) InsertBulk(entries []Entry) error {
	items := make([]rtreego.Spatial, 0, len(entries))
	for _, e := range entries {
		if err := e.Box.Validate(); err != nil {
			return err
		}
		items = append(items, &item{Entry: e, r: e.Box.rect()})
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.tree.Size() == 0 {
		idx.tree = rtreego.NewTree(2, minChildren, maxChildren, items...)
		return nil
	}
	for _, it := range items {
		idx.tree.Insert(it)
	}
	return nil
}

// Query returns the payloads of every entry intersecting box.
func (idx *Index) Query(box Box) ([]any, error) {
	if err := box.Validate(); err != nil {
		return nil, err
	}
	idx.mu.RLock()
	candidates := idx.tree.SearchIntersect(box.rect())
	idx.mu.RUnlock()

	var out []any
	for _, c := range candidates {
		it := c.(*item)
		if it.Box.Intersects(box) {
			out = append(out, it.Payload)
		}
	}
	return out, nil
}

// Collides reports whether any entry intersects box.
func (idx *Index) Collides(box Box) (bool, error) {
	matches, err := idx.Query(box)
	if err != nil {
		return false, err
	}
	return len(matches) > 0, nil
}

// Len is the number of indexed entries.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.tree.Size()
}
