package spatial

import (
	"fmt"
)

// Renderable is a payload that can be switched on and off.
type Renderable interface {
	SetEnabled(enabled bool)
}

// Toggler enables the renderables near the view and disables those enabled
// by the previous update.
type Toggler struct {
	index   *Index
	enabled []Renderable
}

// NewToggler creates a toggler over index.
func NewToggler(index *Index) *Toggler {
	return &Toggler{index: index}
}

// Update disables every renderable enabled by the previous call, then enables
// those whose box intersects region. It returns the newly enabled set.
func (t *Toggler) Update(region Box) ([]Renderable, error) {
	matches, err := t.index.Query(region)
	if err != nil {
		return nil, err
	}

	next := make([]Renderable, 0, len(matches))
	for _, m := range matches {
		r, ok := m.(Renderable)
		if !ok {
			return nil, fmt.Errorf("payload %T is not a Renderable", m)
		}
		next = append(next, r)
	}

	for _, r := range t.enabled {
		r.SetEnabled(false)
	}
	for _, r := range next {
		r.SetEnabled(true)
	}
	t.enabled = next
	return t.Enabled(), nil
}

// Enabled returns a copy of the current enabled set.
func (t *Toggler) Enabled() []Renderable {
	out := make([]Renderable, len(t.enabled))
	copy(out, t.enabled)
	return out
}
