package spatial

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type placemark struct {
	name    string
	enabled bool
}

func (p *placemark) SetEnabled(enabled bool) { p.enabled = enabled }

func enabledNames(marks []*placemark) []string {
	var out []string
	for _, m := range marks {
		if m.enabled {
			out = append(out, m.name)
		}
	}
	return out
}

func TestTogglerClearsStaleState(t *testing.T) {
	a := &placemark{name: "a"}
	b := &placemark{name: "b"}
	c := &placemark{name: "c"}
	marks := []*placemark{a, b, c}

	idx := NewIndex()
	require.NoError(t, idx.InsertBulk([]Entry{
		{Box: Box{0, 0, 1, 1}, Payload: a},
		{Box: Box{5, 5, 6, 6}, Payload: b},
		{Box: Box{50, 50, 51, 51}, Payload: c},
	}))
	tg := NewToggler(idx)

	_, err := tg.Update(Box{-1, -1, 10, 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, enabledNames(marks))

	_, err = tg.Update(Box{40, 40, 60, 60})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, enabledNames(marks))

	// Repeating the same region yields the same set.
	first, err := tg.Update(Box{4, 4, 55, 55})
	require.NoError(t, err)
	second, err := tg.Update(Box{4, 4, 55, 55})
	require.NoError(t, err)
	assert.ElementsMatch(t, first, second)
	assert.Equal(t, []string{"b", "c"}, enabledNames(marks))
}

func TestTogglerRejectsForeignPayload(t *testing.T) {
	a := &placemark{name: "a"}
	idx := NewIndex()
	require.NoError(t, idx.Insert(Box{0, 0, 1, 1}, a))
	require.NoError(t, idx.Insert(Box{0, 0, 1, 1}, "not renderable"))
	tg := NewToggler(idx)

	_, err := tg.Update(Box{0, 0, 1, 1})
	assert.Error(t, err)
	assert.False(t, a.enabled)
	assert.Empty(t, tg.Enabled())
}
