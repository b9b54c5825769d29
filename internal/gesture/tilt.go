package gesture

import "github.com/chewxy/math32"

// Tilt recognizes two touches moving roughly in parallel along the vertical
// axis.
type Tilt struct {
	Pan

	// MaxTouchDistance bounds the separation of the two touches.
	MaxTouchDistance float32
	// MaxTouchDivergence bounds how far the separation may drift from its
	// starting value.
	MaxTouchDivergence float32
}

type direction int

const (
	dirNone direction = iota
	dirUp
	dirDown
	dirLeft
	dirRight
)

// NewTilt creates a two-finger vertical tilt recognizer.
func NewTilt() *Tilt {
	t := &Tilt{MaxTouchDistance: 250, MaxTouchDivergence: 50}
	t.MinTouches = 2
	t.MaxTouches = 2
	t.InterpretDistance = 20
	t.recognize = t.shouldRecognize
	t.bind("tilt", t)
	return t
}

func (t *Tilt) shouldRecognize() bool {
	if !t.touchCountInBounds() {
		return false
	}
	a, b := t.touches[0], t.touches[1]
	distance := a.pos.Sub(b.pos).Len()
	startDistance := a.start.Sub(b.start).Len()
	if distance > t.MaxTouchDistance || math32.Abs(distance-startDistance) > t.MaxTouchDivergence {
		return false
	}
	dirA := touchDirection(a)
	dirB := touchDirection(b)
	return dirA == dirB && (dirA == dirUp || dirA == dirDown)
}

// touchDirection returns the dominant direction of a touch's movement.
func touchDirection(t *trackedTouch) direction {
	d := t.pos.Sub(t.start)
	switch {
	case d.X == 0 && d.Y == 0:
		return dirNone
	case math32.Abs(d.Y) > math32.Abs(d.X):
		if d.Y < 0 {
			return dirUp
		}
		return dirDown
	case d.X < 0:
		return dirLeft
	default:
		return dirRight
	}
}
