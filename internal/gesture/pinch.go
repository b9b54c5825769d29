package gesture

import "github.com/chewxy/math32"

// Pinch recognizes a change in the distance between two touches. Once it has
// begun it stays active until the touches are released, even if the distance
// returns within the threshold.
type Pinch struct {
	recognizer

	// InterpretThreshold is the change in touch distance needed to begin.
	InterpretThreshold float32

	scale             float32
	offsetScale       float32
	referenceDistance float32
	pinchTouches      []int
}

// NewPinch creates a two-finger pinch recognizer.
func NewPinch() *Pinch {
	p := &Pinch{InterpretThreshold: 20, scale: 1, offsetScale: 1}
	p.bind("pinch", p)
	return p
}

// Scale is the distance ratio since the gesture began, continued across
// replaced touches.
func (p *Pinch) Scale() float32 {
	return p.scale * p.offsetScale
}

func (p *Pinch) resetState() {
	p.scale = 1
	p.offsetScale = 1
	p.referenceDistance = 0
	p.pinchTouches = nil
}

func (p *Pinch) mouseDown(Event) {
	if p.state == Possible {
		p.setState(Failed)
	}
}

func (p *Pinch) touchStart(t Touch, _ Event) {
	if len(p.pinchTouches) >= 2 {
		return
	}
	p.pinchTouches = append(p.pinchTouches, t.ID)
	if len(p.pinchTouches) == 2 {
		p.referenceDistance = p.currentDistance()
		p.offsetScale *= p.scale
		p.scale = 1
	}
}

func (p *Pinch) touchMove(Event) {
	if len(p.pinchTouches) != 2 || p.referenceDistance == 0 {
		return
	}
	distance := p.currentDistance()
	switch {
	case p.state == Possible:
		if math32.Abs(distance-p.referenceDistance) > p.InterpretThreshold {
			p.scale = distance / p.referenceDistance
			p.setState(Began)
		}
	case p.state.Active():
		p.scale = distance / p.referenceDistance
		p.setState(Changed)
	}
}

func (p *Pinch) touchEnd(t Touch, _ Event) {
	p.removePinchTouch(t.ID)
	if len(p.touches) == 0 && p.state.Active() {
		p.setState(Ended)
	}
}

func (p *Pinch) touchCancel(t Touch, _ Event) {
	p.removePinchTouch(t.ID)
	if len(p.touches) == 0 && p.state.Active() {
		p.setState(Cancelled)
	}
}

func (p *Pinch) removePinchTouch(id int) {
	for i, pid := range p.pinchTouches {
		if pid == id {
			p.pinchTouches = append(p.pinchTouches[:i], p.pinchTouches[i+1:]...)
			return
		}
	}
}

func (p *Pinch) currentDistance() float32 {
	a, _ := p.touchByID(p.pinchTouches[0])
	b, _ := p.touchByID(p.pinchTouches[1])
	return a.pos.Sub(b.pos).Len()
}
