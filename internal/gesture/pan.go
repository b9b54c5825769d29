package gesture

import "math"

// Pan recognizes a translation of one or more touches. Mouse input fails it.
type Pan struct {
	recognizer

	MinTouches        int
	MaxTouches        int
	InterpretDistance float32

	recognize func() bool
}

// NewPan creates a touch pan recognizer.
func NewPan() *Pan {
	p := &Pan{MinTouches: 1, MaxTouches: math.MaxInt, InterpretDistance: 20}
	p.recognize = p.touchCountInBounds
	p.bind("pan", p)
	return p
}

func (p *Pan) mouseDown(Event) {
	if p.state == Possible {
		p.setState(Failed)
	}
}

func (p *Pan) touchStart(Touch, Event) {
	if p.state == Possible && len(p.touches) > p.MaxTouches {
		p.setState(Failed)
	}
}

func (p *Pan) touchMove(Event) {
	switch {
	case p.state == Possible:
		if p.translation.Len() > p.InterpretDistance {
			if p.recognize() {
				p.setState(Began)
			} else {
				p.setState(Failed)
			}
		}
	case p.state.Active():
		p.setState(Changed)
	}
}

func (p *Pan) touchEnd(Touch, Event) {
	if len(p.touches) == 0 && p.state.Active() {
		p.setState(Ended)
	}
}

func (p *Pan) touchCancel(Touch, Event) {
	if len(p.touches) == 0 && p.state.Active() {
		p.setState(Cancelled)
	}
}

func (p *Pan) touchCountInBounds() bool {
	n := len(p.touches)
	return n >= p.MinTouches && n <= p.MaxTouches
}
