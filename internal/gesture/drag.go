package gesture

// Drag recognizes a mouse drag with an exact set of pressed buttons. Any
// touch input fails it.
type Drag struct {
	recognizer

	// ButtonMask is the set of buttons that must be pressed, bit n for button n.
	ButtonMask int
	// InterpretDistance is the movement needed before the drag is classified.
	InterpretDistance float32
}

// NewDrag creates a left-button mouse drag recognizer.
func NewDrag() *Drag {
	d := &Drag{ButtonMask: 1, InterpretDistance: 5}
	d.bind("drag", d)
	return d
}

func (d *Drag) mouseMove(Event) {
	switch {
	case d.state == Possible:
		if d.shouldInterpret() {
			if d.shouldRecognize() {
				d.setState(Began)
			} else {
				d.setState(Failed)
			}
		}
	case d.state.Active():
		d.setState(Changed)
	}
}

func (d *Drag) mouseUp(Event) {
	if d.buttonMask == 0 && d.state.Active() {
		d.setState(Ended)
	}
}

func (d *Drag) touchStart(Touch, Event) {
	if d.state == Possible {
		d.setState(Failed)
	}
}

func (d *Drag) shouldInterpret() bool {
	return d.translation.Len() > d.InterpretDistance
}

func (d *Drag) shouldRecognize() bool {
	return d.buttonMask != 0 && d.buttonMask == d.ButtonMask
}
