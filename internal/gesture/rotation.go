package gesture

import "github.com/chewxy/math32"

// Rotation recognizes two touches turning about each other. Angles are in
// degrees, normalized to (-180, 180].
type Rotation struct {
	recognizer

	InterpretThreshold float32

	rotation        float32
	offsetRotation  float32
	referenceAngle  float32
	rotationTouches []int
}

// NewRotation creates a two-finger rotation recognizer.
func NewRotation() *Rotation {
	r := &Rotation{InterpretThreshold: 20}
	r.bind("rotation", r)
	return r
}

// Rotation is the angle turned since the gesture began.
func (r *Rotation) Rotation() float32 {
	return normalizeAngle(r.rotation + r.offsetRotation)
}

func (r *Rotation) resetState() {
	r.rotation = 0
	r.offsetRotation = 0
	r.referenceAngle = 0
	r.rotationTouches = nil
}

func (r *Rotation) mouseDown(Event) {
	if r.state == Possible {
		r.setState(Failed)
	}
}

func (r *Rotation) touchStart(t Touch, _ Event) {
	if len(r.rotationTouches) >= 2 {
		return
	}
	r.rotationTouches = append(r.rotationTouches, t.ID)
	if len(r.rotationTouches) == 2 {
		r.referenceAngle = r.currentAngle()
		r.offsetRotation += r.rotation
		r.rotation = 0
	}
}

func (r *Rotation) touchMove(Event) {
	if len(r.rotationTouches) != 2 {
		return
	}
	delta := normalizeAngle(r.currentAngle() - r.referenceAngle)
	switch {
	case r.state == Possible:
		if math32.Abs(delta) > r.InterpretThreshold {
			r.rotation = delta
			r.setState(Began)
		}
	case r.state.Active():
		r.rotation = delta
		r.setState(Changed)
	}
}

func (r *Rotation) touchEnd(t Touch, _ Event) {
	r.removeRotationTouch(t.ID)
	if len(r.touches) == 0 && r.state.Active() {
		r.setState(Ended)
	}
}

func (r *Rotation) touchCancel(t Touch, _ Event) {
	r.removeRotationTouch(t.ID)
	if len(r.touches) == 0 && r.state.Active() {
		r.setState(Cancelled)
	}
}

func (r *Rotation) removeRotationTouch(id int) {
	for i, rid := range r.rotationTouches {
		if rid == id {
			r.rotationTouches = append(r.rotationTouches[:i], r.rotationTouches[i+1:]...)
			return
		}
	}
}

func (r *Rotation) currentAngle() float32 {
	a, _ := r.touchByID(r.rotationTouches[0])
	b, _ := r.touchByID(r.rotationTouches[1])
	d := b.pos.Sub(a.pos)
	return math32.Atan2(d.Y, d.X) * 180 / math32.Pi
}

func normalizeAngle(deg float32) float32 {
	for deg > 180 {
		deg -= 360
	}
	for deg <= -180 {
		deg += 360
	}
	return deg
}
