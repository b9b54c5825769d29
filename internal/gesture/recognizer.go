package gesture

import (
	"github.com/geoyee/globetile/internal/metrics"
)

// Recognizer classifies an event stream into one kind of gesture.
type Recognizer interface {
	Name() string
	State() State
	// Outcome is the state the last completed interaction ended in, or
	// Possible if none has completed.
	Outcome() State
	Reset()
	HandleEvent(e Event)
	AddGestureListener(fn func(Recognizer))
	Enabled() bool
	SetEnabled(enabled bool)
	// Translation is the centroid displacement since the interaction began.
	Translation() Vec2
	ClientPos() Vec2
}

// hooks are the per-variant reactions to events, called after the shared
// tracking state has been updated.
type hooks interface {
	mouseDown(e Event)
	mouseMove(e Event)
	mouseUp(e Event)
	touchStart(t Touch, e Event)
	touchMove(e Event)
	touchEnd(t Touch, e Event)
	touchCancel(t Touch, e Event)
	resetState()
}

type variant interface {
	Recognizer
	hooks
}

type trackedTouch struct {
	id    int
	start Vec2
	pos   Vec2
}

// recognizer holds the bookkeeping shared by every variant: pressed buttons,
// tracked touches in arrival order, the interaction start point and the
// accumulated translation.
type recognizer struct {
	name      string
	self      variant
	state     State
	outcome   State
	disabled  bool
	listeners []func(Recognizer)

	buttonMask    int
	touches       []*trackedTouch
	start         Vec2
	client        Vec2
	centroidShift Vec2
	translation   Vec2
}

func (r *recognizer) bind(name string, self variant) {
	r.name = name
	r.self = self
}

// Name identifies the variant, e.g. "pinch".
func (r *recognizer) Name() string { return r.name }

// State is the current state.
func (r *recognizer) State() State { return r.state }

// Outcome is the terminal state of the last finished interaction.
func (r *recognizer) Outcome() State { return r.outcome }

// Enabled reports whether events are handled.
func (r *recognizer) Enabled() bool { return !r.disabled }

// SetEnabled turns the recognizer on or off. Disabling resets it.
func (r *recognizer) SetEnabled(enabled bool) {
	if !enabled && !r.disabled {
		r.Reset()
	}
	r.disabled = !enabled
}

// Translation is the displacement since the interaction began.
func (r *recognizer) Translation() Vec2 { return r.translation }

// ClientPos is the current pointer or touch centroid position.
func (r *recognizer) ClientPos() Vec2 { return r.client }

// AddGestureListener registers fn for Began, Changed, Ended, Cancelled and
// Recognized transitions.
func (r *recognizer) AddGestureListener(fn func(Recognizer)) {
	r.listeners = append(r.listeners, fn)
}

// Reset returns the recognizer to Possible and clears all tracked input.
func (r *recognizer) Reset() {
	r.state = Possible
	r.buttonMask = 0
	r.touches = nil
	r.start = Vec2{}
	r.client = Vec2{}
	r.centroidShift = Vec2{}
	r.translation = Vec2{}
	r.self.resetState()
}

// setState transitions and notifies listeners of every state except Possible
// and Failed.
func (r *recognizer) setState(s State) {
	r.state = s
	metrics.GesturesTotal.WithLabelValues(r.name, s.String()).Inc()
	if s == Possible || s == Failed {
		return
	}
	for _, fn := range r.listeners {
		fn(r.self)
	}
}

// PressedButtons returns the currently pressed mouse buttons, bit n for button n.
func (r *recognizer) PressedButtons() int { return r.buttonMask }

// TouchCount returns the number of tracked touches.
func (r *recognizer) TouchCount() int { return len(r.touches) }

// TouchPos returns the position of the i-th tracked touch in arrival order.
func (r *recognizer) TouchPos(i int) Vec2 { return r.touches[i].pos }

func (r *recognizer) touchByID(id int) (*trackedTouch, bool) {
	for _, t := range r.touches {
		if t.id == id {
			return t, true
		}
	}
	return nil, false
}

// HandleEvent updates the shared bookkeeping and forwards e to the variant.
// Mouse events with a button outside [0, MaxButtons) are ignored.
func (r *recognizer) HandleEvent(e Event) {
	if r.disabled {
		return
	}
	if e.Type.IsMouse() && !validButton(e.Button) {
		return
	}
	switch e.Type {
	case MouseDown:
		r.handleMouseDown(e)
	case MouseMove:
		r.handleMouseMove(e)
	case MouseUp:
		r.handleMouseUp(e)
	case TouchStart:
		r.handleTouchStart(e)
	case TouchMove:
		r.handleTouchMove(e)
	case TouchEnd, TouchCancel:
		r.handleTouchEnd(e)
	}
}

func (r *recognizer) handleMouseDown(e Event) {
	bit := 1 << e.Button
	if r.buttonMask&bit != 0 {
		return
	}
	if r.buttonMask == 0 && len(r.touches) == 0 {
		r.start = e.Pos
		r.client = e.Pos
		r.centroidShift = Vec2{}
		r.translation = Vec2{}
	}
	r.buttonMask |= bit
	r.self.mouseDown(e)
}

func (r *recognizer) handleMouseMove(e Event) {
	if r.buttonMask == 0 {
		return
	}
	r.client = e.Pos
	r.translation = r.client.Sub(r.start).Add(r.centroidShift)
	r.self.mouseMove(e)
}

func (r *recognizer) handleMouseUp(e Event) {
	bit := 1 << e.Button
	if r.buttonMask&bit == 0 {
		return
	}
	r.buttonMask &^= bit
	r.self.mouseUp(e)
	r.resetIfEventsEnded()
}

func (r *recognizer) handleTouchStart(e Event) {
	for _, t := range e.Touches {
		if _, ok := r.touchByID(t.ID); ok {
			continue
		}
		r.touches = append(r.touches, &trackedTouch{id: t.ID, start: t.Pos, pos: t.Pos})
		if len(r.touches) == 1 && r.buttonMask == 0 {
			r.start = t.Pos
			r.client = t.Pos
			r.centroidShift = Vec2{}
			r.translation = Vec2{}
		} else {
			r.touchesAddedOrRemoved()
		}
		r.self.touchStart(t, e)
	}
}

func (r *recognizer) handleTouchMove(e Event) {
	moved := false
	for _, t := range e.Touches {
		if tt, ok := r.touchByID(t.ID); ok {
			tt.pos = t.Pos
			moved = true
		}
	}
	if !moved {
		return
	}
	r.client = r.centroid()
	r.translation = r.client.Sub(r.start).Add(r.centroidShift)
	r.self.touchMove(e)
}

func (r *recognizer) handleTouchEnd(e Event) {
	for _, t := range e.Touches {
		idx := -1
		for i, tt := range r.touches {
			if tt.id == t.ID {
				idx = i
				break
			}
		}
		if idx < 0 {
			continue
		}
		r.touches = append(r.touches[:idx], r.touches[idx+1:]...)
		r.touchesAddedOrRemoved()
		if e.Type == TouchCancel {
			r.self.touchCancel(t, e)
		} else {
			r.self.touchEnd(t, e)
		}
	}
	r.resetIfEventsEnded()
}

// touchesAddedOrRemoved moves the client point to the new centroid and
// absorbs the jump into the centroid shift so translation stays continuous.
func (r *recognizer) touchesAddedOrRemoved() {
	if len(r.touches) == 0 {
		return
	}
	r.centroidShift = r.centroidShift.Add(r.client)
	r.client = r.centroid()
	r.centroidShift = r.centroidShift.Sub(r.client)
}

func (r *recognizer) centroid() Vec2 {
	var c Vec2
	for _, t := range r.touches {
		c = c.Add(t.pos)
	}
	return c.Scale(1 / float32(len(r.touches)))
}

// resetIfEventsEnded resets a recognizer that left Possible once every button
// and touch has been released. A recognizer still in Possible keeps its state
// so multi-tap sequences can span interactions.
func (r *recognizer) resetIfEventsEnded() {
	if r.state == Possible || r.buttonMask != 0 || len(r.touches) != 0 {
		return
	}
	r.outcome = r.state
	r.Reset()
}

// Default hooks. Variants override the ones they need.

func (r *recognizer) mouseDown(Event)          {}
func (r *recognizer) mouseMove(Event)          {}
func (r *recognizer) mouseUp(Event)            {}
func (r *recognizer) touchStart(Touch, Event)  {}
func (r *recognizer) touchMove(Event)          {}
func (r *recognizer) touchEnd(Touch, Event)    {}
func (r *recognizer) touchCancel(Touch, Event) {}
func (r *recognizer) resetState()              {}
