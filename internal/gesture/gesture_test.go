package gesture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(ms int) time.Time { return t0.Add(time.Duration(ms) * time.Millisecond) }

func mouse(typ EventType, button int, x, y float32) Event {
	return Event{Type: typ, Button: button, Pos: Vec2{x, y}}
}

func touch(typ EventType, ms int, touches ...Touch) Event {
	return Event{Type: typ, Touches: touches, Time: at(ms)}
}

func tp(id int, x, y float32) Touch { return Touch{ID: id, Pos: Vec2{x, y}} }

// recorder collects the states a recognizer reported to its listeners.
type recorder struct{ states []State }

func (r *recorder) listen(rec Recognizer) { r.states = append(r.states, rec.State()) }

func record(r Recognizer) *recorder {
	rec := &recorder{}
	r.AddGestureListener(rec.listen)
	return rec
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "possible", Possible.String())
	assert.Equal(t, "cancelled", Cancelled.String())
	assert.Equal(t, "State(42)", State(42).String())
	assert.True(t, Changed.Active())
	assert.True(t, Recognized.Terminal())
	assert.False(t, Began.Terminal())
}

func TestEventTypeText(t *testing.T) {
	var typ EventType
	require.NoError(t, typ.UnmarshalText([]byte("TouchMove")))
	assert.Equal(t, TouchMove, typ)
	assert.Error(t, typ.UnmarshalText([]byte("wheel")))
	text, err := MouseUp.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "mouseup", string(text))
	assert.True(t, MouseMove.IsMouse())
	assert.False(t, TouchStart.IsMouse())
}

func TestDragLifecycle(t *testing.T) {
	d := NewDrag()
	rec := record(d)

	d.HandleEvent(mouse(MouseDown, 0, 10, 10))
	d.HandleEvent(mouse(MouseMove, 0, 12, 12))
	assert.Equal(t, Possible, d.State())

	d.HandleEvent(mouse(MouseMove, 0, 20, 10))
	assert.Equal(t, Began, d.State())
	d.HandleEvent(mouse(MouseMove, 0, 40, 30))
	assert.Equal(t, Changed, d.State())
	assert.Equal(t, Vec2{30, 20}, d.Translation())
	assert.Equal(t, Vec2{40, 30}, d.ClientPos())

	d.HandleEvent(mouse(MouseUp, 0, 40, 30))
	assert.Equal(t, []State{Began, Changed, Ended}, rec.states)
	assert.Equal(t, Possible, d.State())
	assert.Equal(t, Ended, d.Outcome())
	assert.Equal(t, Vec2{}, d.Translation())
}

func TestDragWrongButtonThenTouchFails(t *testing.T) {
	d := NewDrag()

	// Button 2 pressed: the mask does not match, but nothing has moved yet.
	d.HandleEvent(mouse(MouseDown, 2, 0, 0))
	assert.Equal(t, Possible, d.State())
	assert.False(t, d.shouldRecognize())

	d.HandleEvent(touch(TouchStart, 0, tp(1, 5, 5)))
	assert.Equal(t, Failed, d.State())

	d.HandleEvent(touch(TouchEnd, 10, tp(1, 5, 5)))
	assert.Equal(t, Failed, d.State(), "button 2 is still pressed")
	d.HandleEvent(mouse(MouseUp, 2, 0, 0))
	assert.Equal(t, Possible, d.State())
	assert.Equal(t, Failed, d.Outcome())
}

func TestDragFailsOnMismatchedMaskAfterMoving(t *testing.T) {
	d := NewDrag()
	d.HandleEvent(mouse(MouseDown, 2, 0, 0))
	d.HandleEvent(mouse(MouseMove, 2, 30, 0))
	assert.Equal(t, Failed, d.State())
}

func TestPanFailsOnMouse(t *testing.T) {
	p := NewPan()
	p.HandleEvent(mouse(MouseDown, 0, 0, 0))
	assert.Equal(t, Failed, p.State())
}

func TestPanCentroidContinuity(t *testing.T) {
	p := NewPan()
	rec := record(p)

	p.HandleEvent(touch(TouchStart, 0, tp(1, 0, 0)))
	p.HandleEvent(touch(TouchMove, 10, tp(1, 30, 0)))
	require.Equal(t, Began, p.State())
	assert.Equal(t, Vec2{30, 0}, p.Translation())

	// Adding a second touch moves the centroid but not the translation.
	p.HandleEvent(touch(TouchStart, 20, tp(2, 100, 100)))
	assert.Equal(t, Vec2{30, 0}, p.Translation())

	p.HandleEvent(touch(TouchMove, 30, tp(1, 40, 0), tp(2, 110, 100)))
	assert.Equal(t, Vec2{40, 0}, p.Translation())

	p.HandleEvent(touch(TouchEnd, 40, tp(2, 110, 100)))
	assert.Equal(t, Vec2{40, 0}, p.Translation())
	p.HandleEvent(touch(TouchEnd, 50, tp(1, 40, 0)))

	assert.Equal(t, []State{Began, Changed, Ended}, rec.states)
	assert.Equal(t, Ended, p.Outcome())
}

func TestPanTouchBounds(t *testing.T) {
	p := NewPan()
	p.MinTouches = 2
	p.HandleEvent(touch(TouchStart, 0, tp(1, 0, 0)))
	p.HandleEvent(touch(TouchMove, 10, tp(1, 50, 0)))
	assert.Equal(t, Failed, p.State())

	p.Reset()
	p.MinTouches = 1
	p.MaxTouches = 1
	p.HandleEvent(touch(TouchStart, 0, tp(1, 0, 0), tp(2, 10, 0)))
	assert.Equal(t, Failed, p.State())
}

func TestPanCancel(t *testing.T) {
	p := NewPan()
	rec := record(p)
	p.HandleEvent(touch(TouchStart, 0, tp(1, 0, 0)))
	p.HandleEvent(touch(TouchMove, 10, tp(1, 0, 50)))
	p.HandleEvent(touch(TouchCancel, 20, tp(1, 0, 50)))
	assert.Equal(t, []State{Began, Cancelled}, rec.states)
	assert.Equal(t, Cancelled, p.Outcome())
}

func TestPinchThreshold(t *testing.T) {
	p := NewPinch()
	p.InterpretThreshold = 10

	p.HandleEvent(touch(TouchStart, 0, tp(1, 0, 0), tp(2, 100, 0)))
	p.HandleEvent(touch(TouchMove, 10, tp(1, 5, 0)))
	assert.Equal(t, Possible, p.State())

	p.HandleEvent(touch(TouchMove, 20, tp(1, 15, 0)))
	assert.Equal(t, Began, p.State())
	assert.InDelta(t, 0.85, p.Scale(), 1e-6)

	// Returning within the threshold does not fall back to Possible.
	p.HandleEvent(touch(TouchMove, 30, tp(1, 0, 0)))
	assert.Equal(t, Changed, p.State())
	assert.InDelta(t, 1.0, p.Scale(), 1e-6)
}

func TestPinchChainedTouchKeepsScale(t *testing.T) {
	p := NewPinch()
	p.HandleEvent(touch(TouchStart, 0, tp(1, 0, 0), tp(2, 100, 0)))
	p.HandleEvent(touch(TouchMove, 10, tp(2, 200, 0)))
	require.Equal(t, Began, p.State())
	assert.InDelta(t, 2.0, p.Scale(), 1e-6)

	// Replace touch 2 with touch 3; the scale continues from 2.
	p.HandleEvent(touch(TouchEnd, 20, tp(2, 200, 0)))
	p.HandleEvent(touch(TouchStart, 30, tp(3, 50, 0)))
	assert.InDelta(t, 2.0, p.Scale(), 1e-6)
	p.HandleEvent(touch(TouchMove, 40, tp(3, 100, 0)))
	assert.InDelta(t, 4.0, p.Scale(), 1e-6)

	p.HandleEvent(touch(TouchEnd, 50, tp(1, 0, 0), tp(3, 100, 0)))
	assert.Equal(t, Ended, p.Outcome())
	assert.InDelta(t, 1.0, p.Scale(), 1e-6)
}

func TestPinchFailsOnMouse(t *testing.T) {
	p := NewPinch()
	p.HandleEvent(mouse(MouseDown, 0, 0, 0))
	assert.Equal(t, Failed, p.State())
}

func TestRotation(t *testing.T) {
	r := NewRotation()
	rec := record(r)

	r.HandleEvent(touch(TouchStart, 0, tp(1, 0, 0), tp(2, 100, 0)))
	r.HandleEvent(touch(TouchMove, 10, tp(2, 100, 10)))
	assert.Equal(t, Possible, r.State())

	r.HandleEvent(touch(TouchMove, 20, tp(2, 0, 100)))
	assert.Equal(t, Began, r.State())
	assert.InDelta(t, 90, r.Rotation(), 1e-4)

	r.HandleEvent(touch(TouchMove, 30, tp(2, -100, -1)))
	assert.InDelta(t, -179.427, r.Rotation(), 1e-2)

	r.HandleEvent(touch(TouchEnd, 40, tp(1, 0, 0), tp(2, -100, -1)))
	assert.Equal(t, []State{Began, Changed, Ended}, rec.states)
}

func TestNormalizeAngle(t *testing.T) {
	for in, want := range map[float32]float32{0: 0, 180: 180, -180: 180, 190: -170, -190: 170, 720: 0} {
		assert.InDelta(t, want, normalizeAngle(in), 1e-4, "normalize(%v)", in)
	}
}

func TestTiltVerticalParallel(t *testing.T) {
	tl := NewTilt()
	tl.HandleEvent(touch(TouchStart, 0, tp(1, 100, 300), tp(2, 200, 300)))
	tl.HandleEvent(touch(TouchMove, 10, tp(1, 102, 260), tp(2, 198, 262)))
	assert.Equal(t, Began, tl.State())
	tl.HandleEvent(touch(TouchMove, 20, tp(1, 102, 240), tp(2, 198, 242)))
	assert.Equal(t, Changed, tl.State())
}

func TestTiltRejections(t *testing.T) {
	cases := map[string][]Event{
		"horizontal": {
			touch(TouchStart, 0, tp(1, 100, 300), tp(2, 200, 300)),
			touch(TouchMove, 10, tp(1, 140, 300), tp(2, 240, 300)),
		},
		"opposite": {
			touch(TouchStart, 0, tp(1, 100, 300), tp(2, 200, 300)),
			touch(TouchMove, 10, tp(1, 100, 230), tp(2, 200, 320)),
		},
		"too far apart": {
			touch(TouchStart, 0, tp(1, 0, 300), tp(2, 300, 300)),
			touch(TouchMove, 10, tp(1, 0, 250), tp(2, 300, 250)),
		},
		"diverging": {
			touch(TouchStart, 0, tp(1, 100, 300), tp(2, 200, 300)),
			touch(TouchMove, 10, tp(1, 60, 250), tp(2, 240, 240)),
		},
		"one touch": {
			touch(TouchStart, 0, tp(1, 100, 300)),
			touch(TouchMove, 10, tp(1, 100, 200)),
		},
	}
	for name, events := range cases {
		t.Run(name, func(t *testing.T) {
			tl := NewTilt()
			NewSurface(tl).DispatchAll(events)
			assert.Equal(t, Failed, tl.State())
		})
	}
}

func TestTap(t *testing.T) {
	tap := NewTap()
	rec := record(tap)
	tap.HandleEvent(touch(TouchStart, 0, tp(1, 10, 10)))
	tap.HandleEvent(touch(TouchMove, 50, tp(1, 15, 12)))
	tap.HandleEvent(touch(TouchEnd, 100, tp(1, 15, 12)))
	assert.Equal(t, []State{Recognized}, rec.states)
	assert.Equal(t, Recognized, tap.Outcome())
	assert.Equal(t, Possible, tap.State())
}

func TestTapFailures(t *testing.T) {
	cases := map[string][]Event{
		"too long": {
			touch(TouchStart, 0, tp(1, 10, 10)),
			touch(TouchEnd, 500, tp(1, 10, 10)),
		},
		"moved": {
			touch(TouchStart, 0, tp(1, 10, 10)),
			touch(TouchMove, 50, tp(1, 50, 10)),
			touch(TouchEnd, 100, tp(1, 50, 10)),
		},
		"too many touches": {
			touch(TouchStart, 0, tp(1, 10, 10), tp(2, 20, 20)),
			touch(TouchEnd, 100, tp(1, 10, 10), tp(2, 20, 20)),
		},
		"cancelled": {
			touch(TouchStart, 0, tp(1, 10, 10)),
			touch(TouchCancel, 100, tp(1, 10, 10)),
		},
	}
	for name, events := range cases {
		t.Run(name, func(t *testing.T) {
			tap := NewTap()
			NewSurface(tap).DispatchAll(events)
			assert.Equal(t, Failed, tap.Outcome())
		})
	}

	tap := NewTap()
	tap.HandleEvent(mouse(MouseDown, 0, 0, 0))
	assert.Equal(t, Failed, tap.State())
}

func TestDoubleTap(t *testing.T) {
	tap := NewTap()
	tap.NumberOfTaps = 2
	rec := record(tap)

	tap.HandleEvent(touch(TouchStart, 0, tp(1, 10, 10)))
	tap.HandleEvent(touch(TouchEnd, 100, tp(1, 10, 10)))
	assert.Empty(t, rec.states)

	// Too late for a double tap: the first tap is discarded.
	tap.HandleEvent(touch(TouchStart, 1000, tp(2, 10, 10)))
	tap.HandleEvent(touch(TouchEnd, 1100, tp(2, 10, 10)))
	assert.Empty(t, rec.states)

	tap.HandleEvent(touch(TouchStart, 1300, tp(3, 12, 10)))
	tap.HandleEvent(touch(TouchEnd, 1400, tp(3, 12, 10)))
	assert.Equal(t, []State{Recognized}, rec.states)
}

func TestClick(t *testing.T) {
	c := NewClick()
	rec := record(c)
	down := mouse(MouseDown, 0, 5, 5)
	down.Time = at(0)
	up := mouse(MouseUp, 0, 5, 5)
	up.Time = at(120)
	c.HandleEvent(down)
	c.HandleEvent(up)
	assert.Equal(t, []State{Recognized}, rec.states)

	c = NewClick()
	c.HandleEvent(mouse(MouseDown, 1, 5, 5))
	assert.Equal(t, Failed, c.State())

	c = NewClick()
	c.HandleEvent(touch(TouchStart, 0, tp(1, 0, 0)))
	assert.Equal(t, Failed, c.State())
}

func TestDisabledRecognizerIgnoresEvents(t *testing.T) {
	p := NewPan()
	p.HandleEvent(touch(TouchStart, 0, tp(1, 0, 0)))
	p.SetEnabled(false)
	assert.False(t, p.Enabled())
	assert.Equal(t, 0, p.TouchCount())

	p.HandleEvent(touch(TouchMove, 10, tp(1, 100, 0)))
	assert.Equal(t, Possible, p.State())

	p.SetEnabled(true)
	p.HandleEvent(touch(TouchStart, 20, tp(1, 0, 0)))
	p.HandleEvent(touch(TouchMove, 30, tp(1, 100, 0)))
	assert.Equal(t, Began, p.State())
}

func TestPanAndPinchRunIndependently(t *testing.T) {
	pan := NewPan()
	pinch := NewPinch()
	s := NewSurface(pan, pinch)

	s.Dispatch(touch(TouchStart, 0, tp(1, 100, 100), tp(2, 200, 100)))
	// Both touches slide down; the distance barely changes.
	s.Dispatch(touch(TouchMove, 10, tp(1, 100, 150), tp(2, 200, 180)))
	assert.Equal(t, Began, pan.State())
	assert.Equal(t, Possible, pinch.State())

	s.Dispatch(touch(TouchMove, 20, tp(2, 260, 180)))
	assert.Equal(t, Changed, pan.State())
	assert.Equal(t, Began, pinch.State())

	s.Dispatch(touch(TouchEnd, 30, tp(1, 100, 150), tp(2, 260, 180)))
	assert.Equal(t, Ended, pan.Outcome())
	assert.Equal(t, Ended, pinch.Outcome())
}

func TestDeterministicReplay(t *testing.T) {
	events := []Event{
		touch(TouchStart, 0, tp(1, 0, 0), tp(2, 100, 0)),
		touch(TouchMove, 10, tp(1, -20, 5), tp(2, 130, 8)),
		touch(TouchMove, 20, tp(1, -40, 30), tp(2, 170, 34)),
		touch(TouchEnd, 30, tp(1, -40, 30)),
		touch(TouchEnd, 40, tp(2, 170, 34)),
	}

	run := func() (State, State, float32, Vec2) {
		pan, pinch := NewPan(), NewPinch()
		var lastTranslation Vec2
		var lastScale float32
		pan.AddGestureListener(func(r Recognizer) { lastTranslation = r.Translation() })
		pinch.AddGestureListener(func(r Recognizer) { lastScale = r.(*Pinch).Scale() })
		NewSurface(pan, pinch).DispatchAll(events)
		return pan.Outcome(), pinch.Outcome(), lastScale, lastTranslation
	}

	p1, q1, s1, t1 := run()
	p2, q2, s2, t2 := run()
	assert.Equal(t, Ended, p1)
	assert.Equal(t, Ended, q1)
	assert.Equal(t, p1, p2)
	assert.Equal(t, q1, q2)
	assert.Equal(t, s1, s2)
	assert.Equal(t, t1, t2)
}

func TestOutOfRangeButtonsAreIgnored(t *testing.T) {
	d := NewDrag()
	c := NewClick()
	for _, b := range []int{-1, MaxButtons, 64} {
		assert.NotPanics(t, func() {
			d.HandleEvent(mouse(MouseDown, b, 0, 0))
			d.HandleEvent(mouse(MouseMove, b, 30, 0))
			d.HandleEvent(mouse(MouseUp, b, 30, 0))
			c.HandleEvent(mouse(MouseDown, b, 0, 0))
			c.HandleEvent(mouse(MouseUp, b, 0, 0))
		})
	}
	assert.Equal(t, Possible, d.State())
	assert.Zero(t, d.PressedButtons())
	assert.Equal(t, Possible, c.State())

	c.Button = -1
	assert.NotPanics(t, func() { c.HandleEvent(mouse(MouseDown, 0, 0, 0)) })
	assert.Equal(t, Failed, c.State())
}
