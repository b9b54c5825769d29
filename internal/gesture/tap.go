package gesture

import "time"

type tapRecord struct {
	start   time.Time
	end     time.Time
	touches int
}

// Tap recognizes one or more quick taps of a fixed number of touches. Timing
// is judged from event timestamps. Mouse input fails it.
type Tap struct {
	recognizer

	NumberOfTaps     int
	NumberOfTouches  int
	MaxTouchMovement float32
	MaxTapDuration   time.Duration
	MaxTapInterval   time.Duration

	taps    []tapRecord
	current *tapRecord
}

// NewTap creates a single-tap, single-touch recognizer.
func NewTap() *Tap {
	t := &Tap{
		NumberOfTaps:     1,
		NumberOfTouches:  1,
		MaxTouchMovement: 20,
		MaxTapDuration:   400 * time.Millisecond,
		MaxTapInterval:   400 * time.Millisecond,
	}
	t.bind("tap", t)
	return t
}

func (t *Tap) resetState() {
	t.taps = nil
	t.current = nil
}

func (t *Tap) mouseDown(Event) {
	if t.state == Possible {
		t.setState(Failed)
	}
}

func (t *Tap) touchStart(_ Touch, e Event) {
	if t.state != Possible {
		return
	}
	if len(t.touches) > t.NumberOfTouches {
		t.setState(Failed)
		return
	}
	if t.current == nil {
		t.current = t.beginTap(e.Time)
	}
	t.current.touches = max(t.current.touches, len(t.touches))
}

func (t *Tap) touchMove(Event) {
	if t.state == Possible && t.translation.Len() > t.MaxTouchMovement {
		t.setState(Failed)
	}
}

func (t *Tap) touchEnd(_ Touch, e Event) {
	if t.state != Possible || len(t.touches) != 0 || t.current == nil {
		return
	}
	tap := *t.current
	t.current = nil
	tap.end = e.Time
	if tap.end.Sub(tap.start) > t.MaxTapDuration || tap.touches != t.NumberOfTouches {
		t.setState(Failed)
		return
	}
	t.taps = append(t.taps, tap)
	if len(t.taps) == t.NumberOfTaps {
		t.setState(Recognized)
	}
}

func (t *Tap) touchCancel(Touch, Event) {
	if t.state == Possible {
		t.setState(Failed)
	}
}

// beginTap starts a tap at now, discarding earlier taps of a sequence whose
// interval has expired.
func (t *Tap) beginTap(now time.Time) *tapRecord {
	if n := len(t.taps); n > 0 && now.Sub(t.taps[n-1].end) > t.MaxTapInterval {
		t.taps = nil
	}
	return &tapRecord{start: now}
}

// Click is the mouse analogue of Tap. Touch input fails it.
type Click struct {
	recognizer

	NumberOfClicks int
	// Button is the mouse button that clicks, 0 for the primary button.
	Button           int
	MaxMouseMovement float32
	MaxClickDuration time.Duration
	MaxClickInterval time.Duration

	clicks  []tapRecord
	current *tapRecord
}

// NewClick creates a single left-click recognizer.
func NewClick() *Click {
	c := &Click{
		NumberOfClicks:   1,
		MaxMouseMovement: 5,
		MaxClickDuration: 500 * time.Millisecond,
		MaxClickInterval: 400 * time.Millisecond,
	}
	c.bind("click", c)
	return c
}

func (c *Click) resetState() {
	c.clicks = nil
	c.current = nil
}

func (c *Click) mouseDown(e Event) {
	if c.state != Possible {
		return
	}
	if !validButton(c.Button) || e.Button != c.Button || c.buttonMask != 1<<c.Button {
		c.setState(Failed)
		return
	}
	if n := len(c.clicks); n > 0 && e.Time.Sub(c.clicks[n-1].end) > c.MaxClickInterval {
		c.clicks = nil
	}
	c.current = &tapRecord{start: e.Time, touches: 1}
}

func (c *Click) mouseMove(Event) {
	if c.state == Possible && c.translation.Len() > c.MaxMouseMovement {
		c.setState(Failed)
	}
}

func (c *Click) mouseUp(e Event) {
	if c.state != Possible || c.buttonMask != 0 || c.current == nil {
		return
	}
	click := *c.current
	c.current = nil
	click.end = e.Time
	if click.end.Sub(click.start) > c.MaxClickDuration {
		c.setState(Failed)
		return
	}
	c.clicks = append(c.clicks, click)
	if len(c.clicks) == c.NumberOfClicks {
		c.setState(Recognized)
	}
}

func (c *Click) touchStart(Touch, Event) {
	if c.state == Possible {
		c.setState(Failed)
	}
}
