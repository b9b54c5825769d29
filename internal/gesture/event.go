// Package gesture turns mouse and multi-touch event streams into drag, pan,
// pinch, rotation, tilt, tap and click gestures.
package gesture

import (
	"fmt"
	"strings"
	"time"

	"github.com/chewxy/math32"
)

// Vec2 is a point or displacement in client (screen) coordinates.
type Vec2 struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// Add returns v+o.
func (v Vec2) Add(o Vec2) Vec2 { return Vec2{v.X + o.X, v.Y + o.Y} }

// Sub returns v-o.
func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{v.X - o.X, v.Y - o.Y} }

// Scale returns v scaled by s.
func (v Vec2) Scale(s float32) Vec2 { return Vec2{v.X * s, v.Y * s} }

// Len returns the length of v.
func (v Vec2) Len() float32 { return math32.Hypot(v.X, v.Y) }

// EventType is the kind of an input event.
type EventType int

const (
	MouseDown EventType = iota
	MouseMove
	MouseUp
	TouchStart
	TouchMove
	TouchEnd
	TouchCancel
)

var eventTypeNames = [...]string{"mousedown", "mousemove", "mouseup", "touchstart", "touchmove", "touchend", "touchcancel"}

func (t EventType) String() string {
	if t < 0 || int(t) >= len(eventTypeNames) {
		return fmt.Sprintf("EventType(%d)", int(t))
	}
	return eventTypeNames[t]
}

func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *EventType) UnmarshalText(text []byte) error {
	name := strings.ToLower(string(text))
	for i, n := range eventTypeNames {
		if n == name {
			*t = EventType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown event type %q", text)
}

// MaxButtons bounds the mouse button numbers a recognizer tracks.
const MaxButtons = 31

func validButton(b int) bool { return b >= 0 && b < MaxButtons }

// IsMouse reports whether t is a mouse event.
func (t EventType) IsMouse() bool { return t <= MouseUp }

// Touch is one contact point. IDs are stable for the lifetime of a contact.
type Touch struct {
	ID  int  `json:"id"`
	Pos Vec2 `json:"pos"`
}

// Event is one input event. Mouse events use Button and Pos; touch events
// carry the touches that changed.
type Event struct {
	Type    EventType `json:"type"`
	Button  int       `json:"button,omitempty"`
	Pos     Vec2      `json:"pos"`
	Touches []Touch   `json:"touches,omitempty"`
	Time    time.Time `json:"time"`
}
