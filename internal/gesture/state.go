package gesture

import "fmt"

// State is a recognizer state.
type State int

const (
	Possible State = iota
	Began
	Changed
	Ended
	Recognized
	Failed
	Cancelled
)

var stateNames = [...]string{"possible", "began", "changed", "ended", "recognized", "failed", "cancelled"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Active reports whether s is Began or Changed.
func (s State) Active() bool {
	return s == Began || s == Changed
}

// Terminal reports whether s ends an interaction.
func (s State) Terminal() bool {
	return s == Ended || s == Recognized || s == Failed || s == Cancelled
}
