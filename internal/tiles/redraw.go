package tiles

// RedrawSignal asks the host to repaint. Requests made before the host reads
// the channel coalesce into one.
type RedrawSignal struct {
	ch chan struct{}
}

// NewRedrawSignal creates a signal with no pending redraw.
func NewRedrawSignal() *RedrawSignal {
	return &RedrawSignal{ch: make(chan struct{}, 1)}
}

// Request never blocks.
func (s *RedrawSignal) Request() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// C receives once per coalesced batch of redraw requests.
func (s *RedrawSignal) C() <-chan struct{} {
	return s.ch
}

// Pending reports and clears a waiting request.
func (s *RedrawSignal) Pending() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}
