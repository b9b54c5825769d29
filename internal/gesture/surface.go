package gesture

// Surface is an interaction surface that feeds every event to each attached
// recognizer in attachment order. Recognizers arbitrate among themselves by
// failing on input they do not handle.
type Surface struct {
	recognizers []Recognizer
}

// NewSurface creates a surface with recognizers attached in order.
func NewSurface(recognizers ...Recognizer) *Surface {
	return &Surface{recognizers: recognizers}
}

// Attach appends r to the dispatch order.
func (s *Surface) Attach(r Recognizer) {
	s.recognizers = append(s.recognizers, r)
}

// Recognizers returns the attached recognizers in dispatch order.
func (s *Surface) Recognizers() []Recognizer {
	return s.recognizers
}

// Dispatch feeds e to every attached recognizer.
func (s *Surface) Dispatch(e Event) {
	for _, r := range s.recognizers {
		r.HandleEvent(e)
	}
}

// DispatchAll dispatches events in order.
func (s *Surface) DispatchAll(events []Event) {
	for _, e := range events {
		s.Dispatch(e)
	}
}
