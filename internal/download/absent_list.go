package download

import (
	"sync"
	"time"
)

type absentEntry struct {
	tries    int
	lastMark time.Time
}

// AbsentList holds back keys that keep failing. A key that failed is not
// retried for MinCheckInterval; after MaxTries failures it is considered
// absent until TryAgainInterval has passed since the last failure. A list
// with MaxTries <= 0 never holds anything back.
type AbsentList struct {
	mu               sync.Mutex
	maxTries         int
	minCheckInterval time.Duration
	tryAgainInterval time.Duration
	entries          map[string]*absentEntry
	now              func() time.Time
}

// NewAbsentList creates an absent list. maxTries 0 disables it.
func NewAbsentList(maxTries int, minCheckInterval, tryAgainInterval time.Duration) *AbsentList {
	return &AbsentList{
		maxTries:         maxTries,
		minCheckInterval: minCheckInterval,
		tryAgainInterval: tryAgainInterval,
		entries:          make(map[string]*absentEntry),
		now:              time.Now,
	}
}

// IsAbsent reports whether key should not be requested now.
func (a *AbsentList) IsAbsent(key string) bool {
	if a == nil || a.maxTries <= 0 {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entries[key]
	if !ok {
		return false
	}
	since := a.now().Sub(e.lastMark)
	if since > a.tryAgainInterval {
		delete(a.entries, key)
		return false
	}
	return e.tries >= a.maxTries || since < a.minCheckInterval
}

// MarkFailed records a failed retrieval of key.
func (a *AbsentList) MarkFailed(key string) {
	if a == nil || a.maxTries <= 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entries[key]
	if !ok {
		e = &absentEntry{}
		a.entries[key] = e
	}
	e.tries++
	e.lastMark = a.now()
}

// Unmark forgets key after a successful retrieval.
func (a *AbsentList) Unmark(key string) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.entries, key)
}

// Len is the number of keys with recorded failures.
func (a *AbsentList) Len() int {
	if a == nil {
		return 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}
