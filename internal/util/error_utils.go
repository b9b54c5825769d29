package util

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

// errorCategories maps substrings of retrieval errors to report categories.
// The first match wins.
var errorCategories = []struct {
	match    string
	category string
}{
	{"context deadline exceeded", "timeout"},
	{"connection refused", "connection refused"},
	{"no such host", "dns lookup failed"},
	{"i/o timeout", "i/o timeout"},
	{"proxyconnect", "proxy connect failed"},
	{"tls handshake", "tls handshake failed"},
	{"HTTP 403", "HTTP 403 forbidden"},
	{"HTTP 404", "HTTP 404 not found"},
	{"HTTP 429", "HTTP 429 too many requests"},
	{"HTTP 5", "HTTP 5xx server error"},
	{"payload exceeds size limit", "payload too large"},
	{"invalid payload", "invalid payload"},
	{"decode", "decode failed"},
}

const maxErrorLen = 50

// ErrorStats counts retrieval errors by category. Safe for concurrent use.
type ErrorStats struct {
	mu     sync.RWMutex
	counts map[string]int
}

// NewErrorStats creates empty error statistics.
func NewErrorStats() *ErrorStats {
	return &ErrorStats{counts: make(map[string]int)}
}

// RecordError counts err under its category. Context errors are matched by
// identity before falling back to the message.
func (es *ErrorStats) RecordError(err error) {
	if err == nil {
		return
	}
	var category string
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		category = "timeout"
	case errors.Is(err, context.Canceled):
		category = "cancelled"
	default:
		category = SimplifyError(err.Error())
	}

	es.mu.Lock()
	es.counts[category]++
	es.mu.Unlock()
}

// SimplifyError maps an error message to a short category, or truncates
// unrecognized messages.
func SimplifyError(msg string) string {
	for _, c := range errorCategories {
		if strings.Contains(msg, c.match) {
			return c.category
		}
	}
	if len(msg) > maxErrorLen {
		return msg[:maxErrorLen] + "..."
	}
	return msg
}

// GetErrorStats returns a copy of the counts.
func (es *ErrorStats) GetErrorStats() map[string]int {
	es.mu.RLock()
	defer es.mu.RUnlock()
	out := make(map[string]int, len(es.counts))
	for k, v := range es.counts {
		out[k] = v
	}
	return out
}

// Categories returns the recorded categories, most frequent first.
func (es *ErrorStats) Categories() []string {
	stats := es.GetErrorStats()
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if stats[keys[i]] != stats[keys[j]] {
			return stats[keys[i]] > stats[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}

// HasErrors reports whether any error was recorded.
func (es *ErrorStats) HasErrors() bool {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return len(es.counts) > 0
}
