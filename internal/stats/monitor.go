// Package stats tracks retrieval progress and logs it periodically.
package stats

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/geoyee/globetile/internal/logger"
	"github.com/geoyee/globetile/internal/model"
)

const maxSpeedHistory = 100

// Monitor owns a RetrievalStats and samples its throughput.
type Monitor struct {
	stats    *model.RetrievalStats
	expected atomic.Int64
	interval time.Duration
	stop     chan struct{}
	stopOnce sync.Once
	started  atomic.Bool
	done     chan struct{}
	mu       sync.RWMutex
	log      *slog.Logger
}

// NewMonitor creates a monitor logging progress every interval.
func NewMonitor(interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Monitor{
		stats: &model.RetrievalStats{
			StartTime:    time.Now(),
			SpeedHistory: make([]model.SpeedRecord, 0, maxSpeedHistory),
		},
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		log:      logger.Component("stats"),
	}
}

// Stats returns the live counters. Fields must be read with sync/atomic.
func (m *Monitor) Stats() *model.RetrievalStats {
	return m.stats
}

// SetExpected sets the number of retrievals progress is measured against.
func (m *Monitor) SetExpected(n int64) {
	m.expected.Store(n)
}

// Snapshot is a consistent copy of the counters.
type Snapshot struct {
	Requested     int64   `json:"requested"`
	Succeeded     int64   `json:"succeeded"`
	Failed        int64   `json:"failed"`
	Deduplicated  int64   `json:"deduplicated"`
	Rejected      int64   `json:"rejected"`
	StoreHits     int64   `json:"store_hits"`
	BytesTotal    int64   `json:"bytes_total"`
	ActiveWorkers int32   `json:"active_workers"`
	Uptime        string  `json:"uptime"`
	LastSpeedKBs  float64 `json:"last_speed_kbs"`
}

// Snapshot returns the current counters and rates.
func (m *Monitor) Snapshot() Snapshot {
	s := m.stats
	snap := Snapshot{
		Requested:     atomic.LoadInt64(&s.Requested),
		Succeeded:     atomic.LoadInt64(&s.Succeeded),
		Failed:        atomic.LoadInt64(&s.Failed),
		Deduplicated:  atomic.LoadInt64(&s.Deduplicated),
		Rejected:      atomic.LoadInt64(&s.Rejected),
		StoreHits:     atomic.LoadInt64(&s.StoreHits),
		BytesTotal:    atomic.LoadInt64(&s.BytesTotal),
		ActiveWorkers: atomic.LoadInt32(&s.ActiveWorkers),
		Uptime:        time.Since(s.StartTime).Round(time.Second).String(),
	}
	m.mu.RLock()
	if n := len(s.SpeedHistory); n > 0 {
		snap.LastSpeedKBs = s.SpeedHistory[n-1].Speed
	}
	m.mu.RUnlock()
	return snap
}

// Start logs progress every interval until Stop is called or the expected
// count is reached.
func (m *Monitor) Start() {
	if m.started.CompareAndSwap(false, true) {
		go m.run()
	}
}

// Stop ends monitoring and waits for the loop to exit.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	if m.started.Load() {
		<-m.done
	}
}

func (m *Monitor) run() {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	var lastSucceeded, lastBytes int64
	lastTime := time.Now()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			succeeded, bytes := m.sample(now, now.Sub(lastTime).Seconds(), lastSucceeded, lastBytes)
			lastSucceeded, lastBytes, lastTime = succeeded, bytes, now

			if expected := m.expected.Load(); expected > 0 &&
				succeeded+atomic.LoadInt64(&m.stats.Failed) >= expected {
				return
			}
		case <-m.stop:
			return
		}
	}
}

func (m *Monitor) sample(now time.Time, seconds float64, lastSucceeded, lastBytes int64) (int64, int64) {
	succeeded := atomic.LoadInt64(&m.stats.Succeeded)
	bytes := atomic.LoadInt64(&m.stats.BytesTotal)
	failed := atomic.LoadInt64(&m.stats.Failed)

	var speed, countSpeed float64
	if seconds > 0 {
		speed = float64(bytes-lastBytes) / 1024 / seconds
		countSpeed = float64(succeeded-lastSucceeded) / seconds
	}

	m.mu.Lock()
	m.stats.SpeedHistory = append(m.stats.SpeedHistory, model.SpeedRecord{
		Time:  now,
		Speed: speed,
		Count: int64(countSpeed),
	})
	if len(m.stats.SpeedHistory) > maxSpeedHistory {
		m.stats.SpeedHistory = m.stats.SpeedHistory[1:]
	}
	m.mu.Unlock()

	attrs := []any{
		"op", "progress",
		"succeeded", succeeded,
		"failed", failed,
		"store_hits", atomic.LoadInt64(&m.stats.StoreHits),
		"kb_per_sec", speed,
		"tiles_per_sec", countSpeed,
		"active_workers", atomic.LoadInt32(&m.stats.ActiveWorkers),
	}
	if expected := m.expected.Load(); expected > 0 {
		attrs = append(attrs, "expected", expected,
			"percent", float64(succeeded+failed)/float64(expected)*100)
	}
	m.log.Info("retrieval progress", attrs...)
	return succeeded, bytes
}

// LogFinal logs a summary of the run.
func (m *Monitor) LogFinal() {
	snap := m.Snapshot()
	duration := time.Since(m.stats.StartTime)
	attrs := []any{
		"op", "summary",
		"duration", duration.Round(time.Millisecond).String(),
		"requested", snap.Requested,
		"succeeded", snap.Succeeded,
		"store_hits", snap.StoreHits,
		"failed", snap.Failed,
		"deduplicated", snap.Deduplicated,
		"rejected", snap.Rejected,
		"mb_total", float64(snap.BytesTotal) / 1024 / 1024,
	}
	if secs := duration.Seconds(); secs > 0 {
		attrs = append(attrs,
			"avg_kb_per_sec", float64(snap.BytesTotal)/1024/secs,
			"avg_tiles_per_sec", float64(snap.Succeeded)/secs)
	}
	m.log.Info("retrieval finished", attrs...)
}
