package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/geoyee/globetile/internal/client"
	"github.com/geoyee/globetile/internal/logger"
	"github.com/geoyee/globetile/internal/metrics"
	"github.com/geoyee/globetile/internal/model"
	"github.com/geoyee/globetile/internal/resource"
	"github.com/geoyee/globetile/internal/store"
	"github.com/geoyee/globetile/internal/util"
)

// ErrInvalidPayload is returned for payloads rejected by validation.
var ErrInvalidPayload = errors.New("invalid payload")

// Completion receives the outcome of one retrieval.
type Completion func(tile model.Tile, resource any, size int64, err error)

// Options configures a Retriever.
type Options struct {
	Threads     int
	QueueSize   int
	RateLimit   int
	Timeout     time.Duration
	URLTemplate string

	Fetcher client.Fetcher
	Decoder resource.Decoder
	// Tiers are consulted in order before the fetcher.
	Tiers []store.Store
	// Validate rejects payloads before decoding. Nil accepts any
	// non-empty payload.
	Validate func(data []byte) bool
	Absent   *AbsentList
	Stats    *model.RetrievalStats
}

// failureRecorder is implemented by tiers that keep a failure log.
type failureRecorder interface {
	MarkFailed(key, reason string)
}

// Retriever fetches and decodes tile resources asynchronously. At most one
// retrieval per cache key is in flight at any time.
type Retriever struct {
	opts    Options
	pool    *WorkerPool
	limiter *rate.Limiter
	stats   *model.RetrievalStats
	errors  *util.ErrorStats
	log     *slog.Logger
	stopped atomic.Bool

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewRetriever creates and starts a retriever.
func NewRetriever(opts Options) (*Retriever, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("retriever requires a fetcher")
	}
	if opts.Decoder == nil {
		return nil, errors.New("retriever requires a decoder")
	}
	if opts.URLTemplate == "" {
		return nil, errors.New("retriever requires a url template")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Stats == nil {
		opts.Stats = &model.RetrievalStats{StartTime: time.Now()}
	}

	r := &Retriever{
		opts:     opts,
		stats:    opts.Stats,
		errors:   util.NewErrorStats(),
		log:      logger.Component("retriever"),
		inFlight: make(map[string]struct{}),
	}
	if opts.RateLimit > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateLimit)
	}
	r.pool = NewWorkerPool(opts.Threads, opts.QueueSize, r.process, r.stats)
	r.pool.Start()
	return r, nil
}

// Request starts retrieving tile's resource under key unless a retrieval for
// key is in flight, key is on the absent list, or the queue is full. It
// reports whether a retrieval was started. done runs on a worker goroutine.
func (r *Retriever) Request(tile model.Tile, key string, done Completion) bool {
	task := r.begin(tile, key, done)
	if task == nil {
		return false
	}
	if !r.pool.TrySubmit(task) {
		r.reject(task)
		return false
	}
	atomic.AddInt64(&r.stats.Requested, 1)
	return true
}

// RequestWait is Request for bulk prefetching: it waits for queue space
// instead of rejecting. It returns an error only when ctx is done or the
// retriever has stopped.
func (r *Retriever) RequestWait(ctx context.Context, tile model.Tile, key string, done Completion) (bool, error) {
	if r.stopped.Load() {
		return false, ErrPoolStopped
	}
	task := r.begin(tile, key, done)
	if task == nil {
		return false, nil
	}
	if err := r.pool.Submit(ctx, task); err != nil {
		r.reject(task)
		return false, err
	}
	atomic.AddInt64(&r.stats.Requested, 1)
	return true, nil
}

// begin claims key and builds its task, or returns nil when no retrieval
// should start.
func (r *Retriever) begin(tile model.Tile, key string, done Completion) *model.RetrievalTask {
	if r.stopped.Load() {
		return nil
	}
	if r.opts.Absent.IsAbsent(key) {
		return nil
	}

	r.mu.Lock()
	if _, ok := r.inFlight[key]; ok {
		r.mu.Unlock()
		atomic.AddInt64(&r.stats.Deduplicated, 1)
		metrics.RetrievalsTotal.WithLabelValues("deduplicated").Inc()
		return nil
	}
	r.inFlight[key] = struct{}{}
	r.mu.Unlock()

	metrics.RetrievalsInFlight.Inc()
	return &model.RetrievalTask{
		Tile: tile,
		Key:  key,
		URL:  util.GetTileURL(r.opts.URLTemplate, tile),
		OnComplete: func(res any, size int64, err error) {
			if done != nil {
				done(tile, res, size, err)
			}
		},
	}
}

func (r *Retriever) reject(task *model.RetrievalTask) {
	metrics.RetrievalsInFlight.Dec()
	r.release(task.Key)
	atomic.AddInt64(&r.stats.Rejected, 1)
	metrics.RetrievalsTotal.WithLabelValues("rejected").Inc()
}

func (r *Retriever) release(key string) {
	r.mu.Lock()
	delete(r.inFlight, key)
	r.mu.Unlock()
}

// process runs on a worker. The key stays in flight until the completion
// callback has returned.
func (r *Retriever) process(task *model.RetrievalTask) {
	defer metrics.RetrievalsInFlight.Dec()
	defer r.release(task.Key)

	start := time.Now()
	res, size, err := r.retrieve(task)
	metrics.RetrievalDurationMs.Observe(float64(time.Since(start).Milliseconds()))

	if err != nil {
		atomic.AddInt64(&r.stats.Failed, 1)
		metrics.RetrievalsTotal.WithLabelValues("failed").Inc()
		r.errors.RecordError(err)
		r.opts.Absent.MarkFailed(task.Key)
		for _, tier := range r.opts.Tiers {
			if fr, ok := tier.(failureRecorder); ok {
				fr.MarkFailed(task.Key, err.Error())
			}
		}
		r.log.Warn("retrieval failed", "op", "retrieve", "key", task.Key, "url", task.URL, "error", err)
	} else {
		atomic.AddInt64(&r.stats.Succeeded, 1)
		metrics.RetrievalsTotal.WithLabelValues("succeeded").Inc()
		r.opts.Absent.Unmark(task.Key)
	}
	task.OnComplete(res, size, err)
}

func (r *Retriever) retrieve(task *model.RetrievalTask) (any, int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.opts.Timeout)
	defer cancel()

	for i, tier := range r.opts.Tiers {
		data, ok, err := tier.Get(ctx, task.Tile, task.Key)
		if err != nil {
			r.log.Warn("tier lookup failed", "op", "retrieve", "tier", tier.Name(), "key", task.Key, "error", err)
			continue
		}
		if !ok {
			continue
		}
		res, size, err := r.decode(data)
		if err != nil {
			r.log.Warn("stored payload rejected", "op", "retrieve", "tier", tier.Name(), "key", task.Key, "error", err)
			continue
		}
		atomic.AddInt64(&r.stats.StoreHits, 1)
		atomic.AddInt64(&r.stats.BytesTotal, int64(len(data)))
		// Promote into the faster tiers that missed.
		r.putTiers(ctx, task, data, r.opts.Tiers[:i])
		return res, size, nil
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, 0, fmt.Errorf("rate limit: %w", err)
		}
	}
	data, err := r.opts.Fetcher.Fetch(ctx, task.URL)
	if err != nil {
		return nil, 0, err
	}
	res, size, err := r.decode(data)
	if err != nil {
		return nil, 0, err
	}
	atomic.AddInt64(&r.stats.BytesTotal, int64(len(data)))
	r.putTiers(ctx, task, data, r.opts.Tiers)
	return res, size, nil
}

func (r *Retriever) decode(data []byte) (any, int64, error) {
	valid := len(data) > 0
	if valid && r.opts.Validate != nil {
		valid = r.opts.Validate(data)
	}
	if !valid {
		return nil, 0, fmt.Errorf("%w: %d bytes", ErrInvalidPayload, len(data))
	}
	return r.opts.Decoder.Decode(data)
}

func (r *Retriever) putTiers(ctx context.Context, task *model.RetrievalTask, data []byte, tiers []store.Store) {
	for _, tier := range tiers {
		if err := tier.Put(ctx, task.Tile, task.Key, data); err != nil {
			r.log.Warn("tier write failed", "op", "store", "tier", tier.Name(), "key", task.Key, "error", err)
		}
	}
}

// InFlight returns the number of retrievals queued or running.
func (r *Retriever) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inFlight)
}

// IsInFlight reports whether a retrieval for key is queued or running.
func (r *Retriever) IsInFlight(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.inFlight[key]
	return ok
}

// Wait blocks until no retrieval is in flight or ctx is done.
func (r *Retriever) Wait(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for r.InFlight() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Stop rejects new requests and waits for queued retrievals to finish.
func (r *Retriever) Stop() {
	r.stopped.Store(true)
	r.pool.Stop()
}

// Stats returns the live retrieval counters.
func (r *Retriever) Stats() *model.RetrievalStats {
	return r.stats
}

// ErrorStats returns error counts by category.
func (r *Retriever) ErrorStats() map[string]int {
	return r.errors.GetErrorStats()
}

// LogErrorStats logs the error counts, if any.
func (r *Retriever) LogErrorStats() {
	if !r.errors.HasErrors() {
		return
	}
	counts := r.errors.GetErrorStats()
	for _, category := range r.errors.Categories() {
		r.log.Warn("retrieval errors", "op", "summary", "error", category, "count", counts[category])
	}
}
