// Package worker runs sync requests through a single rate-limited queue fed
// by the tiered scheduler and the API.
package worker

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/ads-sync/internal/config"
	apperrors "github.com/ads-sync/internal/errors"
	"github.com/ads-sync/internal/metrics"
	"github.com/ads-sync/internal/retry"
	"github.com/ads-sync/internal/service"
	"github.com/google/uuid"
)

// ErrQueueClosed is returned by Enqueue after Close
var ErrQueueClosed = apperrors.NewQueueClosedError()

// Runner executes one sync request
type Runner interface {
	Run(ctx context.Context, req service.Request) error
}

// ItemState is the lifecycle state of a queued request
type ItemState string

const (
	ItemQueued     ItemState = "queued"
	ItemProcessing ItemState = "processing"
	ItemRetrying   ItemState = "retrying"
	ItemDone       ItemState = "done"
	ItemFailed     ItemState = "failed"
)

// Item is a request tracked by the queue
type Item struct {
	ID         string          `json:"id"`
	Request    service.Request `json:"request"`
	State      ItemState       `json:"state"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
	StartedAt  *time.Time      `json:"startedAt,omitempty"`
	FinishedAt *time.Time      `json:"finishedAt,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// QueueConfig configures a Queue
type QueueConfig struct {
	// MinInterval is the minimum gap between the starts of consecutive items
	MinInterval time.Duration
	// MaxRetries bounds rate-limit retries; the n-th retry waits RetryBaseDelay * 2^n
	MaxRetries     int
	RetryBaseDelay time.Duration
	// HonorRetryAfter stretches a retry delay to the platform's Retry-After
	HonorRetryAfter bool
	// History is how many finished items Status reports
	History int

	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

// QueueConfigFrom builds a queue config from the queue settings
func QueueConfigFrom(cfg config.QueueConfig) QueueConfig {
	return QueueConfig{
		MinInterval:     cfg.MinInterval,
		MaxRetries:      cfg.MaxRetries,
		RetryBaseDelay:  cfg.RetryBaseDelay,
		HonorRetryAfter: cfg.HonorRetryAfter,
	}
}

// QueueStatus is a point-in-time view of the queue
type QueueStatus struct {
	Depth     int     `json:"depth"`
	Draining  bool    `json:"draining"`
	Closed    bool    `json:"closed"`
	Current   *Item   `json:"current,omitempty"`
	Pending   []*Item `json:"pending"`
	Recent    []*Item `json:"recent"`
	Processed int64   `json:"processed"`
	Failed    int64   `json:"failed"`
	Retried   int64   `json:"retried"`
}

// Queue is an in-memory FIFO drained by at most one goroutine at a time.
// Platform calls are therefore serialized across every account.
type Queue struct {
	runner Runner
	cfg    QueueConfig

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	pending   []*Item
	current   *Item
	recent    []*Item
	draining  bool
	closed    bool
	lastStart time.Time
	processed int64
	failed    int64
	retried   int64
}

// NewQueue creates a queue that runs requests with runner
func NewQueue(runner Runner, cfg QueueConfig) *Queue {
	if cfg.MinInterval < 0 {
		cfg.MinInterval = 0
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}
	if cfg.History <= 0 {
		cfg.History = 50
	}
	if cfg.Sleep == nil {
		cfg.Sleep = retry.SleepContext
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{runner: runner, cfg: cfg, ctx: ctx, cancel: cancel}
}

// Enqueue appends a request and starts the drain loop if it is idle. A request
// for the same account and scope that is already waiting or running is not
// added again; the existing item is returned with added=false.
func (q *Queue) Enqueue(req service.Request) (item *Item, added bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, false, ErrQueueClosed
	}
	if existing := q.findLocked(req); existing != nil {
		return snapshot(existing), false, nil
	}

	item = &Item{
		ID:         uuid.New().String(),
		Request:    req,
		State:      ItemQueued,
		EnqueuedAt: q.cfg.Now().UTC(),
	}
	q.pending = append(q.pending, item)
	metrics.QueueDepth.Set(float64(len(q.pending)))

	if !q.draining {
		q.draining = true
		q.wg.Add(1)
		go q.drain()
	}
	return snapshot(item), true, nil
}

func (q *Queue) findLocked(req service.Request) *Item {
	same := func(it *Item) bool {
		return it.Request.AccountID == req.AccountID && it.Request.Scope == req.Scope && it.Request.Days == req.Days
	}
	if q.current != nil && same(q.current) {
		return q.current
	}
	for _, it := range q.pending {
		if same(it) {
			return it
		}
	}
	return nil
}

// next pops the head of the queue or ends the drain loop when empty
func (q *Queue) next() *Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 || q.closed {
		q.draining = false
		q.current = nil
		return nil
	}
	item := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	q.current = item
	metrics.QueueDepth.Set(float64(len(q.pending)))
	return item
}

func (q *Queue) drain() {
	defer q.wg.Done()
	for {
		item := q.next()
		if item == nil {
			return
		}
		if err := q.space(); err != nil {
			q.finish(item, err)
			continue
		}
		q.process(item)
	}
}

// space waits until MinInterval has passed since the previous item started
func (q *Queue) space() error {
	q.mu.Lock()
	last := q.lastStart
	q.mu.Unlock()

	if !last.IsZero() {
		if wait := q.cfg.MinInterval - q.cfg.Now().Sub(last); wait > 0 {
			if err := q.cfg.Sleep(q.ctx, wait); err != nil {
				return err
			}
		}
	}

	q.mu.Lock()
	q.lastStart = q.cfg.Now()
	q.mu.Unlock()
	return nil
}

func (q *Queue) process(item *Item) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[SyncQueue] Panic while processing %s (account %s): %v", item.ID, item.Request.AccountID, r)
			q.finish(item, errors.New("panic during sync"))
		}
	}()

	policy := retry.DefaultRetryConfig()
	policy.MaxRetries = q.cfg.MaxRetries
	policy.BaseDelay = q.cfg.RetryBaseDelay
	policy.HonorHint = q.cfg.HonorRetryAfter
	policy.Sleep = q.cfg.Sleep
	policy.OnRetry = func(n int, delay time.Duration, err error) {
		q.setState(item, ItemRetrying)
		q.mu.Lock()
		q.retried++
		q.mu.Unlock()
		metrics.QueueRetries.Inc()
		log.Printf("[SyncQueue] Rate limited on %s for account %s, retry %d in %v", item.Request.Scope, item.Request.AccountID, n+1, delay)
	}

	result := retry.WithExponentialBackoff(q.ctx, policy, func(ctx context.Context, attempt int) error {
		q.mu.Lock()
		item.Attempts = attempt
		item.State = ItemProcessing
		if item.StartedAt == nil {
			started := q.cfg.Now().UTC()
			item.StartedAt = &started
		}
		q.mu.Unlock()
		return q.runner.Run(ctx, item.Request)
	})
	q.finish(item, result.LastError)
}

func (q *Queue) setState(item *Item, state ItemState) {
	q.mu.Lock()
	item.State = state
	q.mu.Unlock()
}

// finish moves an item to its terminal state. Errors are recorded, never raised.
func (q *Queue) finish(item *Item, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.cfg.Now().UTC()
	item.FinishedAt = &now
	if err != nil {
		item.State = ItemFailed
		item.Error = err.Error()
		q.failed++
		log.Printf("[SyncQueue] %s sync for account %s failed after %d attempt(s): %v", item.Request.Scope, item.Request.AccountID, item.Attempts, err)
	} else {
		item.State = ItemDone
		log.Printf("[SyncQueue] %s sync for account %s done", item.Request.Scope, item.Request.AccountID)
	}
	q.processed++
	metrics.RecordQueueOutcome(string(item.Request.Tier), err != nil)

	q.recent = append(q.recent, item)
	if len(q.recent) > q.cfg.History {
		q.recent = q.recent[len(q.recent)-q.cfg.History:]
	}
	if q.current == item {
		q.current = nil
	}
}

// Status returns copies of the queue's items and counters
func (q *Queue) Status() QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()

	st := QueueStatus{
		Depth:     len(q.pending),
		Draining:  q.draining,
		Closed:    q.closed,
		Pending:   make([]*Item, 0, len(q.pending)),
		Recent:    make([]*Item, 0, len(q.recent)),
		Processed: q.processed,
		Failed:    q.failed,
		Retried:   q.retried,
	}
	if q.current != nil {
		st.Current = snapshot(q.current)
	}
	for _, it := range q.pending {
		st.Pending = append(st.Pending, snapshot(it))
	}
	for i := len(q.recent) - 1; i >= 0; i-- {
		st.Recent = append(st.Recent, snapshot(q.recent[i]))
	}
	return st
}

// Close stops accepting requests and waits for the in-flight item. Waiting
// items are dropped. If ctx expires first the in-flight item is cancelled.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	dropped := len(q.pending)
	q.pending = nil
	q.mu.Unlock()
	metrics.QueueDepth.Set(0)

	if dropped > 0 {
		log.Printf("[SyncQueue] Closing, dropped %d waiting request(s)", dropped)
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}

func snapshot(it *Item) *Item {
	cp := *it
	return &cp
}
