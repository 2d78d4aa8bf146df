// Package broker runs external commands under a concurrency cap with a FIFO
// pending queue, per-task timeouts, cooperative cancellation and jittered
// retries. Every outcome is reported as a model.TaskEvent to the callback the
// task was enqueued with.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"brokerCtl/internal/eventlog"
	"brokerCtl/internal/model"

	"github.com/google/uuid"
)

var ErrClosed = errors.New("broker shut down")

type Config struct {
	DefaultWorkDir string
	DefaultEnv     map[string]string
	// DefaultTimeout of zero means tasks have no timeout unless they set one.
	DefaultTimeout time.Duration
	MaxConcurrent  int
	// MaxQueueDepth limits the pending queue; nil leaves it unbounded.
	MaxQueueDepth *int
	RetryCount    int
	RetryDelay    time.Duration
	RetryJitter   time.Duration
	// Rand overrides the jitter source, mainly for tests.
	Rand   func() float64
	Logger *eventlog.Logger
}

// QueueDepth is a helper for setting Config.MaxQueueDepth.
func QueueDepth(n int) *int { return &n }

func (c Config) Validate() error {
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("max concurrent tasks must be >= 1, got %d", c.MaxConcurrent)
	}
	if c.MaxQueueDepth != nil && *c.MaxQueueDepth < 0 {
		return fmt.Errorf("max queue depth must be >= 0, got %d", *c.MaxQueueDepth)
	}
	if c.RetryCount < 0 {
		return fmt.Errorf("retry count must be >= 0, got %d", c.RetryCount)
	}
	if c.RetryDelay < 0 || c.RetryJitter < 0 {
		return fmt.Errorf("retry delay and jitter must be >= 0")
	}
	return nil
}

// Handle identifies an enqueued task. Progress is only reported via events.
type Handle struct {
	ID string
}

// Stats is a point-in-time view of the broker's registries.
type Stats struct {
	Pending     int
	Running     int
	Backoff     int
	PeakRunning int
	Rejected    int64
}

type Broker struct {
	cfg    Config
	policy RetryPolicy

	mu       sync.Mutex
	pending  []*pendingItem
	running  map[string]*runningJob
	backoff  map[string]*backoffEntry
	closed   bool
	peak     int
	rejected int64

	// counts running jobs and armed backoff timers
	inflight sync.WaitGroup
}

func New(cfg Config) (*Broker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.DefaultEnv = cloneEnv(cfg.DefaultEnv)
	return &Broker{
		cfg: cfg,
		policy: RetryPolicy{
			Count:  cfg.RetryCount,
			Delay:  cfg.RetryDelay,
			Jitter: cfg.RetryJitter,
			Rand:   cfg.Rand,
		},
		running: make(map[string]*runningJob),
		backoff: make(map[string]*backoffEntry),
	}, nil
}

// Enqueue admits desc and starts it as soon as a slot is free. Rejections are
// delivered to onEvent as model.InternalError before Enqueue returns; a task
// admitted into a free slot is spawned on its own goroutine. Enqueue itself
// never fails.
func (b *Broker) Enqueue(desc model.TaskDescriptor, onEvent func(model.TaskEvent)) Handle {
	desc = desc.Clone().Normalize()
	if desc.ID == "" {
		desc.ID = uuid.NewString()
	}
	if onEvent == nil {
		onEvent = func(model.TaskEvent) {}
	}
	c := &chain{desc: desc, onEvent: onEvent}

	if len(desc.Command) == 0 || desc.Command[0] == "" {
		b.reject(c, "empty command")
		return Handle{ID: desc.ID}
	}

	b.mu.Lock()
	reason := b.admissionErrorLocked(desc.ID)
	if reason != "" {
		b.rejected++
		b.mu.Unlock()
		b.emit(c, model.InternalError{ID: desc.ID, Message: reason})
		return Handle{ID: desc.ID}
	}
	b.pending = append(b.pending, &pendingItem{chain: c})
	promoted := b.promoteLocked()
	b.mu.Unlock()

	if len(promoted) > 0 {
		go b.startAll(promoted)
	}
	return Handle{ID: desc.ID}
}

// Cancel requests termination of a running task. It returns false, and does
// nothing, when id is not running.
func (b *Broker) Cancel(id string) bool {
	b.mu.Lock()
	job, ok := b.running[id]
	if !ok || job.exited {
		b.mu.Unlock()
		return false
	}
	job.canceled = true
	// A job still spawning is terminated by start once cmd exists.
	b.terminateLocked(job)
	b.mu.Unlock()
	return true
}

func (b *Broker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Pending:     len(b.pending),
		Running:     len(b.running),
		Backoff:     len(b.backoff),
		PeakRunning: b.peak,
		Rejected:    b.rejected,
	}
}

// Shutdown stops admission, drops pending and backing-off tasks with an
// InternalError, cancels running tasks and waits for their terminal events.
func (b *Broker) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	dropped := b.pending
	b.pending = nil
	var stopped []*chain
	for id, entry := range b.backoff {
		delete(b.backoff, id)
		// A timer that already fired reports its own chain in resubmit.
		if entry.timer.Stop() {
			stopped = append(stopped, entry.chain)
			b.inflight.Done()
		}
	}
	for _, job := range b.running {
		job.canceled = true
		b.terminateLocked(job)
	}
	b.mu.Unlock()

	for _, item := range dropped {
		b.emit(item.chain, model.InternalError{ID: item.chain.desc.ID, Message: ErrClosed.Error()})
	}
	for _, c := range stopped {
		b.emit(c, model.InternalError{ID: c.desc.ID, Message: ErrClosed.Error()})
	}

	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Broker) admissionErrorLocked(id string) string {
	if b.closed {
		return ErrClosed.Error()
	}
	if b.knownLocked(id) {
		return fmt.Sprintf("duplicate task id %q", id)
	}
	if b.cfg.MaxQueueDepth != nil && len(b.running) >= b.cfg.MaxConcurrent && len(b.pending) >= *b.cfg.MaxQueueDepth {
		return fmt.Sprintf("queue full (depth %d)", *b.cfg.MaxQueueDepth)
	}
	return ""
}

func (b *Broker) knownLocked(id string) bool {
	if _, ok := b.running[id]; ok {
		return true
	}
	if _, ok := b.backoff[id]; ok {
		return true
	}
	for _, item := range b.pending {
		if item.chain.desc.ID == id {
			return true
		}
	}
	return false
}

// promoteLocked moves FIFO heads into the running registry while slots are
// free. The returned jobs must be started after b.mu is released.
func (b *Broker) promoteLocked() []*runningJob {
	var out []*runningJob
	for len(b.running) < b.cfg.MaxConcurrent && len(b.pending) > 0 {
		item := b.pending[0]
		b.pending[0] = nil
		b.pending = b.pending[1:]
		job := &runningJob{chain: item.chain, attempt: item.attempt}
		b.running[item.chain.desc.ID] = job
		b.inflight.Add(1)
		out = append(out, job)
	}
	if len(b.running) > b.peak {
		b.peak = len(b.running)
	}
	return out
}

func (b *Broker) startAll(jobs []*runningJob) {
	for _, job := range jobs {
		b.start(job)
	}
}

// release removes job from the registry, optionally parks its chain in the
// backoff registry for a delayed resubmission, frees the slot and starts
// whatever can be promoted. It is the last step of every termination path.
// It reports false when a requested retry was refused because the broker is
// shutting down.
func (b *Broker) release(job *runningJob, retry bool, delay time.Duration) bool {
	id := job.chain.desc.ID
	parked := false

	b.mu.Lock()
	if b.running[id] == job {
		delete(b.running, id)
	}
	if retry && !b.closed {
		entry := &backoffEntry{chain: job.chain, attempt: job.attempt + 1}
		b.backoff[id] = entry
		b.inflight.Add(1)
		entry.timer = time.AfterFunc(delay, func() { b.resubmit(entry) })
		parked = true
	}
	promoted := b.promoteLocked()
	b.mu.Unlock()

	b.inflight.Done()
	b.startAll(promoted)
	return !retry || parked
}

// resubmit re-enters a retried chain through the pending queue. Retries were
// admitted once already, so the queue depth limit does not apply to them.
func (b *Broker) resubmit(entry *backoffEntry) {
	defer b.inflight.Done()
	id := entry.chain.desc.ID

	b.mu.Lock()
	if b.backoff[id] != entry {
		b.mu.Unlock()
		b.emit(entry.chain, model.InternalError{ID: id, Message: ErrClosed.Error()})
		return
	}
	delete(b.backoff, id)
	b.pending = append(b.pending, &pendingItem{chain: entry.chain, attempt: entry.attempt})
	promoted := b.promoteLocked()
	b.mu.Unlock()

	b.startAll(promoted)
}

func (b *Broker) reject(c *chain, reason string) {
	b.mu.Lock()
	b.rejected++
	b.mu.Unlock()
	b.emit(c, model.InternalError{ID: c.desc.ID, Message: reason})
}

// emit logs ev and delivers it to the chain's own callback. Callers must not
// hold b.mu.
func (b *Broker) emit(c *chain, ev model.TaskEvent) {
	b.cfg.Logger.Record(ev, c.desc.LogPath)
	c.deliver(ev)
}

type chain struct {
	desc    model.TaskDescriptor
	onEvent func(model.TaskEvent)
	// serializes callback delivery across stdout, stderr and lifecycle events
	mu sync.Mutex
}

func (c *chain) deliver(ev model.TaskEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("broker: event callback for task %s panicked: %v", c.desc.ID, r)
		}
	}()
	c.onEvent(ev)
}

type pendingItem struct {
	chain   *chain
	attempt int
}

type backoffEntry struct {
	chain   *chain
	attempt int
	timer   *time.Timer
}

func cloneEnv(env map[string]string) map[string]string {
	if env == nil {
		return nil
	}
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}
