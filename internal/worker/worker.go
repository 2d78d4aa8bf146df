package worker

import (
	"context"
	"log"
	"sync"
	"time"

	"brokerCtl/internal/broker"
	"brokerCtl/internal/model"
)

// Recorder persists finished chains. *storage.Store implements it.
type Recorder interface {
	RecordOutcome(o model.Outcome) error
}

type Worker struct {
	Broker *broker.Broker
	Store  Recorder
	// ShutdownGrace bounds how long Run waits for canceled tasks to exit
	// after its context is done. Tasks still running past it are reported
	// as interrupted.
	ShutdownGrace time.Duration
}

func New(b *broker.Broker, store Recorder) *Worker {
	return &Worker{
		Broker:        b,
		Store:         store,
		ShutdownGrace: 10 * time.Second,
	}
}

// Run enqueues every descriptor and blocks until each chain has ended. When
// ctx is done first, the broker is shut down, which cancels running tasks
// and drops the rest. Outcomes are returned in submission order.
func (w *Worker) Run(ctx context.Context, descs []model.TaskDescriptor, onEvent func(model.TaskEvent)) []model.Outcome {
	b := &batch{
		worker:   w,
		outcomes: make([]model.Outcome, len(descs)),
		trackers: make([]*tracker, len(descs)),
	}
	b.wg.Add(len(descs))

	for i, desc := range descs {
		t := &tracker{batch: b, index: i, desc: desc, created: time.Now().UTC()}
		b.trackers[i] = t
		h := w.Broker.Enqueue(desc, func(ev model.TaskEvent) {
			if onEvent != nil {
				onEvent(ev)
			}
			t.observe(ev)
		})
		b.mu.Lock()
		t.desc.ID = h.ID
		b.mu.Unlock()
	}

	finished := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return b.outcomes
	case <-ctx.Done():
	}

	log.Printf("Worker: %v, shutting down broker", ctx.Err())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), w.ShutdownGrace)
	defer cancel()
	if err := w.Broker.Shutdown(shutdownCtx); err != nil {
		log.Printf("Worker: broker shutdown: %v", err)
	}
	select {
	case <-finished:
		return b.outcomes
	case <-shutdownCtx.Done():
	}
	return b.abandon()
}

func (w *Worker) record(o model.Outcome) {
	// Rejections are not stored: a duplicate id would overwrite the history
	// of the task that owns it.
	if w.Store == nil || o.State == model.StateRejected {
		return
	}
	if err := w.Store.RecordOutcome(o); err != nil {
		log.Printf("Worker: error recording task %s: %v", o.ID, err)
	}
}

// batch collects the outcomes of one Run. Once abandoned, late events are
// ignored so nothing is recorded after Run returns.
type batch struct {
	worker    *Worker
	wg        sync.WaitGroup
	mu        sync.Mutex
	outcomes  []model.Outcome
	trackers  []*tracker
	abandoned bool
}

// abandon marks every chain that has not ended as interrupted and returns a
// copy of the outcomes.
func (b *batch) abandon() []model.Outcome {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.abandoned = true
	now := time.Now().UTC()
	for i, t := range b.trackers {
		if t.ended {
			continue
		}
		o := model.Outcome{
			ID:         t.desc.ID,
			Descriptor: t.desc,
			State:      model.StateInterrupted,
			Attempts:   t.attempts,
			ExitCode:   -1,
			Duration:   now.Sub(t.created),
			Message:    "still running at shutdown",
			CreatedAt:  t.created,
		}
		t.ended = true
		b.outcomes[i] = o
		b.worker.record(o)
		b.wg.Done()
	}
	log.Printf("Worker: gave up waiting after %s", b.worker.ShutdownGrace)
	return append([]model.Outcome(nil), b.outcomes...)
}

// tracker follows one chain's events. Its fields are guarded by batch.mu.
type tracker struct {
	batch    *batch
	index    int
	desc     model.TaskDescriptor
	created  time.Time
	attempts int
	ended    bool
}

func (t *tracker) observe(ev model.TaskEvent) {
	b := t.batch
	b.mu.Lock()
	defer b.mu.Unlock()
	if t.ended || b.abandoned {
		return
	}
	o := model.Outcome{
		ID:         ev.TaskID(),
		Descriptor: t.desc,
		CreatedAt:  t.created,
	}
	o.Descriptor.ID = ev.TaskID()

	switch e := ev.(type) {
	case model.Started:
		t.attempts++
		return
	case model.Finished:
		o.ExitCode, o.Duration = e.ExitCode, e.Duration
	case model.Failed:
		o.ExitCode, o.Duration = e.ExitCode, e.Duration
	case model.Canceled:
		o.ExitCode, o.Duration = -1, e.Duration
	case model.Timeout:
		o.ExitCode, o.Duration = -1, e.Duration
	case model.InternalError:
		o.State = model.StateRejected
		if t.attempts > 0 {
			o.State = model.StateAborted
		}
		o.ExitCode = -1
		o.Message = e.Message
	default:
		return
	}
	if o.State == "" {
		o.State = model.StateOf(ev)
	}
	o.Attempts = t.attempts
	t.ended = true
	b.outcomes[t.index] = o
	b.worker.record(o)
	b.wg.Done()
}
