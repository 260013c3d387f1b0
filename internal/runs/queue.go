package runs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"bankfeed/internal/uuid"
)

// Handler executes one run and returns its summary. A non-nil error marks
// the run failed; a summary is recorded either way when present.
type Handler func(ctx context.Context, run *Run) (*Summary, error)

// Queue is an in-memory run queue safe for concurrent use. It suits a
// single-instance deployment: runs are lost on restart, which is acceptable
// because every run is re-triggerable and ingestion is idempotent.
type Queue struct {
	mu        sync.RWMutex
	runs      map[string]*Run
	runChan   chan string
	closeChan chan struct{}
	wg        sync.WaitGroup
	closed    bool
}

// NewQueue creates a queue; bufferSize bounds how many runs may wait before
// Enqueue blocks.
func NewQueue(bufferSize int) *Queue {
	return &Queue{
		runs:      make(map[string]*Run),
		runChan:   make(chan string, bufferSize),
		closeChan: make(chan struct{}),
	}
}

// Enqueue registers a run and queues it for execution. The run's ID and
// pending state are assigned here.
func (q *Queue) Enqueue(ctx context.Context, run *Run) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return fmt.Errorf("queue is closed")
	}
	if run.ID == "" {
		run.ID = uuid.New()
	}
	run.Status = StatusPending
	run.CreatedAt = time.Now()
	q.runs[run.ID] = run
	q.mu.Unlock()

	select {
	case q.runChan <- run.ID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return fmt.Errorf("queue is closed")
	}
}

// Get returns a snapshot of the run with the given id.
func (q *Queue) Get(id string) (Run, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	run, ok := q.runs[id]
	if !ok {
		return Run{}, false
	}
	return *run, true
}

// List returns snapshots of all known runs, newest first.
func (q *Queue) List() []Run {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]Run, 0, len(q.runs))
	for _, run := range q.runs {
		out = append(out, *run)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Start launches workers consuming queued runs. Each worker processes one
// run at a time; scrape runs for different banks may therefore proceed in
// parallel, each with its own driver.
func (q *Queue) Start(ctx context.Context, workers int, handler Handler) {
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}
}

// Stop closes the queue and waits for in-flight runs, up to the context
// deadline.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.closeChan)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) worker(ctx context.Context, handler Handler) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case id := <-q.runChan:
			q.process(ctx, id, handler)
		}
	}
}

func (q *Queue) process(ctx context.Context, id string, handler Handler) {
	q.mu.Lock()
	run, ok := q.runs[id]
	if !ok {
		q.mu.Unlock()
		return
	}
	now := time.Now()
	run.Status = StatusRunning
	run.StartedAt = &now
	snapshot := *run
	q.mu.Unlock()

	summary, err := handler(ctx, &snapshot)

	q.mu.Lock()
	defer q.mu.Unlock()
	done := time.Now()
	run.CompletedAt = &done
	run.Summary = summary
	switch {
	case err != nil:
		run.Status = StatusFailed
		run.Error = err.Error()
	case summary != nil && summary.FatalError != "":
		run.Status = StatusFailed
		run.Error = summary.FatalError
	default:
		run.Status = StatusCompleted
	}
}
