package replication

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrQueueFull is returned by Submit when the queue has no free slot.
	ErrQueueFull = errors.New("replication queue is full")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("replication dispatcher is closed")
)

// HandlerFunc processes one task.
type HandlerFunc func(ctx context.Context, t Task) error

type job struct {
	task Task
	ctx  context.Context
	done chan error // nil for fire-and-forget
}

// Dispatcher runs tasks on a fixed pool of workers fed by a bounded queue.
type Dispatcher struct {
	handle  HandlerFunc
	queue   chan job
	workers int

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	start  sync.Once
}

// NewDispatcher creates a dispatcher; Start launches its workers.
func NewDispatcher(workers, queueSize int, handle HandlerFunc) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &Dispatcher{
		handle:  handle,
		queue:   make(chan job, queueSize),
		workers: workers,
	}
}

// Start launches the workers. Calling it more than once has no effect.
func (d *Dispatcher) Start() {
	d.start.Do(func() {
		for i := 0; i < d.workers; i++ {
			d.wg.Add(1)
			go d.run()
		}
	})
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for j := range d.queue {
		err := d.handle(j.ctx, j.task)
		if j.done != nil {
			j.done <- err
		}
	}
}

// Submit enqueues t without blocking.
func (d *Dispatcher) Submit(ctx context.Context, t Task) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.queue <- job{task: t, ctx: ctx}:
		return nil
	default:
		return ErrQueueFull
	}
}

// SubmitAndWait enqueues t, waiting for a free slot, and returns the handler's result.
func (d *Dispatcher) SubmitAndWait(ctx context.Context, t Task) error {
	done := make(chan error, 1)

	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return ErrClosed
	}
	select {
	case d.queue <- job{task: t, ctx: ctx, done: done}:
		d.mu.RUnlock()
	case <-ctx.Done():
		d.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of queued tasks.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

// Close stops accepting tasks, drains the queue and waits for the workers.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.Start() // drain even if never started
	d.wg.Wait()
}
