package relay

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

const (
	defaultWorkers    = 8
	defaultQueueSize  = 256
	defaultJobTimeout = 30 * time.Second
)

// Job is work scheduled after a webhook has been acknowledged.
type Job func(ctx context.Context)

// DispatcherOpts sizes a Dispatcher.
type DispatcherOpts struct {
	Workers    int           // default 8
	QueueSize  int           // default 256
	JobTimeout time.Duration // per-job deadline, default 30s
}

// Dispatcher runs jobs on a fixed pool of workers fed by a bounded queue.
// Submit never blocks.
type Dispatcher struct {
	jobs    chan queuedJob
	timeout time.Duration
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	// abort cancels running jobs when Shutdown gives up waiting.
	abort  context.Context
	cancel context.CancelFunc
}

type queuedJob struct {
	ctx  context.Context
	name string
	fn   Job
}

// NewDispatcher starts the worker pool.
func NewDispatcher(opts DispatcherOpts) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = defaultJobTimeout
	}

	abort, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		jobs:    make(chan queuedJob, opts.QueueSize),
		timeout: opts.JobTimeout,
		abort:   abort,
		cancel:  cancel,
	}
	d.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go d.worker()
	}
	return d
}

// Submit queues fn. ctx supplies values (log fields, trace) but not
// cancellation, so a job outlives the request that scheduled it. It
// returns false when the queue is full or the dispatcher is shut down.
func (d *Dispatcher) Submit(ctx context.Context, name string, fn Job) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.jobs <- queuedJob{ctx: context.WithoutCancel(ctx), name: name, fn: fn}:
		return true
	default:
		return false
	}
}

// Pending returns the number of queued jobs not yet picked up.
func (d *Dispatcher) Pending() int {
	return len(d.jobs)
}

// Shutdown stops intake and waits for queued and running jobs. If ctx ends
// first, running jobs are cancelled and ctx's error is returned.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		return fmt.Errorf("relay: dispatcher shutdown: %w", ctx.Err())
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for job := range d.jobs {
		d.run(job)
	}
}

func (d *Dispatcher) run(job queuedJob) {
	ctx, cancel := context.WithTimeout(job.ctx, d.timeout)
	stop := context.AfterFunc(d.abort, cancel)
	defer func() {
		stop()
		cancel()
		if rec := recover(); rec != nil {
			slog.ErrorContext(ctx, "dispatcher job panicked",
				"job", job.name,
				"error", rec,
				"stack", string(debug.Stack()),
			)
		}
	}()
	job.fn(ctx)
}
