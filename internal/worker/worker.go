// Package worker runs background work outside the request path.
package worker

import (
	"context"
	"io"
	"log"
	"sync"
	"time"
)

// Task is one unit of background work.
type Task func(ctx context.Context)

// Dispatcher runs submitted tasks on a fixed set of goroutines.
type Dispatcher struct {
	tasks  chan Task
	size   int
	logger *log.Logger
	wg     sync.WaitGroup
	once   sync.Once
}

func NewDispatcher(workers, queue int, logger *log.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queue < 0 {
		queue = 0
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Dispatcher{tasks: make(chan Task, queue), size: workers, logger: logger}
}

// Start launches the workers. They stop when ctx is cancelled or Stop is called.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.size; i++ {
		d.wg.Add(1)
		go func(id int) {
			defer d.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case task, ok := <-d.tasks:
					if !ok {
						return
					}
					d.run(ctx, id, task)
				}
			}
		}(i)
	}
}

func (d *Dispatcher) run(ctx context.Context, id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Printf("worker: task panicked worker=%d panic=%v", id, r)
		}
	}()
	task(ctx)
}

// Submit hands task to a worker without blocking. It reports false when every
// worker is busy and the queue is full.
func (d *Dispatcher) Submit(task Task) bool {
	select {
	case d.tasks <- task:
		return true
	default:
		return false
	}
}

// Stop closes the queue and waits for queued tasks to finish. Submit must not
// be called after Stop.
func (d *Dispatcher) Stop() {
	d.once.Do(func() { close(d.tasks) })
	d.wg.Wait()
}

// Poller calls fn every interval until ctx is done.
type Poller struct {
	interval time.Duration
	fn       Task
}

func NewPoller(interval time.Duration, fn Task) *Poller {
	return &Poller{interval: interval, fn: fn}
}

// Run calls fn once immediately and then on each tick.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	p.fn(ctx)
	for {
		select {
		case <-ticker.C:
			p.fn(ctx)
		case <-ctx.Done():
			return
		}
	}
}
