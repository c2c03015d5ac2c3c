package worker

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrDispatcherBusy is returned when the pending-job queue is full; handlers
// surface it as HTTP 429.
var ErrDispatcherBusy = errors.New("dispatcher queue is full")

// Config bounds the generation pool.
type Config struct {
	MinWorkers  int
	MaxWorkers  int
	QueueSize   int
	IdleTimeout time.Duration
}

type job struct {
	ctx  context.Context
	fn   func(context.Context) error
	done chan error
}

// Dispatcher runs generation tasks on an elastic worker pool with fair
// round-robin scheduling across sessions. Jobs of one session never run
// concurrently, so exchanges within a session stay ordered even if a client
// misbehaves.
type Dispatcher struct {
	cfg Config

	mu        sync.Mutex
	queues    map[string][]*job
	running   map[string]bool
	ready     *list.List // session ids with pending jobs, none running
	positions map[string]*list.Element
	pending   int
	workers   int

	wake chan struct{}
}

// NewDispatcher builds a dispatcher and warms up the minimum workers.
func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.MinWorkers <= 0 {
		cfg.MinWorkers = 1
	}
	if cfg.MaxWorkers < cfg.MinWorkers {
		cfg.MaxWorkers = cfg.MinWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = time.Minute
	}
	d := &Dispatcher{
		cfg:       cfg,
		queues:    make(map[string][]*job),
		running:   make(map[string]bool),
		ready:     list.New(),
		positions: make(map[string]*list.Element),
		wake:      make(chan struct{}, cfg.QueueSize+cfg.MaxWorkers),
	}
	d.mu.Lock()
	for i := 0; i < cfg.MinWorkers; i++ {
		d.workers++
		go d.runWorker()
	}
	d.mu.Unlock()
	return d
}

// Do enqueues fn for the session and waits for it to finish. It fails fast
// with ErrDispatcherBusy when the queue is saturated.
func (d *Dispatcher) Do(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	j := &job{ctx: ctx, fn: fn, done: make(chan error, 1)}

	d.mu.Lock()
	if d.pending >= d.cfg.QueueSize {
		d.mu.Unlock()
		return ErrDispatcherBusy
	}
	if _, queued := d.queues[sessionID]; !queued && !d.running[sessionID] {
		d.positions[sessionID] = d.ready.PushBack(sessionID)
	}
	d.queues[sessionID] = append(d.queues[sessionID], j)
	d.pending++
	if d.workers < d.cfg.MaxWorkers && d.pending > d.workers {
		d.workers++
		go d.runWorker()
	}
	d.mu.Unlock()
	d.signal()

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) runWorker() {
	timer := time.NewTimer(d.cfg.IdleTimeout)
	defer timer.Stop()
	for {
		j, sessionID := d.dequeue()
		if j != nil {
			if err := j.ctx.Err(); err != nil {
				j.done <- err
			} else {
				j.done <- runJob(j)
			}
			d.complete(sessionID)
			continue
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(d.cfg.IdleTimeout)
		select {
		case <-d.wake:
		case <-timer.C:
			if d.tryRetire() {
				return
			}
		}
	}
}

func runJob(j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panic: %v", r)
		}
	}()
	return j.fn(j.ctx)
}

// dequeue pops the next job in round-robin session order and marks its
// session running.
func (d *Dispatcher) dequeue() (*job, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	elem := d.ready.Front()
	if elem == nil {
		return nil, ""
	}
	sessionID := elem.Value.(string)
	d.ready.Remove(elem)
	delete(d.positions, sessionID)

	q := d.queues[sessionID]
	j := q[0]
	if len(q) == 1 {
		delete(d.queues, sessionID)
	} else {
		d.queues[sessionID] = q[1:]
	}
	d.running[sessionID] = true
	d.pending--
	return j, sessionID
}

// complete releases the session and re-queues it behind the others when more
// of its jobs are pending.
func (d *Dispatcher) complete(sessionID string) {
	d.mu.Lock()
	delete(d.running, sessionID)
	if _, queued := d.queues[sessionID]; queued {
		d.positions[sessionID] = d.ready.PushBack(sessionID)
	}
	d.mu.Unlock()
	d.signal()
}

func (d *Dispatcher) tryRetire() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.workers > d.cfg.MinWorkers {
		d.workers--
		return true
	}
	return false
}
