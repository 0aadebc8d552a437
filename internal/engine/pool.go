package engine

import (
	"errors"
	"runtime"
	"sync"
)

var (
	ErrNoConcurrency = errors.New("engine: no concurrency available")
	ErrPoolClosed    = errors.New("engine: pool closed")
)

// HardwareConcurrency reports how many workers the machine can run in
// parallel.
var HardwareConcurrency = func() int {
	return runtime.GOMAXPROCS(0)
}

// Pool is a fixed set of worker goroutines fed through a job queue, reused
// for every chunk of a search. Safe for concurrent use.
type Pool struct {
	workers int
	jobs    chan func()
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewPool starts workers goroutines. A non-positive count yields
// ErrNoConcurrency.
func NewPool(workers int) (*Pool, error) {
	if workers <= 0 {
		return nil, ErrNoConcurrency
	}
	p := &Pool{
		workers: workers,
		jobs:    make(chan func(), workers*2),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p, nil
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		job()
	}
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int {
	return p.workers
}

// Run queues tasks and blocks until every one of them has returned.
func (p *Pool) Run(tasks []func()) error {
	var done sync.WaitGroup

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrPoolClosed
	}
	done.Add(len(tasks))
	for _, task := range tasks {
		task := task
		p.jobs <- func() {
			defer done.Done()
			task()
		}
	}
	p.mu.RUnlock()

	done.Wait()
	return nil
}

// Close stops accepting tasks and waits for the workers to exit.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
}
