// Package dispatch provides the background worker pool and deferred results
// that carry asynchronous index operations.
//
// Every heavy operation on an index is submitted to a Dispatcher and observed
// through a Future. A process-global default dispatcher is shared by all
// indexes that are not given an explicit one.
package dispatch

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrDispatcherClosed is returned when work is submitted to a closed dispatcher.
var ErrDispatcherClosed = errors.New("dispatcher is closed")

// Dispatcher manages a fixed pool of goroutines for background index work.
// A fixed pool avoids spawning one goroutine per operation under load and
// gives the process a bounded amount of concurrent index computation.
type Dispatcher struct {
	numWorkers int
	workCh     chan func()
	stopCh     chan struct{}
	wg         sync.WaitGroup
	closed     atomic.Bool
	submitMu   sync.RWMutex
}

// NewDispatcher creates a dispatcher with numWorkers goroutines.
// If numWorkers <= 0, runtime.GOMAXPROCS(0) workers are started.
func NewDispatcher(numWorkers int) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}

	d := &Dispatcher{
		numWorkers: numWorkers,
		workCh:     make(chan func(), numWorkers*2), // 2x buffer for pipelining
		stopCh:     make(chan struct{}),
	}

	d.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go d.worker()
	}

	return d
}

// worker processes work closures from the work channel.
func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for {
		select {
		case <-d.stopCh:
			// Drain remaining work before exiting
			for {
				select {
				case work, ok := <-d.workCh:
					if !ok {
						return
					}
					work()
				default:
					return
				}
			}
		case work, ok := <-d.workCh:
			if !ok {
				return
			}
			work()
		}
	}
}

// Workers returns the number of pool goroutines.
func (d *Dispatcher) Workers() int {
	return d.numWorkers
}

// Submit enqueues a work closure, blocking for backpressure when the queue
// is full. Returns an error if the dispatcher is closed or the context is
// cancelled before the work is enqueued.
func (d *Dispatcher) Submit(ctx context.Context, work func()) error {
	d.submitMu.RLock()
	defer d.submitMu.RUnlock()

	if d.closed.Load() {
		return ErrDispatcherClosed
	}

	select {
	case d.workCh <- work:
		return nil
	case <-d.stopCh:
		return ErrDispatcherClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close shuts down the dispatcher gracefully, waiting for already-enqueued
// work to finish. Close is idempotent.
func (d *Dispatcher) Close() {
	if !d.closed.CompareAndSwap(false, true) {
		return
	}

	d.submitMu.Lock()
	close(d.stopCh)
	close(d.workCh)
	d.submitMu.Unlock()

	d.wg.Wait()
}

var (
	defaultDispatcher     *Dispatcher
	defaultDispatcherOnce sync.Once
)

// Default returns the lazily-initialized process-global dispatcher.
// It is never closed; indexes that need an isolated lifecycle should carry
// their own dispatcher.
func Default() *Dispatcher {
	defaultDispatcherOnce.Do(func() {
		defaultDispatcher = NewDispatcher(0)
	})

	return defaultDispatcher
}
