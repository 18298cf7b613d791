package events

import (
	"context"
	"sync"
)

// worker runs submitted jobs one at a time in submission order. The queue is unbounded so
// submit never blocks; a stalled job grows the queue instead of blocking callers.
type worker struct {
	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
	done   chan struct{}
	depth  func(int)
}

func newWorker(depth func(int)) *worker {
	if depth == nil {
		depth = func(int) {}
	}
	w := &worker{
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
		depth: depth,
	}
	go w.run()
	return w
}

// submit enqueues job. It returns false once the worker is closed.
func (w *worker) submit(job func()) bool {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return false
	}
	w.queue = append(w.queue, job)
	w.depth(len(w.queue))
	w.mu.Unlock()
	w.signal()
	return true
}

func (w *worker) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *worker) run() {
	defer close(w.done)
	for {
		w.mu.Lock()
		if len(w.queue) == 0 {
			closed := w.closed
			w.mu.Unlock()
			if closed {
				return
			}
			<-w.wake
			continue
		}
		job := w.queue[0]
		w.queue[0] = nil
		w.queue = w.queue[1:]
		w.depth(len(w.queue))
		w.mu.Unlock()
		job()
	}
}

// close stops accepting jobs and waits until queued jobs have run or ctx is done.
func (w *worker) close(ctx context.Context) error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.signal()
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *worker) pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}
