package printer

import "sync"

// worker is a restartable background goroutine. signal asks it to stop and
// join waits for it to exit. At most one goroutine runs per worker.
type worker struct {
	mu      sync.Mutex
	stop    chan struct{}
	stopped bool
	done    chan struct{}
}

// start launches fn. The caller must join any previous goroutine first.
func (w *worker) start(fn func(stop <-chan struct{})) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.stop = make(chan struct{})
	w.stopped = false
	w.done = make(chan struct{})

	stop, done := w.stop, w.done
	workersGauge.Inc()
	go func() {
		defer close(done)
		defer workersGauge.Dec()
		fn(stop)
	}()
}

// signal closes the stop channel once. It is safe to call with no goroutine.
func (w *worker) signal() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stop != nil && !w.stopped {
		close(w.stop)
		w.stopped = true
	}
}

// join blocks until the goroutine has exited, then clears the handle. It
// must not be called from the goroutine itself.
func (w *worker) join() {
	w.mu.Lock()
	done := w.done
	w.mu.Unlock()

	if done == nil {
		return
	}
	<-done

	w.mu.Lock()
	if w.done == done {
		w.done = nil
		w.stop = nil
	}
	w.mu.Unlock()
}

// running reports whether a goroutine is alive.
func (w *worker) running() bool {
	w.mu.Lock()
	done := w.done
	w.mu.Unlock()

	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}
