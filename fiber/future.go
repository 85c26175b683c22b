package fiber

import "sync"

// Future is a synchronisation object fibers park on (spec §3). Once
// Complete is called, Ready latches true permanently; later calls are
// no-ops. Grounded on original_source/poseidon/fiber/abstract_fiber.cpp's
// yield/wake contract: a producer completes the future and every
// parked fiber is marked ready for re-examination on the scheduler's
// next round, with no direct cross-thread switch.
type Future struct {
	mu      sync.Mutex
	ready   bool
	value   any
	err     error
	waiters []*Fiber
}

// NewFuture returns an unready future.
func NewFuture() *Future {
	return &Future{}
}

// Ready reports whether the future has been completed.
func (f *Future) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

// Result returns the value and error set by Complete/Fail. Calling it
// before Ready is true returns the zero value and a nil error.
func (f *Future) Result() (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.err
}

// Complete marks the future ready with a value and wakes every parked
// waiter. Only the first call has any effect.
func (f *Future) Complete(value any) {
	f.finish(value, nil)
}

// Fail marks the future ready with an error and wakes every parked waiter.
func (f *Future) Fail(err error) {
	f.finish(nil, err)
}

func (f *Future) finish(value any, err error) {
	f.mu.Lock()
	if f.ready {
		f.mu.Unlock()
		return
	}
	f.ready = true
	f.value = value
	f.err = err
	waiters := f.waiters
	f.waiters = nil
	f.mu.Unlock()

	for _, w := range waiters {
		w.markReady()
	}
}

// subscribe registers fiber as a waiter, or reports the future is
// already ready so the caller need not park at all.
func (f *Future) subscribe(fiber *Fiber) (alreadyReady bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ready {
		return true
	}
	f.waiters = append(f.waiters, fiber)
	return false
}
