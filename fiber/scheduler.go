// Package fiber rebuilds Poseidon's fiber scheduler (spec §4.6) for
// Go. The source runs many stackful fibers cooperatively on one OS
// thread, switching between them with hand-written machine-context
// assembly. Go cannot do that portably, so per spec.md §9 this is
// reimplemented as a single-token cooperative scheduler: every fiber
// body runs on its own goroutine, but the Scheduler only ever lets one
// of them proceed at a time, handing it a token (an unbuffered
// channel send) and blocking until that fiber either yields back or
// finishes. The result preserves the contract — one fiber "runs" at a
// time, switches are explicit, nothing pre-empts a fiber mid-body —
// without needing manual stack management.
package fiber

import (
	"container/heap"
	"sync"
	"time"
)

const (
	defaultWarnTimeout = 500 * time.Millisecond
	defaultFailTimeout = 60 * time.Second
)

type fiberHeap []*Fiber

func (h fiberHeap) Len() int { return len(h) }
func (h fiberHeap) Less(i, j int) bool {
	return h[i].key().Before(h[j].key())
}
func (h fiberHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex, h[j].heapIndex = i, j
}
func (h *fiberHeap) Push(x any) {
	fb := x.(*Fiber)
	fb.heapIndex = len(*h)
	*h = append(*h, fb)
}
func (h *fiberHeap) Pop() any {
	old := *h
	n := len(old)
	fb := old[n-1]
	old[n-1] = nil
	fb.heapIndex = -1
	*h = old[:n-1]
	return fb
}

// Scheduler runs the single fiber thread's scheduling loop (spec
// §4.6). Create one per process and call Run from its dedicated
// goroutine.
type Scheduler struct {
	mu    sync.Mutex
	cond  *sync.Cond
	ready fiberHeap
	quit  chan struct{}
	done  chan struct{}

	warnTimeout time.Duration
	failTimeout time.Duration

	onPanic func(err any, fb *Fiber)
	onWarn  func(fb *Fiber)
}

// NewScheduler creates an idle Scheduler with the default warn/fail
// timeouts. Call Run to start its loop.
func NewScheduler() *Scheduler {
	s := &Scheduler{
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
		warnTimeout: defaultWarnTimeout,
		failTimeout: defaultFailTimeout,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// SetTimeouts overrides the default warn/fail deadlines; every later
// Yield computes its deadlines from the values set here.
func (s *Scheduler) SetTimeouts(warn, fail time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warnTimeout = warn
	s.failTimeout = fail
}

// SetPanicHandler installs a callback invoked when a fiber body panics.
func (s *Scheduler) SetPanicHandler(fn func(err any, fb *Fiber)) {
	s.onPanic = fn
}

// SetWarnHandler installs a callback invoked once per park for a fiber
// parked longer than its warn_timeout (spec §4.6 "Deadlines"); it is
// not repeated while that same park continues.
func (s *Scheduler) SetWarnHandler(fn func(fb *Fiber)) {
	s.onWarn = fn
}

// Launch hands body to the scheduler as a new fiber, to be run to
// completion cooperatively. Returns the Fiber handle.
func (s *Scheduler) Launch(body func(*Fiber)) *Fiber {
	fb := newFiber(body)
	fb.sched = s
	go fb.run()

	s.mu.Lock()
	heap.Push(&s.ready, fb)
	s.mu.Unlock()
	s.cond.Broadcast()
	return fb
}

// requeue reinserts fb into the ready heap, or fixes its position if
// it is already there (e.g. its future just completed while it still
// sat in the heap on its warn/fail deadline).
func (s *Scheduler) requeue(fb *Fiber) {
	if fb.State() == Finished {
		// A future this fiber once subscribed to completed after the
		// fiber itself already ran to completion; its goroutine is
		// gone, so there is nothing left to resume.
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if fb.heapIndex >= 0 {
		heap.Fix(&s.ready, fb.heapIndex)
	} else {
		heap.Push(&s.ready, fb)
	}
	s.cond.Broadcast()
}

// Run services the ready set until Stop is called.
func (s *Scheduler) Run() {
	defer close(s.done)

	for {
		fb, stopped := s.waitForDue()
		if stopped {
			return
		}
		if fb == nil {
			continue
		}

		s.switchTo(fb)

		if fb.State() != Finished {
			s.requeue(fb)
		}
	}
}

func (s *Scheduler) waitForDue() (fb *Fiber, stopped bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		select {
		case <-s.quit:
			if len(s.ready) == 0 {
				return nil, true
			}
		default:
		}

		if len(s.ready) == 0 {
			s.waitCond()
			continue
		}

		head := s.ready[0]
		now := time.Now()
		k := head.key()
		if !k.After(now) {
			return heap.Pop(&s.ready).(*Fiber), false
		}

		if s.checkWarn(head, now) {
			// warned flipped false->true, which moves this fiber's key
			// from warnDeadline to failDeadline; fix its heap position.
			heap.Fix(&s.ready, head.heapIndex)
			continue
		}

		s.waitUntil(k)
	}
}

func (s *Scheduler) checkWarn(fb *Fiber, now time.Time) bool {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if fb.future == nil || fb.warned || fb.warnDeadline.After(now) || fb.warnDeadline.IsZero() {
		return false
	}
	fb.warned = true
	if s.onWarn != nil {
		fb.mu.Unlock()
		s.onWarn(fb)
		fb.mu.Lock()
	}
	return true
}

// waitCond blocks on the condition variable until signaled, giving up
// the scheduler mutex while waiting (must be called with s.mu held).
func (s *Scheduler) waitCond() {
	s.cond.Wait()
}

// waitUntil blocks until deadline elapses or a new readiness event
// signals the condition variable (must be called with s.mu held).
func (s *Scheduler) waitUntil(deadline time.Time) {
	timer := time.AfterFunc(time.Until(deadline), func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	s.cond.Wait()
	timer.Stop()
}

// switchTo hands the token to fb and blocks until it yields or finishes.
func (s *Scheduler) switchTo(fb *Fiber) {
	fb.resumeCh <- struct{}{}
	<-fb.yieldCh
}

// Stop halts Run and waits for it to return. Per spec §4.6
// "Cancellation", this is cooperative: it does not forcibly cancel
// any live fiber, it simply stops the scheduling loop once the ready
// set next empties out naturally.
func (s *Scheduler) Stop() {
	close(s.quit)
	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
	<-s.done
}

// Len returns the number of fibers currently tracked (for tests/metrics).
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ready)
}
