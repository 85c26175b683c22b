package fiber

import (
	"sync"
	"time"
)

// State is the four-valued lifecycle shared by fibers, timers, and
// async tasks in the source (spec §3).
type State int

const (
	Pending State = iota
	Running
	Suspended
	Finished
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Suspended:
		return "suspended"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

// Fiber is a suspendable task body that runs on its own goroutine but
// is only ever advanced while it holds the scheduler's single token
// (see Scheduler). It stands in for the source's stackful fiber: Go
// gives each one its own goroutine stack instead of a manually
// mmap'd, guard-paged stack region, which a goroutine grows and
// shrinks on its own.
type Fiber struct {
	body func(*Fiber)

	resumeCh chan struct{}
	yieldCh  chan struct{}

	mu           sync.Mutex
	state        State
	future       *Future
	deadline     time.Time // key while future == nil: zero means "now"
	warnDeadline time.Time
	failDeadline time.Time
	warned       bool
	heapIndex    int

	sched *Scheduler
}

func newFiber(body func(*Fiber)) *Fiber {
	return &Fiber{
		body:      body,
		resumeCh:  make(chan struct{}),
		yieldCh:   make(chan struct{}),
		state:     Pending,
		heapIndex: -1,
	}
}

// State returns the fiber's current lifecycle state.
func (fb *Fiber) State() State {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.state
}

// Yield parks the calling fiber on futureOpt (nil means "just yield
// once, unconditionally ready"), with an optional override for the
// scheduler's default fail_timeout. It must be called from inside the
// fiber's own body. Spec §4.6 "Yield".
func (fb *Fiber) Yield(futureOpt *Future, failTimeoutOverride time.Duration) {
	now := time.Now()

	fb.mu.Lock()
	fb.future = futureOpt
	fb.warnDeadline = now.Add(fb.sched.warnTimeout)
	fail := fb.sched.failTimeout
	if failTimeoutOverride > 0 {
		fail = failTimeoutOverride
	}
	fb.failDeadline = now.Add(fail)
	fb.warned = false
	fb.mu.Unlock()

	if futureOpt != nil && futureOpt.subscribe(fb) {
		// Already ready: spec §4.6 step 2, return without switching.
		return
	}

	fb.mu.Lock()
	fb.state = Suspended
	fb.mu.Unlock()

	fb.yieldCh <- struct{}{}
	<-fb.resumeCh

	fb.mu.Lock()
	fb.state = Running
	fb.mu.Unlock()
}

// markReady requeues the fiber into its scheduler's ready set. Its key
// is now "now" because key() checks future.Ready() before falling
// back to the warn/fail deadlines.
func (fb *Fiber) markReady() {
	fb.sched.requeue(fb)
}

func (fb *Fiber) run() {
	defer func() {
		r := recover()
		fb.mu.Lock()
		fb.state = Finished
		fb.mu.Unlock()
		if r != nil && fb.sched.onPanic != nil {
			fb.sched.onPanic(r, fb)
		}
		close(fb.yieldCh)
	}()

	<-fb.resumeCh
	fb.mu.Lock()
	fb.state = Running
	fb.mu.Unlock()
	fb.body(fb)
}

// key returns the absolute time at which the scheduler should next
// examine this fiber: "now" if never parked or not waiting on a
// future, else the earliest of its future's readiness, warn deadline,
// or fail deadline.
func (fb *Fiber) key() time.Time {
	fb.mu.Lock()
	future := fb.future
	warnDeadline, failDeadline, warned := fb.warnDeadline, fb.failDeadline, fb.warned
	deadline := fb.deadline
	fb.mu.Unlock()

	if future == nil {
		return deadline
	}
	if future.Ready() {
		return time.Time{}
	}
	k := failDeadline
	if !warned && warnDeadline.Before(k) {
		k = warnDeadline
	}
	return k
}
