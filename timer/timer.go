// Package timer implements Poseidon's timer driver (spec §4.2): a
// min-heap of deadlines serviced by one goroutine that waits on a
// condition variable until the heap's head is due.
//
// Grounded directly on original_source/poseidon/static/timer_driver.cpp:
// the serial-based invalidation of re-armed timers, the random initial
// serial, and the exact firing rule (pop, resolve, check serial,
// re-arm or finish, invoke, catch) are all carried over from there;
// Go's container/heap replaces the source's manual push_heap/pop_heap.
package timer

import (
	"container/heap"
	"math/rand"
	"sync"
	"time"
)

// State mirrors the four-valued async state shared by timers and
// fibers in the source (spec §3).
type State int

const (
	Pending State = iota
	Running
	Suspended
	Finished
)

const maxDelay = 1000 * 24 * time.Hour // spec §4.2: delays/periods in [0, 1000 days]

// Timer is a one-shot or periodic callback registered with a Driver.
type Timer struct {
	callback func(now time.Time)

	mu     sync.Mutex
	state  State
	serial uint64 // sequence number assigned by the driver on (re-)insertion
}

// State returns the timer's current lifecycle state.
func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// New constructs a Timer that has not yet been inserted into any Driver.
func New(callback func(now time.Time)) *Timer {
	return &Timer{callback: callback, state: Finished}
}

type queuedTimer struct {
	timer  *Timer
	serial uint64
	next   time.Time
	period time.Duration
	index  int
}

type timerHeap []*queuedTimer

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].next.Before(h[j].next) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *timerHeap) Push(x any) {
	qt := x.(*queuedTimer)
	qt.index = len(*h)
	*h = append(*h, qt)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	qt := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return qt
}

// Driver runs the scheduling thread for all Timers inserted into it.
type Driver struct {
	mu     sync.Mutex
	cond   *sync.Cond
	pq     timerHeap
	serial uint64
	quit   chan struct{}
	done   chan struct{}

	onPanic func(err any, t *Timer)
}

// NewDriver creates an idle Driver. Call Run to start its goroutine.
func NewDriver() *Driver {
	d := &Driver{
		quit: make(chan struct{}),
		done: make(chan struct{}),
		// Seed from a random serial, same as Timer_Driver::Timer_Driver,
		// so cookies don't collide across a crash-restart.
		serial: uint64(rand.Int63()),
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// SetPanicHandler installs a callback invoked when a timer's callback
// panics; if unset, panics are simply swallowed (spec §4.2 "Exceptions
// from the callback are logged and suppressed").
func (d *Driver) SetPanicHandler(fn func(err any, t *Timer)) {
	d.onPanic = fn
}

// Insert registers timer to fire after delay and then every period
// (period of 0 means one-shot). Per spec §4.2, delay and period must
// each be within [0, 1000 days].
func (d *Driver) Insert(t *Timer, delay, period time.Duration) {
	if delay < 0 || delay > maxDelay || period < 0 || period > maxDelay {
		panic("timer: delay/period out of range [0, 1000 days]")
	}

	d.mu.Lock()
	d.serial++
	serial := d.serial

	t.mu.Lock()
	t.serial = serial
	t.state = Suspended
	t.mu.Unlock()

	qt := &queuedTimer{
		timer:  t,
		serial: serial,
		next:   time.Now().Add(delay),
		period: period,
	}
	heap.Push(&d.pq, qt)
	d.mu.Unlock()
	d.cond.Signal()
}

// Run services the heap until Stop is called. It should be invoked
// from the dedicated timer-driver goroutine, matching spec §4.8's one
// goroutine-per-component bootstrap.
func (d *Driver) Run() {
	defer close(d.done)

	for {
		qt, wait, stopped := d.waitForDue()
		if stopped {
			return
		}
		if qt == nil {
			if wait > 0 {
				time.Sleep(wait)
			}
			continue
		}
		d.fire(qt)
	}
}

// waitForDue blocks until the head of the heap is due, a new timer is
// inserted, or Stop is called. It returns the due entry (already
// popped), or nil when it woke before the head became due (an Insert
// or Stop signaled), so that the caller re-checks.
func (d *Driver) waitForDue() (qt *queuedTimer, wait time.Duration, stopped bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for {
		select {
		case <-d.quit:
			return nil, 0, true
		default:
		}
		if len(d.pq) > 0 {
			break
		}
		d.cond.Wait()
	}

	now := time.Now()
	head := d.pq[0]
	if now.Before(head.next) {
		t := time.AfterFunc(head.next.Sub(now), func() {
			d.mu.Lock()
			d.cond.Broadcast()
			d.mu.Unlock()
		})
		d.cond.Wait()
		t.Stop()
		return nil, 0, false
	}

	return heap.Pop(&d.pq).(*queuedTimer), 0, false
}

func (d *Driver) fire(qt *queuedTimer) {
	t := qt.timer

	t.mu.Lock()
	if qt.serial != t.serial {
		// Timer was re-armed (or cancelled and reused) since this
		// entry was queued; discard per spec §4.2 step 3.
		t.mu.Unlock()
		return
	}

	periodic := qt.period != 0
	t.state = Running
	t.mu.Unlock()

	if periodic {
		qt.next = qt.next.Add(qt.period)
		d.mu.Lock()
		heap.Push(&d.pq, qt)
		d.mu.Unlock()
	}

	d.invoke(t, qt)

	t.mu.Lock()
	if periodic {
		t.state = Suspended
	} else {
		t.state = Finished
	}
	t.mu.Unlock()
}

func (d *Driver) invoke(t *Timer, qt *queuedTimer) {
	defer func() {
		if r := recover(); r != nil && d.onPanic != nil {
			d.onPanic(r, t)
		}
	}()
	t.callback(time.Now())
}

// Stop halts Run and waits for it to return.
func (d *Driver) Stop() {
	close(d.quit)
	d.mu.Lock()
	d.cond.Broadcast()
	d.mu.Unlock()
	<-d.done
}

// Len returns the number of timers currently queued (for tests/metrics).
func (d *Driver) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pq)
}
