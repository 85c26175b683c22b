// Package task implements Poseidon's async task executor (spec §4.3):
// a shared FIFO queue drained by a small fixed pool of worker
// goroutines, each of which pops one task at a time and drives it
// through the pending/running/finished states.
//
// Grounded on core/concurrency/executor.go from the teacher repo,
// simplified to match the specification: no per-worker local queues or
// dynamic resizing (the source spawns four or five identical workers
// and never resizes), and one shared FIFO instead of a sharded one, so
// fairness matches "FIFO, no re-ordering by priority" exactly. The
// shared queue is github.com/eapache/queue, the teacher's own ring
// buffer dependency, guarded by a mutex+cond instead of the teacher's
// lock-free per-worker ring.
package task

import (
	"sync"

	"github.com/eapache/queue"
)

// State is the lifecycle of a task as it moves through the executor.
type State int

const (
	Pending State = iota
	Running
	Finished
)

// Task is a unit of work submitted to an Executor. Alive reports
// whether the task's owner still cares about running it; if it
// returns false when the task is popped, the executor discards the
// task without invoking Execute, modeling the weak-reference semantics
// of the source (a task owner dropping its last reference before the
// task runs causes it to resolve empty).
type Task struct {
	Execute func()
	Alive   func() bool

	mu    sync.Mutex
	state State
}

// State returns the task's current lifecycle state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Task) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// Executor runs submitted tasks on a fixed pool of worker goroutines,
// FIFO, with exceptions from Execute logged and suppressed.
type Executor struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending *queue.Queue
	closed  bool
	wg      sync.WaitGroup

	onPanic func(err any, t *Task)
}

// NewExecutor starts numWorkers worker goroutines. Per spec §4.3 the
// bootstrap creates four or five identical workers; callers typically
// pass runtime.GOMAXPROCS(0) or a small fixed constant.
func NewExecutor(numWorkers int) *Executor {
	if numWorkers <= 0 {
		numWorkers = 4
	}
	e := &Executor{pending: queue.New()}
	e.cond = sync.NewCond(&e.mu)
	for i := 0; i < numWorkers; i++ {
		e.wg.Add(1)
		go e.workerLoop()
	}
	return e
}

// SetPanicHandler installs a callback invoked when a task's Execute
// panics. If unset, panics are swallowed.
func (e *Executor) SetPanicHandler(fn func(err any, t *Task)) {
	e.onPanic = fn
}

// Enqueue pushes task onto the shared FIFO queue.
func (e *Executor) Enqueue(t *Task) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.pending.Add(t)
	e.cond.Signal()
}

func (e *Executor) workerLoop() {
	defer e.wg.Done()
	for {
		t, ok := e.pop()
		if !ok {
			return
		}
		e.run(t)
	}
}

func (e *Executor) pop() (*Task, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for e.pending.Length() == 0 && !e.closed {
		e.cond.Wait()
	}
	if e.pending.Length() == 0 {
		return nil, false
	}
	return e.pending.Remove().(*Task), true
}

func (e *Executor) run(t *Task) {
	if t.Alive != nil && !t.Alive() {
		return
	}

	t.setState(Running)
	func() {
		defer func() {
			if r := recover(); r != nil && e.onPanic != nil {
				e.onPanic(r, t)
			}
		}()
		t.Execute()
	}()
	t.setState(Finished)
}

// Close stops accepting new tasks and waits for workers to drain the
// remaining queue and exit.
func (e *Executor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.cond.Broadcast()
	e.mu.Unlock()
	e.wg.Wait()
}

// Pending returns the number of tasks still queued (for tests/metrics).
func (e *Executor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending.Length()
}
