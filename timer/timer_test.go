package timer

import (
	"sync"
	"testing"
	"time"
)

func TestOneShotFiresOnce(t *testing.T) {
	d := NewDriver()
	go d.Run()
	defer d.Stop()

	var mu sync.Mutex
	count := 0
	done := make(chan struct{})

	tm := New(func(now time.Time) {
		mu.Lock()
		count++
		mu.Unlock()
		close(done)
	})
	d.Insert(tm, 10*time.Millisecond, 0)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
	if got := tm.State(); got != Finished {
		t.Errorf("state = %v, want Finished", got)
	}
}

func TestPeriodicFiresRepeatedly(t *testing.T) {
	d := NewDriver()
	go d.Run()
	defer d.Stop()

	var mu sync.Mutex
	count := 0
	tm := New(func(now time.Time) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	d.Insert(tm, 5*time.Millisecond, 5*time.Millisecond)

	time.Sleep(60 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count < 3 {
		t.Errorf("count = %d, want at least 3", count)
	}
}

func TestReArmInvalidatesStaleEntry(t *testing.T) {
	d := NewDriver()
	go d.Run()
	defer d.Stop()

	fired := make(chan string, 4)
	tm := New(func(now time.Time) { fired <- "fired" })

	d.Insert(tm, 200*time.Millisecond, 0)
	// Re-arm before the first insertion is due; its queued entry
	// carries the old serial and must be discarded when it comes due.
	d.Insert(tm, 10*time.Millisecond, 0)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("re-armed timer never fired")
	}

	select {
	case <-fired:
		t.Fatal("stale entry fired a second time")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestInsertRejectsOutOfRangeDuration(t *testing.T) {
	d := NewDriver()

	defer func() {
		if recover() == nil {
			t.Error("expected panic for negative delay")
		}
	}()
	d.Insert(New(func(time.Time) {}), -time.Second, 0)
}

func TestPanicInCallbackIsCaught(t *testing.T) {
	d := NewDriver()
	go d.Run()
	defer d.Stop()

	var caught any
	done := make(chan struct{})
	d.SetPanicHandler(func(err any, tm *Timer) {
		caught = err
		close(done)
	})

	d.Insert(New(func(time.Time) { panic("boom") }), time.Millisecond, 0)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("panic handler never invoked")
	}
	if caught != "boom" {
		t.Errorf("caught = %v, want boom", caught)
	}
}
