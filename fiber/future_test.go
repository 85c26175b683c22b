package fiber

import "testing"

func TestFutureCompleteIsOnceOnly(t *testing.T) {
	f := NewFuture()
	f.Complete(1)
	f.Complete(2)
	v, err := f.Result()
	if v != 1 || err != nil {
		t.Errorf("Result() = (%v, %v), want (1, nil)", v, err)
	}
}

func TestFutureFailSetsError(t *testing.T) {
	f := NewFuture()
	want := errTest{}
	f.Fail(want)
	if !f.Ready() {
		t.Fatal("expected Ready after Fail")
	}
	_, err := f.Result()
	if err != want {
		t.Errorf("Result() err = %v, want %v", err, want)
	}
}

type errTest struct{}

func (errTest) Error() string { return "test error" }

func TestSubscribeToAlreadyReadyFutureReturnsTrue(t *testing.T) {
	f := NewFuture()
	f.Complete(nil)
	if ready := f.subscribe(&Fiber{}); !ready {
		t.Error("subscribe should report already ready")
	}
}
