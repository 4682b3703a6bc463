package debounce

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func waitFor(t *testing.T, ch <-chan int) int {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for debounced call")
		return 0
	}
}

func TestDebouncer_CoalescesBurst(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := New(clock, 500*time.Millisecond)

	fired := make(chan int, 10)
	var calls atomic.Int32
	for i := 1; i <= 5; i++ {
		v := i
		d.Trigger(func() {
			calls.Add(1)
			fired <- v
		})
		clock.Advance(100 * time.Millisecond)
	}

	if !d.Pending() {
		t.Fatal("expected a pending call")
	}

	clock.Advance(500 * time.Millisecond)
	if got := waitFor(t, fired); got != 5 {
		t.Fatalf("fired with %d, want last value 5", got)
	}

	select {
	case v := <-fired:
		t.Fatalf("unexpected extra call with %d", v)
	case <-time.After(50 * time.Millisecond):
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestDebouncer_DoesNotFireEarly(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := New(clock, 500*time.Millisecond)

	fired := make(chan int, 1)
	d.Trigger(func() { fired <- 1 })
	clock.Advance(499 * time.Millisecond)

	select {
	case <-fired:
		t.Fatal("fired before the interval elapsed")
	case <-time.After(50 * time.Millisecond):
	}

	clock.Advance(time.Millisecond)
	waitFor(t, fired)
}

func TestDebouncer_Cancel(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := New(clock, 500*time.Millisecond)

	fired := make(chan int, 1)
	d.Trigger(func() { fired <- 1 })
	d.Cancel()

	if d.Pending() {
		t.Fatal("Pending() = true after Cancel")
	}

	clock.Advance(time.Second)
	select {
	case <-fired:
		t.Fatal("cancelled call fired")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDebouncer_SeparateBursts(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := New(clock, 500*time.Millisecond)

	fired := make(chan int, 2)
	d.Trigger(func() { fired <- 1 })
	clock.Advance(500 * time.Millisecond)
	waitFor(t, fired)

	d.Trigger(func() { fired <- 2 })
	clock.Advance(500 * time.Millisecond)
	if got := waitFor(t, fired); got != 2 {
		t.Fatalf("second burst fired with %d", got)
	}
}
