package assistant

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestContinuous_ResumesAfterDelay(t *testing.T) {
	var resumed atomic.Int32
	c := NewContinuous(true, 20*time.Millisecond, func() bool { return true }, func() { resumed.Add(1) })

	start := time.Now()
	if !c.Schedule() {
		t.Fatalf("expected schedule to arm")
	}
	if !c.Pending() {
		t.Fatalf("expected pending resume")
	}
	eventually(t, "resume", func() bool { return resumed.Load() == 1 })
	if time.Since(start) < 20*time.Millisecond {
		t.Fatalf("resumed before the delay")
	}
	if c.Pending() {
		t.Fatalf("still pending after firing")
	}
}

func TestContinuous_RechecksBeforeResuming(t *testing.T) {
	var open atomic.Bool
	open.Store(true)
	var resumed atomic.Int32
	c := NewContinuous(true, 10*time.Millisecond, open.Load, func() { resumed.Add(1) })

	c.Schedule()
	open.Store(false) // session closed during the delay
	time.Sleep(40 * time.Millisecond)
	if resumed.Load() != 0 {
		t.Fatalf("resumed a closed session")
	}
}

func TestContinuous_CancelAndReplace(t *testing.T) {
	var resumed atomic.Int32
	c := NewContinuous(true, 15*time.Millisecond, func() bool { return true }, func() { resumed.Add(1) })

	c.Schedule()
	c.Cancel()
	time.Sleep(40 * time.Millisecond)
	if resumed.Load() != 0 {
		t.Fatalf("cancelled schedule fired")
	}

	c.Schedule()
	c.Schedule()
	time.Sleep(50 * time.Millisecond)
	if got := resumed.Load(); got != 1 {
		t.Fatalf("resumed %d times, want 1", got)
	}
}

func TestContinuous_Disabled(t *testing.T) {
	c := NewContinuous(false, time.Millisecond, func() bool { return true }, func() { t.Errorf("must not resume") })
	if c.Schedule() {
		t.Fatalf("disabled controller armed a resume")
	}
	time.Sleep(10 * time.Millisecond)
}
