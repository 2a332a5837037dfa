package bandwidth

import (
	"sync"
	"testing"
	"time"
)

func newFakeClock(start time.Time) (*time.Time, func() time.Time) {
	current := start
	return &current, func() time.Time { return current }
}

func TestRateOverWindow(t *testing.T) {
	tracker := NewWithWindow(10 * time.Second)
	clock, now := newFakeClock(time.Unix(1000, 0))
	tracker.now = now

	tracker.Add(1024)
	*clock = clock.Add(2 * time.Second)
	tracker.Add(1024)
	*clock = clock.Add(2 * time.Second)

	// 2048 bytes over 4 seconds elapsed since the first sample.
	rate := tracker.Rate()
	if rate < 511 || rate > 513 {
		t.Fatalf("rate = %f, want ~512", rate)
	}
}

func TestOldSamplesFallOutOfWindow(t *testing.T) {
	tracker := NewWithWindow(10 * time.Second)
	clock, now := newFakeClock(time.Unix(1000, 0))
	tracker.now = now

	tracker.Add(1 << 20)
	*clock = clock.Add(11 * time.Second)

	if rate := tracker.Rate(); rate != 0 {
		t.Fatalf("rate = %f after window expiry, want 0", rate)
	}
	if tracker.TotalBytes() != 1<<20 {
		t.Fatalf("total bytes should survive pruning, got %d", tracker.TotalBytes())
	}
}

func TestPeakIsMonotonic(t *testing.T) {
	tracker := NewWithWindow(10 * time.Second)
	clock, now := newFakeClock(time.Unix(1000, 0))
	tracker.now = now

	tracker.Add(4096)
	*clock = clock.Add(time.Second)
	tracker.Add(4096)
	peak := tracker.Peak()
	if peak <= 0 {
		t.Fatalf("peak = %f, want > 0", peak)
	}

	// Rate decays but peak holds.
	*clock = clock.Add(9 * time.Second)
	tracker.Add(1)
	if tracker.Peak() < peak {
		t.Fatalf("peak regressed: %f -> %f", peak, tracker.Peak())
	}
}

func TestResetClearsState(t *testing.T) {
	tracker := New()
	tracker.Add(1024)
	tracker.Reset()
	if tracker.TotalBytes() != 0 || tracker.Peak() != 0 || tracker.Rate() != 0 {
		t.Fatal("reset did not clear tracker state")
	}
}

func TestConcurrentAdds(t *testing.T) {
	tracker := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tracker.Add(10)
			}
		}()
	}
	wg.Wait()
	if tracker.TotalBytes() != 8000 {
		t.Fatalf("total = %d, want 8000", tracker.TotalBytes())
	}
}
