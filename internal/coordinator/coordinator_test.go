package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestCoordinator(globalLimit, perHostLimit int) *Coordinator {
	return New(globalLimit, perHostLimit, nil)
}

func mustAcquire(t *testing.T, c *Coordinator, gallery, host string) *Slot {
	t.Helper()
	slot, err := c.AcquireSlot(context.Background(), gallery, host, time.Second)
	if err != nil {
		t.Fatalf("AcquireSlot(%s, %s): %v", gallery, host, err)
	}
	return slot
}

func TestGlobalLimitBlocksExcessUploads(t *testing.T) {
	c := newTestCoordinator(2, 2)

	a := mustAcquire(t, c, "g1", "imx")
	b := mustAcquire(t, c, "g2", "imx")

	_, err := c.AcquireSlot(context.Background(), "g3", "imx", 50*time.Millisecond)
	if !errors.Is(err, ErrAcquireTimeout) {
		t.Fatalf("third acquire error = %v, want ErrAcquireTimeout", err)
	}
	if got := c.ActiveUploadCount(); got != 2 {
		t.Fatalf("active count = %d after failed acquire, want 2", got)
	}

	a.Release()
	slot := mustAcquire(t, c, "g3", "imx")
	slot.Release()
	b.Release()
}

func TestPerHostLimitIsIndependentOfOtherHosts(t *testing.T) {
	c := newTestCoordinator(4, 1)

	a := mustAcquire(t, c, "g1", "imx")
	defer a.Release()

	// Same host is full, a different host is not.
	if c.CanStartUpload("imx") {
		t.Fatal("imx should be saturated at per-host limit 1")
	}
	b := mustAcquire(t, c, "g2", "pixhost")
	defer b.Release()

	_, err := c.AcquireSlot(context.Background(), "g3", "imx", 50*time.Millisecond)
	if !errors.Is(err, ErrAcquireTimeout) {
		t.Fatalf("saturated host acquire error = %v, want ErrAcquireTimeout", err)
	}
}

func TestTimedOutHostAcquireReturnsGlobalPermit(t *testing.T) {
	c := newTestCoordinator(2, 1)

	a := mustAcquire(t, c, "g1", "imx")
	defer a.Release()

	// imx is full but a global permit is free; the failed host acquire must
	// hand the global permit back.
	_, err := c.AcquireSlot(context.Background(), "g2", "imx", 50*time.Millisecond)
	if !errors.Is(err, ErrAcquireTimeout) {
		t.Fatalf("acquire error = %v, want ErrAcquireTimeout", err)
	}
	if got := c.AvailableSlots("pixhost"); got != 1 {
		t.Fatalf("available slots for pixhost = %d, want 1", got)
	}
	b := mustAcquire(t, c, "g2", "pixhost")
	b.Release()
}

func TestReleaseIsIdempotent(t *testing.T) {
	c := newTestCoordinator(1, 1)

	slot := mustAcquire(t, c, "g1", "imx")
	slot.Release()
	slot.Release()

	if got := c.AvailableSlots("imx"); got != 1 {
		t.Fatalf("available slots = %d after double release, want 1", got)
	}
}

func TestSlotAlwaysReleasedOnPanicPath(t *testing.T) {
	c := newTestCoordinator(1, 1)

	func() {
		slot := mustAcquire(t, c, "g1", "imx")
		defer slot.Release()
		defer func() { recover() }()
		panic("upload blew up")
	}()

	if got := c.ActiveUploadCount(); got != 0 {
		t.Fatalf("active count = %d after panic, want 0", got)
	}
	slot := mustAcquire(t, c, "g2", "imx")
	slot.Release()
}

func TestLowerGlobalLimitKeepsHoldersAndGatesArrivals(t *testing.T) {
	c := newTestCoordinator(3, 3)

	a := mustAcquire(t, c, "g1", "imx")
	b := mustAcquire(t, c, "g2", "imx")

	c.UpdateLimits(1, 0)

	// Both holders keep their slots under the lowered limit; new arrivals
	// wait until the active count drains below the new limit.
	if got := c.ActiveUploadCount(); got != 2 {
		t.Fatalf("active count = %d after lowering limit, want 2", got)
	}
	_, err := c.AcquireSlot(context.Background(), "g3", "imx", 50*time.Millisecond)
	if !errors.Is(err, ErrAcquireTimeout) {
		t.Fatalf("acquire error = %v, want ErrAcquireTimeout", err)
	}

	// One release leaves one holder, which fills the new limit of 1.
	a.Release()
	_, err = c.AcquireSlot(context.Background(), "g3", "imx", 50*time.Millisecond)
	if !errors.Is(err, ErrAcquireTimeout) {
		t.Fatalf("acquire at full new limit error = %v, want ErrAcquireTimeout", err)
	}

	b.Release()
	slot := mustAcquire(t, c, "g3", "imx")
	slot.Release()
}

func TestDrainAfterLimitCutRestoresExactlyNewCapacity(t *testing.T) {
	c := newTestCoordinator(3, 3)

	held := []*Slot{
		mustAcquire(t, c, "g1", "imx"),
		mustAcquire(t, c, "g2", "imx"),
		mustAcquire(t, c, "g3", "imx"),
	}

	c.UpdateLimits(1, 0)
	for _, slot := range held {
		slot.Release()
	}

	// The three releases pay down the deficit of two and leave exactly one
	// permit: a single new upload is admitted, a second is not.
	if got := c.AvailableSlots("imx"); got != 1 {
		t.Fatalf("available slots after drain = %d, want 1", got)
	}
	slot := mustAcquire(t, c, "g4", "imx")
	_, err := c.AcquireSlot(context.Background(), "g5", "imx", 50*time.Millisecond)
	if !errors.Is(err, ErrAcquireTimeout) {
		t.Fatalf("second acquire error = %v, want ErrAcquireTimeout", err)
	}
	if got := c.ActiveUploadCount(); got != 1 {
		t.Fatalf("active count = %d with global limit 1, want 1", got)
	}
	slot.Release()
}

func TestRaiseGlobalLimitAdmitsImmediately(t *testing.T) {
	c := newTestCoordinator(1, 4)

	a := mustAcquire(t, c, "g1", "imx")
	defer a.Release()

	c.UpdateLimits(3, 0)

	b := mustAcquire(t, c, "g2", "imx")
	defer b.Release()
	d := mustAcquire(t, c, "g3", "imx")
	defer d.Release()

	if got := c.ActiveUploadCount(); got != 3 {
		t.Fatalf("active count = %d, want 3", got)
	}
}

func TestAcquireHonorsContextCancellation(t *testing.T) {
	c := newTestCoordinator(1, 1)

	slot := mustAcquire(t, c, "g1", "imx")
	defer slot.Release()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.AcquireSlot(ctx, "g2", "imx", time.Minute)
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("acquire error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled acquire never returned")
	}
}

func TestStatisticsTrackCounters(t *testing.T) {
	c := newTestCoordinator(4, 4)

	a := mustAcquire(t, c, "g1", "imx")
	b := mustAcquire(t, c, "g2", "pixhost")

	if !c.IsUploadActive("g1", "imx") {
		t.Fatal("g1/imx should be active")
	}

	a.Release()
	c.RecordCompletion(true)
	b.Release()
	c.RecordCompletion(false)

	stats := c.Statistics()
	if stats.TotalStarted != 2 {
		t.Fatalf("started = %d, want 2", stats.TotalStarted)
	}
	if stats.TotalCompleted != 1 || stats.TotalFailed != 1 {
		t.Fatalf("completed/failed = %d/%d, want 1/1", stats.TotalCompleted, stats.TotalFailed)
	}
	if stats.ActiveUploads != 0 {
		t.Fatalf("active = %d, want 0", stats.ActiveUploads)
	}
}

func TestConcurrentAcquireReleaseNeverExceedsLimit(t *testing.T) {
	const limit = 3
	c := newTestCoordinator(limit, limit)

	var (
		mu      sync.Mutex
		current int
		high    int
	)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			slot, err := c.AcquireSlot(context.Background(), "g", "imx", 5*time.Second)
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			mu.Lock()
			current++
			if current > high {
				high = current
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			current--
			mu.Unlock()
			slot.Release()
		}()
	}
	wg.Wait()

	if high > limit {
		t.Fatalf("observed %d concurrent holders, limit is %d", high, limit)
	}
}
