package diskspace

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"picdrop/internal/events"
)

func testThresholds() Thresholds {
	return ThresholdsFromMB(2048, 512, 100)
}

const mb = 1024 * 1024

func newTestMonitor(t *testing.T, free *uint64) (*Monitor, string) {
	t.Helper()
	dataDir := t.TempDir()
	m := NewMonitor(dataDir, dataDir, testThresholds(), events.NewBus(), nil)
	m.probe = func(string) (uint64, error) { return *free, nil }
	m.samePool = func(string, string) (bool, error) { return true, nil }
	return m, dataDir
}

func TestTierIsMonotonicAsSpaceShrinks(t *testing.T) {
	th := testThresholds()
	frees := []uint64{5000 * mb, 2100 * mb, 1500 * mb, 600 * mb, 300 * mb, 120 * mb, 50 * mb, 0}
	rank := map[Tier]int{TierOK: 0, TierWarning: 1, TierCritical: 2, TierEmergency: 3}

	previous := TierOK
	for _, free := range frees {
		tier := tierFor(free, th)
		if rank[tier] < rank[previous] {
			t.Fatalf("tier moved toward ok as space shrank: %s -> %s at %d bytes", previous, tier, free)
		}
		previous = tier
	}
}

func TestIntervalNeverGrowsAsSpaceShrinks(t *testing.T) {
	th := testThresholds()
	frees := []uint64{5000 * mb, 4097 * mb, 2100 * mb, 1500 * mb, 600 * mb, 300 * mb, 50 * mb}

	previous := time.Duration(1<<63 - 1)
	for _, free := range frees {
		interval := intervalFor(free, th)
		if interval > previous {
			t.Fatalf("interval grew as space shrank: %v -> %v at %d bytes", previous, interval, free)
		}
		previous = interval
	}
}

func TestIntervalBands(t *testing.T) {
	th := testThresholds()
	cases := []struct {
		free uint64
		want time.Duration
	}{
		{5000 * mb, 60 * time.Second},
		{3000 * mb, 15 * time.Second},
		{1500 * mb, 5 * time.Second},
		{300 * mb, 2 * time.Second},
		{50 * mb, 2 * time.Second},
	}
	for _, tc := range cases {
		if got := intervalFor(tc.free, th); got != tc.want {
			t.Errorf("intervalFor(%d MB) = %v, want %v", tc.free/mb, got, tc.want)
		}
	}
}

func TestPollSequenceDeletesReserveExactlyAtEmergency(t *testing.T) {
	free := uint64(5000 * mb)
	m, dataDir := newTestMonitor(t, &free)
	if err := EnsureReserve(dataDir); err != nil {
		t.Fatalf("EnsureReserve: %v", err)
	}
	reserve := filepath.Join(dataDir, ReserveFileName)

	steps := []struct {
		freeMB       uint64
		wantTier     Tier
		wantReserved bool
	}{
		{5000, TierOK, true},
		{1500, TierWarning, true},
		{300, TierCritical, true},
		{50, TierEmergency, false},
	}
	for _, step := range steps {
		free = step.freeMB * mb
		m.Poll()
		if got := m.Tier(); got != step.wantTier {
			t.Fatalf("tier at %d MB = %s, want %s", step.freeMB, got, step.wantTier)
		}
		_, err := os.Stat(reserve)
		exists := err == nil
		if exists != step.wantReserved {
			t.Fatalf("reserve existence at %d MB = %v, want %v", step.freeMB, exists, step.wantReserved)
		}
	}
}

func TestTierChangeEventsPublished(t *testing.T) {
	free := uint64(5000 * mb)
	dataDir := t.TempDir()
	bus := events.NewBus()
	var tiers []string
	bus.Subscribe(func(e events.Event) {
		if e.Kind == events.KindTierChanged {
			tiers = append(tiers, e.Tier)
		}
	})

	m := NewMonitor(dataDir, dataDir, testThresholds(), bus, nil)
	m.probe = func(string) (uint64, error) { return free, nil }

	m.Poll() // ok, no change from initial tier
	free = 300 * mb
	m.Poll() // critical
	m.Poll() // still critical, no event

	if len(tiers) != 1 || tiers[0] != "critical" {
		t.Fatalf("tier change events = %v, want [critical]", tiers)
	}
}

func TestRequestEmergencySpaceIsIdempotent(t *testing.T) {
	free := uint64(5000 * mb)
	m, dataDir := newTestMonitor(t, &free)
	if err := EnsureReserve(dataDir); err != nil {
		t.Fatalf("EnsureReserve: %v", err)
	}

	freed, err := m.RequestEmergencySpace()
	if err != nil {
		t.Fatalf("first RequestEmergencySpace: %v", err)
	}
	if freed != ReserveSize {
		t.Fatalf("first deletion freed %d bytes, want %d", freed, ReserveSize)
	}

	freed, err = m.RequestEmergencySpace()
	if err != nil {
		t.Fatalf("second RequestEmergencySpace: %v", err)
	}
	if freed != 0 {
		t.Fatalf("second deletion freed %d bytes, want 0", freed)
	}

	if _, err := os.Stat(filepath.Join(dataDir, ReserveFileName)); err == nil {
		t.Fatal("reserve file silently reappeared")
	}
}

func TestFailedProbeKeepsPreviousState(t *testing.T) {
	free := uint64(300 * mb)
	m, _ := newTestMonitor(t, &free)
	m.Poll()
	if m.Tier() != TierCritical {
		t.Fatalf("tier = %s, want critical", m.Tier())
	}
	interval := m.Interval()

	m.probe = func(string) (uint64, error) { return 0, os.ErrPermission }
	m.Poll()

	if m.Tier() != TierCritical {
		t.Fatalf("tier changed on failed probe: %s", m.Tier())
	}
	if m.Interval() != interval {
		t.Fatalf("interval changed on failed probe: %v", m.Interval())
	}
}

func TestCanStartUploadPerTier(t *testing.T) {
	free := uint64(5000 * mb)
	m, _ := newTestMonitor(t, &free)

	cases := []struct {
		freeMB uint64
		want   bool
	}{
		{5000, true},
		{1500, true},
		{300, false},
		{50, false},
	}
	for _, tc := range cases {
		free = tc.freeMB * mb
		m.Poll()
		if got := m.CanStartUpload(); got != tc.want {
			t.Errorf("CanStartUpload at %d MB = %v, want %v", tc.freeMB, got, tc.want)
		}
	}
}

func TestCanCreateArchiveKeepsSafetyMargin(t *testing.T) {
	free := uint64(1000 * mb)
	m, _ := newTestMonitor(t, &free)
	m.Poll()

	// critical is 512 MB: a 400 MB archive leaves 600 MB > critical, a
	// 600 MB archive would dip below it.
	if !m.CanCreateArchive(400 * mb) {
		t.Fatal("400 MB archive should be admitted with 1000 MB free")
	}
	if m.CanCreateArchive(600 * mb) {
		t.Fatal("600 MB archive should be refused with 1000 MB free")
	}
}

func TestUpdateThresholdsTakesEffectNextPoll(t *testing.T) {
	free := uint64(1500 * mb)
	m, _ := newTestMonitor(t, &free)
	m.Poll()
	if m.Tier() != TierWarning {
		t.Fatalf("tier = %s, want warning", m.Tier())
	}

	m.UpdateThresholds(ThresholdsFromMB(1024, 256, 50))
	m.Poll()
	if m.Tier() != TierOK {
		t.Fatalf("tier after threshold update = %s, want ok", m.Tier())
	}
}

func TestSampleIsSideEffectFree(t *testing.T) {
	dataDir := t.TempDir()
	if err := EnsureReserve(dataDir); err != nil {
		t.Fatalf("EnsureReserve: %v", err)
	}

	// Thresholds far above any real filesystem's free space force the
	// emergency classification; Sample must still not touch the reserve.
	huge := ThresholdsFromMB(1<<30, 1<<29, 1<<28)
	_, _, tier, err := Sample(dataDir, "", huge)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if tier != TierEmergency {
		t.Fatalf("tier = %s, want emergency under absurd thresholds", tier)
	}
	if _, err := os.Stat(filepath.Join(dataDir, ReserveFileName)); err != nil {
		t.Fatalf("reserve file touched by Sample: %v", err)
	}

	dataFree, tempFree, tier, err := Sample(dataDir, "", ThresholdsFromMB(2, 1, 0))
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if dataFree == 0 || tempFree != dataFree {
		t.Fatalf("free = %d/%d, want equal nonzero values for a shared pool", dataFree, tempFree)
	}
	if tier != TierOK {
		t.Fatalf("tier = %s, want ok", tier)
	}
}
