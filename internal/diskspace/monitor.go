package diskspace

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"picdrop/internal/events"
	"picdrop/internal/logging"
)

// Monitor periodically samples free space and exposes admission predicates.
// Mutable fields are written only by the poller but read from arbitrary
// worker goroutines, so all access goes through the mutex.
type Monitor struct {
	logger *slog.Logger
	bus    *events.Bus

	// Injectable for tests; default to the platform probes.
	probe      func(path string) (uint64, error)
	samePool   func(a, b string) (bool, error)

	mu         sync.Mutex
	dataDir    string
	tempDir    string
	thresholds Thresholds
	tier       Tier
	interval   time.Duration
	dataFree   uint64
	tempFree   uint64
	polled     bool
}

// NewMonitor constructs a monitor for the given paths and thresholds. The
// tier starts at ok and corrects itself on the first poll.
func NewMonitor(dataDir, tempDir string, thresholds Thresholds, bus *events.Bus, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Monitor{
		logger:     logging.NewComponentLogger(logger, "diskspace"),
		bus:        bus,
		probe:      freeBytes,
		samePool:   sameDevice,
		dataDir:    dataDir,
		tempDir:    tempDir,
		thresholds: thresholds,
		tier:       TierOK,
		interval:   2 * time.Second,
	}
}

// Run polls until ctx is cancelled, rescheduling itself at the adaptive
// interval computed from the last sample.
func (m *Monitor) Run(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			m.Poll()
			timer.Reset(m.Interval())
		}
	}
}

// Poll samples free space once and applies tier and interval changes. A
// failed read logs and keeps the previous state: transient I/O errors must
// not themselves trigger emergency action.
func (m *Monitor) Poll() {
	m.mu.Lock()
	dataDir := m.dataDir
	tempDir := m.tempDir
	thresholds := m.thresholds
	previousTier := m.tier
	m.mu.Unlock()

	dataFree, err := m.probe(dataDir)
	if err != nil {
		m.logger.Warn("free space read failed, keeping previous tier", logging.Error(err))
		return
	}

	tempFree := dataFree
	shared := tempDir == "" || tempDir == dataDir
	if !shared {
		if same, err := m.samePool(dataDir, tempDir); err == nil && same {
			shared = true
		}
	}
	if !shared {
		tempFree, err = m.probe(tempDir)
		if err != nil {
			m.logger.Warn("temp free space read failed, keeping previous tier", logging.Error(err))
			return
		}
	}

	minFree := dataFree
	if tempFree < minFree {
		minFree = tempFree
	}
	newTier := tierFor(minFree, thresholds)
	newInterval := intervalFor(minFree, thresholds)

	m.mu.Lock()
	m.dataFree = dataFree
	m.tempFree = tempFree
	m.tier = newTier
	m.interval = newInterval
	m.polled = true
	m.mu.Unlock()

	m.bus.Publish(events.Event{
		Kind:     events.KindSpaceUpdated,
		DataFree: dataFree,
		TempFree: tempFree,
		Tier:     string(newTier),
	})

	if newTier != previousTier {
		m.logger.Info("disk pressure tier changed",
			logging.String(logging.FieldTier, string(newTier)),
			logging.Uint64("data_free", dataFree),
			logging.Uint64("temp_free", tempFree))
		m.bus.Publish(events.Event{
			Kind:     events.KindTierChanged,
			DataFree: dataFree,
			TempFree: tempFree,
			Tier:     string(newTier),
		})
		if newTier == TierEmergency {
			freed, err := m.RequestEmergencySpace()
			if err != nil {
				m.logger.Error("emergency reserve deletion failed", logging.Error(err))
			} else if freed > 0 {
				m.logger.Warn("deleted reserve file to free emergency slack",
					logging.Uint64("bytes_freed", freed))
			}
		}
	}
}

// Sample reads free space for both paths once and classifies it, with no
// side effects: no events, no reserve deletion, no monitor state. Read-only
// callers (the CLI status view) use this instead of Poll.
func Sample(dataDir, tempDir string, thresholds Thresholds) (dataFree, tempFree uint64, tier Tier, err error) {
	dataFree, err = freeBytes(dataDir)
	if err != nil {
		return 0, 0, "", err
	}
	tempFree = dataFree
	shared := tempDir == "" || tempDir == dataDir
	if !shared {
		if same, sameErr := sameDevice(dataDir, tempDir); sameErr == nil && same {
			shared = true
		}
	}
	if !shared {
		tempFree, err = freeBytes(tempDir)
		if err != nil {
			return 0, 0, "", err
		}
	}
	minFree := dataFree
	if tempFree < minFree {
		minFree = tempFree
	}
	return dataFree, tempFree, tierFor(minFree, thresholds), nil
}

// Tier returns the most recently computed pressure tier.
func (m *Monitor) Tier() Tier {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tier
}

// Interval returns the current adaptive poll interval.
func (m *Monitor) Interval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interval
}

// CanStartUpload reports whether the tier admits new uploads.
func (m *Monitor) CanStartUpload() bool {
	return m.Tier().Allows()
}

// CanCreateArchive reports whether a temp file of the estimated size would
// still leave the critical threshold untouched.
func (m *Monitor) CanCreateArchive(estimatedBytes uint64) bool {
	m.mu.Lock()
	tempDir := m.tempDir
	dataDir := m.dataDir
	thresholds := m.thresholds
	cachedTempFree := m.tempFree
	polled := m.polled
	m.mu.Unlock()

	probePath := tempDir
	if probePath == "" {
		probePath = dataDir
	}
	tempFree, err := m.probe(probePath)
	if err != nil {
		if !polled {
			return false
		}
		tempFree = cachedTempFree
	}
	return tempFree > estimatedBytes+thresholds.Critical
}

// RequestEmergencySpace deletes the reserve file and returns the bytes
// freed. Safe to call concurrently with the poller; only the first deletion
// reports a nonzero size.
func (m *Monitor) RequestEmergencySpace() (uint64, error) {
	m.mu.Lock()
	dataDir := m.dataDir
	m.mu.Unlock()
	return removeReserve(dataDir)
}

// UpdateThresholds applies new thresholds, effective on the next poll.
func (m *Monitor) UpdateThresholds(thresholds Thresholds) {
	m.mu.Lock()
	m.thresholds = thresholds
	m.mu.Unlock()
	m.logger.Info("disk thresholds updated",
		logging.Uint64("warning", thresholds.Warning),
		logging.Uint64("critical", thresholds.Critical),
		logging.Uint64("emergency", thresholds.Emergency))
}

// UpdatePaths points the monitor at new directories, effective on the next
// poll.
func (m *Monitor) UpdatePaths(dataDir, tempDir string) {
	m.mu.Lock()
	m.dataDir = dataDir
	m.tempDir = tempDir
	m.mu.Unlock()
}

// FreeSpace returns the last sampled free bytes for the data and temp paths.
func (m *Monitor) FreeSpace() (dataFree, tempFree uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dataFree, m.tempFree
}
