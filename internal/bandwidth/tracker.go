// Package bandwidth estimates the current transfer rate from a sliding
// window of byte-count samples reported by in-flight uploads.
package bandwidth

import (
	"sync"
	"time"
)

// DefaultWindow is the sample retention horizon used by New.
const DefaultWindow = 10 * time.Second

type sample struct {
	at    time.Time
	bytes int64
}

// Tracker accumulates (timestamp, bytes) samples and reports the mean rate
// over the retained window. Safe for concurrent use from multiple workers.
type Tracker struct {
	mu      sync.Mutex
	window  time.Duration
	samples []sample
	total   int64
	peak    float64
	now     func() time.Time
}

// New constructs a tracker with the default 10 second window.
func New() *Tracker {
	return NewWithWindow(DefaultWindow)
}

// NewWithWindow constructs a tracker retaining samples for the given window.
func NewWithWindow(window time.Duration) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Tracker{window: window, now: time.Now}
}

// Add records bytes transferred at the current time.
func (t *Tracker) Add(bytes int64) {
	if bytes <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.samples = append(t.samples, sample{at: now, bytes: bytes})
	t.total += bytes
	t.prune(now)

	if rate := t.rateLocked(now); rate > t.peak {
		t.peak = rate
	}
}

// Rate returns the current transfer rate in bytes per second, computed as
// bytes-in-window over elapsed window time.
func (t *Tracker) Rate() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.prune(now)
	return t.rateLocked(now)
}

// Peak returns the highest rate observed since construction or Reset.
func (t *Tracker) Peak() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peak
}

// TotalBytes returns the cumulative bytes recorded since construction or Reset.
func (t *Tracker) TotalBytes() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// Reset discards all samples and statistics.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.samples = nil
	t.total = 0
	t.peak = 0
}

func (t *Tracker) prune(now time.Time) {
	cutoff := now.Add(-t.window)
	drop := 0
	for drop < len(t.samples) && t.samples[drop].at.Before(cutoff) {
		drop++
	}
	if drop > 0 {
		t.samples = append(t.samples[:0], t.samples[drop:]...)
	}
}

func (t *Tracker) rateLocked(now time.Time) float64 {
	if len(t.samples) == 0 {
		return 0
	}
	var windowBytes int64
	for _, s := range t.samples {
		windowBytes += s.bytes
	}
	elapsed := now.Sub(t.samples[0].at)
	if elapsed <= 0 {
		// All samples landed in the same instant; treat the window as one
		// second so a burst still reports a finite rate.
		return float64(windowBytes)
	}
	return float64(windowBytes) / elapsed.Seconds()
}
