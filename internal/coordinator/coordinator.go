package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"picdrop/internal/logging"
)

// ErrAcquireTimeout is returned when no slot frees up within the caller's
// timeout. Callers are expected to requeue the work rather than fail it.
var ErrAcquireTimeout = errors.New("timed out waiting for an upload slot")

// DefaultAcquireTimeout bounds AcquireSlot when the caller passes a
// non-positive timeout.
const DefaultAcquireTimeout = 30 * time.Second

// Upload identifies one in-flight transfer.
type Upload struct {
	GalleryID string
	Host      string
}

// Statistics is a point-in-time snapshot of coordinator state.
type Statistics struct {
	GlobalLimit    int
	PerHostLimit   int
	ActiveUploads  int
	ActiveByHost   map[string]int
	TotalStarted   uint64
	TotalCompleted uint64
	TotalFailed    uint64
}

// Coordinator admits uploads against a global concurrency limit and a lazy
// per-host limit. The global semaphore is always acquired before the host
// semaphore so a saturated host cannot starve admission bookkeeping.
type Coordinator struct {
	logger *slog.Logger

	globalMu    sync.Mutex
	global      *semaphore
	globalLimit int

	hostMu       sync.Mutex
	hostSems     map[string]*semaphore
	perHostLimit int

	activeMu sync.Mutex
	active   map[Upload]struct{}

	statsMu        sync.Mutex
	totalStarted   uint64
	totalCompleted uint64
	totalFailed    uint64
}

// New constructs a coordinator with the given limits. Limits below one are
// clamped to one.
func New(globalLimit, perHostLimit int, logger *slog.Logger) *Coordinator {
	if globalLimit < 1 {
		globalLimit = 1
	}
	if perHostLimit < 1 {
		perHostLimit = 1
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Coordinator{
		logger:       logging.NewComponentLogger(logger, "coordinator"),
		global:       newSemaphore(globalLimit),
		globalLimit:  globalLimit,
		hostSems:     make(map[string]*semaphore),
		perHostLimit: perHostLimit,
		active:       make(map[Upload]struct{}),
	}
}

// Slot is a held admission. Release returns both permits and is safe to call
// more than once.
type Slot struct {
	coord   *Coordinator
	upload  Upload
	hostSem *semaphore
	once    sync.Once
}

// Upload reports which transfer this slot admits.
func (s *Slot) Upload() Upload { return s.upload }

// Release returns the slot's permits. The global permit is credited to the
// coordinator's current global semaphore, which may differ from the one the
// slot was acquired from if limits changed while the upload ran.
func (s *Slot) Release() {
	s.once.Do(func() {
		c := s.coord

		c.activeMu.Lock()
		delete(c.active, s.upload)
		c.activeMu.Unlock()

		s.hostSem.release()
		c.currentGlobal().release()

		c.logger.Debug("slot released",
			logging.String(logging.FieldGallery, s.upload.GalleryID),
			logging.String(logging.FieldHost, s.upload.Host))
	})
}

// AcquireSlot blocks until both a global and a per-host permit are available,
// then registers the upload as active. On timeout or cancellation no permit
// stays held and no active entry is recorded.
func (c *Coordinator) AcquireSlot(ctx context.Context, galleryID, host string, timeout time.Duration) (*Slot, error) {
	if host == "" {
		return nil, fmt.Errorf("acquire slot: host must not be empty")
	}
	if timeout <= 0 {
		timeout = DefaultAcquireTimeout
	}
	deadline := time.Now().Add(timeout)

	if err := c.currentGlobal().acquire(ctx, deadline); err != nil {
		return nil, fmt.Errorf("acquire global slot for %s: %w", host, err)
	}

	hostSem := c.hostSemaphore(host)
	if err := hostSem.acquire(ctx, deadline); err != nil {
		// Roll back the global permit so the failed attempt leaves no trace.
		c.currentGlobal().release()
		return nil, fmt.Errorf("acquire %s slot: %w", host, err)
	}

	upload := Upload{GalleryID: galleryID, Host: host}
	c.activeMu.Lock()
	c.active[upload] = struct{}{}
	c.activeMu.Unlock()

	c.statsMu.Lock()
	c.totalStarted++
	c.statsMu.Unlock()

	c.logger.Debug("slot acquired",
		logging.String(logging.FieldGallery, galleryID),
		logging.String(logging.FieldHost, host))

	return &Slot{coord: c, upload: upload, hostSem: hostSem}, nil
}

// CanStartUpload reports whether an acquire for host would currently succeed
// without blocking. Purely advisory; the answer may be stale by the time the
// caller acts on it.
func (c *Coordinator) CanStartUpload(host string) bool {
	return c.AvailableSlots(host) > 0
}

// AvailableSlots returns how many more uploads to host could be admitted
// right now.
func (c *Coordinator) AvailableSlots(host string) int {
	globalFree := c.currentGlobal().available()

	c.hostMu.Lock()
	sem, ok := c.hostSems[host]
	limit := c.perHostLimit
	c.hostMu.Unlock()

	hostFree := limit
	if ok {
		hostFree = sem.available()
	}
	if hostFree < globalFree {
		return hostFree
	}
	return globalFree
}

// IsUploadActive reports whether the given gallery/host pair holds a slot.
func (c *Coordinator) IsUploadActive(galleryID, host string) bool {
	c.activeMu.Lock()
	defer c.activeMu.Unlock()
	_, ok := c.active[Upload{GalleryID: galleryID, Host: host}]
	return ok
}

// ActiveUploadCount returns the number of transfers currently holding slots.
func (c *Coordinator) ActiveUploadCount() int {
	c.activeMu.Lock()
	defer c.activeMu.Unlock()
	return len(c.active)
}

// ActiveUploads returns a snapshot of the transfers currently holding slots.
func (c *Coordinator) ActiveUploads() []Upload {
	c.activeMu.Lock()
	defer c.activeMu.Unlock()
	uploads := make([]Upload, 0, len(c.active))
	for u := range c.active {
		uploads = append(uploads, u)
	}
	return uploads
}

// RecordCompletion counts a finished transfer in the statistics.
func (c *Coordinator) RecordCompletion(success bool) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	if success {
		c.totalCompleted++
	} else {
		c.totalFailed++
	}
}

// Statistics returns a snapshot of limits, active transfers, and counters.
func (c *Coordinator) Statistics() Statistics {
	c.globalMu.Lock()
	globalLimit := c.globalLimit
	c.globalMu.Unlock()

	c.hostMu.Lock()
	perHostLimit := c.perHostLimit
	c.hostMu.Unlock()

	byHost := make(map[string]int)
	c.activeMu.Lock()
	activeCount := len(c.active)
	for u := range c.active {
		byHost[u.Host]++
	}
	c.activeMu.Unlock()

	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return Statistics{
		GlobalLimit:    globalLimit,
		PerHostLimit:   perHostLimit,
		ActiveUploads:  activeCount,
		ActiveByHost:   byHost,
		TotalStarted:   c.totalStarted,
		TotalCompleted: c.totalCompleted,
		TotalFailed:    c.totalFailed,
	}
}

// UpdateLimits applies new concurrency limits. A value below one leaves the
// corresponding limit unchanged. In-flight uploads are never interrupted: the
// global semaphore is replaced with one whose permit count is the new limit
// minus the currently active count. After a limit cut that count is negative,
// so holder releases pay down the deficit before any new arrival is admitted
// and capacity nets out to exactly the new limit. Per-host semaphores already
// created keep their size; the new per-host limit applies to hosts seen
// afterwards.
func (c *Coordinator) UpdateLimits(globalLimit, perHostLimit int) {
	if globalLimit >= 1 {
		c.activeMu.Lock()
		activeCount := len(c.active)
		c.activeMu.Unlock()

		free := globalLimit - activeCount

		c.globalMu.Lock()
		c.globalLimit = globalLimit
		c.global = newSemaphore(free)
		c.globalMu.Unlock()

		c.logger.Info("global limit updated",
			logging.Int("limit", globalLimit),
			logging.Int("active", activeCount),
			logging.Int("free", free))
	}
	if perHostLimit >= 1 {
		c.hostMu.Lock()
		c.perHostLimit = perHostLimit
		c.hostMu.Unlock()
		c.logger.Info("per-host limit updated", logging.Int("limit", perHostLimit))
	}
}

func (c *Coordinator) currentGlobal() *semaphore {
	c.globalMu.Lock()
	defer c.globalMu.Unlock()
	return c.global
}

// hostSemaphore returns the semaphore for host, creating it on first use
// with the per-host limit in effect at creation time.
func (c *Coordinator) hostSemaphore(host string) *semaphore {
	c.hostMu.Lock()
	defer c.hostMu.Unlock()
	sem, ok := c.hostSems[host]
	if !ok {
		sem = newSemaphore(c.perHostLimit)
		c.hostSems[host] = sem
	}
	return sem
}
