package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"picdrop/internal/logging"
)

// GalleryRenamer is implemented by hosts that can rename a gallery after
// creation. Finalizing a gallery's display name is best-effort; failures are
// retried by the idle sweep.
type GalleryRenamer interface {
	RenameGallery(ctx context.Context, galleryID, name string) error
}

// RenameSweeper retries gallery renames the host rejected at completion
// time. Workers drive it from idle maintenance so retries never compete
// with transfers.
type RenameSweeper struct {
	renamer  GalleryRenamer
	logger   *slog.Logger
	interval time.Duration

	mu      sync.Mutex
	pending map[string]string // gallery id -> desired name
	lastRun time.Time
}

// NewRenameSweeper builds a sweeper. A nil renamer disables it entirely.
func NewRenameSweeper(renamer GalleryRenamer, interval time.Duration, logger *slog.Logger) *RenameSweeper {
	if logger == nil {
		logger = logging.NewNop()
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &RenameSweeper{
		renamer:  renamer,
		logger:   logging.NewComponentLogger(logger, "rename-sweep"),
		interval: interval,
		pending:  make(map[string]string),
	}
}

// Finalize attempts the rename immediately and defers it for the sweep when
// the host refuses.
func (s *RenameSweeper) Finalize(ctx context.Context, galleryID, name string) {
	if s == nil || s.renamer == nil || galleryID == "" || name == "" {
		return
	}
	if err := s.renamer.RenameGallery(ctx, galleryID, name); err != nil {
		s.logger.Warn("gallery rename deferred",
			logging.String(logging.FieldGallery, galleryID),
			logging.Error(err))
		s.mu.Lock()
		s.pending[galleryID] = name
		s.mu.Unlock()
	}
}

// PendingCount returns how many renames await retry.
func (s *RenameSweeper) PendingCount() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// SweepDue retries all deferred renames when the sweep interval has elapsed
// since the last attempt. Called from worker idle time; cheap when nothing
// is pending.
func (s *RenameSweeper) SweepDue(ctx context.Context) {
	if s == nil || s.renamer == nil {
		return
	}
	s.mu.Lock()
	if len(s.pending) == 0 || time.Since(s.lastRun) < s.interval {
		s.mu.Unlock()
		return
	}
	s.lastRun = time.Now()
	batch := make(map[string]string, len(s.pending))
	for id, name := range s.pending {
		batch[id] = name
	}
	s.mu.Unlock()

	for id, name := range batch {
		if ctx.Err() != nil {
			return
		}
		if err := s.renamer.RenameGallery(ctx, id, name); err != nil {
			s.logger.Debug("gallery rename still failing",
				logging.String(logging.FieldGallery, id),
				logging.Error(err))
			continue
		}
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		s.logger.Info("deferred gallery rename applied",
			logging.String(logging.FieldGallery, id))
	}
}
