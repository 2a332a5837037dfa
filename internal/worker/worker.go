// Package worker implements the upload control loop: claim a queued
// gallery, pass the disk and concurrency gates, execute the transfer
// through the injected uploader, and classify the outcome. One worker
// handles one item at a time; parallelism comes from running several
// workers against the same coordinator.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"picdrop/internal/bandwidth"
	"picdrop/internal/config"
	"picdrop/internal/coordinator"
	"picdrop/internal/diskspace"
	"picdrop/internal/events"
	"picdrop/internal/hooks"
	"picdrop/internal/logging"
	"picdrop/internal/notifications"
	"picdrop/internal/queue"
	"picdrop/internal/uploader"
)

// Deps collects the collaborators shared by all workers in a pool.
type Deps struct {
	Config    func() *config.Config
	Manager   *queue.Manager
	Coord     *coordinator.Coordinator
	Disk      *diskspace.Monitor
	Bandwidth *bandwidth.Tracker
	Uploader  uploader.Uploader
	Bus       *events.Bus
	Notifier  notifications.Service
	Hooks     *hooks.Runner
	Sweeper   *RenameSweeper
	Logger    *slog.Logger

	// onOutcome and onQueueEmpty feed pool-level drain tracking; nil when a
	// worker runs standalone.
	onOutcome    func(success bool)
	onQueueEmpty func(ctx context.Context)
}

// Worker drains the queue until stopped.
type Worker struct {
	id     int
	deps   Deps
	logger *slog.Logger

	mu          sync.Mutex
	paused      bool
	stopCurrent bool
	stopping    bool
	current     *queue.Item

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a worker. Start must be called before the control surface
// has any effect.
func New(id int, deps Deps) *Worker {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	if deps.Notifier == nil {
		deps.Notifier = notifications.NewNop()
	}
	if deps.Bandwidth == nil {
		deps.Bandwidth = bandwidth.New()
	}
	return &Worker{
		id:   id,
		deps: deps,
		logger: logging.NewComponentLogger(logger, "worker").With(
			logging.Int(logging.FieldWorkerID, id)),
		done: make(chan struct{}),
	}
}

// Start launches the control loop on its own goroutine.
func (w *Worker) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	go w.run(runCtx)
}

// Stop requests shutdown, raises the per-item soft stop so an in-flight
// transfer unwinds promptly, and blocks until the loop has exited.
func (w *Worker) Stop() {
	w.mu.Lock()
	w.stopping = true
	w.stopCurrent = true
	w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
	}
	<-w.done
}

// Pause idles the loop after the current item finishes.
func (w *Worker) Pause() {
	w.mu.Lock()
	w.paused = true
	w.mu.Unlock()
}

// Resume lifts a pause.
func (w *Worker) Resume() {
	w.mu.Lock()
	w.paused = false
	w.mu.Unlock()
}

// StopCurrent raises the cooperative soft-stop flag for the in-flight item.
// The transfer observes it between images; nothing is killed.
func (w *Worker) StopCurrent() {
	w.mu.Lock()
	w.stopCurrent = true
	w.mu.Unlock()
}

// Current returns the item being uploaded, or nil when idle.
func (w *Worker) Current() *queue.Item {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

func (w *Worker) isPaused() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.paused
}

func (w *Worker) softStopRequested() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stopCurrent
}

func (w *Worker) beginItem(item *queue.Item) {
	w.mu.Lock()
	w.current = item
	if !w.stopping {
		w.stopCurrent = false
	}
	w.mu.Unlock()
}

func (w *Worker) endItem() {
	w.mu.Lock()
	w.current = nil
	w.mu.Unlock()
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	w.logger.Info("worker started")

	for {
		if ctx.Err() != nil {
			w.logger.Info("worker stopped")
			return
		}
		cfg := w.deps.Config()
		pollInterval := time.Duration(cfg.Workflow.QueuePollInterval) * time.Second
		if pollInterval <= 0 {
			pollInterval = 2 * time.Second
		}

		if w.isPaused() {
			if !w.wait(ctx, pollInterval) {
				return
			}
			continue
		}
		if !w.deps.Disk.CanStartUpload() {
			w.logger.Debug("disk gate closed",
				logging.String(logging.FieldTier, string(w.deps.Disk.Tier())))
			if !w.wait(ctx, pollInterval) {
				return
			}
			continue
		}

		item, err := w.deps.Manager.Claim(ctx)
		if err != nil {
			retry := time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second
			if retry <= 0 {
				retry = 5 * time.Second
			}
			w.logger.Error("claim failed", logging.Error(err))
			if !w.wait(ctx, retry) {
				return
			}
			continue
		}
		if item == nil {
			w.idleMaintenance(ctx)
			if !w.wait(ctx, pollInterval) {
				return
			}
			continue
		}

		w.process(ctx, item, cfg)
	}
}

// wait sleeps for the interval, returning false when the context ends first.
func (w *Worker) wait(ctx context.Context, interval time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(interval):
		return true
	}
}

func (w *Worker) idleMaintenance(ctx context.Context) {
	if w.deps.Sweeper != nil {
		w.deps.Sweeper.SweepDue(ctx)
	}
	if w.deps.onQueueEmpty != nil {
		w.deps.onQueueEmpty(ctx)
	}
}

// process executes one claimed item end to end. The item arrives in
// uploading status; every exit path leaves it in a valid state and releases
// the coordinator slot.
func (w *Worker) process(ctx context.Context, item *queue.Item, cfg *config.Config) {
	w.beginItem(item)
	defer w.endItem()

	// Outcome persistence must survive cancellation: a graceful Stop cancels
	// ctx while the transfer unwinds, and the final status plus resume set
	// still have to reach the store.
	persistCtx := context.WithoutCancel(ctx)

	slotTimeout := time.Duration(cfg.Concurrency.SlotAcquireTimeout) * time.Second
	slot, err := w.deps.Coord.AcquireSlot(ctx, item.Path, item.Host, slotTimeout)
	if err != nil {
		// Expected under load: put the item back and let a later pass retry.
		if revertErr := w.deps.Manager.Transition(persistCtx, item, queue.StatusQueued, ""); revertErr != nil {
			w.logger.Error("failed to requeue after slot timeout", logging.Error(revertErr))
		}
		if errors.Is(err, coordinator.ErrAcquireTimeout) {
			w.logger.Debug("no slot available, item requeued",
				logging.String(logging.FieldItemPath, item.Path))
		} else {
			w.logger.Warn("slot acquisition failed", logging.Error(err))
		}
		return
	}
	defer slot.Release()

	requestID := uuid.NewString()
	w.logger.Info("upload starting",
		logging.String(logging.FieldItemPath, item.Path),
		logging.String(logging.FieldHost, item.Host),
		logging.String(logging.FieldRequestID, requestID),
		logging.Int("resume_files", len(item.UploadedFiles)))

	w.deps.Hooks.Fire(ctx, hooks.EventStarted, item)
	if err := w.deps.Notifier.NotifyUploadStarted(ctx, item.Name, item.TotalImages); err != nil {
		w.logger.Debug("start notification failed", logging.Error(err))
	}

	var resumeMu sync.Mutex
	uploadedNames := append([]string(nil), item.UploadedFiles...)

	req := uploader.Request{
		FolderPath:  item.Path,
		GalleryName: item.Name,
		Host:        item.Host,
		RequestID:   requestID,
		GalleryID:   item.GalleryID,
		ResumeSet:   item.UploadedFiles,
		Settings: uploader.Settings{
			ThumbnailSize:     cfg.Upload.ThumbnailSize,
			ThumbnailFormat:   cfg.Upload.ThumbnailFormat,
			MaxRetries:        cfg.Upload.MaxRetries,
			PublicGallery:     cfg.Upload.PublicGallery,
			ParallelBatchSize: cfg.Upload.ParallelBatchSize,
			TemplateName:      templateFor(item, cfg),
		},
		Callbacks: uploader.Callbacks{
			OnProgress: func(completed, total, percent int, current string) {
				w.deps.Bus.Progress(item.Path, completed, total, percent, current)
			},
			OnLog: func(message string) {
				w.deps.Bus.LogLine(item.Path, message)
			},
			ShouldSoftStop: func() bool {
				return w.softStopRequested() || ctx.Err() != nil
			},
			OnItemUploaded: func(name string, sizeBytes int64) {
				w.deps.Bandwidth.Add(sizeBytes)
				resumeMu.Lock()
				uploadedNames = append(uploadedNames, name)
				resumeMu.Unlock()
			},
		},
	}

	result, err := w.deps.Uploader.Upload(ctx, req)
	if err != nil {
		w.fail(persistCtx, item, err)
		return
	}

	item.GalleryID = result.GalleryID
	if result.GalleryURL != "" {
		item.GalleryURL = result.GalleryURL
	}
	resumeMu.Lock()
	item.UploadedFiles = uploadedNames
	item.UploadedImages = len(uploadedNames)
	resumeMu.Unlock()

	switch {
	// Cancellation is a soft stop too: the uploader saw ShouldSoftStop and
	// returned early, so the item is paused, not completed.
	case w.softStopRequested() || ctx.Err() != nil:
		w.pauseItem(persistCtx, item)
	case result.FailedCount > 0:
		w.incompleteItem(persistCtx, item, result)
	default:
		w.completeItem(persistCtx, item, result)
	}
}

func (w *Worker) fail(ctx context.Context, item *queue.Item, cause error) {
	w.logger.Error("upload failed",
		logging.String(logging.FieldItemPath, item.Path),
		logging.Error(cause))
	if err := w.deps.Manager.Transition(ctx, item, queue.StatusFailed, cause.Error()); err != nil {
		w.logger.Error("failed-state transition rejected", logging.Error(err))
	}
	w.deps.Coord.RecordCompletion(false)
	w.reportOutcome(false)
	if err := w.deps.Notifier.NotifyGalleryFailed(ctx, item.Name, cause.Error()); err != nil {
		w.logger.Debug("failure notification failed", logging.Error(err))
	}
}

func (w *Worker) pauseItem(ctx context.Context, item *queue.Item) {
	if err := w.deps.Manager.Save(ctx, item); err != nil {
		w.logger.Error("persist before pause failed", logging.Error(err))
	}
	if err := w.deps.Manager.Transition(ctx, item, queue.StatusPaused, ""); err != nil {
		w.logger.Error("pause transition rejected", logging.Error(err))
	}
	// A pause is not a finished transfer; completion counters are untouched.
	w.logger.Info("upload paused by soft stop",
		logging.String(logging.FieldItemPath, item.Path),
		logging.Int("uploaded", item.UploadedImages))
}

func (w *Worker) incompleteItem(ctx context.Context, item *queue.Item, result *uploader.Result) {
	message := fmt.Sprintf("%d of %d images failed", result.FailedCount,
		result.SuccessfulCount+result.FailedCount)
	if err := w.deps.Manager.Save(ctx, item); err != nil {
		w.logger.Error("persist resume set failed", logging.Error(err))
	}
	if err := w.deps.Manager.Transition(ctx, item, queue.StatusIncomplete, message); err != nil {
		w.logger.Error("incomplete transition rejected", logging.Error(err))
	}
	w.deps.Coord.RecordCompletion(false)
	w.reportOutcome(false)
	w.logger.Warn("upload incomplete",
		logging.String(logging.FieldItemPath, item.Path),
		logging.Int("uploaded", result.SuccessfulCount),
		logging.Int("failed", result.FailedCount))
	if err := w.deps.Notifier.NotifyGalleryIncomplete(ctx, item.Name, result.SuccessfulCount, result.FailedCount); err != nil {
		w.logger.Debug("incomplete notification failed", logging.Error(err))
	}
}

func (w *Worker) completeItem(ctx context.Context, item *queue.Item, result *uploader.Result) {
	item.TotalBytes = maxInt64(item.TotalBytes, result.TotalBytes)
	if err := w.deps.Manager.Save(ctx, item); err != nil {
		w.logger.Error("persist completed item failed", logging.Error(err))
	}
	if err := w.deps.Manager.Transition(ctx, item, queue.StatusCompleted, ""); err != nil {
		w.logger.Error("completed transition rejected", logging.Error(err))
	}
	w.deps.Coord.RecordCompletion(true)
	w.reportOutcome(true)

	if w.deps.Sweeper != nil {
		w.deps.Sweeper.Finalize(ctx, item.GalleryID, item.Name)
	}

	w.logger.Info("upload completed",
		logging.String(logging.FieldItemPath, item.Path),
		logging.String(logging.FieldGallery, item.GalleryID),
		logging.Int("uploaded", result.SuccessfulCount),
		logging.String("rate", humanize.Bytes(uint64(w.deps.Bandwidth.Rate()))+"/s"))

	w.deps.Hooks.Fire(ctx, hooks.EventCompleted, item)
	if err := w.deps.Notifier.NotifyGalleryCompleted(ctx, item.Name, item.GalleryURL, result.SuccessfulCount); err != nil {
		w.logger.Debug("completion notification failed", logging.Error(err))
	}
}

func (w *Worker) reportOutcome(success bool) {
	if w.deps.onOutcome != nil {
		w.deps.onOutcome(success)
	}
}

func templateFor(item *queue.Item, cfg *config.Config) string {
	if item.TemplateName != "" {
		return item.TemplateName
	}
	return cfg.Upload.TemplateName
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
