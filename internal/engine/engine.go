package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"picdrop/internal/logging"
	"picdrop/internal/uploader"
)

// ImageHost is the per-image wire client for one destination service.
// Implementations must be safe for concurrent UploadImage calls up to the
// configured batch size.
type ImageHost interface {
	Name() string
	// MaxFileBytes returns the host's per-file size cap; 0 means no cap.
	MaxFileBytes() int64
	CreateGallery(ctx context.Context, name string, public bool) (id, url string, err error)
	UploadImage(ctx context.Context, galleryID string, file File, settings uploader.Settings) (*uploader.UploadedImage, error)
}

// Engine drives gallery transfers against one ImageHost. It satisfies
// uploader.Uploader.
type Engine struct {
	host   ImageHost
	logger *slog.Logger
}

// New constructs an engine for the given host.
func New(host ImageHost, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{
		host:   host,
		logger: logging.NewComponentLogger(logger, "engine"),
	}
}

var _ uploader.Uploader = (*Engine)(nil)

// Upload transfers every image in the request folder that is not already in
// the resume set, in viewer order, in bounded parallel batches, with failed
// images retried in whole rounds up to MaxRetries. Soft-stop is honored
// between images and between rounds, never mid-transfer.
func (e *Engine) Upload(ctx context.Context, req uploader.Request) (*uploader.Result, error) {
	cb := normalizeCallbacks(req.Callbacks)

	files, err := ListImages(req.FolderPath)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no images found in %s", req.FolderPath)
	}

	resume := make(map[string]struct{}, len(req.ResumeSet))
	for _, name := range req.ResumeSet {
		resume[name] = struct{}{}
	}

	total := len(files)
	completed := 0
	var pending []File
	var oversize []uploader.FailedFile
	maxBytes := e.host.MaxFileBytes()
	for _, file := range files {
		if _, done := resume[file.Name]; done {
			completed++
			continue
		}
		if maxBytes > 0 && file.Size > maxBytes {
			reason := fmt.Sprintf("exceeds %s size limit of %s",
				e.host.Name(), humanize.Bytes(uint64(maxBytes)))
			oversize = append(oversize, uploader.FailedFile{Name: file.Name, Reason: reason})
			cb.OnLog(fmt.Sprintf("skipping %s: %s", file.Name, reason))
			continue
		}
		pending = append(pending, file)
	}

	galleryID := req.GalleryID
	galleryURL := ""
	if galleryID == "" {
		galleryID, galleryURL, err = e.host.CreateGallery(ctx, req.GalleryName, req.Settings.PublicGallery)
		if err != nil {
			return nil, fmt.Errorf("create gallery on %s: %w", e.host.Name(), err)
		}
		cb.OnLog(fmt.Sprintf("created gallery %q (%s)", req.GalleryName, galleryID))
	} else {
		cb.OnLog(fmt.Sprintf("resuming gallery %s, %d of %d already uploaded",
			galleryID, completed, total))
	}

	result := &uploader.Result{
		GalleryID:   galleryID,
		GalleryName: req.GalleryName,
		GalleryURL:  galleryURL,
	}

	batchSize := req.Settings.ParallelBatchSize
	if batchSize < 1 {
		batchSize = 1
	}
	maxRetries := req.Settings.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	var mu sync.Mutex
	failureReasons := make(map[string]string)
	var softStopped atomic.Bool

	for round := 0; round <= maxRetries && len(pending) > 0; round++ {
		if cb.ShouldSoftStop() {
			softStopped.Store(true)
			break
		}
		if round > 0 {
			cb.OnLog(fmt.Sprintf("retrying %d failed images (attempt %d of %d)",
				len(pending), round, maxRetries))
		}

		var roundFailures []File
		group := new(errgroup.Group)
		group.SetLimit(batchSize)

		for _, file := range pending {
			if softStopped.Load() {
				break
			}
			group.Go(func() error {
				// Re-check at the moment this unit actually starts; the
				// launch-time check may be stale behind in-flight uploads.
				if cb.ShouldSoftStop() {
					softStopped.Store(true)
					return nil
				}
				img, err := e.host.UploadImage(ctx, galleryID, file, req.Settings)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failureReasons[file.Name] = err.Error()
					roundFailures = append(roundFailures, file)
					cb.OnLog(fmt.Sprintf("upload failed for %s: %v", file.Name, err))
					return nil
				}
				result.Images = append(result.Images, *img)
				result.SuccessfulCount++
				result.TotalBytes += img.Size
				if img.Width > result.MaxWidth {
					result.MaxWidth = img.Width
				}
				if img.Height > result.MaxHeight {
					result.MaxHeight = img.Height
				}
				completed++
				cb.OnItemUploaded(file.Name, img.Size)
				cb.OnProgress(completed, total, completed*100/total, file.Name)
				return nil
			})
		}
		_ = group.Wait()
		pending = roundFailures
	}

	result.FailedDetails = oversize
	if !softStopped.Load() {
		// Anything still pending after the final round is a permanent
		// failure; under soft-stop it is merely unattempted.
		for _, file := range pending {
			result.FailedDetails = append(result.FailedDetails, uploader.FailedFile{
				Name:   file.Name,
				Reason: failureReasons[file.Name],
			})
		}
	}
	result.FailedCount = len(result.FailedDetails)

	e.logger.Info("transfer finished",
		logging.String(logging.FieldGallery, galleryID),
		logging.String(logging.FieldHost, e.host.Name()),
		logging.String(logging.FieldRequestID, req.RequestID),
		logging.Int("uploaded", result.SuccessfulCount),
		logging.Int("failed", result.FailedCount),
		logging.Bool("soft_stopped", softStopped.Load()))

	return result, nil
}

func normalizeCallbacks(cb uploader.Callbacks) uploader.Callbacks {
	if cb.OnProgress == nil {
		cb.OnProgress = func(int, int, int, string) {}
	}
	if cb.OnLog == nil {
		cb.OnLog = func(string) {}
	}
	if cb.ShouldSoftStop == nil {
		cb.ShouldSoftStop = func() bool { return false }
	}
	if cb.OnItemUploaded == nil {
		cb.OnItemUploaded = func(string, int64) {}
	}
	return cb
}
