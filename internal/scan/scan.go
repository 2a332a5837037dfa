// Package scan performs the folder census run when a gallery is added:
// image count, byte total, and cheaply decodable dimension statistics. The
// result moves the item from scanning to ready, or straight to queued when
// auto-queue is enabled.
package scan

import (
	"context"
	"image"
	"log/slog"
	"os"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"picdrop/internal/engine"
	"picdrop/internal/logging"
	"picdrop/internal/queue"
)

// Summary is the census result for one gallery folder.
type Summary struct {
	TotalImages int
	TotalBytes  int64
	MaxWidth    int
	MaxHeight   int
}

// Folder counts the images in a gallery folder. Dimensions are read via
// image.DecodeConfig where the format allows it; undecodable headers are
// counted but contribute no dimension statistics.
func Folder(path string) (Summary, error) {
	files, err := engine.ListImages(path)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{TotalImages: len(files)}
	for _, file := range files {
		summary.TotalBytes += file.Size
		if width, height, ok := decodeDimensions(file.Path); ok {
			if width > summary.MaxWidth {
				summary.MaxWidth = width
			}
			if height > summary.MaxHeight {
				summary.MaxHeight = height
			}
		}
	}
	return summary, nil
}

func decodeDimensions(path string) (int, int, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, false
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, false
	}
	return cfg.Width, cfg.Height, true
}

// Scanner runs the census against queue items.
type Scanner struct {
	manager   *queue.Manager
	logger    *slog.Logger
	autoQueue bool
}

// NewScanner constructs a scanner. When autoQueue is set, scanned galleries
// bypass ready and land directly in queued.
func NewScanner(manager *queue.Manager, autoQueue bool, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scanner{
		manager:   manager,
		logger:    logging.NewComponentLogger(logger, "scan"),
		autoQueue: autoQueue,
	}
}

// Scan censuses the item's folder, persists the counts, and advances the
// status. A folder that cannot be read or holds no images fails the item.
func (s *Scanner) Scan(ctx context.Context, item *queue.Item) error {
	summary, err := Folder(item.Path)
	if err != nil {
		_ = s.manager.Transition(ctx, item, queue.StatusFailed, err.Error())
		return err
	}
	if summary.TotalImages == 0 {
		message := "no images found in folder"
		_ = s.manager.Transition(ctx, item, queue.StatusFailed, message)
		s.logger.Warn("scan found no images", logging.String(logging.FieldItemPath, item.Path))
		return nil
	}

	item.TotalImages = summary.TotalImages
	item.TotalBytes = summary.TotalBytes
	if err := s.manager.Save(ctx, item); err != nil {
		return err
	}

	next := queue.StatusReady
	if s.autoQueue {
		next = queue.StatusQueued
	}
	if err := s.manager.Transition(ctx, item, next, ""); err != nil {
		return err
	}

	s.logger.Info("gallery scanned",
		logging.String(logging.FieldItemPath, item.Path),
		logging.Int("images", summary.TotalImages),
		logging.Int64("bytes", summary.TotalBytes),
		logging.Int("max_width", summary.MaxWidth),
		logging.Int("max_height", summary.MaxHeight))
	return nil
}
