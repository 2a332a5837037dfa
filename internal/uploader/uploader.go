// Package uploader defines the transfer capability consumed by workers. The
// worker owns admission, status transitions, and bookkeeping; the uploader
// owns moving bytes and reporting per-image outcomes through callbacks.
package uploader

import "context"

// Settings snapshot the per-transfer configuration. Values are copied at
// claim time so a config reload never changes an in-flight upload.
type Settings struct {
	ThumbnailSize     int
	ThumbnailFormat   int
	MaxRetries        int
	PublicGallery     bool
	ParallelBatchSize int
	TemplateName      string
}

// Callbacks are invoked during a transfer. All four must be non-nil; workers
// always supply them. ShouldSoftStop is polled between units of work and
// never interrupts a write in progress.
type Callbacks struct {
	OnProgress     func(completed, total, percent int, current string)
	OnLog          func(message string)
	ShouldSoftStop func() bool
	OnItemUploaded func(name string, sizeBytes int64)
}

// Request describes one gallery transfer.
type Request struct {
	FolderPath  string
	GalleryName string
	Host        string
	RequestID   string
	// GalleryID is set when resuming a partial transfer so images land in
	// the gallery created on the first attempt.
	GalleryID string
	// ResumeSet holds base names the host already accepted; they are never
	// re-sent.
	ResumeSet []string
	Settings  Settings
	Callbacks Callbacks
}

// FailedFile records one image the host rejected after all retries.
type FailedFile struct {
	Name   string
	Reason string
}

// UploadedImage describes one accepted image.
type UploadedImage struct {
	Name     string
	Size     int64
	Width    int
	Height   int
	URL      string
	ThumbURL string
}

// Result aggregates a finished (or soft-stopped) transfer. SuccessfulCount
// and FailedCount cover only this run; resume-set skips are neither.
type Result struct {
	SuccessfulCount int
	FailedCount     int
	FailedDetails   []FailedFile
	GalleryID       string
	GalleryName     string
	GalleryURL      string
	Images          []UploadedImage
	TotalBytes      int64
	MaxWidth        int
	MaxHeight       int
}

// Uploader executes gallery transfers. Implementations must poll
// Callbacks.ShouldSoftStop between images and return promptly when it fires,
// reporting whatever completed so far.
type Uploader interface {
	Upload(ctx context.Context, req Request) (*Result, error)
}
