package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a queued gallery.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusScanning   Status = "scanning"
	StatusReady      Status = "ready"
	StatusUploading  Status = "uploading"
	StatusPaused     Status = "paused"
	StatusIncomplete Status = "incomplete"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{
	StatusQueued,
	StatusScanning,
	StatusReady,
	StatusUploading,
	StatusPaused,
	StatusIncomplete,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// resumableStatuses are the states a worker may pick back up with a resume
// set, skipping files already on the host.
var resumableStatuses = map[Status]struct{}{
	StatusQueued:     {},
	StatusPaused:     {},
	StatusIncomplete: {},
}

// Item is one gallery folder awaiting or undergoing upload.
type Item struct {
	ID             int64
	Path           string
	Name           string
	Status         Status
	Host           string
	TemplateName   string
	CoverPath      string
	TotalImages    int
	UploadedImages int
	TotalBytes     int64
	GalleryID      string
	GalleryURL     string
	// UploadedFiles is the resume set: base names already accepted by the
	// host, so a paused or incomplete gallery never re-sends them.
	UploadedFiles []string
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
}

// StatsSummary aggregates queue counts per lifecycle state.
type StatsSummary struct {
	Total      int
	Queued     int
	Scanning   int
	Ready      int
	Uploading  int
	Paused     int
	Incomplete int
	Completed  int
	Failed     int
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsResumable reports whether a worker may claim the item and continue
// uploading from its resume set.
func (i Item) IsResumable() bool {
	_, ok := resumableStatuses[i.Status]
	return ok
}

// IsTerminal reports whether the item has reached a final state.
func (i Item) IsTerminal() bool {
	return i.Status == StatusCompleted || i.Status == StatusFailed
}

// HasUploaded reports whether name is already in the resume set.
func (i Item) HasUploaded(name string) bool {
	for _, existing := range i.UploadedFiles {
		if existing == name {
			return true
		}
	}
	return false
}

// RemainingImages returns how many files still need to transfer.
func (i Item) RemainingImages() int {
	remaining := i.TotalImages - len(i.UploadedFiles)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// SetFailed marks the item failed with the given message.
func (i *Item) SetFailed(message string) {
	i.Status = StatusFailed
	i.ErrorMessage = message
}
