package queue

import (
	"context"
	"fmt"

	"picdrop/internal/events"
)

// validTransitions enumerates the allowed status graph. Anything outside it
// is a programming error and is rejected before touching the database.
var validTransitions = map[Status][]Status{
	StatusScanning:   {StatusReady, StatusQueued, StatusFailed},
	StatusReady:      {StatusQueued},
	StatusQueued:     {StatusUploading},
	StatusUploading:  {StatusPaused, StatusIncomplete, StatusCompleted, StatusFailed, StatusQueued},
	StatusPaused:     {StatusQueued},
	StatusIncomplete: {StatusQueued},
	StatusFailed:     {StatusQueued},
}

// CanTransition reports whether moving from one status to another is allowed.
func CanTransition(from, to Status) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Manager wraps the store and publishes a bus event for every status
// mutation so the CLI, notifications, and hooks observe the same stream.
type Manager struct {
	store *Store
	bus   *events.Bus
}

// NewManager constructs a manager. A nil bus disables event publication.
func NewManager(store *Store, bus *events.Bus) *Manager {
	return &Manager{store: store, bus: bus}
}

// Store exposes the underlying store for read-only queries.
func (m *Manager) Store() *Store { return m.store }

// Add inserts a new gallery in the scanning state and announces it.
func (m *Manager) Add(ctx context.Context, path, host string) (*Item, error) {
	item, err := m.store.Add(ctx, path, host, StatusScanning)
	if err != nil {
		return nil, err
	}
	m.bus.StatusChanged(item.Path, string(item.Status))
	return item, nil
}

// Claim atomically hands the oldest queued gallery to a worker.
func (m *Manager) Claim(ctx context.Context) (*Item, error) {
	item, err := m.store.ClaimNextQueued(ctx)
	if err != nil || item == nil {
		return item, err
	}
	m.bus.StatusChanged(item.Path, string(item.Status))
	return item, nil
}

// Transition validates and applies a status change, updating the item in
// place on success.
func (m *Manager) Transition(ctx context.Context, item *Item, to Status, errorMessage string) error {
	if item == nil {
		return fmt.Errorf("transition: item is nil")
	}
	if !CanTransition(item.Status, to) {
		return fmt.Errorf("transition %s: %s -> %s is not allowed", item.Path, item.Status, to)
	}
	if err := m.store.UpdateStatus(ctx, item.ID, to, errorMessage); err != nil {
		return err
	}
	item.Status = to
	item.ErrorMessage = errorMessage
	m.bus.StatusChanged(item.Path, string(to))
	return nil
}

// Save persists the full item row and announces its current status.
func (m *Manager) Save(ctx context.Context, item *Item) error {
	if err := m.store.Update(ctx, item); err != nil {
		return err
	}
	m.bus.StatusChanged(item.Path, string(item.Status))
	return nil
}

// SaveResumeSet persists the uploaded-file names for a partial transfer.
func (m *Manager) SaveResumeSet(ctx context.Context, item *Item) error {
	if err := m.store.SetResumeSet(ctx, item.ID, item.UploadedFiles); err != nil {
		return err
	}
	item.UploadedImages = len(item.UploadedFiles)
	return nil
}

// Requeue returns paused, incomplete, ready, or failed galleries to the
// queue and announces the count via queue stats.
func (m *Manager) Requeue(ctx context.Context, ids ...int64) (int64, error) {
	count, err := m.store.Requeue(ctx, ids...)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		m.publishStats(ctx)
	}
	return count, nil
}

func (m *Manager) publishStats(ctx context.Context) {
	if m.bus == nil {
		return
	}
	stats, err := m.store.Stats(ctx)
	if err != nil {
		return
	}
	byStatus := make(map[string]int, len(stats))
	for status, count := range stats {
		byStatus[string(status)] = count
	}
	m.bus.Publish(events.Event{Kind: events.KindQueueStats, Stats: byStatus})
}
