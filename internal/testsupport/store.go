package testsupport

import (
	"context"
	"testing"

	"picdrop/internal/config"
	"picdrop/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewGallery inserts a gallery item in the given status for tests.
func NewGallery(t testing.TB, store *queue.Store, path, host string, status queue.Status) *queue.Item {
	t.Helper()

	item, err := store.Add(context.Background(), path, host, status)
	if err != nil {
		t.Fatalf("store.Add: %v", err)
	}
	return item
}
