package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"picdrop/internal/worker"
)

type fakeRenamer struct {
	mu       sync.Mutex
	failures map[string]int // gallery id -> remaining failures
	renamed  map[string]string
}

func newFakeRenamer() *fakeRenamer {
	return &fakeRenamer{
		failures: make(map[string]int),
		renamed:  make(map[string]string),
	}
}

func (f *fakeRenamer) RenameGallery(_ context.Context, galleryID, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures[galleryID] > 0 {
		f.failures[galleryID]--
		return errors.New("gallery still processing")
	}
	f.renamed[galleryID] = name
	return nil
}

func (f *fakeRenamer) nameOf(galleryID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.renamed[galleryID]
}

func TestFinalizeRenamesImmediatelyOnSuccess(t *testing.T) {
	renamer := newFakeRenamer()
	sweeper := worker.NewRenameSweeper(renamer, time.Minute, nil)

	sweeper.Finalize(context.Background(), "g1", "trip")

	if got := renamer.nameOf("g1"); got != "trip" {
		t.Fatalf("gallery name = %q, want trip", got)
	}
	if sweeper.PendingCount() != 0 {
		t.Fatalf("pending = %d, want 0", sweeper.PendingCount())
	}
}

func TestFinalizeDefersFailedRenameToSweep(t *testing.T) {
	renamer := newFakeRenamer()
	renamer.failures["g1"] = 1
	sweeper := worker.NewRenameSweeper(renamer, time.Millisecond, nil)

	sweeper.Finalize(context.Background(), "g1", "trip")
	if sweeper.PendingCount() != 1 {
		t.Fatalf("pending = %d after refused rename, want 1", sweeper.PendingCount())
	}

	time.Sleep(5 * time.Millisecond)
	sweeper.SweepDue(context.Background())

	if got := renamer.nameOf("g1"); got != "trip" {
		t.Fatalf("gallery name = %q after sweep, want trip", got)
	}
	if sweeper.PendingCount() != 0 {
		t.Fatalf("pending = %d after sweep, want 0", sweeper.PendingCount())
	}
}

func TestSweepKeepsStillFailingRenames(t *testing.T) {
	renamer := newFakeRenamer()
	renamer.failures["g1"] = 5
	sweeper := worker.NewRenameSweeper(renamer, time.Millisecond, nil)

	sweeper.Finalize(context.Background(), "g1", "trip")
	time.Sleep(5 * time.Millisecond)
	sweeper.SweepDue(context.Background())

	if sweeper.PendingCount() != 1 {
		t.Fatalf("pending = %d, want 1 while host keeps refusing", sweeper.PendingCount())
	}
}

func TestNilRenamerDisablesSweeper(t *testing.T) {
	sweeper := worker.NewRenameSweeper(nil, time.Minute, nil)
	sweeper.Finalize(context.Background(), "g1", "trip")
	sweeper.SweepDue(context.Background())
	if sweeper.PendingCount() != 0 {
		t.Fatal("nil renamer should never queue work")
	}
}
