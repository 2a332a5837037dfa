package queue_test

import (
	"context"
	"sync"
	"testing"

	"picdrop/internal/events"
	"picdrop/internal/queue"
	"picdrop/internal/testsupport"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) handle(e events.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) statuses(path string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if e.Kind == events.KindStatusChanged && e.Path == path {
			out = append(out, e.Status)
		}
	}
	return out
}

func newTestManager(t *testing.T) (*queue.Manager, *recorder) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	bus := events.NewBus()
	rec := &recorder{}
	bus.Subscribe(rec.handle)
	return queue.NewManager(store, bus), rec
}

func TestManagerPublishesEveryStatusMutation(t *testing.T) {
	mgr, rec := newTestManager(t)
	ctx := context.Background()

	item, err := mgr.Add(ctx, "/galleries/a", "imx")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if item.Status != queue.StatusScanning {
		t.Fatalf("added status = %s, want scanning", item.Status)
	}

	if err := mgr.Transition(ctx, item, queue.StatusQueued, ""); err != nil {
		t.Fatalf("Transition to queued: %v", err)
	}

	claimed, err := mgr.Claim(ctx)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claimed == nil || claimed.ID != item.ID {
		t.Fatalf("claimed = %#v, want item %d", claimed, item.ID)
	}

	if err := mgr.Transition(ctx, claimed, queue.StatusCompleted, ""); err != nil {
		t.Fatalf("Transition to completed: %v", err)
	}

	got := rec.statuses("/galleries/a")
	want := []string{"scanning", "queued", "uploading", "completed"}
	if len(got) != len(want) {
		t.Fatalf("status events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("status events = %v, want %v", got, want)
		}
	}
}

func TestManagerRejectsInvalidTransition(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	item, err := mgr.Add(ctx, "/galleries/b", "imx")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	// scanning -> completed skips the whole upload pipeline.
	if err := mgr.Transition(ctx, item, queue.StatusCompleted, ""); err == nil {
		t.Fatal("invalid transition was accepted")
	}
	if item.Status != queue.StatusScanning {
		t.Fatalf("item mutated on rejected transition: %s", item.Status)
	}
}

func TestCanTransitionTable(t *testing.T) {
	cases := []struct {
		from, to queue.Status
		want     bool
	}{
		{queue.StatusQueued, queue.StatusUploading, true},
		{queue.StatusUploading, queue.StatusPaused, true},
		{queue.StatusUploading, queue.StatusIncomplete, true},
		{queue.StatusUploading, queue.StatusQueued, true},
		{queue.StatusPaused, queue.StatusQueued, true},
		{queue.StatusCompleted, queue.StatusQueued, false},
		{queue.StatusQueued, queue.StatusCompleted, false},
		{queue.StatusScanning, queue.StatusUploading, false},
	}
	for _, tc := range cases {
		if got := queue.CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestManagerSaveResumeSetUpdatesCounter(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	item, err := mgr.Add(ctx, "/galleries/c", "imx")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	item.UploadedFiles = []string{"001.jpg", "002.jpg"}
	if err := mgr.SaveResumeSet(ctx, item); err != nil {
		t.Fatalf("SaveResumeSet: %v", err)
	}
	if item.UploadedImages != 2 {
		t.Fatalf("uploaded counter = %d, want 2", item.UploadedImages)
	}

	fetched, err := mgr.Store().GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if len(fetched.UploadedFiles) != 2 {
		t.Fatalf("persisted resume set = %v", fetched.UploadedFiles)
	}
}
