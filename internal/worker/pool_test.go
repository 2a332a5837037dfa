package worker_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"picdrop/internal/queue"
	"picdrop/internal/uploader"
	"picdrop/internal/worker"
)

type recordingNotifier struct {
	mu      sync.Mutex
	drained []string
}

func (r *recordingNotifier) NotifyUploadStarted(context.Context, string, int) error { return nil }
func (r *recordingNotifier) NotifyGalleryCompleted(context.Context, string, string, int) error {
	return nil
}
func (r *recordingNotifier) NotifyGalleryIncomplete(context.Context, string, int, int) error {
	return nil
}
func (r *recordingNotifier) NotifyGalleryFailed(context.Context, string, string) error { return nil }
func (r *recordingNotifier) NotifyDiskPressure(context.Context, string, uint64) error  { return nil }
func (r *recordingNotifier) TestNotification(context.Context) error                    { return nil }

func (r *recordingNotifier) NotifyQueueDrained(_ context.Context, completed, failed int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drained = append(r.drained, fmt.Sprintf("%d/%d", completed, failed))
	return nil
}

func (r *recordingNotifier) drainEvents() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.drained...)
}

func TestPoolDrainNotificationFiresOncePerBatch(t *testing.T) {
	upl := &fakeUploader{fn: func(_ context.Context, req uploader.Request) (*uploader.Result, error) {
		req.Callbacks.OnItemUploaded("001.jpg", 10)
		return &uploader.Result{SuccessfulCount: 1, GalleryID: "g-" + req.GalleryName}, nil
	}}
	f := newFixture(t, upl)
	notifier := &recordingNotifier{}
	f.deps.Notifier = notifier

	a := f.enqueue(t, "/galleries/batch-a")
	b := f.enqueue(t, "/galleries/batch-b")

	pool := worker.NewPool(2, f.deps)
	pool.Start(context.Background())
	defer pool.Stop()

	waitForStatus(t, f.store, a.ID, queue.StatusCompleted)
	waitForStatus(t, f.store, b.ID, queue.StatusCompleted)

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if len(notifier.drainEvents()) > 0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	events := notifier.drainEvents()
	if len(events) == 0 {
		t.Fatal("queue drained notification never fired")
	}
	var completed, failed int
	for _, e := range events {
		var c, f int
		fmt.Sscanf(e, "%d/%d", &c, &f)
		completed += c
		failed += f
	}
	if completed != 2 || failed != 0 {
		t.Fatalf("drain events %v report %d/%d, want 2/0 in total", events, completed, failed)
	}

	// An empty queue with no new outcomes stays quiet.
	count := len(events)
	time.Sleep(2500 * time.Millisecond)
	if again := notifier.drainEvents(); len(again) != count {
		t.Fatalf("drain notification repeated: %v", again)
	}
}

func TestPoolStopCurrentTargetsMatchingPath(t *testing.T) {
	started := make(chan string, 2)
	upl := &fakeUploader{fn: func(ctx context.Context, req uploader.Request) (*uploader.Result, error) {
		started <- req.FolderPath
		for !req.Callbacks.ShouldSoftStop() {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(5 * time.Millisecond):
			}
		}
		req.Callbacks.OnItemUploaded("001.jpg", 10)
		return &uploader.Result{SuccessfulCount: 1, GalleryID: "g"}, nil
	}}
	f := newFixture(t, upl)

	target := f.enqueue(t, "/galleries/target")
	other := f.enqueue(t, "/galleries/other")

	pool := worker.NewPool(2, f.deps)
	pool.Start(context.Background())
	defer pool.Stop()

	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(10 * time.Second):
			t.Fatal("uploads never started")
		}
	}
	if got := len(pool.ActivePaths()); got != 2 {
		t.Fatalf("active paths = %d, want 2", got)
	}

	pool.StopCurrent(target.Path)
	waitForStatus(t, f.store, target.ID, queue.StatusPaused)

	current, err := f.store.GetByID(context.Background(), other.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if current.Status != queue.StatusUploading {
		t.Fatalf("untargeted upload disturbed: %s", current.Status)
	}

	// An empty path soft-stops the remainder.
	pool.StopCurrent("")
	waitForStatus(t, f.store, other.ID, queue.StatusPaused)
}

func TestPoolStopShutsDownAllWorkers(t *testing.T) {
	upl := &fakeUploader{fn: func(context.Context, uploader.Request) (*uploader.Result, error) {
		return &uploader.Result{SuccessfulCount: 1}, nil
	}}
	f := newFixture(t, upl)

	pool := worker.NewPool(3, f.deps)
	pool.Start(context.Background())

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("pool.Stop never returned")
	}
	if paths := pool.ActivePaths(); len(paths) != 0 {
		t.Fatalf("workers still active after Stop: %v", paths)
	}
}
