package events

import (
	"sync"
	"testing"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	bus := NewBus()
	var mu sync.Mutex
	var got []string

	for i := 0; i < 3; i++ {
		bus.Subscribe(func(e Event) {
			mu.Lock()
			got = append(got, e.Path)
			mu.Unlock()
		})
	}

	bus.StatusChanged("/galleries/a", "uploading")

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 3 {
		t.Fatalf("delivered to %d subscribers, want 3", len(got))
	}
}

func TestCancelRemovesSubscriber(t *testing.T) {
	bus := NewBus()
	calls := 0
	cancel := bus.Subscribe(func(Event) { calls++ })

	bus.LogLine("/g", "first")
	cancel()
	bus.LogLine("/g", "second")

	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestPanickingSubscriberIsIsolated(t *testing.T) {
	bus := NewBus()
	bus.Subscribe(func(Event) { panic("bad subscriber") })
	reached := false
	bus.Subscribe(func(Event) { reached = true })

	bus.Progress("/g", 1, 10, 10, "001.jpg")

	if !reached {
		t.Fatal("second subscriber never ran")
	}
}

func TestPublishOnNilBusIsNoop(t *testing.T) {
	var bus *Bus
	bus.Publish(Event{Kind: KindLogLine})
}

func TestPublishWithoutSubscribersIsNoop(t *testing.T) {
	NewBus().StatusChanged("/g", "queued")
}
