// Package events fans picdrop state changes out to an arbitrary set of
// subscribers (CLI status views, hook runners, notification bridges) without
// any assumption about how many are listening.
package events

import (
	"sync"
	"time"
)

// Kind identifies the event payload type.
type Kind string

const (
	KindStatusChanged Kind = "status_changed"
	KindProgress      Kind = "progress"
	KindLogLine       Kind = "log_line"
	KindSpaceUpdated  Kind = "space_updated"
	KindTierChanged   Kind = "tier_changed"
	KindQueueStats    Kind = "queue_stats"
)

// Event is the envelope delivered to subscribers.
type Event struct {
	Kind Kind
	Time time.Time

	// Populated for item-scoped events.
	Path   string
	Status string

	// Populated for progress events.
	Completed int
	Total     int
	Percent   int
	Current   string

	// Populated for log events.
	Message string

	// Populated for disk events.
	DataFree uint64
	TempFree uint64
	Tier     string

	// Populated for queue stats events.
	Stats map[string]int
}

// Handler receives published events. Handlers run synchronously on the
// publisher's goroutine and must not block.
type Handler func(Event)

// Bus is a minimal subscribe/publish registry. The zero value is unusable;
// construct with NewBus.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]Handler
}

// NewBus constructs an empty event bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[int]Handler)}
}

// Subscribe registers a handler and returns a cancel func removing it.
func (b *Bus) Subscribe(handler Handler) (cancel func()) {
	if handler == nil {
		return func() {}
	}
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = handler
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}
}

// Publish delivers the event to every subscriber. A panicking subscriber is
// isolated so one misbehaving observer cannot take down a worker loop.
func (b *Bus) Publish(event Event) {
	if b == nil {
		return
	}
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		deliver(handler, event)
	}
}

func deliver(handler Handler, event Event) {
	defer func() {
		_ = recover()
	}()
	handler(event)
}

// StatusChanged publishes an item status transition.
func (b *Bus) StatusChanged(path, status string) {
	b.Publish(Event{Kind: KindStatusChanged, Path: path, Status: status})
}

// Progress publishes an in-flight transfer progress tick.
func (b *Bus) Progress(path string, completed, total, percent int, current string) {
	b.Publish(Event{
		Kind:      KindProgress,
		Path:      path,
		Completed: completed,
		Total:     total,
		Percent:   percent,
		Current:   current,
	})
}

// LogLine publishes a human-readable transfer log message.
func (b *Bus) LogLine(path, message string) {
	b.Publish(Event{Kind: KindLogLine, Path: path, Message: message})
}
