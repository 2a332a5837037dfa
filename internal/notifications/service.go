// Package notifications pushes gallery lifecycle events to ntfy when a
// topic is configured, and silently drops them otherwise.
package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"picdrop/internal/config"
)

const userAgent = "picdrop/0.1.0"

// Service defines the notification surface exposed to the worker pool and
// daemon.
type Service interface {
	NotifyUploadStarted(ctx context.Context, galleryName string, images int) error
	NotifyGalleryCompleted(ctx context.Context, galleryName, galleryURL string, uploaded int) error
	NotifyGalleryIncomplete(ctx context.Context, galleryName string, uploaded, failed int) error
	NotifyGalleryFailed(ctx context.Context, galleryName, reason string) error
	NotifyQueueDrained(ctx context.Context, completed, failed int) error
	NotifyDiskPressure(ctx context.Context, tier string, freeBytes uint64) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		settings: cfg.Notifications,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	settings config.Notifications
}

func (n *ntfyService) NotifyUploadStarted(ctx context.Context, galleryName string, images int) error {
	if !n.settings.UploadStarted {
		return nil
	}
	data := payload{
		title:   "picdrop - Upload Started",
		message: fmt.Sprintf("Uploading %s (%d images)", strings.TrimSpace(galleryName), images),
		tags:    []string{"picdrop", "upload", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyGalleryCompleted(ctx context.Context, galleryName, galleryURL string, uploaded int) error {
	if !n.settings.Gallery {
		return nil
	}
	message := fmt.Sprintf("Gallery complete: %s (%d images)", strings.TrimSpace(galleryName), uploaded)
	if galleryURL = strings.TrimSpace(galleryURL); galleryURL != "" {
		message = fmt.Sprintf("%s\n%s", message, galleryURL)
	}
	data := payload{
		title:    "picdrop - Gallery Complete",
		message:  message,
		tags:     []string{"picdrop", "gallery", "completed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyGalleryIncomplete(ctx context.Context, galleryName string, uploaded, failed int) error {
	if !n.settings.Gallery {
		return nil
	}
	data := payload{
		title:   "picdrop - Gallery Incomplete",
		message: fmt.Sprintf("Gallery %s: %d uploaded, %d failed; queued for retry", strings.TrimSpace(galleryName), uploaded, failed),
		tags:    []string{"picdrop", "gallery", "incomplete"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyGalleryFailed(ctx context.Context, galleryName, reason string) error {
	if !n.settings.Errors {
		return nil
	}
	data := payload{
		title:    "picdrop - Upload Failed",
		message:  fmt.Sprintf("Gallery %s failed: %s", strings.TrimSpace(galleryName), strings.TrimSpace(reason)),
		tags:     []string{"picdrop", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyQueueDrained(ctx context.Context, completed, failed int) error {
	if !n.settings.Queue {
		return nil
	}
	var message string
	if failed == 0 {
		message = fmt.Sprintf("Queue drained: %d galleries uploaded", completed)
	} else {
		message = fmt.Sprintf("Queue drained: %d uploaded, %d failed", completed, failed)
	}
	data := payload{
		title:   "picdrop - Queue Drained",
		message: message,
		tags:    []string{"picdrop", "queue", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyDiskPressure(ctx context.Context, tier string, freeBytes uint64) error {
	if !n.settings.Disk {
		return nil
	}
	data := payload{
		title:    "picdrop - Disk Pressure",
		message:  fmt.Sprintf("Disk tier is now %s (%s free)", tier, humanize.Bytes(freeBytes)),
		tags:     []string{"picdrop", "disk", tier},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "picdrop - Test",
		message:  "Notification system test",
		tags:     []string{"picdrop", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// NewNop returns a service that drops every notification.
func NewNop() Service { return noopService{} }

type noopService struct{}

func (noopService) NotifyUploadStarted(context.Context, string, int) error               { return nil }
func (noopService) NotifyGalleryCompleted(context.Context, string, string, int) error   { return nil }
func (noopService) NotifyGalleryIncomplete(context.Context, string, int, int) error     { return nil }
func (noopService) NotifyGalleryFailed(context.Context, string, string) error           { return nil }
func (noopService) NotifyQueueDrained(context.Context, int, int) error                  { return nil }
func (noopService) NotifyDiskPressure(context.Context, string, uint64) error            { return nil }
func (noopService) TestNotification(context.Context) error                              { return nil }
