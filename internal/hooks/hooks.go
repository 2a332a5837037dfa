// Package hooks runs user-configured external commands on gallery
// transitions. Hooks are observers: a failing or slow hook is logged and
// never blocks or fails the pipeline.
package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"picdrop/internal/config"
	"picdrop/internal/logging"
	"picdrop/internal/queue"
)

// Event names the transition a hook fires on.
type Event string

const (
	EventStarted   Event = "started"
	EventCompleted Event = "completed"
)

// DefaultTimeout bounds hook execution when none is configured.
const DefaultTimeout = 30 * time.Second

// Runner executes configured hook commands with gallery context in the
// environment.
type Runner struct {
	logger    *slog.Logger
	started   []string
	completed []string
	timeout   time.Duration
}

// NewRunner builds a runner from the hooks config section.
func NewRunner(cfg config.Hooks, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{
		logger:    logging.NewComponentLogger(logger, "hooks"),
		started:   cfg.Started,
		completed: cfg.Completed,
		timeout:   timeout,
	}
}

// Fire runs the hook for the given event in the background. Safe to call
// with no hook configured.
func (r *Runner) Fire(ctx context.Context, event Event, item *queue.Item) {
	if r == nil || item == nil {
		return
	}
	argv := r.argvFor(event)
	if len(argv) == 0 {
		return
	}
	go r.run(ctx, event, argv, item)
}

func (r *Runner) argvFor(event Event) []string {
	switch event {
	case EventStarted:
		return r.started
	case EventCompleted:
		return r.completed
	default:
		return nil
	}
}

func (r *Runner) run(ctx context.Context, event Event, argv []string, item *queue.Item) {
	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("PICDROP_EVENT=%s", event),
		fmt.Sprintf("PICDROP_PATH=%s", item.Path),
		fmt.Sprintf("PICDROP_NAME=%s", item.Name),
		fmt.Sprintf("PICDROP_GALLERY_ID=%s", item.GalleryID),
		fmt.Sprintf("PICDROP_GALLERY_URL=%s", item.GalleryURL),
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		r.logger.Warn("hook failed",
			logging.String(logging.FieldEventType, string(event)),
			logging.String(logging.FieldItemPath, item.Path),
			logging.String("command", strings.Join(argv, " ")),
			logging.String("output", strings.TrimSpace(string(output))),
			logging.Error(err))
		return
	}
	r.logger.Debug("hook finished",
		logging.String(logging.FieldEventType, string(event)),
		logging.String(logging.FieldItemPath, item.Path),
		logging.String("command", strings.Join(argv, " ")))
}
