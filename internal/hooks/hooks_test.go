package hooks_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"picdrop/internal/config"
	"picdrop/internal/hooks"
	"picdrop/internal/queue"
)

func writeHookScript(t *testing.T, dir, outFile string) string {
	t.Helper()
	script := filepath.Join(dir, "hook.sh")
	body := "#!/bin/sh\necho \"$PICDROP_EVENT $PICDROP_PATH $PICDROP_GALLERY_ID\" > " + outFile + "\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatalf("write hook script: %v", err)
	}
	return script
}

func waitForFile(t *testing.T, path string) string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if data, err := os.ReadFile(path); err == nil {
			return string(data)
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("hook output %s never appeared", path)
	return ""
}

func TestFireRunsCompletedHookWithEnvironment(t *testing.T) {
	dir := t.TempDir()
	outFile := filepath.Join(dir, "out.txt")
	script := writeHookScript(t, dir, outFile)

	runner := hooks.NewRunner(config.Hooks{
		Completed:      []string{script},
		TimeoutSeconds: 5,
	}, nil)

	item := &queue.Item{
		Path:      "/galleries/trip",
		Name:      "trip",
		GalleryID: "g7",
	}
	runner.Fire(context.Background(), hooks.EventCompleted, item)

	got := strings.TrimSpace(waitForFile(t, outFile))
	if got != "completed /galleries/trip g7" {
		t.Fatalf("hook saw %q", got)
	}
}

func TestFireWithoutConfiguredHookIsNoop(t *testing.T) {
	runner := hooks.NewRunner(config.Hooks{}, nil)
	runner.Fire(context.Background(), hooks.EventStarted, &queue.Item{Path: "/g"})
}

func TestFailingHookDoesNotPropagate(t *testing.T) {
	runner := hooks.NewRunner(config.Hooks{
		Started:        []string{"/nonexistent/hook"},
		TimeoutSeconds: 1,
	}, nil)
	runner.Fire(context.Background(), hooks.EventStarted, &queue.Item{Path: "/g"})
	// Nothing to assert beyond "no panic, no error surfaced"; give the
	// goroutine a moment to run.
	time.Sleep(50 * time.Millisecond)
}
