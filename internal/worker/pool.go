package worker

import (
	"context"
	"sync"

	"picdrop/internal/logging"
)

// Pool runs a fixed set of workers against shared collaborators and tracks
// queue-drain notifications across them.
type Pool struct {
	deps    Deps
	workers []*Worker

	drainMu   sync.Mutex
	completed int
	failed    int
}

// NewPool constructs size workers sharing deps. Size is clamped to one.
func NewPool(size int, deps Deps) *Pool {
	if size < 1 {
		size = 1
	}
	pool := &Pool{deps: deps}
	deps.onOutcome = pool.recordOutcome
	deps.onQueueEmpty = pool.maybeNotifyDrained

	for i := 0; i < size; i++ {
		pool.workers = append(pool.workers, New(i+1, deps))
	}
	return pool
}

// Start launches every worker.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		w.Start(ctx)
	}
}

// Stop shuts every worker down and blocks until all loops have exited.
func (p *Pool) Stop() {
	var wg sync.WaitGroup
	for _, w := range p.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Stop()
		}()
	}
	wg.Wait()
}

// Pause idles every worker after its current item.
func (p *Pool) Pause() {
	for _, w := range p.workers {
		w.Pause()
	}
}

// Resume lifts a pool-wide pause.
func (p *Pool) Resume() {
	for _, w := range p.workers {
		w.Resume()
	}
}

// StopCurrent raises the soft-stop flag on the worker uploading the given
// path; an empty path targets every worker.
func (p *Pool) StopCurrent(path string) {
	for _, w := range p.workers {
		if path == "" {
			w.StopCurrent()
			continue
		}
		if current := w.Current(); current != nil && current.Path == path {
			w.StopCurrent()
		}
	}
}

// ActivePaths lists the folders currently being uploaded across the pool.
func (p *Pool) ActivePaths() []string {
	var paths []string
	for _, w := range p.workers {
		if current := w.Current(); current != nil {
			paths = append(paths, current.Path)
		}
	}
	return paths
}

func (p *Pool) recordOutcome(success bool) {
	p.drainMu.Lock()
	defer p.drainMu.Unlock()
	if success {
		p.completed++
	} else {
		p.failed++
	}
}

// maybeNotifyDrained fires the queue-drained notification once per batch:
// when a worker finds the queue empty, no sibling is mid-upload, and at
// least one item finished since the last drain.
func (p *Pool) maybeNotifyDrained(ctx context.Context) {
	busy := 0
	for _, w := range p.workers {
		if w.Current() != nil {
			busy++
		}
	}

	p.drainMu.Lock()
	if busy > 0 || p.completed+p.failed == 0 {
		p.drainMu.Unlock()
		return
	}
	completed, failed := p.completed, p.failed
	p.completed, p.failed = 0, 0
	p.drainMu.Unlock()

	if p.deps.Notifier == nil {
		return
	}
	if err := p.deps.Notifier.NotifyQueueDrained(ctx, completed, failed); err != nil && p.deps.Logger != nil {
		p.deps.Logger.Debug("queue drained notification failed", logging.Error(err))
	}
}
