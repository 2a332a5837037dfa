package coordinator

import (
	"context"
	"sync"
	"time"
)

// semaphore is a counting semaphore that may start in deficit: a negative
// permit count means that many releases must arrive before any acquire can
// proceed. Releases always credit +1, which is what lets holders of a
// swapped-out global semaphore return capacity to its replacement while the
// replacement's total capacity still nets out to its construction value.
type semaphore struct {
	mu      sync.Mutex
	permits int
	waitCh  chan struct{}
}

func newSemaphore(permits int) *semaphore {
	return &semaphore{permits: permits, waitCh: make(chan struct{})}
}

// tryAcquire takes a permit without blocking.
func (s *semaphore) tryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.permits > 0 {
		s.permits--
		return true
	}
	return false
}

// acquire blocks until a permit is available, the deadline passes, or ctx is
// cancelled.
func (s *semaphore) acquire(ctx context.Context, deadline time.Time) error {
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	for {
		s.mu.Lock()
		if s.permits > 0 {
			s.permits--
			s.mu.Unlock()
			return nil
		}
		wait := s.waitCh
		s.mu.Unlock()

		select {
		case <-wait:
			// A permit was released; loop and race for it.
		case <-timer.C:
			return ErrAcquireTimeout
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// release credits one permit and wakes all waiters.
func (s *semaphore) release() {
	s.mu.Lock()
	s.permits++
	close(s.waitCh)
	s.waitCh = make(chan struct{})
	s.mu.Unlock()
}

// available reports how many acquires could currently proceed. A semaphore
// in deficit reports zero.
func (s *semaphore) available() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.permits < 0 {
		return 0
	}
	return s.permits
}
