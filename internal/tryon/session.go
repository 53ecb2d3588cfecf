package tryon

import (
	"context"
	"sync"

	"tryon/internal/domain"
)

// Session is the live poll of one job. It owns the poll goroutine and its
// timer; Cancel stops both and may be called any number of times.
type Session struct {
	handle domain.JobHandle
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// openSession starts polling handle and feeds every result to deliver from a
// single goroutine, in order. deliver returns false to stop early.
func openSession(parent context.Context, poller *Poller, handle domain.JobHandle, deliver func(PollResult) bool) *Session {
	ctx, cancel := context.WithCancel(parent)
	s := &Session{handle: handle, cancel: cancel, done: make(chan struct{})}
	results := poller.Poll(ctx, handle)
	go func() {
		defer close(s.done)
		defer cancel()
		for result := range results {
			if ctx.Err() != nil || !deliver(result) {
				return
			}
		}
	}()
	return s
}

// JobID returns the id of the polled job.
func (s *Session) JobID() string {
	return s.handle.ID
}

// Cancel stops polling. It does not wait for an in-flight status call; any
// result it produces is dropped.
func (s *Session) Cancel() {
	s.once.Do(s.cancel)
}

// Done is closed once the poll goroutine has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}
