package service

import (
	"context"
	"sync"

	"tutor/internal/domain"
)

// Reply is the outcome of one turn.
type Reply struct {
	Content            string
	References         []domain.Reference
	ObjectiveCompleted bool
	// Failed is set when generation failed; Content then holds the error text.
	Failed bool
	Err    error
}

// Stream is a cancellable producer of partial response text for one turn.
// Partials carries the accumulated displayable text, so a slow reader that
// misses intermediate values still sees a monotonic sequence.
type Stream struct {
	partials chan string
	done     chan struct{}
	cancel   context.CancelFunc

	mu        sync.Mutex
	reply     *Reply
	err       error
	attachErr error
	last      string
}

func newStream(cancel context.CancelFunc) *Stream {
	return &Stream{
		partials: make(chan string, 1),
		done:     make(chan struct{}),
		cancel:   cancel,
	}
}

// Partials is closed when the turn finishes.
func (s *Stream) Partials() <-chan string { return s.partials }

// Done is closed when the turn finishes.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Wait blocks until the turn finishes. A cancelled turn returns context.Canceled.
func (s *Stream) Wait() (*Reply, error) {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reply, s.err
}

// Cancel abandons the turn. Nothing is appended to the conversation.
func (s *Stream) Cancel() { s.cancel() }

// AttachmentErr reports a failed image upload. The turn still runs text-only.
func (s *Stream) AttachmentErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attachErr
}

// emit publishes text without ever blocking the producer: a pending value
// the reader has not taken yet is replaced by the newer one.
func (s *Stream) emit(text string) {
	s.mu.Lock()
	if text == s.last {
		s.mu.Unlock()
		return
	}
	s.last = text
	s.mu.Unlock()
	for {
		select {
		case s.partials <- text:
			return
		default:
		}
		select {
		case <-s.partials:
		default:
		}
	}
}

func (s *Stream) finish(reply *Reply, err error) {
	s.mu.Lock()
	s.reply, s.err = reply, err
	s.mu.Unlock()
	close(s.partials)
	close(s.done)
	s.cancel()
}
