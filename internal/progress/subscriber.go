package progress

import (
	"context"
	"errors"
	"sync"
)

// ErrSubscriberClosed is returned by Next after Unsubscribe.
var ErrSubscriberClosed = errors.New("subscriber closed")

// Subscriber is an unbounded FIFO of serialized events. push never blocks;
// Next blocks until an event arrives, the context ends, or the subscriber is
// closed.
type Subscriber struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  [][]byte
	closed bool
}

func newSubscriber() *Subscriber {
	s := &Subscriber{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *Subscriber) push(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.queue = append(s.queue, data)
	s.cond.Signal()
}

func (s *Subscriber) close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Next returns the oldest queued payload, blocking until one is available.
func (s *Subscriber) Next(ctx context.Context) ([]byte, error) {
	cancelWait := make(chan struct{})
	if ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				// Broadcast under the mutex: the waiter is then either
				// before its ctx.Err() check or parked in Wait, so the
				// wakeup cannot fall into the gap between the two.
				s.mu.Lock()
				s.cond.Broadcast()
				s.mu.Unlock()
			case <-cancelWait:
			}
		}()
	}
	defer close(cancelWait)

	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if len(s.queue) > 0 {
			data := s.queue[0]
			s.queue = s.queue[1:]
			return data, nil
		}
		if s.closed {
			return nil, ErrSubscriberClosed
		}
		if ctx != nil {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		s.cond.Wait()
	}
}

// Pending reports the number of queued payloads without consuming them.
func (s *Subscriber) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
