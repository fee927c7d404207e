package store

import (
	"context"
	"sync"
)

// Subscription delivers snapshots of one collection in the order they were
// published. Publishing never blocks and nothing is dropped: snapshots queue
// until the consumer reads them.
type Subscription struct {
	Collection string

	out    chan Snapshot
	mu     sync.Mutex
	queue  []Snapshot
	wake   chan struct{}
	done   chan struct{}
	once   sync.Once
	onStop func()
}

func NewSubscription(ctx context.Context, collection string, onStop func()) *Subscription {
	s := &Subscription{
		Collection: collection,
		out:        make(chan Snapshot),
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
		onStop:     onStop,
	}
	go s.loop(ctx)
	return s
}

// C is closed once the subscription ends.
func (s *Subscription) C() <-chan Snapshot { return s.out }

func (s *Subscription) Publish(snap Snapshot) {
	s.mu.Lock()
	s.queue = append(s.queue, snap)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *Subscription) loop(ctx context.Context) {
	defer func() {
		close(s.out)
		if s.onStop != nil {
			s.onStop()
		}
	}()

	for {
		s.mu.Lock()
		var next Snapshot
		pending := len(s.queue) > 0
		if pending {
			next = s.queue[0]
		}
		s.mu.Unlock()

		if !pending {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case <-s.wake:
				continue
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case s.out <- next:
			s.mu.Lock()
			s.queue = s.queue[1:]
			s.mu.Unlock()
		}
	}
}
