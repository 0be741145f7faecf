package store

import (
	"context"
	"strings"
	"sync"

	"github.com/okian/gridduel/pkg/metrics"
)

// Subscriber buffers changes for one watcher without ever blocking the
// writer: changes pile up in a pending slice that a pump goroutine feeds
// into the consumer's channel in order.
type Subscriber struct {
	prefix string
	out    chan Change
	signal chan struct{}
	done   chan struct{}
	once   sync.Once

	mu      sync.Mutex
	pending []Change
}

// NewSubscriber starts a pump for prefix that stops when ctx ends or Stop is called.
func NewSubscriber(ctx context.Context, prefix string) *Subscriber {
	s := &Subscriber{
		prefix: prefix,
		out:    make(chan Change),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	metrics.UpdateStoreWatchers(1)
	go s.pump(ctx)
	return s
}

// C is the consumer side.
func (s *Subscriber) C() <-chan Change { return s.out }

// Matches reports whether key is under the subscriber's prefix.
func (s *Subscriber) Matches(key string) bool { return strings.HasPrefix(key, s.prefix) }

// Done is closed once the subscriber stopped.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// Offer queues c if it matches the prefix.
func (s *Subscriber) Offer(c Change) {
	if !s.Matches(c.Key) {
		return
	}
	s.mu.Lock()
	s.pending = append(s.pending, c)
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// Stop ends the pump; the consumer channel is closed shortly after.
func (s *Subscriber) Stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *Subscriber) pump(ctx context.Context) {
	defer func() {
		metrics.UpdateStoreWatchers(-1)
		close(s.out)
	}()
	for {
		select {
		case <-ctx.Done():
			s.Stop()
			return
		case <-s.done:
			return
		case <-s.signal:
		}

		s.mu.Lock()
		batch := s.pending
		s.pending = nil
		s.mu.Unlock()

		for _, c := range batch {
			select {
			case s.out <- c:
			case <-ctx.Done():
				s.Stop()
				return
			case <-s.done:
				return
			}
		}
	}
}
