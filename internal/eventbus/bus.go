package eventbus

import (
	"sync"
	"time"
)

// Event travels the in-process bus. Data carries a small component-defined
// payload; Publish stamps Time when the caller leaves it zero.
type Event struct {
	Type string
	Time time.Time
	Data any
}

// Event types published by the subscription and dispatch layers.
const (
	TypeSubscriptionAdded   = "subscription.added"
	TypeSubscriptionRemoved = "subscription.removed"
	TypeDispatchSent        = "dispatch.sent"
	TypeDispatchRetryable   = "dispatch.retryable"
	TypeDispatchPruned      = "dispatch.pruned"
)

// Bus fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses that event.
type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory bus. It owns no background goroutines.
func New() Bus {
	return &fanout{}
}

type subscriber struct {
	ch     chan Event
	closed bool
}

type fanout struct {
	mu   sync.Mutex
	subs []*subscriber
}

func (f *fanout) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subs {
		if s.closed {
			continue
		}
		// Non-blocking send; sends and close are serialized by f.mu,
		// so a concurrent unsubscribe cannot panic us.
		select {
		case s.ch <- e:
		default:
		}
	}
}

func (f *fanout) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	s := &subscriber{ch: make(chan Event, buffer)}

	f.mu.Lock()
	f.subs = append(f.subs, s)
	f.mu.Unlock()

	unsub := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if s.closed {
			return
		}
		s.closed = true
		for i, cur := range f.subs {
			if cur == s {
				f.subs = append(f.subs[:i], f.subs[i+1:]...)
				break
			}
		}
		close(s.ch)
	}
	return s.ch, unsub
}
