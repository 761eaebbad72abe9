package storage

import (
	"context"
	"log/slog"
	"sync"
)

// Lister returns the current filtered contents of a collection.
type Lister func(ctx context.Context, collection string, filter Filter) ([]Document, error)

// Broker fans collection snapshots out to subscribers. Each subscriber
// channel holds at most one pending snapshot; a newer snapshot replaces an
// unread older one, so readers always see the latest state.
type Broker struct {
	mu   sync.Mutex
	list Lister
	subs map[string]map[*brokerSub]struct{}
}

// NewBroker creates a broker that reads snapshots through list.
func NewBroker(list Lister) *Broker {
	return &Broker{
		list: list,
		subs: make(map[string]map[*brokerSub]struct{}),
	}
}

type brokerSub struct {
	b          *Broker
	collection string
	filter     Filter
	ch         chan []Document
	once       sync.Once

	// delivered is set once Publish has sent a snapshot; guarded by b.mu.
	delivered bool
}

func (s *brokerSub) C() <-chan []Document { return s.ch }

// Close unregisters the subscription and closes its channel. It is safe to
// call more than once.
func (s *brokerSub) Close() error {
	s.once.Do(func() {
		s.b.mu.Lock()
		defer s.b.mu.Unlock()
		if set, ok := s.b.subs[s.collection]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(s.b.subs, s.collection)
			}
		}
		close(s.ch)
	})
	return nil
}

// Subscribe registers a subscriber and delivers the initial snapshot. The
// subscription is closed when ctx is done.
//
// The subscriber is registered before the initial read, so a write that
// lands during the read is still published to it. The initial snapshot is
// only sent if no such publish reached the subscriber first.
func (b *Broker) Subscribe(ctx context.Context, collection string, filter Filter) (Subscription, error) {
	s := &brokerSub{
		b:          b,
		collection: collection,
		filter:     filter,
		ch:         make(chan []Document, 1),
	}

	b.mu.Lock()
	set, ok := b.subs[collection]
	if !ok {
		set = make(map[*brokerSub]struct{})
		b.subs[collection] = set
	}
	set[s] = struct{}{}
	b.mu.Unlock()

	docs, err := b.list(ctx, collection, filter)
	if err != nil {
		s.Close()
		return nil, err
	}

	b.mu.Lock()
	if !s.delivered {
		s.ch <- docs
	}
	b.mu.Unlock()

	context.AfterFunc(ctx, func() { s.Close() })
	return s, nil
}

// Publish pushes a fresh snapshot of collection to every subscriber.
func (b *Broker) Publish(collection string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for s := range b.subs[collection] {
		docs, err := b.list(context.Background(), collection, s.filter)
		if err != nil {
			slog.Warn("Snapshot for subscriber failed", "collection", collection, "error", err)
			continue
		}
		select {
		case <-s.ch:
		default:
		}
		s.ch <- docs
		s.delivered = true
	}
}

// Count returns the number of live subscriptions on collection.
func (b *Broker) Count(collection string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[collection])
}
