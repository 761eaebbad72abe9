// Package memory provides an in-process implementation of storage.Store.
// Writes are applied under a single lock and pushed to subscribers in write
// order, which makes it the deterministic fake store used by tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/mmynk/larder/internal/apperrors"
	"github.com/mmynk/larder/internal/storage"
)

// Ensure Store implements storage.Store
var _ storage.Store = (*Store)(nil)

var errClosed = errors.New("store closed")

// Store implements storage.Store in memory.
type Store struct {
	mu       sync.RWMutex
	colls    map[string]map[string]map[string]any
	maxBatch int
	broker   *storage.Broker

	// failures injects errors per operation name for failure-path tests.
	failures map[string]error
	closed   bool
}

// Option configures a Store.
type Option func(*Store)

// WithMaxBatchSize overrides storage.DefaultMaxBatchSize.
func WithMaxBatchSize(n int) Option {
	return func(s *Store) { s.maxBatch = n }
}

// New creates an empty in-memory store.
func New(opts ...Option) *Store {
	s := &Store{
		colls:    make(map[string]map[string]map[string]any),
		maxBatch: storage.DefaultMaxBatchSize,
		failures: make(map[string]error),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.broker = storage.NewBroker(s.List)
	return s
}

// FailOn makes every subsequent call of op ("Get", "Delete", "ArrayUnion",
// ...) on collection fail with err. A nil err clears the injection.
func (s *Store) FailOn(op, collection string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := op + " " + collection
	if err == nil {
		delete(s.failures, key)
		return
	}
	s.failures[key] = err
}

func (s *Store) injected(op, collection string) error {
	if err, ok := s.failures[op+" "+collection]; ok {
		return apperrors.RemoteIO(op, err)
	}
	if s.closed {
		return apperrors.RemoteIO(op, errClosed)
	}
	return nil
}

// Subscribers returns the number of live subscriptions on collection.
func (s *Store) Subscribers(collection string) int {
	return s.broker.Count(collection)
}

func (s *Store) MaxBatchSize() int { return s.maxBatch }

func (s *Store) Get(ctx context.Context, collection, id string) (*storage.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.injected("Get", collection); err != nil {
		return nil, err
	}
	fields, ok := s.colls[collection][id]
	if !ok {
		return nil, apperrors.NotFound(collection, id)
	}
	return &storage.Document{ID: id, Fields: storage.CloneFields(fields)}, nil
}

func (s *Store) GetBatch(ctx context.Context, collection string, ids []string) ([]storage.Document, error) {
	if err := storage.CheckBatch(ids, s.maxBatch); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.injected("GetBatch", collection); err != nil {
		return nil, err
	}
	docs := make([]storage.Document, 0, len(ids))
	for _, id := range ids {
		if fields, ok := s.colls[collection][id]; ok {
			docs = append(docs, storage.Document{ID: id, Fields: storage.CloneFields(fields)})
		}
	}
	return docs, nil
}

func (s *Store) List(ctx context.Context, collection string, filter storage.Filter) ([]storage.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.injected("List", collection); err != nil {
		return nil, err
	}
	docs := make([]storage.Document, 0, len(s.colls[collection]))
	for id, fields := range s.colls[collection] {
		if storage.Matches(fields, filter) {
			docs = append(docs, storage.Document{ID: id, Fields: storage.CloneFields(fields)})
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func (s *Store) Set(ctx context.Context, collection, id string, fields map[string]any, merge bool) error {
	return s.write("Set", collection, func() error {
		coll := s.coll(collection)
		existing, ok := coll[id]
		if !ok || !merge {
			existing = make(map[string]any)
		}
		if err := storage.ApplyUpdate(existing, fields); err != nil {
			return err
		}
		coll[id] = existing
		return nil
	})
}

func (s *Store) UpdateFields(ctx context.Context, collection, id string, fields map[string]any) error {
	return s.mutate("UpdateFields", collection, id, func(doc map[string]any) error {
		return storage.ApplyUpdate(doc, fields)
	})
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	return s.write("Delete", collection, func() error {
		delete(s.colls[collection], id)
		return nil
	})
}

func (s *Store) ArrayUnion(ctx context.Context, collection, id, field string, value any) error {
	return s.mutate("ArrayUnion", collection, id, func(doc map[string]any) error {
		return storage.ApplyArrayUnion(doc, field, value)
	})
}

func (s *Store) ArrayRemove(ctx context.Context, collection, id, field string, value any) error {
	return s.mutate("ArrayRemove", collection, id, func(doc map[string]any) error {
		return storage.ApplyArrayRemove(doc, field, value)
	})
}

func (s *Store) Increment(ctx context.Context, collection, id, field string, delta int64) error {
	return s.mutate("Increment", collection, id, func(doc map[string]any) error {
		return storage.ApplyIncrement(doc, field, delta)
	})
}

func (s *Store) Subscribe(ctx context.Context, collection string, filter storage.Filter) (storage.Subscription, error) {
	return s.broker.Subscribe(ctx, collection, filter)
}

// Close marks the store closed; later operations fail with a remote io error.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// mutate applies fn to a copy of an existing document and stores the result
// only if fn succeeds.
func (s *Store) mutate(op, collection, id string, fn func(map[string]any) error) error {
	return s.write(op, collection, func() error {
		doc, ok := s.colls[collection][id]
		if !ok {
			return apperrors.NotFound(collection, id)
		}
		next := storage.CloneFields(doc)
		if err := fn(next); err != nil {
			return err
		}
		s.colls[collection][id] = next
		return nil
	})
}

func (s *Store) write(op, collection string, fn func() error) error {
	s.mu.Lock()
	if err := s.injected(op, collection); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := fn(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	s.broker.Publish(collection)
	return nil
}

func (s *Store) coll(collection string) map[string]map[string]any {
	coll, ok := s.colls[collection]
	if !ok {
		coll = make(map[string]map[string]any)
		s.colls[collection] = coll
	}
	return coll
}
