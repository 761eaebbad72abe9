// Package livecache mirrors one aggregate collection in memory.
//
// A Cache is kept current two ways: batch fetch by id, and a push
// subscription whose every delivery replaces the whole cached collection.
// Writers may update the cache optimistically after a successful store write;
// the next push always wins, which reconciles any divergence.
//
// Consumers read through Snapshot or Watch. Push deliveries arrive on the
// cache's own goroutine and are only ever published through the watcher
// channels, never by mutating shared state from two goroutines.
package livecache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mmynk/larder/internal/apperrors"
	"github.com/mmynk/larder/internal/metrics"
	"github.com/mmynk/larder/internal/models"
	"github.com/mmynk/larder/internal/storage"
)

// ErrStopped is returned by Subscribe after Stop.
var ErrStopped = errors.New("live cache stopped")

// KeyFunc returns the document id of an item.
type KeyFunc[T any] func(T) string

// Cache is the in-process mirror of one aggregate collection.
type Cache[T any] struct {
	name   string
	store  storage.Store
	keyOf  KeyFunc[T]
	logger *slog.Logger

	// subMu serializes Subscribe, Unsubscribe and Stop so at most one store
	// subscription is ever open.
	subMu sync.Mutex

	mu       sync.RWMutex
	items    []T
	err      error
	sub      storage.Subscription
	subDone  chan struct{}
	watchers map[int]chan []T
	nextID   int
	stopped  bool
}

// New creates a cache named name (used in logs and metrics) over store.
func New[T any](name string, store storage.Store, keyOf KeyFunc[T], logger *slog.Logger) *Cache[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache[T]{
		name:     name,
		store:    store,
		keyOf:    keyOf,
		logger:   logger.With("cache", name),
		watchers: make(map[int]chan []T),
	}
}

// FetchByIDs reads the documents with the given ids from collection.
// Ids beyond the store's batch cap are fetched in concurrent chunks.
// Missing and malformed documents are omitted; results follow ids order.
func (c *Cache[T]) FetchByIDs(ctx context.Context, collection string, ids []string) ([]T, error) {
	if len(ids) == 0 {
		return []T{}, nil
	}

	max := c.store.MaxBatchSize()
	chunks := chunk(ids, max)
	results := make([][]storage.Document, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	for i, ch := range chunks {
		g.Go(func() error {
			docs, err := c.store.GetBatch(gctx, collection, ch)
			if err != nil {
				return err
			}
			results[i] = docs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.setErr(err)
		return nil, fmt.Errorf("fetch %s by ids: %w", c.name, err)
	}

	byID := make(map[string]T, len(ids))
	for _, docs := range results {
		for _, item := range c.decodeAll(docs) {
			byID[c.keyOf(item)] = item
		}
	}

	out := make([]T, 0, len(byID))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if item, ok := byID[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, item)
		}
	}
	return out, nil
}

// Load fetches ids and replaces the cached collection with the result.
func (c *Cache[T]) Load(ctx context.Context, collection string, ids []string) ([]T, error) {
	items, err := c.FetchByIDs(ctx, collection, ids)
	if err != nil {
		return nil, err
	}
	c.replace(items)
	return items, nil
}

// Subscribe registers a push listener on collection. An existing
// subscription is closed first. Every push replaces the cached collection.
func (c *Cache[T]) Subscribe(ctx context.Context, collection string, filter storage.Filter) error {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.unsubscribeLocked()

	c.mu.Lock()
	stopped := c.stopped
	c.mu.Unlock()
	if stopped {
		return ErrStopped
	}

	sub, err := c.store.Subscribe(ctx, collection, filter)
	if err != nil {
		c.setErr(err)
		c.replace(nil)
		return fmt.Errorf("subscribe %s: %w", c.name, err)
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.sub = sub
	c.subDone = done
	c.mu.Unlock()

	go c.listen(sub, done)
	c.logger.Debug("Subscribed", "collection", collection, "filter", filter.Field)
	return nil
}

func (c *Cache[T]) listen(sub storage.Subscription, done chan struct{}) {
	defer close(done)
	for docs := range sub.C() {
		metrics.CachePushes.WithLabelValues(c.name).Inc()
		c.replace(c.decodeAll(docs))
		c.setErr(nil)
	}
}

// Unsubscribe closes the active subscription. It is a no-op when there is
// none. The cached collection is kept until the next Subscribe or Load.
func (c *Cache[T]) Unsubscribe() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.unsubscribeLocked()
}

func (c *Cache[T]) unsubscribeLocked() {
	c.mu.Lock()
	sub, done := c.sub, c.subDone
	c.sub, c.subDone = nil, nil
	c.mu.Unlock()

	if sub == nil {
		return
	}
	sub.Close()
	<-done
}

// Stop unsubscribes and closes every watcher channel. A stopped cache can
// no longer subscribe.
func (c *Cache[T]) Stop() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.unsubscribeLocked()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	for id, ch := range c.watchers {
		close(ch)
		delete(c.watchers, id)
	}
}

// Clear empties the cache, e.g. when its household is deselected.
func (c *Cache[T]) Clear() {
	c.replace(nil)
}

// Put inserts or replaces item ahead of the next push.
func (c *Cache[T]) Put(item T) {
	key := c.keyOf(item)
	c.mu.Lock()
	next := make([]T, 0, len(c.items)+1)
	found := false
	for _, it := range c.items {
		if c.keyOf(it) == key {
			next = append(next, item)
			found = true
			continue
		}
		next = append(next, it)
	}
	if !found {
		next = append(next, item)
	}
	c.items = next
	c.publishLocked()
	c.mu.Unlock()
}

// Remove drops the item with id ahead of the next push.
func (c *Cache[T]) Remove(id string) {
	c.mu.Lock()
	next := make([]T, 0, len(c.items))
	for _, it := range c.items {
		if c.keyOf(it) != id {
			next = append(next, it)
		}
	}
	c.items = next
	c.publishLocked()
	c.mu.Unlock()
}

// Snapshot returns a copy of the cached collection.
func (c *Cache[T]) Snapshot() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

// Get returns the cached item with id.
func (c *Cache[T]) Get(id string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, it := range c.items {
		if c.keyOf(it) == id {
			return it, true
		}
	}
	var zero T
	return zero, false
}

// Err returns the last read or subscribe failure. It is cleared by the next
// successful push.
func (c *Cache[T]) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Watch returns a channel that receives the current collection and every
// later replacement. Slow readers only see the latest value. The returned
// cancel func releases the channel.
func (c *Cache[T]) Watch() (<-chan []T, func()) {
	ch := make(chan []T, 1)

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := c.nextID
	c.nextID++
	c.watchers[id] = ch
	ch <- c.copyLocked()
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if _, ok := c.watchers[id]; ok {
				delete(c.watchers, id)
				close(ch)
			}
		})
	}
}

func (c *Cache[T]) replace(items []T) {
	c.mu.Lock()
	c.items = items
	c.publishLocked()
	c.mu.Unlock()
}

func (c *Cache[T]) publishLocked() {
	for _, ch := range c.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- c.copyLocked()
	}
}

func (c *Cache[T]) copyLocked() []T {
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Cache[T]) setErr(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	if err != nil {
		c.logger.Warn("Cache degraded", "error", err)
	}
}

// decodeAll hydrates documents, dropping any that fail validation.
func (c *Cache[T]) decodeAll(docs []storage.Document) []T {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var item T
		err := storage.Decode(doc.Fields, &item)
		if err == nil {
			if verr := models.Validate(&item); verr != nil {
				err = apperrors.Validation("%v", verr)
			}
		}
		if err != nil {
			metrics.CacheDroppedDocuments.WithLabelValues(c.name).Inc()
			c.logger.Warn("Dropping malformed document", "id", doc.ID, "error", err)
			continue
		}
		out = append(out, item)
	}
	return out
}

func chunk(ids []string, size int) [][]string {
	if size <= 0 {
		size = len(ids)
	}
	var out [][]string
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		out = append(out, ids[start:end])
	}
	return out
}
