package repository

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mmynk/larder/internal/livecache"
	"github.com/mmynk/larder/internal/models"
	"github.com/mmynk/larder/internal/storage"
)

// FoodItems is the FoodItem aggregate facade. Items live in the foodItems
// sub-collection of exactly one household.
type FoodItems struct {
	store  storage.Store
	cache  *livecache.Cache[models.FoodItem]
	logger *slog.Logger

	mu          sync.Mutex
	householdID string
}

// NewFoodItems creates the food item facade.
func NewFoodItems(store storage.Store, logger *slog.Logger) *FoodItems {
	if logger == nil {
		logger = slog.Default()
	}
	return &FoodItems{
		store:  store,
		cache:  livecache.New("foodItems", store, func(f models.FoodItem) string { return f.UID }, logger),
		logger: logger,
	}
}

// Cache exposes the observable cache of the watched household's items.
func (r *FoodItems) Cache() *livecache.Cache[models.FoodItem] { return r.cache }

// HouseholdID returns the household the cache currently mirrors.
func (r *FoodItems) HouseholdID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.householdID
}

// Watch re-points the cache at householdID's items. An empty id
// unsubscribes and clears the cache.
func (r *FoodItems) Watch(ctx context.Context, householdID string) error {
	r.mu.Lock()
	r.householdID = householdID
	r.mu.Unlock()

	if householdID == "" {
		r.cache.Unsubscribe()
		r.cache.Clear()
		return nil
	}
	return r.cache.Subscribe(ctx, storage.FoodItems(householdID), storage.Filter{})
}

// Stop releases the cache subscription.
func (r *FoodItems) Stop() { r.cache.Stop() }

// List reads every item of a household.
func (r *FoodItems) List(ctx context.Context, householdID string) ([]models.FoodItem, error) {
	docs, err := r.store.List(ctx, storage.FoodItems(householdID), storage.Filter{})
	if err != nil {
		return nil, err
	}
	items := make([]models.FoodItem, 0, len(docs))
	for _, d := range docs {
		var item models.FoodItem
		if err := storage.Decode(d.Fields, &item); err != nil {
			r.logger.Warn("Skipping malformed food item", "household_id", householdID, "item_id", d.ID, "error", err)
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// Get reads one item.
func (r *FoodItems) Get(ctx context.Context, householdID, id string) (*models.FoodItem, error) {
	return get[models.FoodItem](ctx, r.store, storage.FoodItems(householdID), id)
}

// Add writes a new item into a household.
func (r *FoodItems) Add(ctx context.Context, householdID string, item *models.FoodItem) error {
	if err := models.Validate(item); err != nil {
		return fmt.Errorf("invalid food item: %w", err)
	}
	if err := put(ctx, r.store, storage.FoodItems(householdID), item.UID, item); err != nil {
		return err
	}
	r.optimisticPut(householdID, *item)
	return nil
}

// UpdateQuantity sets the remaining amount of an item.
func (r *FoodItems) UpdateQuantity(ctx context.Context, householdID, id string, amount float64) error {
	err := r.store.UpdateFields(ctx, storage.FoodItems(householdID), id,
		map[string]any{"foodFacts.quantity.amount": amount})
	if err != nil {
		return err
	}
	if item, ok := r.cache.Get(id); ok && r.HouseholdID() == householdID {
		item.FoodFacts.Quantity.Amount = amount
		r.cache.Put(item)
	}
	return nil
}

// Delete removes an item. Deleting twice is not an error.
func (r *FoodItems) Delete(ctx context.Context, householdID, id string) error {
	if err := r.store.Delete(ctx, storage.FoodItems(householdID), id); err != nil {
		return err
	}
	if r.HouseholdID() == householdID {
		r.cache.Remove(id)
	}
	return nil
}

// DeleteAll removes every item of a household and returns how many were
// deleted.
func (r *FoodItems) DeleteAll(ctx context.Context, householdID string) (int, error) {
	docs, err := r.store.List(ctx, storage.FoodItems(householdID), storage.Filter{})
	if err != nil {
		return 0, err
	}
	for i, d := range docs {
		if err := r.Delete(ctx, householdID, d.ID); err != nil {
			return i, err
		}
	}
	return len(docs), nil
}

func (r *FoodItems) optimisticPut(householdID string, item models.FoodItem) {
	if r.HouseholdID() == householdID {
		r.cache.Put(item)
	}
}
