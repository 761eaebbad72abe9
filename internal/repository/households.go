package repository

import (
	"context"
	"log/slog"
	"maps"

	"github.com/mmynk/larder/internal/livecache"
	"github.com/mmynk/larder/internal/models"
	"github.com/mmynk/larder/internal/storage"
)

// Households is the Household aggregate facade. Every write goes through
// union, remove or increment primitives so concurrent writers converge.
type Households struct {
	store  storage.Store
	cache  *livecache.Cache[models.Household]
	logger *slog.Logger
}

// NewHouseholds creates the household facade.
func NewHouseholds(store storage.Store, logger *slog.Logger) *Households {
	if logger == nil {
		logger = slog.Default()
	}
	return &Households{
		store:  store,
		cache:  livecache.New("households", store, func(h models.Household) string { return h.UID }, logger),
		logger: logger,
	}
}

// Cache exposes the observable household cache.
func (r *Households) Cache() *livecache.Cache[models.Household] { return r.cache }

// Watch subscribes the cache to every household uid is a member of.
func (r *Households) Watch(ctx context.Context, uid string) error {
	return r.cache.Subscribe(ctx, storage.Households,
		storage.Filter{Field: "members", Op: storage.OpArrayContains, Value: uid})
}

// LoadForUser batch-fetches the user's households into the cache.
func (r *Households) LoadForUser(ctx context.Context, user *models.User) ([]models.Household, error) {
	return r.cache.Load(ctx, storage.Households, user.HouseholdUIDs)
}

// Stop releases the cache subscription.
func (r *Households) Stop() { r.cache.Stop() }

// Get reads a household document.
func (r *Households) Get(ctx context.Context, id string) (*models.Household, error) {
	return get[models.Household](ctx, r.store, storage.Households, id)
}

// Create writes a new household document.
func (r *Households) Create(ctx context.Context, h *models.Household) error {
	if h.Members == nil {
		h.Members = []string{}
	}
	if h.SharedRecipes == nil {
		h.SharedRecipes = []string{}
	}
	if h.RatPoints == nil {
		h.RatPoints = map[string]int64{}
	}
	if h.StinkyPoints == nil {
		h.StinkyPoints = map[string]int64{}
	}
	if err := put(ctx, r.store, storage.Households, h.UID, h); err != nil {
		return err
	}
	r.cache.Put(*h)
	return nil
}

// Delete removes the household document.
func (r *Households) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, storage.Households, id); err != nil {
		return err
	}
	r.cache.Remove(id)
	return nil
}

// AddMember array-unions uid into members.
func (r *Households) AddMember(ctx context.Context, id, uid string) error {
	if err := r.store.ArrayUnion(ctx, storage.Households, id, "members", uid); err != nil {
		return err
	}
	r.optimistic(id, func(h *models.Household) { h.Members = addID(h.Members, uid) })
	return nil
}

// RemoveMember array-removes uid from members.
func (r *Households) RemoveMember(ctx context.Context, id, uid string) error {
	if err := r.store.ArrayRemove(ctx, storage.Households, id, "members", uid); err != nil {
		return err
	}
	r.optimistic(id, func(h *models.Household) { h.Members = removeID(h.Members, uid) })
	return nil
}

// AddSharedRecipe array-unions recipeID into sharedRecipes.
func (r *Households) AddSharedRecipe(ctx context.Context, id, recipeID string) error {
	if err := r.store.ArrayUnion(ctx, storage.Households, id, "sharedRecipes", recipeID); err != nil {
		return err
	}
	r.optimistic(id, func(h *models.Household) { h.SharedRecipes = addID(h.SharedRecipes, recipeID) })
	return nil
}

// IncrementRatPoints adds delta to ratPoints[uid].
func (r *Households) IncrementRatPoints(ctx context.Context, id, uid string, delta int64) error {
	return r.increment(ctx, id, "ratPoints", uid, delta)
}

// IncrementStinkyPoints adds delta to stinkyPoints[uid].
func (r *Households) IncrementStinkyPoints(ctx context.Context, id, uid string, delta int64) error {
	return r.increment(ctx, id, "stinkyPoints", uid, delta)
}

func (r *Households) increment(ctx context.Context, id, field, uid string, delta int64) error {
	if err := r.store.Increment(ctx, storage.Households, id, field+"."+uid, delta); err != nil {
		return err
	}
	r.optimistic(id, func(h *models.Household) {
		points := &h.RatPoints
		if field == "stinkyPoints" {
			points = &h.StinkyPoints
		}
		next := maps.Clone(*points)
		if next == nil {
			next = make(map[string]int64)
		}
		next[uid] += delta
		*points = next
	})
	return nil
}

func (r *Households) optimistic(id string, fn func(*models.Household)) {
	h, ok := r.cache.Get(id)
	if !ok {
		return
	}
	fn(&h)
	r.cache.Put(h)
}
