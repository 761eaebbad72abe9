// Package allocator runs recipe sessions: choosing servings, staging which
// inventory items cover each ingredient, then committing the consumption.
//
// Staging never writes. A session keeps an overlay of per-item consumption
// that Commit applies to the store in one pass; Reset and abandoning the
// session both discard it.
package allocator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/larder/internal/apperrors"
	"github.com/mmynk/larder/internal/identity"
	"github.com/mmynk/larder/internal/ledger"
	"github.com/mmynk/larder/internal/models"
	"github.com/mmynk/larder/internal/repository"
)

// Allocator owns the active recipe sessions.
type Allocator struct {
	households *repository.Households
	foodItems  *repository.FoodItems
	ledger     *ledger.Ledger
	identity   identity.Provider
	logger     *slog.Logger
	now        func() time.Time

	// partialStock lets an ingredient pass with all matching stock staged
	// when the household holds less than required.
	partialStock bool

	mu       sync.Mutex
	sessions map[string]*Session
	lastUsed map[string]time.Time
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithClock overrides time.Now for session idle tracking.
func WithClock(now func() time.Time) Option {
	return func(a *Allocator) { a.now = now }
}

// WithPartialStock accepts an ingredient as covered once every matching
// item is fully staged, even if that is less than the recipe needs.
func WithPartialStock() Option {
	return func(a *Allocator) { a.partialStock = true }
}

// New creates an Allocator.
func New(households *repository.Households, foodItems *repository.FoodItems, l *ledger.Ledger, id identity.Provider, logger *slog.Logger, opts ...Option) *Allocator {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Allocator{
		households: households,
		foodItems:  foodItems,
		ledger:     l,
		identity:   id,
		logger:     logger,
		now:        time.Now,
		sessions:   make(map[string]*Session),
		lastUsed:   make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start opens a session cooking recipe from householdID's inventory. The
// acting user must be a member of the household.
func (a *Allocator) Start(ctx context.Context, householdID string, recipe models.Recipe) (*Session, error) {
	uid, err := a.identity.CurrentUserID(ctx)
	if err != nil {
		return nil, err
	}
	if err := models.Validate(&recipe); err != nil {
		return nil, apperrors.Validation("invalid recipe: %v", err)
	}
	h, err := a.households.Get(ctx, householdID)
	if err != nil {
		return nil, err
	}
	if !h.IsMember(uid) {
		return nil, apperrors.Validation("user %s is not a member of household %s", uid, householdID)
	}

	items, err := a.foodItems.List(ctx, householdID)
	if err != nil {
		return nil, err
	}
	inventory := make(map[string]models.FoodItem, len(items))
	for _, it := range items {
		inventory[it.UID] = it
	}

	s := &Session{
		ID:          uuid.New().String(),
		HouseholdID: householdID,
		UserID:      uid,
		Recipe:      recipe,
		a:           a,
		state:       State{Step: SelectServings},
		servings:    recipe.BaseServings,
		inventory:   inventory,
		staged:      make(map[int]map[string]float64),
		applied:     make(map[string]bool),
	}
	s.logger = a.logger.With("session_id", s.ID, "household_id", householdID, "recipe", recipe.Name)

	a.mu.Lock()
	a.sessions[s.ID] = s
	a.lastUsed[s.ID] = a.now()
	a.mu.Unlock()

	s.logger.Info("Session started", "user_id", uid, "items", len(items))
	return s, nil
}

// Session returns the open session with id and marks it as used.
func (a *Allocator) Session(id string) (*Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.sessions[id]
	if !ok {
		return nil, apperrors.NotFound("sessions", id)
	}
	a.lastUsed[id] = a.now()
	return s, nil
}

// End forgets a session. Uncommitted selections are dropped, which is the
// rollback of an abandoned session.
func (a *Allocator) End(id string) {
	a.mu.Lock()
	delete(a.sessions, id)
	delete(a.lastUsed, id)
	a.mu.Unlock()
}

// Len returns the number of open sessions.
func (a *Allocator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}

// ExpireIdle ends every session not used for maxIdle and returns how many
// were ended.
func (a *Allocator) ExpireIdle(maxIdle time.Duration) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	cutoff := a.now().Add(-maxIdle)
	n := 0
	for id, used := range a.lastUsed {
		if used.Before(cutoff) {
			delete(a.sessions, id)
			delete(a.lastUsed, id)
			n++
		}
	}
	if n > 0 {
		a.logger.Info("Expired idle sessions", "count", n, "max_idle", maxIdle)
	}
	return n
}

// ExpireEvery runs ExpireIdle every interval until ctx is done.
func (a *Allocator) ExpireEvery(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.ExpireIdle(maxIdle)
		}
	}
}
