package allocator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/mmynk/larder/internal/apperrors"
	"github.com/mmynk/larder/internal/calculator"
	"github.com/mmynk/larder/internal/ledger"
	"github.com/mmynk/larder/internal/metrics"
	"github.com/mmynk/larder/internal/models"
)

// Candidate is an inventory item usable for an ingredient together with how
// much of it is already staged for that ingredient and for others.
type Candidate struct {
	Item        models.FoodItem
	Staged      float64
	StagedOther float64
}

// Available is the amount not yet staged anywhere.
func (c Candidate) Available() float64 {
	return c.Item.FoodFacts.Quantity.Amount - c.Staged - c.StagedOther
}

// Session is one recipe execution. Selections are staged in an in-memory
// overlay and written to the store only by Commit; discarding the overlay
// is the rollback.
type Session struct {
	ID          string
	HouseholdID string
	UserID      string
	Recipe      models.Recipe

	a      *Allocator
	logger *slog.Logger

	mu        sync.Mutex
	state     State
	servings  int
	inventory map[string]models.FoodItem

	// staged maps ingredient index → item id → amount.
	staged map[int]map[string]float64

	// applied and credited make a retried Commit skip finished writes.
	applied  map[string]bool
	credited bool
}

// State returns the current phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Servings returns the selected number of servings.
func (s *Session) Servings() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.servings
}

// SetServings chooses how many servings to cook. Only allowed while
// selecting servings.
func (s *Session) SetServings(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Step != SelectServings {
		return apperrors.Precondition("servings can only change while selecting servings, session is %s", s.state)
	}
	if n <= 0 {
		return apperrors.Validation("servings must be positive, got %d", n)
	}
	s.servings = n
	return nil
}

// RequiredAmount returns how much of ingredient i the chosen servings need.
func (s *Session) RequiredAmount(i int) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requiredLocked(i)
}

func (s *Session) requiredLocked(i int) (float64, error) {
	if i < 0 || i >= len(s.Recipe.Ingredients) {
		return 0, apperrors.Validation("ingredient index %d out of range", i)
	}
	return calculator.RequiredAmount(s.Recipe.Ingredients[i], s.servings, s.Recipe.BaseServings)
}

// Candidates returns the inventory items matching ingredient i, soonest
// expiry first.
func (s *Session) Candidates(i int) ([]Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.Recipe.Ingredients) {
		return nil, apperrors.Validation("ingredient index %d out of range", i)
	}
	return s.candidatesLocked(i), nil
}

func (s *Session) candidatesLocked(i int) []Candidate {
	items := calculator.Candidates(s.inventoryLocked(), s.Recipe.Ingredients[i].Name)
	out := make([]Candidate, 0, len(items))
	for _, it := range items {
		c := Candidate{Item: it}
		for ing, sel := range s.staged {
			if ing == i {
				c.Staged += sel[it.UID]
			} else {
				c.StagedOther += sel[it.UID]
			}
		}
		out = append(out, c)
	}
	return out
}

func (s *Session) inventoryLocked() []models.FoodItem {
	items := make([]models.FoodItem, 0, len(s.inventory))
	for _, it := range s.inventory {
		items = append(items, it)
	}
	return items
}

// SelectFoodItemForIngredient stages amount of item for the named
// ingredient, replacing any earlier amount for that pair. A zero amount
// removes the selection. Nothing is written to the store.
//
// The overlay is never clamped: staging more of an item than it holds,
// across all ingredients, is rejected.
func (s *Session) SelectFoodItemForIngredient(ingredientName, itemID string, amount float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Step == Committed {
		return apperrors.Precondition("session already committed")
	}
	idx := s.ingredientIndex(ingredientName)
	if idx < 0 {
		return apperrors.Validation("recipe %q has no ingredient %q", s.Recipe.Name, ingredientName)
	}
	item, ok := s.inventory[itemID]
	if !ok {
		return apperrors.NotFound("foodItems", itemID)
	}
	if !calculator.MatchesIngredient(item, ingredientName) {
		return apperrors.Validation("item %s (%s) does not match ingredient %q",
			itemID, item.FoodFacts.Name, ingredientName)
	}
	if amount < 0 {
		return apperrors.Validation("amount must not be negative, got %v", amount)
	}

	var other float64
	for ing, sel := range s.staged {
		if ing != idx {
			other += sel[itemID]
		}
	}
	if other+amount > item.FoodFacts.Quantity.Amount+calculator.Epsilon {
		return apperrors.Precondition("item %s holds %v, cannot stage %v (already %v elsewhere)",
			itemID, item.FoodFacts.Quantity.Amount, amount, other)
	}

	sel, ok := s.staged[idx]
	if !ok {
		sel = make(map[string]float64)
		s.staged[idx] = sel
	}
	if amount == 0 {
		delete(sel, itemID)
	} else {
		sel[itemID] = amount
	}
	s.logger.Debug("Staged food item", "ingredient", ingredientName, "item_id", itemID, "amount", amount)
	return nil
}

func (s *Session) ingredientIndex(name string) int {
	for i, ing := range s.Recipe.Ingredients {
		if calculator.MatchesIngredient(models.FoodItem{FoodFacts: models.FoodFacts{Name: ing.Name}}, name) {
			return i
		}
	}
	return -1
}

// StagedAmount returns the total staged for ingredient i.
func (s *Session) StagedAmount(i int) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stagedLocked(i)
}

func (s *Session) stagedLocked(i int) float64 {
	var total float64
	for _, amt := range s.staged[i] {
		total += amt
	}
	return total
}

// Overlay returns the staged consumption per item across all ingredients.
func (s *Session) Overlay() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overlayLocked()
}

func (s *Session) overlayLocked() map[string]float64 {
	out := make(map[string]float64)
	for _, sel := range s.staged {
		for id, amt := range sel {
			out[id] += amt
		}
	}
	return out
}

// checkCoveredLocked fails unless ingredient i is staged up to its required
// amount. With partial stock allowed, staging all matching stock also
// passes when the household has less than required.
func (s *Session) checkCoveredLocked(i int) error {
	required, err := s.requiredLocked(i)
	if err != nil {
		return err
	}
	staged := s.stagedLocked(i)
	available := required
	if s.a.partialStock {
		available = calculator.Stock(calculator.Candidates(s.inventoryLocked(), s.Recipe.Ingredients[i].Name))
	}
	if !calculator.Covered(staged, required, available) {
		return apperrors.Precondition("ingredient %q needs %v, only %v staged",
			s.Recipe.Ingredients[i].Name, required, staged)
	}
	return nil
}

// Next advances the session. Leaving an ingredient step requires the
// ingredient to be covered. The overlay is kept.
func (s *Session) Next() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Step == SelectServings && s.servings <= 0 {
		return s.state, apperrors.Precondition("select servings first")
	}
	if s.state.Step == SelectFoodForIngredient {
		if err := s.checkCoveredLocked(s.state.Index); err != nil {
			return s.state, err
		}
	}
	next, err := s.state.Next(len(s.Recipe.Ingredients), len(s.Recipe.Instructions))
	if err != nil {
		return s.state, err
	}
	s.state = next
	return next, nil
}

// Back moves to the previous step. The overlay is kept.
func (s *Session) Back() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, err := s.state.Back(len(s.Recipe.Ingredients))
	if err != nil {
		return s.state, err
	}
	s.state = prev
	return prev, nil
}

// Reset discards the overlay and returns to SelectServings. No store
// writes occur.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Step == Committed {
		return apperrors.Precondition("session already committed")
	}
	s.staged = make(map[int]map[string]float64)
	s.state = State{Step: SelectServings}
	s.logger.Info("Session reset")
	return nil
}

// Result summarizes a commit.
type Result struct {
	Updated   map[string]float64
	Deleted   []string
	RatPoints int64
}

// Commit writes the overlay: every staged item is reduced by its staged
// amount, or deleted once nothing is left, and the acting user is credited
// rat points for foreign-owned items. Amounts are checked against fresh
// reads before anything is written. A failed commit may be retried; writes
// that already succeeded are skipped.
func (s *Session) Commit(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Step != ReviewInstructions {
		return nil, apperrors.Precondition("commit requires %s, session is %s", ReviewInstructions, s.state)
	}
	for i := range s.Recipe.Ingredients {
		if err := s.checkCoveredLocked(i); err != nil {
			return nil, err
		}
	}

	overlay := s.overlayLocked()
	ids := make([]string, 0, len(overlay))
	for id := range overlay {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	// Read pass: every pending item must still hold its staged amount.
	current := make(map[string]models.FoodItem, len(ids))
	for _, id := range ids {
		if s.applied[id] {
			continue
		}
		item, err := s.a.foodItems.Get(ctx, s.HouseholdID, id)
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Precondition("item %s is gone", id)
		}
		if err != nil {
			return nil, fmt.Errorf("read item %s: %w", id, err)
		}
		if item.FoodFacts.Quantity.Amount+calculator.Epsilon < overlay[id] {
			return nil, apperrors.Precondition("item %s holds %v, %v staged",
				id, item.FoodFacts.Quantity.Amount, overlay[id])
		}
		current[id] = *item
	}

	// Write pass.
	res := &Result{Updated: make(map[string]float64)}
	consumed := make([]ledger.Consumption, 0, len(ids))
	for _, id := range ids {
		owner := s.inventory[id].Owner
		if item, ok := current[id]; ok {
			owner = item.Owner
			left, usedUp := calculator.Remaining(item.FoodFacts.Quantity.Amount, overlay[id])
			var err error
			if usedUp {
				err = s.a.foodItems.Delete(ctx, s.HouseholdID, id)
				res.Deleted = append(res.Deleted, id)
			} else {
				err = s.a.foodItems.UpdateQuantity(ctx, s.HouseholdID, id, left)
				res.Updated[id] = left
			}
			if err != nil {
				s.logger.Error("Commit write failed", "item_id", id, "error", err)
				return nil, fmt.Errorf("consume item %s: %w", id, err)
			}
			s.applied[id] = true
			outcome := "reduced"
			if usedUp {
				outcome = "deleted"
			}
			metrics.ItemsConsumed.WithLabelValues(outcome).Inc()
		}
		consumed = append(consumed, ledger.Consumption{ItemID: id, Owner: owner, Amount: overlay[id]})
	}

	if !s.credited {
		points, err := s.a.ledger.Credit(ctx, s.HouseholdID, s.UserID, consumed)
		if err != nil {
			return nil, err
		}
		s.credited = true
		res.RatPoints = points
	}

	s.state = State{Step: Committed}
	s.logger.Info("Session committed",
		"items", len(ids),
		"deleted", len(res.Deleted),
		"rat_points", res.RatPoints,
	)
	return res, nil
}
