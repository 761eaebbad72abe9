// Package calculator holds the pure arithmetic of recipe execution: scaling
// ingredients to servings, matching inventory to ingredients and checking
// that staged consumption covers a requirement. Nothing here touches the
// store.
package calculator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mmynk/larder/internal/models"
)

// Epsilon absorbs floating point noise when comparing staged sums.
const Epsilon = 1e-9

// RequiredAmount scales an ingredient's base quantity to servings:
// base × (servings / baseServings).
func RequiredAmount(ing models.Ingredient, servings, baseServings int) (float64, error) {
	if baseServings <= 0 {
		return 0, fmt.Errorf("base servings must be positive, got %d", baseServings)
	}
	if servings <= 0 {
		return 0, fmt.Errorf("servings must be positive, got %d", servings)
	}
	return ing.Quantity.Amount * float64(servings) / float64(baseServings), nil
}

// MatchesIngredient reports whether item is stock of the named ingredient.
// Names match case-insensitively after trimming spaces.
func MatchesIngredient(item models.FoodItem, ingredient string) bool {
	return strings.EqualFold(strings.TrimSpace(item.FoodFacts.Name), strings.TrimSpace(ingredient))
}

// Candidates returns the items matching ingredient, soonest expiry first.
// Items without an expiry date come last; ties are broken by id so the
// order is deterministic.
func Candidates(items []models.FoodItem, ingredient string) []models.FoodItem {
	var out []models.FoodItem
	for _, it := range items {
		if MatchesIngredient(it, ingredient) {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].ExpiryDate, out[j].ExpiryDate
		switch {
		case a == nil && b == nil:
			return out[i].UID < out[j].UID
		case a == nil:
			return false
		case b == nil:
			return true
		case !a.Equal(*b):
			return a.Before(*b)
		default:
			return out[i].UID < out[j].UID
		}
	})
	return out
}

// Stock sums the amounts of items.
func Stock(items []models.FoodItem) float64 {
	var total float64
	for _, it := range items {
		total += it.FoodFacts.Quantity.Amount
	}
	return total
}

// Covered reports whether staged meets required, or all available stock
// when the household holds less than required.
func Covered(staged, required, available float64) bool {
	target := min(required, available)
	return staged+Epsilon >= target
}

// Remaining returns what is left of amount after consuming staged, and
// whether the item is used up.
func Remaining(amount, staged float64) (float64, bool) {
	left := amount - staged
	return left, left <= Epsilon
}
