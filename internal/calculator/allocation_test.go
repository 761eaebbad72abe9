package calculator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/larder/internal/models"
)

func item(uid, name string, amount float64, expiry *time.Time) models.FoodItem {
	return models.FoodItem{
		UID:        uid,
		FoodFacts:  models.FoodFacts{Name: name, Quantity: models.Quantity{Amount: amount, Unit: "g"}},
		ExpiryDate: expiry,
		Owner:      "u1",
	}
}

func day(d int) *time.Time {
	t := time.Date(2026, 1, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestRequiredAmount(t *testing.T) {
	ing := models.Ingredient{Name: "flour", Quantity: models.Quantity{Amount: 200, Unit: "g"}}

	tests := []struct {
		name         string
		servings     int
		baseServings int
		want         float64
		wantErr      bool
	}{
		{name: "base servings", servings: 2, baseServings: 2, want: 200},
		{name: "double", servings: 4, baseServings: 2, want: 400},
		{name: "odd scale", servings: 3, baseServings: 2, want: 300},
		{name: "zero servings", servings: 0, baseServings: 2, wantErr: true},
		{name: "zero base", servings: 2, baseServings: 0, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RequiredAmount(ing, tt.servings, tt.baseServings)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, Epsilon)
		})
	}
}

func TestMatchesIngredient(t *testing.T) {
	assert.True(t, MatchesIngredient(item("a", "Flour", 1, nil), "flour"))
	assert.True(t, MatchesIngredient(item("a", " flour ", 1, nil), "FLOUR"))
	assert.False(t, MatchesIngredient(item("a", "flour", 1, nil), "sugar"))
}

func TestCandidatesOrder(t *testing.T) {
	items := []models.FoodItem{
		item("no-expiry", "milk", 1, nil),
		item("late", "milk", 1, day(20)),
		item("other", "eggs", 6, day(1)),
		item("b-early", "milk", 1, day(5)),
		item("a-early", "milk", 1, day(5)),
	}

	got := Candidates(items, "Milk")
	ids := make([]string, len(got))
	for i, it := range got {
		ids[i] = it.UID
	}
	assert.Equal(t, []string{"a-early", "b-early", "late", "no-expiry"}, ids)
	assert.Empty(t, Candidates(items, "butter"))
}

func TestStock(t *testing.T) {
	assert.Equal(t, 0.0, Stock(nil))
	assert.Equal(t, 3.5, Stock([]models.FoodItem{item("a", "x", 1.5, nil), item("b", "x", 2, nil)}))
}

func TestCovered(t *testing.T) {
	tests := []struct {
		name                        string
		staged, required, available float64
		want                        bool
	}{
		{name: "exact", staged: 200, required: 200, available: 500, want: true},
		{name: "over", staged: 250, required: 200, available: 500, want: true},
		{name: "short", staged: 150, required: 200, available: 500, want: false},
		{name: "all scarce stock", staged: 100, required: 200, available: 100, want: true},
		{name: "scarce stock unused", staged: 50, required: 200, available: 100, want: false},
		{name: "nothing available", staged: 0, required: 200, available: 0, want: true},
		{name: "float noise", staged: 0.1 + 0.2, required: 0.3, available: 1, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Covered(tt.staged, tt.required, tt.available))
		})
	}
}

func TestRemaining(t *testing.T) {
	left, depleted := Remaining(500, 200)
	assert.Equal(t, 300.0, left)
	assert.False(t, depleted)

	_, depleted = Remaining(500, 500)
	assert.True(t, depleted)

	_, depleted = Remaining(0.3, 0.1+0.2)
	assert.True(t, depleted)
}
