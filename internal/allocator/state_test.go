package allocator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/larder/internal/apperrors"
)

func TestStateNext(t *testing.T) {
	tests := []struct {
		name                      string
		from                      State
		ingredients, instructions int
		want                      State
	}{
		{"servings to first ingredient", State{Step: SelectServings}, 2, 3, State{Step: SelectFoodForIngredient}},
		{"servings skips empty ingredients", State{Step: SelectServings}, 0, 3, State{Step: ReviewInstructions}},
		{"next ingredient", State{Step: SelectFoodForIngredient, Index: 0}, 2, 3, State{Step: SelectFoodForIngredient, Index: 1}},
		{"last ingredient to review", State{Step: SelectFoodForIngredient, Index: 1}, 2, 3, State{Step: ReviewInstructions}},
		{"next instruction", State{Step: ReviewInstructions, Index: 0}, 2, 3, State{Step: ReviewInstructions, Index: 1}},
		{"last instruction stays", State{Step: ReviewInstructions, Index: 2}, 2, 3, State{Step: ReviewInstructions, Index: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.from.Next(tt.ingredients, tt.instructions)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := State{Step: Committed}.Next(2, 3)
	assert.ErrorIs(t, err, apperrors.ErrPrecondition)
}

func TestStateBack(t *testing.T) {
	tests := []struct {
		name        string
		from        State
		ingredients int
		want        State
	}{
		{"servings stays", State{Step: SelectServings}, 2, State{Step: SelectServings}},
		{"first ingredient to servings", State{Step: SelectFoodForIngredient}, 2, State{Step: SelectServings}},
		{"previous ingredient", State{Step: SelectFoodForIngredient, Index: 1}, 2, State{Step: SelectFoodForIngredient}},
		{"review to last ingredient", State{Step: ReviewInstructions}, 2, State{Step: SelectFoodForIngredient, Index: 1}},
		{"review without ingredients", State{Step: ReviewInstructions}, 0, State{Step: SelectServings}},
		{"previous instruction", State{Step: ReviewInstructions, Index: 2}, 2, State{Step: ReviewInstructions, Index: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.from.Back(tt.ingredients)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := State{Step: Committed}.Back(2)
	assert.ErrorIs(t, err, apperrors.ErrPrecondition)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "select_servings", State{Step: SelectServings}.String())
	assert.Equal(t, "select_food_for_ingredient[1]", State{Step: SelectFoodForIngredient, Index: 1}.String())
	assert.Equal(t, "committed", State{Step: Committed}.String())
	assert.Equal(t, "step(9)", Step(9).String())
}
