package allocator

import (
	"fmt"

	"github.com/mmynk/larder/internal/apperrors"
)

// Step names the phase of a recipe session.
type Step int

const (
	SelectServings Step = iota
	SelectFoodForIngredient
	ReviewInstructions
	Committed
)

func (s Step) String() string {
	switch s {
	case SelectServings:
		return "select_servings"
	case SelectFoodForIngredient:
		return "select_food_for_ingredient"
	case ReviewInstructions:
		return "review_instructions"
	case Committed:
		return "committed"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// State is the session phase plus its associated index: the ingredient
// index in SelectFoodForIngredient, the instruction index in
// ReviewInstructions, zero otherwise. Transitions return a new State.
type State struct {
	Step  Step
	Index int
}

func (s State) String() string {
	switch s.Step {
	case SelectFoodForIngredient, ReviewInstructions:
		return fmt.Sprintf("%s[%d]", s.Step, s.Index)
	default:
		return s.Step.String()
	}
}

// Next moves forward for a recipe with the given ingredient and instruction
// counts. ReviewInstructions on its last instruction stays put; only Commit
// leaves it.
func (s State) Next(ingredients, instructions int) (State, error) {
	switch s.Step {
	case SelectServings:
		if ingredients > 0 {
			return State{Step: SelectFoodForIngredient}, nil
		}
		return State{Step: ReviewInstructions}, nil
	case SelectFoodForIngredient:
		if s.Index+1 < ingredients {
			return State{Step: SelectFoodForIngredient, Index: s.Index + 1}, nil
		}
		return State{Step: ReviewInstructions}, nil
	case ReviewInstructions:
		if s.Index+1 < instructions {
			return State{Step: ReviewInstructions, Index: s.Index + 1}, nil
		}
		return s, nil
	default:
		return s, apperrors.Precondition("session is %s", s)
	}
}

// Back moves one step backwards. SelectServings has no predecessor.
func (s State) Back(ingredients int) (State, error) {
	switch s.Step {
	case SelectServings:
		return s, nil
	case SelectFoodForIngredient:
		if s.Index == 0 {
			return State{Step: SelectServings}, nil
		}
		return State{Step: SelectFoodForIngredient, Index: s.Index - 1}, nil
	case ReviewInstructions:
		if s.Index > 0 {
			return State{Step: ReviewInstructions, Index: s.Index - 1}, nil
		}
		if ingredients > 0 {
			return State{Step: SelectFoodForIngredient, Index: ingredients - 1}, nil
		}
		return State{Step: SelectServings}, nil
	default:
		return s, apperrors.Precondition("session is %s", s)
	}
}
