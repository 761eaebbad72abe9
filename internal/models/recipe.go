package models

// Ingredient is one requirement of a recipe at its base servings.
type Ingredient struct {
	Name     string   `json:"name" validate:"required"`
	Quantity Quantity `json:"quantity"`
}

// Recipe is read-only input to recipe execution. How recipes are produced is
// not this module's concern.
type Recipe struct {
	UID          string       `json:"uid"`
	Name         string       `json:"name" validate:"required"`
	BaseServings int          `json:"baseServings" validate:"gt=0"`
	Ingredients  []Ingredient `json:"ingredients" validate:"dive"`
	Instructions []string     `json:"instructions"`
}
