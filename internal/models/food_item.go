package models

import "time"

// Quantity is an amount in a unit (e.g., 500 "g", 3 "pcs").
type Quantity struct {
	Amount float64 `json:"amount" validate:"gte=0"`
	Unit   string  `json:"unit"`
}

// Nutrition per 100g or per unit, as printed on the package.
type Nutrition struct {
	Calories      float64 `json:"calories"`
	Protein       float64 `json:"protein"`
	Carbohydrates float64 `json:"carbohydrates"`
	Fat           float64 `json:"fat"`
}

// FoodFacts describes what a food item is.
type FoodFacts struct {
	Name      string     `json:"name" validate:"required"`
	Quantity  Quantity   `json:"quantity"`
	Category  string     `json:"category"`
	Nutrition *Nutrition `json:"nutrition,omitempty"`
}

// FoodStatus is the lifecycle status of a food item.
type FoodStatus string

const (
	StatusUnopened FoodStatus = "unopened"
	StatusOpened   FoodStatus = "opened"
	StatusExpired  FoodStatus = "expired"
)

// FoodItem is a piece of stock in one household's inventory. It is deleted
// when consumed to zero or when its household is deleted.
type FoodItem struct {
	// UID is the unique identifier for the item (UUID format).
	UID string `json:"uid" validate:"required"`

	FoodFacts FoodFacts `json:"foodFacts"`

	BuyDate    *time.Time `json:"buyDate,omitempty"`
	ExpiryDate *time.Time `json:"expiryDate,omitempty"`
	OpenDate   *time.Time `json:"openDate,omitempty"`

	// Location is where the item is kept (e.g., "fridge", "pantry").
	Location string     `json:"location"`
	Status   FoodStatus `json:"status"`

	// Owner is the user ID who bought the item.
	Owner string `json:"owner" validate:"required"`
}

// IsExpired reports whether the item's expiry date is before now.
func (f *FoodItem) IsExpired(now time.Time) bool {
	return f.ExpiryDate != nil && f.ExpiryDate.Before(now)
}
