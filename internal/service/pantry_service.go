package service

import (
	"context"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/larder/internal/coordinator"
	"github.com/mmynk/larder/internal/models"
)

// PantryService manages a household's food items.
type PantryService struct {
	coord  *coordinator.Coordinator
	logger *slog.Logger
}

// NewPantryService creates a PantryService.
func NewPantryService(coord *coordinator.Coordinator, logger *slog.Logger) *PantryService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PantryService{coord: coord, logger: logger}
}

type AddFoodItemRequest struct {
	HouseholdID string          `json:"householdId"`
	Item        models.FoodItem `json:"item"`
}

type FoodItemResponse struct {
	Item *models.FoodItem `json:"item"`
}

type FoodItemsResponse struct {
	Items []models.FoodItem `json:"items"`
}

type FoodItemRequest struct {
	HouseholdID string `json:"householdId"`
	ItemID      string `json:"itemId"`
}

type DiscardFoodItemResponse struct {
	Spoiled bool `json:"spoiled"`
}

// Routes returns the PantryService procedures.
func (s *PantryService) Routes(opts ...connect.HandlerOption) []Route {
	return []Route{
		unary(Procedure("PantryService", "AddFoodItem"), s.AddFoodItem, opts...),
		unary(Procedure("PantryService", "ListFoodItems"), s.ListFoodItems, opts...),
		unary(Procedure("PantryService", "DiscardFoodItem"), s.DiscardFoodItem, opts...),
	}
}

// AddFoodItem stores a new item owned by the caller.
func (s *PantryService) AddFoodItem(ctx context.Context, req *AddFoodItemRequest) (*FoodItemResponse, error) {
	item, err := s.coord.AddFoodItem(ctx, req.HouseholdID, req.Item)
	if err != nil {
		return nil, err
	}
	return &FoodItemResponse{Item: item}, nil
}

// ListFoodItems returns a household's inventory.
func (s *PantryService) ListFoodItems(ctx context.Context, req *HouseholdRequest) (*FoodItemsResponse, error) {
	items, err := s.coord.ListFoodItems(ctx, req.HouseholdID)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("ListFoodItems successful", "household_id", req.HouseholdID, "count", len(items))
	return &FoodItemsResponse{Items: items}, nil
}

// DiscardFoodItem throws an item away.
func (s *PantryService) DiscardFoodItem(ctx context.Context, req *FoodItemRequest) (*DiscardFoodItemResponse, error) {
	spoiled, err := s.coord.DiscardFoodItem(ctx, req.HouseholdID, req.ItemID)
	if err != nil {
		return nil, err
	}
	return &DiscardFoodItemResponse{Spoiled: spoiled}, nil
}
