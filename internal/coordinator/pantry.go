package coordinator

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/mmynk/larder/internal/apperrors"
	"github.com/mmynk/larder/internal/models"
)

// requireMember loads householdID and checks the acting user belongs to it.
func (c *Coordinator) requireMember(ctx context.Context, householdID string) (string, *models.Household, error) {
	uid, err := c.actingUser(ctx)
	if err != nil {
		return "", nil, err
	}
	h, err := c.households.Get(ctx, householdID)
	if err != nil {
		return "", nil, err
	}
	if !h.IsMember(uid) {
		return "", nil, apperrors.Validation("user %s is not a member of household %s", uid, householdID)
	}
	return uid, h, nil
}

// AddFoodItem stores a new item in householdID owned by the acting user.
func (c *Coordinator) AddFoodItem(ctx context.Context, householdID string, item models.FoodItem) (*models.FoodItem, error) {
	uid, _, err := c.requireMember(ctx, householdID)
	if err != nil {
		return nil, err
	}
	item.UID = uuid.New().String()
	item.Owner = uid
	if item.Status == "" {
		item.Status = models.StatusUnopened
	}
	if item.BuyDate == nil {
		now := c.now()
		item.BuyDate = &now
	}
	if err := c.foodItems.Add(ctx, householdID, &item); err != nil {
		return nil, err
	}
	c.logger.Info("Food item added",
		"household_id", householdID,
		"item_id", item.UID,
		"name", item.FoodFacts.Name,
		"owner", uid,
	)
	return &item, nil
}

// DiscardFoodItem throws an item away. An expired item earns its owner one
// stinky point, credited after the item is deleted so an item is never
// counted twice. Discarding an item that is already gone is a no-op.
func (c *Coordinator) DiscardFoodItem(ctx context.Context, householdID, itemID string) (spoiled bool, err error) {
	if _, _, err := c.requireMember(ctx, householdID); err != nil {
		return false, err
	}

	r := c.begin("discard_food_item", "household_id", householdID, "item_id", itemID)

	item, err := c.foodItems.Get(ctx, householdID, itemID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return false, r.done(nil)
	}
	if err != nil {
		return false, r.done(r.step("load_item", func() error { return err }))
	}

	if err := r.step("delete_item", func() error {
		return c.foodItems.Delete(ctx, householdID, itemID)
	}); err != nil {
		return false, r.done(err)
	}

	if !item.IsExpired(c.now()) {
		return false, r.done(nil)
	}
	if err := r.step("record_spoilage", func() error {
		return c.ledger.RecordSpoilage(ctx, householdID, item.Owner)
	}); err != nil {
		return true, r.done(err)
	}
	return true, r.done(nil)
}

// ListFoodItems reads householdID's inventory for a member.
func (c *Coordinator) ListFoodItems(ctx context.Context, householdID string) ([]models.FoodItem, error) {
	if _, _, err := c.requireMember(ctx, householdID); err != nil {
		return nil, err
	}
	return c.foodItems.List(ctx, householdID)
}

// Points returns householdID's members ranked by rat points.
func (c *Coordinator) Points(ctx context.Context, householdID string) ([]models.Points, error) {
	if _, _, err := c.requireMember(ctx, householdID); err != nil {
		return nil, err
	}
	return c.ledger.Board(ctx, householdID)
}

// Invitation reads an invitation addressed to the acting user.
func (c *Coordinator) Invitation(ctx context.Context, invitationID string) (*models.Invitation, error) {
	uid, err := c.actingUser(ctx)
	if err != nil {
		return nil, err
	}
	inv, err := c.invitations.Get(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	if inv.InvitedUserID != uid {
		return nil, apperrors.NotFound("invitations", invitationID)
	}
	return inv, nil
}
