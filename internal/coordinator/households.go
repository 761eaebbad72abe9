package coordinator

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/mmynk/larder/internal/apperrors"
	"github.com/mmynk/larder/internal/models"
	"github.com/mmynk/larder/internal/repository"
)

// NoHousehold is the selection of a user without any household.
const NoHousehold = ""

// CreateHousehold creates a household with the acting user as sole member.
// The new household becomes the user's selection if they had none.
func (c *Coordinator) CreateHousehold(ctx context.Context, name string) (*models.Household, error) {
	uid, err := c.actingUser(ctx)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.Validation("household name required")
	}

	h := &models.Household{
		UID:           uuid.New().String(),
		Name:          name,
		Members:       []string{uid},
		SharedRecipes: []string{},
		RatPoints:     map[string]int64{},
		StinkyPoints:  map[string]int64{},
	}

	r := c.begin("create_household", "household_id", h.UID, "user_id", uid)
	if err := r.step("create_household", func() error {
		return c.households.Create(ctx, h)
	}); err != nil {
		return nil, r.done(err)
	}
	if err := r.step("link_household", func() error {
		return c.users.AddHousehold(ctx, uid, h.UID)
	}); err != nil {
		return nil, r.done(err)
	}

	u, err := c.users.Current(ctx, uid)
	if err == nil && u.SelectedHouseholdUID == NoHousehold {
		if err := r.step("select_household", func() error {
			return c.users.SetSelectedHousehold(ctx, uid, h.UID)
		}); err != nil {
			return nil, r.done(err)
		}
		c.notifySelection(ctx, uid, h.UID)
	}
	return h, r.done(nil)
}

// SelectHousehold makes householdID the acting user's selection and
// re-points selection listeners. NoHousehold clears the selection.
func (c *Coordinator) SelectHousehold(ctx context.Context, householdID string) error {
	uid, err := c.actingUser(ctx)
	if err != nil {
		return err
	}
	if householdID != NoHousehold {
		h, err := c.households.Get(ctx, householdID)
		if err != nil {
			return err
		}
		if !h.IsMember(uid) {
			return apperrors.Validation("user %s is not a member of household %s", uid, householdID)
		}
	}
	if err := c.users.SetSelectedHousehold(ctx, uid, householdID); err != nil {
		return err
	}
	c.notifySelection(ctx, uid, householdID)
	return nil
}

// LeaveHousehold removes userID from householdID. When userID is the last
// member, or the household is left without members, it is deleted along
// with its food items and pending invitations. A household that no longer
// exists is treated as already left: only the idempotent user-side cleanup
// runs.
//
// If the household was the user's selection, the first household remaining
// in the user's list is selected instead, or NoHousehold if none remain.
func (c *Coordinator) LeaveHousehold(ctx context.Context, householdID, userID string) error {
	r := c.begin("leave_household", "household_id", householdID, "user_id", userID)

	var h *models.Household
	if err := r.step("load_household", func() error {
		var err error
		h, err = c.households.Get(ctx, householdID)
		if errors.Is(err, apperrors.ErrNotFound) {
			h = nil
			return nil
		}
		return err
	}); err != nil {
		return r.done(err)
	}

	cascade := false
	switch {
	case h == nil:
		r.logger.Info("Household already gone")
	case len(h.Members) == 0:
		// A concurrent leave emptied it without cascading.
		cascade = true
	case !h.IsMember(userID):
		r.logger.Info("User already left household")
	case len(h.Members) > 1:
		if err := r.step("remove_member", func() error {
			return c.households.RemoveMember(ctx, householdID, userID)
		}); err != nil {
			return r.done(err)
		}
		// Members was read before the remove; another member may have left
		// in between.
		if err := r.step("reload_household", func() error {
			after, err := c.households.Get(ctx, householdID)
			if errors.Is(err, apperrors.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			cascade = len(after.Members) == 0
			return nil
		}); err != nil {
			return r.done(err)
		}
	default:
		cascade = true
	}

	if cascade {
		if err := c.deleteHousehold(ctx, r, householdID); err != nil {
			return r.done(err)
		}
	}

	if err := r.step("unlink_household", func() error {
		return repository.IgnoreNotFound(c.users.RemoveHousehold(ctx, userID, householdID))
	}); err != nil {
		return r.done(err)
	}

	return r.done(c.reselect(ctx, r, userID, householdID))
}

// deleteHousehold is the last-member cascade: items, then pending
// invitations, then the household document itself. Deleting the household
// last means a failed cascade can be resumed by leaving again.
func (c *Coordinator) deleteHousehold(ctx context.Context, r *run, householdID string) error {
	if err := r.step("delete_food_items", func() error {
		n, err := c.foodItems.DeleteAll(ctx, householdID)
		r.logger.Info("Deleted household food items", "count", n)
		return err
	}); err != nil {
		return err
	}

	if err := r.step("purge_invitations", func() error {
		pending, err := c.invitations.ListForHousehold(ctx, householdID)
		if err != nil {
			return err
		}
		for _, inv := range pending {
			if err := repository.IgnoreNotFound(c.users.RemoveInvitation(ctx, inv.InvitedUserID, inv.InvitationID)); err != nil {
				return err
			}
			if err := c.invitations.Delete(ctx, inv.InvitationID); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	return r.step("delete_household", func() error {
		return c.households.Delete(ctx, householdID)
	})
}

// reselect replaces the user's selection when it pointed at removedID.
func (c *Coordinator) reselect(ctx context.Context, r *run, userID, removedID string) error {
	u, err := c.users.Current(ctx, userID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return r.step("reselect_household", func() error { return err })
	}
	if u.SelectedHouseholdUID != removedID {
		return nil
	}

	next := NextSelection(u.HouseholdUIDs, removedID)
	if err := r.step("reselect_household", func() error {
		return c.users.SetSelectedHousehold(ctx, userID, next)
	}); err != nil {
		return err
	}
	r.logger.Info("Selected replacement household", "selected", next)
	c.notifySelection(ctx, userID, next)
	return nil
}

// NextSelection picks the first household in remaining other than removedID,
// or NoHousehold.
func NextSelection(remaining []string, removedID string) string {
	for _, id := range remaining {
		if id != removedID {
			return id
		}
	}
	return NoHousehold
}

// ShareRecipe saves recipeID for the acting user and shares it with
// householdID.
func (c *Coordinator) ShareRecipe(ctx context.Context, householdID, recipeID string) error {
	uid, err := c.actingUser(ctx)
	if err != nil {
		return err
	}
	h, err := c.households.Get(ctx, householdID)
	if err != nil {
		return err
	}
	if !h.IsMember(uid) {
		return apperrors.Validation("user %s is not a member of household %s", uid, householdID)
	}

	r := c.begin("share_recipe", "household_id", householdID, "recipe_id", recipeID)
	if err := r.step("save_recipe", func() error {
		return c.users.AddRecipe(ctx, uid, recipeID)
	}); err != nil {
		return r.done(err)
	}
	return r.done(r.step("share_recipe", func() error {
		return c.households.AddSharedRecipe(ctx, householdID, recipeID)
	}))
}
