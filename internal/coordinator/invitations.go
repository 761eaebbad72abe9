package coordinator

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/mmynk/larder/internal/apperrors"
	"github.com/mmynk/larder/internal/models"
	"github.com/mmynk/larder/internal/repository"
)

// SendInvitation invites the user registered under email into householdID.
// The acting user must be a member. A pending invitation for the same user
// and household is returned instead of creating a duplicate.
func (c *Coordinator) SendInvitation(ctx context.Context, householdID, email string) (*models.Invitation, error) {
	inviter, err := c.actingUser(ctx)
	if err != nil {
		return nil, err
	}

	h, err := c.households.Get(ctx, householdID)
	if err != nil {
		return nil, err
	}
	if !h.IsMember(inviter) {
		return nil, apperrors.Validation("user %s is not a member of household %s", inviter, householdID)
	}

	invitee, err := c.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if invitee.UID == inviter {
		return nil, apperrors.Validation("cannot invite yourself")
	}
	if h.IsMember(invitee.UID) {
		return nil, apperrors.Validation("user %s is already a member of household %s", invitee.UID, householdID)
	}

	pending, err := c.invitations.ListForHousehold(ctx, householdID)
	if err != nil {
		return nil, err
	}
	for i := range pending {
		if pending[i].InvitedUserID == invitee.UID {
			return &pending[i], nil
		}
	}

	inv := &models.Invitation{
		InvitationID:  uuid.New().String(),
		HouseholdID:   h.UID,
		HouseholdName: h.Name,
		InvitedUserID: invitee.UID,
		InviterUserID: inviter,
		Timestamp:     c.now().Unix(),
	}

	r := c.begin("send_invitation", "invitation_id", inv.InvitationID, "household_id", householdID)
	if err := r.step("create_invitation", func() error {
		return c.invitations.Create(ctx, inv)
	}); err != nil {
		return nil, r.done(err)
	}
	if err := r.step("link_invitee", func() error {
		return c.users.AddInvitation(ctx, invitee.UID, inv.InvitationID)
	}); err != nil {
		return nil, r.done(err)
	}
	return inv, r.done(nil)
}

// AcceptInvitation joins the invited user to the household and consumes the
// invitation. Membership is written before the invitation is touched, so a
// failure at any point leaves the invitation in place and re-running the
// protocol completes it.
//
// When the household no longer exists the invitation is consumed and an
// apperrors.ErrNotFound error is returned.
func (c *Coordinator) AcceptInvitation(ctx context.Context, inv models.Invitation) error {
	uid, err := c.actingUser(ctx)
	if err != nil {
		return err
	}
	if uid != inv.InvitedUserID {
		return apperrors.Validation("invitation %s is addressed to another user", inv.InvitationID)
	}

	r := c.begin("accept_invitation",
		"invitation_id", inv.InvitationID,
		"household_id", inv.HouseholdID,
		"user_id", uid,
	)

	householdGone := false
	if err := r.step("add_member", func() error {
		err := c.households.AddMember(ctx, inv.HouseholdID, uid)
		if errors.Is(err, apperrors.ErrNotFound) {
			householdGone = true
			return nil
		}
		return err
	}); err != nil {
		return r.done(err)
	}

	if !householdGone {
		if err := r.step("link_household", func() error {
			return c.users.AddHousehold(ctx, uid, inv.HouseholdID)
		}); err != nil {
			return r.done(err)
		}
	}

	if err := c.consumeInvitation(ctx, r, inv); err != nil {
		return r.done(err)
	}

	if householdGone {
		r.logger.Warn("Invitation consumed for deleted household")
		return r.done(apperrors.NotFound("households", inv.HouseholdID))
	}

	// Selecting the joined household is a convenience, not part of the
	// protocol, so its failure is only logged.
	if u, err := c.users.Current(ctx, uid); err == nil && u.SelectedHouseholdUID == "" {
		if err := c.users.SetSelectedHousehold(ctx, uid, inv.HouseholdID); err != nil {
			r.logger.Warn("Selecting joined household failed", "error", err)
		} else {
			c.notifySelection(ctx, uid, inv.HouseholdID)
		}
	}
	return r.done(nil)
}

// DeclineInvitation consumes the invitation without touching the household.
func (c *Coordinator) DeclineInvitation(ctx context.Context, inv models.Invitation) error {
	uid, err := c.actingUser(ctx)
	if err != nil {
		return err
	}
	if uid != inv.InvitedUserID {
		return apperrors.Validation("invitation %s is addressed to another user", inv.InvitationID)
	}

	r := c.begin("decline_invitation",
		"invitation_id", inv.InvitationID,
		"household_id", inv.HouseholdID,
		"user_id", uid,
	)
	return r.done(c.consumeInvitation(ctx, r, inv))
}

// consumeInvitation unlinks the invitation from its user, then deletes it.
func (c *Coordinator) consumeInvitation(ctx context.Context, r *run, inv models.Invitation) error {
	if err := r.step("unlink_invitation", func() error {
		return repository.IgnoreNotFound(c.users.RemoveInvitation(ctx, inv.InvitedUserID, inv.InvitationID))
	}); err != nil {
		return err
	}
	return r.step("delete_invitation", func() error {
		return c.invitations.Delete(ctx, inv.InvitationID)
	})
}
