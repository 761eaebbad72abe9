package models

// Invitation asks a user to join a household. It exists only while the
// invited user is not yet a member and is deleted by accept or decline.
type Invitation struct {
	// InvitationID is the unique identifier for the invitation (UUID format).
	InvitationID string `json:"invitationId" validate:"required"`

	// HouseholdID is the household the user is invited to.
	HouseholdID string `json:"householdId" validate:"required"`

	// HouseholdName is denormalized for display.
	HouseholdName string `json:"householdName"`

	// InvitedUserID is the user who may accept.
	InvitedUserID string `json:"invitedUserId" validate:"required"`

	// InviterUserID is the member who sent the invitation.
	InviterUserID string `json:"inviterUserId" validate:"required"`

	// Timestamp is the Unix timestamp when the invitation was sent.
	Timestamp int64 `json:"timestamp"`
}
