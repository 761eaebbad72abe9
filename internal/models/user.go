package models

// User is the per-account aggregate. It is created on first sign-in and never
// hard-deleted by the household protocols.
type User struct {
	// UID is the unique identifier for the user (UUID format).
	UID string `json:"uid" validate:"required"`

	// Username is the display name of the user.
	Username string `json:"username"`

	// Email is the user's email address (unique).
	// Used to address invitations.
	Email string `json:"email" validate:"omitempty,email"`

	// SelectedHouseholdUID is the household the user is currently viewing.
	// Empty means no household is selected.
	SelectedHouseholdUID string `json:"selectedHouseholdUID"`

	// HouseholdUIDs are the households the user belongs to.
	HouseholdUIDs []string `json:"householdUIDs"`

	// RecipeUIDs are the recipes saved by the user.
	RecipeUIDs []string `json:"recipeUIDs"`

	// InvitationUIDs are pending invitations addressed to the user.
	InvitationUIDs []string `json:"invitationUIDs"`
}

// Credentials holds the sign-in secret for a user. It is stored apart from
// the User document so cache pushes never carry password hashes.
type Credentials struct {
	UID          string `json:"uid" validate:"required"`
	Email        string `json:"email" validate:"required,email"`
	PasswordHash string `json:"passwordHash" validate:"required"`
	Username     string `json:"username"`
	CreatedAt    int64  `json:"createdAt"`
}

// NewUser creates the User document written on first sign-in.
func NewUser(uid, email, username string) *User {
	return &User{
		UID:            uid,
		Username:       username,
		Email:          email,
		HouseholdUIDs:  []string{},
		RecipeUIDs:     []string{},
		InvitationUIDs: []string{},
	}
}

// Contains reports whether id is present in ids.
func Contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
