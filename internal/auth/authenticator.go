package auth

import (
	"context"

	"github.com/mmynk/larder/internal/models"
)

// Authenticator defines the interface for authentication implementations.
// Register creates the user's document alongside its credentials so the
// household protocols always find a User for a signed-in account.
type Authenticator interface {
	// Register creates a new account with the given email and credential.
	Register(ctx context.Context, email, username, credential string) (*models.User, error)

	// Authenticate verifies the credential and returns the user.
	Authenticate(ctx context.Context, email, credential string) (*models.User, error)

	// ValidateCredential checks if the credential meets the implementation's requirements.
	ValidateCredential(credential string) error
}
