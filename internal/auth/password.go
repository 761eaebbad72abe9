package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmynk/larder/internal/apperrors"
	"github.com/mmynk/larder/internal/models"
	"github.com/mmynk/larder/internal/repository"
	"github.com/mmynk/larder/internal/storage"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrEmailExists        = errors.New("email already registered")
)

// PasswordAuthenticator implements password sign-in with bcrypt hashes kept
// in the credentials collection.
type PasswordAuthenticator struct {
	store storage.Store
	users *repository.Users
	cost  int
}

// NewPasswordAuthenticator creates a password authenticator. Users are
// created through users so their document has the protocol's shape.
func NewPasswordAuthenticator(store storage.Store, users *repository.Users) *PasswordAuthenticator {
	return &PasswordAuthenticator{store: store, users: users, cost: bcrypt.DefaultCost}
}

// WithCost overrides the bcrypt cost, e.g. bcrypt.MinCost in tests.
func (a *PasswordAuthenticator) WithCost(cost int) *PasswordAuthenticator {
	a.cost = cost
	return a
}

// ValidateCredential checks if the password meets minimum requirements.
func (a *PasswordAuthenticator) ValidateCredential(credential string) error {
	if len(credential) < 8 {
		return ErrWeakPassword
	}
	return nil
}

// Register creates credentials and the user document for email.
func (a *PasswordAuthenticator) Register(ctx context.Context, email, username, credential string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := a.ValidateCredential(credential); err != nil {
		return nil, err
	}

	if _, err := a.credentialsByEmail(ctx, email); err == nil {
		return nil, ErrEmailExists
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(credential), a.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	creds := &models.Credentials{
		UID:          uuid.New().String(),
		Email:        email,
		PasswordHash: string(hashed),
		Username:     username,
		CreatedAt:    time.Now().Unix(),
	}
	if err := models.Validate(creds); err != nil {
		return nil, apperrors.Validation("%v", err)
	}

	// Credentials go first and own the uid. A user document lost after this
	// point is recreated by Authenticate.
	fields, err := storage.Encode(creds)
	if err != nil {
		return nil, err
	}
	if err := a.store.Set(ctx, storage.Credentials, creds.UID, fields, false); err != nil {
		return nil, fmt.Errorf("failed to store credentials: %w", err)
	}
	user := models.NewUser(creds.UID, email, username)
	if err := a.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// Authenticate verifies the email and password, returning the user if valid.
func (a *PasswordAuthenticator) Authenticate(ctx context.Context, email, credential string) (*models.User, error) {
	creds, err := a.credentialsByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(credential)); err != nil {
		return nil, ErrInvalidCredentials
	}

	user, err := a.users.Get(ctx, creds.UID)
	if errors.Is(err, apperrors.ErrNotFound) {
		// Registration stored the credentials but not the user.
		user = models.NewUser(creds.UID, creds.Email, creds.Username)
		if err := a.users.Create(ctx, user); err != nil {
			return nil, err
		}
		return user, nil
	}
	return user, err
}

func (a *PasswordAuthenticator) credentialsByEmail(ctx context.Context, email string) (*models.Credentials, error) {
	docs, err := a.store.List(ctx, storage.Credentials, storage.Filter{Field: "email", Op: storage.OpEqual, Value: email})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, apperrors.NotFound(storage.Credentials, "email="+email)
	}
	var creds models.Credentials
	if err := storage.Decode(docs[0].Fields, &creds); err != nil {
		return nil, err
	}
	return &creds, nil
}
