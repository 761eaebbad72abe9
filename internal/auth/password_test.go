package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmynk/larder/internal/apperrors"
	"github.com/mmynk/larder/internal/repository"
	"github.com/mmynk/larder/internal/storage"
	"github.com/mmynk/larder/internal/storage/memory"
)

func newAuthenticator(t *testing.T) (*memory.Store, *repository.Users, *PasswordAuthenticator) {
	t.Helper()
	store := memory.New()
	users := repository.NewUsers(store, nil)
	t.Cleanup(users.Stop)
	return store, users, NewPasswordAuthenticator(store, users).WithCost(bcrypt.MinCost)
}

func TestRegisterAndAuthenticate(t *testing.T) {
	_, users, a := newAuthenticator(t)
	ctx := context.Background()

	u, err := a.Register(ctx, " Alice@Example.com ", "alice", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Empty(t, u.HouseholdUIDs)

	stored, err := users.FindByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.UID, stored.UID)

	got, err := a.Authenticate(ctx, "alice@EXAMPLE.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, u.UID, got.UID)
	assert.Equal(t, "alice", got.Username)
}

func TestRegisterRejects(t *testing.T) {
	_, _, a := newAuthenticator(t)
	ctx := context.Background()

	_, err := a.Register(ctx, "alice@example.com", "alice", "short")
	assert.ErrorIs(t, err, ErrWeakPassword)

	_, err = a.Register(ctx, "alice@example.com", "alice", "correct horse")
	require.NoError(t, err)
	_, err = a.Register(ctx, "ALICE@example.com", "other", "another password")
	assert.ErrorIs(t, err, ErrEmailExists)
}

func TestAuthenticateRejects(t *testing.T) {
	_, _, a := newAuthenticator(t)
	ctx := context.Background()
	_, err := a.Register(ctx, "alice@example.com", "alice", "correct horse")
	require.NoError(t, err)

	_, err = a.Authenticate(ctx, "alice@example.com", "wrong horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = a.Authenticate(ctx, "bob@example.com", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticateRecreatesMissingUser(t *testing.T) {
	store, users, a := newAuthenticator(t)
	ctx := context.Background()
	u, err := a.Register(ctx, "alice@example.com", "alice", "correct horse")
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, storage.Users, u.UID))

	got, err := a.Authenticate(ctx, "alice@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, u.UID, got.UID)

	_, err = users.Get(ctx, u.UID)
	assert.NoError(t, err)
}

func TestRegisterCredentialsFailure(t *testing.T) {
	store, users, a := newAuthenticator(t)
	ctx := context.Background()

	store.FailOn("Set", storage.Credentials, errors.New("offline"))
	_, err := a.Register(ctx, "alice@example.com", "alice", "correct horse")
	require.ErrorIs(t, err, apperrors.ErrRemoteIO)
	_, err = users.FindByEmail(ctx, "alice@example.com")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	store.FailOn("Set", storage.Credentials, nil)
	u, err := a.Register(ctx, "alice@example.com", "alice", "correct horse")
	require.NoError(t, err)
	stored, err := users.FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.UID, stored.UID)
}

func TestRegisterUserFailureRecoversOnLogin(t *testing.T) {
	store, users, a := newAuthenticator(t)
	ctx := context.Background()

	store.FailOn("Set", storage.Users, errors.New("offline"))
	_, err := a.Register(ctx, "alice@example.com", "alice", "correct horse")
	require.ErrorIs(t, err, apperrors.ErrRemoteIO)
	store.FailOn("Set", storage.Users, nil)

	_, err = a.Register(ctx, "alice@example.com", "alice", "correct horse")
	assert.ErrorIs(t, err, ErrEmailExists)

	got, err := a.Authenticate(ctx, "alice@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	stored, err := users.FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, got.UID, stored.UID)
}
