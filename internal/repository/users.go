package repository

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mmynk/larder/internal/apperrors"
	"github.com/mmynk/larder/internal/livecache"
	"github.com/mmynk/larder/internal/models"
	"github.com/mmynk/larder/internal/storage"
)

// Users is the User aggregate facade.
type Users struct {
	store  storage.Store
	cache  *livecache.Cache[models.User]
	logger *slog.Logger
}

// NewUsers creates the user facade.
func NewUsers(store storage.Store, logger *slog.Logger) *Users {
	if logger == nil {
		logger = slog.Default()
	}
	return &Users{
		store:  store,
		cache:  livecache.New("users", store, func(u models.User) string { return u.UID }, logger),
		logger: logger,
	}
}

// Cache exposes the observable user cache.
func (r *Users) Cache() *livecache.Cache[models.User] { return r.cache }

// Watch subscribes the cache to the user document uid.
func (r *Users) Watch(ctx context.Context, uid string) error {
	return r.cache.Subscribe(ctx, storage.Users, storage.Filter{Field: "uid", Op: storage.OpEqual, Value: uid})
}

// Stop releases the cache subscription.
func (r *Users) Stop() { r.cache.Stop() }

// Get reads a user document.
func (r *Users) Get(ctx context.Context, uid string) (*models.User, error) {
	return get[models.User](ctx, r.store, storage.Users, uid)
}

// Current returns the cached copy of uid when present, else reads it.
func (r *Users) Current(ctx context.Context, uid string) (*models.User, error) {
	if u, ok := r.cache.Get(uid); ok {
		return &u, nil
	}
	return r.Get(ctx, uid)
}

// Create writes a new user document. The cache only mirrors the watched
// user and picks the document up from the next push.
func (r *Users) Create(ctx context.Context, user *models.User) error {
	return put(ctx, r.store, storage.Users, user.UID, user)
}

// FindByEmail returns the user with email, or apperrors.ErrNotFound.
// Emails compare case-insensitively.
func (r *Users) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	docs, err := r.store.List(ctx, storage.Users, storage.Filter{Field: "email", Op: storage.OpEqual, Value: email})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, apperrors.NotFound(storage.Users, "email="+email)
	}
	var u models.User
	if err := storage.Decode(docs[0].Fields, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// AddHousehold array-unions householdID into the user's households.
func (r *Users) AddHousehold(ctx context.Context, uid, householdID string) error {
	if err := r.store.ArrayUnion(ctx, storage.Users, uid, "householdUIDs", householdID); err != nil {
		return err
	}
	r.optimistic(uid, func(u *models.User) { u.HouseholdUIDs = addID(u.HouseholdUIDs, householdID) })
	return nil
}

// RemoveHousehold array-removes householdID from the user's households.
func (r *Users) RemoveHousehold(ctx context.Context, uid, householdID string) error {
	if err := r.store.ArrayRemove(ctx, storage.Users, uid, "householdUIDs", householdID); err != nil {
		return err
	}
	r.optimistic(uid, func(u *models.User) { u.HouseholdUIDs = removeID(u.HouseholdUIDs, householdID) })
	return nil
}

// AddInvitation array-unions invitationID into the user's pending invitations.
func (r *Users) AddInvitation(ctx context.Context, uid, invitationID string) error {
	if err := r.store.ArrayUnion(ctx, storage.Users, uid, "invitationUIDs", invitationID); err != nil {
		return err
	}
	r.optimistic(uid, func(u *models.User) { u.InvitationUIDs = addID(u.InvitationUIDs, invitationID) })
	return nil
}

// RemoveInvitation array-removes invitationID from the user's pending invitations.
func (r *Users) RemoveInvitation(ctx context.Context, uid, invitationID string) error {
	if err := r.store.ArrayRemove(ctx, storage.Users, uid, "invitationUIDs", invitationID); err != nil {
		return err
	}
	r.optimistic(uid, func(u *models.User) { u.InvitationUIDs = removeID(u.InvitationUIDs, invitationID) })
	return nil
}

// AddRecipe array-unions recipeID into the user's saved recipes.
func (r *Users) AddRecipe(ctx context.Context, uid, recipeID string) error {
	if err := r.store.ArrayUnion(ctx, storage.Users, uid, "recipeUIDs", recipeID); err != nil {
		return err
	}
	r.optimistic(uid, func(u *models.User) { u.RecipeUIDs = addID(u.RecipeUIDs, recipeID) })
	return nil
}

// SetSelectedHousehold stores the user's selection; "" means none.
func (r *Users) SetSelectedHousehold(ctx context.Context, uid, householdID string) error {
	err := r.store.UpdateFields(ctx, storage.Users, uid, map[string]any{"selectedHouseholdUID": householdID})
	if err != nil {
		return err
	}
	r.optimistic(uid, func(u *models.User) { u.SelectedHouseholdUID = householdID })
	return nil
}

func (r *Users) optimistic(uid string, fn func(*models.User)) {
	u, ok := r.cache.Get(uid)
	if !ok {
		return
	}
	fn(&u)
	r.cache.Put(u)
}
