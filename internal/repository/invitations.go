package repository

import (
	"context"
	"log/slog"

	"github.com/mmynk/larder/internal/livecache"
	"github.com/mmynk/larder/internal/models"
	"github.com/mmynk/larder/internal/storage"
)

// Invitations is the Invitation aggregate facade.
type Invitations struct {
	store  storage.Store
	cache  *livecache.Cache[models.Invitation]
	logger *slog.Logger
}

// NewInvitations creates the invitation facade.
func NewInvitations(store storage.Store, logger *slog.Logger) *Invitations {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invitations{
		store:  store,
		cache:  livecache.New("invitations", store, func(i models.Invitation) string { return i.InvitationID }, logger),
		logger: logger,
	}
}

// Cache exposes the observable invitation cache.
func (r *Invitations) Cache() *livecache.Cache[models.Invitation] { return r.cache }

// Watch subscribes the cache to invitations addressed to uid.
func (r *Invitations) Watch(ctx context.Context, uid string) error {
	return r.cache.Subscribe(ctx, storage.Invitations,
		storage.Filter{Field: "invitedUserId", Op: storage.OpEqual, Value: uid})
}

// LoadForUser batch-fetches the user's pending invitations into the cache.
func (r *Invitations) LoadForUser(ctx context.Context, user *models.User) ([]models.Invitation, error) {
	return r.cache.Load(ctx, storage.Invitations, user.InvitationUIDs)
}

// Stop releases the cache subscription.
func (r *Invitations) Stop() { r.cache.Stop() }

// Get reads an invitation document.
func (r *Invitations) Get(ctx context.Context, id string) (*models.Invitation, error) {
	return get[models.Invitation](ctx, r.store, storage.Invitations, id)
}

// Create writes a new invitation document.
func (r *Invitations) Create(ctx context.Context, inv *models.Invitation) error {
	if err := put(ctx, r.store, storage.Invitations, inv.InvitationID, inv); err != nil {
		return err
	}
	r.cache.Put(*inv)
	return nil
}

// Delete removes the invitation document. Deleting twice is not an error.
func (r *Invitations) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, storage.Invitations, id); err != nil {
		return err
	}
	r.cache.Remove(id)
	return nil
}

// ListForHousehold returns pending invitations into householdID.
func (r *Invitations) ListForHousehold(ctx context.Context, householdID string) ([]models.Invitation, error) {
	docs, err := r.store.List(ctx, storage.Invitations,
		storage.Filter{Field: "householdId", Op: storage.OpEqual, Value: householdID})
	if err != nil {
		return nil, err
	}
	out := make([]models.Invitation, 0, len(docs))
	for _, d := range docs {
		var inv models.Invitation
		if err := storage.Decode(d.Fields, &inv); err != nil {
			r.logger.Warn("Skipping malformed invitation", "invitation_id", d.ID, "error", err)
			continue
		}
		out = append(out, inv)
	}
	return out, nil
}
