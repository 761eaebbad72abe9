package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mmynk/larder/internal/apperrors"
	"github.com/mmynk/larder/internal/auth"
	"github.com/mmynk/larder/internal/identity"
	"github.com/mmynk/larder/internal/livecache"
	"github.com/mmynk/larder/internal/middleware"
	"github.com/mmynk/larder/internal/models"
	"github.com/mmynk/larder/internal/repository"
	"github.com/mmynk/larder/internal/storage"
)

// FoodSnapshot is one push to a watching client.
type FoodSnapshot struct {
	HouseholdID string            `json:"householdId"`
	Items       []models.FoodItem `json:"items"`
	Error       string            `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const writeWait = 10 * time.Second

// WatchHandler streams a household's food items over a websocket. Each
// connection owns a live cache subscribed to the household's items, and
// every cache replacement is written to the client as a FoodSnapshot.
//
// The token is read from the Authorization header or the token query
// parameter.
type WatchHandler struct {
	store      storage.Store
	households *repository.Households
	jwtManager *auth.JWTManager
	logger     *slog.Logger
}

// NewWatchHandler creates a WatchHandler.
func NewWatchHandler(store storage.Store, households *repository.Households, jwtManager *auth.JWTManager, logger *slog.Logger) *WatchHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WatchHandler{store: store, households: households, jwtManager: jwtManager, logger: logger}
}

func (h *WatchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	header := r.Header.Clone()
	if tok := r.URL.Query().Get("token"); tok != "" && header.Get("Authorization") == "" {
		header.Set("Authorization", "Bearer "+tok)
	}
	ctx, err := middleware.Authenticate(r.Context(), h.jwtManager, header)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	householdID := r.URL.Query().Get("household")
	if err := h.authorize(ctx, householdID); err != nil {
		status := http.StatusForbidden
		if errors.Is(err, apperrors.ErrNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade the websocket", "error", err)
		return
	}
	defer ws.Close()

	logger := h.logger.With("household_id", householdID, "user_id", identity.UserID(ctx))
	logger.Info("Watch client connected")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cache := livecache.New[models.FoodItem]("watch_food_items", h.store,
		func(it models.FoodItem) string { return it.UID }, logger)
	defer cache.Stop()
	if err := cache.Subscribe(ctx, storage.FoodItems(householdID), storage.Filter{}); err != nil {
		_ = ws.WriteJSON(FoodSnapshot{HouseholdID: householdID, Error: err.Error()})
		return
	}
	updates, stop := cache.Watch()
	defer stop()

	// The read loop only notices the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Watch client disconnected")
			return
		case items, ok := <-updates:
			if !ok {
				return
			}
			snap := FoodSnapshot{HouseholdID: householdID, Items: items}
			if err := cache.Err(); err != nil {
				snap.Error = err.Error()
			}
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(snap); err != nil {
				logger.Warn("Failed to write WebSocket JSON", "error", err)
				return
			}
		}
	}
}

func (h *WatchHandler) authorize(ctx context.Context, householdID string) error {
	if householdID == "" {
		return apperrors.Validation("household query parameter required")
	}
	hh, err := h.households.Get(ctx, householdID)
	if err != nil {
		return err
	}
	if !hh.IsMember(identity.UserID(ctx)) {
		return apperrors.Validation("not a member of household %s", householdID)
	}
	return nil
}
