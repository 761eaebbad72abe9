// Package ledger derives point deltas and merges them into households.
//
// Rat points reward eating a housemate's food: each foreign-owned food item
// consumed by a committed recipe session earns the consumer one point,
// whatever the amount taken. Stinky points record a member's own food thrown
// away spoiled. Both maps only grow, and every credit is an atomic map-key
// increment, so concurrent credits from different users commute.
package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mmynk/larder/internal/metrics"
	"github.com/mmynk/larder/internal/models"
	"github.com/mmynk/larder/internal/repository"
)

// Consumption is one food item consumed by a committed allocation.
type Consumption struct {
	ItemID string
	Owner  string
	Amount float64
}

// Ledger credits points through the household facade.
type Ledger struct {
	households *repository.Households
	logger     *slog.Logger
}

// New creates a ledger.
func New(households *repository.Households, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{households: households, logger: logger}
}

// RatPointsFor returns how many rat points acting earns for consumed: one per
// item owned by someone else.
func RatPointsFor(actingUserID string, consumed []Consumption) int64 {
	var n int64
	for _, c := range consumed {
		if c.Owner != actingUserID {
			n++
		}
	}
	return n
}

// Credit increments householdID's ratPoints[actingUserID] by the number of
// consumed items owned by other users. Own items earn nothing and a zero
// delta performs no write.
func (l *Ledger) Credit(ctx context.Context, householdID, actingUserID string, consumed []Consumption) (int64, error) {
	delta := RatPointsFor(actingUserID, consumed)
	if delta == 0 {
		return 0, nil
	}
	if err := l.households.IncrementRatPoints(ctx, householdID, actingUserID, delta); err != nil {
		l.logger.Error("Rat points credit failed",
			"household_id", householdID,
			"user_id", actingUserID,
			"delta", delta,
			"error", err,
		)
		return 0, fmt.Errorf("credit rat points: %w", err)
	}
	metrics.PointsAwarded.WithLabelValues("rat").Add(float64(delta))
	l.logger.Info("Rat points credited", "household_id", householdID, "user_id", actingUserID, "delta", delta)
	return delta, nil
}

// RecordSpoilage increments householdID's stinkyPoints[owner] by one.
func (l *Ledger) RecordSpoilage(ctx context.Context, householdID, owner string) error {
	if err := l.households.IncrementStinkyPoints(ctx, householdID, owner, 1); err != nil {
		return fmt.Errorf("credit stinky points: %w", err)
	}
	metrics.PointsAwarded.WithLabelValues("stinky").Inc()
	l.logger.Info("Stinky point recorded", "household_id", householdID, "user_id", owner)
	return nil
}

// Board reads householdID and returns its members ranked by rat points.
func (l *Ledger) Board(ctx context.Context, householdID string) ([]models.Points, error) {
	h, err := l.households.Get(ctx, householdID)
	if err != nil {
		return nil, err
	}
	return h.Board(), nil
}
