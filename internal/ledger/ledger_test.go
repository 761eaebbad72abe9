package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/larder/internal/apperrors"
	"github.com/mmynk/larder/internal/models"
	"github.com/mmynk/larder/internal/repository"
	"github.com/mmynk/larder/internal/storage"
	"github.com/mmynk/larder/internal/storage/memory"
)

func setup(t *testing.T) (*memory.Store, *repository.Households, *Ledger) {
	t.Helper()
	store := memory.New()
	households := repository.NewHouseholds(store, nil)
	t.Cleanup(households.Stop)
	require.NoError(t, households.Create(context.Background(), &models.Household{
		UID: "h1", Name: "Flat", Members: []string{"alice", "bob", "carol"},
	}))
	return store, households, New(households, nil)
}

func TestRatPointsFor(t *testing.T) {
	consumed := []Consumption{
		{ItemID: "1", Owner: "bob", Amount: 0.5},
		{ItemID: "2", Owner: "alice", Amount: 10},
		{ItemID: "3", Owner: "carol", Amount: 300},
	}
	assert.Equal(t, int64(2), RatPointsFor("alice", consumed))
	assert.Equal(t, int64(0), RatPointsFor("alice", nil))
}

func TestCredit(t *testing.T) {
	_, households, l := setup(t)
	ctx := context.Background()

	got, err := l.Credit(ctx, "h1", "alice", []Consumption{{ItemID: "1", Owner: "bob", Amount: 2}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)

	got, err = l.Credit(ctx, "h1", "alice", []Consumption{{ItemID: "2", Owner: "alice", Amount: 2}})
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)

	got, err = l.Credit(ctx, "h1", "bob", []Consumption{
		{ItemID: "3", Owner: "alice"},
		{ItemID: "4", Owner: "carol"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), got)

	h, err := households.Get(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"alice": 1, "bob": 2}, h.RatPoints)
}

func TestCreditZeroDeltaSkipsWrite(t *testing.T) {
	store, _, l := setup(t)
	store.FailOn("Increment", storage.Households, errors.New("offline"))

	got, err := l.Credit(context.Background(), "h1", "alice", []Consumption{{ItemID: "1", Owner: "alice"}})
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)
}

func TestCreditFailure(t *testing.T) {
	store, _, l := setup(t)
	store.FailOn("Increment", storage.Households, errors.New("offline"))

	_, err := l.Credit(context.Background(), "h1", "alice", []Consumption{{ItemID: "1", Owner: "bob"}})
	assert.ErrorIs(t, err, apperrors.ErrRemoteIO)
}

func TestCreditMissingHousehold(t *testing.T) {
	_, _, l := setup(t)
	_, err := l.Credit(context.Background(), "gone", "alice", []Consumption{{ItemID: "1", Owner: "bob"}})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRecordSpoilageAndBoard(t *testing.T) {
	_, _, l := setup(t)
	ctx := context.Background()

	require.NoError(t, l.RecordSpoilage(ctx, "h1", "carol"))
	require.NoError(t, l.RecordSpoilage(ctx, "h1", "carol"))
	_, err := l.Credit(ctx, "h1", "bob", []Consumption{{ItemID: "1", Owner: "carol"}})
	require.NoError(t, err)

	board, err := l.Board(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, []models.Points{
		{UserID: "bob", Rat: 1},
		{UserID: "alice"},
		{UserID: "carol", Stinky: 2},
	}, board)
}
