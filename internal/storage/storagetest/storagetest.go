// Package storagetest holds the behavior every storage.Store backend must
// share. Backends call Run from their own tests.
package storagetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/larder/internal/apperrors"
	"github.com/mmynk/larder/internal/storage"
)

// Factory returns a fresh, empty store. Cleanup is the caller's job.
type Factory func(t *testing.T) storage.Store

// Run runs the shared store behavior against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newStore(t)) })
	t.Run("SetGet", func(t *testing.T) { testSetGet(t, newStore(t)) })
	t.Run("SetMerge", func(t *testing.T) { testSetMerge(t, newStore(t)) })
	t.Run("UpdateFields", func(t *testing.T) { testUpdateFields(t, newStore(t)) })
	t.Run("DeleteIdempotent", func(t *testing.T) { testDeleteIdempotent(t, newStore(t)) })
	t.Run("ArrayOps", func(t *testing.T) { testArrayOps(t, newStore(t)) })
	t.Run("ArrayOpsMissingDocument", func(t *testing.T) { testArrayOpsMissing(t, newStore(t)) })
	t.Run("Increment", func(t *testing.T) { testIncrement(t, newStore(t)) })
	t.Run("GetBatch", func(t *testing.T) { testGetBatch(t, newStore(t)) })
	t.Run("List", func(t *testing.T) { testList(t, newStore(t)) })
	t.Run("Subscribe", func(t *testing.T) { testSubscribe(t, newStore(t)) })
	t.Run("SubscribeCancel", func(t *testing.T) { testSubscribeCancel(t, newStore(t)) })
	t.Run("SubCollections", func(t *testing.T) { testSubCollections(t, newStore(t)) })
}

func testGetMissing(t *testing.T, s storage.Store) {
	_, err := s.Get(context.Background(), storage.Users, "nobody")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func testSetGet(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, storage.Users, "u1", map[string]any{
		"uid":           "u1",
		"email":         "a@example.com",
		"householdUIDs": []string{"h1"},
	}, false))

	doc, err := s.Get(ctx, storage.Users, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", doc.ID)
	assert.Equal(t, "a@example.com", doc.Fields["email"])
	assert.Equal(t, []any{"h1"}, doc.Fields["householdUIDs"])

	// Replacing drops fields not written.
	require.NoError(t, s.Set(ctx, storage.Users, "u1", map[string]any{"uid": "u1"}, false))
	doc, err = s.Get(ctx, storage.Users, "u1")
	require.NoError(t, err)
	assert.NotContains(t, doc.Fields, "email")
}

func testSetMerge(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, storage.Users, "u1", map[string]any{"uid": "u1", "email": "a@example.com"}, false))
	require.NoError(t, s.Set(ctx, storage.Users, "u1", map[string]any{"username": "ann"}, true))

	doc, err := s.Get(ctx, storage.Users, "u1")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", doc.Fields["email"])
	assert.Equal(t, "ann", doc.Fields["username"])
}

func testUpdateFields(t *testing.T, s storage.Store) {
	ctx := context.Background()
	err := s.UpdateFields(ctx, storage.Users, "u1", map[string]any{"username": "x"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	require.NoError(t, s.Set(ctx, storage.Households, "h1", map[string]any{
		"uid":       "h1",
		"foodFacts": map[string]any{"quantity": map[string]any{"amount": 3, "unit": "g"}},
	}, false))
	require.NoError(t, s.UpdateFields(ctx, storage.Households, "h1", map[string]any{
		"foodFacts.quantity.amount": 1.5,
	}))

	doc, err := s.Get(ctx, storage.Households, "h1")
	require.NoError(t, err)
	v, ok := storage.GetPath(doc.Fields, "foodFacts.quantity.amount")
	require.True(t, ok)
	assert.Equal(t, 1.5, v)
	unit, _ := storage.GetPath(doc.Fields, "foodFacts.quantity.unit")
	assert.Equal(t, "g", unit)
}

func testDeleteIdempotent(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, storage.Invitations, "i1", map[string]any{"invitationId": "i1"}, false))
	require.NoError(t, s.Delete(ctx, storage.Invitations, "i1"))
	require.NoError(t, s.Delete(ctx, storage.Invitations, "i1"))
	require.NoError(t, s.Delete(ctx, storage.Invitations, "never-existed"))

	_, err := s.Get(ctx, storage.Invitations, "i1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func testArrayOps(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, storage.Households, "h1", map[string]any{"uid": "h1", "members": []string{"a"}}, false))

	require.NoError(t, s.ArrayUnion(ctx, storage.Households, "h1", "members", "b"))
	require.NoError(t, s.ArrayUnion(ctx, storage.Households, "h1", "members", "b"))
	doc, err := s.Get(ctx, storage.Households, "h1")
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, doc.Fields["members"])

	require.NoError(t, s.ArrayRemove(ctx, storage.Households, "h1", "members", "a"))
	require.NoError(t, s.ArrayRemove(ctx, storage.Households, "h1", "members", "a"))
	doc, err = s.Get(ctx, storage.Households, "h1")
	require.NoError(t, err)
	assert.Equal(t, []any{"b"}, doc.Fields["members"])

	// Union into an absent field creates it.
	require.NoError(t, s.ArrayUnion(ctx, storage.Households, "h1", "sharedRecipes", "r1"))
	doc, err = s.Get(ctx, storage.Households, "h1")
	require.NoError(t, err)
	assert.Equal(t, []any{"r1"}, doc.Fields["sharedRecipes"])
}

func testArrayOpsMissing(t *testing.T, s storage.Store) {
	ctx := context.Background()
	assert.ErrorIs(t, s.ArrayUnion(ctx, storage.Households, "gone", "members", "a"), apperrors.ErrNotFound)
	assert.ErrorIs(t, s.ArrayRemove(ctx, storage.Households, "gone", "members", "a"), apperrors.ErrNotFound)
	assert.ErrorIs(t, s.Increment(ctx, storage.Households, "gone", "ratPoints.a", 1), apperrors.ErrNotFound)

	// A failed mutation must not create the document.
	_, err := s.Get(ctx, storage.Households, "gone")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func testIncrement(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, storage.Households, "h1", map[string]any{"uid": "h1", "ratPoints": map[string]any{}}, false))

	require.NoError(t, s.Increment(ctx, storage.Households, "h1", "ratPoints.alice", 1))
	require.NoError(t, s.Increment(ctx, storage.Households, "h1", "ratPoints.alice", 2))
	require.NoError(t, s.Increment(ctx, storage.Households, "h1", "ratPoints.bob", 1))

	doc, err := s.Get(ctx, storage.Households, "h1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"alice": 3.0, "bob": 1.0}, doc.Fields["ratPoints"])
}

func testGetBatch(t *testing.T, s storage.Store) {
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Set(ctx, storage.Users, id, map[string]any{"uid": id}, false))
	}

	docs, err := s.GetBatch(ctx, storage.Users, []string{"a", "missing", "c"})
	require.NoError(t, err)
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	assert.ElementsMatch(t, []string{"a", "c"}, ids)

	docs, err = s.GetBatch(ctx, storage.Users, nil)
	require.NoError(t, err)
	assert.Empty(t, docs)

	tooMany := make([]string, s.MaxBatchSize()+1)
	for i := range tooMany {
		tooMany[i] = fmt.Sprintf("id-%d", i)
	}
	_, err = s.GetBatch(ctx, storage.Users, tooMany)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func testList(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, storage.Households, "h1", map[string]any{"uid": "h1", "members": []string{"a", "b"}}, false))
	require.NoError(t, s.Set(ctx, storage.Households, "h2", map[string]any{"uid": "h2", "members": []string{"b"}}, false))
	require.NoError(t, s.Set(ctx, storage.Invitations, "i1", map[string]any{"invitationId": "i1", "invitedUserId": "a"}, false))
	require.NoError(t, s.Set(ctx, storage.Invitations, "i2", map[string]any{"invitationId": "i2", "invitedUserId": "b"}, false))

	all, err := s.List(ctx, storage.Households, storage.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	withA, err := s.List(ctx, storage.Households, storage.Filter{Field: "members", Op: storage.OpArrayContains, Value: "a"})
	require.NoError(t, err)
	require.Len(t, withA, 1)
	assert.Equal(t, "h1", withA[0].ID)

	forB, err := s.List(ctx, storage.Invitations, storage.Filter{Field: "invitedUserId", Op: storage.OpEqual, Value: "b"})
	require.NoError(t, err)
	require.Len(t, forB, 1)
	assert.Equal(t, "i2", forB[0].ID)
}

// Next waits for the next snapshot on sub.
func Next(t *testing.T, sub storage.Subscription) []storage.Document {
	t.Helper()
	select {
	case docs, ok := <-sub.C():
		require.True(t, ok, "subscription closed")
		return docs
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

func testSubscribe(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, storage.Invitations, "i1", map[string]any{"invitationId": "i1", "invitedUserId": "a"}, false))

	sub, err := s.Subscribe(ctx, storage.Invitations, storage.Filter{Field: "invitedUserId", Op: storage.OpEqual, Value: "a"})
	require.NoError(t, err)
	defer sub.Close()

	assert.Len(t, Next(t, sub), 1)

	require.NoError(t, s.Set(ctx, storage.Invitations, "i2", map[string]any{"invitationId": "i2", "invitedUserId": "a"}, false))
	assert.Len(t, Next(t, sub), 2)

	require.NoError(t, s.Delete(ctx, storage.Invitations, "i1"))
	docs := Next(t, sub)
	require.Len(t, docs, 1)
	assert.Equal(t, "i2", docs[0].ID)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	_, ok := <-sub.C()
	assert.False(t, ok)
}

func testSubscribeCancel(t *testing.T, s storage.Store) {
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := s.Subscribe(ctx, storage.Users, storage.Filter{})
	require.NoError(t, err)
	Next(t, sub)

	cancel()
	select {
	case _, ok := <-sub.C():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed after cancel")
	}
}

func testSubCollections(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, storage.FoodItems("h1"), "f1", map[string]any{"uid": "f1"}, false))
	require.NoError(t, s.Set(ctx, storage.FoodItems("h2"), "f2", map[string]any{"uid": "f2"}, false))

	docs, err := s.List(ctx, storage.FoodItems("h1"), storage.Filter{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "f1", docs[0].ID)
}
