package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/larder/internal/apperrors"
	"github.com/mmynk/larder/internal/storage"
	"github.com/mmynk/larder/internal/storage/storagetest"
)

func TestMemoryStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return New(WithMaxBatchSize(3))
	})
}

func TestFailOn(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, storage.Households, "h1", map[string]any{"uid": "h1"}, false))

	boom := errors.New("boom")
	s.FailOn("ArrayUnion", storage.Households, boom)

	err := s.ArrayUnion(ctx, storage.Households, "h1", "members", "a")
	assert.ErrorIs(t, err, apperrors.ErrRemoteIO)
	assert.ErrorIs(t, err, boom)

	// Other operations and collections are unaffected.
	require.NoError(t, s.ArrayRemove(ctx, storage.Households, "h1", "members", "a"))
	require.NoError(t, s.Set(ctx, storage.Users, "u1", map[string]any{"uid": "u1"}, false))

	s.FailOn("ArrayUnion", storage.Households, nil)
	require.NoError(t, s.ArrayUnion(ctx, storage.Households, "h1", "members", "a"))
}

func TestFailedWriteDoesNotPublish(t *testing.T) {
	s := New()
	ctx := context.Background()
	sub, err := s.Subscribe(ctx, storage.Users, storage.Filter{})
	require.NoError(t, err)
	defer sub.Close()
	storagetest.Next(t, sub)

	s.FailOn("Set", storage.Users, errors.New("offline"))
	require.Error(t, s.Set(ctx, storage.Users, "u1", map[string]any{"uid": "u1"}, false))

	select {
	case docs := <-sub.C():
		t.Fatalf("unexpected push %v", docs)
	default:
	}
}

func TestSubscribers(t *testing.T) {
	s := New()
	ctx := context.Background()
	sub, err := s.Subscribe(ctx, storage.Invitations, storage.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Subscribers(storage.Invitations))

	require.NoError(t, sub.Close())
	assert.Equal(t, 0, s.Subscribers(storage.Invitations))
}

func TestClose(t *testing.T) {
	s := New()
	require.NoError(t, s.Close())
	_, err := s.Get(context.Background(), storage.Users, "u1")
	assert.ErrorIs(t, err, apperrors.ErrRemoteIO)
}

func TestDocumentsAreCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, storage.Households, "h1", map[string]any{"uid": "h1", "members": []string{"a"}}, false))

	doc, err := s.Get(ctx, storage.Households, "h1")
	require.NoError(t, err)
	doc.Fields["members"].([]any)[0] = "mutated"

	again, err := s.Get(ctx, storage.Households, "h1")
	require.NoError(t, err)
	assert.Equal(t, []any{"a"}, again.Fields["members"])
}
