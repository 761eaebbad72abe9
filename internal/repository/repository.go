// Package repository provides one facade per aggregate. Each facade owns a
// live cache for its collection plus the single-document operations the
// protocols are built from. Facades never coordinate with each other; the
// coordinator package does that.
package repository

import (
	"context"
	"errors"

	"github.com/mmynk/larder/internal/apperrors"
	"github.com/mmynk/larder/internal/storage"
)

func get[T any](ctx context.Context, store storage.Store, collection, id string) (*T, error) {
	doc, err := store.Get(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	var v T
	if err := storage.Decode(doc.Fields, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func put(ctx context.Context, store storage.Store, collection, id string, v any) error {
	fields, err := storage.Encode(v)
	if err != nil {
		return err
	}
	return store.Set(ctx, collection, id, fields, false)
}

// IgnoreNotFound returns nil for apperrors.ErrNotFound.
func IgnoreNotFound(err error) error {
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil
	}
	return err
}

// removeID returns ids without id.
func removeID(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// addID returns ids with id appended unless present.
func addID(ids []string, id string) []string {
	for _, v := range ids {
		if v == id {
			return ids
		}
	}
	out := make([]string, len(ids), len(ids)+1)
	copy(out, ids)
	return append(out, id)
}
