// Package storage provides abstractions for the backing document store.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/mmynk/larder/internal/apperrors"
)

// Collection names.
const (
	Users       = "users"
	Households  = "households"
	Invitations = "invitations"
	Credentials = "credentials"
)

// DefaultMaxBatchSize caps GetBatch, mirroring the "in" query limit of
// hosted document stores.
const DefaultMaxBatchSize = 30

// FoodItems returns the food item sub-collection of a household.
func FoodItems(householdID string) string {
	return path.Join(Households, householdID, "foodItems")
}

// Document is one stored document. Fields are JSON-normalized: numbers are
// float64, arrays are []any and nested objects are map[string]any.
type Document struct {
	ID     string
	Fields map[string]any
}

// Op is a filter operator.
type Op int

const (
	// OpEqual matches documents whose field equals Value.
	OpEqual Op = iota
	// OpArrayContains matches documents whose array field contains Value.
	OpArrayContains
)

// Filter restricts a List or Subscribe to matching documents.
// The zero Filter matches every document.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Subscription is a push stream of collection snapshots. Every value on C is
// the complete filtered collection.
type Subscription interface {
	C() <-chan []Document
	Close() error
}

// Store defines the document operations the household core relies on.
// This abstraction allows swapping backends (SQLite, in-memory) without
// changing the repository layer.
type Store interface {
	// Get retrieves a document. Returns apperrors.ErrNotFound if absent.
	Get(ctx context.Context, collection, id string) (*Document, error)

	// GetBatch retrieves the documents that exist among ids in one read.
	// Callers must chunk ids longer than MaxBatchSize.
	GetBatch(ctx context.Context, collection string, ids []string) ([]Document, error)

	// List returns the documents of collection matching filter.
	List(ctx context.Context, collection string, filter Filter) ([]Document, error)

	// Set writes fields to the document. With merge, existing fields not in
	// fields are kept; otherwise the document is replaced.
	Set(ctx context.Context, collection, id string, fields map[string]any, merge bool) error

	// UpdateFields partially updates an existing document. Keys may be dotted
	// paths into nested maps.
	UpdateFields(ctx context.Context, collection, id string, fields map[string]any) error

	// Delete removes a document. Deleting an absent document is a no-op.
	Delete(ctx context.Context, collection, id string) error

	// ArrayUnion adds value to the array at field unless already present.
	ArrayUnion(ctx context.Context, collection, id, field string, value any) error

	// ArrayRemove removes every occurrence of value from the array at field.
	ArrayRemove(ctx context.Context, collection, id, field string, value any) error

	// Increment adds delta to the numeric field, treating absent as zero.
	Increment(ctx context.Context, collection, id, field string, delta int64) error

	// Subscribe pushes the filtered collection now and after every write.
	Subscribe(ctx context.Context, collection string, filter Filter) (Subscription, error)

	// MaxBatchSize is the largest id list GetBatch accepts.
	MaxBatchSize() int

	// Close releases any resources held by the store.
	Close() error
}

// Encode converts a model value into document fields.
func Encode(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("failed to normalize document: %w", err)
	}
	return fields, nil
}

// Decode converts document fields into a model value.
func Decode(fields map[string]any, v any) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperrors.Validation("malformed document: %v", err)
	}
	return nil
}
