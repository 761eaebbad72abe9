// Package sqlite provides a SQLite-backed implementation of the storage.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/mmynk/larder/internal/apperrors"
	"github.com/mmynk/larder/internal/storage"
)

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

// SQLiteStore implements storage.Store using SQLite.
type SQLiteStore struct {
	db       *sql.DB
	maxBatch int
	broker   *storage.Broker
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string, maxBatch int) (*SQLiteStore, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Open database with pure Go driver
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Read-modify-write mutations rely on a single writer connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// Run migrations
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if maxBatch <= 0 {
		maxBatch = storage.DefaultMaxBatchSize
	}
	s := &SQLiteStore{db: db, maxBatch: maxBatch}
	s.broker = storage.NewBroker(s.List)
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) MaxBatchSize() int { return s.maxBatch }

// Get retrieves a document by collection and ID.
func (s *SQLiteStore) Get(ctx context.Context, collection, id string) (*storage.Document, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		"SELECT body FROM documents WHERE collection = ? AND id = ?",
		collection, id,
	).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound(collection, id)
	}
	if err != nil {
		return nil, apperrors.RemoteIO("get document", err)
	}

	fields, err := decodeBody(body)
	if err != nil {
		return nil, err
	}
	return &storage.Document{ID: id, Fields: fields}, nil
}

// GetBatch retrieves the existing documents among ids in one query.
func (s *SQLiteStore) GetBatch(ctx context.Context, collection string, ids []string) ([]storage.Document, error) {
	if err := storage.CheckBatch(ids, s.maxBatch); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []storage.Document{}, nil
	}

	// Build the IN clause with placeholders
	query := `SELECT id, body FROM documents
		WHERE collection = ? AND id IN (?` + repeatPlaceholder(len(ids)-1) + `)
		ORDER BY id`

	args := make([]any, 0, len(ids)+1)
	args = append(args, collection)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.RemoteIO("get documents by ids", err)
	}
	defer rows.Close()

	return scanDocuments(rows)
}

// List retrieves the documents of a collection matching filter.
// String equality and array-contains filters are pushed into SQL.
func (s *SQLiteStore) List(ctx context.Context, collection string, filter storage.Filter) ([]storage.Document, error) {
	query := "SELECT id, body FROM documents WHERE collection = ?"
	args := []any{collection}

	if value, ok := filter.Value.(string); ok && filter.Field != "" {
		jsonPath := "$." + filter.Field
		switch filter.Op {
		case storage.OpEqual:
			query += " AND json_extract(body, ?) = ?"
			args = append(args, jsonPath, value)
		case storage.OpArrayContains:
			query += " AND EXISTS (SELECT 1 FROM json_each(body, ?) WHERE value = ?)"
			args = append(args, jsonPath, value)
		}
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.RemoteIO("list documents", err)
	}
	defer rows.Close()

	docs, err := scanDocuments(rows)
	if err != nil {
		return nil, err
	}

	matched := docs[:0]
	for _, d := range docs {
		if storage.Matches(d.Fields, filter) {
			matched = append(matched, d)
		}
	}
	return matched, nil
}

// Set writes a document, merging into the existing one when merge is set.
func (s *SQLiteStore) Set(ctx context.Context, collection, id string, fields map[string]any, merge bool) error {
	return s.write(ctx, collection, id, true, func(doc map[string]any) (map[string]any, error) {
		if doc == nil || !merge {
			doc = make(map[string]any)
		}
		if err := storage.ApplyUpdate(doc, fields); err != nil {
			return nil, err
		}
		return doc, nil
	})
}

// UpdateFields partially updates an existing document.
func (s *SQLiteStore) UpdateFields(ctx context.Context, collection, id string, fields map[string]any) error {
	return s.write(ctx, collection, id, false, func(doc map[string]any) (map[string]any, error) {
		return doc, storage.ApplyUpdate(doc, fields)
	})
}

// Delete removes a document. Absent documents are ignored.
func (s *SQLiteStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM documents WHERE collection = ? AND id = ?",
		collection, id,
	)
	if err != nil {
		return apperrors.RemoteIO("delete document", err)
	}
	s.broker.Publish(collection)
	return nil
}

func (s *SQLiteStore) ArrayUnion(ctx context.Context, collection, id, field string, value any) error {
	return s.write(ctx, collection, id, false, func(doc map[string]any) (map[string]any, error) {
		return doc, storage.ApplyArrayUnion(doc, field, value)
	})
}

func (s *SQLiteStore) ArrayRemove(ctx context.Context, collection, id, field string, value any) error {
	return s.write(ctx, collection, id, false, func(doc map[string]any) (map[string]any, error) {
		return doc, storage.ApplyArrayRemove(doc, field, value)
	})
}

func (s *SQLiteStore) Increment(ctx context.Context, collection, id, field string, delta int64) error {
	return s.write(ctx, collection, id, false, func(doc map[string]any) (map[string]any, error) {
		return doc, storage.ApplyIncrement(doc, field, delta)
	})
}

// Subscribe pushes the filtered collection now and after every write to it.
func (s *SQLiteStore) Subscribe(ctx context.Context, collection string, filter storage.Filter) (storage.Subscription, error) {
	return s.broker.Subscribe(ctx, collection, filter)
}

// write runs a read-modify-write of one document inside a transaction.
// fn receives nil when the document does not exist; that is only allowed
// when create is set.
func (s *SQLiteStore) write(ctx context.Context, collection, id string, create bool,
	fn func(map[string]any) (map[string]any, error)) error {

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.RemoteIO("begin transaction", err)
	}
	defer tx.Rollback()

	var doc map[string]any
	var body string
	err = tx.QueryRowContext(ctx,
		"SELECT body FROM documents WHERE collection = ? AND id = ?",
		collection, id,
	).Scan(&body)
	switch {
	case err == sql.ErrNoRows:
		if !create {
			return apperrors.NotFound(collection, id)
		}
	case err != nil:
		return apperrors.RemoteIO("read document", err)
	default:
		if doc, err = decodeBody(body); err != nil {
			return err
		}
	}

	doc, err = fn(doc)
	if err != nil {
		return err
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return apperrors.Validation("unencodable document: %v", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (collection, id, body, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(collection, id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		collection, id, string(data), time.Now().UnixMilli(),
	)
	if err != nil {
		return apperrors.RemoteIO("write document", err)
	}

	if err := tx.Commit(); err != nil {
		return apperrors.RemoteIO("commit transaction", err)
	}

	s.broker.Publish(collection)
	return nil
}

func scanDocuments(rows *sql.Rows) ([]storage.Document, error) {
	docs := []storage.Document{}
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, apperrors.RemoteIO("scan document", err)
		}
		fields, err := decodeBody(body)
		if err != nil {
			return nil, err
		}
		docs = append(docs, storage.Document{ID: id, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.RemoteIO("iterate documents", err)
	}
	return docs, nil
}

func decodeBody(body string) (map[string]any, error) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return nil, apperrors.Validation("corrupt document body: %v", err)
	}
	return fields, nil
}

// repeatPlaceholder returns a string of ", ?" repeated n times.
// Used for building IN clauses with multiple placeholders.
func repeatPlaceholder(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat(", ?", n)
}
