package memory

import (
	"context"
	"fmt"
	"time"
)

// Index is the vector store boundary: namespaced upsert and top-k query.
type Index interface {
	Upsert(ctx context.Context, namespace string, records []Record, vectors [][]float32) error
	Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Match, error)
}

// SQLiteIndex implements Index on the records table plus vec_records.
type SQLiteIndex struct {
	store   *Store
	vectors *VectorStore
	now     func() time.Time
}

// NewSQLiteIndex creates a SQLiteIndex.
func NewSQLiteIndex(store *Store, vectors *VectorStore) *SQLiteIndex {
	return &SQLiteIndex{store: store, vectors: vectors, now: time.Now}
}

// Store returns the record store behind the index.
func (x *SQLiteIndex) Store() *Store { return x.store }

// Upsert writes records and their vectors in one transaction. Records
// without an id get a fresh ULID, and records without a timestamp are
// stamped now; the assigned values are written back into records. The
// namespace argument overrides Record.Namespace.
func (x *SQLiteIndex) Upsert(ctx context.Context, namespace string, records []Record, vectors [][]float32) error {
	if namespace == "" {
		return fmt.Errorf("index: upsert: namespace is required")
	}
	if len(records) != len(vectors) {
		return fmt.Errorf("index: upsert: %d records but %d vectors", len(records), len(vectors))
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := x.store.Conn().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i := range records {
		r := records[i]
		if r.CreatedAt.IsZero() {
			r.CreatedAt = x.now()
		}
		if r.ID == "" {
			r.ID = x.store.NewID(r.CreatedAt)
		}
		r.Namespace = namespace
		records[i] = r

		if err := insertRecord(ctx, tx, r); err != nil {
			return err
		}
		if err := x.vectors.insertEmbedding(ctx, tx, r.ID, namespace, vectors[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("index: commit: %w", err)
	}
	return nil
}

// Query returns up to topK records of namespace ordered by distance.
func (x *SQLiteIndex) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Match, error) {
	hits, err := x.vectors.Search(ctx, namespace, vector, topK)
	if err != nil {
		return nil, err
	}

	out := make([]Match, 0, len(hits))
	for _, h := range hits {
		r, err := x.store.GetRecord(ctx, h.ID)
		if err != nil {
			return nil, fmt.Errorf("index: load %s: %w", h.ID, err)
		}
		out = append(out, Match{Record: r, Distance: h.Distance})
	}
	return out, nil
}
