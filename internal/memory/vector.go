package memory

import (
	"context"
	"database/sql"
	"fmt"

	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	"github.com/memvra/dtwin/internal/db"
)

// VectorStore provides partitioned similarity search via sqlite-vec.
type VectorStore struct {
	conn      *sql.DB
	dimension int
}

// NewVectorStore creates a VectorStore backed by the given DB.
func NewVectorStore(database *db.DB) *VectorStore {
	return &VectorStore{conn: database.Conn(), dimension: database.Dimension()}
}

// VectorMatch represents a single similarity search result.
type VectorMatch struct {
	ID       string
	Distance float64
}

// insertEmbedding adds one vector to vec_records inside tx. vec0 tables
// have no upsert, so ids must be fresh.
func (v *VectorStore) insertEmbedding(ctx context.Context, tx *sql.Tx, id, namespace string, embedding []float32) error {
	if len(embedding) != v.dimension {
		return fmt.Errorf("vector: embedding has %d dimensions, index expects %d", len(embedding), v.dimension)
	}
	blob, err := vec.SerializeFloat32(embedding)
	if err != nil {
		return fmt.Errorf("vector: serialize: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO vec_records (id, namespace, embedding) VALUES (?, ?, ?)`,
		id, namespace, blob,
	); err != nil {
		return fmt.Errorf("vector: insert embedding: %w", err)
	}
	return nil
}

// Search finds the topK nearest vectors in one namespace, closest first.
func (v *VectorStore) Search(ctx context.Context, namespace string, query []float32, topK int) ([]VectorMatch, error) {
	if len(query) == 0 || topK <= 0 {
		return nil, nil
	}
	if len(query) != v.dimension {
		return nil, fmt.Errorf("vector: query has %d dimensions, index expects %d", len(query), v.dimension)
	}
	blob, err := vec.SerializeFloat32(query)
	if err != nil {
		return nil, fmt.Errorf("vector: serialize: %w", err)
	}
	rows, err := v.conn.QueryContext(ctx,
		`SELECT id, distance FROM vec_records
		 WHERE embedding MATCH ? AND k = ? AND namespace = ?
		 ORDER BY distance`,
		blob, topK, namespace,
	)
	if err != nil {
		return nil, fmt.Errorf("vector: search: %w", err)
	}
	defer rows.Close()

	var out []VectorMatch
	for rows.Next() {
		var m VectorMatch
		if err := rows.Scan(&m.ID, &m.Distance); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
