package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/memvra/dtwin/internal/db"
)

// timeLayout is fixed-width so text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = errors.New("memory: record not found")

// Store provides read/write access to the records table.
type Store struct {
	db *db.DB

	mu      sync.Mutex
	entropy *rand.Rand
}

// NewStore creates a Store backed by the given DB.
func NewStore(database *db.DB) *Store {
	return &Store{
		db:      database,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Conn exposes the underlying *sql.DB for low-level queries.
func (s *Store) Conn() *sql.DB {
	return s.db.Conn()
}

// NewID returns a fresh ULID. IDs sort by creation time.
func (s *Store) NewID(t time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), s.entropy).String()
}

// insertRecord writes r inside tx.
func insertRecord(ctx context.Context, tx *sql.Tx, r Record) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO records (id, namespace, kind, content, source, source_file, uploader, category, chunk_index, page, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Namespace, string(r.Kind), r.Content, r.Source,
		r.Metadata.SourceFile, r.Metadata.Uploader, r.Metadata.Category,
		r.Metadata.ChunkIndex, r.Metadata.Page,
		r.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("store: insert record: %w", err)
	}
	return nil
}

const recordColumns = `id, namespace, kind, content, source, source_file, uploader, category, chunk_index, page, created_at`

// GetRecord returns the record with the given id.
func (s *Store) GetRecord(ctx context.Context, id string) (Record, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `SELECT `+recordColumns+` FROM records WHERE id = ?`, id)
	if err != nil {
		return Record{}, fmt.Errorf("store: get record: %w", err)
	}
	defer rows.Close()
	out, err := scanRecords(rows)
	if err != nil {
		return Record{}, err
	}
	if len(out) == 0 {
		return Record{}, ErrNotFound
	}
	return out[0], nil
}

// Sample returns the newest n records of a namespace, newest first.
func (s *Store) Sample(ctx context.Context, namespace string, n int) ([]Record, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.Conn().QueryContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE namespace = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		namespace, n,
	)
	if err != nil {
		return nil, fmt.Errorf("store: sample: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ListRecords returns every record of a namespace in insertion order.
// An empty namespace lists all records.
func (s *Store) ListRecords(ctx context.Context, namespace string) ([]Record, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if namespace == "" {
		rows, err = s.db.Conn().QueryContext(ctx,
			`SELECT `+recordColumns+` FROM records ORDER BY namespace, created_at, id`)
	} else {
		rows, err = s.db.Conn().QueryContext(ctx,
			`SELECT `+recordColumns+` FROM records WHERE namespace = ? ORDER BY created_at, id`, namespace)
	}
	if err != nil {
		return nil, fmt.Errorf("store: list records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Namespaces returns the namespaces that hold at least one record.
func (s *Store) Namespaces(ctx context.Context) ([]string, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `SELECT DISTINCT namespace FROM records ORDER BY namespace`)
	if err != nil {
		return nil, fmt.Errorf("store: namespaces: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var ns string
		if err := rows.Scan(&ns); err != nil {
			return nil, err
		}
		out = append(out, ns)
	}
	return out, rows.Err()
}

// Stats counts the records of a namespace.
func (s *Store) Stats(ctx context.Context, namespace string) (Stats, error) {
	st := Stats{Namespace: namespace, ByKind: make(map[Kind]int)}

	rows, err := s.db.Conn().QueryContext(ctx,
		`SELECT kind, COUNT(*) FROM records WHERE namespace = ? GROUP BY kind`, namespace)
	if err != nil {
		return st, fmt.Errorf("store: stats: %w", err)
	}
	for rows.Next() {
		var k string
		var n int
		if err := rows.Scan(&k, &n); err != nil {
			rows.Close()
			return st, err
		}
		st.ByKind[Kind(k)] = n
		st.Records += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return st, err
	}

	var last sql.NullString
	err = s.db.Conn().QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT NULLIF(source_file, '')), MAX(created_at)
		FROM records WHERE namespace = ?`, namespace,
	).Scan(&st.Sources, &last)
	if err != nil {
		return st, fmt.Errorf("store: stats: %w", err)
	}
	if last.Valid {
		st.LastWrite = parseTime(last.String)
	}
	return st, nil
}

// GroupBySource groups a namespace's records by source file. Each group's
// excerpt is built from its first two chunks.
func (s *Store) GroupBySource(ctx context.Context, namespace string) ([]SourceGroup, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `
		SELECT source_file, category, uploader, content, created_at
		FROM records
		WHERE namespace = ? AND source_file != ''
		ORDER BY source_file, chunk_index, created_at`, namespace,
	)
	if err != nil {
		return nil, fmt.Errorf("store: group by source: %w", err)
	}
	defer rows.Close()

	var out []SourceGroup
	for rows.Next() {
		var src, category, uploader, content, createdAt string
		if err := rows.Scan(&src, &category, &uploader, &content, &createdAt); err != nil {
			return nil, err
		}
		if len(out) == 0 || out[len(out)-1].SourceFile != src {
			out = append(out, SourceGroup{
				SourceFile: src,
				Category:   category,
				Uploader:   uploader,
				FirstSeen:  parseTime(createdAt),
			})
		}
		g := &out[len(out)-1]
		if g.Chunks < 2 {
			if g.Excerpt != "" {
				g.Excerpt += "\n"
			}
			g.Excerpt += content
		}
		g.Chunks++
	}
	return out, rows.Err()
}

// ---- Helpers ----

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		var r Record
		var kind, createdAt string
		if err := rows.Scan(
			&r.ID, &r.Namespace, &kind, &r.Content, &r.Source,
			&r.Metadata.SourceFile, &r.Metadata.Uploader, &r.Metadata.Category,
			&r.Metadata.ChunkIndex, &r.Metadata.Page, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("store: scan record: %w", err)
		}
		r.Kind = Kind(kind)
		r.CreatedAt = parseTime(createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// parseTime tries multiple SQLite timestamp layouts.
// go-sqlite3 may hand back DATETIME columns already reformatted.
func parseTime(s string) time.Time {
	layouts := []string{
		timeLayout,
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
