package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	// Register sqlite-vec as an auto-extension so every SQLite connection
	// opened by this process has the vec0 virtual table module available.
	vec.Auto()
}

// DefaultEmbeddingDimension matches text-embedding-ada-002.
const DefaultEmbeddingDimension = 1536

// DimensionMismatchError is returned when an existing database was created
// for a different embedding size than the one requested.
type DimensionMismatchError struct {
	Path      string
	Stored    int
	Requested int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("db: %s was created with embedding dimension %d, config asks for %d (change embedding.dimension or start a new workspace)",
		e.Path, e.Stored, e.Requested)
}

// DB wraps a *sql.DB and exposes helpers.
type DB struct {
	conn      *sql.DB
	dimension int
}

// Open opens (or creates) the SQLite database at path, applies migrations
// and creates the vector table for embeddings of the given dimension.
// A dimension <= 0 selects DefaultEmbeddingDimension.
func Open(path string, dimension int) (*DB, error) {
	if dimension <= 0 {
		dimension = DefaultEmbeddingDimension
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000", absPath)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Single writer, multiple readers.
	conn.SetMaxOpenConns(1)

	if err := applyMigrations(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	stored, err := checkDimension(conn, dimension)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if stored != dimension {
		conn.Close()
		return nil, &DimensionMismatchError{Path: absPath, Stored: stored, Requested: dimension}
	}

	if err := applyVectorTables(conn, dimension); err != nil {
		conn.Close()
		return nil, fmt.Errorf("apply vector tables: %w", err)
	}

	return &DB{conn: conn, dimension: dimension}, nil
}

// checkDimension records dimension on first open and returns the stored value.
func checkDimension(conn *sql.DB, dimension int) (int, error) {
	var raw string
	err := conn.QueryRow(`SELECT value FROM settings WHERE key = 'embedding_dimension'`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := conn.Exec(`INSERT INTO settings (key, value) VALUES ('embedding_dimension', ?)`,
			strconv.Itoa(dimension)); err != nil {
			return 0, fmt.Errorf("record embedding dimension: %w", err)
		}
		return dimension, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read embedding dimension: %w", err)
	}
	stored, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse embedding dimension %q: %w", raw, err)
	}
	return stored, nil
}

// Conn returns the underlying *sql.DB for use by store/vector layers.
func (d *DB) Conn() *sql.DB {
	return d.conn
}

// Dimension returns the embedding size of the vector table.
func (d *DB) Dimension() int {
	return d.dimension
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Ping checks the connection is live.
func (d *DB) Ping() error {
	return d.conn.Ping()
}
