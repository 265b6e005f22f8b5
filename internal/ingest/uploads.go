// Package ingest loads documents, chunks and embeds them into the vector
// index, and keeps the JSON log of uploaded files.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// UploadMetadata is one entry of the upload log.
type UploadMetadata struct {
	Filename  string    `json:"filename"`
	Summary   string    `json:"summary"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Storage   []string  `json:"storage"`
	Uploader  string    `json:"uploader,omitempty"`
	Chunks    int       `json:"chunks,omitempty"`
}

// PersistenceError reports a failed read or write of the upload log.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("ingest: upload log %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// UploadLog is the JSON array of UploadMetadata kept on disk. Writes are
// read-modify-write without locking; concurrent writers lose updates.
type UploadLog struct {
	path string
}

// NewUploadLog returns a log stored at path.
func NewUploadLog(path string) *UploadLog {
	return &UploadLog{path: path}
}

// Path returns the log file location.
func (l *UploadLog) Path() string { return l.path }

// Load returns all entries, oldest first. A missing file is an empty log.
func (l *UploadLog) Load() ([]UploadMetadata, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &PersistenceError{Path: l.path, Err: err}
	}
	if len(data) == 0 {
		return nil, nil
	}
	var entries []UploadMetadata
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, &PersistenceError{Path: l.path, Err: fmt.Errorf("parse: %w", err)}
	}
	return entries, nil
}

// Append adds entries to the end of the log.
func (l *UploadLog) Append(entries ...UploadMetadata) error {
	if len(entries) == 0 {
		return nil
	}
	existing, err := l.Load()
	if err != nil {
		return err
	}
	existing = append(existing, entries...)

	data, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return &PersistenceError{Path: l.path, Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return &PersistenceError{Path: l.path, Err: err}
	}
	if err := os.WriteFile(l.path, data, 0o644); err != nil {
		return &PersistenceError{Path: l.path, Err: err}
	}
	return nil
}

// Recent returns the newest n entries, newest first.
func (l *UploadLog) Recent(n int) ([]UploadMetadata, error) {
	entries, err := l.Load()
	if err != nil {
		return nil, err
	}
	if n <= 0 || n > len(entries) {
		n = len(entries)
	}
	out := make([]UploadMetadata, 0, n)
	for i := len(entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, entries[i])
	}
	return out, nil
}

// Has reports whether filename already has an entry.
func (l *UploadLog) Has(filename string) (bool, error) {
	entries, err := l.Load()
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.Filename == filename {
			return true, nil
		}
	}
	return false, nil
}
