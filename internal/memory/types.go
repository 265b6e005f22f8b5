// Package memory stores, embeds and retrieves the twin's namespaced records:
// reference chunks from uploaded documents and summaries of past chats.
package memory

import (
	"fmt"
	"time"
)

// Namespaces partition one logical index.
const (
	NamespaceKnowledge = "default"
	NamespaceMemory    = "dt-memory"
)

// Kind classifies a stored record.
type Kind string

const (
	KindChatSummary    Kind = "chat_summary"
	KindReferenceChunk Kind = "reference_chunk"
)

// ValidNamespace reports whether ns is one of the two known namespaces.
func ValidNamespace(ns string) bool {
	return ns == NamespaceKnowledge || ns == NamespaceMemory
}

// Metadata is the per-record context stored next to the content.
type Metadata struct {
	SourceFile string `json:"source_file,omitempty"`
	Uploader   string `json:"uploader,omitempty"`
	Category   string `json:"category,omitempty"`
	ChunkIndex int    `json:"chunk_index"`
	Page       int    `json:"page,omitempty"`
}

// Record is a single stored memory. Records are immutable once written.
type Record struct {
	ID        string    `json:"id"`
	Namespace string    `json:"namespace"`
	Kind      Kind      `json:"kind"`
	Content   string    `json:"content"`
	Source    string    `json:"source"`
	Metadata  Metadata  `json:"metadata"`
	CreatedAt time.Time `json:"created_at"`
}

// Match is a query hit with its vector distance (lower is closer).
type Match struct {
	Record
	Distance float64 `json:"distance"`
}

// Similarity maps the L2 distance reported by sqlite-vec onto (0, 1].
func (m Match) Similarity() float64 {
	return 1.0 / (1.0 + m.Distance)
}

// Stats summarises one namespace.
type Stats struct {
	Namespace string       `json:"namespace"`
	Records   int          `json:"records"`
	ByKind    map[Kind]int `json:"by_kind"`
	Sources   int          `json:"sources"`
	LastWrite time.Time    `json:"last_write"`
}

// SourceGroup collects the records that came from one uploaded file.
type SourceGroup struct {
	SourceFile string
	Category   string
	Uploader   string
	Chunks     int
	Excerpt    string
	FirstSeen  time.Time
}

// RetrievalError reports a failed embed or index query for one namespace.
// Callers degrade to empty context.
type RetrievalError struct {
	Namespace string
	Err       error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("memory: retrieve from %q: %v", e.Namespace, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// PersistenceError reports a failed write of records into a namespace.
type PersistenceError struct {
	Namespace string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("memory: write to %q: %v", e.Namespace, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
