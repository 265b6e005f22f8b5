package memory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/memvra/dtwin/internal/adapter"
)

// SourceUserInteraction marks records written back from a chat turn.
const SourceUserInteraction = "user_interaction"

// SeedText is the test record written by Seed.
const SeedText = "This is a memory test — DT now remembers this."

// Writer persists chat-derived records into the memory namespace.
type Writer struct {
	embedder adapter.Embedder
	index    Index
	now      func() time.Time
}

// NewWriter creates a Writer.
func NewWriter(embedder adapter.Embedder, index Index) *Writer {
	return &Writer{embedder: embedder, index: index, now: time.Now}
}

// WriteBack stores an assistant reply as a chat summary.
func (w *Writer) WriteBack(ctx context.Context, reply string) (Record, error) {
	return w.write(ctx, reply, SourceUserInteraction)
}

// Remember stores a manual note attributed to source.
func (w *Writer) Remember(ctx context.Context, content, source string) (Record, error) {
	if source == "" {
		source = "user"
	}
	return w.write(ctx, content, source)
}

// Seed writes the fixed test record used to check the memory namespace.
func (w *Writer) Seed(ctx context.Context) (Record, error) {
	return w.write(ctx, SeedText, "seed")
}

func (w *Writer) write(ctx context.Context, content, source string) (Record, error) {
	if strings.TrimSpace(content) == "" {
		return Record{}, &PersistenceError{Namespace: NamespaceMemory, Err: errors.New("empty content")}
	}

	vecs, err := w.embedder.Embed(ctx, []string{content})
	if err != nil {
		return Record{}, &PersistenceError{Namespace: NamespaceMemory, Err: err}
	}
	if len(vecs) != 1 {
		return Record{}, &PersistenceError{Namespace: NamespaceMemory, Err: errors.New("embedder returned no vector")}
	}

	recs := []Record{{
		Namespace: NamespaceMemory,
		Kind:      KindChatSummary,
		Content:   content,
		Source:    source,
		CreatedAt: w.now(),
	}}
	if err := w.index.Upsert(ctx, NamespaceMemory, recs, vecs); err != nil {
		return Record{}, &PersistenceError{Namespace: NamespaceMemory, Err: err}
	}
	return recs[0], nil
}
