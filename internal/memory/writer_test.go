package memory

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWriter_WriteBack(t *testing.T) {
	_, idx := setupTestDB(t)
	w := NewWriter(&keywordEmbedder{}, idx)
	fixed := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	w.now = func() time.Time { return fixed }

	rec, err := w.WriteBack(context.Background(), "We agreed the strategy needs a memory layer.")
	if err != nil {
		t.Fatalf("WriteBack: %v", err)
	}
	if rec.Namespace != NamespaceMemory || rec.Kind != KindChatSummary || rec.Source != SourceUserInteraction {
		t.Errorf("record: got %+v", rec)
	}
	if !rec.CreatedAt.Equal(fixed) {
		t.Errorf("created_at: got %v", rec.CreatedAt)
	}

	got, err := idx.Store().GetRecord(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if got.Source != SourceUserInteraction || !got.CreatedAt.Equal(fixed) {
		t.Errorf("stored: got %+v", got)
	}
}

func TestWriter_RememberAndSeed(t *testing.T) {
	_, idx := setupTestDB(t)
	w := NewWriter(&keywordEmbedder{}, idx)
	ctx := context.Background()

	if _, err := w.Remember(ctx, "Board meets on Fridays", ""); err != nil {
		t.Fatalf("Remember: %v", err)
	}
	seed, err := w.Seed(ctx)
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if seed.Content != SeedText {
		t.Errorf("seed content: got %q", seed.Content)
	}

	st, err := idx.Store().Stats(ctx, NamespaceMemory)
	if err != nil {
		t.Fatal(err)
	}
	if st.Records != 2 {
		t.Errorf("expected 2 memory records, got %d", st.Records)
	}
	knowledge, _ := idx.Store().Stats(ctx, NamespaceKnowledge)
	if knowledge.Records != 0 {
		t.Errorf("writer must not touch the knowledge namespace, found %d", knowledge.Records)
	}
}

func TestWriter_Failures(t *testing.T) {
	tests := []struct {
		name    string
		writer  *Writer
		content string
	}{
		{"embed error", NewWriter(&keywordEmbedder{err: errors.New("quota")}, failingIndex{}), "reply"},
		{"index error", NewWriter(&keywordEmbedder{}, failingIndex{err: errors.New("disk full")}), "reply"},
		{"empty content", NewWriter(&keywordEmbedder{}, failingIndex{}), "   "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.writer.WriteBack(context.Background(), tt.content)
			var perr *PersistenceError
			if !errors.As(err, &perr) {
				t.Fatalf("expected *PersistenceError, got %v", err)
			}
			if perr.Namespace != NamespaceMemory {
				t.Errorf("namespace: got %q", perr.Namespace)
			}
		})
	}
}
