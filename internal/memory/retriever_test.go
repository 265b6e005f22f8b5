package memory

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type failingIndex struct{ err error }

func (f failingIndex) Upsert(context.Context, string, []Record, [][]float32) error { return f.err }
func (f failingIndex) Query(context.Context, string, []float32, int) ([]Match, error) {
	return nil, f.err
}

func TestRetriever_JoinsInRankOrder(t *testing.T) {
	_, idx := setupTestDB(t)
	upsertTexts(t, idx, NamespaceKnowledge, KindReferenceChunk,
		"budget numbers", "strategy pillar one", "strategy and budget")

	r := NewRetriever(&keywordEmbedder{}, idx, nil, 2)
	got, err := r.Retrieve(context.Background(), "strategy", NamespaceKnowledge)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	parts := strings.Split(got, "\n\n")
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %q", got)
	}
	if parts[0] != "strategy pillar one" {
		t.Errorf("first part: got %q", parts[0])
	}
}

func TestRetriever_EmptyNamespace(t *testing.T) {
	_, idx := setupTestDB(t)
	r := NewRetriever(&keywordEmbedder{}, idx, nil, 0)

	got, err := r.Retrieve(context.Background(), "anything", NamespaceMemory)
	if err != nil {
		t.Fatalf("expected nil error for empty namespace, got %v", err)
	}
	if got != "" {
		t.Errorf("expected empty context, got %q", got)
	}
}

func TestRetriever_EmbedFailure(t *testing.T) {
	_, idx := setupTestDB(t)
	cause := errors.New("rate limited")
	r := NewRetriever(&keywordEmbedder{err: cause}, idx, nil, 4)

	got, err := r.Retrieve(context.Background(), "q", NamespaceKnowledge)
	if got != "" {
		t.Errorf("expected empty result, got %q", got)
	}
	var rerr *RetrievalError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected *RetrievalError, got %v", err)
	}
	if rerr.Namespace != NamespaceKnowledge {
		t.Errorf("namespace: got %q", rerr.Namespace)
	}
	if !errors.Is(err, cause) {
		t.Error("RetrievalError should wrap the cause")
	}
}

func TestRetriever_IndexFailure(t *testing.T) {
	r := NewRetriever(&keywordEmbedder{}, failingIndex{err: errors.New("db locked")}, nil, 4)
	got, err := r.Retrieve(context.Background(), "q", NamespaceMemory)
	var rerr *RetrievalError
	if !errors.As(err, &rerr) || rerr.Namespace != NamespaceMemory {
		t.Fatalf("expected RetrievalError for dt-memory, got %v", err)
	}
	if got != "" {
		t.Errorf("expected empty result, got %q", got)
	}
}

func TestRetriever_DefaultTopK(t *testing.T) {
	r := NewRetriever(&keywordEmbedder{}, failingIndex{}, nil, 0)
	if r.topK != DefaultTopK {
		t.Errorf("topK: got %d, want %d", r.topK, DefaultTopK)
	}
}

func TestRetriever_RankerDropsWeakMatches(t *testing.T) {
	_, idx := setupTestDB(t)
	upsertTexts(t, idx, NamespaceKnowledge, KindReferenceChunk, "strategy", "budget")

	r := NewRetriever(&keywordEmbedder{}, idx, NewRanker(0.9), 4)
	matches, err := r.Search(context.Background(), "strategy", NamespaceKnowledge, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 1 || matches[0].Content != "strategy" {
		t.Errorf("expected only the exact match, got %+v", matches)
	}
}
