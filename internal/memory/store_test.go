package memory

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/memvra/dtwin/internal/adapter"
	"github.com/memvra/dtwin/internal/db"
)

const testDim = 3

func setupTestDB(t *testing.T) (*db.DB, *SQLiteIndex) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.Open(dbPath, testDim)
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database, NewSQLiteIndex(NewStore(database), NewVectorStore(database))
}

// keywordEmbedder maps text onto three axes so tests can steer similarity.
type keywordEmbedder struct {
	err   error
	calls int
}

func (k *keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	k.calls++
	if k.err != nil {
		return nil, k.err
	}
	out := make([][]float32, len(texts))
	for i, s := range texts {
		s = strings.ToLower(s)
		v := []float32{0.01, 0.01, 0.01}
		if strings.Contains(s, "strategy") {
			v[0] = 1
		}
		if strings.Contains(s, "budget") {
			v[1] = 1
		}
		if strings.Contains(s, "memory") {
			v[2] = 1
		}
		out[i] = v
	}
	return out, nil
}

var _ adapter.Embedder = (*keywordEmbedder)(nil)

func upsertTexts(t *testing.T, idx *SQLiteIndex, ns string, kind Kind, texts ...string) []Record {
	t.Helper()
	emb := &keywordEmbedder{}
	vecs, _ := emb.Embed(context.Background(), texts)
	recs := make([]Record, len(texts))
	for i, s := range texts {
		recs[i] = Record{Kind: kind, Content: s, Metadata: Metadata{ChunkIndex: i}}
	}
	if err := idx.Upsert(context.Background(), ns, recs, vecs); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	return recs
}

func TestIndex_UpsertAssignsIDsAndTimestamps(t *testing.T) {
	_, idx := setupTestDB(t)
	recs := upsertTexts(t, idx, NamespaceKnowledge, KindReferenceChunk, "strategy one", "budget two")

	for i, r := range recs {
		if r.ID == "" {
			t.Errorf("record %d: empty id", i)
		}
		if r.CreatedAt.IsZero() {
			t.Errorf("record %d: zero timestamp", i)
		}
		if r.Namespace != NamespaceKnowledge {
			t.Errorf("record %d: namespace %q", i, r.Namespace)
		}
	}
	if recs[0].ID == recs[1].ID {
		t.Error("ids must be unique")
	}

	got, err := idx.Store().GetRecord(context.Background(), recs[1].ID)
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if got.Content != "budget two" || got.Kind != KindReferenceChunk || got.Metadata.ChunkIndex != 1 {
		t.Errorf("round trip: got %+v", got)
	}
}

func TestIndex_UpsertLengthMismatch(t *testing.T) {
	_, idx := setupTestDB(t)
	err := idx.Upsert(context.Background(), NamespaceKnowledge, []Record{{Content: "x"}}, nil)
	if err == nil {
		t.Fatal("expected error for mismatched vectors")
	}
}

func TestIndex_UpsertWrongDimensionRollsBack(t *testing.T) {
	_, idx := setupTestDB(t)
	recs := []Record{{Content: "ok"}, {Content: "bad"}}
	vecs := [][]float32{{1, 0, 0}, {1, 0}}
	if err := idx.Upsert(context.Background(), NamespaceKnowledge, recs, vecs); err == nil {
		t.Fatal("expected dimension error")
	}

	all, err := idx.Store().ListRecords(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 0 {
		t.Errorf("expected rollback, found %d records", len(all))
	}
}

func TestIndex_QueryRanksAndPartitions(t *testing.T) {
	_, idx := setupTestDB(t)
	upsertTexts(t, idx, NamespaceKnowledge, KindReferenceChunk,
		"Our budget for next year", "The growth strategy", "Unrelated text")
	upsertTexts(t, idx, NamespaceMemory, KindChatSummary, "strategy discussed in memory")

	emb := &keywordEmbedder{}
	q, _ := emb.Embed(context.Background(), []string{"what is the strategy?"})
	matches, err := idx.Query(context.Background(), NamespaceKnowledge, q[0], 2)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].Content != "The growth strategy" {
		t.Errorf("top match: got %q", matches[0].Content)
	}
	for _, m := range matches {
		if m.Namespace != NamespaceKnowledge {
			t.Errorf("match leaked from namespace %q", m.Namespace)
		}
	}
	if matches[0].Distance > matches[1].Distance {
		t.Error("matches should be ordered by distance")
	}
}

func TestIndex_QueryEmptyNamespace(t *testing.T) {
	_, idx := setupTestDB(t)
	matches, err := idx.Query(context.Background(), NamespaceKnowledge, []float32{1, 0, 0}, 4)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("expected no matches, got %d", len(matches))
	}
}

func TestStore_GetRecordNotFound(t *testing.T) {
	_, idx := setupTestDB(t)
	_, err := idx.Store().GetRecord(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_SampleNewestFirst(t *testing.T) {
	_, idx := setupTestDB(t)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, text := range []string{"first", "second", "third"} {
		rec := []Record{{Kind: KindChatSummary, Content: text, CreatedAt: base.Add(time.Duration(i) * time.Minute)}}
		if err := idx.Upsert(context.Background(), NamespaceMemory, rec, [][]float32{{1, 0, 0}}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := idx.Store().Sample(context.Background(), NamespaceMemory, 2)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if len(got) != 2 || got[0].Content != "third" || got[1].Content != "second" {
		t.Errorf("sample: got %+v", got)
	}
	if !got[0].CreatedAt.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("created_at: got %v", got[0].CreatedAt)
	}
}

func TestStore_Stats(t *testing.T) {
	_, idx := setupTestDB(t)
	ctx := context.Background()

	recs := []Record{
		{Kind: KindReferenceChunk, Content: "a", Metadata: Metadata{SourceFile: "plan.pdf"}},
		{Kind: KindReferenceChunk, Content: "b", Metadata: Metadata{SourceFile: "plan.pdf", ChunkIndex: 1}},
		{Kind: KindReferenceChunk, Content: "c", Metadata: Metadata{SourceFile: "notes.txt"}},
	}
	vecs := [][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	if err := idx.Upsert(ctx, NamespaceKnowledge, recs, vecs); err != nil {
		t.Fatal(err)
	}

	st, err := idx.Store().Stats(ctx, NamespaceKnowledge)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Records != 3 || st.ByKind[KindReferenceChunk] != 3 {
		t.Errorf("counts: got %+v", st)
	}
	if st.Sources != 2 {
		t.Errorf("sources: got %d, want 2", st.Sources)
	}
	if st.LastWrite.IsZero() {
		t.Error("expected last write time")
	}

	empty, err := idx.Store().Stats(ctx, NamespaceMemory)
	if err != nil {
		t.Fatalf("Stats(empty): %v", err)
	}
	if empty.Records != 0 || !empty.LastWrite.IsZero() {
		t.Errorf("empty namespace: got %+v", empty)
	}
}

func TestStore_GroupBySource(t *testing.T) {
	_, idx := setupTestDB(t)
	ctx := context.Background()

	recs := []Record{
		{Kind: KindReferenceChunk, Content: "p1", Metadata: Metadata{SourceFile: "strategy.pdf", Category: "strategy", ChunkIndex: 0}},
		{Kind: KindReferenceChunk, Content: "p2", Metadata: Metadata{SourceFile: "strategy.pdf", Category: "strategy", ChunkIndex: 1}},
		{Kind: KindReferenceChunk, Content: "p3", Metadata: Metadata{SourceFile: "strategy.pdf", Category: "strategy", ChunkIndex: 2}},
		{Kind: KindReferenceChunk, Content: "only", Metadata: Metadata{SourceFile: "a.txt"}},
		{Kind: KindReferenceChunk, Content: "orphan"},
	}
	vecs := make([][]float32, len(recs))
	for i := range vecs {
		vecs[i] = []float32{1, 0, 0}
	}
	if err := idx.Upsert(ctx, NamespaceKnowledge, recs, vecs); err != nil {
		t.Fatal(err)
	}

	groups, err := idx.Store().GroupBySource(ctx, NamespaceKnowledge)
	if err != nil {
		t.Fatalf("GroupBySource: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if groups[0].SourceFile != "a.txt" || groups[0].Chunks != 1 {
		t.Errorf("group 0: got %+v", groups[0])
	}
	g := groups[1]
	if g.SourceFile != "strategy.pdf" || g.Chunks != 3 || g.Category != "strategy" {
		t.Errorf("group 1: got %+v", g)
	}
	if g.Excerpt != "p1\np2" {
		t.Errorf("excerpt: got %q", g.Excerpt)
	}
}

func TestStore_Namespaces(t *testing.T) {
	_, idx := setupTestDB(t)
	upsertTexts(t, idx, NamespaceMemory, KindChatSummary, "m")
	upsertTexts(t, idx, NamespaceKnowledge, KindReferenceChunk, "k")

	got, err := idx.Store().Namespaces(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(got, ",") != "default,dt-memory" {
		t.Errorf("namespaces: got %v", got)
	}
}
