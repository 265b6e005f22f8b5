package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/memvra/dtwin/internal/adapter"
	"github.com/memvra/dtwin/internal/chunker"
	"github.com/memvra/dtwin/internal/loader"
	"github.com/memvra/dtwin/internal/memory"
)

type countingEmbedder struct {
	calls int
	err   error
}

func (e *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, s := range texts {
		out[i] = []float32{float32(len(s)), 1, 0}
	}
	return out, nil
}

type recordingIndex struct {
	upserts map[string][]memory.Record
	err     error
}

func (x *recordingIndex) Upsert(_ context.Context, ns string, recs []memory.Record, vecs [][]float32) error {
	if x.err != nil {
		return x.err
	}
	if len(recs) != len(vecs) {
		return errors.New("length mismatch")
	}
	if x.upserts == nil {
		x.upserts = make(map[string][]memory.Record)
	}
	x.upserts[ns] = append(x.upserts[ns], recs...)
	return nil
}

func (x *recordingIndex) Query(context.Context, string, []float32, int) ([]memory.Match, error) {
	return nil, nil
}

type cannedLLM struct {
	reply string
	err   error
}

func (c *cannedLLM) Complete(context.Context, adapter.CompletionRequest) (<-chan adapter.StreamChunk, error) {
	if c.err != nil {
		return nil, c.err
	}
	ch := make(chan adapter.StreamChunk, 1)
	ch <- adapter.StreamChunk{Text: c.reply}
	close(ch)
	return ch, nil
}

func (c *cannedLLM) Embed(context.Context, []string) ([][]float32, error) { return nil, nil }
func (c *cannedLLM) Info() adapter.ModelInfo                              { return adapter.ModelInfo{} }

func newTestPipeline(t *testing.T, idx memory.Index, llm adapter.LLMAdapter) (*Pipeline, *UploadLog) {
	t.Helper()
	ck, err := chunker.New(chunker.Options{Mode: chunker.ModeChar, Size: 1000, Overlap: 150})
	if err != nil {
		t.Fatal(err)
	}
	log := NewUploadLog(filepath.Join(t.TempDir(), ".dtwin", "uploaded_documents.json"))
	p := NewPipeline(Config{
		Chunker:  ck,
		Embedder: &countingEmbedder{},
		Index:    idx,
		Log:      log,
		LLM:      llm,
		Uploader: "darren",
	})
	p.now = func() time.Time { return time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC) }
	return p, log
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIngestFile_ChunksAndLogs(t *testing.T) {
	idx := &recordingIndex{}
	p, log := newTestPipeline(t, idx, nil)
	path := writeFile(t, t.TempDir(), "growth_strategy.txt", strings.Repeat("a", 2500))

	res, err := p.IngestFile(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}
	recs := idx.upserts[memory.NamespaceKnowledge]
	if len(recs) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(recs))
	}
	for i, r := range recs {
		if r.Metadata.ChunkIndex != i {
			t.Errorf("chunk %d: index %d", i, r.Metadata.ChunkIndex)
		}
		if r.Metadata.SourceFile != "growth_strategy.txt" || r.Metadata.Uploader != "darren" {
			t.Errorf("chunk %d metadata: %+v", i, r.Metadata)
		}
		if r.Kind != memory.KindReferenceChunk {
			t.Errorf("chunk %d kind: %q", i, r.Kind)
		}
	}
	if res.Metadata.Type != memory.CategoryStrategy {
		t.Errorf("type: got %q", res.Metadata.Type)
	}
	if res.Metadata.Chunks != 3 || len(res.Metadata.Storage) != 1 || res.Metadata.Storage[0] != memory.NamespaceKnowledge {
		t.Errorf("metadata: %+v", res.Metadata)
	}
	if !strings.HasPrefix(res.Metadata.Summary, "Filename: growth_strategy.txt\nExcerpt:\n") {
		t.Errorf("summary: %q", res.Metadata.Summary)
	}

	entries, err := log.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Filename != "growth_strategy.txt" {
		t.Errorf("log: %+v", entries)
	}
}

func TestIngestBatch_UnsupportedFileDoesNotStopBatch(t *testing.T) {
	idx := &recordingIndex{}
	p, log := newTestPipeline(t, idx, nil)
	dir := t.TempDir()
	paths := []string{
		writeFile(t, dir, "one.txt", "first document"),
		writeFile(t, dir, "two.csv", "a,b,c"),
		writeFile(t, dir, "three.txt", "third document"),
	}

	var progress []int
	results := p.IngestBatch(context.Background(), paths, Options{}, func(done, total int, _ string) {
		progress = append(progress, done)
		if total != 3 {
			t.Errorf("total: got %d", total)
		}
	})

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if !results[0].OK() || !results[2].OK() {
		t.Errorf("txt files should succeed: %v, %v", results[0].Err, results[2].Err)
	}
	var typeErr *loader.UnsupportedTypeError
	if !errors.As(results[1].Err, &typeErr) {
		t.Errorf("csv: expected UnsupportedTypeError, got %v", results[1].Err)
	}
	if got := len(idx.upserts[memory.NamespaceKnowledge]); got != 2 {
		t.Errorf("expected 2 stored chunks, got %d", got)
	}

	entries, err := log.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(entries))
	}
	if entries[0].Filename != "one.txt" || entries[1].Filename != "three.txt" {
		t.Errorf("log order: %s, %s", entries[0].Filename, entries[1].Filename)
	}
	if len(progress) != 4 || progress[3] != 3 {
		t.Errorf("progress: %v", progress)
	}
}

func TestIngestBatch_MalformedPDFDoesNotStopBatch(t *testing.T) {
	idx := &recordingIndex{}
	p, log := newTestPipeline(t, idx, nil)
	dir := t.TempDir()
	paths := []string{
		writeFile(t, dir, "before.txt", "first document"),
		writeFile(t, dir, "broken.pdf", "%PDF-1.4\nstartxref\n9999\n%%EOF\n"),
		writeFile(t, dir, "after.txt", "last document"),
	}

	results := p.IngestBatch(context.Background(), paths, Options{}, nil)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if !results[0].OK() || !results[2].OK() {
		t.Errorf("txt files should succeed: %v, %v", results[0].Err, results[2].Err)
	}
	if results[1].OK() || !strings.Contains(results[1].Err.Error(), "broken.pdf") {
		t.Errorf("broken pdf: got %v", results[1].Err)
	}

	entries, err := log.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[1].Filename != "after.txt" {
		t.Errorf("log: %+v", entries)
	}
}

func TestIngestFile_EmptyDocument(t *testing.T) {
	idx := &recordingIndex{}
	p, log := newTestPipeline(t, idx, nil)
	path := writeFile(t, t.TempDir(), "blank.txt", "   \n\n  ")

	_, err := p.IngestFile(context.Background(), path, Options{})
	if !errors.Is(err, ErrNoText) {
		t.Fatalf("expected ErrNoText, got %v", err)
	}
	if ok, _ := log.Has("blank.txt"); ok {
		t.Error("empty document must not be logged")
	}
}

func TestIngestFile_UpsertFailureIsPersistenceError(t *testing.T) {
	idx := &recordingIndex{err: errors.New("disk full")}
	p, log := newTestPipeline(t, idx, nil)
	path := writeFile(t, t.TempDir(), "notes.txt", "hello")

	res, err := p.IngestFile(context.Background(), path, Options{})
	var perr *memory.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if res.OK() {
		t.Error("result should not be OK")
	}
	entries, _ := log.Load()
	if len(entries) != 0 {
		t.Errorf("failed upsert must not be logged, got %d entries", len(entries))
	}
}

func TestIngestFile_Classify(t *testing.T) {
	idx := &recordingIndex{}
	llm := &cannedLLM{reply: `{"category": "finance", "namespace": "dt-memory", "summary": "Budget notes."}`}
	p, _ := newTestPipeline(t, idx, llm)
	path := writeFile(t, t.TempDir(), "q3.txt", "quarterly numbers")

	res, err := p.IngestFile(context.Background(), path, Options{Classify: true})
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}
	if res.Metadata.Type != "finance" {
		t.Errorf("type: got %q", res.Metadata.Type)
	}
	if len(idx.upserts[memory.NamespaceMemory]) != 1 {
		t.Errorf("expected chunk in dt-memory, got %v", idx.upserts)
	}
}

func TestIngestFile_ClassifyFailureIsWarning(t *testing.T) {
	idx := &recordingIndex{}
	p, _ := newTestPipeline(t, idx, &cannedLLM{err: errors.New("timeout")})
	path := writeFile(t, t.TempDir(), "plan.txt", "text")

	res, err := p.IngestFile(context.Background(), path, Options{Classify: true})
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}
	if len(res.Warnings) != 1 {
		t.Errorf("expected one warning, got %v", res.Warnings)
	}
	if res.Metadata.Type != memory.CategoryGeneral {
		t.Errorf("type: got %q", res.Metadata.Type)
	}
}

func TestSummary_TruncatesExcerpt(t *testing.T) {
	got := Summary("big.txt", []string{strings.Repeat("x", 900), strings.Repeat("y", 900), "ignored"})
	excerpt := strings.TrimPrefix(got, "Filename: big.txt\nExcerpt:\n")
	if len([]rune(excerpt)) != 1000 {
		t.Errorf("excerpt length: got %d", len([]rune(excerpt)))
	}
	if strings.Contains(excerpt, "ignored") {
		t.Error("only the first two chunks belong in the summary")
	}
}
