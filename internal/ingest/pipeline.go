package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/memvra/dtwin/internal/adapter"
	"github.com/memvra/dtwin/internal/chunker"
	"github.com/memvra/dtwin/internal/loader"
	"github.com/memvra/dtwin/internal/memory"
)

const (
	summaryChunks   = 2
	summaryMaxRunes = 1000
)

// ErrNoText is returned for documents with nothing to embed.
var ErrNoText = errors.New("ingest: document has no extractable text")

// Options controls one ingest call. Empty fields fall back to the
// pipeline's defaults.
type Options struct {
	Namespace string
	Uploader  string
	Category  string
	Classify  bool
}

// FileResult is the outcome of ingesting one file. Err is set when the file
// was not embedded; Warnings hold recoverable failures after the upsert.
type FileResult struct {
	Path     string
	Metadata UploadMetadata
	Text     string
	Err      error
	Warnings []error
}

// OK reports whether the file's chunks were stored.
func (r FileResult) OK() bool { return r.Err == nil }

// ProgressFunc is called before each file of a batch.
type ProgressFunc func(done, total int, path string)

// Config wires a Pipeline.
type Config struct {
	Chunker   *chunker.Chunker
	Embedder  adapter.Embedder
	Index     memory.Index
	Log       *UploadLog
	LLM       adapter.LLMAdapter // optional, used when Options.Classify is set
	BatchSize int
	Uploader  string
}

// Pipeline runs load, chunk, embed and upsert for uploaded files.
type Pipeline struct {
	chunker   *chunker.Chunker
	embedder  adapter.Embedder
	index     memory.Index
	log       *UploadLog
	llm       adapter.LLMAdapter
	batchSize int
	uploader  string
	now       func() time.Time
}

// NewPipeline creates a Pipeline.
func NewPipeline(cfg Config) *Pipeline {
	uploader := cfg.Uploader
	if uploader == "" {
		uploader = os.Getenv("USER")
	}
	return &Pipeline{
		chunker:   cfg.Chunker,
		embedder:  cfg.Embedder,
		index:     cfg.Index,
		log:       cfg.Log,
		llm:       cfg.LLM,
		batchSize: cfg.BatchSize,
		uploader:  uploader,
		now:       time.Now,
	}
}

// IngestFile stores one document. Unsupported types fail before any IO.
// A failed upload log write is reported as a warning; the chunks stay.
func (p *Pipeline) IngestFile(ctx context.Context, path string, opts Options) (FileResult, error) {
	res := FileResult{Path: path}
	fail := func(err error) (FileResult, error) {
		res.Err = err
		return res, err
	}

	if err := loader.Check(path); err != nil {
		return fail(err)
	}
	doc, err := loader.Load(path)
	if err != nil {
		return fail(err)
	}
	filename := doc.Name()

	texts, recs := p.split(doc)
	if len(texts) == 0 {
		return fail(fmt.Errorf("%s: %w", filename, ErrNoText))
	}

	namespace := opts.Namespace
	category := opts.Category
	if opts.Classify && p.llm != nil && (category == "" || namespace == "") {
		c, err := memory.Classify(ctx, p.llm, filename, strings.Join(texts[:min(summaryChunks, len(texts))], "\n"))
		if err != nil {
			res.Warnings = append(res.Warnings, err)
		} else {
			if category == "" {
				category = c.Category
			}
			if namespace == "" {
				namespace = c.Namespace
			}
		}
	}
	if namespace == "" {
		namespace = memory.NamespaceKnowledge
	}
	if category == "" {
		category = memory.InferCategory(filename)
	}
	uploader := opts.Uploader
	if uploader == "" {
		uploader = p.uploader
	}

	for i := range recs {
		recs[i].Namespace = namespace
		recs[i].Metadata.Uploader = uploader
		recs[i].Metadata.Category = category
	}

	vecs, err := adapter.EmbedBatched(ctx, p.embedder, texts, p.batchSize)
	if err != nil {
		return fail(fmt.Errorf("ingest: embed %s: %w", filename, err))
	}
	if err := p.index.Upsert(ctx, namespace, recs, vecs); err != nil {
		return fail(&memory.PersistenceError{Namespace: namespace, Err: err})
	}

	res.Text = doc.Text()
	res.Metadata = UploadMetadata{
		Filename:  filename,
		Summary:   Summary(filename, texts),
		Type:      category,
		Timestamp: p.now(),
		Storage:   []string{namespace},
		Uploader:  uploader,
		Chunks:    len(recs),
	}
	if p.log != nil {
		if err := p.log.Append(res.Metadata); err != nil {
			res.Warnings = append(res.Warnings, err)
		}
	}
	return res, nil
}

// IngestBatch ingests paths in order. A failed file does not stop the
// batch and nothing is rolled back.
func (p *Pipeline) IngestBatch(ctx context.Context, paths []string, opts Options, progress ProgressFunc) []FileResult {
	results := make([]FileResult, 0, len(paths))
	for i, path := range paths {
		if progress != nil {
			progress(i, len(paths), path)
		}
		if err := ctx.Err(); err != nil {
			results = append(results, FileResult{Path: path, Err: err})
			continue
		}
		res, _ := p.IngestFile(ctx, path, opts)
		results = append(results, res)
	}
	if progress != nil {
		progress(len(paths), len(paths), "")
	}
	return results
}

// split chunks every segment and returns texts with matching records.
// Chunk indexes run across the whole document.
func (p *Pipeline) split(doc loader.Document) ([]string, []memory.Record) {
	var (
		texts []string
		recs  []memory.Record
	)
	for _, seg := range doc.Segments {
		for w := range p.chunker.Windows(seg.Text) {
			if strings.TrimSpace(w.Text) == "" {
				continue
			}
			texts = append(texts, w.Text)
			recs = append(recs, memory.Record{
				Kind:    memory.KindReferenceChunk,
				Content: w.Text,
				Source:  filepath.Base(doc.Path),
				Metadata: memory.Metadata{
					SourceFile: filepath.Base(doc.Path),
					ChunkIndex: len(recs),
					Page:       seg.Page,
				},
			})
		}
	}
	return texts, recs
}

// Summary renders the upload log summary from the first chunks of a file.
func Summary(filename string, chunks []string) string {
	excerpt := strings.Join(chunks[:min(summaryChunks, len(chunks))], "\n")
	if r := []rune(excerpt); len(r) > summaryMaxRunes {
		excerpt = string(r[:summaryMaxRunes])
	}
	return fmt.Sprintf("Filename: %s\nExcerpt:\n%s", filename, excerpt)
}
