package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/memvra/dtwin/internal/adapter"
	"github.com/memvra/dtwin/internal/memory"
)

// SourceGrouper lists stored records of a namespace grouped by file.
type SourceGrouper interface {
	GroupBySource(ctx context.Context, namespace string) ([]memory.SourceGroup, error)
}

// BackfillResult reports what a backfill run added.
type BackfillResult struct {
	Added    []UploadMetadata
	Skipped  int
	Warnings []error
}

// Backfill writes upload log entries for files that were embedded without
// one. Files already in the log are left alone. When llm is nil, or the
// classifier fails, the summary falls back to the stored excerpt.
func Backfill(ctx context.Context, src SourceGrouper, log *UploadLog, llm adapter.LLMAdapter, namespace string) (BackfillResult, error) {
	var res BackfillResult
	if namespace == "" {
		namespace = memory.NamespaceKnowledge
	}

	groups, err := src.GroupBySource(ctx, namespace)
	if err != nil {
		return res, fmt.Errorf("backfill: %w", err)
	}
	existing, err := log.Load()
	if err != nil {
		return res, err
	}
	seen := make(map[string]bool, len(existing))
	for _, e := range existing {
		seen[e.Filename] = true
	}

	for _, g := range groups {
		if g.SourceFile == "" || seen[g.SourceFile] {
			res.Skipped++
			continue
		}

		summary := Summary(g.SourceFile, []string{g.Excerpt})
		if llm != nil {
			c, err := memory.Classify(ctx, llm, g.SourceFile, g.Excerpt)
			if err != nil {
				res.Warnings = append(res.Warnings, err)
			} else if c.Summary != "" {
				summary = c.Summary
			}
		}

		ts := g.FirstSeen
		if ts.IsZero() {
			ts = time.Now()
		}
		res.Added = append(res.Added, UploadMetadata{
			Filename:  g.SourceFile,
			Summary:   summary,
			Type:      memory.InferCategory(g.SourceFile),
			Timestamp: ts,
			Storage:   []string{namespace},
			Uploader:  g.Uploader,
			Chunks:    g.Chunks,
		})
		seen[g.SourceFile] = true
	}

	if err := log.Append(res.Added...); err != nil {
		return res, err
	}
	return res, nil
}
