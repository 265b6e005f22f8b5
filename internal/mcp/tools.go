package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/memvra/dtwin/internal/ingest"
	"github.com/memvra/dtwin/internal/memory"
)

const notConfigured = "%s is not configured for this workspace"

func (s *Server) handleChat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.deps.Turner == nil {
		return mcp.NewToolResultErrorf(notConfigured, "chat"), nil
	}
	message, err := req.RequireString("message")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: message"), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if req.GetBool("reset", false) {
		s.state = s.state.Reset()
	}
	if model := req.GetString("model", ""); model != "" {
		s.state.Model = model
	}

	st, res := s.deps.Turner.HandleTurn(ctx, s.state, message)
	s.state = st

	var sb strings.Builder
	sb.WriteString(res.Reply)
	fmt.Fprintf(&sb, "\n\n(model: %s", res.Model)
	if st.KrytenMode {
		sb.WriteString(", kryten mode")
	}
	if res.MemoryWritten {
		sb.WriteString(", saved to memory")
	}
	sb.WriteString(")")
	for _, w := range res.Warnings {
		fmt.Fprintf(&sb, "\nWarning: %v", w)
	}

	if res.Failed {
		return mcp.NewToolResultError(sb.String()), nil
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (s *Server) handleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.deps.Searcher == nil {
		return mcp.NewToolResultErrorf(notConfigured, "search"), nil
	}
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}
	ns := req.GetString("namespace", memory.NamespaceKnowledge)
	if !memory.ValidNamespace(ns) {
		return mcp.NewToolResultErrorf("invalid namespace %q (valid: %s, %s)", ns, memory.NamespaceKnowledge, memory.NamespaceMemory), nil
	}

	matches, err := s.deps.Searcher.Search(ctx, query, ns, req.GetInt("top_k", 4))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	if len(matches) == 0 {
		return mcp.NewToolResultText("No results found."), nil
	}

	var sb strings.Builder
	for _, m := range matches {
		label := m.Source
		if m.Metadata.SourceFile != "" {
			label = m.Metadata.SourceFile
			if m.Metadata.Page > 0 {
				label += fmt.Sprintf(" p.%d", m.Metadata.Page)
			}
		}
		fmt.Fprintf(&sb, "### %s (similarity %.2f, id: %s)\n%s\n\n", label, m.Similarity(), m.ID, m.Content)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (s *Server) handleRemember(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.deps.Writer == nil {
		return mcp.NewToolResultErrorf(notConfigured, "memory"), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: content"), nil
	}

	rec, err := s.deps.Writer.Remember(ctx, content, req.GetString("source", "mcp"))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to store memory: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Remembered in %s (id: %s)", rec.Namespace, rec.ID)), nil
}

func (s *Server) handleIngest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.deps.Ingester == nil {
		return mcp.NewToolResultErrorf(notConfigured, "ingestion"), nil
	}
	paths, err := req.RequireStringSlice("paths")
	if err != nil || len(paths) == 0 {
		return mcp.NewToolResultError("missing required parameter: paths"), nil
	}

	results := s.deps.Ingester.IngestBatch(ctx, paths, ingest.Options{
		Namespace: req.GetString("namespace", ""),
		Uploader:  req.GetString("uploader", ""),
		Classify:  req.GetBool("classify", false),
	}, nil)

	var sb strings.Builder
	ok := 0
	var last *ingest.FileResult
	for i, r := range results {
		if !r.OK() {
			fmt.Fprintf(&sb, "✗ %s: %v\n", r.Path, r.Err)
			continue
		}
		ok++
		last = &results[i]
		fmt.Fprintf(&sb, "✓ %s: %d chunks (%s)\n", r.Metadata.Filename, r.Metadata.Chunks, r.Metadata.Type)
		for _, w := range r.Warnings {
			fmt.Fprintf(&sb, "  Warning: %v\n", w)
		}
	}
	fmt.Fprintf(&sb, "\n%d of %d file(s) ingested.", ok, len(results))

	// The chat conversation sees the last stored file as its attachment.
	if last != nil {
		s.mu.Lock()
		s.state = s.state.WithUpload(last.Metadata, last.Text)
		s.mu.Unlock()
	}

	if ok == 0 {
		return mcp.NewToolResultError(sb.String()), nil
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (s *Server) handleListUploads(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.deps.Uploads == nil {
		return mcp.NewToolResultErrorf(notConfigured, "upload log"), nil
	}
	entries, err := s.deps.Uploads.Recent(req.GetInt("limit", 10))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read upload log: %v", err)), nil
	}
	if len(entries) == 0 {
		return mcp.NewToolResultText("No documents uploaded."), nil
	}

	var sb strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&sb, "[%s] %s (%s, %d chunks) by %s\n  %s\n\n",
			e.Timestamp.Format("2006-01-02 15:04"), e.Filename, e.Type, e.Chunks, e.Uploader,
			firstLine(e.Summary))
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (s *Server) handleMemoryStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.deps.Memory == nil {
		return mcp.NewToolResultErrorf(notConfigured, "memory"), nil
	}

	var sb strings.Builder
	for _, ns := range []string{memory.NamespaceKnowledge, memory.NamespaceMemory} {
		st, err := s.deps.Memory.Stats(ctx, ns)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read stats for %s: %v", ns, err)), nil
		}
		fmt.Fprintf(&sb, "%s: %d records", ns, st.Records)
		if st.Sources > 0 {
			fmt.Fprintf(&sb, " from %d source(s)", st.Sources)
		}
		if !st.LastWrite.IsZero() {
			fmt.Fprintf(&sb, ", last write %s", st.LastWrite.Format("2006-01-02 15:04"))
		}
		sb.WriteString("\n")
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// firstLine returns the first non-label line of an upload summary.
func firstLine(summary string) string {
	for _, line := range strings.Split(summary, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "Filename:") || line == "Excerpt:" {
			continue
		}
		if r := []rune(line); len(r) > 120 {
			return string(r[:120]) + "..."
		}
		return line
	}
	return ""
}
