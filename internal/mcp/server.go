// Package mcp serves the twin as Model Context Protocol tools over stdio.
package mcp

import (
	"context"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/memvra/dtwin/internal/ingest"
	"github.com/memvra/dtwin/internal/memory"
	"github.com/memvra/dtwin/internal/twin"
)

// Turner runs one chat turn.
type Turner interface {
	HandleTurn(ctx context.Context, state twin.SessionState, input string) (twin.SessionState, twin.TurnResult)
}

// Searcher finds records close to a query.
type Searcher interface {
	Search(ctx context.Context, query, namespace string, topK int) ([]memory.Match, error)
}

// Rememberer stores manual notes.
type Rememberer interface {
	Remember(ctx context.Context, content, source string) (memory.Record, error)
}

// Ingester ingests files from disk.
type Ingester interface {
	IngestBatch(ctx context.Context, paths []string, opts ingest.Options, progress ingest.ProgressFunc) []ingest.FileResult
}

// MemoryInspector reads namespace statistics.
type MemoryInspector interface {
	Stats(ctx context.Context, namespace string) (memory.Stats, error)
}

// Deps wires a Server. Any field may be nil; the matching tool then
// reports that it is not configured.
type Deps struct {
	Turner   Turner
	Searcher Searcher
	Writer   Rememberer
	Ingester Ingester
	Uploads  *ingest.UploadLog
	Memory   MemoryInspector
	Version  string
}

// Server holds the MCP server and the single conversation a stdio client
// talks to.
type Server struct {
	deps Deps
	mcp  *server.MCPServer

	mu    sync.Mutex
	state twin.SessionState
}

// NewServer creates a Server with every tool registered.
func NewServer(deps Deps) *Server {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := &Server{
		deps: deps,
		mcp: server.NewMCPServer("dtwin", version,
			server.WithToolCapabilities(false),
			server.WithInstructions("Digital twin memory: chat with the twin, search its knowledge base and memories, store notes and ingest documents."),
		),
	}
	if deps.Uploads != nil {
		// An unreadable log leaves the conversation unseeded; list_uploads
		// reports the error.
		if st, err := twin.StartSession(deps.Uploads, twin.DefaultRecentUploads); err == nil {
			s.state = st
		}
	}
	s.registerTools()
	return s
}

// ServeStdio blocks serving requests on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("chat",
		mcp.WithDescription("Send a message to the digital twin. The conversation persists across calls until reset."),
		mcp.WithString("message", mcp.Required(), mcp.Description("The user message")),
		mcp.WithString("model", mcp.Description("Model hint, e.g. gpt-4")),
		mcp.WithBoolean("reset", mcp.Description("Clear the conversation before sending")),
	), s.handleChat)

	s.mcp.AddTool(mcp.NewTool("search",
		mcp.WithDescription("Semantic search over one namespace of the twin's memory."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search text")),
		mcp.WithString("namespace", mcp.Description("default (documents) or dt-memory (past interactions)"),
			mcp.Enum(memory.NamespaceKnowledge, memory.NamespaceMemory)),
		mcp.WithNumber("top_k", mcp.Description("Maximum results"), mcp.DefaultNumber(4)),
	), s.handleSearch)

	s.mcp.AddTool(mcp.NewTool("remember",
		mcp.WithDescription("Store a note in the twin's interaction memory."),
		mcp.WithString("content", mcp.Required(), mcp.Description("The note to remember")),
		mcp.WithString("source", mcp.Description("Who or what the note came from")),
	), s.handleRemember)

	s.mcp.AddTool(mcp.NewTool("ingest",
		mcp.WithDescription("Ingest .pdf, .docx or .txt files from disk into the knowledge base."),
		mcp.WithArray("paths", mcp.Required(), mcp.Description("File paths"), mcp.WithStringItems()),
		mcp.WithString("namespace", mcp.Description("Target namespace (default: default)")),
		mcp.WithString("uploader", mcp.Description("Uploader name")),
		mcp.WithBoolean("classify", mcp.Description("Ask the model to categorise each document")),
	), s.handleIngest)

	s.mcp.AddTool(mcp.NewTool("list_uploads",
		mcp.WithDescription("List uploaded document metadata, newest first."),
		mcp.WithNumber("limit", mcp.Description("Maximum entries"), mcp.DefaultNumber(10)),
	), s.handleListUploads)

	s.mcp.AddTool(mcp.NewTool("memory_stats",
		mcp.WithDescription("Record counts and last write time for each namespace."),
	), s.handleMemoryStats)
}
