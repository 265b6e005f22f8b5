package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/memvra/dtwin/internal/adapter"
	"github.com/memvra/dtwin/internal/chat"
	"github.com/memvra/dtwin/internal/chunker"
	"github.com/memvra/dtwin/internal/config"
	"github.com/memvra/dtwin/internal/db"
	"github.com/memvra/dtwin/internal/ingest"
	"github.com/memvra/dtwin/internal/memory"
	"github.com/memvra/dtwin/internal/prompt"
	"github.com/memvra/dtwin/internal/twin"
)

// workspace bundles everything a command needs for one .dtwin/ root.
type workspace struct {
	root      string
	cfg       config.Config
	db        *db.DB
	store     *memory.Store
	index     *memory.SQLiteIndex
	uploads   *ingest.UploadLog
	embedder  adapter.LLMAdapter
	llm       adapter.LLMAdapter
	tokenizer *chunker.Tokenizer
	retriever *memory.Retriever
	writer    *memory.Writer
}

// openWorkspace finds the workspace root, loads the layered config and
// opens the database. Close it when done.
func openWorkspace() (*workspace, error) {
	root, err := findRoot()
	if err != nil {
		return nil, err
	}
	dbPath, err := ensureInitialized(root)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}

	database, err := db.Open(dbPath, cfg.Embedding.Dimension)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	ws := &workspace{
		root:    root,
		cfg:     cfg,
		db:      database,
		store:   memory.NewStore(database),
		uploads: ingest.NewUploadLog(config.UploadLogPath(root)),
	}
	ws.index = memory.NewSQLiteIndex(ws.store, memory.NewVectorStore(database))

	ws.embedder, err = buildEmbedder(cfg)
	if err != nil {
		database.Close()
		return nil, err
	}
	ws.retriever = memory.NewRetriever(ws.embedder, ws.index, memory.NewRanker(cfg.Retrieval.MinSimilarity), cfg.Retrieval.TopK)
	ws.writer = memory.NewWriter(ws.embedder, ws.index)
	return ws, nil
}

func (w *workspace) Close() error {
	return w.db.Close()
}

// chatLLM returns the completion adapter, built on first use so commands
// that only read memory never need a chat key.
func (w *workspace) chatLLM() (adapter.LLMAdapter, error) {
	if w.llm != nil {
		return w.llm, nil
	}
	llm, err := adapter.New(w.cfg.Provider, adapter.Options{
		APIKey:     apiKey(w.cfg, w.cfg.Provider),
		EmbedModel: w.cfg.Embedding.Model,
		Host:       w.cfg.Ollama.Host,
		ChatModel:  w.cfg.Ollama.CompletionModel,
	})
	if err != nil {
		return nil, err
	}
	w.llm = llm
	return llm, nil
}

func (w *workspace) tok() (*chunker.Tokenizer, error) {
	if w.tokenizer != nil {
		return w.tokenizer, nil
	}
	t, err := chunker.NewTokenizer()
	if err != nil {
		return nil, fmt.Errorf("init tokenizer: %w", err)
	}
	w.tokenizer = t
	return t, nil
}

// pipeline builds the ingestion pipeline from the chunking settings.
func (w *workspace) pipeline() (*ingest.Pipeline, error) {
	mode, err := chunker.ParseMode(w.cfg.Chunking.Mode)
	if err != nil {
		return nil, err
	}
	ch, err := chunker.New(chunker.Options{Mode: mode, Size: w.cfg.Chunking.Size, Overlap: w.cfg.Chunking.Overlap})
	if err != nil {
		return nil, err
	}

	// Classification is optional; a missing chat key only disables it.
	llm, llmErr := w.chatLLM()
	if llmErr != nil {
		llm = nil
	}
	return ingest.NewPipeline(ingest.Config{
		Chunker:   ch,
		Embedder:  w.embedder,
		Index:     w.index,
		Log:       w.uploads,
		LLM:       llm,
		BatchSize: w.cfg.Embedding.BatchSize,
		Uploader:  w.cfg.Uploads.Uploader,
	}), nil
}

// newSession starts a conversation that knows about the latest uploads. An
// unreadable upload log only costs the summaries.
func (w *workspace) newSession(model string) twin.SessionState {
	st, err := twin.StartSession(w.uploads, twin.DefaultRecentUploads)
	if err != nil {
		warn("%v", err)
	}
	st.Model = model
	return st
}

// orchestrator builds the turn orchestrator with the configured persona.
func (w *workspace) orchestrator(observer twin.Observer) (*twin.Orchestrator, error) {
	llm, err := w.chatLLM()
	if err != nil {
		return nil, err
	}
	persona, err := prompt.LoadPersona(w.personaFile())
	if err != nil {
		return nil, err
	}
	tokenizer, err := w.tok()
	if err != nil {
		return nil, err
	}

	client := chat.New(llm, chat.Options{
		Model:         w.cfg.Chat.Model,
		Models:        w.cfg.Chat.Models,
		FallbackModel: w.cfg.Chat.FallbackModel,
		Temperature:   w.cfg.Chat.Temperature,
		MaxTokens:     w.cfg.Chat.MaxTokens,
	})
	return twin.New(twin.Config{
		Retriever:     w.retriever,
		Chat:          client,
		Writer:        w.writer,
		Tokenizer:     tokenizer,
		Persona:       persona,
		ExcerptTokens: w.cfg.Prompt.ExcerptTokens,
		WriteBack:     w.cfg.Memory.WriteBack,
		Observer:      observer,
	}), nil
}

// personaFile returns the configured persona, or .dtwin/persona.md when it
// exists, or "" for the built-in one.
func (w *workspace) personaFile() string {
	if w.cfg.Prompt.PersonaFile != "" {
		return w.cfg.Prompt.PersonaFile
	}
	if _, err := os.Stat(config.PersonaPath(w.root)); err == nil {
		return config.PersonaPath(w.root)
	}
	return ""
}

// name labels the twin in output: the workspace owner, then the persona.
func (w *workspace) name() string {
	if w.cfg.Workspace.Owner != "" {
		return w.cfg.Workspace.Owner
	}
	if p, err := prompt.LoadPersona(w.personaFile()); err == nil && p.Name != "" {
		return p.Name
	}
	return "DT"
}

// buildEmbedder creates the embedding adapter named by cfg.Embedder.
func buildEmbedder(cfg config.Config) (adapter.LLMAdapter, error) {
	name := cfg.Embedder
	if name == "" {
		name = adapter.ProviderOpenAI
	}
	if name == adapter.ProviderClaude {
		return nil, fmt.Errorf("embedder %q cannot produce embeddings; use openai or ollama", name)
	}
	model := cfg.Embedding.Model
	if name == adapter.ProviderOllama {
		model = cfg.Ollama.EmbedModel
	}
	emb, err := adapter.New(name, adapter.Options{
		APIKey:     apiKey(cfg, name),
		EmbedModel: model,
		Host:       cfg.Ollama.Host,
	})
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}
	return emb, nil
}

// apiKey returns the correct API key from the config for the given provider.
func apiKey(cfg config.Config, provider string) string {
	switch provider {
	case adapter.ProviderClaude:
		return cfg.Keys.Anthropic
	case adapter.ProviderOpenAI:
		return cfg.Keys.OpenAI
	default:
		return ""
	}
}

// findRoot walks up from the working directory to the nearest .dtwin/,
// falling back to the working directory itself.
func findRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	dir, _ := filepath.Abs(cwd)
	for {
		if fi, err := os.Stat(config.WorkspaceDir(dir)); err == nil && fi.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return cwd, nil
}

// ensureInitialized returns the database path or an error pointing at init.
func ensureInitialized(root string) (string, error) {
	dbPath := config.DBPath(root)
	if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("dtwin not initialized. Run `dtwin init` first")
	}
	return dbPath, nil
}

func warn(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "  Warning: "+format+"\n", args...)
}
