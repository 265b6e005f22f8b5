package config

import (
	"os"
	"path/filepath"
	"testing"
)

// isolate points HOME at a temp dir and clears env overrides.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, k := range []string{"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "OLLAMA_HOST", "DTWIN_REDIS_ADDR"} {
		t.Setenv(k, "")
	}
	return home
}

func TestDefaultGlobal(t *testing.T) {
	cfg := DefaultGlobal()

	if cfg.Provider != "openai" {
		t.Errorf("provider: got %q, want %q", cfg.Provider, "openai")
	}
	if cfg.Chat.Model != "gpt-4" || cfg.Chat.FallbackModel != "gpt-3.5-turbo" {
		t.Errorf("chat models: got %q / %q", cfg.Chat.Model, cfg.Chat.FallbackModel)
	}
	if len(cfg.Chat.Models) != 3 {
		t.Errorf("allowed models: got %v", cfg.Chat.Models)
	}
	if cfg.Chat.Temperature != 0.3 {
		t.Errorf("temperature: got %v", cfg.Chat.Temperature)
	}
	if cfg.Embedding.Dimension != 1536 || cfg.Embedding.BatchSize != 32 {
		t.Errorf("embedding: got %+v", cfg.Embedding)
	}
	if cfg.Chunking.Size != 1000 || cfg.Chunking.Overlap != 150 || cfg.Chunking.Mode != "char" {
		t.Errorf("chunking: got %+v", cfg.Chunking)
	}
	if cfg.Retrieval.TopK != 4 {
		t.Errorf("top k: got %d, want 4", cfg.Retrieval.TopK)
	}
	if cfg.Prompt.ExcerptTokens != 2000 {
		t.Errorf("excerpt tokens: got %d", cfg.Prompt.ExcerptTokens)
	}
	if !cfg.Memory.WriteBack {
		t.Error("write-back should default to enabled")
	}
	if cfg.Server.SessionStore != "memory" {
		t.Errorf("session store: got %q", cfg.Server.SessionStore)
	}
	if cfg.Ollama.Host != "http://localhost:11434" {
		t.Errorf("ollama host: got %q", cfg.Ollama.Host)
	}
}

func TestWorkspacePaths(t *testing.T) {
	root := "/home/user/twin"
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"dir", WorkspaceDir(root), filepath.Join(root, ".dtwin")},
		{"db", DBPath(root), filepath.Join(root, ".dtwin", "dtwin.db")},
		{"uploads", UploadLogPath(root), filepath.Join(root, ".dtwin", "uploaded_documents.json")},
		{"config", WorkspaceConfigPath(root), filepath.Join(root, ".dtwin", "config.toml")},
		{"persona", PersonaPath(root), filepath.Join(root, ".dtwin", "persona.md")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestLoad_NoFiles(t *testing.T) {
	isolate(t)
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Chat.Model != "gpt-4" {
		t.Errorf("expected defaults, got %q", cfg.Chat.Model)
	}
}

func TestLoad_Layers(t *testing.T) {
	isolate(t)

	global := DefaultGlobal()
	global.Chat.Model = "gpt-3.5-turbo"
	global.Retrieval.TopK = 6
	if err := SaveGlobal(global); err != nil {
		t.Fatalf("SaveGlobal: %v", err)
	}

	root := t.TempDir()
	ws := "[retrieval]\ntop_k = 8\n\n[memory]\nwrite_back = false\n"
	if err := os.MkdirAll(WorkspaceDir(root), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(WorkspaceConfigPath(root), []byte(ws), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Chat.Model != "gpt-3.5-turbo" {
		t.Errorf("global layer lost: got %q", cfg.Chat.Model)
	}
	if cfg.Retrieval.TopK != 8 {
		t.Errorf("workspace layer should win: got %d", cfg.Retrieval.TopK)
	}
	if cfg.Memory.WriteBack {
		t.Error("workspace should disable write-back")
	}
	if cfg.Embedding.Dimension != 1536 {
		t.Errorf("untouched defaults should stay: got %d", cfg.Embedding.Dimension)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("DTWIN_REDIS_ADDR", "redis:6380")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Keys.OpenAI != "sk-test" {
		t.Errorf("expected env override, got %q", cfg.Keys.OpenAI)
	}
	if cfg.Redis.Addr != "redis:6380" {
		t.Errorf("redis addr: got %q", cfg.Redis.Addr)
	}
}

func TestLoad_BadWorkspaceFile(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	os.MkdirAll(WorkspaceDir(root), 0o755)
	os.WriteFile(WorkspaceConfigPath(root), []byte("not = [valid"), 0o644)

	if _, err := Load(root); err == nil {
		t.Error("expected parse error")
	}
}

func TestSaveWorkspace_RelativePersona(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	if err := SaveWorkspace(root, WorkspaceMeta{Name: "darren", Owner: "Darren Eastland"}, ".dtwin/persona.md"); err != nil {
		t.Fatalf("SaveWorkspace: %v", err)
	}

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workspace.Name != "darren" || cfg.Workspace.Owner != "Darren Eastland" {
		t.Errorf("workspace: %+v", cfg.Workspace)
	}
	if cfg.Prompt.PersonaFile != PersonaPath(root) {
		t.Errorf("persona file: got %q, want %q", cfg.Prompt.PersonaFile, PersonaPath(root))
	}
	if cfg.Prompt.ExcerptTokens != 2000 {
		t.Error("workspace file must not clobber defaults")
	}
}

func TestGlobalConfigPath(t *testing.T) {
	isolate(t)
	path, err := GlobalConfigPath()
	if err != nil {
		t.Fatalf("GlobalConfigPath: %v", err)
	}
	if !filepath.IsAbs(path) {
		t.Errorf("expected absolute path, got %q", path)
	}
	if filepath.Base(path) != "config.toml" || filepath.Base(filepath.Dir(path)) != "dtwin" {
		t.Errorf("unexpected path %q", path)
	}
}
