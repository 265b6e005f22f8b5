// Package config manages global (~/.config/dtwin/config.toml) and
// per-workspace (.dtwin/config.toml) configuration for dtwin.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// WorkspaceDirName is the per-workspace state directory.
const WorkspaceDirName = ".dtwin"

// Config holds every setting. The same shape is read from the global and
// the workspace file; keys present in a later layer win.
type Config struct {
	Provider  string          `toml:"provider"`
	Embedder  string          `toml:"embedder"`
	Keys      KeysConfig      `toml:"keys"`
	Ollama    OllamaConfig    `toml:"ollama"`
	Chat      ChatConfig      `toml:"chat"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Chunking  ChunkingConfig  `toml:"chunking"`
	Retrieval RetrievalConfig `toml:"retrieval"`
	Prompt    PromptConfig    `toml:"prompt"`
	Memory    MemoryConfig    `toml:"memory"`
	Uploads   UploadsConfig   `toml:"uploads"`
	Server    ServerConfig    `toml:"server"`
	Redis     RedisConfig     `toml:"redis"`
	Output    OutputConfig    `toml:"output"`
	Workspace WorkspaceMeta   `toml:"workspace"`
}

type KeysConfig struct {
	Anthropic string `toml:"anthropic"`
	OpenAI    string `toml:"openai"`
}

type OllamaConfig struct {
	Host            string `toml:"host"`
	EmbedModel      string `toml:"embed_model"`
	CompletionModel string `toml:"completion_model"`
}

// ChatConfig selects the completion model. Hints outside Models fall back
// to FallbackModel; an empty Models list accepts any hint.
type ChatConfig struct {
	Model         string   `toml:"model"`
	Models        []string `toml:"models"`
	FallbackModel string   `toml:"fallback_model"`
	Temperature   float64  `toml:"temperature"`
	MaxTokens     int      `toml:"max_tokens"`
}

type EmbeddingConfig struct {
	Model     string `toml:"model"`
	Dimension int    `toml:"dimension"`
	BatchSize int    `toml:"batch_size"`
}

type ChunkingConfig struct {
	Mode    string `toml:"mode"`
	Size    int    `toml:"size"`
	Overlap int    `toml:"overlap"`
}

type RetrievalConfig struct {
	TopK          int     `toml:"top_k"`
	MinSimilarity float64 `toml:"min_similarity"`
}

type PromptConfig struct {
	PersonaFile   string `toml:"persona_file"`
	ExcerptTokens int    `toml:"excerpt_tokens"`
}

type MemoryConfig struct {
	WriteBack bool `toml:"write_back"`
}

type UploadsConfig struct {
	Uploader string   `toml:"uploader"`
	Classify bool     `toml:"classify"`
	Include  []string `toml:"include"`
}

// ServerConfig controls the HTTP API. SessionStore is "memory" or "redis".
type ServerConfig struct {
	Addr         string `toml:"addr"`
	SessionStore string `toml:"session_store"`
	SessionTTL   string `toml:"session_ttl"`
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

type OutputConfig struct {
	Color   bool `toml:"color"`
	Verbose bool `toml:"verbose"`
}

type WorkspaceMeta struct {
	Name  string `toml:"name"`
	Owner string `toml:"owner"`
}

// DefaultGlobal returns sensible defaults.
func DefaultGlobal() Config {
	return Config{
		Provider: "openai",
		Embedder: "openai",
		Ollama: OllamaConfig{
			Host:            "http://localhost:11434",
			EmbedModel:      "nomic-embed-text",
			CompletionModel: "llama3.2",
		},
		Chat: ChatConfig{
			Model:         "gpt-4",
			Models:        []string{"gpt-4", "gpt-4-0613", "gpt-3.5-turbo"},
			FallbackModel: "gpt-3.5-turbo",
			Temperature:   0.3,
		},
		Embedding: EmbeddingConfig{
			Model:     "text-embedding-ada-002",
			Dimension: 1536,
			BatchSize: 32,
		},
		Chunking: ChunkingConfig{
			Mode:    "char",
			Size:    1000,
			Overlap: 150,
		},
		Retrieval: RetrievalConfig{
			TopK: 4,
		},
		Prompt: PromptConfig{
			ExcerptTokens: 2000,
		},
		Memory: MemoryConfig{
			WriteBack: true,
		},
		Server: ServerConfig{
			Addr:         ":8080",
			SessionStore: "memory",
			SessionTTL:   "24h",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Output: OutputConfig{
			Color: true,
		},
	}
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "dtwin", "config.toml"), nil
}

// WorkspaceDir returns the path to the workspace's .dtwin/ directory.
func WorkspaceDir(root string) string {
	return filepath.Join(root, WorkspaceDirName)
}

// DBPath returns the path to the workspace's SQLite database.
func DBPath(root string) string {
	return filepath.Join(root, WorkspaceDirName, "dtwin.db")
}

// UploadLogPath returns the path to the workspace's upload log.
func UploadLogPath(root string) string {
	return filepath.Join(root, WorkspaceDirName, "uploaded_documents.json")
}

// WorkspaceConfigPath returns the path to .dtwin/config.toml.
func WorkspaceConfigPath(root string) string {
	return filepath.Join(root, WorkspaceDirName, "config.toml")
}

// PersonaPath returns the default location of a workspace persona file.
func PersonaPath(root string) string {
	return filepath.Join(root, WorkspaceDirName, "persona.md")
}

// LoadGlobal loads defaults overlaid with the global config file and the
// environment.
func LoadGlobal() (Config, error) {
	cfg := DefaultGlobal()
	if err := decodeGlobal(&cfg); err != nil {
		return cfg, err
	}
	applyEnv(&cfg)
	return cfg, nil
}

// Load returns the effective config for a workspace root: defaults, then
// the global file, then .dtwin/config.toml, then the environment.
func Load(root string) (Config, error) {
	cfg := DefaultGlobal()
	if err := decodeGlobal(&cfg); err != nil {
		return cfg, err
	}
	if err := decodeFile(WorkspaceConfigPath(root), &cfg); err != nil {
		return cfg, fmt.Errorf("config: load workspace: %w", err)
	}
	applyEnv(&cfg)

	if cfg.Prompt.PersonaFile != "" && !filepath.IsAbs(cfg.Prompt.PersonaFile) {
		cfg.Prompt.PersonaFile = filepath.Join(root, cfg.Prompt.PersonaFile)
	}
	return cfg, nil
}

func decodeGlobal(cfg *Config) error {
	path, err := GlobalConfigPath()
	if err != nil {
		return nil // Defaults if we can't determine home dir.
	}
	if err := decodeFile(path, cfg); err != nil {
		return fmt.Errorf("config: load global: %w", err)
	}
	return nil
}

// decodeFile overlays path onto cfg. A missing file is not an error.
func decodeFile(path string, cfg *Config) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	_, err := toml.DecodeFile(path, cfg)
	return err
}

// applyEnv lets environment variables override file values.
func applyEnv(cfg *Config) {
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Keys.Anthropic = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Keys.OpenAI = v
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		cfg.Ollama.Host = v
	}
	if v := os.Getenv("DTWIN_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
}

// SaveGlobal writes the global config to disk.
func SaveGlobal(cfg Config) error {
	path, err := GlobalConfigPath()
	if err != nil {
		return err
	}
	return writeTOML(path, cfg)
}

// workspaceFile is the subset init writes; everything else inherits.
type workspaceFile struct {
	Workspace WorkspaceMeta `toml:"workspace"`
	Prompt    struct {
		PersonaFile string `toml:"persona_file,omitempty"`
	} `toml:"prompt"`
}

// SaveWorkspace writes .dtwin/config.toml with the workspace metadata and
// persona file. Other settings are left to the global layer.
func SaveWorkspace(root string, meta WorkspaceMeta, personaFile string) error {
	var f workspaceFile
	f.Workspace = meta
	f.Prompt.PersonaFile = personaFile
	return writeTOML(WorkspaceConfigPath(root), f)
}

func writeTOML(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: mkdir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config: create %s: %w", path, err)
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(v)
}
