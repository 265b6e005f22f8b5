package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/memvra/dtwin/internal/adapter"
	"github.com/memvra/dtwin/internal/config"
)

func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactive first-time configuration",
		Long:  "Configure API keys, the chat provider and the embedding provider for dtwin.",
		RunE: func(cmd *cobra.Command, args []string) error {
			reader := bufio.NewReader(os.Stdin)

			fmt.Println("Welcome to dtwin! Let's configure your digital twin.")
			fmt.Println()

			cfg, err := config.LoadGlobal()
			if err != nil {
				cfg = config.DefaultGlobal()
			}

			// Step 1: chat provider.
			fmt.Println("Which LLM should the twin use for chat?")
			fmt.Println("  [1] OpenAI (GPT-4)")
			fmt.Println("  [2] Claude (Anthropic)")
			fmt.Println("  [3] Ollama (local)")
			fmt.Print("> ")

			switch strings.TrimSpace(readLineBuf(reader)) {
			case "2":
				cfg.Provider = adapter.ProviderClaude
				cfg.Chat.Model = "claude-sonnet-4-20250514"
				cfg.Chat.Models = []string{}
				if key := readSecret(reader, "Enter your Anthropic API key (or press Enter to set ANTHROPIC_API_KEY later): "); key != "" {
					cfg.Keys.Anthropic = key
				}
			case "3":
				cfg.Provider = adapter.ProviderOllama
				cfg.Chat.Model = cfg.Ollama.CompletionModel
				cfg.Chat.Models = []string{}
			default:
				cfg.Provider = adapter.ProviderOpenAI
				if key := readSecret(reader, "Enter your OpenAI API key (or press Enter to set OPENAI_API_KEY later): "); key != "" {
					cfg.Keys.OpenAI = key
				}
			}

			fmt.Println()

			// Step 2: embeddings.
			fmt.Println("For embeddings (semantic search), use:")
			fmt.Println("  [1] OpenAI embeddings (text-embedding-ada-002, 1536 dimensions)")
			fmt.Println("  [2] Local embeddings via Ollama (private, free; requires Ollama)")
			fmt.Print("> ")

			switch strings.TrimSpace(readLineBuf(reader)) {
			case "2":
				cfg.Embedder = adapter.ProviderOllama
				cfg.Embedding.Dimension = 768
				fmt.Printf("Ollama host (press Enter for %s): ", cfg.Ollama.Host)
				if host := readLineBuf(reader); host != "" {
					cfg.Ollama.Host = host
				}
			default:
				cfg.Embedder = adapter.ProviderOpenAI
				if cfg.Keys.OpenAI == "" {
					cfg.Keys.OpenAI = readSecret(reader, "Enter your OpenAI API key: ")
				}
			}

			fmt.Println()

			if err := config.SaveGlobal(cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}

			path, _ := config.GlobalConfigPath()
			fmt.Printf("Configuration saved to %s\n", path)
			fmt.Println("Navigate to a folder and run `dtwin init` to get started.")
			return nil
		},
	}
}

// readLineBuf reads a trimmed line from a bufio.Reader.
func readLineBuf(r *bufio.Reader) string {
	line, _ := r.ReadString('\n')
	return strings.TrimRight(line, "\r\n")
}

// readSecret prompts for a key without echo when stdin is a terminal.
func readSecret(r *bufio.Reader, label string) string {
	fmt.Print(label)
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return strings.TrimSpace(readLineBuf(r))
	}
	b, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}
