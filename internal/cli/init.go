package cli

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/memvra/dtwin/internal/config"
	"github.com/memvra/dtwin/internal/db"
	"github.com/memvra/dtwin/internal/prompt"
)

func newInitCmd() *cobra.Command {
	var (
		root       string
		owner      string
		skipPrompt bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a dtwin workspace in the current directory",
		Long: `Create the .dtwin/ directory with the SQLite vector store, an editable
persona file and the workspace config.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if root == "" {
				cwd, err := os.Getwd()
				if err != nil {
					return fmt.Errorf("get working directory: %w", err)
				}
				root = cwd
			}
			root, _ = filepath.Abs(root)

			cfg, err := config.LoadGlobal()
			if err != nil {
				warn("%v (using defaults)", err)
			}

			if owner == "" && !skipPrompt {
				fmt.Println("Whose digital twin is this? (press Enter to skip)")
				fmt.Print("> ")
				line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
				owner = strings.TrimSpace(line)
			}

			bar := progressbar.NewOptions(-1,
				progressbar.OptionSetDescription("  Creating vector store"),
				progressbar.OptionSpinnerType(14),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionClearOnFinish(),
			)
			database, err := db.Open(config.DBPath(root), cfg.Embedding.Dimension)
			_ = bar.Finish()
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer database.Close()

			personaPath := config.PersonaPath(root)
			if _, err := os.Stat(personaPath); os.IsNotExist(err) {
				persona := prompt.DefaultPersona()
				if owner != "" {
					persona.Name = owner
				}
				if err := prompt.WritePersonaFile(personaPath, persona); err != nil {
					warn("could not write persona file: %v", err)
				}
			}

			meta := config.WorkspaceMeta{Name: filepath.Base(root), Owner: owner}
			rel := filepath.Join(config.WorkspaceDirName, "persona.md")
			if err := config.SaveWorkspace(root, meta, rel); err != nil {
				warn("could not write workspace config: %v", err)
			}

			ensureGitignore(root)

			fmt.Printf("Vector store ready (%d dimensions)\n", database.Dimension())
			fmt.Println()
			fmt.Println("dtwin initialized. Workspace saved to .dtwin/")
			fmt.Println(`Tip: Run "dtwin ingest <folder>" to add documents, then "dtwin chat".`)
			return nil
		},
	}

	cmd.Flags().StringVarP(&root, "root", "r", "", "Workspace directory (default: current directory)")
	cmd.Flags().StringVar(&owner, "owner", "", "Name of the person this twin represents")
	cmd.Flags().BoolVar(&skipPrompt, "no-prompt", false, "Skip the interactive owner prompt")

	return cmd
}

// ensureGitignore appends .dtwin/ to .gitignore if not already present.
func ensureGitignore(root string) {
	path := filepath.Join(root, ".gitignore")
	content, err := os.ReadFile(path)
	if err == nil && strings.Contains(string(content), config.WorkspaceDirName+"/") {
		return
	}
	if err != nil && !os.IsNotExist(err) {
		return
	}
	// Only touch .gitignore inside git checkouts.
	if os.IsNotExist(err) {
		if _, gitErr := os.Stat(filepath.Join(root, ".git")); gitErr != nil {
			return
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()

	if len(content) > 0 && !strings.HasSuffix(string(content), "\n") {
		_, _ = f.WriteString("\n")
	}
	_, _ = f.WriteString(config.WorkspaceDirName + "/\n")
}
