package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/memvra/dtwin/internal/config"
	"github.com/memvra/dtwin/internal/memory"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current state of the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			defer ws.Close()

			ctx := context.Background()
			uploads, err := ws.uploads.Load()
			if err != nil {
				warn("%v", err)
			}

			persona := ws.personaFile()
			if persona == "" {
				persona = "built-in"
			}

			var dbSize int64
			if fi, err := os.Stat(config.DBPath(ws.root)); err == nil {
				dbSize = fi.Size()
			}

			fmt.Printf("\nTwin:      %s\n", ws.name())
			fmt.Printf("Workspace: %s\n", ws.root)
			fmt.Printf("Persona:   %s\n", persona)
			fmt.Printf("Chat:      %s / %s\n", ws.cfg.Provider, ws.cfg.Chat.Model)
			fmt.Printf("Embedder:  %s (%d dimensions)\n", ws.cfg.Embedder, ws.db.Dimension())
			fmt.Printf("Chunking:  %s, size %d, overlap %d\n", ws.cfg.Chunking.Mode, ws.cfg.Chunking.Size, ws.cfg.Chunking.Overlap)
			fmt.Printf("Uploads:   %d document(s)\n", len(uploads))
			for _, ns := range []string{memory.NamespaceKnowledge, memory.NamespaceMemory} {
				st, err := ws.store.Stats(ctx, ns)
				if err != nil {
					return err
				}
				fmt.Print("Memory:    ")
				printStats(os.Stdout, st)
			}
			fmt.Printf("DB size:   %s\n", formatBytes(dbSize))
			fmt.Println()
			return nil
		},
	}
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
