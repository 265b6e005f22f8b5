package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newRememberCmd() *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "remember <statement>",
		Short: "Store a note in the twin's interaction memory",
		Long: `Manually save something the twin should recall in later conversations.
Notes are stored in the dt-memory namespace next to chat summaries.

Examples:
  dtwin remember "The board approved the Q3 hiring plan"
  dtwin remember "Prefers bullet-point summaries" --source preference`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			statement := strings.Join(args, " ")

			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			defer ws.Close()

			rec, err := ws.writer.Remember(context.Background(), statement, source)
			if err != nil {
				return fmt.Errorf("store memory: %w", err)
			}

			fmt.Printf("Stored in: %s\n", rec.Namespace)
			fmt.Printf("  %q\n", statement)
			fmt.Printf("  id: %s\n", rec.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&source, "source", "s", "user", "where the note came from")

	return cmd
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Write a test record to check that memory works",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			defer ws.Close()

			rec, err := ws.writer.Seed(context.Background())
			if err != nil {
				return fmt.Errorf("seed memory: %w", err)
			}
			fmt.Printf("Seeded %s with %q (id: %s)\n", rec.Namespace, rec.Content, rec.ID)
			return nil
		},
	}
}
