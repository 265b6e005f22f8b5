package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/memvra/dtwin/internal/memory"
)

const viewPreviewChars = 300

func newMemoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect what the twin has stored",
	}
	cmd.AddCommand(newMemoryStatsCmd(), newMemoryViewCmd())
	return cmd
}

func newMemoryStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show record counts per namespace",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			defer ws.Close()

			ctx := context.Background()
			for _, ns := range []string{memory.NamespaceKnowledge, memory.NamespaceMemory} {
				st, err := ws.store.Stats(ctx, ns)
				if err != nil {
					return err
				}
				printStats(os.Stdout, st)
			}
			return nil
		},
	}
}

func newMemoryViewCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "view <namespace>",
		Short: "Show the newest records of a namespace",
		Long: `Print the most recent records of a namespace, truncated for display.

Examples:
  dtwin memory view dt-memory
  dtwin memory view default --limit 20`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns := args[0]
			if !memory.ValidNamespace(ns) {
				return fmt.Errorf("unknown namespace %q (valid: %s, %s)", ns, memory.NamespaceKnowledge, memory.NamespaceMemory)
			}

			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			defer ws.Close()

			records, err := ws.store.Sample(context.Background(), ns, limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Printf("No records in %s.\n", ns)
				return nil
			}
			for _, r := range records {
				printRecord(os.Stdout, r)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 10, "number of records to show")

	return cmd
}

func printStats(out io.Writer, st memory.Stats) {
	fmt.Fprintf(out, "%-10s %d records", st.Namespace+":", st.Records)
	if len(st.ByKind) > 0 {
		kinds := make([]string, 0, len(st.ByKind))
		for k, n := range st.ByKind {
			kinds = append(kinds, fmt.Sprintf("%d %s", n, k))
		}
		sort.Strings(kinds)
		fmt.Fprintf(out, " (%s)", strings.Join(kinds, ", "))
	}
	if st.Sources > 0 {
		fmt.Fprintf(out, " from %d source(s)", st.Sources)
	}
	if !st.LastWrite.IsZero() {
		fmt.Fprintf(out, ", last write %s", st.LastWrite.Local().Format("2006-01-02 15:04"))
	}
	fmt.Fprintln(out)
}

func printRecord(out io.Writer, r memory.Record) {
	label := r.Source
	if r.Metadata.SourceFile != "" {
		label = r.Metadata.SourceFile
		if r.Metadata.Page > 0 {
			label += fmt.Sprintf(" p.%d", r.Metadata.Page)
		}
	}
	fmt.Fprintf(out, "[%s] %s (%s)\n  id: %s\n  %s\n\n",
		r.CreatedAt.Local().Format("2006-01-02 15:04"), r.Kind, label, r.ID, preview(r.Content, viewPreviewChars))
}

// preview flattens newlines and truncates to n runes.
func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
