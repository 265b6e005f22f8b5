package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/memvra/dtwin/internal/adapter"
	"github.com/memvra/dtwin/internal/config"
	"github.com/memvra/dtwin/internal/ingest"
	"github.com/memvra/dtwin/internal/memory"
)

func newUploadsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "uploads",
		Short: "List uploaded documents, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := findRoot()
			if err != nil {
				return err
			}
			if _, err := ensureInitialized(root); err != nil {
				return err
			}

			entries, err := ingest.NewUploadLog(config.UploadLogPath(root)).Recent(limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No documents uploaded yet.")
				return nil
			}
			for _, e := range entries {
				printUpload(os.Stdout, e)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 10, "number of entries to show (0 for all)")

	return cmd
}

func newBackfillCmd() *cobra.Command {
	var (
		namespace   string
		excerptOnly bool
	)

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Create upload log entries for documents embedded without one",
		Long: `Scan the vector store for source files that have no entry in
uploaded_documents.json and add one. Each file is summarised by the chat
model; with --excerpt-only, or when the model is unavailable, the stored
excerpt is used instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if namespace != "" && !memory.ValidNamespace(namespace) {
				return fmt.Errorf("unknown namespace %q (valid: %s, %s)", namespace, memory.NamespaceKnowledge, memory.NamespaceMemory)
			}

			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			defer ws.Close()

			var llm adapter.LLMAdapter
			if !excerptOnly {
				if llm, err = ws.chatLLM(); err != nil {
					warn("summaries fall back to excerpts: %v", err)
					llm = nil
				}
			}

			bar := progressbar.NewOptions(-1,
				progressbar.OptionSetDescription("  Backfilling upload log"),
				progressbar.OptionSpinnerType(14),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionClearOnFinish(),
			)
			res, err := ingest.Backfill(context.Background(), ws.store, ws.uploads, llm, namespace)
			_ = bar.Finish()
			for _, w := range res.Warnings {
				warn("%v", w)
			}
			if err != nil {
				return err
			}

			for _, e := range res.Added {
				fmt.Printf("  + %s (%d chunks, %s)\n", e.Filename, e.Chunks, e.Type)
			}
			fmt.Printf("%d added, %d already logged\n", len(res.Added), res.Skipped)
			return nil
		},
	}

	cmd.Flags().StringVarP(&namespace, "namespace", "n", "", "namespace to scan (default: default)")
	cmd.Flags().BoolVar(&excerptOnly, "excerpt-only", false, "use stored excerpts instead of model summaries")

	return cmd
}

func printUpload(out io.Writer, e ingest.UploadMetadata) {
	fmt.Fprintf(out, "[%s] %s\n", e.Timestamp.Local().Format("2006-01-02 15:04"), e.Filename)
	fmt.Fprintf(out, "  type: %s | chunks: %d | storage: %v | uploader: %s\n", e.Type, e.Chunks, e.Storage, e.Uploader)
	fmt.Fprintf(out, "  %s\n\n", preview(e.Summary, 160))
}
