package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/memvra/dtwin/internal/ingest"
	"github.com/memvra/dtwin/internal/memory"
)

func newIngestCmd() *cobra.Command {
	var (
		opts    ingest.Options
		include []string
	)

	cmd := &cobra.Command{
		Use:   "ingest <path>...",
		Short: "Add documents to the twin's knowledge base",
		Long: `Load .pdf, .docx and .txt files, split them into overlapping chunks,
embed them and store them in the vector store. Directories are walked
recursively, honouring .dtwinignore.

Examples:
  dtwin ingest strategy.pdf board-pack.docx
  dtwin ingest ~/Documents/company --include "*.pdf"
  dtwin ingest notes/ --classify --uploader darren`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Namespace != "" && !memory.ValidNamespace(opts.Namespace) {
				return fmt.Errorf("unknown namespace %q (valid: %s, %s)", opts.Namespace, memory.NamespaceKnowledge, memory.NamespaceMemory)
			}

			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			defer ws.Close()

			if len(include) == 0 {
				include = ws.cfg.Uploads.Include
			}
			if !cmd.Flags().Changed("classify") {
				opts.Classify = ws.cfg.Uploads.Classify
			}

			files, err := ingest.Collect(args, ingest.Filter{Include: include})
			if err != nil {
				return err
			}
			if len(files) == 0 {
				fmt.Println("No supported documents found.")
				return nil
			}

			pipe, err := ws.pipeline()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			bar := progressbar.NewOptions(len(files),
				progressbar.OptionSetDescription("  Ingesting"),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
			results := pipe.IngestBatch(ctx, files, opts, func(done, _ int, path string) {
				if path != "" {
					bar.Describe("  Ingesting " + filepath.Base(path))
				}
				_ = bar.Set(done)
			})
			_ = bar.Finish()

			ok := printIngestResults(os.Stdout, results)
			if ok == 0 {
				return errors.New("no documents were ingested")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.Namespace, "namespace", "n", "", "target namespace: default or dt-memory (default: default)")
	cmd.Flags().StringVarP(&opts.Uploader, "uploader", "u", "", "uploader name recorded with each document (default: $USER)")
	cmd.Flags().StringVarP(&opts.Category, "category", "c", "", "document category (default: inferred from the filename)")
	cmd.Flags().StringSliceVar(&include, "include", nil, "glob patterns to include when walking directories, e.g. \"*.pdf\"")
	cmd.Flags().BoolVar(&opts.Classify, "classify", false, "ask the model to categorise each document")

	return cmd
}

// printIngestResults reports each file and returns how many succeeded.
func printIngestResults(out io.Writer, results []ingest.FileResult) int {
	ok, chunks := 0, 0
	for _, r := range results {
		if !r.OK() {
			fmt.Fprintf(out, "  ✗ %s: %v\n", filepath.Base(r.Path), r.Err)
			continue
		}
		ok++
		chunks += r.Metadata.Chunks
		fmt.Fprintf(out, "  ✓ %s: %d chunks → %s (%s)\n",
			r.Metadata.Filename, r.Metadata.Chunks, r.Metadata.Storage[0], r.Metadata.Type)
		for _, w := range r.Warnings {
			warn("%s: %v", r.Metadata.Filename, w)
		}
	}
	fmt.Fprintf(out, "%d of %d document(s) ingested, %d chunks stored\n", ok, len(results), chunks)
	return ok
}
