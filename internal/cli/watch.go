package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/memvra/dtwin/internal/ingest"
)

func newWatchCmd() *cobra.Command {
	var (
		debounceMs int
		opts       ingest.Options
	)

	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Watch a drop folder and ingest new documents automatically",
		Long: `Start a long-running watcher on a folder (default: the workspace root).
New or modified .pdf, .docx and .txt files are ingested after a short
debounce, so copying several files at once is handled as one batch.

Press Ctrl-C to stop.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			defer ws.Close()

			dir := ws.root
			if len(args) == 1 {
				dir, err = filepath.Abs(args[0])
				if err != nil {
					return err
				}
			}
			if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
				return fmt.Errorf("%s is not a directory", dir)
			}
			if !cmd.Flags().Changed("classify") {
				opts.Classify = ws.cfg.Uploads.Classify
			}

			pipe, err := ws.pipeline()
			if err != nil {
				return err
			}

			debounce := time.Duration(debounceMs) * time.Millisecond
			w := ingest.NewWatcher(dir, debounce)
			w.OnError(func(err error) { fmt.Fprintf(os.Stderr, "  watch error: %v\n", err) })

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Printf("Watching %s for documents (debounce %s). Press Ctrl-C to stop.\n", dir, debounce)

			err = w.Run(ctx, func(ctx context.Context, paths []string) {
				fmt.Printf("[%s] %d file(s) changed\n", time.Now().Format("15:04:05"), len(paths))
				printIngestResults(os.Stdout, pipe.IngestBatch(ctx, paths, opts, nil))
			})
			if ctx.Err() != nil {
				fmt.Println("\nStopping watcher.")
				return nil
			}
			return err
		},
	}

	cmd.Flags().IntVar(&debounceMs, "debounce", int(ingest.DefaultDebounce/time.Millisecond), "debounce interval in milliseconds")
	cmd.Flags().StringVarP(&opts.Uploader, "uploader", "u", "", "uploader name recorded with each document")
	cmd.Flags().BoolVar(&opts.Classify, "classify", false, "ask the model to categorise each document")

	return cmd
}
