package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/memvra/dtwin/internal/export"
	"github.com/memvra/dtwin/internal/memory"
)

func newExportCmd() *cobra.Command {
	var (
		format    string
		namespace string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export memory and upload metadata as markdown or JSON",
		Long: `Render the twin's stored records and upload log.
Output is written to stdout; pipe it to a file.

Examples:
  dtwin export --format markdown > TWIN_MEMORY.md
  dtwin export --format json > backup.json
  dtwin export --format json --namespace dt-memory`,
		RunE: func(cmd *cobra.Command, args []string) error {
			exporter, ok := export.Get(format)
			if !ok {
				return fmt.Errorf("unknown format %q; valid formats: %s",
					format, strings.Join(export.ValidFormats(), ", "))
			}

			namespaces := []string{memory.NamespaceKnowledge, memory.NamespaceMemory}
			if namespace != "" {
				if !memory.ValidNamespace(namespace) {
					return fmt.Errorf("unknown namespace %q; valid: %s", namespace, strings.Join(namespaces, ", "))
				}
				namespaces = []string{namespace}
			}

			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			defer ws.Close()

			ctx := context.Background()
			data := export.ExportData{Workspace: ws.name()}
			for _, ns := range namespaces {
				st, err := ws.store.Stats(ctx, ns)
				if err != nil {
					return fmt.Errorf("stats %s: %w", ns, err)
				}
				recs, err := ws.store.ListRecords(ctx, ns)
				if err != nil {
					return fmt.Errorf("list %s: %w", ns, err)
				}
				data.Stats = append(data.Stats, st)
				data.Records = append(data.Records, recs...)
			}

			data.Uploads, err = ws.uploads.Load()
			if err != nil {
				warn("%v", err)
			}

			output, err := exporter.Export(data)
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}

			_, err = os.Stdout.WriteString(output)
			return err
		},
	}

	cmd.Flags().StringVar(&format, "format", "markdown", "output format: json, markdown")
	cmd.Flags().StringVarP(&namespace, "namespace", "n", "", "export only this namespace: default or dt-memory")

	return cmd
}
