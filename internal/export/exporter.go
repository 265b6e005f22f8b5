// Package export renders the twin's memory and upload log for use outside
// the app: backups, reviews, or feeding another tool.
package export

import (
	"fmt"
	"sort"
	"strings"

	"github.com/memvra/dtwin/internal/ingest"
	"github.com/memvra/dtwin/internal/memory"
)

// ExportData is passed to every Exporter.
type ExportData struct {
	Workspace string
	Stats     []memory.Stats
	Records   []memory.Record
	Uploads   []ingest.UploadMetadata
}

// Exporter renders ExportData to a string in a specific format.
type Exporter interface {
	Export(data ExportData) (string, error)
}

// registry maps format names to Exporter implementations.
var registry = map[string]Exporter{
	"markdown": &MarkdownExporter{},
	"json":     &JSONExporter{},
}

// Get returns the Exporter registered under name, and whether it was found.
func Get(name string) (Exporter, bool) {
	e, ok := registry[strings.ToLower(name)]
	return e, ok
}

// ValidFormats returns the supported export format names, sorted.
func ValidFormats() []string {
	formats := make([]string, 0, len(registry))
	for k := range registry {
		formats = append(formats, k)
	}
	sort.Strings(formats)
	return formats
}

// recordSection renders records of one namespace and kind as a markdown list.
func recordSection(heading, namespace string, kind memory.Kind, records []memory.Record) string {
	var b strings.Builder
	for _, r := range records {
		if r.Namespace != namespace || r.Kind != kind {
			continue
		}
		if b.Len() == 0 {
			fmt.Fprintf(&b, "## %s\n\n", heading)
		}
		content := strings.ReplaceAll(strings.TrimSpace(r.Content), "\n", " ")
		fmt.Fprintf(&b, "- %s _(%s, %s)_\n", content, r.Source, r.CreatedAt.Format("2006-01-02 15:04"))
	}
	if b.Len() == 0 {
		return ""
	}
	b.WriteString("\n")
	return b.String()
}
