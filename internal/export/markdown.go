package export

import (
	"fmt"
	"strings"

	"github.com/memvra/dtwin/internal/memory"
)

// MarkdownExporter renders the twin's memory as a readable markdown report.
type MarkdownExporter struct{}

func (e *MarkdownExporter) Export(data ExportData) (string, error) {
	var b strings.Builder
	name := data.Workspace
	if name == "" {
		name = "Digital Twin"
	}
	fmt.Fprintf(&b, "# %s: Memory Export\n\n", name)

	if len(data.Stats) > 0 {
		b.WriteString("## Namespaces\n\n")
		b.WriteString("| Namespace | Records | Sources | Last write |\n")
		b.WriteString("|---|---|---|---|\n")
		for _, s := range data.Stats {
			last := "-"
			if !s.LastWrite.IsZero() {
				last = s.LastWrite.Format("2006-01-02 15:04")
			}
			fmt.Fprintf(&b, "| %s | %d | %d | %s |\n", s.Namespace, s.Records, s.Sources, last)
		}
		b.WriteString("\n")
	}

	if len(data.Uploads) > 0 {
		b.WriteString("## Uploaded Documents\n\n")
		for _, u := range data.Uploads {
			fmt.Fprintf(&b, "### %s\n\n", u.Filename)
			fmt.Fprintf(&b, "- Type: %s\n", u.Type)
			fmt.Fprintf(&b, "- Uploaded: %s", u.Timestamp.Format("2006-01-02 15:04"))
			if u.Uploader != "" {
				fmt.Fprintf(&b, " by %s", u.Uploader)
			}
			b.WriteString("\n")
			if len(u.Storage) > 0 {
				fmt.Fprintf(&b, "- Stored in: %s\n", strings.Join(u.Storage, ", "))
			}
			if s := strings.TrimSpace(u.Summary); s != "" {
				fmt.Fprintf(&b, "\n%s\n", s)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString(recordSection("Memory from Past Interactions", memory.NamespaceMemory, memory.KindChatSummary, data.Records))
	return b.String(), nil
}
