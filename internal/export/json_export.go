package export

import (
	"encoding/json"
	"time"

	"github.com/memvra/dtwin/internal/ingest"
	"github.com/memvra/dtwin/internal/memory"
)

// JSONExporter renders ExportData as structured JSON.
type JSONExporter struct{}

type jsonOutput struct {
	Workspace  string                   `json:"workspace,omitempty"`
	ExportedAt time.Time                `json:"exported_at"`
	Namespaces map[string]jsonNamespace `json:"namespaces"`
	Uploads    []ingest.UploadMetadata  `json:"uploads"`
}

type jsonNamespace struct {
	Records   int          `json:"records"`
	Sources   int          `json:"sources"`
	LastWrite *time.Time   `json:"last_write,omitempty"`
	Items     []jsonRecord `json:"items"`
}

type jsonRecord struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Content    string    `json:"content"`
	Source     string    `json:"source,omitempty"`
	SourceFile string    `json:"source_file,omitempty"`
	Uploader   string    `json:"uploader,omitempty"`
	Category   string    `json:"category,omitempty"`
	ChunkIndex int       `json:"chunk_index"`
	Page       int       `json:"page,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func (e *JSONExporter) Export(data ExportData) (string, error) {
	out := jsonOutput{
		Workspace:  data.Workspace,
		ExportedAt: time.Now().UTC(),
		Namespaces: groupRecordsByNamespace(data.Stats, data.Records),
		Uploads:    data.Uploads,
	}
	if out.Uploads == nil {
		out.Uploads = []ingest.UploadMetadata{}
	}

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b) + "\n", nil
}

func groupRecordsByNamespace(stats []memory.Stats, records []memory.Record) map[string]jsonNamespace {
	groups := make(map[string]jsonNamespace)
	for _, s := range stats {
		ns := jsonNamespace{Records: s.Records, Sources: s.Sources, Items: []jsonRecord{}}
		if !s.LastWrite.IsZero() {
			lw := s.LastWrite
			ns.LastWrite = &lw
		}
		groups[s.Namespace] = ns
	}
	for _, r := range records {
		ns := groups[r.Namespace]
		if ns.Items == nil {
			ns.Items = []jsonRecord{}
		}
		ns.Items = append(ns.Items, jsonRecord{
			ID:         r.ID,
			Kind:       string(r.Kind),
			Content:    r.Content,
			Source:     r.Source,
			SourceFile: r.Metadata.SourceFile,
			Uploader:   r.Metadata.Uploader,
			Category:   r.Metadata.Category,
			ChunkIndex: r.Metadata.ChunkIndex,
			Page:       r.Metadata.Page,
			CreatedAt:  r.CreatedAt,
		})
		groups[r.Namespace] = ns
	}
	return groups
}
