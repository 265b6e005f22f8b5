package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/memvra/dtwin/internal/adapter"
)

// Categories assigned when the classifier has nothing better.
const (
	CategoryStrategy = "strategy"
	CategoryGeneral  = "general"
)

// Classification is the structured verdict on an uploaded document.
type Classification struct {
	Category  string `json:"category"`
	Namespace string `json:"namespace"`
	Summary   string `json:"summary"`
}

// InferCategory derives a category from the file name alone.
func InferCategory(filename string) string {
	if strings.Contains(strings.ToLower(filepath.Base(filename)), "strategy") {
		return CategoryStrategy
	}
	return CategoryGeneral
}

// Classify asks the LLM to categorise a document, pick its namespace and
// summarise it. The reply must contain a JSON object; anything else falls
// back to the file name heuristic and the knowledge namespace.
func Classify(ctx context.Context, llm adapter.LLMAdapter, filename, excerpt string) (Classification, error) {
	prompt := fmt.Sprintf(`Classify the document below for a digital twin's knowledge base.

Return ONLY a compact JSON object: {"category": "...", "namespace": "default|dt-memory", "summary": "..."}.
- category: one or two lowercase words (e.g. strategy, finance, operations, general)
- namespace: "dt-memory" if the document records the twin's own past conversations or personal notes, otherwise "default"
- summary: two or three sentences on what the document covers

No prose, no markdown. Only the JSON object.

--- FILE: %s ---
%s
--- END ---`, filename, trimResponse(excerpt, 3000))

	stream, err := llm.Complete(ctx, adapter.CompletionRequest{
		Messages: []adapter.Message{
			{Role: adapter.RoleSystem, Content: "You classify documents and answer with JSON only."},
			{Role: adapter.RoleUser, Content: prompt},
		},
		MaxTokens:   400,
		Temperature: 0.1,
	})
	if err != nil {
		return Classification{}, fmt.Errorf("classify: %w", err)
	}
	text, _, err := adapter.Collect(stream)
	if err != nil {
		return Classification{}, fmt.Errorf("classify: %w", err)
	}
	return parseClassification(text, filename), nil
}

// parseClassification is lenient: it takes the span from the first '{' to
// the last '}' so fenced or prose-wrapped replies still parse.
func parseClassification(raw, filename string) Classification {
	var c Classification
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start != -1 && end > start {
		if err := json.Unmarshal([]byte(raw[start:end+1]), &c); err != nil {
			c = Classification{}
		}
	}

	c.Category = strings.ToLower(strings.TrimSpace(c.Category))
	if c.Category == "" {
		c.Category = InferCategory(filename)
	}
	c.Namespace = strings.TrimSpace(c.Namespace)
	if !ValidNamespace(c.Namespace) {
		c.Namespace = NamespaceKnowledge
	}
	c.Summary = strings.TrimSpace(c.Summary)
	return c
}

// trimResponse caps s at approximately maxChars characters,
// trimming at a sentence boundary if possible.
func trimResponse(s string, maxChars int) string {
	r := []rune(s)
	if len(r) <= maxChars {
		return s
	}
	trimmed := string(r[:maxChars])
	if idx := strings.LastIndexAny(trimmed, ".!?\n"); idx > len(trimmed)/2 {
		trimmed = trimmed[:idx+1]
	}
	return trimmed + " [...]"
}
