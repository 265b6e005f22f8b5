// Package twin runs a digital twin conversation: one turn at a time over an
// explicit session state, with retrieval from both namespaces, a persona
// prompt and write-back of replies into memory.
package twin

import (
	"fmt"
	"slices"

	"github.com/memvra/dtwin/internal/adapter"
	"github.com/memvra/dtwin/internal/ingest"
)

// LastUpload is the most recent document attached to a session.
type LastUpload struct {
	Metadata ingest.UploadMetadata `json:"metadata"`
	Text     string                `json:"text"`
}

// SessionState is everything a conversation carries between turns. It is
// passed in and returned by value; callers keep the returned copy. Model is
// the requested model hint; empty means the configured default.
type SessionState struct {
	Messages        []adapter.Message `json:"messages"`
	KrytenMode      bool              `json:"kryten_mode"`
	Model           string            `json:"model,omitempty"`
	LastUploaded    *LastUpload       `json:"last_uploaded,omitempty"`
	RecentSummaries []string          `json:"recent_summaries,omitempty"`
}

// DefaultRecentUploads is how many upload log summaries a new session
// starts with.
const DefaultRecentUploads = 3

// UploadLister returns the newest upload log entries, newest first.
type UploadLister interface {
	Recent(n int) ([]ingest.UploadMetadata, error)
}

// StartSession returns a fresh state seeded with the summaries of the n
// newest uploads. A nil lister yields an empty state.
func StartSession(uploads UploadLister, n int) (SessionState, error) {
	if uploads == nil || n <= 0 {
		return SessionState{}, nil
	}
	entries, err := uploads.Recent(n)
	if err != nil {
		return SessionState{}, fmt.Errorf("recent uploads: %w", err)
	}
	return SessionState{}.WithRecentUploads(entries), nil
}

// WithUpload returns a copy of s with meta as the most recent upload.
func (s SessionState) WithUpload(meta ingest.UploadMetadata, text string) SessionState {
	out := s.clone()
	out.LastUploaded = &LastUpload{Metadata: meta, Text: text}
	out.RecentSummaries = []string{uploadSummary(meta)}
	return out
}

// WithRecentUploads returns a copy of s whose summaries describe entries.
// The attached document, if any, is kept.
func (s SessionState) WithRecentUploads(entries []ingest.UploadMetadata) SessionState {
	out := s.clone()
	out.RecentSummaries = nil
	for _, e := range entries {
		out.RecentSummaries = append(out.RecentSummaries, uploadSummary(e))
	}
	return out
}

func uploadSummary(meta ingest.UploadMetadata) string {
	return fmt.Sprintf("Filename: %s\nSummary: %s", meta.Filename, meta.Summary)
}

// Reset clears the conversation. The mode flag and upload context stay.
func (s SessionState) Reset() SessionState {
	out := s.clone()
	out.Messages = nil
	return out
}

func (s SessionState) append(role, content string) SessionState {
	s.Messages = append(slices.Clip(s.Messages), adapter.Message{Role: role, Content: content})
	return s
}

func (s SessionState) clone() SessionState {
	out := s
	out.Messages = slices.Clone(s.Messages)
	out.RecentSummaries = slices.Clone(s.RecentSummaries)
	if s.LastUploaded != nil {
		lu := *s.LastUploaded
		out.LastUploaded = &lu
	}
	return out
}
