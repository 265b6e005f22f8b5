package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	anthropic "github.com/liushuangls/go-anthropic/v2"
	openai "github.com/sashabaranov/go-openai"
)

func TestNew_ValidProviders(t *testing.T) {
	tests := []struct {
		provider string
	}{
		{ProviderClaude},
		{ProviderOpenAI},
		{ProviderOllama},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			a, err := New(tt.provider, Options{APIKey: "test-key"})
			if err != nil {
				t.Fatalf("New(%q) error: %v", tt.provider, err)
			}
			if a == nil {
				t.Fatalf("New(%q) returned nil adapter", tt.provider)
			}
			info := a.Info()
			if info.Provider != tt.provider {
				t.Errorf("Info().Provider = %q, want %q", info.Provider, tt.provider)
			}
		})
	}
}

func TestNew_InvalidProvider(t *testing.T) {
	_, err := New("gemini", Options{APIKey: "key"})
	if err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestNew_OllamaDefaults(t *testing.T) {
	a, err := New(ProviderOllama, Options{})
	if err != nil {
		t.Fatalf("New(ollama) error: %v", err)
	}
	o, ok := a.(*ollamaAdapter)
	if !ok {
		t.Fatalf("expected *ollamaAdapter, got %T", a)
	}
	if o.host != "http://localhost:11434" {
		t.Errorf("host: got %q", o.host)
	}
	if o.embedModel != "nomic-embed-text" {
		t.Errorf("embed model: got %q", o.embedModel)
	}
}

func TestNewOpenAI_DefaultEmbedModel(t *testing.T) {
	a := NewOpenAI("key", "").(*openaiAdapter)
	if a.embedModel != "text-embedding-ada-002" {
		t.Errorf("embed model: got %q", a.embedModel)
	}
}

func TestSplitSystem(t *testing.T) {
	msgs := []Message{
		{Role: RoleSystem, Content: "persona"},
		{Role: RoleUser, Content: "hi"},
	}
	system, rest := splitSystem(msgs)
	if system != "persona" {
		t.Errorf("system: got %q", system)
	}
	if len(rest) != 1 || rest[0].Content != "hi" {
		t.Errorf("rest: got %+v", rest)
	}

	system, rest = splitSystem(msgs[1:])
	if system != "" || len(rest) != 1 {
		t.Errorf("no system: got %q, %d", system, len(rest))
	}
}

func TestClaudeMessages_Roles(t *testing.T) {
	got := claudeMessages([]Message{
		{Role: RoleUser, Content: "q1"},
		{Role: RoleAssistant, Content: "a1"},
		{Role: RoleUser, Content: "q2"},
	})
	want := []anthropic.ChatRole{anthropic.RoleUser, anthropic.RoleAssistant, anthropic.RoleUser}
	if len(got) != len(want) {
		t.Fatalf("len: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Role != want[i] {
			t.Errorf("message %d role: got %q, want %q", i, got[i].Role, want[i])
		}
	}
}

func TestCollect(t *testing.T) {
	ch := make(chan StreamChunk, 3)
	ch <- StreamChunk{Text: "Hello ", Model: "gpt-4-0613"}
	ch <- StreamChunk{Text: "World"}
	close(ch)

	text, model, err := Collect(ch)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if text != "Hello World" {
		t.Errorf("text: got %q", text)
	}
	if model != "gpt-4-0613" {
		t.Errorf("model: got %q", model)
	}
}

func TestCollect_Error(t *testing.T) {
	ch := make(chan StreamChunk, 2)
	ch <- StreamChunk{Text: "partial"}
	ch <- StreamChunk{Error: errors.New("boom")}
	close(ch)

	text, _, err := Collect(ch)
	if err == nil {
		t.Fatal("expected error")
	}
	if text != "" {
		t.Errorf("expected no text on error, got %q", text)
	}
}

type countingEmbedder struct {
	calls int
}

func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	c.calls++
	out := make([][]float32, len(texts))
	for i, s := range texts {
		out[i] = []float32{float32(len(s))}
	}
	return out, nil
}

func TestEmbedBatched(t *testing.T) {
	e := &countingEmbedder{}
	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}

	vecs, err := EmbedBatched(context.Background(), e, texts, 2)
	if err != nil {
		t.Fatalf("EmbedBatched: %v", err)
	}
	if e.calls != 3 {
		t.Errorf("calls: got %d, want 3", e.calls)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("vectors: got %d, want %d", len(vecs), len(texts))
	}
	for i, v := range vecs {
		if int(v[0]) != len(texts[i]) {
			t.Errorf("vector %d out of order: got %v", i, v)
		}
	}
}

func newTestOpenAI(t *testing.T, handler http.HandlerFunc) *openaiAdapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = server.URL + "/v1"
	return newOpenAIWithConfig(cfg, "")
}

func TestOpenAIComplete_NonStreaming(t *testing.T) {
	var gotRoles []string
	var gotModel string
	a := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotModel = req.Model
		for _, m := range req.Messages {
			gotRoles = append(gotRoles, m.Role)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4-0613",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Hello from DT"}, "finish_reason": "stop"}]
		}`)
	})

	stream, err := a.Complete(context.Background(), CompletionRequest{
		Model: "gpt-4",
		Messages: []Message{
			{Role: RoleSystem, Content: "persona"},
			{Role: RoleUser, Content: "hi"},
		},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	text, model, err := Collect(stream)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if text != "Hello from DT" {
		t.Errorf("text: got %q", text)
	}
	if model != "gpt-4-0613" {
		t.Errorf("model: got %q", model)
	}
	if gotModel != "gpt-4" {
		t.Errorf("request model: got %q", gotModel)
	}
	if strings.Join(gotRoles, ",") != "system,user" {
		t.Errorf("roles: got %v", gotRoles)
	}
}

func TestOpenAIComplete_APIError(t *testing.T) {
	a := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error": {"message": "invalid key", "type": "invalid_request_error"}}`)
	})

	stream, err := a.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleSystem, Content: "p"}, {Role: RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if _, _, err := Collect(stream); err == nil {
		t.Fatal("expected error for 401 response")
	}
}

func TestOpenAIEmbed(t *testing.T) {
	var gotModel string
	a := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotModel = req.Model
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"object": "list",
			"model": "text-embedding-ada-002",
			"data": [
				{"object": "embedding", "index": 0, "embedding": [0.1, 0.2]},
				{"object": "embedding", "index": 1, "embedding": [0.3, 0.4]}
			]
		}`)
	})

	vecs, err := a.Embed(context.Background(), []string{"one", "two"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 2 || vecs[1][0] != 0.3 {
		t.Errorf("vectors: got %v", vecs)
	}
	if gotModel != "text-embedding-ada-002" {
		t.Errorf("model: got %q", gotModel)
	}
}

func TestOllamaComplete(t *testing.T) {
	var got ollamaChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		fmt.Fprintln(w, `{"model":"llama3.2","message":{"role":"assistant","content":"Hel"},"done":false}`)
		fmt.Fprintln(w, `{"model":"llama3.2","message":{"role":"assistant","content":"lo"},"done":true}`)
	}))
	defer server.Close()

	a := NewOllama(server.URL, "nomic-embed-text")
	stream, err := a.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleSystem, Content: "p"}, {Role: RoleUser, Content: "hi"}},
		Stream:   true,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	text, model, err := Collect(stream)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if text != "Hello" {
		t.Errorf("text: got %q", text)
	}
	if model != "llama3.2" {
		t.Errorf("model: got %q", model)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != RoleSystem {
		t.Errorf("request messages: got %+v", got.Messages)
	}
}

func TestOllamaEmbed_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	a := NewOllama(server.URL, "nomic-embed-text")
	_, err := a.Embed(context.Background(), []string{"x"})
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error should mention status code: %v", err)
	}
}

func TestOllamaEmbed_LearnsDimension(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaEmbedRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		vecs := make([][]float32, len(req.Input))
		for i := range vecs {
			vecs[i] = []float32{0.1, 0.2, 0.3}
		}
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: vecs})
	}))
	defer server.Close()

	a := NewOllama(server.URL, "nomic-embed-text")
	if got := a.Info().EmbeddingDimension; got != 768 {
		t.Errorf("dimension before first call: got %d, want 768", got)
	}
	vecs, err := a.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vecs))
	}
	if got := a.Info().EmbeddingDimension; got != 3 {
		t.Errorf("dimension after first call: got %d, want 3", got)
	}
}

func TestOllamaComplete_ErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"model \"mistral\" not found, try pulling it first"}`)
	}))
	defer server.Close()

	a := NewOllama(server.URL, "nomic-embed-text")
	_, err := a.Complete(context.Background(), CompletionRequest{
		Model:    "mistral",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if !strings.Contains(err.Error(), "404") || !strings.Contains(err.Error(), "not found") {
		t.Errorf("error should carry status and daemon message: %v", err)
	}
}

func TestNew_OllamaChatModel(t *testing.T) {
	var got ollamaChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		fmt.Fprintln(w, `{"model":"qwen2.5","message":{"role":"assistant","content":"ok"},"done":true}`)
	}))
	defer server.Close()

	a, err := New(ProviderOllama, Options{Host: server.URL, ChatModel: "qwen2.5"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	stream, err := a.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if _, _, err := Collect(stream); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if got.Model != "qwen2.5" {
		t.Errorf("request model: got %q, want qwen2.5", got.Model)
	}
}
