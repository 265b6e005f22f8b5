package adapter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
)

const (
	defaultOllamaChatModel = "llama3.2"
	defaultOllamaDimension = 768
)

// ollamaAdapter talks to a local Ollama daemon over its REST API.
type ollamaAdapter struct {
	host       string
	embedModel string
	chatModel  string
	client     *http.Client

	// dim is learned from the first embedding response.
	dim atomic.Int64
}

// NewOllama creates an Ollama adapter. Completions use llama3.2 unless
// the request names a model.
func NewOllama(host, embedModel string) LLMAdapter {
	return newOllama(host, embedModel, "")
}

func newOllama(host, embedModel, chatModel string) *ollamaAdapter {
	if chatModel == "" {
		chatModel = defaultOllamaChatModel
	}
	return &ollamaAdapter{
		host:       strings.TrimRight(host, "/"),
		embedModel: embedModel,
		chatModel:  chatModel,
		client:     &http.Client{},
	}
}

func (o *ollamaAdapter) Info() ModelInfo {
	dim := int(o.dim.Load())
	if dim == 0 {
		dim = defaultOllamaDimension
	}
	return ModelInfo{
		Name:               o.embedModel,
		Provider:           ProviderOllama,
		MaxContextWindow:   32768,
		SupportsStreaming:  true,
		EmbeddingDimension: dim,
	}
}

// post sends payload as JSON and returns the response when the daemon
// answers 200. Other statuses are turned into an error carrying Ollama's
// own message.
func (o *ollamaAdapter) post(ctx context.Context, op, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ollama %s: marshal: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.host+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama %s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama %s: %w", op, err)
	}
	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}
	defer resp.Body.Close()

	var apiErr struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
		return nil, fmt.Errorf("ollama %s: status %d: %s", op, resp.StatusCode, apiErr.Error)
	}
	return nil, fmt.Errorf("ollama %s: status %d", op, resp.StatusCode)
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (o *ollamaAdapter) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := o.post(ctx, "embed", "/api/embed", ollamaEmbedRequest{Model: o.embedModel, Input: texts})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("ollama embed: decode: %w", err)
	}
	if len(out.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: got %d vectors for %d inputs", len(out.Embeddings), len(texts))
	}
	if n := len(out.Embeddings[0]); n > 0 {
		o.dim.CompareAndSwap(0, int64(n))
	}
	return out.Embeddings, nil
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

// ollamaChatChunk is one line of the /api/chat answer. Both modes answer
// with newline-delimited JSON; a non-streaming answer is a single line.
type ollamaChatChunk struct {
	Model   string  `json:"model"`
	Message Message `json:"message"`
	Done    bool    `json:"done"`
	Error   string  `json:"error"`
}

func (o *ollamaAdapter) Complete(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	model := req.Model
	if model == "" {
		model = o.chatModel
	}

	options := map[string]any{"temperature": req.Temperature}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}

	resp, err := o.post(ctx, "chat", "/api/chat", ollamaChatRequest{
		Model:    model,
		Messages: req.Messages,
		Stream:   req.Stream,
		Options:  options,
	})
	if err != nil {
		return nil, err
	}

	ch := make(chan StreamChunk, 64)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var chunk ollamaChatChunk
			if err := json.Unmarshal(line, &chunk); err != nil {
				ch <- StreamChunk{Error: fmt.Errorf("ollama chat: decode: %w", err)}
				return
			}
			if chunk.Error != "" {
				ch <- StreamChunk{Error: fmt.Errorf("ollama chat: %s", chunk.Error)}
				return
			}
			if chunk.Message.Content != "" || chunk.Model != "" {
				ch <- StreamChunk{Text: chunk.Message.Content, Model: chunk.Model}
			}
			if chunk.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			ch <- StreamChunk{Error: fmt.Errorf("ollama chat: read stream: %w", err)}
		}
	}()

	return ch, nil
}
