// Package adapter provides a unified interface for LLM providers and embedders.
package adapter

import (
	"context"
	"fmt"
)

// Provider name constants.
const (
	ProviderClaude = "claude"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamChunk is a single token or error delivered during streaming.
// Model is set on the chunk that first learns which model served the request.
type StreamChunk struct {
	Text  string
	Model string
	Error error
}

// CompletionRequest holds the parameters for a completion call.
// Messages is sent in order; a leading system message is passed to the
// provider's system slot where the provider has one.
type CompletionRequest struct {
	Messages    []Message
	Model       string
	MaxTokens   int
	Temperature float64
	Stream      bool
}

// ModelInfo describes the capabilities of a model.
type ModelInfo struct {
	Name               string
	Provider           string
	MaxContextWindow   int
	SupportsStreaming  bool
	EmbeddingDimension int // 0 if not an embedding model
}

// LLMAdapter is the common interface all provider adapters implement.
type LLMAdapter interface {
	// Complete sends the conversation and streams the response.
	Complete(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error)

	// Embed generates embeddings for a batch of texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Info returns metadata about the adapter/model.
	Info() ModelInfo
}

// Options configures adapter construction.
type Options struct {
	APIKey     string // empty = read from env in the concrete adapter
	EmbedModel string // embedding model name
	Host       string // base URL for Ollama
	ChatModel  string // default Ollama completion model
}

// New constructs the LLMAdapter for the named provider.
func New(provider string, opts Options) (LLMAdapter, error) {
	switch provider {
	case ProviderClaude:
		return NewClaude(opts.APIKey), nil
	case ProviderOpenAI:
		return NewOpenAI(opts.APIKey, opts.EmbedModel), nil
	case ProviderOllama:
		host := opts.Host
		if host == "" {
			host = "http://localhost:11434"
		}
		model := opts.EmbedModel
		if model == "" {
			model = "nomic-embed-text"
		}
		return newOllama(host, model, opts.ChatModel), nil
	default:
		return nil, fmt.Errorf("adapter: unknown provider %q; valid providers: openai, claude, ollama", provider)
	}
}

// Collect drains a completion stream into a single string and returns the
// model reported by the provider, if any.
func Collect(stream <-chan StreamChunk) (text, model string, err error) {
	var buf []byte
	for chunk := range stream {
		if chunk.Error != nil {
			err = chunk.Error
			continue
		}
		if chunk.Model != "" {
			model = chunk.Model
		}
		buf = append(buf, chunk.Text...)
	}
	if err != nil {
		return "", model, err
	}
	return string(buf), model, nil
}

// splitSystem separates a leading system message from the rest.
func splitSystem(messages []Message) (string, []Message) {
	if len(messages) > 0 && messages[0].Role == RoleSystem {
		return messages[0].Content, messages[1:]
	}
	return "", messages
}
