// Package chat sends a composed conversation to the configured LLM provider
// and reports which model answered.
package chat

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/memvra/dtwin/internal/adapter"
)

// Defaults for the model allowlist.
var DefaultModels = []string{"gpt-4", "gpt-4-0613", "gpt-3.5-turbo"}

const (
	DefaultModel         = "gpt-4"
	DefaultFallbackModel = "gpt-3.5-turbo"
	DefaultTemperature   = 0.3
)

// ErrNoSystemMessage is wrapped when a message list does not start with
// exactly one system message.
var ErrNoSystemMessage = errors.New("message list must start with exactly one system message")

// ClientError wraps a failed completion together with the model it targeted.
type ClientError struct {
	Model string
	Err   error
}

func (e *ClientError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("chat: %v", e.Err)
	}
	return fmt.Sprintf("chat: %s: %v", e.Model, e.Err)
}

func (e *ClientError) Unwrap() error { return e.Err }

// Options configures a Client.
type Options struct {
	Model         string   // used when the caller gives no hint
	Models        []string // allowed hints; empty allows any
	FallbackModel string   // used for hints outside Models
	Temperature   float64
	MaxTokens     int
}

// Client validates the conversation and resolves the model before calling
// the provider.
type Client struct {
	llm  adapter.LLMAdapter
	opts Options
}

// New creates a Client. A nil Models slice selects DefaultModels; pass an
// empty non-nil slice to allow any model the provider accepts.
func New(llm adapter.LLMAdapter, opts Options) *Client {
	if opts.Models == nil {
		opts.Models = DefaultModels
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.FallbackModel == "" {
		opts.FallbackModel = DefaultFallbackModel
	}
	if opts.Temperature == 0 {
		opts.Temperature = DefaultTemperature
	}
	return &Client{llm: llm, opts: opts}
}

// ResolveModel maps a hint onto the model that will be requested.
func (c *Client) ResolveModel(hint string) string {
	if hint == "" {
		hint = c.opts.Model
	}
	if len(c.opts.Models) == 0 || slices.Contains(c.opts.Models, hint) {
		return hint
	}
	return c.opts.FallbackModel
}

// Reply sends messages and returns the reply text and the model that served
// it: the provider-reported identifier when available, else the resolved one.
func (c *Client) Reply(ctx context.Context, messages []adapter.Message, hint string) (string, string, error) {
	model := c.ResolveModel(hint)
	if err := validate(messages); err != nil {
		return "", "", &ClientError{Model: model, Err: err}
	}

	stream, err := c.llm.Complete(ctx, adapter.CompletionRequest{
		Messages:    messages,
		Model:       model,
		MaxTokens:   c.opts.MaxTokens,
		Temperature: c.opts.Temperature,
	})
	if err != nil {
		return "", "", &ClientError{Model: model, Err: err}
	}

	text, reported, err := adapter.Collect(stream)
	if err != nil {
		return "", "", &ClientError{Model: model, Err: err}
	}
	if reported == "" {
		reported = model
	}
	return text, reported, nil
}

func validate(messages []adapter.Message) error {
	if len(messages) == 0 || messages[0].Role != adapter.RoleSystem {
		return ErrNoSystemMessage
	}
	for _, m := range messages[1:] {
		if m.Role == adapter.RoleSystem {
			return ErrNoSystemMessage
		}
	}
	return nil
}
