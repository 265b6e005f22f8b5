package chunker

import (
	"fmt"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Tokenizer wraps tiktoken for token windows and excerpt truncation.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewTokenizer creates a Tokenizer using the cl100k_base encoding
// (used by gpt-4, gpt-3.5-turbo and text-embedding-ada-002).
func NewTokenizer() (*Tokenizer, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("tokenizer: get encoding: %w", err)
	}
	return &Tokenizer{enc: enc}, nil
}

// Encode returns the token ids of s.
func (t *Tokenizer) Encode(s string) []int {
	return t.enc.Encode(s, nil, nil)
}

// Decode turns token ids back into text.
func (t *Tokenizer) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}

// Count returns the number of tokens in s.
func (t *Tokenizer) Count(s string) int {
	return len(t.Encode(s))
}

// Truncate truncates s to at most maxTokens tokens, returning the result.
func (t *Tokenizer) Truncate(s string, maxTokens int) string {
	tokens := t.Encode(s)
	if len(tokens) <= maxTokens {
		return s
	}
	return t.Decode(tokens[:maxTokens])
}
