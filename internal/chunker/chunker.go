// Package chunker splits text into overlapping fixed-size windows for embedding.
package chunker

import (
	"fmt"
	"iter"
	"strings"
)

// Mode selects the unit a window is measured in.
type Mode string

const (
	ModeChar  Mode = "char"
	ModeToken Mode = "token"
	ModeWord  Mode = "word"
)

// Defaults used by document uploads.
const (
	DefaultSize    = 1000
	DefaultOverlap = 150
)

// ParseMode returns the Mode named by s. An empty string means ModeChar.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeChar:
		return ModeChar, nil
	case ModeToken:
		return ModeToken, nil
	case ModeWord:
		return ModeWord, nil
	}
	return "", fmt.Errorf("chunker: unknown mode %q (valid: char, token, word)", s)
}

// Options configures a Chunker.
type Options struct {
	Mode    Mode
	Size    int
	Overlap int
}

// ConfigError reports chunk parameters that would never advance.
type ConfigError struct {
	Size    int
	Overlap int
}

func (e *ConfigError) Error() string {
	if e.Size <= 0 {
		return fmt.Sprintf("chunker: size must be positive, got %d", e.Size)
	}
	if e.Overlap < 0 {
		return fmt.Sprintf("chunker: overlap must not be negative, got %d", e.Overlap)
	}
	return fmt.Sprintf("chunker: overlap %d must be less than size %d", e.Overlap, e.Size)
}

// Validate checks 0 <= overlap < size.
func Validate(size, overlap int) error {
	if size <= 0 || overlap < 0 || overlap >= size {
		return &ConfigError{Size: size, Overlap: overlap}
	}
	return nil
}

// Window is one chunk of the input. Start and End are unit offsets
// (runes, tokens or words) into the original text, End exclusive.
type Window struct {
	Index int
	Start int
	End   int
	Text  string
}

// Chunker produces overlapping windows with step = size - overlap.
type Chunker struct {
	opts Options
	tok  *Tokenizer
}

// New validates opts and returns a Chunker. Token mode loads the
// cl100k_base encoding.
func New(opts Options) (*Chunker, error) {
	if opts.Mode == "" {
		opts.Mode = ModeChar
	}
	if err := Validate(opts.Size, opts.Overlap); err != nil {
		return nil, err
	}
	c := &Chunker{opts: opts}
	switch opts.Mode {
	case ModeChar, ModeWord:
	case ModeToken:
		tok, err := NewTokenizer()
		if err != nil {
			return nil, err
		}
		c.tok = tok
	default:
		return nil, fmt.Errorf("chunker: unknown mode %q", opts.Mode)
	}
	return c, nil
}

// Options returns the chunker's configuration.
func (c *Chunker) Options() Options { return c.opts }

// Windows returns a lazy sequence over the windows of text. Each range over
// the sequence starts again from the first window.
func (c *Chunker) Windows(text string) iter.Seq[Window] {
	return func(yield func(Window) bool) {
		u := c.unitsOf(text)
		n := u.len()
		step := c.opts.Size - c.opts.Overlap
		for i, start := 0, 0; start < n; i, start = i+1, start+step {
			end := min(start+c.opts.Size, n)
			if !yield(Window{Index: i, Start: start, End: end, Text: u.slice(start, end)}) {
				return
			}
			if end == n {
				return
			}
		}
	}
}

// Split collects every window's text.
func (c *Chunker) Split(text string) []string {
	var out []string
	for w := range c.Windows(text) {
		out = append(out, w.Text)
	}
	return out
}

// Count returns how many windows a text of n units yields.
func Count(n, size, overlap int) int {
	if n <= 0 {
		return 0
	}
	if n <= size {
		return 1
	}
	step := size - overlap
	return 1 + (n-size+step-1)/step
}

// units abstracts the three window measures.
type units interface {
	len() int
	slice(i, j int) string
}

func (c *Chunker) unitsOf(text string) units {
	switch c.opts.Mode {
	case ModeToken:
		return tokenUnits{ids: c.tok.Encode(text), tok: c.tok}
	case ModeWord:
		return wordUnits(strings.Fields(text))
	default:
		return runeUnits([]rune(text))
	}
}

type runeUnits []rune

func (r runeUnits) len() int              { return len(r) }
func (r runeUnits) slice(i, j int) string { return string(r[i:j]) }

type wordUnits []string

func (w wordUnits) len() int              { return len(w) }
func (w wordUnits) slice(i, j int) string { return strings.Join(w[i:j], " ") }

type tokenUnits struct {
	ids []int
	tok *Tokenizer
}

func (t tokenUnits) len() int              { return len(t.ids) }
func (t tokenUnits) slice(i, j int) string { return t.tok.Decode(t.ids[i:j]) }
