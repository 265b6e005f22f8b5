package memory

import (
	"context"
	"errors"
	"strings"

	"github.com/memvra/dtwin/internal/adapter"
)

// DefaultTopK is the number of records pulled per namespace.
const DefaultTopK = 4

// Retriever turns a query into a context block from one namespace.
type Retriever struct {
	embedder adapter.Embedder
	index    Index
	ranker   *Ranker
	topK     int
}

// NewRetriever creates a Retriever. topK <= 0 selects DefaultTopK; ranker may be nil.
func NewRetriever(embedder adapter.Embedder, index Index, ranker *Ranker, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{embedder: embedder, index: index, ranker: ranker, topK: topK}
}

// Search embeds the query and returns the matching records of namespace.
func (r *Retriever) Search(ctx context.Context, query, namespace string, topK int) ([]Match, error) {
	if topK <= 0 {
		topK = r.topK
	}
	vecs, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, &RetrievalError{Namespace: namespace, Err: err}
	}
	if len(vecs) == 0 {
		return nil, &RetrievalError{Namespace: namespace, Err: errors.New("embedder returned no vector")}
	}

	matches, err := r.index.Query(ctx, namespace, vecs[0], topK)
	if err != nil {
		return nil, &RetrievalError{Namespace: namespace, Err: err}
	}
	return r.ranker.Filter(matches), nil
}

// Retrieve returns the contents of the top matches joined by a blank line,
// in the store's rank order. On failure it returns "" and a *RetrievalError.
func (r *Retriever) Retrieve(ctx context.Context, query, namespace string) (string, error) {
	matches, err := r.Search(ctx, query, namespace, r.topK)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, "\n\n"), nil
}
