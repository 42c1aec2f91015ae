package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Config is loaded with the KNOWLEDGE_ prefix.
type Config struct {
	DSN             string `envconfig:"DSN"`
	Table           string `envconfig:"TABLE" default:"business_knowledge"`
	EmbeddingModel  string `envconfig:"EMBEDDING_MODEL" split_words:"true" default:"text-embedding-3-small"`
	EmbeddingAPIKey string `envconfig:"EMBEDDING_API_KEY" split_words:"true"`
	EmbeddingURL    string `envconfig:"EMBEDDING_URL" split_words:"true" default:"https://api.openai.com/v1"`
	Dimensions      int    `envconfig:"DIMENSIONS" default:"1536"`
}

func (c Config) Enabled() bool {
	return strings.TrimSpace(c.DSN) != "" && strings.TrimSpace(c.EmbeddingAPIKey) != ""
}

type Document struct {
	ID      string  `bun:"id" json:"id"`
	Title   string  `bun:"title" json:"title"`
	Content string  `bun:"content" json:"content"`
	Source  string  `bun:"source" json:"source,omitempty"`
	Score   float64 `bun:"score" json:"score"`
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Index returns the documents nearest to a query vector.
type Index interface {
	Nearest(ctx context.Context, vector []float32, k int) ([]Document, error)
}

const (
	defaultTopK = 4
	maxTopK     = 20
)

// Retriever answers knowledge queries by embedding the query and searching the index.
type Retriever struct {
	embedder Embedder
	index    Index
}

func NewRetriever(embedder Embedder, index Index) (*Retriever, error) {
	if embedder == nil || index == nil {
		return nil, errors.New("vectorstore: embedder and index are required")
	}
	return &Retriever{embedder: embedder, index: index}, nil
}

func (r *Retriever) Search(ctx context.Context, query string, topK int) ([]Document, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("vectorstore: empty query")
	}
	if topK <= 0 {
		topK = defaultTopK
	}
	if topK > maxTopK {
		topK = maxTopK
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: embed query: %w", err)
	}
	docs, err := r.index.Nearest(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: nearest: %w", err)
	}
	return docs, nil
}

// formatVector renders v as a pgvector literal, e.g. [0.1,0.2].
func formatVector(v []float32) string {
	var b strings.Builder
	b.Grow(len(v)*8 + 2)
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
