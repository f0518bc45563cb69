// Package rag implements the semantic index: an OpenAI-embedded vector
// store over a separate SQLite database, queried by cosine similarity.
// It backs search_codebase, search_docs, and index_file.
//
// The vector database is kept apart from the main state store because
// the local-mode repository uses a full-replace save pattern that would
// destroy an embedded index on every write. Index updates are
// incremental, keyed by content checksum.
package rag

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// Embedder turns text into a vector. One implementation talks to
// OpenAI; tests substitute a deterministic fake.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// embeddingDims is the dimensionality of text-embedding-3-small.
const embeddingDims = 1536

// OpenAIEmbedder embeds text through the OpenAI embeddings API, paced
// by a client-side rate limiter so bulk indexing stays under the
// provider's request ceiling.
type OpenAIEmbedder struct {
	api     *openai.Client
	model   openai.EmbeddingModel
	limiter *rate.Limiter
}

// NewOpenAIEmbedder creates an embedder. requestsPerMinute <= 0 picks a
// conservative default.
func NewOpenAIEmbedder(apiKey string, requestsPerMinute int) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is not configured")
	}
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	return &OpenAIEmbedder{
		api:     openai.NewClient(apiKey),
		model:   openai.SmallEmbedding3,
		limiter: rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), 5),
	}, nil
}

// Embed implements Embedder.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := e.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response is empty")
	}
	vec := resp.Data[0].Embedding
	if len(vec) != embeddingDims {
		return nil, fmt.Errorf("embedding has %d dimensions, want %d", len(vec), embeddingDims)
	}
	return vec, nil
}
