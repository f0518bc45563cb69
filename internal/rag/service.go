package rag

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
)

// KindCode and KindDocs partition the index: code search and docs
// search never see each other's chunks.
const (
	KindCode = "code"
	KindDocs = "docs"
)

const (
	chunkSize        = 1500 // characters per chunk, split on line boundaries
	defaultThreshold = 0.2
)

// Service ties the embedder and the vector store together.
type Service struct {
	store    *VectorStore
	embedder Embedder
	logger   *log.Logger
}

// NewService creates the semantic index service.
func NewService(store *VectorStore, embedder Embedder, logger *log.Logger) *Service {
	return &Service{store: store, embedder: embedder, logger: logger}
}

// Close closes the underlying vector store.
func (s *Service) Close() error { return s.store.Close() }

// IndexFile reads a file and indexes its content under the given kind.
func (s *Service) IndexFile(ctx context.Context, path, kind string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	return s.IndexText(ctx, path, kind, string(data))
}

// IndexText (re)indexes content under a path. Unchanged content is
// skipped by checksum; changed content replaces all previous chunks of
// the path. Returns the number of chunks written (0 when skipped).
func (s *Service) IndexText(ctx context.Context, path, kind, content string) (int, error) {
	if kind != KindCode && kind != KindDocs {
		return 0, fmt.Errorf("unknown index kind %q", kind)
	}
	sum := checksumString(content)
	if s.store.Checksum(path) == sum {
		return 0, nil
	}

	pieces := splitChunks(content, chunkSize)
	chunks := make([]Chunk, 0, len(pieces))
	for i, piece := range pieces {
		vec, err := s.embedder.Embed(ctx, piece)
		if err != nil {
			return 0, fmt.Errorf("embed %s chunk %d: %w", path, i, err)
		}
		chunks = append(chunks, Chunk{Path: path, Seq: i, Kind: kind, Content: piece, Vector: vec})
	}
	if err := s.store.Replace(path, sum, chunks); err != nil {
		return 0, err
	}
	s.logger.Printf("rag: indexed %s (%d chunks, %s)", path, len(chunks), kind)
	return len(chunks), nil
}

// Remove drops a path from the index.
func (s *Service) Remove(path string) error {
	return s.store.Remove(path)
}

// Search embeds the query and returns the best matches of a kind.
// Empty kind searches everything.
func (s *Service) Search(ctx context.Context, query, kind string, limit int) ([]Match, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return s.store.Search(vec, kind, limit, defaultThreshold)
}

// Embed exposes the raw embedding call for the HTTP API.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.embedder.Embed(ctx, text)
}

// Stats reports indexed paths and chunks.
func (s *Service) Stats() (paths, chunks int, err error) {
	return s.store.Stats()
}

// splitChunks splits text into pieces of at most size characters,
// breaking on line boundaries where possible.
func splitChunks(text string, size int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	var chunks []string
	var cur strings.Builder
	for _, line := range strings.SplitAfter(text, "\n") {
		if cur.Len() > 0 && cur.Len()+len(line) > size {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		// A single line longer than size becomes its own oversized chunk.
		cur.WriteString(line)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}
