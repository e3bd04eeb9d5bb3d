package core

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/talhaa23/portfolio-agent/internal/store"
)

// NumRelevantChunks is the number of chunks retrieved as context.
const NumRelevantChunks = 3

type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type ChunkSearcher interface {
	SimilaritySearch(ctx context.Context, query []float32, k int) ([]store.ScoredChunk, error)
}

type RAGService struct {
	searcher ChunkSearcher
	embedder QueryEmbedder
	k        int
}

func NewRAGService(searcher ChunkSearcher, embedder QueryEmbedder) *RAGService {
	return &RAGService{searcher: searcher, embedder: embedder, k: NumRelevantChunks}
}

// GetRelevantContext returns the k most similar chunks joined by blank lines.
func (s *RAGService) GetRelevantContext(ctx context.Context, query string) (string, error) {
	queryEmbedding, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return "", fmt.Errorf("failed to get query embedding: %w", err)
	}

	hits, err := s.searcher.SimilaritySearch(ctx, queryEmbedding, s.k)
	if err != nil {
		return "", fmt.Errorf("failed to search chunks: %w", err)
	}

	parts := make([]string, 0, len(hits))
	for _, h := range hits {
		parts = append(parts, h.Content)
	}
	log.WithField("chunks", len(parts)).Debug("Retrieved relevant chunks for query")
	return strings.Join(parts, "\n\n"), nil
}

// ContextOrEmpty treats retrieval as optional: failures are logged and an
// empty context is returned.
func (s *RAGService) ContextOrEmpty(ctx context.Context, query string) string {
	if s == nil {
		return ""
	}
	out, err := s.GetRelevantContext(ctx, query)
	if err != nil {
		log.WithError(err).Warn("RAG search failed, continuing without context")
		return ""
	}
	return out
}
