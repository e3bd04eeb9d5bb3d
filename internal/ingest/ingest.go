package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	log "github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/textsplitter"

	"github.com/talhaa23/portfolio-agent/internal/metrics"
	"github.com/talhaa23/portfolio-agent/internal/store"
)

const (
	ChunkSize    = 1000
	ChunkOverlap = 200

	// EmbedBatchSize is the most texts sent in one embedding request.
	EmbedBatchSize = 100

	DefaultCategory   = "Uncategorized"
	DefaultImportance = 5
)

var (
	ErrEmptyText     = errors.New("document has no text")
	ErrMissingSource = errors.New("document source is required")
)

type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

type ChunkWriter interface {
	InsertChunks(ctx context.Context, chunks []store.DocumentChunk) error
}

type Metadata struct {
	Source        string
	Category      string
	Tags          []string
	Importance    int
	ReferenceDate string
}

type Service struct {
	splitter textsplitter.TextSplitter
	embedder Embedder
	writer   ChunkWriter
	now      func() time.Time
}

func NewService(embedder Embedder, writer ChunkWriter) *Service {
	return &Service{
		splitter: NewSplitter(),
		embedder: embedder,
		writer:   writer,
		now:      time.Now,
	}
}

// NewSplitter returns the recursive character splitter used for documents.
// Whitespace at chunk boundaries is trimmed.
func NewSplitter() textsplitter.TextSplitter {
	return textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(ChunkSize),
		textsplitter.WithChunkOverlap(ChunkOverlap),
	)
}

// Ingest splits text, embeds every chunk and writes them with meta attached.
// It returns the number of chunks stored. Any embedding or write failure fails
// the whole call.
func (s *Service) Ingest(ctx context.Context, text string, meta Metadata) (int, error) {
	if strings.TrimSpace(text) == "" {
		return 0, ErrEmptyText
	}
	if strings.TrimSpace(meta.Source) == "" {
		return 0, ErrMissingSource
	}
	md := s.normalize(meta)

	pieces, err := s.splitter.SplitText(text)
	if err != nil {
		return 0, fmt.Errorf("failed to split %s: %w", md.Source, err)
	}
	if len(pieces) == 0 {
		return 0, ErrEmptyText
	}

	logger := log.WithFields(log.Fields{"source": md.Source, "chunks": len(pieces)})
	logger.Info("Embedding document chunks")

	chunks := make([]store.DocumentChunk, 0, len(pieces))
	for start := 0; start < len(pieces); start += EmbedBatchSize {
		end := min(start+EmbedBatchSize, len(pieces))
		batch := pieces[start:end]

		vectors, err := s.embedder.EmbedDocuments(ctx, batch)
		if err != nil {
			return 0, fmt.Errorf("failed to embed chunks %d-%d of %s: %w", start, end, md.Source, err)
		}
		if len(vectors) != len(batch) {
			return 0, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(batch))
		}
		for i, content := range batch {
			chunks = append(chunks, store.DocumentChunk{
				Content:   content,
				Metadata:  md,
				Embedding: pgvector.NewVector(vectors[i]),
			})
		}
	}

	if err := s.writer.InsertChunks(ctx, chunks); err != nil {
		return 0, err
	}

	metrics.IngestedChunks.WithLabelValues(md.Category).Add(float64(len(chunks)))
	logger.Info("Stored document chunks")
	return len(chunks), nil
}

func (s *Service) normalize(meta Metadata) store.ChunkMetadata {
	now := s.now().UTC().Format(time.RFC3339)

	md := store.ChunkMetadata{
		Source:        strings.TrimSpace(meta.Source),
		Category:      strings.TrimSpace(meta.Category),
		Tags:          meta.Tags,
		Importance:    meta.Importance,
		ReferenceDate: strings.TrimSpace(meta.ReferenceDate),
		UploadDate:    now,
	}
	if md.Category == "" {
		md.Category = DefaultCategory
	}
	if md.Tags == nil {
		md.Tags = []string{}
	}
	switch {
	case md.Importance == 0:
		md.Importance = DefaultImportance
	case md.Importance < 1:
		md.Importance = 1
	case md.Importance > 10:
		md.Importance = 10
	}
	if md.ReferenceDate == "" {
		md.ReferenceDate = now
	}
	return md
}

// ParseTags splits a comma separated tag list, dropping blanks.
func ParseTags(raw string) []string {
	tags := []string{}
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
