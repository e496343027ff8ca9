package retrieve

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"scientia/src/core/index"
	"scientia/src/log"
)

var (
	// ErrNotIndexed means the document has no stored fragments yet. Callers
	// must be able to tell this apart from a failing backend.
	ErrNotIndexed = errors.New("document is not indexed yet")
	// ErrEmbeddingUnavailable means the query could not be embedded.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")
	// ErrGenerationFailed means the answer generator raised an error.
	ErrGenerationFailed = errors.New("answer generation failed")
)

const (
	DefaultTopK       = 5
	DefaultPreviewLen = 500
)

const groundedSystemPrompt = "You are a document assistant. Answer strictly and only from the supplied context. " +
	"If the context does not contain the answer, say that the document does not cover it. " +
	"Do not use outside knowledge."

// Generator produces text from a system instruction and a prompt. The
// implementation must be deterministic so repeated queries against unchanged
// fragments are reproducible.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// Source is the provenance preview of one fragment used for an answer.
type Source struct {
	ChunkIndex int     `json:"chunk_index"`
	Preview    string  `json:"preview"`
	Distance   float64 `json:"distance"`
}

// Answer is a generated answer plus the fragments it was grounded on.
type Answer struct {
	Text    string   `json:"answer"`
	Sources []Source `json:"sources"`
}

type Service struct {
	embedder   index.Embedder
	store      index.Store
	generator  Generator
	topK       int
	previewLen int
}

type Option func(*Service)

func WithTopK(k int) Option {
	return func(s *Service) {
		if k > 0 {
			s.topK = k
		}
	}
}

func WithPreviewLen(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.previewLen = n
		}
	}
}

func NewService(embedder index.Embedder, store index.Store, generator Generator, opts ...Option) *Service {
	s := &Service{
		embedder:   embedder,
		store:      store,
		generator:  generator,
		topK:       DefaultTopK,
		previewLen: DefaultPreviewLen,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Answer embeds the question, fetches the closest fragments of the document
// and generates a grounded answer from them.
func (s *Service) Answer(ctx context.Context, documentID int64, question string) (*Answer, error) {
	count, err := s.store.Count(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to check fragments for document %d: %w", documentID, err)
	}
	if count == 0 {
		return nil, fmt.Errorf("document %d: %w", documentID, ErrNotIndexed)
	}

	vector, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}

	fragments, err := s.store.QueryNearest(ctx, documentID, vector, s.topK)
	if err != nil {
		return nil, fmt.Errorf("failed to query fragments for document %d: %w", documentID, err)
	}

	var contextBuilder strings.Builder
	sources := make([]Source, 0, len(fragments))
	for i, frag := range fragments {
		if i > 0 {
			contextBuilder.WriteString("\n\n")
		}
		contextBuilder.WriteString(frag.Text)
		sources = append(sources, Source{
			ChunkIndex: frag.Index,
			Preview:    preview(frag.Text, s.previewLen),
			Distance:   frag.Distance,
		})
	}

	prompt := fmt.Sprintf("Context:\n%s\n\nQuestion: %s", contextBuilder.String(), question)
	log.Debug("generating grounded answer",
		"document_id", documentID, "fragments", len(fragments))

	text, err := s.generator.Generate(ctx, groundedSystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	return &Answer{Text: text, Sources: sources}, nil
}

func preview(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
