package index

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"scientia/src/core/chunk"
	"scientia/src/log"
	"scientia/src/storage/postgres/documentctrl"
)

var (
	// ErrMissingDocument means the referenced document does not exist.
	ErrMissingDocument = errors.New("document does not exist")
	// ErrMissingFile means the document exists but has no attached content.
	ErrMissingFile = errors.New("document has no attached file")
)

// Fragment is one contiguous slice of a document's text together with its
// embedding vector.
type Fragment struct {
	ID         int64
	DocumentID int64
	Index      int
	Text       string
	Embedding  []float32
	CreatedAt  time.Time
}

// ScoredFragment is a fragment ranked by distance to a query vector.
type ScoredFragment struct {
	Fragment
	Distance float64
}

// Extractor turns a document into raw text. Empty text is a valid result,
// not an error.
type Extractor interface {
	Extract(ctx context.Context, doc documentctrl.Document) (string, error)
}

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store persists fragments and answers nearest-neighbor queries scoped to a
// document. Replace must swap the document's fragment set atomically:
// concurrent readers see either the old complete set or the new one.
type Store interface {
	Replace(ctx context.Context, documentID int64, fragments []Fragment) error
	QueryNearest(ctx context.Context, documentID int64, vector []float32, k int) ([]ScoredFragment, error)
	Count(ctx context.Context, documentID int64) (int64, error)
}

// Documents looks up document metadata. A nil document with a nil error
// means not found.
type Documents interface {
	GetByID(ctx context.Context, id int64) (*documentctrl.Document, error)
}

// ProgressFunc receives progress updates during an indexing run. Percent is
// in [0,100] and non-decreasing.
type ProgressFunc func(message string, percent int)

// Result summarizes a completed indexing run. Skipped counts fragments whose
// embedding call failed; the run still completes with a partial set, but the
// shrinkage is reported rather than hidden.
type Result struct {
	Fragments int `json:"fragments"`
	Skipped   int `json:"skipped"`
}

// Indexer drives extract -> chunk -> embed -> store for one document at a
// time per document id.
type Indexer struct {
	docs      Documents
	extractor Extractor
	embedder  Embedder
	store     Store
	splitter  *chunk.Splitter
	locks     *keyedLocks
}

func NewIndexer(docs Documents, extractor Extractor, embedder Embedder, store Store, splitter *chunk.Splitter) *Indexer {
	if splitter == nil {
		splitter = chunk.NewSplitter()
	}
	return &Indexer{
		docs:      docs,
		extractor: extractor,
		embedder:  embedder,
		store:     store,
		splitter:  splitter,
		locks:     newKeyedLocks(),
	}
}

// Index runs one indexing pass for the document. Runs for the same document
// are serialized; runs for different documents proceed independently. The
// previous fragment set is replaced wholesale, never merged.
func (ix *Indexer) Index(ctx context.Context, documentID int64, report ProgressFunc) (Result, error) {
	if report == nil {
		report = func(string, int) {}
	}

	unlock := ix.locks.Lock(documentID)
	defer unlock()

	doc, err := ix.docs.GetByID(ctx, documentID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load document %d: %w", documentID, err)
	}
	if doc == nil {
		return Result{}, fmt.Errorf("document %d: %w", documentID, ErrMissingDocument)
	}
	if doc.ObjectURL == "" {
		return Result{}, fmt.Errorf("document %d: %w", documentID, ErrMissingFile)
	}

	report("reading document content", 10)
	text, err := ix.extractor.Extract(ctx, *doc)
	if err != nil {
		return Result{}, fmt.Errorf("failed to extract document %d: %w", documentID, err)
	}
	if strings.TrimSpace(text) == "" {
		// An empty or unreadable document is a valid terminal state.
		if err := ix.store.Replace(ctx, documentID, nil); err != nil {
			return Result{}, fmt.Errorf("failed to clear fragments for document %d: %w", documentID, err)
		}
		report("no extractable text, zero fragments", 100)
		return Result{}, nil
	}

	report("splitting into fragments", 20)
	pieces := ix.splitter.Split(text)
	total := len(pieces)
	if total == 0 {
		if err := ix.store.Replace(ctx, documentID, nil); err != nil {
			return Result{}, fmt.Errorf("failed to clear fragments for document %d: %w", documentID, err)
		}
		report("no fragments produced", 100)
		return Result{}, nil
	}

	report(fmt.Sprintf("embedding %d fragments", total), 30)

	fragments := make([]Fragment, 0, total)
	skipped := 0
	for i, piece := range pieces {
		vector, err := ix.embedder.Embed(ctx, piece)
		if err != nil {
			skipped++
			log.Error(err, "skipping fragment after embedding failure",
				"document_id", documentID, "piece", i)
		} else {
			fragments = append(fragments, Fragment{
				DocumentID: documentID,
				Index:      len(fragments),
				Text:       piece,
				Embedding:  vector,
			})
		}

		progress := 30 + (70*(i+1))/total
		if i%5 == 0 || i == total-1 {
			report(fmt.Sprintf("indexing %d/%d", i+1, total), progress)
		}
	}

	if err := ix.store.Replace(ctx, documentID, fragments); err != nil {
		return Result{}, fmt.Errorf("failed to store fragments for document %d: %w", documentID, err)
	}

	result := Result{Fragments: len(fragments), Skipped: skipped}
	report(fmt.Sprintf("indexed %d fragments (%d skipped)", result.Fragments, result.Skipped), 100)
	return result, nil
}
