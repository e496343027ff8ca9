package index_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"scientia/src/core/chunk"
	"scientia/src/core/index"
	"scientia/src/storage/memory"
	"scientia/src/storage/postgres/documentctrl"
)

type fakeDocuments struct {
	docs map[int64]documentctrl.Document
}

func (f *fakeDocuments) GetByID(ctx context.Context, id int64) (*documentctrl.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, nil
	}
	return &doc, nil
}

type fakeExtractor struct {
	text string
}

func (f *fakeExtractor) Extract(ctx context.Context, doc documentctrl.Document) (string, error) {
	return f.text, nil
}

type fakeEmbedder struct {
	mu      sync.Mutex
	calls   int
	failOn  map[int]bool
	blockCh chan struct{}
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.blockCh != nil {
		<-f.blockCh
	}
	f.mu.Lock()
	call := f.calls
	f.calls++
	f.mu.Unlock()
	if f.failOn[call] {
		return nil, errors.New("embedding backend unavailable")
	}
	return []float32{float32(len(text)), float32(call)}, nil
}

func newTestDocs() *fakeDocuments {
	return &fakeDocuments{docs: map[int64]documentctrl.Document{
		1: {ID: 1, Filename: "doc.txt", ObjectURL: "documents/doc.txt"},
		2: {ID: 2, Filename: "empty.txt"},
	}}
}

func TestIndexIdempotentReindex(t *testing.T) {
	text := strings.Repeat("Alpha beta gamma delta. ", 30)
	store := memory.NewVectorStore()
	ix := index.NewIndexer(
		newTestDocs(),
		&fakeExtractor{text: text},
		&fakeEmbedder{},
		store,
		chunk.NewSplitter(chunk.WithSize(50), chunk.WithOverlap(0)),
	)
	ctx := context.Background()

	first, err := ix.Index(ctx, 1, nil)
	if err != nil {
		t.Fatalf("first Index: %v", err)
	}
	second, err := ix.Index(ctx, 1, nil)
	if err != nil {
		t.Fatalf("second Index: %v", err)
	}

	if first.Fragments != second.Fragments {
		t.Errorf("fragment count changed across runs: %d then %d", first.Fragments, second.Fragments)
	}

	count, err := store.Count(ctx, 1)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != int64(second.Fragments) {
		t.Errorf("store holds %d fragments, want %d (no duplicates)", count, second.Fragments)
	}

	stored, err := store.QueryNearest(ctx, 1, []float32{0, 0}, int(count))
	if err != nil {
		t.Fatalf("QueryNearest: %v", err)
	}
	seen := make(map[int]bool)
	for _, frag := range stored {
		if seen[frag.Index] {
			t.Errorf("duplicate chunk index %d", frag.Index)
		}
		seen[frag.Index] = true
		if frag.Index < 0 || frag.Index >= second.Fragments {
			t.Errorf("chunk index %d outside [0,%d)", frag.Index, second.Fragments)
		}
	}
}

func TestIndexEmptyDocumentCompletes(t *testing.T) {
	store := memory.NewVectorStore()
	docs := newTestDocs()
	docs.docs[2] = documentctrl.Document{ID: 2, Filename: "empty.txt", ObjectURL: "documents/empty.txt"}
	ix := index.NewIndexer(docs, &fakeExtractor{text: "   \n "}, &fakeEmbedder{}, store, nil)

	var lastPercent int
	result, err := ix.Index(context.Background(), 2, func(msg string, percent int) {
		lastPercent = percent
	})
	if err != nil {
		t.Fatalf("Index on empty document must succeed, got %v", err)
	}
	if result.Fragments != 0 {
		t.Errorf("Fragments = %d, want 0", result.Fragments)
	}
	if lastPercent != 100 {
		t.Errorf("final progress = %d, want 100", lastPercent)
	}
}

func TestIndexMissingDocumentAndFile(t *testing.T) {
	ix := index.NewIndexer(newTestDocs(), &fakeExtractor{text: "x"}, &fakeEmbedder{}, memory.NewVectorStore(), nil)
	ctx := context.Background()

	if _, err := ix.Index(ctx, 404, nil); !errors.Is(err, index.ErrMissingDocument) {
		t.Errorf("missing document: got %v, want ErrMissingDocument", err)
	}
	if _, err := ix.Index(ctx, 2, nil); !errors.Is(err, index.ErrMissingFile) {
		t.Errorf("missing file: got %v, want ErrMissingFile", err)
	}
}

func TestIndexSkipsFailedEmbeddingsAndCounts(t *testing.T) {
	text := "One. Two. Three. Four. Five. Six."
	store := memory.NewVectorStore()
	embedder := &fakeEmbedder{failOn: map[int]bool{1: true, 3: true}}
	ix := index.NewIndexer(
		newTestDocs(),
		&fakeExtractor{text: text},
		embedder,
		store,
		chunk.NewSplitter(chunk.WithSize(6), chunk.WithOverlap(0)),
	)

	result, err := ix.Index(context.Background(), 1, nil)
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if result.Skipped != 2 {
		t.Errorf("Skipped = %d, want 2", result.Skipped)
	}

	count, err := store.Count(context.Background(), 1)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if int(count) != result.Fragments {
		t.Errorf("stored %d fragments, result says %d", count, result.Fragments)
	}

	// Chunk indexes of the surviving fragments stay sequential from zero.
	stored, err := store.QueryNearest(context.Background(), 1, []float32{0, 0}, int(count))
	if err != nil {
		t.Fatalf("QueryNearest: %v", err)
	}
	seen := make(map[int]bool)
	for _, frag := range stored {
		seen[frag.Index] = true
	}
	for i := 0; i < result.Fragments; i++ {
		if !seen[i] {
			t.Errorf("chunk index %d missing from stored set", i)
		}
	}
}

func TestIndexProgressMonotonicAndFinal(t *testing.T) {
	text := strings.Repeat("Word word word word word. ", 40)
	ix := index.NewIndexer(
		newTestDocs(),
		&fakeExtractor{text: text},
		&fakeEmbedder{},
		memory.NewVectorStore(),
		chunk.NewSplitter(chunk.WithSize(30), chunk.WithOverlap(0)),
	)

	var percents []int
	_, err := ix.Index(context.Background(), 1, func(msg string, percent int) {
		percents = append(percents, percent)
	})
	if err != nil {
		t.Fatalf("Index: %v", err)
	}

	if len(percents) == 0 {
		t.Fatal("no progress reported")
	}
	for i := 1; i < len(percents); i++ {
		if percents[i] < percents[i-1] {
			t.Fatalf("progress decreased: %v", percents)
		}
	}
	if final := percents[len(percents)-1]; final != 100 {
		t.Errorf("final progress = %d, want 100", final)
	}
	for _, p := range percents {
		if p < 0 || p > 100 {
			t.Errorf("progress %d outside [0,100]", p)
		}
	}
}

func TestIndexSerializesPerDocument(t *testing.T) {
	text := "First sentence here. Second sentence here. Third sentence here."
	store := memory.NewVectorStore()
	ix := index.NewIndexer(
		newTestDocs(),
		&fakeExtractor{text: text},
		&fakeEmbedder{},
		store,
		chunk.NewSplitter(chunk.WithSize(25), chunk.WithOverlap(0)),
	)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = ix.Index(context.Background(), 1, nil)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}

	// After any interleaving the store must hold exactly one run's output.
	count, err := store.Count(context.Background(), 1)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	single, err := ix.Index(context.Background(), 1, nil)
	if err != nil {
		t.Fatalf("reference run: %v", err)
	}
	if int(count) != single.Fragments {
		t.Errorf("store holds %d fragments after concurrent runs, one run produces %d", count, single.Fragments)
	}
}

func TestIndexProgressFormula(t *testing.T) {
	// 6 pieces of text; reports fire on pieces 0 and 5 (every fifth plus the
	// last). Expect 30 + floor(70*(i+1)/total).
	text := "One. Two. Three. Four. Five. Six."
	var reported []int
	ix := index.NewIndexer(
		newTestDocs(),
		&fakeExtractor{text: text},
		&fakeEmbedder{},
		memory.NewVectorStore(),
		chunk.NewSplitter(chunk.WithSize(6), chunk.WithOverlap(0)),
	)

	_, err := ix.Index(context.Background(), 1, func(msg string, percent int) {
		if strings.HasPrefix(msg, "indexing ") {
			reported = append(reported, percent)
		}
	})
	if err != nil {
		t.Fatalf("Index: %v", err)
	}

	want := []int{30 + 70*1/6, 30 + 70*6/6}
	if len(reported) != len(want) {
		t.Fatalf("got %d embedding progress reports (%v), want %d", len(reported), reported, len(want))
	}
	for i := range want {
		if reported[i] != want[i] {
			t.Errorf("report %d = %d, want %d", i, reported[i], want[i])
		}
	}
}
