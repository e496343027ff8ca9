package extract_test

import (
	"context"
	"errors"
	"testing"

	"scientia/src/extract"
	"scientia/src/infrastructure/integrations/unstructured"
	"scientia/src/storage/postgres/documentctrl"
)

type fakeObjects struct {
	data map[string][]byte
	err  error
}

func (f *fakeObjects) GetObject(_ context.Context, bucketName, objectName string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.data[bucketName+"/"+objectName], nil
}

type fakePartitioner struct {
	elements []unstructured.UnstructuredElement
	err      error
}

func (f *fakePartitioner) Partition(_ context.Context, _ string, _ []byte) ([]unstructured.UnstructuredElement, error) {
	return f.elements, f.err
}

func TestExtractPlainText(t *testing.T) {
	objects := &fakeObjects{data: map[string][]byte{
		"documents/notes.txt": []byte("line one\nline two"),
	}}
	e := extract.NewExtractor(objects, nil)

	doc := documentctrl.Document{ID: 1, Filename: "notes.txt", ObjectURL: "documents/notes.txt"}
	got, err := e.Extract(context.Background(), doc)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got != "line one\nline two" {
		t.Errorf("Extract = %q", got)
	}
}

func TestExtractUnsupportedFormatIsEmpty(t *testing.T) {
	objects := &fakeObjects{data: map[string][]byte{
		"documents/img.png": {0x89, 0x50},
	}}
	e := extract.NewExtractor(objects, nil)

	doc := documentctrl.Document{ID: 2, Filename: "img.png", ObjectURL: "documents/img.png"}
	got, err := e.Extract(context.Background(), doc)
	if err != nil {
		t.Fatalf("unsupported format must not error, got %v", err)
	}
	if got != "" {
		t.Errorf("Extract = %q, want empty", got)
	}
}

func TestExtractPDFJoinsElements(t *testing.T) {
	objects := &fakeObjects{data: map[string][]byte{
		"documents/manual.pdf": []byte("%PDF"),
	}}
	partitioner := &fakePartitioner{elements: []unstructured.UnstructuredElement{
		{Type: "Title", Text: "Heading"},
		{Type: "NarrativeText", Text: "   "},
		{Type: "NarrativeText", Text: "Body text."},
	}}
	e := extract.NewExtractor(objects, partitioner)

	doc := documentctrl.Document{ID: 3, Filename: "manual.pdf", ObjectURL: "documents/manual.pdf"}
	got, err := e.Extract(context.Background(), doc)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got != "Heading\n\nBody text." {
		t.Errorf("Extract = %q", got)
	}
}

func TestExtractStorageFailure(t *testing.T) {
	objects := &fakeObjects{err: errors.New("connection refused")}
	e := extract.NewExtractor(objects, nil)

	doc := documentctrl.Document{ID: 4, Filename: "notes.txt", ObjectURL: "documents/notes.txt"}
	if _, err := e.Extract(context.Background(), doc); err == nil {
		t.Fatal("storage failure must surface as an error")
	}
}

func TestExtractMalformedObjectURL(t *testing.T) {
	e := extract.NewExtractor(&fakeObjects{}, nil)
	doc := documentctrl.Document{ID: 5, Filename: "notes.txt", ObjectURL: "no-slash"}
	if _, err := e.Extract(context.Background(), doc); err == nil {
		t.Fatal("malformed object url must surface as an error")
	}
}
