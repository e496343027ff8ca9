package extract

import (
	"context"
	"fmt"
	"path"
	"strings"

	"scientia/src/infrastructure/integrations/unstructured"
	"scientia/src/log"
	"scientia/src/storage/minioctrl"
	"scientia/src/storage/postgres/documentctrl"
)

// Objects fetches stored document payloads.
type Objects interface {
	GetObject(ctx context.Context, bucketName, objectName string) ([]byte, error)
}

// Partitioner converts binary formats to text elements.
type Partitioner interface {
	Partition(ctx context.Context, filename string, content []byte) ([]unstructured.UnstructuredElement, error)
}

// Extractor pulls a document's payload from object storage and turns it into
// plain text. Formats it cannot read yield empty text, which downstream
// treats as a document with zero fragments.
type Extractor struct {
	objects     Objects
	partitioner Partitioner
}

func NewExtractor(objects Objects, partitioner Partitioner) *Extractor {
	return &Extractor{
		objects:     objects,
		partitioner: partitioner,
	}
}

func (e *Extractor) Extract(ctx context.Context, doc documentctrl.Document) (string, error) {
	bucketName, objectName := minioctrl.SplitURL(doc.ObjectURL)
	if bucketName == "" {
		return "", fmt.Errorf("malformed object reference %q", doc.ObjectURL)
	}

	data, err := e.objects.GetObject(ctx, bucketName, objectName)
	if err != nil {
		return "", fmt.Errorf("failed to fetch document payload: %w", err)
	}

	switch strings.ToLower(path.Ext(doc.Filename)) {
	case ".txt", ".md", ".json", ".csv", ".log":
		return string(data), nil
	case ".pdf":
		return e.partition(ctx, doc.Filename, data)
	default:
		log.Info("unsupported document format, treating as empty",
			"document_id", doc.ID, "filename", doc.Filename)
		return "", nil
	}
}

func (e *Extractor) partition(ctx context.Context, filename string, data []byte) (string, error) {
	if e.partitioner == nil {
		log.Info("no partitioner configured, treating binary document as empty", "filename", filename)
		return "", nil
	}

	elements, err := e.partitioner.Partition(ctx, filename, data)
	if err != nil {
		return "", fmt.Errorf("failed to partition document: %w", err)
	}

	var b strings.Builder
	for _, element := range elements {
		if strings.TrimSpace(element.Text) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(element.Text)
	}
	return b.String(), nil
}
