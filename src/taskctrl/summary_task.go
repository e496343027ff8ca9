package taskctrl

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"scientia/src/core/index"
	"scientia/src/core/summarize"
	"scientia/src/infrastructure/task"
	"scientia/src/storage/minioctrl"
	"scientia/src/storage/postgres/artifactctrl"
)

const summaryPreviewLen = 500

// Artifacts persists generated artifact rows.
type Artifacts interface {
	Create(ctx context.Context, artifact *artifactctrl.Artifact) (*artifactctrl.Artifact, error)
}

// Objects stores generated artifact payloads.
type Objects interface {
	PutObject(ctx context.Context, bucketName, objectName string, data []byte, contentType string) error
}

// SummaryTask extracts a document's text, condenses it through the summarize
// flow and stores the result as an artifact.
type SummaryTask struct {
	docs      index.Documents
	extractor index.Extractor
	flow      *summarize.Flow
	objects   Objects
	artifacts Artifacts
}

func NewSummaryTask(docs index.Documents, extractor index.Extractor, flow *summarize.Flow, objects Objects, artifacts Artifacts) *SummaryTask {
	return &SummaryTask{
		docs:      docs,
		extractor: extractor,
		flow:      flow,
		objects:   objects,
		artifacts: artifacts,
	}
}

func (t *SummaryTask) Kind() task.Kind {
	return task.KindSummarization
}

func (t *SummaryTask) Run(ctx context.Context, tk *task.Task, report task.Reporter) (map[string]interface{}, error) {
	documentID, err := documentIDFor(tk)
	if err != nil {
		return nil, err
	}

	doc, err := t.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load document %d: %w", documentID, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("document %d: %w", documentID, index.ErrMissingDocument)
	}
	if doc.ObjectURL == "" {
		return nil, fmt.Errorf("document %d: %w", documentID, index.ErrMissingFile)
	}

	report("reading document content", 10)
	text, err := t.extractor.Extract(ctx, *doc)
	if err != nil {
		return nil, fmt.Errorf("failed to extract document %d: %w", documentID, err)
	}

	report("summarizing", 40)
	summary, err := t.flow.Summarize(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize document %d: %w", documentID, err)
	}

	report("storing summary", 80)
	title := "Summary of " + doc.Title
	objectName := fmt.Sprintf("summary-%d-%s.txt", doc.ID, uuid.New().String())
	if err := t.objects.PutObject(ctx, minioctrl.ArtifactsBucket, objectName, []byte(summary), "text/plain"); err != nil {
		return nil, fmt.Errorf("failed to store summary object: %w", err)
	}

	artifact, err := t.artifacts.Create(ctx, &artifactctrl.Artifact{
		ArtifactType: artifactctrl.TypeSummary,
		DocumentID:   &doc.ID,
		OwnerID:      tk.OwnerID,
		Title:        title,
		ObjectURL:    minioctrl.JoinURL(minioctrl.ArtifactsBucket, objectName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact: %w", err)
	}

	return map[string]interface{}{
		"artifact_id":     artifact.ID,
		"title":           artifact.Title,
		"summary_preview": preview(summary),
	}, nil
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= summaryPreviewLen {
		return text
	}
	return string(runes[:summaryPreviewLen])
}
