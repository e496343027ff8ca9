package taskctrl

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"scientia/src/core/index"
	"scientia/src/core/summarize"
	"scientia/src/infrastructure/task"
	"scientia/src/log"
	"scientia/src/storage/minioctrl"
	"scientia/src/storage/postgres/artifactctrl"
	"scientia/src/storage/postgres/documentctrl"
)

// DefaultReportSources are the snapshot feeds a report covers when the task
// payload does not name any.
var DefaultReportSources = []string{"erp", "mes"}

// ReportPayload optionally narrows which snapshot sources a report covers.
type ReportPayload struct {
	Sources []string `json:"sources,omitempty"`
}

// SnapshotDocuments finds the newest document per snapshot source.
type SnapshotDocuments interface {
	ListBySources(ctx context.Context, sources []string) ([]documentctrl.Document, error)
}

// ReportTask builds a status report over the latest snapshot documents and
// stores it as an artifact with no document reference.
type ReportTask struct {
	docs      SnapshotDocuments
	extractor index.Extractor
	flow      *summarize.Flow
	objects   Objects
	artifacts Artifacts
}

func NewReportTask(docs SnapshotDocuments, extractor index.Extractor, flow *summarize.Flow, objects Objects, artifacts Artifacts) *ReportTask {
	return &ReportTask{
		docs:      docs,
		extractor: extractor,
		flow:      flow,
		objects:   objects,
		artifacts: artifacts,
	}
}

func (t *ReportTask) Kind() task.Kind {
	return task.KindReport
}

func (t *ReportTask) Run(ctx context.Context, tk *task.Task, report task.Reporter) (map[string]interface{}, error) {
	sources := DefaultReportSources
	if len(tk.Payload) > 0 {
		var payload ReportPayload
		if err := json.Unmarshal(tk.Payload, &payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal task payload: %w", err)
		}
		if len(payload.Sources) > 0 {
			sources = payload.Sources
		}
	}

	report("gathering snapshots", 10)
	docs, err := t.docs.ListBySources(ctx, sources)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshot documents: %w", err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("no snapshot documents for sources %v", sources)
	}

	sections := make([]summarize.Section, 0, len(docs))
	for _, doc := range docs {
		text, err := t.extractor.Extract(ctx, doc)
		if err != nil {
			log.Error(err, "skipping unreadable snapshot", "document_id", doc.ID, "source", doc.Source)
			continue
		}
		sections = append(sections, summarize.Section{
			Header: fmt.Sprintf("SNAPSHOT %s %s", doc.Source, doc.CreatedAt.Format("2006-01-02")),
			Body:   text,
		})
	}

	report("generating report", 50)
	reportText, err := t.flow.Report(ctx, sections)
	if err != nil {
		return nil, fmt.Errorf("failed to generate report: %w", err)
	}

	report("storing report", 85)
	title := "Status report " + time.Now().Format("2006-01-02")
	objectName := fmt.Sprintf("report-%s.txt", uuid.New().String())
	if err := t.objects.PutObject(ctx, minioctrl.ArtifactsBucket, objectName, []byte(reportText), "text/plain"); err != nil {
		return nil, fmt.Errorf("failed to store report object: %w", err)
	}

	artifact, err := t.artifacts.Create(ctx, &artifactctrl.Artifact{
		ArtifactType: artifactctrl.TypeReport,
		OwnerID:      tk.OwnerID,
		Title:        title,
		ObjectURL:    minioctrl.JoinURL(minioctrl.ArtifactsBucket, objectName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact: %w", err)
	}

	return map[string]interface{}{
		"artifact_id": artifact.ID,
		"title":       artifact.Title,
		"sections":    len(sections),
	}, nil
}
