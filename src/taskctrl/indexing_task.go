package taskctrl

import (
	"context"
	"encoding/json"
	"fmt"

	"scientia/src/core/index"
	"scientia/src/infrastructure/task"
)

// IndexingPayload is the queue payload for an indexing run.
type IndexingPayload struct {
	DocumentID int64 `json:"document_id"`
}

// IndexingTask runs the extract/chunk/embed/store pipeline for one document.
type IndexingTask struct {
	indexer *index.Indexer
}

func NewIndexingTask(indexer *index.Indexer) *IndexingTask {
	return &IndexingTask{indexer: indexer}
}

func (t *IndexingTask) Kind() task.Kind {
	return task.KindIndexing
}

func (t *IndexingTask) Run(ctx context.Context, tk *task.Task, report task.Reporter) (map[string]interface{}, error) {
	documentID, err := documentIDFor(tk)
	if err != nil {
		return nil, err
	}

	result, err := t.indexer.Index(ctx, documentID, index.ProgressFunc(report))
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"fragments": result.Fragments,
		"skipped":   result.Skipped,
	}, nil
}

func documentIDFor(tk *task.Task) (int64, error) {
	if tk.DocumentID != nil {
		return *tk.DocumentID, nil
	}

	var payload IndexingPayload
	if err := json.Unmarshal(tk.Payload, &payload); err != nil {
		return 0, fmt.Errorf("failed to unmarshal task payload: %w", err)
	}
	if payload.DocumentID == 0 {
		return 0, fmt.Errorf("task %s has no document reference", tk.ID)
	}
	return payload.DocumentID, nil
}
