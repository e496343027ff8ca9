package hook

import (
	"context"
	"encoding/json"
	"fmt"

	"scientia/src/infrastructure/task"
	"scientia/src/log"
	"scientia/src/storage/postgres/documentctrl"
	"scientia/src/taskctrl"
)

// DocumentObserver is notified after a document row has been created.
type DocumentObserver interface {
	OnDocumentCreated(ctx context.Context, doc *documentctrl.Document) error
}

// Enqueuer schedules background tasks.
type Enqueuer interface {
	Enqueue(ctx context.Context, kind task.Kind, documentID, ownerID *int64, payload json.RawMessage) (*task.Task, error)
}

// IndexTrigger kicks off an indexing task for every newly created document.
type IndexTrigger struct {
	tasks Enqueuer
}

func NewIndexTrigger(tasks Enqueuer) *IndexTrigger {
	return &IndexTrigger{tasks: tasks}
}

func (h *IndexTrigger) OnDocumentCreated(ctx context.Context, doc *documentctrl.Document) error {
	payload, err := json.Marshal(taskctrl.IndexingPayload{DocumentID: doc.ID})
	if err != nil {
		return fmt.Errorf("failed to marshal indexing payload: %w", err)
	}

	t, err := h.tasks.Enqueue(ctx, task.KindIndexing, &doc.ID, nil, payload)
	if err != nil {
		return fmt.Errorf("failed to enqueue indexing task: %w", err)
	}

	log.Info("queued indexing for new document", "document_id", doc.ID, "task_id", t.ID)
	return nil
}
