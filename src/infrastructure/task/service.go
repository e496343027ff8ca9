package task

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"scientia/src/notify"
)

// Topic is the queue topic worker processes consume tasks from.
const Topic = "tasks"

// Reporter lets a running handler publish intermediate progress. Percent
// values that would move progress backwards are clamped, so handlers can
// report out of order without confusing listeners.
type Reporter func(message string, percent int)

// Handler executes one kind of task. The returned payload is attached to the
// completion event and persisted on the task row.
type Handler interface {
	Kind() Kind
	Run(ctx context.Context, t *Task, report Reporter) (map[string]interface{}, error)
}

type Service struct {
	publisher message.Publisher
	repo      Repository
	bus       notify.Bus
	logger    watermill.LoggerAdapter
	handlers  map[Kind]Handler
}

// Message is the queue payload pointing at a persisted task row.
type Message struct {
	TaskID string `json:"task_id"`
	Kind   Kind   `json:"kind"`
}

func NewService(
	publisher message.Publisher,
	repo Repository,
	bus notify.Bus,
	logger watermill.LoggerAdapter,
	handlers ...Handler,
) *Service {
	byKind := make(map[Kind]Handler, len(handlers))
	for _, h := range handlers {
		byKind[h.Kind()] = h
	}
	return &Service{
		publisher: publisher,
		repo:      repo,
		bus:       bus,
		logger:    logger,
		handlers:  byKind,
	}
}

// Enqueue creates a new task and publishes it to the message queue
func (s *Service) Enqueue(ctx context.Context, kind Kind, documentID, ownerID *int64, payload json.RawMessage) (*Task, error) {
	t := &Task{
		ID:         uuid.New().String(),
		Kind:       kind,
		Status:     StatusQueued,
		Progress:   0,
		DocumentID: documentID,
		OwnerID:    ownerID,
		Payload:    payload,
	}

	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	s.publishEvent(t, StatusQueued, "queued", 0, nil)

	taskMsg := Message{TaskID: t.ID, Kind: t.Kind}
	msgPayload, err := json.Marshal(taskMsg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task message: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), msgPayload)
	if err := s.publisher.Publish(Topic, msg); err != nil {
		return nil, fmt.Errorf("failed to publish task message: %w", err)
	}

	return t, nil
}

// ProcessMessage processes a task message from the queue
func (s *Service) ProcessMessage(msg *message.Message) error {
	var taskMsg Message
	if err := json.Unmarshal(msg.Payload, &taskMsg); err != nil {
		return fmt.Errorf("failed to unmarshal task message: %w", err)
	}

	ctx := context.Background()

	t, err := s.repo.Get(ctx, taskMsg.TaskID)
	if err != nil {
		return fmt.Errorf("failed to get task: %w", err)
	}
	if t == nil {
		return fmt.Errorf("task not found: %s", taskMsg.TaskID)
	}

	// Redelivered message for a task that already finished: ack and move on.
	if t.Status.Terminal() {
		s.logger.Info("Skipping already finished task", watermill.LogFields{
			"task_id": t.ID,
			"status":  t.Status,
		})
		return nil
	}

	handler, ok := s.handlers[t.Kind]
	if !ok {
		return s.fail(ctx, t, fmt.Errorf("unknown task kind: %s", t.Kind))
	}

	if err := s.repo.UpdateStatus(ctx, t.ID, StatusStarted, 0, nil); err != nil {
		return fmt.Errorf("failed to update task status to started: %w", err)
	}
	s.publishEvent(t, StatusStarted, "started", 0, nil)

	var mu sync.Mutex
	highWater := 0
	report := func(progressMsg string, percent int) {
		mu.Lock()
		if percent < highWater {
			percent = highWater
		}
		highWater = percent
		mu.Unlock()

		if err := s.repo.UpdateStatus(ctx, t.ID, StatusProcessing, percent, nil); err != nil {
			s.logger.Error("Failed to persist task progress", err, watermill.LogFields{
				"task_id": t.ID,
			})
		}
		s.publishEvent(t, StatusProcessing, progressMsg, percent, nil)
	}

	payload, err := handler.Run(ctx, t, report)
	if err != nil {
		mu.Lock()
		t.Progress = highWater
		mu.Unlock()
		return s.fail(ctx, t, err)
	}

	if err := s.repo.UpdateStatus(ctx, t.ID, StatusCompleted, 100, nil); err != nil {
		return fmt.Errorf("failed to update task status to completed: %w", err)
	}
	s.publishEvent(t, StatusCompleted, "completed", 100, payload)

	return nil
}

// fail records the error on the task, emits an error event and re-raises so
// the queue layer sees the failure.
func (s *Service) fail(ctx context.Context, t *Task, taskErr error) error {
	errStr := taskErr.Error()
	if updateErr := s.repo.UpdateStatus(ctx, t.ID, StatusError, t.Progress, &errStr); updateErr != nil {
		s.logger.Error("Failed to update task status to error", updateErr, watermill.LogFields{
			"task_id": t.ID,
		})
	}
	s.publishEvent(t, StatusError, errStr, t.Progress, nil)
	return fmt.Errorf("failed to process task %s: %w", t.ID, taskErr)
}

func (s *Service) publishEvent(t *Task, status Status, message string, progress int, payload map[string]interface{}) {
	if s.bus == nil {
		return
	}
	event := notify.Event{
		TaskID:     t.ID,
		DocumentID: t.DocumentID,
		Kind:       string(t.Kind),
		Status:     string(status),
		Message:    message,
		Progress:   progress,
		Payload:    payload,
	}
	if err := s.bus.Publish(notify.GlobalChannel, event); err != nil {
		s.logger.Error("Failed to publish task event", err, watermill.LogFields{
			"task_id": t.ID,
			"status":  status,
		})
	}
}
