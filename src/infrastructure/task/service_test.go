package task_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"scientia/src/infrastructure/task"
	"scientia/src/notify"
)

type memoryRepository struct {
	mu    sync.Mutex
	tasks map[string]*task.Task
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{tasks: make(map[string]*task.Task)}
}

func (r *memoryRepository) Create(_ context.Context, t *task.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *t
	r.tasks[t.ID] = &clone
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, nil
	}
	clone := *t
	return &clone, nil
}

func (r *memoryRepository) UpdateStatus(_ context.Context, id string, status task.Status, progress int, taskErr *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return errors.New("task not found")
	}
	t.Status = status
	t.Progress = progress
	t.Error = taskErr
	return nil
}

type capturingPublisher struct {
	mu       sync.Mutex
	messages []*message.Message
}

func (p *capturingPublisher) Publish(_ string, msgs ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msgs...)
	return nil
}

func (p *capturingPublisher) Close() error { return nil }

type scriptedHandler struct {
	kind    task.Kind
	run     func(t *task.Task, report task.Reporter) (map[string]interface{}, error)
	invoked int
}

func (h *scriptedHandler) Kind() task.Kind { return h.kind }

func (h *scriptedHandler) Run(_ context.Context, t *task.Task, report task.Reporter) (map[string]interface{}, error) {
	h.invoked++
	if h.run == nil {
		return nil, nil
	}
	return h.run(t, report)
}

func drainEvents(t *testing.T, events <-chan notify.Event, n int) []notify.Event {
	t.Helper()
	var got []notify.Event
	timeout := time.After(2 * time.Second)
	for len(got) < n {
		select {
		case event := <-events:
			got = append(got, event)
		case <-timeout:
			t.Fatalf("timed out after %d of %d events", len(got), n)
		}
	}
	return got
}

func queueMessage(t *testing.T, id string, kind task.Kind) *message.Message {
	t.Helper()
	payload, err := json.Marshal(task.Message{TaskID: id, Kind: kind})
	if err != nil {
		t.Fatalf("marshal queue message: %v", err)
	}
	return message.NewMessage(watermill.NewUUID(), payload)
}

func TestEnqueuePersistsAndPublishes(t *testing.T) {
	repo := newMemoryRepository()
	publisher := &capturingPublisher{}
	bus := notify.NewGoChannelBus(watermill.NopLogger{})
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := bus.Subscribe(ctx, notify.GlobalChannel)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	svc := task.NewService(publisher, repo, bus, watermill.NopLogger{})

	docID := int64(42)
	created, err := svc.Enqueue(ctx, task.KindIndexing, &docID, nil, json.RawMessage(`{"document_id":42}`))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if created.ID == "" {
		t.Fatal("task has no id")
	}
	if created.Status != task.StatusQueued || created.Progress != 0 {
		t.Errorf("new task = %s/%d, want queued/0", created.Status, created.Progress)
	}

	stored, err := repo.Get(ctx, created.ID)
	if err != nil || stored == nil {
		t.Fatalf("task row not persisted: %v", err)
	}

	if len(publisher.messages) != 1 {
		t.Fatalf("published %d queue messages, want 1", len(publisher.messages))
	}
	var queued task.Message
	if err := json.Unmarshal(publisher.messages[0].Payload, &queued); err != nil {
		t.Fatalf("unmarshal queue message: %v", err)
	}
	if queued.TaskID != created.ID || queued.Kind != task.KindIndexing {
		t.Errorf("queue message = %+v", queued)
	}

	got := drainEvents(t, events, 1)
	if got[0].Status != "queued" || got[0].TaskID != created.ID {
		t.Errorf("queued event = %+v", got[0])
	}
	if got[0].DocumentID == nil || *got[0].DocumentID != docID {
		t.Errorf("queued event document id = %v", got[0].DocumentID)
	}
}

func TestProcessMessageLifecycle(t *testing.T) {
	repo := newMemoryRepository()
	bus := notify.NewGoChannelBus(watermill.NopLogger{})
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := bus.Subscribe(ctx, notify.GlobalChannel)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	handler := &scriptedHandler{
		kind: task.KindIndexing,
		run: func(_ *task.Task, report task.Reporter) (map[string]interface{}, error) {
			report("indexing 1/2", 65)
			report("indexing 2/2", 100)
			return map[string]interface{}{"fragments": 2, "skipped": 0}, nil
		},
	}
	svc := task.NewService(&capturingPublisher{}, repo, bus, watermill.NopLogger{}, handler)

	seed := &task.Task{ID: "t-1", Kind: task.KindIndexing, Status: task.StatusQueued}
	if err := repo.Create(ctx, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := svc.ProcessMessage(queueMessage(t, "t-1", task.KindIndexing)); err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}

	got := drainEvents(t, events, 4)
	wantStatuses := []string{"started", "processing", "processing", "completed"}
	for i, event := range got {
		if event.Status != wantStatuses[i] {
			t.Errorf("event %d status = %q, want %q", i, event.Status, wantStatuses[i])
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i].Progress < got[i-1].Progress {
			t.Errorf("progress went backwards: %d after %d", got[i].Progress, got[i-1].Progress)
		}
	}
	final := got[len(got)-1]
	if final.Progress != 100 {
		t.Errorf("completion progress = %d, want 100", final.Progress)
	}
	if final.Payload["fragments"] != float64(2) {
		t.Errorf("completion payload = %v", final.Payload)
	}

	stored, _ := repo.Get(ctx, "t-1")
	if stored.Status != task.StatusCompleted || stored.Progress != 100 {
		t.Errorf("stored task = %s/%d, want completed/100", stored.Status, stored.Progress)
	}
}

func TestProcessMessageFailureReRaises(t *testing.T) {
	repo := newMemoryRepository()
	bus := notify.NewGoChannelBus(watermill.NopLogger{})
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := bus.Subscribe(ctx, notify.GlobalChannel)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	boom := errors.New("embedding backend unreachable")
	handler := &scriptedHandler{
		kind: task.KindSummarization,
		run: func(_ *task.Task, report task.Reporter) (map[string]interface{}, error) {
			report("summarizing", 40)
			return nil, boom
		},
	}
	svc := task.NewService(&capturingPublisher{}, repo, bus, watermill.NopLogger{}, handler)

	seed := &task.Task{ID: "t-2", Kind: task.KindSummarization, Status: task.StatusQueued}
	if err := repo.Create(ctx, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := svc.ProcessMessage(queueMessage(t, "t-2", task.KindSummarization)); !errors.Is(err, boom) {
		t.Fatalf("ProcessMessage error = %v, want wrapped %v", err, boom)
	}

	got := drainEvents(t, events, 3)
	last := got[len(got)-1]
	if last.Status != "error" {
		t.Errorf("last event status = %q, want error", last.Status)
	}
	if last.Message != boom.Error() {
		t.Errorf("error event message = %q", last.Message)
	}

	stored, _ := repo.Get(ctx, "t-2")
	if stored.Status != task.StatusError {
		t.Errorf("stored status = %s, want error", stored.Status)
	}
	if stored.Error == nil || *stored.Error != boom.Error() {
		t.Errorf("stored error = %v", stored.Error)
	}
}

func TestProcessMessageSkipsFinishedTask(t *testing.T) {
	repo := newMemoryRepository()
	handler := &scriptedHandler{kind: task.KindIndexing}
	svc := task.NewService(&capturingPublisher{}, repo, nil, watermill.NopLogger{}, handler)

	ctx := context.Background()
	seed := &task.Task{ID: "t-3", Kind: task.KindIndexing, Status: task.StatusCompleted, Progress: 100}
	if err := repo.Create(ctx, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := svc.ProcessMessage(queueMessage(t, "t-3", task.KindIndexing)); err != nil {
		t.Fatalf("redelivery of a finished task must ack cleanly, got %v", err)
	}
	if handler.invoked != 0 {
		t.Errorf("handler ran %d times on a finished task", handler.invoked)
	}
}

func TestReporterClampsBackwardsProgress(t *testing.T) {
	repo := newMemoryRepository()
	bus := notify.NewGoChannelBus(watermill.NopLogger{})
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := bus.Subscribe(ctx, notify.GlobalChannel)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	handler := &scriptedHandler{
		kind: task.KindReport,
		run: func(_ *task.Task, report task.Reporter) (map[string]interface{}, error) {
			report("gathering snapshots", 60)
			report("late straggler", 35)
			return nil, nil
		},
	}
	svc := task.NewService(&capturingPublisher{}, repo, bus, watermill.NopLogger{}, handler)

	seed := &task.Task{ID: "t-4", Kind: task.KindReport, Status: task.StatusQueued}
	if err := repo.Create(ctx, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := svc.ProcessMessage(queueMessage(t, "t-4", task.KindReport)); err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}

	got := drainEvents(t, events, 4)
	if got[2].Progress != 60 {
		t.Errorf("backwards report surfaced as %d, want clamped to 60", got[2].Progress)
	}
}

func TestProcessMessageUnknownTask(t *testing.T) {
	svc := task.NewService(&capturingPublisher{}, newMemoryRepository(), nil, watermill.NopLogger{})
	if err := svc.ProcessMessage(queueMessage(t, "missing", task.KindIndexing)); err == nil {
		t.Fatal("ProcessMessage must fail for an unknown task id")
	}
}
