package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"scientia/src/infrastructure/task"
	"scientia/src/storage/postgres/documentctrl"
	"scientia/src/taskctrl"
)

type TaskHandler struct {
	taskService     *task.Service
	taskRepo        task.Repository
	documentService *documentctrl.DocumentService
}

func NewTaskHandler(taskService *task.Service, taskRepo task.Repository, documentService *documentctrl.DocumentService) *TaskHandler {
	return &TaskHandler{
		taskService:     taskService,
		taskRepo:        taskRepo,
		documentService: documentService,
	}
}

// EnqueueIndexing queues an indexing run for the document.
func (h *TaskHandler) EnqueueIndexing(c *gin.Context) {
	h.enqueueForDocument(c, task.KindIndexing)
}

// EnqueueSummary queues a summarization run for the document.
func (h *TaskHandler) EnqueueSummary(c *gin.Context) {
	h.enqueueForDocument(c, task.KindSummarization)
}

func (h *TaskHandler) enqueueForDocument(c *gin.Context, kind task.Kind) {
	documentID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid document id"})
		return
	}

	doc, err := h.documentService.GetByID(c.Request.Context(), documentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load document"})
		return
	}
	if doc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("Document %d not found", documentID)})
		return
	}

	payload, err := json.Marshal(taskctrl.IndexingPayload{DocumentID: documentID})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build task payload"})
		return
	}

	t, err := h.taskService.Enqueue(c.Request.Context(), kind, &documentID, nil, payload)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue task"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"task_id": t.ID,
		"kind":    t.Kind,
		"status":  t.Status,
	})
}

// EnqueueReport queues a status report over the latest snapshot documents.
func (h *TaskHandler) EnqueueReport(c *gin.Context) {
	var body taskctrl.ReportPayload
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build task payload"})
		return
	}

	t, err := h.taskService.Enqueue(c.Request.Context(), task.KindReport, nil, nil, payload)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue task"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"task_id": t.ID,
		"kind":    t.Kind,
		"status":  t.Status,
	})
}

// Get returns the persisted state of one task.
func (h *TaskHandler) Get(c *gin.Context) {
	t, err := h.taskRepo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load task"})
		return
	}
	if t == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}

	c.JSON(http.StatusOK, t)
}
