package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"scientia/src/core/retrieve"
	"scientia/src/log"
)

type AskHandler struct {
	retriever *retrieve.Service
}

func NewAskHandler(retriever *retrieve.Service) *AskHandler {
	return &AskHandler{retriever: retriever}
}

type askRequest struct {
	Question string `json:"question" binding:"required"`
}

// Ask answers a question grounded on one document's indexed fragments.
func (h *AskHandler) Ask(c *gin.Context) {
	documentID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid document id"})
		return
	}

	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Question is required"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Question is required"})
		return
	}

	answer, err := h.retriever.Answer(c.Request.Context(), documentID, req.Question)
	if err != nil {
		switch {
		case errors.Is(err, retrieve.ErrNotIndexed):
			c.JSON(http.StatusConflict, gin.H{"error": "Document is not indexed yet", "code": "not_indexed"})
		case errors.Is(err, retrieve.ErrEmbeddingUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Embedding service unavailable"})
		case errors.Is(err, retrieve.ErrGenerationFailed):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Answer generation failed"})
		default:
			log.Error(err, "failed to answer question", "document_id", documentID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to answer question"})
		}
		return
	}

	c.JSON(http.StatusOK, answer)
}
