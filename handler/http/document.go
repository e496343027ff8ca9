package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"scientia/src/hook"
	"scientia/src/log"
	"scientia/src/storage/minioctrl"
	"scientia/src/storage/postgres/documentctrl"
)

var allowedExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".json": true,
	".csv":  true,
	".log":  true,
	".pdf":  true,
}

type DocumentHandler struct {
	minioService    *minioctrl.MinioService
	documentService *documentctrl.DocumentService
	observer        hook.DocumentObserver
}

func NewDocumentHandler(minioService *minioctrl.MinioService, documentService *documentctrl.DocumentService, observer hook.DocumentObserver) (*DocumentHandler, error) {
	// Ensure bucket exists
	err := minioService.EnsureBucketExists(context.Background(), minioctrl.DocumentsBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure bucket exists: %v", err)
	}

	return &DocumentHandler{
		minioService:    minioService,
		documentService: documentService,
		observer:        observer,
	}, nil
}

func (h *DocumentHandler) List(c *gin.Context) {
	limit := 10
	offset := 0

	if limitParam := c.Query("limit"); limitParam != "" {
		if _, err := fmt.Sscanf(limitParam, "%d", &limit); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit parameter"})
			return
		}
	}

	if offsetParam := c.Query("offset"); offsetParam != "" {
		if _, err := fmt.Sscanf(offsetParam, "%d", &offset); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid offset parameter"})
			return
		}
	}

	documents, err := h.documentService.List(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list documents"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"documents": documents,
		"pagination": gin.H{
			"limit":  limit,
			"offset": offset,
		},
	})
}

func (h *DocumentHandler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedExtensions[ext] {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Unsupported file type %s", ext)})
		return
	}

	objectName := fmt.Sprintf("%s%s", uuid.New().String(), ext)

	fileBytes, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read file"})
		return
	}

	err = h.minioService.PutObject(
		c.Request.Context(),
		minioctrl.DocumentsBucket,
		objectName,
		fileBytes,
		header.Header.Get("Content-Type"),
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upload file"})
		return
	}

	title := c.PostForm("title")
	if title == "" {
		title = header.Filename
	}
	source := c.PostForm("source")
	if source == "" {
		source = "upload"
	}

	doc, err := h.documentService.Create(
		c.Request.Context(),
		title,
		header.Filename,
		minioctrl.JoinURL(minioctrl.DocumentsBucket, objectName),
		source,
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record document"})
		return
	}

	if h.observer != nil {
		if err := h.observer.OnDocumentCreated(c.Request.Context(), doc); err != nil {
			// The document is stored; indexing can be retried explicitly.
			log.Error(err, "document created hook failed", "document_id", doc.ID)
		}
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":       doc.ID,
		"title":    doc.Title,
		"filename": doc.Filename,
	})
}
