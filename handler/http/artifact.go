package http

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"scientia/src/storage/minioctrl"
	"scientia/src/storage/postgres/artifactctrl"
)

type ArtifactHandler struct {
	artifactService *artifactctrl.ArtifactService
	minioService    *minioctrl.MinioService
}

func NewArtifactHandler(artifactService *artifactctrl.ArtifactService, minioService *minioctrl.MinioService) *ArtifactHandler {
	return &ArtifactHandler{
		artifactService: artifactService,
		minioService:    minioService,
	}
}

func (h *ArtifactHandler) List(c *gin.Context) {
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

	artifacts, err := h.artifactService.List(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list artifacts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"artifacts": artifacts,
		"pagination": gin.H{
			"limit":  limit,
			"offset": offset,
		},
	})
}

// Download streams the stored artifact text.
func (h *ArtifactHandler) Download(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid artifact id"})
		return
	}

	artifact, err := h.artifactService.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load artifact"})
		return
	}
	if artifact == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Artifact not found"})
		return
	}

	bucketName, objectName := minioctrl.SplitURL(artifact.ObjectURL)
	if bucketName == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Artifact has no stored object"})
		return
	}

	data, err := h.minioService.GetObject(c.Request.Context(), bucketName, objectName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch artifact object"})
		return
	}

	c.Data(http.StatusOK, "text/plain; charset=utf-8", data)
}
