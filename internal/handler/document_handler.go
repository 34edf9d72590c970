package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"collab-service/internal/sink"
)

type DocumentHandler struct {
	snapshots sink.Sink
	logger    *zap.Logger
}

func NewDocumentHandler(snapshots sink.Sink, logger *zap.Logger) *DocumentHandler {
	return &DocumentHandler{snapshots: snapshots, logger: logger}
}

// GetDocumentSnapshot returns the last content snapshot stored for a
// document. Useful for clients that join after the last broadcast and
// want a starting point.
func (h *DocumentHandler) GetDocumentSnapshot(c *gin.Context) {
	documentID := c.Param("documentId")

	content, err := h.snapshots.Snapshot(c.Request.Context(), documentID)
	if errors.Is(err, sink.ErrNoSnapshot) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   gin.H{"code": "NOT_FOUND", "message": "No snapshot for document"},
		})
		return
	}
	if err != nil {
		h.logger.Error("Failed to read document snapshot",
			zap.String("documentId", documentID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   gin.H{"code": "INTERNAL_ERROR", "message": "Snapshot store unavailable"},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"documentId": documentID,
		"content":    content,
	})
}
