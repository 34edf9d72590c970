package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"collab-service/internal/presence"
)

type PresenceHandler struct {
	tracker *presence.Tracker
	logger  *zap.Logger
}

func NewPresenceHandler(tracker *presence.Tracker, logger *zap.Logger) *PresenceHandler {
	return &PresenceHandler{tracker: tracker, logger: logger}
}

// GetDocumentPresence returns the current presence records for a
// document room.
func (h *PresenceHandler) GetDocumentPresence(c *gin.Context) {
	documentID := c.Param("documentId")
	if documentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   gin.H{"code": "BAD_REQUEST", "message": "Document ID required"},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"documentId": documentID,
		"users":      h.tracker.Snapshot(documentID),
	})
}

// GetUserStatus returns one user's status within a document.
func (h *PresenceHandler) GetUserStatus(c *gin.Context) {
	documentID := c.Param("documentId")
	userID := c.Param("userId")

	c.JSON(http.StatusOK, gin.H{
		"documentId": documentID,
		"userId":     userID,
		"status":     h.tracker.Status(documentID, userID),
	})
}
