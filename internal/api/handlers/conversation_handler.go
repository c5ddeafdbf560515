package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/basketvoice/internal/services"
)

type ConversationHandler struct {
	svc services.ConversationService
}

func NewConversationHandler(svc services.ConversationService) *ConversationHandler {
	return &ConversationHandler{svc: svc}
}

// ListBySession returns the archived exchanges of one session, oldest first.
func (h *ConversationHandler) ListBySession(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	sessionID := c.Param("session_id")

	rows, err := h.svc.ListBySession(c.Request.Context(), userID, sessionID, int(queryLimit(c, 50, 500)))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id":    sessionID,
		"conversations": rows,
	})
}
