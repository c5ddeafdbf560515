package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/basketvoice/internal/assistant"
	"github.com/yoockh/basketvoice/internal/models"
	"github.com/yoockh/basketvoice/internal/services"
	"github.com/yoockh/basketvoice/internal/utils"
)

type SessionManager interface {
	Open(ctx context.Context, o assistant.OpenOptions) (*assistant.Session, error)
	Get(sessionID string) (*assistant.Session, error)
	Close(ctx context.Context, sessionID string) error
}

type AssistantHandler struct {
	sessions   SessionManager
	audit      services.SessionService   // optional
	utterances services.UtteranceService // optional
}

func NewAssistantHandler(sessions SessionManager, audit services.SessionService, utterances services.UtteranceService) *AssistantHandler {
	return &AssistantHandler{sessions: sessions, audit: audit, utterances: utterances}
}

type OpenSessionRequest struct {
	MicGranted bool                 `json:"mic_granted"`
	Locale     string               `json:"locale"`
	Voices     []string             `json:"voices"`
	Screen     models.ScreenContext `json:"screen"`
}

func (h *AssistantHandler) Open(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	deviceID, ok := requireDeviceID(c)
	if !ok {
		return
	}

	var req OpenSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "AssistantHandler.Open", "invalid request body", err))
		return
	}

	s, err := h.sessions.Open(c.Request.Context(), assistant.OpenOptions{
		DeviceID:   deviceID,
		UserID:     userID,
		Locale:     req.Locale,
		MicGranted: req.MicGranted,
		Voices:     req.Voices,
		Screen:     req.Screen,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, s.Snapshot())
}

func (h *AssistantHandler) Get(c *gin.Context) {
	s, ok := h.ownedSession(c, "AssistantHandler.Get")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

func (h *AssistantHandler) Listen(c *gin.Context) {
	s, ok := h.ownedSession(c, "AssistantHandler.Listen")
	if !ok {
		return
	}
	if err := s.Listen(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, s.Snapshot())
}

func (h *AssistantHandler) Confirm(c *gin.Context) {
	s, ok := h.ownedSession(c, "AssistantHandler.Confirm")
	if !ok {
		return
	}
	if err := s.Confirm(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, s.Snapshot())
}

func (h *AssistantHandler) Cancel(c *gin.Context) {
	s, ok := h.ownedSession(c, "AssistantHandler.Cancel")
	if !ok {
		return
	}
	if err := s.CancelPending(); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

func (h *AssistantHandler) Reset(c *gin.Context) {
	s, ok := h.ownedSession(c, "AssistantHandler.Reset")
	if !ok {
		return
	}
	s.ResetConversation()
	c.JSON(http.StatusOK, s.Snapshot())
}

func (h *AssistantHandler) SetScreen(c *gin.Context) {
	s, ok := h.ownedSession(c, "AssistantHandler.SetScreen")
	if !ok {
		return
	}

	var screen models.ScreenContext
	if err := c.ShouldBindJSON(&screen); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "AssistantHandler.SetScreen", "invalid request body", err))
		return
	}
	s.SetScreen(screen)
	c.JSON(http.StatusOK, s.Snapshot())
}

func (h *AssistantHandler) Close(c *gin.Context) {
	s, ok := h.ownedSession(c, "AssistantHandler.Close")
	if !ok {
		return
	}
	if err := h.sessions.Close(c.Request.Context(), s.ID()); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// History lists past sessions of the caller's device from the audit store.
func (h *AssistantHandler) History(c *gin.Context) {
	const op = "AssistantHandler.History"
	if _, ok := requireUserID(c); !ok {
		return
	}
	deviceID, ok := requireDeviceID(c)
	if !ok {
		return
	}
	if h.audit == nil {
		writeError(c, utils.E(utils.CodeUnavailable, op, "session audit is disabled", nil))
		return
	}

	rows, err := h.audit.ListByDevice(c.Request.Context(), deviceID, queryLimit(c, 20, 100))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"device_id": deviceID, "sessions": rows})
}

func (h *AssistantHandler) Utterances(c *gin.Context) {
	const op = "AssistantHandler.Utterances"
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	if h.audit == nil || h.utterances == nil {
		writeError(c, utils.E(utils.CodeUnavailable, op, "utterance log is disabled", nil))
		return
	}

	sessionID := c.Param("session_id")
	sess, err := h.audit.Get(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	if sess.UserID != userID {
		writeError(c, utils.E(utils.CodeForbidden, op, "forbidden", nil))
		return
	}

	rows, err := h.utterances.ListBySession(c.Request.Context(), sessionID, queryLimit(c, 50, 500))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "utterances": rows})
}

func (h *AssistantHandler) ownedSession(c *gin.Context, op string) (*assistant.Session, bool) {
	userID, ok := requireUserID(c)
	if !ok {
		return nil, false
	}

	s, err := h.sessions.Get(c.Param("session_id"))
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	if s.UserID() != userID {
		writeError(c, utils.E(utils.CodeForbidden, op, "forbidden", nil))
		return nil, false
	}
	return s, true
}

func queryLimit(c *gin.Context, def, max int64) int64 {
	if s := c.Query("limit"); s != "" {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 && n <= max {
			return n
		}
	}
	return def
}
