package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/basketvoice/internal/services"
	"github.com/yoockh/basketvoice/internal/utils"
)

type RateLimitHandler struct {
	limiter services.RateLimiter
}

func NewRateLimitHandler(limiter services.RateLimiter) *RateLimitHandler {
	return &RateLimitHandler{limiter: limiter}
}

// Status shows the caller's device quota without reserving a request.
func (h *RateLimitHandler) Status(c *gin.Context) {
	if _, ok := requireUserID(c); !ok {
		return
	}
	deviceID, ok := requireDeviceID(c)
	if !ok {
		return
	}

	st, err := h.limiter.Status(c.Request.Context(), deviceID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// Reset clears a device's counters. Admin only.
func (h *RateLimitHandler) Reset(c *gin.Context) {
	deviceID := c.Param("device_id")
	if deviceID == "" {
		writeError(c, utils.E(utils.CodeInvalidArgument, "RateLimitHandler.Reset", "missing device_id", nil))
		return
	}
	if err := h.limiter.Reset(c.Request.Context(), deviceID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
