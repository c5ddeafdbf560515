package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/basketvoice/internal/utils"
)

type APIError struct {
	Code    utils.Code `json:"code"`
	Message string     `json:"message"`
}

func writeError(c *gin.Context, err error) {
	status := utils.HTTPStatus(err)

	var ae *utils.AppError
	if errors.As(err, &ae) {
		c.JSON(status, APIError{
			Code:    ae.Code,
			Message: ae.Message,
		})
		return
	}

	c.JSON(status, APIError{
		Code:    utils.CodeInternal,
		Message: http.StatusText(status),
	})
}

func requireUserID(c *gin.Context) (string, bool) {
	if s := c.GetString("user_id"); s != "" {
		return s, true
	}

	writeError(c, utils.E(utils.CodeUnauthorized, "Auth", "unauthorized", nil))
	return "", false
}

// requireDeviceID prefers the device bound into the token, then the
// X-Device-Id header.
func requireDeviceID(c *gin.Context) (string, bool) {
	if s := c.GetString("device_id"); s != "" {
		return s, true
	}
	if s := strings.TrimSpace(c.GetHeader("X-Device-Id")); s != "" {
		return s, true
	}

	writeError(c, utils.E(utils.CodeInvalidArgument, "Auth", "device id is required", nil))
	return "", false
}
