package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"pixel-platformer/internal/service"
)

// HandleServiceError 把 service 层的业务错误映射到 HTTP 状态码和
// 对外的错误文案。未知错误一律 500 + 通用消息，细节只进日志。
func HandleServiceError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrLevelNotFound) {
		ErrorResponse(c, http.StatusNotFound, "Level not found")
	} else if errors.Is(err, service.ErrWorldNotFound) {
		ErrorResponse(c, http.StatusNotFound, "World not found")
	} else if errors.Is(err, service.ErrLevelAlreadyCompleted) {
		ErrorResponse(c, http.StatusBadRequest, "Level already completed")
	} else if errors.Is(err, service.ErrSequenceViolation) {
		ErrorResponse(c, http.StatusBadRequest, "Previous level must be completed first")
	} else if errors.Is(err, service.ErrInvalidEvent) {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request data")
	} else {
		logrus.WithError(err).Error("Unhandled internal server error")
		ErrorResponse(c, http.StatusInternalServerError, "An unexpected error occurred")
	}
}
