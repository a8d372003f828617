package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/k1s0-platform/system-server-go-authcore/internal/adapter/middleware"
	"github.com/k1s0-platform/system-server-go-authcore/internal/adapter/presenter"
)

// WriteError はエラーレスポンスを書き込む。
func WriteError(c *gin.Context, status int, code, message string) {
	c.JSON(status, presenter.ErrorResponse{
		Error: presenter.ErrorBody{
			Code:      code,
			Message:   message,
			RequestID: middleware.GetRequestID(c),
		},
	})
}
