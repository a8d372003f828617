package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader はリクエスト ID を受け渡す HTTP ヘッダー名。
	RequestIDHeader = "X-Request-ID"
	// RequestIDKey は gin.Context にリクエスト ID を格納するキー。
	RequestIDKey = "request_id"
)

// RequestID はリクエストに一意な ID を付与するミドルウェア。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = "req_" + uuid.New().String()[:12]
		}
		c.Set(RequestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)
		c.Next()
	}
}

// GetRequestID は gin.Context からリクエスト ID を取得する。未設定の場合は空文字。
func GetRequestID(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}
