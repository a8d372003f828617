package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/k1s0-platform/system-server-go-authcore/internal/adapter/presenter"
	"github.com/k1s0-platform/system-server-go-authcore/internal/domain/model"
	"github.com/k1s0-platform/system-server-go-authcore/internal/usecase"
)

// ClaimsKey は gin.Context に検証済み Claims を格納するキー。
const ClaimsKey = "auth_claims"

// TokenValidator は Bearer トークンを検証する。ValidateTokenUseCase が実装する。
type TokenValidator interface {
	Execute(ctx context.Context, token string) (*model.Claims, error)
}

// PermissionChecker はパーミッション判定を行う。CheckPermissionUseCase が実装する。
type PermissionChecker interface {
	Execute(ctx context.Context, input usecase.CheckPermissionInput) (*usecase.CheckPermissionOutput, error)
}

// Authenticate は Authorization ヘッダーの Bearer トークンを検証するミドルウェア。
// 検証成功時は Claims を gin.Context に格納する。
func Authenticate(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			abort(c, http.StatusUnauthorized, "SYS_AUTH_UNAUTHENTICATED", "authentication required")
			return
		}

		claims, err := validator.Execute(c.Request.Context(), token)
		if err != nil {
			abort(c, http.StatusUnauthorized, presenter.TokenErrorCode(err), err.Error())
			return
		}

		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// RequirePermission は指定リソース・アクションの権限を必須とするミドルウェア。
// Authenticate の後に使用すること。
func RequirePermission(checker PermissionChecker, resource string, action model.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := GetClaims(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "SYS_AUTH_UNAUTHENTICATED", "authentication required")
			return
		}

		out, err := checker.Execute(c.Request.Context(), usecase.CheckPermissionInput{
			Roles:      claims.RealmRoles,
			Permission: action.String(),
			Resource:   resource,
			Subject:    claims.Subject,
			RequestID:  GetRequestID(c),
		})
		if err != nil {
			abort(c, http.StatusInternalServerError, presenter.CodeInternalError, err.Error())
			return
		}
		if !out.Allowed {
			abort(c, http.StatusForbidden, "SYS_AUTH_FORBIDDEN", out.Reason)
			return
		}

		c.Next()
	}
}

// GetClaims は gin.Context から検証済み Claims を取得する。
func GetClaims(c *gin.Context) (*model.Claims, bool) {
	val, exists := c.Get(ClaimsKey)
	if !exists {
		return nil, false
	}
	claims, ok := val.(*model.Claims)
	return claims, ok
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, presenter.ErrorResponse{
		Error: presenter.ErrorBody{
			Code:      code,
			Message:   message,
			RequestID: GetRequestID(c),
		},
	})
}
