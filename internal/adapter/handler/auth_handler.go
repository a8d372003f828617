package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/k1s0-platform/system-server-go-authcore/internal/adapter/middleware"
	"github.com/k1s0-platform/system-server-go-authcore/internal/adapter/presenter"
	"github.com/k1s0-platform/system-server-go-authcore/internal/domain/model"
	"github.com/k1s0-platform/system-server-go-authcore/internal/usecase"
)

// ValidateTokenExecutor は ValidateTokenUseCase の実行インターフェース。
type ValidateTokenExecutor interface {
	Execute(ctx context.Context, token string) (*model.Claims, error)
}

// CheckPermissionExecutor は CheckPermissionUseCase の実行インターフェース。
type CheckPermissionExecutor interface {
	Execute(ctx context.Context, input usecase.CheckPermissionInput) (*usecase.CheckPermissionOutput, error)
}

// RefreshSigningKeysExecutor は RefreshSigningKeysUseCase の実行インターフェース。
type RefreshSigningKeysExecutor interface {
	Execute(ctx context.Context) (*usecase.RefreshSigningKeysOutput, error)
}

// InvalidatePermissionCacheExecutor は InvalidatePermissionCacheUseCase の実行インターフェース。
type InvalidatePermissionCacheExecutor interface {
	Execute(ctx context.Context)
}

// AuthHandler は認証・認可関連の REST ハンドラー。
type AuthHandler struct {
	validateTokenUC   ValidateTokenExecutor
	checkPermissionUC CheckPermissionExecutor
	refreshKeysUC     RefreshSigningKeysExecutor
	invalidateCacheUC InvalidatePermissionCacheExecutor
}

// NewAuthHandler は新しい AuthHandler を作成する。
func NewAuthHandler(
	validateTokenUC ValidateTokenExecutor,
	checkPermissionUC CheckPermissionExecutor,
	refreshKeysUC RefreshSigningKeysExecutor,
	invalidateCacheUC InvalidatePermissionCacheExecutor,
) *AuthHandler {
	return &AuthHandler{
		validateTokenUC:   validateTokenUC,
		checkPermissionUC: checkPermissionUC,
		refreshKeysUC:     refreshKeysUC,
		invalidateCacheUC: invalidateCacheUC,
	}
}

// ValidateToken は POST /api/v1/auth/token/validate のハンドラー。
func (h *AuthHandler) ValidateToken(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		WriteError(c, http.StatusBadRequest, presenter.CodeValidationFailed, "token is required")
		return
	}

	claims, err := h.validateTokenUC.Execute(c.Request.Context(), req.Token)
	if err != nil {
		if _, ok := model.TokenErrorKindOf(err); !ok {
			WriteError(c, http.StatusServiceUnavailable, presenter.CodeInternalError, err.Error())
			return
		}
		WriteError(c, http.StatusUnauthorized, presenter.TokenErrorCode(err), err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid":  true,
		"claims": presenter.NewClaimsResponse(claims),
	})
}

// IntrospectToken は POST /api/v1/auth/token/introspect のハンドラー。
func (h *AuthHandler) IntrospectToken(c *gin.Context) {
	var req struct {
		Token         string `json:"token" form:"token" binding:"required"`
		TokenTypeHint string `json:"token_type_hint" form:"token_type_hint"`
	}
	if err := c.ShouldBind(&req); err != nil {
		WriteError(c, http.StatusBadRequest, presenter.CodeValidationFailed, "token is required")
		return
	}

	claims, err := h.validateTokenUC.Execute(c.Request.Context(), req.Token)
	if err != nil {
		// RFC 7662: 無効なトークンでも 200 を返す
		c.JSON(http.StatusOK, presenter.NewIntrospectResponse(nil))
		return
	}

	c.JSON(http.StatusOK, presenter.NewIntrospectResponse(claims))
}

// CheckPermission は POST /api/v1/auth/permissions/check のハンドラー。
func (h *AuthHandler) CheckPermission(c *gin.Context) {
	var input usecase.CheckPermissionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		WriteError(c, http.StatusBadRequest, presenter.CodeValidationFailed, "permission and resource are required")
		return
	}
	input.RequestID = middleware.GetRequestID(c)

	output, err := h.checkPermissionUC.Execute(c.Request.Context(), input)
	if err != nil {
		if errors.Is(err, model.ErrInvalidAction) || errors.Is(err, usecase.ErrResourceRequired) {
			WriteError(c, http.StatusBadRequest, presenter.CodeValidationFailed, err.Error())
			return
		}
		WriteError(c, http.StatusInternalServerError, presenter.CodeInternalError, err.Error())
		return
	}
	c.JSON(http.StatusOK, output)
}

// RefreshSigningKeys は POST /api/v1/auth/jwks/refresh のハンドラー。
func (h *AuthHandler) RefreshSigningKeys(c *gin.Context) {
	out, err := h.refreshKeysUC.Execute(c.Request.Context())
	if err != nil {
		WriteError(c, http.StatusServiceUnavailable, presenter.CodeKeysUnavailable, err.Error())
		return
	}
	c.JSON(http.StatusOK, presenter.NewKeySetResponse(out.Generation, out.KeyIDs, out.FetchedAt))
}

// InvalidatePermissionCache は POST /api/v1/auth/permissions/cache/invalidate のハンドラー。
func (h *AuthHandler) InvalidatePermissionCache(c *gin.Context) {
	h.invalidateCacheUC.Execute(c.Request.Context())
	c.Status(http.StatusNoContent)
}

// RegisterRoutes はルートを登録する。admin は管理系エンドポイントの前段に挟むミドルウェア。
func (h *AuthHandler) RegisterRoutes(r gin.IRouter, admin ...gin.HandlerFunc) {
	auth := r.Group("/api/v1/auth")
	{
		auth.POST("/token/validate", h.ValidateToken)
		auth.POST("/token/introspect", h.IntrospectToken)
		auth.POST("/permissions/check", h.CheckPermission)
	}

	// 管理系エンドポイント
	mgmt := auth.Group("", admin...)
	{
		mgmt.POST("/jwks/refresh", h.RefreshSigningKeys)
		mgmt.POST("/permissions/cache/invalidate", h.InvalidatePermissionCache)
	}
}
