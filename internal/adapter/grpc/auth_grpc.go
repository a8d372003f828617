package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

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

// AuthGRPCService は gRPC AuthService の実装。
type AuthGRPCService struct {
	validateTokenUC   ValidateTokenExecutor
	checkPermissionUC CheckPermissionExecutor
}

// NewAuthGRPCService は AuthGRPCService のコンストラクタ。
func NewAuthGRPCService(validateTokenUC ValidateTokenExecutor, checkPermissionUC CheckPermissionExecutor) *AuthGRPCService {
	return &AuthGRPCService{
		validateTokenUC:   validateTokenUC,
		checkPermissionUC: checkPermissionUC,
	}
}

// ValidateToken はトークンを検証する。
// トークン自体の不正は Valid=false で返し、キャンセル等はそのまま gRPC ステータスにする。
func (s *AuthGRPCService) ValidateToken(ctx context.Context, req *ValidateTokenRequest) (*ValidateTokenResponse, error) {
	claims, err := s.validateTokenUC.Execute(ctx, req.Token)
	if err != nil {
		if _, ok := model.TokenErrorKindOf(err); ok {
			return &ValidateTokenResponse{
				Valid:        false,
				ErrorCode:    presenter.TokenErrorCode(err),
				ErrorMessage: err.Error(),
			}, nil
		}
		return nil, status.FromContextError(err).Err()
	}

	return &ValidateTokenResponse{
		Valid:  true,
		Claims: toPbClaims(claims),
	}, nil
}

// CheckPermission はロールベースのパーミッション判定を行う。
func (s *AuthGRPCService) CheckPermission(ctx context.Context, req *CheckPermissionRequest) (*CheckPermissionResponse, error) {
	out, err := s.checkPermissionUC.Execute(ctx, usecase.CheckPermissionInput{
		Roles:      req.Roles,
		Permission: req.Permission,
		Resource:   req.Resource,
		Subject:    req.UserId,
	})
	if err != nil {
		if errors.Is(err, model.ErrInvalidAction) || errors.Is(err, usecase.ErrResourceRequired) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		return nil, status.Errorf(codes.Internal, "failed to check permission: %v", err)
	}

	return &CheckPermissionResponse{
		Allowed: out.Allowed,
		Reason:  out.Reason,
	}, nil
}

func toPbClaims(c *model.Claims) *PbTokenClaims {
	pb := &PbTokenClaims{
		Sub:               c.Subject,
		Iss:               c.Issuer,
		Aud:               c.Audience,
		Exp:               c.ExpiresAt.Unix(),
		Iat:               c.IssuedAt.Unix(),
		Jti:               c.TokenID,
		PreferredUsername: c.Username,
		Email:             c.Email,
		RealmAccess:       &PbRealmAccess{Roles: c.RealmRoles},
		TierAccess:        c.TierAccess,
	}
	if len(c.ResourceRoles) > 0 {
		pb.ResourceAccess = make(map[string]*PbClientRoles, len(c.ResourceRoles))
		for client, roles := range c.ResourceRoles {
			pb.ResourceAccess[client] = &PbClientRoles{Roles: roles}
		}
	}
	return pb
}
