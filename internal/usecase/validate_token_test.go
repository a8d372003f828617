package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/k1s0-platform/system-server-go-authcore/internal/domain/model"
	"github.com/k1s0-platform/system-server-go-authcore/internal/infra/telemetry"
)

// MockTokenVerifier は TokenVerifier のモック実装。
type MockTokenVerifier struct {
	mock.Mock
}

func (m *MockTokenVerifier) VerifyToken(ctx context.Context, tokenString string) (*model.Claims, error) {
	args := m.Called(ctx, tokenString)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Claims), args.Error(1)
}

func newTestMetrics() *telemetry.Metrics {
	return telemetry.NewMetrics("auth-core-test", prometheus.NewRegistry())
}

func TestValidateTokenUseCase_Execute_Success(t *testing.T) {
	mockVerifier := new(MockTokenVerifier)
	metrics := newTestMetrics()
	uc := NewValidateTokenUseCase(mockVerifier, nil, metrics)

	expectedClaims := &model.Claims{
		Subject:    "user-uuid-1234",
		Issuer:     "https://auth.k1s0.internal.example.com/realms/k1s0",
		Audience:   []string{"k1s0-api"},
		ExpiresAt:  time.Unix(1710000900, 0),
		IssuedAt:   time.Unix(1710000000, 0),
		TokenID:    "token-uuid-5678",
		Username:   "taro.yamada",
		Email:      "taro.yamada@example.com",
		RealmRoles: []string{"order_manager", "user"},
	}
	mockVerifier.On("VerifyToken", mock.Anything, "valid-token").Return(expectedClaims, nil)

	claims, err := uc.Execute(context.Background(), "  valid-token ")

	require.NoError(t, err)
	assert.Equal(t, "user-uuid-1234", claims.Subject)
	assert.Equal(t, "taro.yamada", claims.Username)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TokenValidationsTotal.WithLabelValues("valid")))
	mockVerifier.AssertExpectations(t)
}

func TestValidateTokenUseCase_Execute_EmptyToken(t *testing.T) {
	mockVerifier := new(MockTokenVerifier)
	metrics := newTestMetrics()
	uc := NewValidateTokenUseCase(mockVerifier, nil, metrics)

	claims, err := uc.Execute(context.Background(), "   ")

	assert.ErrorIs(t, err, model.ErrTokenMalformed)
	assert.Nil(t, claims)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TokenValidationsTotal.WithLabelValues("malformed")))
	mockVerifier.AssertNotCalled(t, "VerifyToken", mock.Anything, mock.Anything)
}

func TestValidateTokenUseCase_Execute_VerifierError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantResult string
	}{
		{
			name:       "期限切れ",
			err:        model.NewTokenError(model.TokenExpired, "", nil),
			wantResult: "expired",
		},
		{
			name:       "署名不正",
			err:        model.NewTokenError(model.TokenInvalidSignature, "", errors.New("verification error")),
			wantResult: "invalid_signature",
		},
		{
			name:       "issuer 不一致",
			err:        model.NewTokenError(model.TokenInvalidIssuer, "https://wrong-issuer.example.com", nil),
			wantResult: "invalid_issuer",
		},
		{
			name:       "コンテキストのキャンセル",
			err:        context.Canceled,
			wantResult: "error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockVerifier := new(MockTokenVerifier)
			metrics := newTestMetrics()
			uc := NewValidateTokenUseCase(mockVerifier, nil, metrics)

			mockVerifier.On("VerifyToken", mock.Anything, "bad-token").Return(nil, tt.err)

			claims, err := uc.Execute(context.Background(), "bad-token")

			assert.ErrorIs(t, err, tt.err)
			assert.Nil(t, claims)
			assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TokenValidationsTotal.WithLabelValues(tt.wantResult)))
			mockVerifier.AssertExpectations(t)
		})
	}
}
