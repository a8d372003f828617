package repository

import (
	"context"

	"github.com/k1s0-platform/system-server-go-authcore/internal/domain/model"
)

// SigningKeyRepository は JWKS 由来の署名鍵を提供するインターフェース。
type SigningKeyRepository interface {
	// GetKey は kid に対応する署名鍵を返す。
	// キャッシュが古い、または kid が存在しない場合は単一フライトで再取得してから再検索する。
	GetKey(ctx context.Context, kid string) (*model.SigningKey, error)

	// ForceRefresh は最小再取得間隔を無視して JWKS を再取得する。
	// 失敗しても現在の KeySet は保持される。
	ForceRefresh(ctx context.Context) error

	// Current は現在公開中の KeySet を返す。未取得の場合は nil。
	Current() *model.KeySet

	// Healthy は署名鍵が 1 つ以上利用可能かを確認する。
	Healthy(ctx context.Context) error
}
