package usecase

import "errors"

var (
	// ErrResourceRequired はパーミッション確認でリソースが指定されていない場合のエラー。
	ErrResourceRequired = errors.New("resource is required")

	// ErrSigningKeysUnavailable は署名鍵の再取得に失敗した場合のエラー。
	ErrSigningKeysUnavailable = errors.New("signing keys unavailable")
)
