package model

import (
	"errors"
	"strings"
)

// KeyLookupErrorKind は署名鍵の取得失敗の種別。
type KeyLookupErrorKind string

const (
	// KeyLookupUnknownKID は再取得後も kid が KeySet に存在しないことを表す。
	KeyLookupUnknownKID KeyLookupErrorKind = "UNKNOWN_KID"
	// KeyLookupFetchFailed は JWKS エンドポイントへの到達失敗・タイムアウトを表す。
	KeyLookupFetchFailed KeyLookupErrorKind = "FETCH_FAILED"
	// KeyLookupParseFailed は JWKS レスポンスが不正であることを表す。
	KeyLookupParseFailed KeyLookupErrorKind = "PARSE_FAILED"
)

// KeyLookupError は KeySet キャッシュが返すエラー。
// errors.Is は Kind が一致すれば true を返す。
type KeyLookupError struct {
	Kind KeyLookupErrorKind
	KID  string
	Err  error
}

func (e *KeyLookupError) Error() string {
	var b strings.Builder
	switch e.Kind {
	case KeyLookupUnknownKID:
		b.WriteString("unknown kid")
		if e.KID != "" {
			b.WriteString(" \"" + e.KID + "\"")
		}
	case KeyLookupFetchFailed:
		b.WriteString("jwks fetch failed")
	case KeyLookupParseFailed:
		b.WriteString("jwks parse failed")
	default:
		b.WriteString("key lookup failed")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *KeyLookupError) Unwrap() error { return e.Err }

func (e *KeyLookupError) Is(target error) bool {
	t, ok := target.(*KeyLookupError)
	return ok && t.Kind == e.Kind
}

var (
	ErrUnknownKID  = &KeyLookupError{Kind: KeyLookupUnknownKID}
	ErrFetchFailed = &KeyLookupError{Kind: KeyLookupFetchFailed}
	ErrParseFailed = &KeyLookupError{Kind: KeyLookupParseFailed}
)

// TokenErrorKind はトークン検証失敗の種別。いずれもそのトークンに対しては再試行不可。
type TokenErrorKind string

const (
	TokenMalformed            TokenErrorKind = "MALFORMED"
	TokenUnsupportedAlgorithm TokenErrorKind = "UNSUPPORTED_ALGORITHM"
	TokenUnknownKey           TokenErrorKind = "UNKNOWN_KEY"
	TokenInvalidSignature     TokenErrorKind = "INVALID_SIGNATURE"
	TokenExpired              TokenErrorKind = "EXPIRED"
	TokenInvalidIssuer        TokenErrorKind = "INVALID_ISSUER"
	TokenInvalidAudience      TokenErrorKind = "INVALID_AUDIENCE"
	TokenIssuedInFuture       TokenErrorKind = "ISSUED_IN_FUTURE"
	TokenNotYetValid          TokenErrorKind = "NOT_YET_VALID"
)

var tokenErrorMessages = map[TokenErrorKind]string{
	TokenMalformed:            "malformed token",
	TokenUnsupportedAlgorithm: "unsupported algorithm",
	TokenUnknownKey:           "unknown signing key",
	TokenInvalidSignature:     "invalid signature",
	TokenExpired:              "token expired",
	TokenInvalidIssuer:        "invalid issuer",
	TokenInvalidAudience:      "invalid audience",
	TokenIssuedInFuture:       "token issued in the future",
	TokenNotYetValid:          "token not yet valid",
}

// TokenError はトークン検証の失敗を表す。
type TokenError struct {
	Kind   TokenErrorKind
	Detail string
	Err    error
}

// NewTokenError は TokenError を生成する。
func NewTokenError(kind TokenErrorKind, detail string, err error) *TokenError {
	return &TokenError{Kind: kind, Detail: detail, Err: err}
}

func (e *TokenError) Error() string {
	msg, ok := tokenErrorMessages[e.Kind]
	if !ok {
		msg = "token verification failed"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TokenError) Unwrap() error { return e.Err }

func (e *TokenError) Is(target error) bool {
	t, ok := target.(*TokenError)
	return ok && t.Kind == e.Kind
}

var (
	ErrTokenMalformed            = &TokenError{Kind: TokenMalformed}
	ErrTokenUnsupportedAlgorithm = &TokenError{Kind: TokenUnsupportedAlgorithm}
	ErrTokenUnknownKey           = &TokenError{Kind: TokenUnknownKey}
	ErrTokenInvalidSignature     = &TokenError{Kind: TokenInvalidSignature}
	ErrTokenExpired              = &TokenError{Kind: TokenExpired}
	ErrTokenInvalidIssuer        = &TokenError{Kind: TokenInvalidIssuer}
	ErrTokenInvalidAudience      = &TokenError{Kind: TokenInvalidAudience}
	ErrTokenIssuedInFuture       = &TokenError{Kind: TokenIssuedInFuture}
	ErrTokenNotYetValid          = &TokenError{Kind: TokenNotYetValid}
)

// TokenErrorKindOf はエラーチェーンから TokenErrorKind を取り出す。
func TokenErrorKindOf(err error) (TokenErrorKind, bool) {
	var te *TokenError
	if errors.As(err, &te) {
		return te.Kind, true
	}
	return "", false
}
