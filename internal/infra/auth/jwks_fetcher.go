package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/k1s0-platform/system-server-go-authcore/internal/domain/model"
)

// maxJWKSBodySize は JWKS レスポンスとして受け付ける最大バイト数。
const maxJWKSBodySize = 1 << 20

// JWKSFetcher は JWKS エンドポイントからの鍵取得を抽象化するインターフェース。
// テスト時にモックに差し替え可能。
type JWKSFetcher interface {
	FetchKeys(ctx context.Context, jwksURI string) (jwk.Set, error)
}

// HTTPJWKSFetcher は HTTP GET で JWKS を取得するデフォルト実装。
type HTTPJWKSFetcher struct {
	client *http.Client
}

// NewHTTPJWKSFetcher は HTTPJWKSFetcher を生成する。client が nil の場合は timeout 付きのクライアントを使う。
func NewHTTPJWKSFetcher(client *http.Client, timeout time.Duration) *HTTPJWKSFetcher {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPJWKSFetcher{client: client}
}

// FetchKeys は指定 URI から JWKS を取得する。
// 到達失敗・非 200 応答・サイズ超過は FETCH_FAILED、JSON 不正は PARSE_FAILED を返す。
func (f *HTTPJWKSFetcher) FetchKeys(ctx context.Context, jwksURI string) (jwk.Set, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwksURI, nil)
	if err != nil {
		return nil, &model.KeyLookupError{Kind: model.KeyLookupFetchFailed, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &model.KeyLookupError{Kind: model.KeyLookupFetchFailed, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &model.KeyLookupError{
			Kind: model.KeyLookupFetchFailed,
			Err:  fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBodySize+1))
	if err != nil {
		return nil, &model.KeyLookupError{Kind: model.KeyLookupFetchFailed, Err: err}
	}
	if len(body) > maxJWKSBodySize {
		return nil, &model.KeyLookupError{
			Kind: model.KeyLookupFetchFailed,
			Err:  fmt.Errorf("response body exceeds %d bytes", maxJWKSBodySize),
		}
	}

	set, err := jwk.Parse(body)
	if err != nil {
		return nil, &model.KeyLookupError{Kind: model.KeyLookupParseFailed, Err: err}
	}
	return set, nil
}

// signingKeysFromSet は jwk.Set から署名検証用の鍵を取り出す。
// kid のない鍵・use=enc の鍵・共通鍵は無視する。
func signingKeysFromSet(set jwk.Set) ([]*model.SigningKey, error) {
	if set == nil || set.Len() == 0 {
		return nil, fmt.Errorf("jwks contains no keys")
	}

	keys := make([]*model.SigningKey, 0, set.Len())
	for i := 0; i < set.Len(); i++ {
		key, ok := set.Key(i)
		if !ok {
			continue
		}
		if key.KeyID() == "" || key.KeyUsage() == "enc" {
			continue
		}
		if key.KeyType().String() == "oct" {
			continue
		}

		pub, err := jwk.PublicKeyOf(key)
		if err != nil {
			return nil, fmt.Errorf("kid %q: %w", key.KeyID(), err)
		}
		var raw interface{}
		if err := pub.Raw(&raw); err != nil {
			return nil, fmt.Errorf("kid %q: %w", key.KeyID(), err)
		}

		var alg string
		if a := key.Algorithm(); a != nil {
			alg = a.String()
		}
		keys = append(keys, &model.SigningKey{
			KID:       key.KeyID(),
			Algorithm: alg,
			KeyType:   key.KeyType().String(),
			PublicKey: raw,
		})
	}

	if len(keys) == 0 {
		return nil, fmt.Errorf("jwks contains no usable signing keys")
	}
	return keys, nil
}
