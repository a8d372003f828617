package model

import (
	"crypto"
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrDuplicateKID は同一世代内で kid が異なる鍵素材に割り当てられている場合のエラー。
var ErrDuplicateKID = errors.New("duplicate kid with different key material")

// SigningKey は署名検証に使う公開鍵。生成後は変更しない。
type SigningKey struct {
	KID string
	// Algorithm は JWKS の alg。空の場合は鍵と alg の紐付けを行わない。
	Algorithm string
	KeyType   string
	PublicKey crypto.PublicKey
}

// SameMaterial は鍵素材が同一かを判定する。
func (k *SigningKey) SameMaterial(other *SigningKey) bool {
	if k == nil || other == nil {
		return k == other
	}
	eq, ok := k.PublicKey.(interface{ Equal(crypto.PublicKey) bool })
	if !ok {
		return false
	}
	return eq.Equal(other.PublicKey)
}

// KeySet は世代番号付きの不変スナップショット。
// 新しい世代は常に丸ごと差し替えられ、既存の KeySet が書き換えられることはない。
type KeySet struct {
	keys       map[string]*SigningKey
	fetchedAt  time.Time
	generation uint64
}

// NewKeySet は KeySet を構築する。
// 同一 kid・同一鍵素材の重複は 1 つにまとめ、鍵素材が異なる場合は ErrDuplicateKID を返す。
func NewKeySet(keys []*SigningKey, generation uint64, fetchedAt time.Time) (*KeySet, error) {
	m := make(map[string]*SigningKey, len(keys))
	for _, k := range keys {
		if k == nil || k.KID == "" {
			continue
		}
		if existing, ok := m[k.KID]; ok {
			if !existing.SameMaterial(k) {
				return nil, fmt.Errorf("%w: %q", ErrDuplicateKID, k.KID)
			}
			continue
		}
		m[k.KID] = k
	}
	return &KeySet{keys: m, fetchedAt: fetchedAt, generation: generation}, nil
}

// Lookup は kid に対応する鍵を返す。
func (ks *KeySet) Lookup(kid string) (*SigningKey, bool) {
	if ks == nil {
		return nil, false
	}
	k, ok := ks.keys[kid]
	return k, ok
}

// Len は鍵の数を返す。
func (ks *KeySet) Len() int {
	if ks == nil {
		return 0
	}
	return len(ks.keys)
}

// KIDs は kid の一覧をソート済みで返す。
func (ks *KeySet) KIDs() []string {
	if ks == nil {
		return nil
	}
	kids := make([]string, 0, len(ks.keys))
	for kid := range ks.keys {
		kids = append(kids, kid)
	}
	sort.Strings(kids)
	return kids
}

// Generation は世代番号を返す。nil の場合は 0。
func (ks *KeySet) Generation() uint64 {
	if ks == nil {
		return 0
	}
	return ks.generation
}

// FetchedAt は KeySet を取得した時刻を返す。
func (ks *KeySet) FetchedAt() time.Time {
	if ks == nil {
		return time.Time{}
	}
	return ks.fetchedAt
}

// IsStale は now 時点で ttl を超えて経過しているかを返す。
func (ks *KeySet) IsStale(now time.Time, ttl time.Duration) bool {
	return now.Sub(ks.fetchedAt) >= ttl
}
