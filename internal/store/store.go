// Package store は小さな文字列状態（表示済みID集合・現在の作品ID）を保存するキーバリューストアを提供する。
package store

import (
	"context"
	"sync"
)

// KeyCurrentID は現在表示中の作品IDの保存キー。表示済みID集合のキーはseen.StoreKey。
const KeyCurrentID = "current_id"

// KV はキーバリューストアのインターフェース。
// LoadStringはキーが存在しない場合に ("", false, nil) を返す。
type KV interface {
	LoadString(ctx context.Context, key string) (string, bool, error)
	SaveString(ctx context.Context, key, value string) error
	Close() error
}

// MemoryStore はプロセス内でのみ保持するKV実装。永続化しない。
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryStore はMemoryStoreの新しいインスタンスを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

// LoadString はキーに対応する値を返す。
func (s *MemoryStore) LoadString(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok, nil
}

// SaveString はキーに値を保存する。
func (s *MemoryStore) SaveString(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

// Close は何もしない。
func (s *MemoryStore) Close() error { return nil }
