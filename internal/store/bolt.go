package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketKV = []byte("kv")

// BoltStore はbbolt（単一ファイルの組み込みDB）によるKV実装。
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt はpathのbboltファイルを開く（存在しない場合は作成する）。
// 他プロセスがロックを保持している場合は1秒でタイムアウトする。
func OpenBolt(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("状態ディレクトリの作成に失敗しました: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketKV)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("バケットの作成に失敗しました: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// LoadString はキーに対応する値を返す。
func (s *BoltStore) LoadString(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	var (
		value string
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKV)
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			// bboltの値はトランザクション内でのみ有効なため、string変換でコピーする
			value = string(v)
			found = true
		}
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("キー %q の読み込みに失敗しました: %w", key, err)
	}
	return value, found, nil
}

// SaveString はキーに値を保存する。
func (s *BoltStore) SaveString(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketKV).Put([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("キー %q の保存に失敗しました: %w", key, err)
	}
	return nil
}

// Close はbboltファイルを閉じる。
func (s *BoltStore) Close() error {
	return s.db.Close()
}
