package seen

import (
	"context"
	"fmt"
)

// StoreKey は表示済みIDの保存キー。
const StoreKey = "shown_ids"

// Store はキー・バリュー形式の永続化インターフェース。
type Store interface {
	LoadString(ctx context.Context, key string) (string, bool, error)
	SaveString(ctx context.Context, key, value string) error
}

// LoadFromStore は保存済みの表示済みIDをtrackerに読み込む。
// 未保存の場合は何もしない。不正なトークンのみのエラーはtrackerへ反映した上で返す。
func LoadFromStore(ctx context.Context, store Store, tracker *Tracker) error {
	value, ok, err := store.LoadString(ctx, StoreKey)
	if err != nil {
		return fmt.Errorf("表示済みIDの読み込みに失敗しました: %w", err)
	}
	if !ok {
		return nil
	}
	return tracker.Load(value)
}

// SaveToStore はtrackerの内容を保存する。
func SaveToStore(ctx context.Context, store Store, tracker *Tracker) error {
	if err := store.SaveString(ctx, StoreKey, tracker.Serialize()); err != nil {
		return fmt.Errorf("表示済みIDの保存に失敗しました: %w", err)
	}
	return nil
}
