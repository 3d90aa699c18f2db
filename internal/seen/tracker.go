// Package seen は表示済み作品IDの追跡を提供する。
// カタログを一巡したらリセットする方針で、同じ作品の再表示を避ける。
package seen

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
)

// Tracker は表示済み作品IDの集合。
// 更新はサイクルのワーカーからのみ行われるが、参照用にロックで保護する。
type Tracker struct {
	mu  sync.RWMutex
	ids map[int64]struct{}
}

// NewTracker は空のTrackerを生成する。
func NewTracker() *Tracker {
	return &Tracker{ids: make(map[int64]struct{})}
}

// MarkSeen はIDを表示済みとして記録する。
func (t *Tracker) MarkSeen(id int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ids[id] = struct{}{}
}

// Contains はIDが表示済みかを返す。
func (t *Tracker) Contains(id int64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.ids[id]
	return ok
}

// Len は記録済みID数を返す。
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.ids)
}

// ResetIfFull は記録数がcandidateCount以上の場合に全IDを消去する。
// 消去した場合はtrueを返す。
func (t *Tracker) ResetIfFull(candidateCount int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.ids) < candidateCount {
		return false
	}
	clear(t.ids)
	return true
}

// Reset は全IDを消去する。
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.ids)
}

// Retain はidsに含まれないIDを消去し、消去した件数を返す。
func (t *Tracker) Retain(ids []int64) int {
	keep := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		keep[id] = struct{}{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for id := range t.ids {
		if _, ok := keep[id]; !ok {
			delete(t.ids, id)
			removed++
		}
	}
	return removed
}

// IDs は記録済みIDを昇順で返す。
func (t *Tracker) IDs() []int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]int64, 0, len(t.ids))
	for id := range t.ids {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Serialize はIDを昇順のカンマ区切り文字列に変換する。空集合は空文字列になる。
func (t *Tracker) Serialize() string {
	ids := t.IDs()
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

// Load はカンマ区切り文字列のIDを追加する。
// 空・空白のみのトークンは読み飛ばす（ID 0としては扱わない）。
// 数値でないトークンも読み飛ばし、まとめてエラーとして返す。
func (t *Tracker) Load(serialized string) error {
	var errs []error

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, token := range strings.Split(serialized, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		id, err := strconv.ParseInt(token, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("不正なID %q: %w", token, err))
			continue
		}
		t.ids[id] = struct{}{}
	}
	return errors.Join(errs...)
}
