// Package selector は未表示作品の選択と、表示サイズに合う解像度の選択を提供する。
package selector

import (
	"fmt"
	"math/rand/v2"

	"github.com/hitoshi/biliwall/internal/model"
	"github.com/hitoshi/biliwall/internal/seen"
)

// Selector は作品と解像度バリアントを選択する。
// 乱数源はサイクルのワーカーからのみ使用される。
type Selector struct {
	intN func(n int) int
}

// New はSelectorを生成する。rngがnilの場合はグローバルな乱数源を使用する。
func New(rng *rand.Rand) *Selector {
	if rng == nil {
		return &Selector{intN: rand.IntN}
	}
	return &Selector{intN: rng.IntN}
}

// SelectItem は候補から未表示の作品を一様ランダムに1件選び、表示済みとして記録する。
//
// 選択条件は、tracker未記録・currentIDと異なる（NoCurrentIDの場合は制約なし）・
// バリアントを1件以上持つ、の全て。バリアントを持たない作品は表示済みとして記録し、
// 以後の選択から除外する。条件を満たす作品が残っていない場合は一巡したとみなして
// trackerを消去してから選び直す。現在表示中の作品しか残らない場合はそれを返す。
// 選択直後のtrackerの件数は候補数未満となる（バリアントなしの作品を除く候補が1件の場合を除く）。
//
// 候補が空、またはバリアントを持つ作品が1件もない場合はmodel.ErrNoEligibleItemを返す。
func (s *Selector) SelectItem(candidates []model.CatalogItem, currentID int64, tracker *seen.Tracker) (model.CatalogItem, error) {
	if len(candidates) == 0 {
		return model.CatalogItem{}, fmt.Errorf("候補リストが空です: %w", model.ErrNoEligibleItem)
	}

	ids := make([]int64, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	tracker.Retain(ids)

	withVariants := markEmptyAsSeen(candidates, tracker)
	if len(withVariants) == 0 {
		return model.CatalogItem{}, fmt.Errorf("バリアントを持つ作品がありません: %w", model.ErrNoEligibleItem)
	}

	eligible := filter(withVariants, func(c model.CatalogItem) bool {
		return !tracker.Contains(c.ID) && !isCurrent(c.ID, currentID)
	})
	if len(eligible) == 0 {
		// 一巡したため表示済みを消去する（バリアントなしの作品は除外し続ける）
		tracker.Reset()
		markEmptyAsSeen(candidates, tracker)
		eligible = filter(withVariants, func(c model.CatalogItem) bool {
			return !isCurrent(c.ID, currentID)
		})
		if len(eligible) == 0 {
			eligible = withVariants
		}
	}

	picked := eligible[s.intN(len(eligible))]

	// 記録後に候補全体を覆う場合は先に消去し、選択直後の表示済み数を候補数未満に保つ。
	// バリアントなしの作品は消去後も記録し直すため、それ以外が1件しかない候補ではこの限りでない。
	if tracker.ResetIfFull(len(candidates) - 1) {
		markEmptyAsSeen(candidates, tracker)
	}
	tracker.MarkSeen(picked.ID)
	return picked, nil
}

// SelectVariant はバリアントを先頭から走査し、高さがtargetMinHeight以上の最初のものを返す。
// 該当がない場合は末尾（最大とみなす）を返す。並べ替えは行わない。
func (s *Selector) SelectVariant(item model.CatalogItem, targetMinHeight int) (model.Variant, error) {
	if len(item.Variants) == 0 {
		return model.Variant{}, fmt.Errorf("作品 id=%d にバリアントがありません: %w", item.ID, model.ErrNoEligibleItem)
	}
	for _, v := range item.Variants {
		if v.Height >= targetMinHeight {
			return v, nil
		}
	}
	return item.Variants[len(item.Variants)-1], nil
}

func isCurrent(id, currentID int64) bool {
	return currentID != model.NoCurrentID && id == currentID
}

// markEmptyAsSeen はバリアントを持たない作品を表示済みとして記録し、
// バリアントを持つ作品のみを返す。
func markEmptyAsSeen(candidates []model.CatalogItem, tracker *seen.Tracker) []model.CatalogItem {
	withVariants := make([]model.CatalogItem, 0, len(candidates))
	for _, c := range candidates {
		if !c.HasVariants() {
			tracker.MarkSeen(c.ID)
			continue
		}
		withVariants = append(withVariants, c)
	}
	return withVariants
}

func filter(items []model.CatalogItem, keep func(model.CatalogItem) bool) []model.CatalogItem {
	out := make([]model.CatalogItem, 0, len(items))
	for _, it := range items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}
