package app

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/hitoshi/biliwall/internal/model"
	"github.com/hitoshi/biliwall/internal/seen"
	"github.com/hitoshi/biliwall/internal/store"
)

// loadState は保存済みの表示済み集合と現在の作品IDを復元する。
// 読み込みに失敗しても起動は継続し、空の状態から始める。
func (c *components) loadState(ctx context.Context) {
	if err := seen.LoadFromStore(ctx, c.kv, c.tracker); err != nil {
		c.logger.Warn("failed to restore shown ids", slog.String("error", err.Error()))
	}

	raw, ok, err := c.kv.LoadString(ctx, store.KeyCurrentID)
	switch {
	case err != nil:
		c.logger.Warn("failed to restore current artwork id", slog.String("error", err.Error()))
	case ok && raw != "":
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.logger.Warn("ignoring malformed current artwork id", slog.String("value", raw))
			break
		}
		c.pipeline.SetCurrentID(id)
	}

	c.logger.Info("state restored",
		slog.Int("shown_count", c.tracker.Len()),
		slog.Int64("current_id", c.pipeline.CurrentID()),
	)
}

// saveState は表示済み集合と現在の作品IDを保存する。
// 保存の失敗はサイクルの結果に影響させず、ログのみ記録する。
func (c *components) saveState(ctx context.Context) {
	// シャットダウン時にも保存できるよう、キャンセルを引き継がない
	ctx = context.WithoutCancel(ctx)

	if err := seen.SaveToStore(ctx, c.kv, c.tracker); err != nil {
		c.logger.Error("failed to persist shown ids", slog.String("error", err.Error()))
	}

	current := ""
	if id := c.pipeline.CurrentID(); id != model.NoCurrentID {
		current = strconv.FormatInt(id, 10)
	}
	if err := c.kv.SaveString(ctx, store.KeyCurrentID, current); err != nil {
		c.logger.Error("failed to persist current artwork id", slog.String("error", err.Error()))
	}
}
