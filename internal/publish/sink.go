// Package publish は公開済み作品の出力先（シンク）を提供する。
// 壁紙ホストそのものへの描画は対象外で、ログ出力・Webhook通知・
// HTTP APIから参照するための現在作品の保持を行う。
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/biliwall/internal/model"
)

// Sink は作品の公開先インターフェース。
type Sink interface {
	Publish(ctx context.Context, artwork model.PublishedArtwork) error
}

// LogSink は公開された作品を構造化ログに出力する。
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink はLogSinkの新しいインスタンスを生成する。
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Publish は作品をINFOレベルでログに出力する。
func (s *LogSink) Publish(_ context.Context, artwork model.PublishedArtwork) error {
	s.logger.Info("作品を公開しました",
		slog.String("artwork_id", artwork.ID),
		slog.String("image_url", artwork.ImageURL),
		slog.String("caption", artwork.Caption),
		slog.String("attribution", artwork.AttributionLine),
		slog.String("source_url", artwork.SourceURL),
	)
	return nil
}

// Current は現在表示中の作品と公開時刻。
type Current struct {
	Artwork     model.PublishedArtwork `json:"artwork"`
	PublishedAt time.Time              `json:"published_at"`
}

// CurrentHolder は最後に公開された作品を保持する。HTTP APIから参照される。
type CurrentHolder struct {
	mu      sync.RWMutex
	current *Current
	now     func() time.Time
}

// NewCurrentHolder はCurrentHolderの新しいインスタンスを生成する。
func NewCurrentHolder() *CurrentHolder {
	return &CurrentHolder{now: time.Now}
}

// Publish は作品を現在の作品として保持する。
func (h *CurrentHolder) Publish(_ context.Context, artwork model.PublishedArtwork) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = &Current{Artwork: artwork, PublishedAt: h.now()}
	return nil
}

// Current は現在の作品を返す。まだ公開されていない場合はfalseを返す。
func (h *CurrentHolder) Current() (Current, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.current == nil {
		return Current{}, false
	}
	return *h.current, true
}

// MultiSink は複数のシンクに順に公開する。
// いずれかのシンクが失敗した時点で中断し、以降のシンクには公開しない。
// 外部への配送を先に、CurrentHolderのようなローカルの状態更新を最後に並べること。
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink はMultiSinkの新しいインスタンスを生成する。nilのシンクは無視する。
func NewMultiSink(sinks ...Sink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Publish は全シンクに作品を順に公開する。
func (m *MultiSink) Publish(ctx context.Context, artwork model.PublishedArtwork) error {
	for i, s := range m.sinks {
		if err := s.Publish(ctx, artwork); err != nil {
			return fmt.Errorf("シンク%d: %w", i, err)
		}
	}
	return nil
}
