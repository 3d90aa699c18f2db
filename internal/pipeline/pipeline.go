// Package pipeline は作品更新サイクルを提供する。
// 一覧取得 → 作品選択 → 詳細取得 → 解像度選択 → 公開 → 次回予定の算出 を1サイクルとする。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/biliwall/internal/model"
	"github.com/hitoshi/biliwall/internal/seen"
	"github.com/hitoshi/biliwall/internal/selector"
)

// Status はサイクルの結果分類。
type Status string

const (
	// StatusPublished は作品を公開して完了したことを示す。
	StatusPublished Status = "published"
	// StatusPlaceholder は初回サイクルでプレースホルダーを公開したことを示す。
	StatusPlaceholder Status = "placeholder"
	// StatusNoOp はカタログが空のため何も公開しなかったことを示す。
	StatusNoOp Status = "no_op"
	// StatusRetryableFailure は失敗したため後でサイクル全体を再実行すべきことを示す。
	StatusRetryableFailure Status = "retryable_failure"
)

// Outcome は1サイクルの結果。
// NextRunAtは成功・no-op・プレースホルダー時のみ設定され、失敗時はゼロ値となる
// （再試行の時刻はスケジューラが決める）。
type Outcome struct {
	CycleID   string
	Status    Status
	Artwork   *model.PublishedArtwork
	NextRunAt time.Time
	Err       error
}

// CatalogFetcher はカタログ取得のインターフェース。
type CatalogFetcher interface {
	FetchList(ctx context.Context, page int) ([]model.CatalogItem, error)
	FetchDetail(ctx context.Context, id int64) (model.CatalogItem, error)
}

// Publisher は作品の公開先インターフェース。
type Publisher interface {
	Publish(ctx context.Context, artwork model.PublishedArtwork) error
}

// PlaceholderAsset は初回表示用のプレースホルダー画像のインターフェース。
type PlaceholderAsset interface {
	HasPlaceholder() bool
	PlaceholderURI() string
}

// DisplaySizer はサイクル開始時点で満たすべき最小表示高さ（px）を返す。
type DisplaySizer interface {
	MinimumHeight(ctx context.Context) int
}

// TextSanitizer は上流の文字列からマークアップを除去する。
type TextSanitizer interface {
	Sanitize(s string) string
}

// CycleRecorder はサイクルの計測インターフェース。
type CycleRecorder interface {
	RecordCycle(status string)
	RecordCycleDuration(d time.Duration)
	RecordPublished()
}

// Config はPipelineの設定パラメータ。
type Config struct {
	Page             int
	UpdateInterval   time.Duration
	PlaceholderDelay time.Duration
	DetailURLBase    string
	Location         *time.Location
}

// DefaultConfig はデフォルトの設定を返す。
func DefaultConfig() Config {
	return Config{
		Page:             1,
		UpdateInterval:   3 * time.Hour,
		PlaceholderDelay: 15 * time.Minute,
		DetailURLBase:    "http://h.bilibili.com/wallpaper?action=detail&il_id=",
		Location:         time.Local,
	}
}

// Deps はPipelineの依存コンポーネント。Placeholder・Sanitizer・Metricsはnil可。
type Deps struct {
	Catalog     CatalogFetcher
	Tracker     *seen.Tracker
	Selector    *selector.Selector
	Publisher   Publisher
	Display     DisplaySizer
	Placeholder PlaceholderAsset
	Sanitizer   TextSanitizer
	Metrics     CycleRecorder
}

// Pipeline は作品更新サイクルを実行する。
// サイクルはスケジューラのワーカーから1つずつ直列に呼び出される前提で、並行実行には対応しない。
type Pipeline struct {
	catalog     CatalogFetcher
	tracker     *seen.Tracker
	selector    *selector.Selector
	publisher   Publisher
	display     DisplaySizer
	placeholder PlaceholderAsset
	sanitizer   TextSanitizer
	metrics     CycleRecorder
	logger      *slog.Logger
	config      Config
	now         func() time.Time

	currentID atomic.Int64
}

// New はPipelineの新しいインスタンスを生成する。
func New(deps Deps, logger *slog.Logger, config Config) *Pipeline {
	if config.UpdateInterval <= 0 {
		config.UpdateInterval = 3 * time.Hour
	}
	if config.PlaceholderDelay <= 0 {
		config.PlaceholderDelay = 15 * time.Minute
	}
	if config.Page <= 0 {
		config.Page = 1
	}
	return &Pipeline{
		catalog:     deps.Catalog,
		tracker:     deps.Tracker,
		selector:    deps.Selector,
		publisher:   deps.Publisher,
		display:     deps.Display,
		placeholder: deps.Placeholder,
		sanitizer:   deps.Sanitizer,
		metrics:     deps.Metrics,
		logger:      logger,
		config:      config,
		now:         time.Now,
	}
}

// CurrentID は現在表示中の作品IDを返す。未表示の場合はmodel.NoCurrentID。
func (p *Pipeline) CurrentID() int64 {
	return p.currentID.Load()
}

// SetCurrentID は現在表示中の作品IDを設定する。起動時の状態復元に使用する。
func (p *Pipeline) SetCurrentID(id int64) {
	p.currentID.Store(id)
}

// RunInitial は初回（ブートストラップ）サイクルを実行する。
// プレースホルダー画像がある場合は即座に公開し、PlaceholderDelay後に通常サイクルを予定する。
// ない場合は通常サイクルを実行する。
func (p *Pipeline) RunInitial(ctx context.Context) Outcome {
	if p.placeholder == nil || !p.placeholder.HasPlaceholder() {
		return p.Run(ctx)
	}

	start := p.now()
	cycleID := uuid.NewString()
	logger := p.logger.With(slog.String("cycle_id", cycleID))

	artwork := p.placeholderArtwork(p.placeholder.PlaceholderURI())
	if err := p.publisher.Publish(ctx, artwork); err != nil {
		return p.fail(logger, cycleID, start, "publish_placeholder", fmt.Errorf("%w: %v", model.ErrPublish, err))
	}
	p.SetCurrentID(PlaceholderID)

	next := start.Add(p.config.PlaceholderDelay)
	logger.Info("プレースホルダー作品を公開しました",
		slog.String("artwork_id", artwork.ID),
		slog.Time("next_run_at", next),
	)
	p.record(StatusPlaceholder, start)
	return Outcome{CycleID: cycleID, Status: StatusPlaceholder, Artwork: &artwork, NextRunAt: next}
}

// Run は通常の更新サイクルを1回実行する。
func (p *Pipeline) Run(ctx context.Context) Outcome {
	start := p.now()
	cycleID := uuid.NewString()
	logger := p.logger.With(slog.String("cycle_id", cycleID))

	logger.Info("更新サイクルを開始します", slog.Int("page", p.config.Page))

	items, err := p.catalog.FetchList(ctx, p.config.Page)
	if err != nil {
		return p.fail(logger, cycleID, start, "fetch_list", err)
	}

	if len(items) == 0 {
		next := start.Add(p.config.UpdateInterval)
		logger.Warn("カタログAPIが作品を返しませんでした",
			slog.String("error", model.ErrEmptyCatalog.Error()),
			slog.Time("next_run_at", next),
		)
		p.record(StatusNoOp, start)
		return Outcome{CycleID: cycleID, Status: StatusNoOp, NextRunAt: next}
	}

	picked, err := p.selector.SelectItem(items, p.CurrentID(), p.tracker)
	if err != nil {
		return p.fail(logger, cycleID, start, "select_item", err)
	}

	detail, err := p.catalog.FetchDetail(ctx, picked.ID)
	if err != nil {
		return p.fail(logger, cycleID, start, "fetch_detail", err)
	}

	minHeight := 0
	if p.display != nil {
		minHeight = p.display.MinimumHeight(ctx)
	}
	variant, err := p.selector.SelectVariant(detail, minHeight)
	if err != nil {
		return p.fail(logger, cycleID, start, "select_variant", err)
	}

	artwork := p.buildArtwork(picked, variant)
	if err := p.publisher.Publish(ctx, artwork); err != nil {
		return p.fail(logger, cycleID, start, "publish", fmt.Errorf("%w: %v", model.ErrPublish, err))
	}
	p.SetCurrentID(picked.ID)
	if p.metrics != nil {
		p.metrics.RecordPublished()
	}

	next := start.Add(p.config.UpdateInterval)
	logger.Info("作品を公開しました",
		slog.String("artwork_id", artwork.ID),
		slog.String("variant_id", variant.ID),
		slog.Int("variant_height", variant.Height),
		slog.Int("min_height", minHeight),
		slog.Int("candidate_count", len(items)),
		slog.Int("seen_count", p.tracker.Len()),
		slog.Time("next_run_at", next),
		slog.Float64("duration_ms", float64(p.now().Sub(start).Milliseconds())),
	)
	p.record(StatusPublished, start)
	return Outcome{CycleID: cycleID, Status: StatusPublished, Artwork: &artwork, NextRunAt: next}
}

// fail はサイクルの失敗をログに記録し、リトライ可能な失敗として返す。
func (p *Pipeline) fail(logger *slog.Logger, cycleID string, start time.Time, stage string, err error) Outcome {
	attrs := []any{
		slog.String("stage", stage),
		slog.String("error", err.Error()),
	}
	if errors.Is(err, model.ErrNotFound) {
		logger.Warn("選択した作品の詳細が見つかりませんでした", attrs...)
	} else {
		logger.Error("更新サイクルに失敗しました", attrs...)
	}
	p.record(StatusRetryableFailure, start)
	return Outcome{CycleID: cycleID, Status: StatusRetryableFailure, Err: fmt.Errorf("%s: %w", stage, err)}
}

func (p *Pipeline) record(status Status, start time.Time) {
	if p.metrics == nil {
		return
	}
	p.metrics.RecordCycle(string(status))
	p.metrics.RecordCycleDuration(p.now().Sub(start))
}
