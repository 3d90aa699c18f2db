package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/biliwall/internal/catalog"
	"github.com/hitoshi/biliwall/internal/config"
	"github.com/hitoshi/biliwall/internal/database"
	"github.com/hitoshi/biliwall/internal/metrics"
	"github.com/hitoshi/biliwall/internal/pipeline"
	"github.com/hitoshi/biliwall/internal/placeholder"
	"github.com/hitoshi/biliwall/internal/publish"
	"github.com/hitoshi/biliwall/internal/security"
	"github.com/hitoshi/biliwall/internal/seen"
	"github.com/hitoshi/biliwall/internal/selector"
	"github.com/hitoshi/biliwall/internal/store"
	"github.com/hitoshi/biliwall/internal/worker/update"
)

const (
	userAgent      = "Biliwall/1.0"
	webhookTimeout = 10 * time.Second
)

// fixedDisplay は設定値で固定の最小表示高さを返す。
type fixedDisplay int

func (d fixedDisplay) MinimumHeight(context.Context) int { return int(d) }

// components は1プロセス分の依存コンポーネント。
type components struct {
	cfg       *config.Config
	logger    *slog.Logger
	kv        store.KV
	tracker   *seen.Tracker
	pipeline  *pipeline.Pipeline
	holder    *publish.CurrentHolder
	scheduler *update.Scheduler
	registry  *prometheus.Registry
}

// build は設定から全コンポーネントを組み立てる。
func build(cfg *config.Config, logger *slog.Logger) (*components, error) {
	kv, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	catalogClient := catalog.NewClient(
		catalog.NewHTTPClient(cfg.CatalogConnectTimeout, cfg.CatalogReadTimeout),
		logger,
		catalog.Config{
			BaseURL:        cfg.CatalogBaseURL,
			APIPath:        cfg.CatalogAPIPath,
			ConnectTimeout: cfg.CatalogConnectTimeout,
			ReadTimeout:    cfg.CatalogReadTimeout,
			RetryAttempts:  cfg.CatalogRetryAttempts,
			RateLimit:      cfg.CatalogRateLimit,
			UserAgent:      userAgent,
		},
		collector,
	)

	holder := publish.NewCurrentHolder()
	var webhook publish.Sink
	if cfg.PublishWebhookURL != "" {
		guard := security.NewWebhookGuard()
		if err := guard.ValidateURL(cfg.PublishWebhookURL); err != nil {
			kv.Close()
			return nil, fmt.Errorf("invalid PUBLISH_WEBHOOK_URL: %w", err)
		}
		webhook = publish.NewWebhookSink(guard.Client(webhookTimeout), logger, cfg.PublishWebhookURL, userAgent)
	}

	tracker := seen.NewTracker()
	p := pipeline.New(pipeline.Deps{
		Catalog:     catalogClient,
		Tracker:     tracker,
		Selector:    selector.New(nil),
		Publisher:   newPublisher(logger, holder, webhook),
		Display:     fixedDisplay(cfg.DisplayMinHeight),
		Placeholder: placeholder.NewFileAsset(cfg.PlaceholderPath),
		Sanitizer:   security.NewTextSanitizer(),
		Metrics:     collector,
	}, logger, pipeline.Config{
		Page:             cfg.CatalogPage,
		UpdateInterval:   cfg.UpdateInterval,
		PlaceholderDelay: cfg.PlaceholderDelay,
		DetailURLBase:    cfg.CatalogDetailURLBase,
		Location:         cfg.Location(),
	})

	c := &components{
		cfg:      cfg,
		logger:   logger,
		kv:       kv,
		tracker:  tracker,
		pipeline: p,
		holder:   holder,
		registry: registry,
	}
	c.scheduler = update.NewScheduler(&persistingRunner{c: c}, logger, update.Config{
		InitialBackoff: cfg.RetryInitialBackoff,
		MaxBackoff:     cfg.RetryMaxBackoff,
	})
	return c, nil
}

// newPublisher は公開先を外部配送、ログ、現在の作品の順に並べる。
// 外部配送が失敗した場合はログ出力もCurrentHolderの更新も行わない。
func newPublisher(logger *slog.Logger, holder *publish.CurrentHolder, external ...publish.Sink) *publish.MultiSink {
	sinks := append([]publish.Sink{}, external...)
	sinks = append(sinks, publish.NewLogSink(logger), holder)
	return publish.NewMultiSink(sinks...)
}

// openStore はSTORE_DRIVERに応じた状態ストアを開く。
func openStore(cfg *config.Config) (store.KV, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := database.Ping(context.Background(), db, 5*time.Second); err != nil {
			db.Close()
			return nil, err
		}
		if _, err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			db.Close()
			return nil, err
		}
		return store.NewPostgresStore(db), nil
	default:
		if cfg.StorePath == "" {
			return store.NewMemoryStore(), nil
		}
		return store.OpenBolt(cfg.StorePath)
	}
}

func (c *components) close() {
	if err := c.kv.Close(); err != nil {
		c.logger.Error("failed to close state store", slog.String("error", err.Error()))
	}
}

// persistingRunner はサイクル完了ごとに状態を保存するCycleRunner。
// プロセスが異常終了しても直前のサイクルまでの表示済み集合が失われないようにする。
type persistingRunner struct {
	c *components
}

func (r *persistingRunner) Run(ctx context.Context) pipeline.Outcome {
	out := r.c.pipeline.Run(ctx)
	r.c.saveState(ctx)
	return out
}

func (r *persistingRunner) RunInitial(ctx context.Context) pipeline.Outcome {
	out := r.c.pipeline.RunInitial(ctx)
	r.c.saveState(ctx)
	return out
}
