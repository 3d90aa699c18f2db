package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/biliwall/internal/metrics"
	"github.com/hitoshi/biliwall/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger         *slog.Logger
	Current        CurrentProvider
	Scheduler      SchedulerControl
	RefreshLimiter *middleware.RefreshLimiter
	// Gathererがnilの場合は/metricsを公開しない
	Gatherer prometheus.Gatherer
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Logging → Recovery
//
// POST /refresh のみ追加でRefreshLimiterを適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))

	h := NewWallpaperHandler(deps.Current, deps.Scheduler)

	r.Get("/health", h.Health)
	r.Get("/artwork/current", h.GetCurrent)
	r.Get("/schedule", h.GetSchedule)

	refresh := http.HandlerFunc(h.Refresh)
	if deps.RefreshLimiter != nil {
		r.With(deps.RefreshLimiter.Middleware()).Post("/refresh", refresh)
	} else {
		r.Post("/refresh", refresh)
	}

	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	return r
}
