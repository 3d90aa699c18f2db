package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/biliwall/internal/middleware"
	"github.com/hitoshi/biliwall/internal/publish"
	"github.com/hitoshi/biliwall/internal/worker/update"
)

// CurrentProvider は現在公開中の作品を返すインターフェース。
type CurrentProvider interface {
	Current() (publish.Current, bool)
}

// SchedulerControl はスケジューラの状態参照と手動トリガーのインターフェース。
type SchedulerControl interface {
	Snapshot() update.Snapshot
	TriggerNow(reason string)
}

// WallpaperHandler は作品とスケジュールのHTTPハンドラー。
type WallpaperHandler struct {
	current   CurrentProvider
	scheduler SchedulerControl
}

// NewWallpaperHandler はWallpaperHandlerを生成する。
func NewWallpaperHandler(current CurrentProvider, scheduler SchedulerControl) *WallpaperHandler {
	return &WallpaperHandler{current: current, scheduler: scheduler}
}

// currentResponse は現在の作品のAPIレスポンス。
type currentResponse struct {
	ID              string    `json:"id"`
	ImageURL        string    `json:"image_url"`
	Caption         string    `json:"caption"`
	AttributionLine string    `json:"attribution_line"`
	SourceURL       string    `json:"source_url"`
	DetailURL       string    `json:"detail_url"`
	PublishedAt     time.Time `json:"published_at"`
}

// scheduleResponse はスケジュール状態のAPIレスポンス。
type scheduleResponse struct {
	NextRunAt           *time.Time `json:"next_run_at"`
	NextRunReason       string     `json:"next_run_reason,omitempty"`
	Running             bool       `json:"running"`
	Queued              bool       `json:"queued"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastCycleID         string     `json:"last_cycle_id,omitempty"`
	LastStatus          string     `json:"last_status,omitempty"`
	LastRunAt           *time.Time `json:"last_run_at,omitempty"`
	LastError           string     `json:"last_error,omitempty"`
}

// Health は死活監視に応答する。
// GET /health
func (h *WallpaperHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetCurrent は現在公開中の作品を返す。未公開の場合は404を返す。
// GET /artwork/current
func (h *WallpaperHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	cur, ok := h.current.Current()
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusNotFound, "NOT_FOUND", "まだ作品が公開されていません。")
		return
	}
	a := cur.Artwork
	writeJSON(w, http.StatusOK, currentResponse{
		ID:              a.ID,
		ImageURL:        a.ImageURL,
		Caption:         a.Caption,
		AttributionLine: a.AttributionLine,
		SourceURL:       a.SourceURL,
		DetailURL:       a.DetailURL,
		PublishedAt:     cur.PublishedAt,
	})
}

// GetSchedule はスケジューラの状態を返す。
// GET /schedule
func (h *WallpaperHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	snap := h.scheduler.Snapshot()
	resp := scheduleResponse{
		Running:             snap.Running,
		Queued:              snap.Queued,
		ConsecutiveFailures: snap.ConsecutiveFailures,
		LastCycleID:         snap.LastCycleID,
		LastStatus:          string(snap.LastStatus),
		LastError:           snap.LastError,
	}
	if !snap.Next.At.IsZero() {
		resp.NextRunAt = &snap.Next.At
		resp.NextRunReason = snap.Next.Reason
	}
	if !snap.LastRunAt.IsZero() {
		resp.LastRunAt = &snap.LastRunAt
	}
	writeJSON(w, http.StatusOK, resp)
}

// Refresh は更新サイクルの即時実行を要求する。
// サイクルはスケジューラのワーカーで非同期に実行されるため、受付のみ行い202を返す。
// POST /refresh
func (h *WallpaperHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.scheduler.TriggerNow("manual_refresh")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
