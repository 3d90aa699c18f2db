package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"golang.org/x/time/rate"
)

// RefreshLimiter は手動リフレッシュ要求のレート制限を行う。
// 利用者は単一（ローカルの操作者）のため、ユーザー単位ではなくプロセス全体で1つのリミッターを共有する。
type RefreshLimiter struct {
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewRefreshLimiter は1分あたりperMinute回まで許可するRefreshLimiterを生成する。
// perMinuteが0以下の場合は制限しない。
func NewRefreshLimiter(perMinute float64, burst int, logger *slog.Logger) *RefreshLimiter {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(perMinute / 60.0)
	}
	if burst < 1 {
		burst = 1
	}
	return &RefreshLimiter{
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

// Middleware はレート制限ミドルウェアを返す。上限を超えた要求には429を返す。
func (rl *RefreshLimiter) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.limiter.Allow() {
				writeRateLimitResponse(w, rl.limiter.Limit())
				rl.logger.Warn("rate limit exceeded",
					slog.String("path", r.URL.Path),
					slog.String("limit_type", "refresh"),
				)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	retryAfterSec := 1
	if r > 0 && r != rate.Inf {
		retryAfterSec = max(int(math.Ceil(1.0/float64(r))), 1)
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "リクエストが多すぎます。しばらく待ってから再度お試しください。")
}
