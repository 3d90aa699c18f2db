package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/biliwall/internal/model"
)

// StatusClass はHTTPステータスコードに基づく応答の分類。
type StatusClass int

const (
	// StatusClassOK は成功（200）。
	StatusClassOK StatusClass = iota
	// StatusClassRetry は呼び出し内でリトライすべきステータス（429/5xx）。
	StatusClassRetry
	// StatusClassFail はリトライしても改善しないステータス（その他）。
	StatusClassFail
)

// defaultAttempts は1回の呼び出しあたりの試行回数。
const defaultAttempts = 3

// ClassifyHTTPStatus はHTTPステータスコードを分類する。
func ClassifyHTTPStatus(statusCode int) StatusClass {
	switch {
	case statusCode == 200:
		return StatusClassOK
	case statusCode == 429:
		return StatusClassRetry
	case statusCode >= 500:
		return StatusClassRetry
	default:
		return StatusClassFail
	}
}

// RetryPolicy は1回のネットワーク呼び出しに対するリトライ方針。
// model.TransportErrorのみをリトライし、それ以外のエラーは即座に返す。
// 試行間の待機は行わない（試行ごとのタイムアウトのみが上限となる）。
type RetryPolicy struct {
	Attempts int
	Logger   *slog.Logger
}

// Do はfnを最大Attempts回実行する。
// 全試行が通信エラーで失敗した場合は最後のエラーをラップして返す。
func (p RetryPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = defaultAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !model.IsRetryable(err) {
			return err
		}
		lastErr = err

		if p.Logger != nil {
			p.Logger.Debug("カタログAPIの呼び出しに失敗しました。リトライします",
				slog.String("op", op),
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", attempts),
				slog.String("error", err.Error()),
			)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return fmt.Errorf("%d回の試行がすべて失敗しました: %w", attempts, lastErr)
}
