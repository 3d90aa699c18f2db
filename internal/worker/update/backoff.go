package update

import "time"

const (
	// defaultInitialBackoff は失敗時バックオフの初回遅延（30秒）。
	defaultInitialBackoff = 30 * time.Second
	// defaultMaxBackoff は失敗時バックオフの最大遅延（3時間、通常の更新間隔と同じ）。
	defaultMaxBackoff = 3 * time.Hour
)

// CalculateBackoff は連続失敗回数に基づいて指数バックオフ遅延を計算する。
// initialから2倍ずつ増加し、maxで頭打ちとなる。
func CalculateBackoff(consecutiveFailures int, initial, max time.Duration) time.Duration {
	if initial <= 0 {
		initial = defaultInitialBackoff
	}
	if max < initial {
		max = initial
	}
	delay := initial
	for i := 0; i < consecutiveFailures; i++ {
		delay *= 2
		if delay > max {
			return max
		}
	}
	return delay
}
