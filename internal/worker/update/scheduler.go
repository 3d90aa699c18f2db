// Package update は作品更新サイクルのスケジューリングを提供する。
// 保留タイマーは常に1つだけで、サイクルは単一のワーカーgoroutineで直列に実行される。
package update

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/biliwall/internal/model"
	"github.com/hitoshi/biliwall/internal/pipeline"
)

// 予約理由。タイマー発火時のトリガー理由としてログに残る。
const (
	ReasonInterval            = "interval"
	ReasonPlaceholderFollowUp = "placeholder_follow_up"
	ReasonRetryBackoff        = "retry_backoff"
	ReasonManual              = "manual"
)

// CycleRunner は更新サイクルの実行インターフェース。
type CycleRunner interface {
	Run(ctx context.Context) pipeline.Outcome
	RunInitial(ctx context.Context) pipeline.Outcome
}

// Config はSchedulerの設定パラメータ。
type Config struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Snapshot はスケジューラの現在の状態。
type Snapshot struct {
	// Next は保留中の予約。予約がない場合はゼロ値。
	Next                model.ScheduleRequest
	Running             bool
	Queued              bool
	ConsecutiveFailures int
	LastCycleID         string
	LastStatus          pipeline.Status
	LastRunAt           time.Time
	LastError           string
}

type trigger struct {
	initial bool
	reason  string
}

// Scheduler は更新サイクルの起動を管理する。
// タイマー発火や手動リフレッシュは待ち行列（容量1）に積むだけで即座に戻り、
// 実際のサイクルはStartで起動したワーカーが実行する。
// サイクル実行中に届いたトリガーは1つにまとめられ、完了後に1回だけ実行される。
type Scheduler struct {
	runner CycleRunner
	logger *slog.Logger
	config Config
	now    func() time.Time

	wake chan struct{}

	mu       sync.Mutex
	timer    *time.Timer
	timerGen uint64
	pending  *trigger
	state    Snapshot
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
func NewScheduler(runner CycleRunner, logger *slog.Logger, config Config) *Scheduler {
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = defaultInitialBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = defaultMaxBackoff
	}
	return &Scheduler{
		runner: runner,
		logger: logger,
		config: config,
		now:    time.Now,
		wake:   make(chan struct{}, 1),
	}
}

// ScheduleAt は指定時刻に通常サイクルを予約する。既存の予約は置き換えられる。
func (s *Scheduler) ScheduleAt(at time.Time) {
	s.Schedule(model.ScheduleRequest{At: at, Reason: ReasonManual})
}

// Schedule はreq.Atに通常サイクルを予約する。既存の予約は置き換えられる。
func (s *Scheduler) Schedule(req model.ScheduleRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timerGen++
	gen := s.timerGen
	s.state.Next = req
	s.timer = time.AfterFunc(req.At.Sub(s.now()), func() {
		s.mu.Lock()
		stale := gen != s.timerGen
		s.mu.Unlock()
		if stale {
			return
		}
		s.enqueue(trigger{reason: req.Reason})
	})
}

// TriggerNow は通常サイクルを即座に実行するよう要求する。呼び出し元はブロックされない。
func (s *Scheduler) TriggerNow(reason string) {
	s.enqueue(trigger{reason: reason})
}

// TriggerInitial は初回（ブートストラップ）サイクルを要求する。
func (s *Scheduler) TriggerInitial() {
	s.enqueue(trigger{initial: true, reason: "initial"})
}

// NextRunAt は予約済みの次回実行時刻を返す。予約がない場合はゼロ値。
func (s *Scheduler) NextRunAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Next.At
}

// Snapshot はスケジューラの状態のコピーを返す。
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.state
	snap.Queued = s.pending != nil
	return snap
}

// enqueue はトリガーを待ち行列に積む。初回トリガーは通常トリガーより優先してまとめる。
func (s *Scheduler) enqueue(t trigger) {
	s.mu.Lock()
	if s.pending == nil || t.initial {
		s.pending = &t
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) takePending() *trigger {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.pending
	s.pending = nil
	if t != nil {
		s.state.Running = true
	}
	return t
}

// Start はワーカーループを起動する。コンテキストがキャンセルされるまでブロックする。
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("更新スケジューラを開始しました",
		slog.Duration("initial_backoff", s.config.InitialBackoff),
		slog.Duration("max_backoff", s.config.MaxBackoff),
	)

	for {
		select {
		case <-ctx.Done():
			s.stopTimer()
			s.logger.Info("更新スケジューラを停止しました")
			return
		case <-s.wake:
			t := s.takePending()
			if t == nil {
				continue
			}
			s.runCycle(ctx, *t)
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context, t trigger) {
	s.logger.Debug("更新サイクルを起動します",
		slog.String("reason", t.reason),
		slog.Bool("initial", t.initial),
	)

	var out pipeline.Outcome
	if t.initial {
		out = s.runner.RunInitial(ctx)
	} else {
		out = s.runner.Run(ctx)
	}

	if ctx.Err() != nil {
		s.mu.Lock()
		s.state.Running = false
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	s.state.Running = false
	s.state.LastCycleID = out.CycleID
	s.state.LastStatus = out.Status
	s.state.LastRunAt = s.now()
	s.state.LastError = ""
	if out.Err != nil {
		s.state.LastError = out.Err.Error()
	}

	req := model.ScheduleRequest{At: out.NextRunAt, Reason: ReasonInterval}
	if out.Status == pipeline.StatusPlaceholder {
		req.Reason = ReasonPlaceholderFollowUp
	}
	if out.Status == pipeline.StatusRetryableFailure || req.At.IsZero() {
		s.state.ConsecutiveFailures++
		delay := CalculateBackoff(s.state.ConsecutiveFailures-1, s.config.InitialBackoff, s.config.MaxBackoff)
		req = model.ScheduleRequest{At: s.now().Add(delay), Reason: ReasonRetryBackoff}
		s.logger.Warn("更新サイクルが失敗したため再試行を予約しました",
			slog.String("cycle_id", out.CycleID),
			slog.Int("consecutive_failures", s.state.ConsecutiveFailures),
			slog.Duration("backoff", delay),
		)
	} else {
		s.state.ConsecutiveFailures = 0
	}
	s.mu.Unlock()

	s.Schedule(req)
	s.logger.Info("次回の更新サイクルを予約しました",
		slog.String("cycle_id", out.CycleID),
		slog.String("status", string(out.Status)),
		slog.Time("next_run_at", req.At),
		slog.String("reason", req.Reason),
	)
}

func (s *Scheduler) stopTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerGen++
}
