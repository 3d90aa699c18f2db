package update

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/biliwall/internal/model"
	"github.com/hitoshi/biliwall/internal/pipeline"
)

// --- モック定義 ---

// mockRunner はCycleRunnerのテスト用モック。
type mockRunner struct {
	runFunc        func(ctx context.Context) pipeline.Outcome
	runInitialFunc func(ctx context.Context) pipeline.Outcome
	runs           atomic.Int32
	initialRuns    atomic.Int32
}

func (m *mockRunner) Run(ctx context.Context) pipeline.Outcome {
	m.runs.Add(1)
	if m.runFunc != nil {
		return m.runFunc(ctx)
	}
	return pipeline.Outcome{Status: pipeline.StatusPublished, NextRunAt: time.Now().Add(time.Hour)}
}

func (m *mockRunner) RunInitial(ctx context.Context) pipeline.Outcome {
	m.initialRuns.Add(1)
	if m.runInitialFunc != nil {
		return m.runInitialFunc(ctx)
	}
	return pipeline.Outcome{Status: pipeline.StatusPlaceholder, NextRunAt: time.Now().Add(15 * time.Minute)}
}

// --- ヘルパー ---

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func startScheduler(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("条件が時間内に満たされませんでした")
}

// --- テスト ---

func TestScheduler_TriggerNowRunsCycle(t *testing.T) {
	runner := &mockRunner{}
	var buf bytes.Buffer
	s := NewScheduler(runner, newTestLogger(&buf), Config{})
	startScheduler(t, s)

	s.TriggerNow("test")

	waitFor(t, func() bool { return runner.runs.Load() == 1 })
	waitFor(t, func() bool { return !s.NextRunAt().IsZero() })
	if runner.initialRuns.Load() != 0 {
		t.Errorf("初回サイクルは実行されないべき: %d", runner.initialRuns.Load())
	}
}

func TestScheduler_CoalescesTriggersDuringCycle(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	runner := &mockRunner{}
	var calls atomic.Int32
	runner.runFunc = func(ctx context.Context) pipeline.Outcome {
		if calls.Add(1) == 1 {
			close(started)
			<-release
		}
		return pipeline.Outcome{Status: pipeline.StatusPublished, NextRunAt: time.Now().Add(time.Hour)}
	}
	var buf bytes.Buffer
	s := NewScheduler(runner, newTestLogger(&buf), Config{})
	startScheduler(t, s)

	s.TriggerNow("first")
	<-started

	// 実行中のトリガーは呼び出し元をブロックせず、1つにまとめられる
	for i := 0; i < 3; i++ {
		s.TriggerNow("refresh")
	}
	if !s.Snapshot().Queued {
		t.Error("実行中のトリガーは待ち行列に積まれるべき")
	}
	close(release)

	waitFor(t, func() bool { return runner.runs.Load() == 2 })
	time.Sleep(50 * time.Millisecond)
	if got := runner.runs.Load(); got != 2 {
		t.Errorf("実行回数 = %d, want 2", got)
	}
}

func TestScheduler_InitialTriggerWinsCoalescing(t *testing.T) {
	runner := &mockRunner{}
	var buf bytes.Buffer
	s := NewScheduler(runner, newTestLogger(&buf), Config{})

	s.TriggerNow("refresh")
	s.TriggerInitial()
	s.TriggerNow("refresh")
	startScheduler(t, s)

	waitFor(t, func() bool { return runner.initialRuns.Load() == 1 })
	time.Sleep(50 * time.Millisecond)
	if got := runner.runs.Load(); got != 0 {
		t.Errorf("通常サイクルの実行回数 = %d, want 0", got)
	}
}

func TestScheduler_ScheduleAtReplacesPendingTimer(t *testing.T) {
	runner := &mockRunner{}
	var buf bytes.Buffer
	s := NewScheduler(runner, newTestLogger(&buf), Config{})
	startScheduler(t, s)

	s.ScheduleAt(time.Now().Add(30 * time.Millisecond))
	far := time.Now().Add(time.Hour)
	s.ScheduleAt(far)

	time.Sleep(100 * time.Millisecond)
	if got := runner.runs.Load(); got != 0 {
		t.Errorf("置き換えられたタイマーが発火した: 実行回数 = %d", got)
	}
	if !s.NextRunAt().Equal(far) {
		t.Errorf("NextRunAt = %v, want %v", s.NextRunAt(), far)
	}

	s.ScheduleAt(time.Now().Add(10 * time.Millisecond))
	waitFor(t, func() bool { return runner.runs.Load() == 1 })
}

func TestScheduler_BackoffOnFailureAndResetOnSuccess(t *testing.T) {
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	succeedAt := now.Add(3 * time.Hour)
	var fail atomic.Bool
	fail.Store(true)
	runner := &mockRunner{}
	var cycle atomic.Int32
	runner.runFunc = func(context.Context) pipeline.Outcome {
		id := string(rune('a' + cycle.Add(1)))
		if fail.Load() {
			return pipeline.Outcome{CycleID: id, Status: pipeline.StatusRetryableFailure, Err: errors.New("boom")}
		}
		return pipeline.Outcome{CycleID: id, Status: pipeline.StatusPublished, NextRunAt: succeedAt}
	}
	var buf bytes.Buffer
	s := NewScheduler(runner, newTestLogger(&buf), Config{InitialBackoff: time.Hour, MaxBackoff: 4 * time.Hour})
	s.now = func() time.Time { return now }
	startScheduler(t, s)

	s.TriggerNow("test")
	waitFor(t, func() bool { return s.NextRunAt().Equal(now.Add(time.Hour)) })
	snap := s.Snapshot()
	if snap.Next.Reason != ReasonRetryBackoff {
		t.Errorf("Next.Reason = %q, want %q", snap.Next.Reason, ReasonRetryBackoff)
	}
	if snap.ConsecutiveFailures != 1 {
		t.Errorf("ConsecutiveFailures = %d, want 1", snap.ConsecutiveFailures)
	}
	if snap.LastStatus != pipeline.StatusRetryableFailure || snap.LastError != "boom" {
		t.Errorf("LastStatus = %q, LastError = %q", snap.LastStatus, snap.LastError)
	}

	s.TriggerNow("test")
	waitFor(t, func() bool { return s.NextRunAt().Equal(now.Add(2 * time.Hour)) })

	fail.Store(false)
	s.TriggerNow("test")
	waitFor(t, func() bool { return s.NextRunAt().Equal(succeedAt) })
	if got := s.Snapshot().ConsecutiveFailures; got != 0 {
		t.Errorf("成功後のConsecutiveFailures = %d, want 0", got)
	}
	if got := s.Snapshot().Next.Reason; got != ReasonInterval {
		t.Errorf("成功後のNext.Reason = %q, want %q", got, ReasonInterval)
	}
}

func TestScheduler_PlaceholderSchedulesFollowUp(t *testing.T) {
	runner := &mockRunner{}
	var buf bytes.Buffer
	s := NewScheduler(runner, newTestLogger(&buf), Config{})
	startScheduler(t, s)

	s.TriggerInitial()
	waitFor(t, func() bool { return s.Snapshot().Next.Reason == ReasonPlaceholderFollowUp })
	if s.NextRunAt().IsZero() {
		t.Error("プレースホルダー公開後は続きのサイクルが予約されるべき")
	}
}

func TestScheduler_ScheduleFiresWithRequestReason(t *testing.T) {
	runner := &mockRunner{}
	var buf bytes.Buffer
	s := NewScheduler(runner, newTestLogger(&buf), Config{})
	startScheduler(t, s)

	s.Schedule(model.ScheduleRequest{At: time.Now().Add(10 * time.Millisecond), Reason: "custom"})
	if got := s.Snapshot().Next.Reason; got != "custom" {
		t.Errorf("Next.Reason = %q, want custom", got)
	}
	waitFor(t, func() bool { return runner.runs.Load() == 1 })
}

func TestScheduler_StopsOnContextCancel(t *testing.T) {
	runner := &mockRunner{}
	var buf bytes.Buffer
	s := NewScheduler(runner, newTestLogger(&buf), Config{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()
	s.ScheduleAt(time.Now().Add(time.Hour))
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("コンテキストキャンセル後にStartが戻りませんでした")
	}
}

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		failures int
		want     time.Duration
	}{
		{0, 30 * time.Second},
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{20, 3 * time.Hour},
	}
	for _, tt := range tests {
		got := CalculateBackoff(tt.failures, 30*time.Second, 3*time.Hour)
		if got != tt.want {
			t.Errorf("CalculateBackoff(%d) = %v, want %v", tt.failures, got, tt.want)
		}
	}
}

func TestCalculateBackoff_Defaults(t *testing.T) {
	if got := CalculateBackoff(0, 0, 0); got != defaultInitialBackoff {
		t.Errorf("CalculateBackoff(0, 0, 0) = %v, want %v", got, defaultInitialBackoff)
	}
}
