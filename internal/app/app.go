package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/biliwall/internal/config"
	"github.com/hitoshi/biliwall/internal/database"
	"github.com/hitoshi/biliwall/internal/handler"
	"github.com/hitoshi/biliwall/internal/logger"
	"github.com/hitoshi/biliwall/internal/middleware"
	"github.com/hitoshi/biliwall/internal/model"
	"github.com/hitoshi/biliwall/internal/pipeline"
)

const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// .envがあれば環境変数に読み込み、JSON構造化ログをセットアップしてからConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 既に設定済みの環境変数は上書きされない
	envErr := godotenv.Load()

	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))
	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		slog.Warn("failed to load .env, continuing with process environment",
			slog.String("error", envErr.Error()),
		)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を、stdoutにはonceコマンドの結果出力先を渡す。
func Run(w io.Writer, stdout io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("store_driver", cfg.StoreDriver),
		slog.String("catalog_base_url", cfg.CatalogBaseURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandOnce:
		return runOnce(ctx, cfg, stdout)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runDaemon(ctx, cfg)
	}
}

// runDaemon はスケジューラとHTTPサーバーを起動し、シグナル受信まで常駐する。
func runDaemon(ctx context.Context, cfg *config.Config) error {
	c, err := build(cfg, slog.Default())
	if err != nil {
		return err
	}
	defer c.close()

	ln, err := net.Listen("tcp", ":"+cfg.ServerPort)
	if err != nil {
		return fmt.Errorf("failed to listen on port %s: %w", cfg.ServerPort, err)
	}
	return serve(ctx, c, ln)
}

// serve は状態を復元し、初回サイクルを要求した上で、スケジューラとHTTPサーバーをerrgroupで監視する。
// ctxがキャンセルされるとHTTPサーバーをグレースフルに停止し、最後に状態を保存する。
func serve(ctx context.Context, c *components, ln net.Listener) error {
	c.loadState(ctx)

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:         c.logger,
		Current:        c.holder,
		Scheduler:      c.scheduler,
		RefreshLimiter: middleware.NewRefreshLimiter(float64(c.cfg.RefreshRateLimit), 1, c.logger),
		Gatherer:       c.registry,
	})
	server := &http.Server{
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		c.scheduler.Start(gctx)
		return nil
	})

	g.Go(func() error {
		c.logger.Info("HTTP server starting", slog.String("addr", ln.Addr().String()))
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		c.logger.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	c.scheduler.TriggerInitial()

	err := g.Wait()
	c.saveState(ctx)
	if err != nil {
		return err
	}
	c.logger.Info("stopped gracefully")
	return nil
}

// onceResult はonceコマンドの出力。
type onceResult struct {
	CycleID   string                  `json:"cycle_id"`
	Status    pipeline.Status         `json:"status"`
	Artwork   *model.PublishedArtwork `json:"artwork,omitempty"`
	NextRunAt *time.Time              `json:"next_run_at,omitempty"`
	Error     string                  `json:"error,omitempty"`
}

// runOnce は通常サイクルを1回だけ実行し、結果をJSONでstdoutに出力する。
// サイクルが失敗した場合はエラーを返す（終了コードに反映される）。
func runOnce(ctx context.Context, cfg *config.Config, stdout io.Writer) error {
	c, err := build(cfg, slog.Default())
	if err != nil {
		return err
	}
	defer c.close()

	c.loadState(ctx)
	out := c.pipeline.Run(ctx)
	c.saveState(ctx)

	res := onceResult{CycleID: out.CycleID, Status: out.Status, Artwork: out.Artwork}
	if !out.NextRunAt.IsZero() {
		res.NextRunAt = &out.NextRunAt
	}
	if out.Err != nil {
		res.Error = out.Err.Error()
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}

	if out.Status == pipeline.StatusRetryableFailure {
		return fmt.Errorf("update cycle failed: %w", out.Err)
	}
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
func runMigrate(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for migrate")
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	at := strings.LastIndex(url, "@")
	scheme := strings.Index(url, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return "***"
	}
	return url[:scheme+3] + "***" + url[at:]
}
