// Package catalog は壁紙カタログAPIのクライアントを提供する。
// 一覧・詳細エンドポイントの呼び出しと、呼び出し単位のリトライを含む。
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/biliwall/internal/model"
)

const (
	opList   = "list"
	opDetail = "detail"

	// maxBodySize はレスポンスボディの最大読み取りサイズ（5MB）。
	maxBodySize = 5 << 20
)

// AttemptRecorder はカタログAPI呼び出しの計測インターフェース。
type AttemptRecorder interface {
	RecordCatalogAttempt(endpoint, result string)
	RecordCatalogHTTPStatus(statusCode int)
}

// Config はClientの設定パラメータ。
type Config struct {
	BaseURL        string
	APIPath        string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	RetryAttempts  int
	// RateLimit は1秒あたりの最大リクエスト数。0以下は無制限。
	RateLimit float64
	UserAgent string
}

// DefaultConfig はデフォルトの設定を返す。
func DefaultConfig() Config {
	return Config{
		BaseURL:        "http://h.bilibili.com",
		APIPath:        "/wallpaperApi",
		ConnectTimeout: 5 * time.Second,
		ReadTimeout:    5 * time.Second,
		RetryAttempts:  defaultAttempts,
		RateLimit:      2,
		UserAgent:      "Biliwall/1.0",
	}
}

// NewHTTPClient は接続タイムアウトと読み取りタイムアウトを設定したHTTPクライアントを生成する。
// 1回の試行全体の上限は connect + read となる。
func NewHTTPClient(connectTimeout, readTimeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   connectTimeout,
		ResponseHeaderTimeout: readTimeout,
		MaxIdleConns:          4,
		IdleConnTimeout:       90 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   connectTimeout + readTimeout,
	}
}

// Client はカタログAPIのクライアント。
// 一覧・詳細の両エンドポイントに同じRetryPolicyを適用する。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	config     Config
	retry      RetryPolicy
	limiter    *rate.Limiter
	metrics    AttemptRecorder
}

// NewClient はClientの新しいインスタンスを生成する。
// metricsはnilでもよい。
func NewClient(httpClient *http.Client, logger *slog.Logger, config Config, metrics AttemptRecorder) *Client {
	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
	}
	attempts := config.RetryAttempts
	if attempts < 1 {
		attempts = defaultAttempts
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		config:     config,
		retry:      RetryPolicy{Attempts: attempts, Logger: logger},
		limiter:    rate.NewLimiter(limit, attempts),
		metrics:    metrics,
	}
}

// FetchList は一覧エンドポイントから作品リストを取得する。
// 先頭要素は上流フィードのプレースホルダーのため無条件に除去する。
// リストがnullの場合はmodel.ErrAbsentResponseを返す（空リストとは区別する）。
func (c *Client) FetchList(ctx context.Context, page int) ([]model.CatalogItem, error) {
	params := url.Values{}
	params.Set("action", "getOptions")
	params.Set("sort", "rate_number")
	params.Set("page", strconv.Itoa(page))

	var raw []json.RawMessage
	err := c.retry.Do(ctx, opList, func(ctx context.Context) error {
		r, err := c.get(ctx, opList, params)
		if err != nil {
			return err
		}
		raw = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("作品リストの取得に失敗しました: %w", err)
	}

	if raw == nil {
		return nil, model.ErrAbsentResponse
	}
	if len(raw) == 0 {
		return []model.CatalogItem{}, nil
	}

	// 先頭はバナー用のプレースホルダー（形式が異なるためデコードしない）
	items, err := decodeItems(raw[1:])
	if err != nil {
		return nil, err
	}

	c.logger.Debug("作品リストを取得しました",
		slog.Int("page", page),
		slog.Int("item_count", len(items)),
	)
	return items, nil
}

// FetchDetail は詳細エンドポイントから指定IDの作品を取得する。
// レスポンスには無関係な作品が含まれることがあるため、IDが一致する要素を線形探索する。
// 見つからない場合、またはリストがnullの場合はmodel.ErrNotFoundを返す。
func (c *Client) FetchDetail(ctx context.Context, id int64) (model.CatalogItem, error) {
	params := url.Values{}
	params.Set("action", "getDetail")
	params.Set("il_id", strconv.FormatInt(id, 10))

	var raw []json.RawMessage
	err := c.retry.Do(ctx, opDetail, func(ctx context.Context) error {
		r, err := c.get(ctx, opDetail, params)
		if err != nil {
			return err
		}
		raw = r
		return nil
	})
	if err != nil {
		return model.CatalogItem{}, fmt.Errorf("作品詳細の取得に失敗しました (id=%d): %w", id, err)
	}

	if raw == nil {
		return model.CatalogItem{}, fmt.Errorf("作品詳細のリストが存在しません (id=%d): %w", id, model.ErrNotFound)
	}

	items, err := decodeItems(raw)
	if err != nil {
		return model.CatalogItem{}, err
	}
	for _, item := range items {
		if item.ID == id {
			return item, nil
		}
	}

	return model.CatalogItem{}, fmt.Errorf("作品詳細に id=%d が含まれていません: %w", id, model.ErrNotFound)
}

// get はAPIを1回だけ呼び出し、JSON配列を要素単位のRawMessageとして返す。
// ボディがnullの場合はnilスライスを返す。
func (c *Client) get(ctx context.Context, op string, params url.Values) ([]json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqURL, err := url.Parse(c.config.BaseURL + c.config.APIPath)
	if err != nil {
		return nil, fmt.Errorf("エンドポイントURLのパースに失敗しました: %w", err)
	}
	reqURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.recordAttempt(op, "transport_error")
		return nil, &model.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	c.recordStatus(resp.StatusCode)

	switch ClassifyHTTPStatus(resp.StatusCode) {
	case StatusClassOK:
	case StatusClassRetry:
		c.recordAttempt(op, "transport_error")
		return nil, &model.TransportError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("HTTPステータス %d", resp.StatusCode),
		}
	default:
		c.recordAttempt(op, "error")
		c.logger.Error("カタログAPIがエラーステータスを返しました",
			slog.String("op", op),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("HTTPステータス %d: %w", resp.StatusCode, model.ErrUnexpectedStatus)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		c.recordAttempt(op, "transport_error")
		return nil, &model.TransportError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		c.recordAttempt(op, "error")
		c.logger.Error("カタログAPIのレスポンスのパースに失敗しました",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %v", model.ErrDecode, err)
	}

	c.recordAttempt(op, "ok")
	return raw, nil
}

func (c *Client) recordAttempt(op, result string) {
	if c.metrics != nil {
		c.metrics.RecordCatalogAttempt(op, result)
	}
}

func (c *Client) recordStatus(statusCode int) {
	if c.metrics != nil {
		c.metrics.RecordCatalogHTTPStatus(statusCode)
	}
}

// decodeItems は要素ごとに作品をデコードする。
func decodeItems(raw []json.RawMessage) ([]model.CatalogItem, error) {
	items := make([]model.CatalogItem, 0, len(raw))
	for i, r := range raw {
		var dto wallpaperDTO
		if err := json.Unmarshal(r, &dto); err != nil {
			return nil, fmt.Errorf("%w: 要素 %d: %v", model.ErrDecode, i, err)
		}
		items = append(items, dto.toModel())
	}
	return items, nil
}
