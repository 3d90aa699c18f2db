package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/biliwall/internal/model"
)

// webhookPayload はWebhookに送信するJSONボディ。
type webhookPayload struct {
	Event   string                 `json:"event"`
	Artwork model.PublishedArtwork `json:"artwork"`
}

// WebhookSink は公開された作品をJSONでWebhookにPOSTする。
type WebhookSink struct {
	httpClient *http.Client
	logger     *slog.Logger
	url        string
	userAgent  string
}

// NewWebhookSink はWebhookSinkの新しいインスタンスを生成する。
// httpClientにはSSRF防止機能付きのクライアントを渡すことを想定する。
func NewWebhookSink(httpClient *http.Client, logger *slog.Logger, url, userAgent string) *WebhookSink {
	return &WebhookSink{
		httpClient: httpClient,
		logger:     logger,
		url:        url,
		userAgent:  userAgent,
	}
}

// Publish は作品をWebhookに送信する。2xx以外のステータスはエラーとする。
func (s *WebhookSink) Publish(ctx context.Context, artwork model.PublishedArtwork) error {
	body, err := json.Marshal(webhookPayload{Event: "artwork.published", Artwork: artwork})
	if err != nil {
		return fmt.Errorf("Webhookペイロードのエンコードに失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Error("Webhookの呼び出しに失敗しました",
			slog.String("artwork_id", artwork.ID),
			slog.String("error", err.Error()),
		)
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.logger.Error("Webhookがエラーステータスを返しました",
			slog.String("artwork_id", artwork.ID),
			slog.Int("http_status", resp.StatusCode),
		)
		return fmt.Errorf("Webhookがステータス %d を返しました", resp.StatusCode)
	}
	return nil
}
