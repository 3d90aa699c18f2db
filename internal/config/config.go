package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ストアドライバ
const (
	StoreDriverBolt     = "bolt"
	StoreDriverPostgres = "postgres"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Catalog
	CatalogBaseURL        string
	CatalogAPIPath        string
	CatalogDetailURLBase  string
	CatalogPage           int
	CatalogConnectTimeout time.Duration
	CatalogReadTimeout    time.Duration
	CatalogRetryAttempts  int
	CatalogRateLimit      float64

	// Schedule
	UpdateInterval      time.Duration
	PlaceholderDelay    time.Duration
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration

	// Display / Placeholder
	DisplayMinHeight    int
	PlaceholderPath     string
	AttributionTimezone string

	// Store
	StoreDriver string
	StorePath   string
	DatabaseURL string

	// Publish
	PublishWebhookURL string

	// Server
	ServerPort       string
	RefreshRateLimit int

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// STORE_DRIVERが不正な場合、postgres指定でDATABASE_URLが未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.CatalogBaseURL = strings.TrimRight(getEnvString("CATALOG_BASE_URL", "http://h.bilibili.com"), "/")
	cfg.CatalogAPIPath = getEnvString("CATALOG_API_PATH", "/wallpaperApi")
	cfg.CatalogDetailURLBase = getEnvString("CATALOG_DETAIL_URL_BASE", "http://h.bilibili.com/wallpaper?action=detail&il_id=")
	cfg.CatalogPage = getEnvInt("CATALOG_PAGE", 1)
	cfg.CatalogConnectTimeout = getEnvDuration("CATALOG_CONNECT_TIMEOUT", 5*time.Second)
	cfg.CatalogReadTimeout = getEnvDuration("CATALOG_READ_TIMEOUT", 5*time.Second)
	cfg.CatalogRetryAttempts = getEnvInt("CATALOG_RETRY_ATTEMPTS", 3)
	cfg.CatalogRateLimit = getEnvFloat("CATALOG_RATE_LIMIT", 2)

	cfg.UpdateInterval = getEnvDuration("UPDATE_INTERVAL", 3*time.Hour)
	cfg.PlaceholderDelay = getEnvDuration("PLACEHOLDER_DELAY", 15*time.Minute)
	cfg.RetryInitialBackoff = getEnvDuration("RETRY_INITIAL_BACKOFF", 30*time.Second)
	cfg.RetryMaxBackoff = getEnvDuration("RETRY_MAX_BACKOFF", 3*time.Hour)

	cfg.DisplayMinHeight = getEnvInt("DISPLAY_MIN_HEIGHT", 1080)
	cfg.PlaceholderPath = getEnvString("PLACEHOLDER_PATH", "")
	cfg.AttributionTimezone = getEnvString("ATTRIBUTION_TIMEZONE", "Local")

	cfg.StoreDriver = strings.ToLower(getEnvString("STORE_DRIVER", StoreDriverBolt))
	cfg.StorePath = getEnvString("STORE_PATH", "data/biliwall.db")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	cfg.PublishWebhookURL = getEnvString("PUBLISH_WEBHOOK_URL", "")

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.RefreshRateLimit = getEnvInt("REFRESH_RATE_LIMIT", 6)

	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	switch cfg.StoreDriver {
	case StoreDriverBolt:
	case StoreDriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("required environment variables are not set: %v", []string{"DATABASE_URL"})
		}
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER: %q (allowed: %s, %s)", cfg.StoreDriver, StoreDriverBolt, StoreDriverPostgres)
	}

	if cfg.CatalogRetryAttempts < 1 {
		cfg.CatalogRetryAttempts = 1
	}

	return cfg, nil
}

// Location はATTRIBUTION_TIMEZONEを解決する。解決できない場合はUTCを返す。
func (c *Config) Location() *time.Location {
	if c.AttributionTimezone == "" || c.AttributionTimezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.AttributionTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
