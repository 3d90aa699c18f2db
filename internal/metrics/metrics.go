// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// カタログクライアントとパイプラインの両方から利用される。
type Collector struct {
	cycles          *prometheus.CounterVec
	cycleDuration   prometheus.Histogram
	catalogAttempts *prometheus.CounterVec
	httpStatus      *prometheus.CounterVec
	published       prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "biliwall_cycles_total",
			Help: "結果別の更新サイクル数",
		}, []string{"status"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "biliwall_cycle_duration_seconds",
			Help:    "更新サイクルの所要時間（秒）",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		catalogAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "biliwall_catalog_attempts_total",
			Help: "エンドポイント・結果別のカタログAPI試行数",
		}, []string{"endpoint", "result"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "biliwall_catalog_http_status_total",
			Help: "カタログAPIのHTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "biliwall_published_total",
			Help: "公開された作品の合計数",
		}),
	}

	reg.MustRegister(
		c.cycles,
		c.cycleDuration,
		c.catalogAttempts,
		c.httpStatus,
		c.published,
	)

	return c
}

// RecordCycle はサイクルの結果を記録する。
func (c *Collector) RecordCycle(status string) {
	c.cycles.WithLabelValues(status).Inc()
}

// RecordCycleDuration はサイクルの所要時間を記録する。
func (c *Collector) RecordCycleDuration(d time.Duration) {
	c.cycleDuration.Observe(d.Seconds())
}

// RecordPublished は作品の公開を記録する。
func (c *Collector) RecordPublished() {
	c.published.Inc()
}

// RecordCatalogAttempt はカタログAPIの1回の試行結果を記録する。
func (c *Collector) RecordCatalogAttempt(endpoint, result string) {
	c.catalogAttempts.WithLabelValues(endpoint, result).Inc()
}

// RecordCatalogHTTPStatus はカタログAPIのHTTPステータスコードを記録する。
func (c *Collector) RecordCatalogHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
