// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ワーカーやサービス層から利用する。
type MetricsCollector interface {
	RecordFetchSuccess(sourceID string)
	RecordFetchFailure(sourceID string, reason string)
	RecordParseFailure(sourceID string)
	RecordHTTPStatus(statusCode int)
	RecordFetchLatency(duration time.Duration)
	RecordArticlesUpserted(count int)
	RecordFeedQuery(sort string, duration time.Duration)
	RecordLikeToggle()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	fetchSuccess     prometheus.Counter
	fetchFail        prometheus.Counter
	parseFail        prometheus.Counter
	httpStatus       *prometheus.CounterVec
	fetchLatency     prometheus.Histogram
	articlesUpserted prometheus.Counter
	feedQueryLatency *prometheus.HistogramVec
	likeToggles      prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		fetchSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soticle_fetch_success_total",
			Help: "ソースフェッチ成功の合計数",
		}),
		fetchFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soticle_fetch_fail_total",
			Help: "ソースフェッチ失敗の合計数",
		}),
		parseFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soticle_parse_fail_total",
			Help: "フィードパース失敗の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "soticle_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "soticle_fetch_latency_seconds",
			Help:    "ソースフェッチのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		articlesUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soticle_articles_upserted_total",
			Help: "アップサートされた記事の合計数",
		}),
		feedQueryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "soticle_feed_query_duration_seconds",
			Help:    "フィード問い合わせの処理時間（秒）。並び順別。",
			Buckets: prometheus.DefBuckets,
		}, []string{"sort"}),
		likeToggles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soticle_like_toggles_total",
			Help: "いいねトグル操作の合計数",
		}),
	}

	reg.MustRegister(
		c.fetchSuccess,
		c.fetchFail,
		c.parseFail,
		c.httpStatus,
		c.fetchLatency,
		c.articlesUpserted,
		c.feedQueryLatency,
		c.likeToggles,
	)

	return c
}

// RecordFetchSuccess はフェッチ成功を記録する。
func (c *Collector) RecordFetchSuccess(sourceID string) {
	c.fetchSuccess.Inc()
}

// RecordFetchFailure はフェッチ失敗を記録する。
func (c *Collector) RecordFetchFailure(sourceID string, reason string) {
	c.fetchFail.Inc()
}

// RecordParseFailure はパース失敗を記録する。
func (c *Collector) RecordParseFailure(sourceID string) {
	c.parseFail.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordFetchLatency はフェッチのレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordArticlesUpserted はアップサートされた記事数を記録する。
func (c *Collector) RecordArticlesUpserted(count int) {
	c.articlesUpserted.Add(float64(count))
}

// RecordFeedQuery はフィード問い合わせの処理時間を並び順別に記録する。
func (c *Collector) RecordFeedQuery(sort string, duration time.Duration) {
	c.feedQueryLatency.WithLabelValues(sort).Observe(duration.Seconds())
}

// RecordLikeToggle はいいねトグル操作を記録する。
func (c *Collector) RecordLikeToggle() {
	c.likeToggles.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
