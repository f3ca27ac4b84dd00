// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPRecorder はHTTPレスポンスのメトリクスを記録するインターフェース。
// ロギングミドルウェアから利用する。
type HTTPRecorder interface {
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
// content.Recorder、unread.CacheRecorder、HTTPRecorderを満たす。
type Collector struct {
	mutations      *prometheus.CounterVec
	conflicts      *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
	unreadCache    *prometheus.CounterVec
	requestLatency prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "changelog_post_mutations_total",
			Help: "操作種別ごとの投稿書き込み成功数",
		}, []string{"action"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "changelog_post_conflicts_total",
			Help: "原因別の書き込み競合数",
		}, []string{"reason"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "changelog_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		unreadCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "changelog_unread_cache_total",
			Help: "未読判定キャッシュの参照結果",
		}, []string{"result"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "changelog_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.mutations,
		c.conflicts,
		c.httpStatus,
		c.unreadCache,
		c.requestLatency,
	)

	return c
}

// RecordMutation は投稿の書き込み成功を記録する。
func (c *Collector) RecordMutation(action string) {
	c.mutations.WithLabelValues(action).Inc()
}

// RecordConflict は書き込み競合を記録する。
func (c *Collector) RecordConflict(reason string) {
	c.conflicts.WithLabelValues(reason).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストの処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordUnreadCache は未読判定キャッシュの参照結果（hit, miss, error, invalidated）を記録する。
func (c *Collector) RecordUnreadCache(result string) {
	c.unreadCache.WithLabelValues(result).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
