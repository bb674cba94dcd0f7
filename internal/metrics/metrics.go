// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// AIゲートウェイ、認証イベント、ニュースフェッチ、HTTPリクエストの計測先を兼ねる。
type Collector struct {
	aiRequests       *prometheus.CounterVec
	aiLatency        *prometheus.HistogramVec
	authEvents       *prometheus.CounterVec
	newsFetch        *prometheus.CounterVec
	newsFetchLatency prometheus.Histogram
	newsItems        *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpLatency      *prometheus.HistogramVec
	wsConnections    *prometheus.GaugeVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		aiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skillnest_ai_requests_total",
			Help: "AIゲートウェイ呼び出しの合計数",
		}, []string{"operation", "outcome"}),
		aiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "skillnest_ai_latency_seconds",
			Help:    "AIゲートウェイ呼び出しのレイテンシ（秒）",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}, []string{"operation"}),
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skillnest_auth_events_total",
			Help: "配信された認証状態変化イベントの合計数",
		}, []string{"type"}),
		newsFetch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skillnest_news_fetch_total",
			Help: "結果別のニュースフィードフェッチ数",
		}, []string{"outcome"}),
		newsFetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "skillnest_news_fetch_duration_seconds",
			Help:    "ニュースフィードフェッチのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		newsItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skillnest_news_items_upserted_total",
			Help: "保存されたニュース記事の合計数",
		}, []string{"kind"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skillnest_http_requests_total",
			Help: "ルート・ステータス別のHTTPリクエスト数",
		}, []string{"method", "route", "status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "skillnest_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		wsConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "skillnest_websocket_connections",
			Help: "接続中のwebsocket数",
		}, []string{"channel"}),
	}

	reg.MustRegister(
		c.aiRequests,
		c.aiLatency,
		c.authEvents,
		c.newsFetch,
		c.newsFetchLatency,
		c.newsItems,
		c.httpRequests,
		c.httpLatency,
		c.wsConnections,
	)

	return c
}

// RecordAIRequest はAIゲートウェイ呼び出しを記録する。
func (c *Collector) RecordAIRequest(operation, outcome string, duration time.Duration) {
	c.aiRequests.WithLabelValues(operation, outcome).Inc()
	c.aiLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordAuthEvent は認証状態変化イベントの配信を記録する。
func (c *Collector) RecordAuthEvent(eventType string) {
	c.authEvents.WithLabelValues(eventType).Inc()
}

// RecordNewsFetch はフィードフェッチの結果とレイテンシを記録する。
func (c *Collector) RecordNewsFetch(result string, duration time.Duration) {
	c.newsFetch.WithLabelValues(result).Inc()
	c.newsFetchLatency.Observe(duration.Seconds())
}

// RecordNewsItems は新規作成・更新された記事数を記録する。
func (c *Collector) RecordNewsItems(inserted, updated int) {
	c.newsItems.WithLabelValues("inserted").Add(float64(inserted))
	c.newsItems.WithLabelValues("updated").Add(float64(updated))
}

// TrackWebSocket は接続中のwebsocket数を1増やし、切断時に呼ぶ関数を返す。
func (c *Collector) TrackWebSocket(channel string) func() {
	g := c.wsConnections.WithLabelValues(channel)
	g.Inc()
	return g.Dec
}

// statusWriter はレスポンスのステータスコードを記録する。
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// Unwrap はwebsocketアップグレード時に元のResponseWriterへ到達できるようにする。
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Middleware はHTTPリクエスト数と処理時間を記録するミドルウェアを返す。
// ラベルにはパスではなくchiのルートパターンを使い、カーディナリティを抑える。
func (c *Collector) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w}

			next.ServeHTTP(sw, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					route = p
				}
			}
			status := sw.status
			if status == 0 {
				status = http.StatusOK
			}
			c.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
			c.httpLatency.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
