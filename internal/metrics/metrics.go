// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 生成呼び出しの結果ラベル
const (
	OutcomeSuccess      = "success"
	OutcomeValidation   = "validation"
	OutcomeThrottled    = "throttled"
	OutcomeTimeout      = "timeout"
	OutcomeUnauthorized = "unauthorized"
	OutcomeRateLimited  = "rate_limited"
	OutcomeUpstream     = "upstream_error"
	OutcomeParse        = "parse_error"
	OutcomeNormalize    = "normalize_error"
)

// 整合性異常の種別ラベル
const (
	AnomalyDanglingLesson = "dangling_lesson_ref"
	AnomalyDanglingModule = "dangling_module_ref"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層・HTTP層・ワーカーから利用する。
type MetricsCollector interface {
	RecordGeneration(outcome string)
	RecordGenerationLatency(duration time.Duration)
	RecordConsistencyAnomaly(kind string)
	RecordCascadeFailure(operation string)
	RecordReferencesRepaired(count int)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	generations       *prometheus.CounterVec
	generationLatency prometheus.Histogram
	anomalies         *prometheus.CounterVec
	cascadeFailures   *prometheus.CounterVec
	repaired          prometheus.Counter
	httpStatus        *prometheus.CounterVec
}

// コンパイル時にインターフェースの実装を検証する。
var _ MetricsCollector = (*Collector)(nil)

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursegpt_generation_requests_total",
			Help: "レッスン生成リクエストの結果別合計数",
		}, []string{"outcome"}),
		generationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "coursegpt_generation_latency_seconds",
			Help:    "生成API呼び出しのレイテンシ（秒）",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 45, 60, 90},
		}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursegpt_consistency_anomalies_total",
			Help: "解決できない参照（整合性異常）の検出数",
		}, []string{"kind"}),
		cascadeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursegpt_cascade_partial_failures_total",
			Help: "途中で失敗したカスケード処理の数",
		}, []string{"operation"}),
		repaired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coursegpt_references_repaired_total",
			Help: "整合性スイープで除去した参照の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursegpt_http_responses_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.generations,
		c.generationLatency,
		c.anomalies,
		c.cascadeFailures,
		c.repaired,
		c.httpStatus,
	)

	return c
}

// RecordGeneration は生成リクエストの結果を記録する。
func (c *Collector) RecordGeneration(outcome string) {
	c.generations.WithLabelValues(outcome).Inc()
}

// RecordGenerationLatency は生成API呼び出しのレイテンシを記録する。
func (c *Collector) RecordGenerationLatency(duration time.Duration) {
	c.generationLatency.Observe(duration.Seconds())
}

// RecordConsistencyAnomaly は整合性異常の検出を記録する。
func (c *Collector) RecordConsistencyAnomaly(kind string) {
	c.anomalies.WithLabelValues(kind).Inc()
}

// RecordCascadeFailure はカスケード処理の部分失敗を記録する。
func (c *Collector) RecordCascadeFailure(operation string) {
	c.cascadeFailures.WithLabelValues(operation).Inc()
}

// RecordReferencesRepaired は除去した参照数を記録する。
func (c *Collector) RecordReferencesRepaired(count int) {
	c.repaired.Add(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使用する。
type Nop struct{}

var _ MetricsCollector = Nop{}

func (Nop) RecordGeneration(string) {}
func (Nop) RecordGenerationLatency(time.Duration) {}
func (Nop) RecordConsistencyAnomaly(string) {}
func (Nop) RecordCascadeFailure(string) {}
func (Nop) RecordReferencesRepaired(int) {}
func (Nop) RecordHTTPStatus(int) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
