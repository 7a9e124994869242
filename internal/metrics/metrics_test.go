package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric はレジストリから指定名・ラベルのメトリクスを探す。
func findMetric(t *testing.T, reg *prometheus.Registry, name, labelName, labelValue string) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelName == "" {
				return m
			}
			for _, lp := range m.GetLabel() {
				if lp.GetName() == labelName && lp.GetValue() == labelValue {
					return m
				}
			}
		}
	}
	t.Fatalf("metric %s{%s=%q} not found", name, labelName, labelValue)
	return nil
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	if c := NewCollector(reg); c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordGeneration_CountsByOutcome は生成結果がラベル別に集計されることを検証する。
func TestRecordGeneration_CountsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordGeneration(OutcomeSuccess)
	c.RecordGeneration(OutcomeSuccess)
	c.RecordGeneration(OutcomeTimeout)

	m := findMetric(t, reg, "coursegpt_generation_requests_total", "outcome", OutcomeSuccess)
	if got := m.GetCounter().GetValue(); got != 2 {
		t.Errorf("success = %v, want 2", got)
	}
	m = findMetric(t, reg, "coursegpt_generation_requests_total", "outcome", OutcomeTimeout)
	if got := m.GetCounter().GetValue(); got != 1 {
		t.Errorf("timeout = %v, want 1", got)
	}
}

// TestRecordGenerationLatency_Observes はレイテンシがヒストグラムに記録されることを検証する。
func TestRecordGenerationLatency_Observes(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordGenerationLatency(1500 * time.Millisecond)

	m := findMetric(t, reg, "coursegpt_generation_latency_seconds", "", "")
	if got := m.GetHistogram().GetSampleCount(); got != 1 {
		t.Errorf("sample count = %d, want 1", got)
	}
	if got := m.GetHistogram().GetSampleSum(); got != 1.5 {
		t.Errorf("sample sum = %v, want 1.5", got)
	}
}

// TestRecordConsistencyAnomaly_CountsByKind は整合性異常が種別ごとに集計されることを検証する。
func TestRecordConsistencyAnomaly_CountsByKind(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordConsistencyAnomaly(AnomalyDanglingLesson)
	c.RecordConsistencyAnomaly(AnomalyDanglingLesson)
	c.RecordConsistencyAnomaly(AnomalyDanglingModule)

	m := findMetric(t, reg, "coursegpt_consistency_anomalies_total", "kind", AnomalyDanglingLesson)
	if got := m.GetCounter().GetValue(); got != 2 {
		t.Errorf("dangling_lesson_ref = %v, want 2", got)
	}
}

// TestRecordCascadeFailure_IncrementsCounter はカスケード部分失敗が記録されることを検証する。
func TestRecordCascadeFailure_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCascadeFailure("delete_module")

	m := findMetric(t, reg, "coursegpt_cascade_partial_failures_total", "operation", "delete_module")
	if got := m.GetCounter().GetValue(); got != 1 {
		t.Errorf("cascade failures = %v, want 1", got)
	}
}

// TestRecordReferencesRepaired_AddsCount は除去件数が加算されることを検証する。
func TestRecordReferencesRepaired_AddsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordReferencesRepaired(3)
	c.RecordReferencesRepaired(2)

	m := findMetric(t, reg, "coursegpt_references_repaired_total", "", "")
	if got := m.GetCounter().GetValue(); got != 5 {
		t.Errorf("repaired = %v, want 5", got)
	}
}

// TestRecordHTTPStatus_IncrementsCounterWithLabel はHTTPステータスカウンタがラベル付きで増加することを検証する。
func TestRecordHTTPStatus_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(404)

	m := findMetric(t, reg, "coursegpt_http_responses_total", "status_code", "200")
	if got := m.GetCounter().GetValue(); got != 2 {
		t.Errorf("status 200 = %v, want 2", got)
	}
	m = findMetric(t, reg, "coursegpt_http_responses_total", "status_code", "404")
	if got := m.GetCounter().GetValue(); got != 1 {
		t.Errorf("status 404 = %v, want 1", got)
	}
}

// TestNop_DoesNotPanic はNopがどの呼び出しでもパニックしないことを検証する。
func TestNop_DoesNotPanic(t *testing.T) {
	var c MetricsCollector = Nop{}
	c.RecordGeneration(OutcomeSuccess)
	c.RecordGenerationLatency(time.Second)
	c.RecordConsistencyAnomaly(AnomalyDanglingModule)
	c.RecordCascadeFailure("delete_lesson")
	c.RecordReferencesRepaired(1)
	c.RecordHTTPStatus(500)
}
