package monitoring

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestCountersAccumulate(t *testing.T) {
	mc := NewMetricsCollector()

	mc.IncrCounter("predictions_total", 1, map[string]string{"species": "setosa"})
	mc.IncrCounter("predictions_total", 1, map[string]string{"species": "setosa"})
	mc.IncrCounter("predictions_total", 1, map[string]string{"species": "virginica"})

	if got := mc.CounterValue("predictions_total", map[string]string{"species": "setosa"}); got != 2 {
		t.Errorf("expected setosa counter 2, got %v", got)
	}
	if got := mc.CounterValue("predictions_total", map[string]string{"species": "virginica"}); got != 1 {
		t.Errorf("expected virginica counter 1, got %v", got)
	}
	if got := mc.CounterValue("predictions_total", map[string]string{"species": "versicolor"}); got != 0 {
		t.Errorf("expected missing series to read 0, got %v", got)
	}
}

func TestGaugeKeepsLastValue(t *testing.T) {
	mc := NewMetricsCollector()

	mc.SetGauge("model_loaded", 0, nil)
	mc.SetGauge("model_loaded", 1, nil)

	if got := mc.GaugeValue("model_loaded", nil); got != 1 {
		t.Errorf("expected gauge 1, got %v", got)
	}
}

func TestLatencySummary(t *testing.T) {
	mc := NewMetricsCollector()

	mc.ObserveLatency("predict_latency", 1*time.Millisecond)
	mc.ObserveLatency("predict_latency", 2*time.Millisecond)
	mc.ObserveLatency("predict_latency", 3*time.Millisecond)

	summary := mc.LatencySummary("predict_latency")
	if summary["count"] != 3 {
		t.Fatalf("expected count 3, got %v", summary["count"])
	}
	if summary["min_ms"] != 1 || summary["max_ms"] != 3 {
		t.Errorf("expected min 1 / max 3, got %v / %v", summary["min_ms"], summary["max_ms"])
	}
	if summary["avg_ms"] != 2 {
		t.Errorf("expected avg 2, got %v", summary["avg_ms"])
	}

	empty := mc.LatencySummary("unknown")
	if empty["count"] != 0 {
		t.Errorf("expected empty summary, got %v", empty)
	}
}

func TestLatencyWindowTrims(t *testing.T) {
	mc := NewMetricsCollector()

	for i := 0; i < 1001; i++ {
		mc.ObserveLatency("predict_latency", time.Millisecond)
	}
	summary := mc.LatencySummary("predict_latency")
	if summary["count"] != 100 {
		t.Fatalf("expected window trimmed to 100, got %v", summary["count"])
	}
}

func TestExportPrometheus(t *testing.T) {
	mc := NewMetricsCollector()
	mc.SetHelp("predictions_total", "Predictions served by species")

	mc.IncrCounter("predictions_total", 2, map[string]string{"species": "setosa"})
	mc.SetGauge("model_loaded", 1, nil)

	out := mc.ExportPrometheus()

	for _, want := range []string{
		"# HELP predictions_total Predictions served by species",
		"# TYPE predictions_total counter",
		`predictions_total{species="setosa"} 2`,
		"# TYPE model_loaded gauge",
		"model_loaded 1",
		"# TYPE process_goroutines gauge",
		"process_uptime_seconds",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("export missing %q:\n%s", want, out)
		}
	}
}

func TestExportJSON(t *testing.T) {
	mc := NewMetricsCollector()
	mc.IncrCounter("requests_total", 1, nil)
	mc.ObserveLatency("predict_latency", time.Millisecond)

	out, err := mc.ExportJSON()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var snapshot map[string]interface{}
	if err := json.Unmarshal([]byte(out), &snapshot); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	for _, key := range []string{"counters", "gauges", "latencies", "uptime"} {
		if _, ok := snapshot[key]; !ok {
			t.Errorf("snapshot missing %q", key)
		}
	}
}

func TestLabelKeyDeterministic(t *testing.T) {
	a := labelKey(map[string]string{"b": "2", "a": "1"})
	if a != `{a="1",b="2"}` {
		t.Errorf("unexpected label key %q", a)
	}
	if labelKey(nil) != "" {
		t.Errorf("expected empty key for nil labels")
	}
}
