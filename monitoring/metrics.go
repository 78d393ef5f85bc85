// Package monitoring collects service metrics and streams prediction events.
package monitoring

import (
	"encoding/json"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// MetricsCollector accumulates counters, gauges, and latency samples.
// Counters only ever grow; gauges hold the last set value; latency samples
// keep a bounded recent window.
type MetricsCollector struct {
	mu        sync.RWMutex
	counters  map[string]map[string]float64
	gauges    map[string]map[string]float64
	latencies map[string][]float64
	help      map[string]string

	startTime time.Time
}

// NewMetricsCollector creates an empty collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		counters:  make(map[string]map[string]float64),
		gauges:    make(map[string]map[string]float64),
		latencies: make(map[string][]float64),
		help:      make(map[string]string),
		startTime: time.Now(),
	}
}

// SetHelp attaches a help line used by the Prometheus export.
func (mc *MetricsCollector) SetHelp(name, help string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.help[name] = help
}

// IncrCounter adds value to the counter identified by name and labels.
func (mc *MetricsCollector) IncrCounter(name string, value float64, labels map[string]string) {
	key := labelKey(labels)
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if _, ok := mc.counters[name]; !ok {
		mc.counters[name] = make(map[string]float64)
	}
	mc.counters[name][key] += value
}

// SetGauge sets the gauge identified by name and labels.
func (mc *MetricsCollector) SetGauge(name string, value float64, labels map[string]string) {
	key := labelKey(labels)
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if _, ok := mc.gauges[name]; !ok {
		mc.gauges[name] = make(map[string]float64)
	}
	mc.gauges[name][key] = value
}

// ObserveLatency appends one latency sample in milliseconds. The window is
// capped at 1000 samples and trimmed to the most recent 100 on overflow.
func (mc *MetricsCollector) ObserveLatency(name string, d time.Duration) {
	ms := float64(d.Microseconds()) / 1000.0
	mc.mu.Lock()
	defer mc.mu.Unlock()
	samples := append(mc.latencies[name], ms)
	if len(samples) > 1000 {
		samples = samples[len(samples)-100:]
	}
	mc.latencies[name] = samples
}

// CounterValue reads one counter; missing series read as zero.
func (mc *MetricsCollector) CounterValue(name string, labels map[string]string) float64 {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.counters[name][labelKey(labels)]
}

// GaugeValue reads one gauge; missing series read as zero.
func (mc *MetricsCollector) GaugeValue(name string, labels map[string]string) float64 {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.gauges[name][labelKey(labels)]
}

// LatencySummary reports count/min/max/avg over the retained window.
func (mc *MetricsCollector) LatencySummary(name string) map[string]float64 {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	samples := mc.latencies[name]
	if len(samples) == 0 {
		return map[string]float64{"count": 0}
	}
	minV, maxV, sum := samples[0], samples[0], 0.0
	for _, s := range samples {
		if s < minV {
			minV = s
		}
		if s > maxV {
			maxV = s
		}
		sum += s
	}
	return map[string]float64{
		"count":  float64(len(samples)),
		"min_ms": minV,
		"max_ms": maxV,
		"avg_ms": sum / float64(len(samples)),
	}
}

// ExportPrometheus renders the text exposition format, series sorted by name
// and label set. Runtime gauges are sampled at scrape time.
func (mc *MetricsCollector) ExportPrometheus() string {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	var b strings.Builder
	writeFamily := func(name, metricType string, series map[string]float64) {
		help := mc.help[name]
		if help == "" {
			help = fmt.Sprintf("Metric %s", name)
		}
		fmt.Fprintf(&b, "# HELP %s %s\n", name, help)
		fmt.Fprintf(&b, "# TYPE %s %s\n", name, metricType)
		keys := make([]string, 0, len(series))
		for key := range series {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(&b, "%s%s %g\n", name, key, series[key])
		}
	}

	names := make([]string, 0, len(mc.counters))
	for name := range mc.counters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		writeFamily(name, "counter", mc.counters[name])
	}

	names = names[:0]
	for name := range mc.gauges {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		writeFamily(name, "gauge", mc.gauges[name])
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	writeFamily("process_goroutines", "gauge", map[string]float64{"": float64(runtime.NumGoroutine())})
	writeFamily("process_heap_alloc_bytes", "gauge", map[string]float64{"": float64(mem.HeapAlloc)})
	writeFamily("process_uptime_seconds", "gauge", map[string]float64{"": time.Since(mc.startTime).Seconds()})

	return b.String()
}

// ExportJSON renders a point-in-time snapshot of every series.
func (mc *MetricsCollector) ExportJSON() (string, error) {
	mc.mu.RLock()
	names := make([]string, 0, len(mc.latencies))
	for name := range mc.latencies {
		names = append(names, name)
	}
	snapshot := map[string]interface{}{
		"counters":  copySeries(mc.counters),
		"gauges":    copySeries(mc.gauges),
		"uptime":    time.Since(mc.startTime).String(),
		"collected": time.Now().UTC(),
	}
	mc.mu.RUnlock()

	latencies := make(map[string]map[string]float64, len(names))
	for _, name := range names {
		latencies[name] = mc.LatencySummary(name)
	}
	snapshot["latencies"] = latencies

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// GetUptime reports time since the collector was created.
func (mc *MetricsCollector) GetUptime() time.Duration {
	return time.Since(mc.startTime)
}

// GetSystemStats reports process-level runtime statistics.
func (mc *MetricsCollector) GetSystemStats() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]interface{}{
		"uptime":     mc.GetUptime().String(),
		"goroutines": runtime.NumGoroutine(),
		"memory": map[string]interface{}{
			"alloc":        m.Alloc,
			"total_alloc":  m.TotalAlloc,
			"sys":          m.Sys,
			"heap_alloc":   m.HeapAlloc,
			"heap_objects": m.HeapObjects,
			"gc_count":     m.NumGC,
			"gc_pause_ns":  m.PauseTotalNs,
		},
		"num_cpu": runtime.NumCPU(),
	}
}

func copySeries(src map[string]map[string]float64) map[string]map[string]float64 {
	dst := make(map[string]map[string]float64, len(src))
	for name, series := range src {
		inner := make(map[string]float64, len(series))
		for key, value := range series {
			inner[key] = value
		}
		dst[name] = inner
	}
	return dst
}

// labelKey renders labels as a sorted {k="v",...} suffix, empty for none.
func labelKey(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%q", k, labels[k]))
	}
	return "{" + strings.Join(pairs, ",") + "}"
}
