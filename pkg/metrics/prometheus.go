package metrics

import (
	"fmt"
	"io"
	"time"
)

// PrometheusExporter renders a Collector's snapshot (plus an optional
// ResourceTracker) in Prometheus text exposition format. Hand-rolled rather
// than built on client_golang, matching this codebase's own exporter, which
// predates that dependency being pulled in anywhere else in the stack.
type PrometheusExporter struct {
	collector       *Collector
	resourceTracker *ResourceTracker
	namespace       string
}

// NewPrometheusExporter creates an exporter for collector, optionally also
// reporting resourceTracker's runtime/GC/IO gauges.
func NewPrometheusExporter(collector *Collector, resourceTracker *ResourceTracker) *PrometheusExporter {
	return &PrometheusExporter{
		collector:       collector,
		resourceTracker: resourceTracker,
		namespace:       "relcore",
	}
}

// SetNamespace sets the metric namespace prefix.
func (pe *PrometheusExporter) SetNamespace(namespace string) {
	pe.namespace = namespace
}

// WriteMetrics writes every metric in Prometheus text format to w.
// Format: https://prometheus.io/docs/instrumenting/exposition_formats/
func (pe *PrometheusExporter) WriteMetrics(w io.Writer) error {
	snapshot := pe.collector.GetMetrics()

	if uptime, ok := snapshot["uptime_seconds"].(float64); ok {
		if err := pe.writeGauge(w, "uptime_seconds", "Process uptime in seconds", uptime); err != nil {
			return err
		}
	}

	if poolStats, ok := snapshot["pool"].(map[string]any); ok {
		if err := pe.writePoolMetrics(w, poolStats); err != nil {
			return err
		}
	}

	if hashStats, ok := snapshot["hash_table"].(map[string]any); ok {
		if err := pe.writeHashMetrics(w, hashStats); err != nil {
			return err
		}
	}

	if lockStats, ok := snapshot["lock_manager"].(map[string]any); ok {
		if err := pe.writeLockMetrics(w, lockStats); err != nil {
			return err
		}
	}

	for _, latency := range []struct{ metric, key string }{
		{"fetch_duration_seconds", "fetch_latency"},
		{"probe_duration_seconds", "probe_latency"},
		{"lock_wait_duration_seconds", "lock_wait_latency"},
	} {
		if l, ok := snapshot[latency.key].(map[string]any); ok {
			if err := pe.writeLatency(w, latency.metric, l); err != nil {
				return err
			}
		}
	}

	if pe.resourceTracker != nil {
		if err := pe.writeResourceMetrics(w); err != nil {
			return err
		}
	}

	return nil
}

func (pe *PrometheusExporter) writePoolMetrics(w io.Writer, poolStats map[string]any) error {
	if n, ok := poolStats["num_instances"].(int); ok {
		if err := pe.writeGauge(w, "pool_shards", "Number of parallel buffer pool shards", float64(n)); err != nil {
			return err
		}
	}

	instances, _ := poolStats["instances"].([]map[string]any)
	var totalHits, totalMisses, totalEvictions uint64
	var totalResident, totalSize int
	for _, inst := range instances {
		if v, ok := inst["hits"].(uint64); ok {
			totalHits += v
		}
		if v, ok := inst["misses"].(uint64); ok {
			totalMisses += v
		}
		if v, ok := inst["evictions"].(uint64); ok {
			totalEvictions += v
		}
		if v, ok := inst["resident"].(int); ok {
			totalResident += v
		}
		if v, ok := inst["pool_size"].(int); ok {
			totalSize += v
		}
	}

	if err := pe.writeCounter(w, "pool_hits_total", "Total buffer pool fetch hits", totalHits); err != nil {
		return err
	}
	if err := pe.writeCounter(w, "pool_misses_total", "Total buffer pool fetch misses", totalMisses); err != nil {
		return err
	}
	if err := pe.writeCounter(w, "pool_evictions_total", "Total buffer pool page evictions", totalEvictions); err != nil {
		return err
	}
	if err := pe.writeGauge(w, "pool_capacity_pages", "Total buffer pool capacity across shards", float64(totalSize)); err != nil {
		return err
	}
	return pe.writeGauge(w, "pool_resident_pages", "Total resident pages across shards", float64(totalResident))
}

func (pe *PrometheusExporter) writeHashMetrics(w io.Writer, hashStats map[string]any) error {
	if v, ok := hashStats["global_depth"].(uint32); ok {
		if err := pe.writeGauge(w, "hash_global_depth", "Current extendible-hash global depth", float64(v)); err != nil {
			return err
		}
	}
	if v, ok := hashStats["splits"].(uint64); ok {
		if err := pe.writeCounter(w, "hash_splits_total", "Total bucket splits", v); err != nil {
			return err
		}
	}
	if v, ok := hashStats["merges"].(uint64); ok {
		if err := pe.writeCounter(w, "hash_merges_total", "Total bucket merges", v); err != nil {
			return err
		}
	}
	return nil
}

func (pe *PrometheusExporter) writeLockMetrics(w io.Writer, lockStats map[string]any) error {
	if v, ok := lockStats["rows_locked"].(int); ok {
		if err := pe.writeGauge(w, "lock_rows_locked", "Rows with at least one active lock request", float64(v)); err != nil {
			return err
		}
	}
	if v, ok := lockStats["grants"].(uint64); ok {
		if err := pe.writeCounter(w, "lock_grants_total", "Total lock grants", v); err != nil {
			return err
		}
	}
	if v, ok := lockStats["waits"].(uint64); ok {
		if err := pe.writeCounter(w, "lock_waits_total", "Total times a requester had to wait", v); err != nil {
			return err
		}
	}
	if v, ok := lockStats["wounds"].(uint64); ok {
		if err := pe.writeCounter(w, "lock_wounds_total", "Total transactions wounded by Wound-Wait", v); err != nil {
			return err
		}
	}
	return nil
}

// writeLatency writes a latency snapshot (as produced by latencySnapshot)
// as cumulative histogram buckets plus p50/p95/p99 gauges.
func (pe *PrometheusExporter) writeLatency(w io.Writer, name string, l map[string]any) error {
	metricName := pe.namespace + "_" + name
	if _, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s histogram\n", metricName, name, metricName); err != nil {
		return err
	}

	buckets, _ := l["histogram"].(map[string]uint64)
	var cumulative uint64
	for _, b := range []struct{ key, le string }{
		{"0-1ms", "0.001"},
		{"1-10ms", "0.01"},
		{"10-100ms", "0.1"},
		{"100-1000ms", "1.0"},
		{">1000ms", "+Inf"},
	} {
		cumulative += buckets[b.key]
		if _, err := fmt.Fprintf(w, "%s_bucket{le=\"%s\"} %d\n", metricName, b.le, cumulative); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "%s_count %d\n", metricName, cumulative); err != nil {
		return err
	}

	percentiles, _ := l["percentiles"].(map[string]time.Duration)
	for _, p := range []string{"p50", "p95", "p99"} {
		if err := pe.writeGauge(w, name+"_"+p, fmt.Sprintf("%s percentile of %s", p, name), percentiles[p].Seconds()); err != nil {
			return err
		}
	}
	return nil
}

func (pe *PrometheusExporter) writeResourceMetrics(w io.Writer) error {
	stats := pe.resourceTracker.GetStats()

	if err := pe.writeGauge(w, "memory_heap_bytes", "Heap memory in bytes", float64(stats.HeapInUse)); err != nil {
		return err
	}
	if err := pe.writeGauge(w, "memory_stack_bytes", "Stack memory in bytes", float64(stats.StackInUse)); err != nil {
		return err
	}
	if err := pe.writeCounter(w, "memory_allocations_total", "Total memory allocations", stats.AllocBytes); err != nil {
		return err
	}
	if err := pe.writeGauge(w, "memory_objects", "Number of allocated objects", float64(stats.AllocObjects)); err != nil {
		return err
	}
	if err := pe.writeGauge(w, "goroutines", "Number of goroutines", float64(stats.NumGoroutines)); err != nil {
		return err
	}
	if err := pe.writeCounter(w, "io_bytes_read_total", "Total bytes read", stats.BytesRead); err != nil {
		return err
	}
	if err := pe.writeCounter(w, "io_bytes_written_total", "Total bytes written", stats.BytesWritten); err != nil {
		return err
	}
	if err := pe.writeCounter(w, "io_read_operations_total", "Total read operations", stats.ReadsCompleted); err != nil {
		return err
	}
	if err := pe.writeCounter(w, "io_write_operations_total", "Total write operations", stats.WritesCompleted); err != nil {
		return err
	}
	if err := pe.writeCounter(w, "gc_runs_total", "Total garbage collection runs", uint64(stats.GCRuns)); err != nil {
		return err
	}
	if err := pe.writeGauge(w, "gc_pause_nanoseconds", "Last GC pause time in nanoseconds", float64(stats.LastGCTimeNs)); err != nil {
		return err
	}
	return pe.writeGauge(w, "cpu_count", "Number of CPUs", float64(stats.NumCPU))
}

func (pe *PrometheusExporter) writeCounter(w io.Writer, name, help string, value uint64) error {
	metricName := pe.namespace + "_" + name
	_, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n",
		metricName, help, metricName, metricName, value)
	return err
}

func (pe *PrometheusExporter) writeGauge(w io.Writer, name, help string, value float64) error {
	metricName := pe.namespace + "_" + name
	_, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %g\n",
		metricName, help, metricName, metricName, value)
	return err
}
