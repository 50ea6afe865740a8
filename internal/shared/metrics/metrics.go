package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	jobsAcceptedTotal  atomic.Uint64
	jobsRejectedTotal  atomic.Uint64
	jobsCompletedTotal atomic.Uint64
	jobsFailedTotal    atomic.Uint64
	arenaPurgesTotal   atomic.Uint64
	sweepEvictedTotal  atomic.Uint64
	httpPanicsTotal    atomic.Uint64
	rateLimitedTotal   atomic.Uint64

	jobDuration = newHistogram([]float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000})

	gaugesMu sync.RWMutex
	gauges   = map[string]gauge{}
)

type gauge struct {
	help string
	fn   func() float64
}

// IncJobsAccepted increments the accepted-upload counter.
func IncJobsAccepted() {
	jobsAcceptedTotal.Add(1)
}

// IncJobsRejected increments the counter of uploads refused at admission.
func IncJobsRejected() {
	jobsRejectedTotal.Add(1)
}

// IncJobsCompleted increments the completed counter.
func IncJobsCompleted() {
	jobsCompletedTotal.Add(1)
}

// IncJobsFailed increments the failed counter.
func IncJobsFailed() {
	jobsFailedTotal.Add(1)
}

// IncArenaPurges increments the counter of explicit arena purges.
func IncArenaPurges() {
	arenaPurgesTotal.Add(1)
}

// IncHTTPPanics counts handler panics caught by the recovery middleware.
func IncHTTPPanics() {
	httpPanicsTotal.Add(1)
}

// IncRateLimited counts requests refused by the rate limiter.
func IncRateLimited() {
	rateLimitedTotal.Add(1)
}

// AddSweepEvicted adds n records removed by the background sweep.
func AddSweepEvicted(n int) {
	if n <= 0 {
		return
	}
	sweepEvictedTotal.Add(uint64(n))
}

// ObserveJobDurationMs records a job duration in milliseconds.
func ObserveJobDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	jobDuration.Observe(value)
}

// RegisterGauge exposes fn as a gauge. Registering an existing name replaces it.
func RegisterGauge(name, help string, fn func() float64) {
	if fn == nil {
		return
	}
	gaugesMu.Lock()
	defer gaugesMu.Unlock()
	gauges[name] = gauge{help: help, fn: fn}
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "jobs_accepted_total", "Total uploads accepted", jobsAcceptedTotal.Load())
	writeCounter(&buf, "jobs_rejected_total", "Total uploads rejected at admission", jobsRejectedTotal.Load())
	writeCounter(&buf, "jobs_completed_total", "Total jobs completed", jobsCompletedTotal.Load())
	writeCounter(&buf, "jobs_failed_total", "Total jobs failed", jobsFailedTotal.Load())
	writeCounter(&buf, "arena_purges_total", "Total explicit arena purges", arenaPurgesTotal.Load())
	writeCounter(&buf, "http_panics_total", "Total recovered handler panics", httpPanicsTotal.Load())
	writeCounter(&buf, "http_rate_limited_total", "Total requests refused by the rate limiter", rateLimitedTotal.Load())
	writeCounter(&buf, "sweep_evicted_total", "Total records evicted by the background sweep", sweepEvictedTotal.Load())
	writeHistogram(&buf, "job_duration_ms", "Job duration in milliseconds", jobDuration.Snapshot())

	gaugesMu.RLock()
	names := make([]string, 0, len(gauges))
	for name := range gauges {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		g := gauges[name]
		writeGauge(&buf, name, g.help, g.fn())
	}
	gaugesMu.RUnlock()
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			break
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeGauge(buf *bytes.Buffer, name, help string, value float64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s gauge\n", name)
	fmt.Fprintf(buf, "%s %s\n", name, formatFloat(value))
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
