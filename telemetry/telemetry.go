// Package telemetry defines the metrics facade (spec §9 ambient stack)
// that api/utils.MetricsWrapHandlerFunc and cmd/daonode's archive-pump
// and decay loops publish through: a
// backend-agnostic Telemetry interface, a process-wide default backend
// swapped in by cmd/daonode at boot, and package-level constructor
// helpers mirroring the teacher's `metrics.CounterVec`/`HistogramVec`
// call shape so callers never import a concrete backend directly.
package telemetry

import (
	"net/http"
	"sync"
)

// HistogramMeter observes a single unlabeled value distribution.
type HistogramMeter interface {
	Observe(int64)
}

// HistogramVecMeter observes a labeled value distribution.
type HistogramVecMeter interface {
	ObserveWithLabels(int64, map[string]string)
}

// CountMeter accumulates a single unlabeled counter.
type CountMeter interface {
	Add(int64)
}

// CountVecMeter accumulates a labeled counter.
type CountVecMeter interface {
	AddWithLabel(int64, map[string]string)
}

// GaugeMeter reports a single unlabeled instantaneous value.
type GaugeMeter interface {
	Gauge(int64)
}

// GaugeVecMeter reports a labeled instantaneous value.
type GaugeVecMeter interface {
	GaugeWithLabel(int64, map[string]string)
}

// Telemetry is the backend a process installs once at boot. Every
// Get-or-create call is idempotent by name: calling it twice with the
// same name returns the same underlying meter.
type Telemetry interface {
	GetOrCreateHistogramMeter(name string, buckets []int64) HistogramMeter
	GetOrCreateHistogramVecMeter(name string, labels []string, buckets []int64) HistogramVecMeter
	GetOrCreateCountMeter(name string) CountMeter
	GetOrCreateCountVecMeter(name string, labels []string) CountVecMeter
	GetOrCreateGaugeMeter(name string) GaugeMeter
	GetOrCreateGaugeVecMeter(name string, labels []string) GaugeVecMeter
	GetOrCreateHandler() http.Handler
}

var (
	mu      sync.RWMutex
	current Telemetry = defaultNoopTelemetry()
)

// InitNoop installs the no-op backend. This is the default, used by
// package tests and by cmd/daonode when run without --metrics.
func InitNoop() {
	mu.Lock()
	defer mu.Unlock()
	current = defaultNoopTelemetry()
}

// InitPrometheus installs the prometheus-backed backend (cmd/daonode's
// production path).
func InitPrometheus() {
	mu.Lock()
	defer mu.Unlock()
	current = newPrometheusTelemetry()
}

func backend() Telemetry {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// BucketHTTPReqs is the histogram bucket set (milliseconds) for the HTTP
// request duration metric of api/utils.MetricsWrapHandlerFunc.
var BucketHTTPReqs = []int64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

// BucketRoundDurations is the bucket set (milliseconds) for the
// decay/archive-pump timer loops' round durations.
var BucketRoundDurations = []int64{1, 10, 50, 100, 500, 1000, 5000, 15000, 60000}

func Histogram(name string, buckets []int64) HistogramMeter {
	return backend().GetOrCreateHistogramMeter(name, buckets)
}

func HistogramVec(name string, labels []string, buckets []int64) HistogramVecMeter {
	return backend().GetOrCreateHistogramVecMeter(name, labels, buckets)
}

// HistogramVecWithHTTPBuckets is a convenience constructor for
// request-latency-shaped histograms.
func HistogramVecWithHTTPBuckets(name string, labels []string) HistogramVecMeter {
	return HistogramVec(name, labels, BucketHTTPReqs)
}

func Counter(name string) CountMeter {
	return backend().GetOrCreateCountMeter(name)
}

func CounterVec(name string, labels []string) CountVecMeter {
	return backend().GetOrCreateCountVecMeter(name, labels)
}

func Gauge(name string) GaugeMeter {
	return backend().GetOrCreateGaugeMeter(name)
}

func GaugeVec(name string, labels []string) GaugeVecMeter {
	return backend().GetOrCreateGaugeVecMeter(name, labels)
}

// Handler exposes the installed backend's scrape endpoint (e.g.
// Prometheus' /metrics), or nil for the no-op backend.
func Handler() http.Handler {
	return backend().GetOrCreateHandler()
}

// LazyLoad defers a metric's construction to first use, so a
// package-scope var (declared before cmd/daonode has chosen a backend
// via InitPrometheus/InitNoop) always binds to the backend that ends up
// installed rather than whichever was current at package-init time.
func LazyLoad[T any](build func() T) func() T {
	var once sync.Once
	var v T
	return func() T {
		once.Do(func() { v = build() })
		return v
	}
}
