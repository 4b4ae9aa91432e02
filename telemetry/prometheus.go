package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// prometheusTelemetry backs Telemetry with github.com/prometheus/client_golang,
// the way the teacher's cmd/thor/node timer loops expect a "metrics"
// package to exist (grounded on its telemetry.LazyLoad/CounterVec call
// shape, spec §9 ambient stack).
type prometheusTelemetry struct {
	registry *prometheus.Registry

	mu          sync.Mutex
	histograms  map[string]*promHistogram
	histVecs    map[string]*promHistogramVec
	counters    map[string]*promCounter
	counterVecs map[string]*promCounterVec
	gauges      map[string]*promGauge
	gaugeVecs   map[string]*promGaugeVec
}

func newPrometheusTelemetry() *prometheusTelemetry {
	return &prometheusTelemetry{
		registry:    prometheus.NewRegistry(),
		histograms:  make(map[string]*promHistogram),
		histVecs:    make(map[string]*promHistogramVec),
		counters:    make(map[string]*promCounter),
		counterVecs: make(map[string]*promCounterVec),
		gauges:      make(map[string]*promGauge),
		gaugeVecs:   make(map[string]*promGaugeVec),
	}
}

func bucketsF(buckets []int64) []float64 {
	out := make([]float64, len(buckets))
	for i, b := range buckets {
		out[i] = float64(b)
	}
	return out
}

type promHistogram struct{ h prometheus.Histogram }

func (p *promHistogram) Observe(v int64) { p.h.Observe(float64(v)) }

func (t *prometheusTelemetry) GetOrCreateHistogramMeter(name string, buckets []int64) HistogramMeter {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m, ok := t.histograms[name]; ok {
		return m
	}
	h := prometheus.NewHistogram(prometheus.HistogramOpts{Name: name, Buckets: bucketsF(buckets)})
	t.registry.MustRegister(h)
	m := &promHistogram{h: h}
	t.histograms[name] = m
	return m
}

type promHistogramVec struct{ v *prometheus.HistogramVec }

func (p *promHistogramVec) ObserveWithLabels(val int64, labels map[string]string) {
	p.v.With(labels).Observe(float64(val))
}

func (t *prometheusTelemetry) GetOrCreateHistogramVecMeter(name string, labels []string, buckets []int64) HistogramVecMeter {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m, ok := t.histVecs[name]; ok {
		return m
	}
	v := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Buckets: bucketsF(buckets)}, labels)
	t.registry.MustRegister(v)
	m := &promHistogramVec{v: v}
	t.histVecs[name] = m
	return m
}

type promCounter struct{ c prometheus.Counter }

func (p *promCounter) Add(v int64) { p.c.Add(float64(v)) }

func (t *prometheusTelemetry) GetOrCreateCountMeter(name string) CountMeter {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m, ok := t.counters[name]; ok {
		return m
	}
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: name})
	t.registry.MustRegister(c)
	m := &promCounter{c: c}
	t.counters[name] = m
	return m
}

type promCounterVec struct{ v *prometheus.CounterVec }

func (p *promCounterVec) AddWithLabel(val int64, labels map[string]string) {
	p.v.With(labels).Add(float64(val))
}

func (t *prometheusTelemetry) GetOrCreateCountVecMeter(name string, labels []string) CountVecMeter {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m, ok := t.counterVecs[name]; ok {
		return m
	}
	v := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name}, labels)
	t.registry.MustRegister(v)
	m := &promCounterVec{v: v}
	t.counterVecs[name] = m
	return m
}

type promGauge struct{ g prometheus.Gauge }

func (p *promGauge) Gauge(v int64) { p.g.Set(float64(v)) }

func (t *prometheusTelemetry) GetOrCreateGaugeMeter(name string) GaugeMeter {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m, ok := t.gauges[name]; ok {
		return m
	}
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: name})
	t.registry.MustRegister(g)
	m := &promGauge{g: g}
	t.gauges[name] = m
	return m
}

type promGaugeVec struct{ v *prometheus.GaugeVec }

func (p *promGaugeVec) GaugeWithLabel(val int64, labels map[string]string) {
	p.v.With(labels).Set(float64(val))
}

func (t *prometheusTelemetry) GetOrCreateGaugeVecMeter(name string, labels []string) GaugeVecMeter {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m, ok := t.gaugeVecs[name]; ok {
		return m
	}
	v := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name}, labels)
	t.registry.MustRegister(v)
	m := &promGaugeVec{v: v}
	t.gaugeVecs[name] = m
	return m
}

func (t *prometheusTelemetry) GetOrCreateHandler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}
