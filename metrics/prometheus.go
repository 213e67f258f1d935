package metrics

import "github.com/prometheus/client_golang/prometheus"

// PrometheusProvider adapts Provider to github.com/prometheus/client_golang,
// registering each named instrument with reg on first use and reusing it for
// later calls with the same name (mirroring BasicProvider's create-once
// semantics in basic.go).
type PrometheusProvider struct {
	reg prometheus.Registerer

	counters   map[string]*prometheus.CounterVec
	updowns    map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// NewPrometheusProvider constructs a Provider backed by reg. Pass
// prometheus.DefaultRegisterer to publish on the default /metrics handler.
func NewPrometheusProvider(reg prometheus.Registerer) *PrometheusProvider {
	return &PrometheusProvider{
		reg:        reg,
		counters:   make(map[string]*prometheus.CounterVec),
		updowns:    make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

func instrumentLabels(cfg InstrumentConfig) ([]string, prometheus.Labels) {
	if len(cfg.Attributes) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(cfg.Attributes))
	values := make(prometheus.Labels, len(cfg.Attributes))
	for k, v := range cfg.Attributes {
		names = append(names, k)
		values[k] = v
	}
	return names, values
}

func (p *PrometheusProvider) Counter(name string, opts ...InstrumentOption) Counter {
	cfg := applyOptions(opts)
	labelNames, labelValues := instrumentLabels(cfg)

	vec, ok := p.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: cfg.Description}, labelNames)
		p.reg.MustRegister(vec)
		p.counters[name] = vec
	}
	return promCounter{c: vec.With(labelValues)}
}

func (p *PrometheusProvider) UpDownCounter(name string, opts ...InstrumentOption) UpDownCounter {
	cfg := applyOptions(opts)
	labelNames, labelValues := instrumentLabels(cfg)

	vec, ok := p.updowns[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: cfg.Description}, labelNames)
		p.reg.MustRegister(vec)
		p.updowns[name] = vec
	}
	return promUpDownCounter{g: vec.With(labelValues)}
}

func (p *PrometheusProvider) Histogram(name string, opts ...InstrumentOption) Histogram {
	cfg := applyOptions(opts)
	labelNames, labelValues := instrumentLabels(cfg)

	vec, ok := p.histograms[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: cfg.Description}, labelNames)
		p.reg.MustRegister(vec)
		p.histograms[name] = vec
	}
	return promHistogram{h: vec.With(labelValues)}
}

type promCounter struct{ c prometheus.Counter }

func (p promCounter) Add(n int64) { p.c.Add(float64(n)) }

type promUpDownCounter struct{ g prometheus.Gauge }

func (p promUpDownCounter) Add(n int64) { p.g.Add(float64(n)) }

type promHistogram struct{ h prometheus.Observer }

func (p promHistogram) Record(v float64) { p.h.Observe(v) }
