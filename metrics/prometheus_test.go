package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestPrometheusProvider_CounterAccumulates(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheusProvider(reg)

	c1 := p.Counter("tasks_test_total")
	c2 := p.Counter("tasks_test_total")
	c1.Add(2)
	c2.Add(3)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var got float64
	for _, mf := range mfs {
		if mf.GetName() != "tasks_test_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			got = m.GetCounter().GetValue()
		}
	}
	if got != 5 {
		t.Fatalf("counter value = %v; want 5", got)
	}
}

func TestPrometheusProvider_UpDownCounterMovesBothWays(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheusProvider(reg)

	g := p.UpDownCounter("tasks_test_inflight")
	g.Add(3)
	g.Add(-1)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var got float64
	for _, mf := range mfs {
		if mf.GetName() != "tasks_test_inflight" {
			continue
		}
		for _, m := range mf.GetMetric() {
			got = m.GetGauge().GetValue()
		}
	}
	if got != 2 {
		t.Fatalf("gauge value = %v; want 2", got)
	}
}

func TestPrometheusProvider_HistogramRecordsObservations(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheusProvider(reg)

	h := p.Histogram("tasks_test_seconds")
	h.Record(0.1)
	h.Record(0.2)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var count uint64
	for _, mf := range mfs {
		if mf.GetName() != "tasks_test_seconds" {
			continue
		}
		for _, m := range mf.GetMetric() {
			count = m.GetHistogram().GetSampleCount()
		}
	}
	if count != 2 {
		t.Fatalf("sample count = %d; want 2", count)
	}
}
