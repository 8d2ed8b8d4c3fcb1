package telemetry

import (
	"context"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	apimetric "go.opentelemetry.io/otel/metric"

	"github.com/tesseradata/tessera/observability"
)

// Collector implements observability.Metrics on top of OpenTelemetry
// instruments. Instruments are created on first use and cached by name, so
// data sources can emit metrics without predeclaring them.
type Collector struct {
	meter apimetric.Meter

	mu         sync.Mutex
	counters   map[string]apimetric.Float64Counter
	histograms map[string]apimetric.Float64Histogram
	gauges     map[string]apimetric.Float64Gauge
}

// NewCollector wraps the given meter in an observability.Metrics adapter.
func NewCollector(meter apimetric.Meter) *Collector {
	return &Collector{
		meter:      meter,
		counters:   make(map[string]apimetric.Float64Counter),
		histograms: make(map[string]apimetric.Float64Histogram),
		gauges:     make(map[string]apimetric.Float64Gauge),
	}
}

// IncCounter adds value to the named counter.
func (c *Collector) IncCounter(name string, value float64, labels map[string]string) {
	counter := c.counter(name)
	if counter == nil {
		return
	}
	counter.Add(context.Background(), value, apimetric.WithAttributes(attrs(labels)...))
}

// ObserveHistogram records value into the named histogram.
func (c *Collector) ObserveHistogram(name string, value float64, labels map[string]string) {
	histogram := c.histogram(name)
	if histogram == nil {
		return
	}
	histogram.Record(context.Background(), value, apimetric.WithAttributes(attrs(labels)...))
}

// SetGauge records the current value of the named gauge.
func (c *Collector) SetGauge(name string, value float64, labels map[string]string) {
	gauge := c.gauge(name)
	if gauge == nil {
		return
	}
	gauge.Record(context.Background(), value, apimetric.WithAttributes(attrs(labels)...))
}

func (c *Collector) counter(name string) apimetric.Float64Counter {
	c.mu.Lock()
	defer c.mu.Unlock()
	if counter, ok := c.counters[name]; ok {
		return counter
	}
	counter, err := c.meter.Float64Counter(name)
	if err != nil {
		return nil
	}
	c.counters[name] = counter
	return counter
}

func (c *Collector) histogram(name string) apimetric.Float64Histogram {
	c.mu.Lock()
	defer c.mu.Unlock()
	if histogram, ok := c.histograms[name]; ok {
		return histogram
	}
	histogram, err := c.meter.Float64Histogram(name)
	if err != nil {
		return nil
	}
	c.histograms[name] = histogram
	return histogram
}

func (c *Collector) gauge(name string) apimetric.Float64Gauge {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gauge, ok := c.gauges[name]; ok {
		return gauge
	}
	gauge, err := c.meter.Float64Gauge(name)
	if err != nil {
		return nil
	}
	c.gauges[name] = gauge
	return gauge
}

func attrs(labels map[string]string) []attribute.KeyValue {
	if len(labels) == 0 {
		return nil
	}
	out := make([]attribute.KeyValue, 0, len(labels))
	for key, value := range labels {
		if strings.TrimSpace(key) == "" {
			continue
		}
		out = append(out, attribute.String(key, value))
	}
	return out
}

var _ observability.Metrics = (*Collector)(nil)
