// Package metrics exposes process counters and gauges through a prometheus registry.
// Metrics are addressed by group and name and created on first use, so call
// sites only need one line:
//
//	metrics.IncrCounterWithGroup("net", "connection_close_total", 1)
package metrics

import (
	"slices"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const _namespace = "hopnet"

var (
	_registry = newRegistry()

	_counters     = map[string]*counterEntry{}
	_lockCounters = sync.RWMutex{}
	_gauges       = map[string]*gaugeEntry{}
	_lockGauges   = sync.RWMutex{}
)

type counterEntry struct {
	vec    *prometheus.CounterVec
	labels []string
}

type gaugeEntry struct {
	vec    *prometheus.GaugeVec
	labels []string
}

func newRegistry() *prometheus.Registry {
	r := prometheus.NewRegistry()
	r.MustRegister(collectors.NewGoCollector())
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return r
}

// Registry returns the registry every metric of this package is registered in.
func Registry() *prometheus.Registry {
	return _registry
}

// IncrCounterWithGroup adds value to the counter group/name.
func IncrCounterWithGroup(group string, name string, value Value) {
	IncrCounterWithDimGroup(group, name, value, nil)
}

// IncrCounterWithDimGroup adds value to the counter group/name with labels.
// A counter keeps the label names it was first used with; calls with a
// different label set are ignored.
func IncrCounterWithDimGroup(group string, name string, value Value, dimensions Dimension) {
	labels := labelNames(dimensions)
	c := getCounter(group, name, labels)
	if c == nil || !slices.Equal(c.labels, labels) {
		return
	}
	c.vec.With(prometheus.Labels(dimensions)).Add(float64(value))
}

// UpdateGaugeWithGroup sets the gauge group/name.
func UpdateGaugeWithGroup(group string, name string, value Value) {
	UpdateGaugeWithDimGroup(group, name, value, nil)
}

// UpdateGaugeWithDimGroup sets the gauge group/name with labels.
func UpdateGaugeWithDimGroup(group string, name string, value Value, dimensions Dimension) {
	labels := labelNames(dimensions)
	g := getGauge(group, name, labels)
	if g == nil || !slices.Equal(g.labels, labels) {
		return
	}
	g.vec.With(prometheus.Labels(dimensions)).Set(float64(value))
}

func labelNames(d Dimension) []string {
	if len(d) == 0 {
		return nil
	}
	names := make([]string, 0, len(d))
	for k := range d {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

func metricKey(group, name string) string {
	return group + "." + name
}

func sanitize(s string) string {
	return strings.NewReplacer(".", "_", "-", "_", " ", "_").Replace(s)
}

func getCounter(group, name string, labels []string) *counterEntry {
	key := metricKey(group, name)

	_lockCounters.RLock()
	c, ok := _counters[key]
	_lockCounters.RUnlock()
	if ok {
		return c
	}

	_lockCounters.Lock()
	defer _lockCounters.Unlock()
	if c, ok = _counters[key]; ok {
		return c
	}
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: _namespace,
		Subsystem: sanitize(group),
		Name:      sanitize(name),
		Help:      "counter " + key,
	}, labels)
	if err := _registry.Register(vec); err != nil {
		return nil
	}
	c = &counterEntry{vec: vec, labels: labels}
	_counters[key] = c
	return c
}

func getGauge(group, name string, labels []string) *gaugeEntry {
	key := metricKey(group, name)

	_lockGauges.RLock()
	g, ok := _gauges[key]
	_lockGauges.RUnlock()
	if ok {
		return g
	}

	_lockGauges.Lock()
	defer _lockGauges.Unlock()
	if g, ok = _gauges[key]; ok {
		return g
	}
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: _namespace,
		Subsystem: sanitize(group),
		Name:      sanitize(name),
		Help:      "gauge " + key,
	}, labels)
	if err := _registry.Register(vec); err != nil {
		return nil
	}
	g = &gaugeEntry{vec: vec, labels: labels}
	_gauges[key] = g
	return g
}
