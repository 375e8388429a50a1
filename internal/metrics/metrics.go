// Package metrics exposes engine counters in the Prometheus text format.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"lumen/internal/fleet"
)

const namespace = "lumen"

// ViewSource supplies the current device views for the fleet gauges.
type ViewSource interface {
	Views() []fleet.View
}

// Collector records scan coordinator and watcher outcomes. It implements
// fleet.Observer and watch.Recorder.
type Collector struct {
	registry *prometheus.Registry

	scans        *prometheus.CounterVec
	refreshes    *prometheus.CounterVec
	scanDuration prometheus.Histogram
	failures     prometheus.Counter
	signals      *prometheus.CounterVec
}

// New registers the lumen metrics on a private registry. views may be nil.
func New(views ViewSource) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Scan requests by outcome (ran or dropped).",
		}, []string{"result"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_total",
			Help:      "Refresh-only passes by outcome (ran or dropped).",
		}, []string{"result"}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Wall time of completed scans, including the coalescing delay.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_failures_total",
			Help:      "Failed brightness reads during scans and refreshes.",
		}),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watch_signals_total",
			Help:      "Watcher signals by source and whether they requested a scan.",
		}, []string{"source", "triggered"}),
	}
	c.registry.MustRegister(c.scans, c.refreshes, c.scanDuration, c.failures, c.signals)
	if views != nil {
		c.registry.MustRegister(newFleetCollector(views))
	}
	return c
}

// WatchFleet adds the device gauges for a source created after the collector.
// It fails if a source is already registered.
func (c *Collector) WatchFleet(views ViewSource) error {
	return c.registry.Register(newFleetCollector(views))
}

// Registry returns the registry backing the collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) ScanCompleted(stats fleet.Stats) {
	c.scans.WithLabelValues("ran").Inc()
	c.scanDuration.Observe(stats.Duration.Seconds())
	c.failures.Add(float64(stats.Failed))
}

func (c *Collector) ScanDropped() {
	c.scans.WithLabelValues("dropped").Inc()
}

func (c *Collector) RefreshCompleted(_ int, failed int) {
	c.refreshes.WithLabelValues("ran").Inc()
	c.failures.Add(float64(failed))
}

func (c *Collector) RefreshDropped() {
	c.refreshes.WithLabelValues("dropped").Inc()
}

func (c *Collector) SignalHandled(source string, triggered bool) {
	label := "false"
	if triggered {
		label = "true"
	}
	c.signals.WithLabelValues(source, label).Inc()
}

// fleetCollector reports device counts by state at scrape time.
type fleetCollector struct {
	views ViewSource
	desc  *prometheus.Desc
}

func newFleetCollector(views ViewSource) *fleetCollector {
	return &fleetCollector{
		views: views,
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "devices"),
			"Tracked monitors by state.",
			[]string{"state"}, nil,
		),
	}
}

func (f *fleetCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- f.desc
}

func (f *fleetCollector) Collect(ch chan<- prometheus.Metric) {
	var tracked, targets, controllable int
	for _, v := range f.views.Views() {
		tracked++
		if v.Target {
			targets++
		}
		if v.Controllable {
			controllable++
		}
	}
	ch <- prometheus.MustNewConstMetric(f.desc, prometheus.GaugeValue, float64(tracked), "tracked")
	ch <- prometheus.MustNewConstMetric(f.desc, prometheus.GaugeValue, float64(targets), "target")
	ch <- prometheus.MustNewConstMetric(f.desc, prometheus.GaugeValue, float64(controllable), "controllable")
}
