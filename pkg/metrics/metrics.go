// Package metrics exports Publisher telemetry to Prometheus.
//
// Collector reads a Snapshot at scrape time, so gauges never lag behind the
// Publisher. Observer counts events that a snapshot cannot reconstruct
// (errors and state transitions) and is meant to be chained into the
// Publisher callbacks.
package metrics

import (
	"github.com/captionrelay/wspub"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wspub"

// SnapshotSource is implemented by *wspub.Publisher.
type SnapshotSource interface {
	Snapshot() wspub.Snapshot
}

// SourceFunc adapts a function to SnapshotSource.
type SourceFunc func() wspub.Snapshot

func (f SourceFunc) Snapshot() wspub.Snapshot {
	return f()
}

// Collector is a prometheus.Collector backed by a SnapshotSource.
type Collector struct {
	source SnapshotSource

	queueLength *prometheus.Desc
	retryCount  *prometheus.Desc
	blocked     *prometheus.Desc
	connected   *prometheus.Desc
	state       *prometheus.Desc
	dropped     *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

func NewCollector(source SnapshotSource, constLabels prometheus.Labels) *Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, constLabels)
	}
	return &Collector{
		source:      source,
		queueLength: desc("queue_length", "Number of records waiting to be sent."),
		retryCount:  desc("retry_count", "Reconnect attempts since the last successful open."),
		blocked:     desc("blocked_suspected", "1 when the endpoint looks blocked by a firewall or proxy."),
		connected:   desc("connected", "1 while the connection is open."),
		state:       desc("state", "Current connection state, 1 for the active state.", "state"),
		dropped:     desc("dropped_total", "Records evicted from the full queue."),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.queueLength
	ch <- c.retryCount
	ch <- c.blocked
	ch <- c.connected
	ch <- c.state
	ch <- c.dropped
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.source.Snapshot()

	ch <- prometheus.MustNewConstMetric(c.queueLength, prometheus.GaugeValue, float64(s.QueueLength))
	ch <- prometheus.MustNewConstMetric(c.retryCount, prometheus.GaugeValue, float64(s.RetryCount))
	ch <- prometheus.MustNewConstMetric(c.blocked, prometheus.GaugeValue, boolValue(s.BlockedSuspected))
	ch <- prometheus.MustNewConstMetric(c.connected, prometheus.GaugeValue, boolValue(s.Connected()))
	for _, st := range wspub.States() {
		ch <- prometheus.MustNewConstMetric(c.state, prometheus.GaugeValue, boolValue(st == s.State), st.String())
	}
	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(s.DroppedCount))
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Observer counts errors and state transitions.
type Observer struct {
	errors      prometheus.Counter
	transitions *prometheus.CounterVec
}

// NewObserver creates the counters and registers them with reg.
func NewObserver(reg prometheus.Registerer, constLabels prometheus.Labels) (*Observer, error) {
	o := &Observer{
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "errors_total",
			Help:        "Errors reported through OnError.",
			ConstLabels: constLabels,
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "state_transitions_total",
			Help:        "State changes, by the state entered.",
			ConstLabels: constLabels,
		}, []string{"state"}),
	}
	for _, c := range []prometheus.Collector{o.errors, o.transitions} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func (o *Observer) OnStateChange(state wspub.State, _ wspub.Snapshot) {
	o.transitions.WithLabelValues(state.String()).Inc()
}

func (o *Observer) OnError(_ string, _ wspub.Snapshot) {
	o.errors.Inc()
}
