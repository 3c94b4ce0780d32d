/**
 * Telemetry Counters.
 *
 * Prometheus-backed counters for the pipeline's lossy/soft-real-time
 * behavior: queue drops, per-rule evaluation errors, sink failures.
 * None of these affect control flow — they are observability only.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the counters the pipeline increments on the hot
// path. A fresh Metrics should be registered against a single
// *prometheus.Registry per process; tests construct their own
// unregistered instance via NewUnregistered.
type Metrics struct {
	QueueDropped     prometheus.Counter
	RuleEvalErrors   *prometheus.CounterVec
	SinkErrors       prometheus.Counter
	PacketsProcessed prometheus.Counter
	AlertsEmitted    *prometheus.CounterVec
	BansIssued       prometheus.Counter
}

// New creates and registers a Metrics bundle against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := newUnregistered()
	reg.MustRegister(
		m.QueueDropped, m.RuleEvalErrors, m.SinkErrors,
		m.PacketsProcessed, m.AlertsEmitted, m.BansIssued,
	)
	return m
}

// NewUnregistered builds a Metrics bundle without registering it,
// convenient for tests that construct many pipeline instances.
func NewUnregistered() *Metrics { return newUnregistered() }

func newUnregistered() *Metrics {
	return &Metrics{
		QueueDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentryd_queue_dropped_total",
			Help: "Packets dropped because the ingress queue was full.",
		}),
		RuleEvalErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentryd_rule_eval_errors_total",
			Help: "Rule evaluations skipped due to a per-rule error.",
		}, []string{"rule"}),
		SinkErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentryd_sink_errors_total",
			Help: "Storage or firewall actuator failures.",
		}),
		PacketsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentryd_packets_processed_total",
			Help: "Packets that completed the detection pipeline.",
		}),
		AlertsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentryd_alerts_emitted_total",
			Help: "Alerts emitted, labeled by kind.",
		}, []string{"kind"}),
		BansIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentryd_bans_issued_total",
			Help: "Quarantine actuator ban calls issued.",
		}),
	}
}
