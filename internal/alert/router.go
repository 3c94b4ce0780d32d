/**
 * Alert Router.
 *
 * For each packet's joined rule + anomaly verdicts, persists via the
 * storage sink, dispatches to a realtime sink, forwards to the event
 * correlator, and bans the source IP for high-severity rule hits or
 * high-confidence anomalies. Ordering: verdicts for packet N
 * are routed before packet N+1's from the same worker, since Route runs
 * synchronously inside the calling worker goroutine — no internal
 * queueing of its own.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package alert

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kleaSCM/sentryd/internal/anomaly"
	"github.com/kleaSCM/sentryd/internal/firewall"
	"github.com/kleaSCM/sentryd/internal/models"
	"github.com/kleaSCM/sentryd/internal/storage"
	"github.com/kleaSCM/sentryd/internal/telemetry"
)

// AnomalyConfidenceBanThreshold is the confidence above which an
// anomaly verdict alone justifies a quarantine ban.
const AnomalyConfidenceBanThreshold = 0.9

// Correlator is the subset of correlator.Correlator the router depends
// on, kept as an interface to avoid a storage<->correlator import
// cycle and to ease testing.
type Correlator interface {
	Process(alert models.Alert)
}

// Router wires the per-packet verdict pair to every downstream sink.
type Router struct {
	sink       storage.Sink
	realtime   *zap.Logger
	correlator Correlator
	actuator   firewall.Actuator
	metrics    *telemetry.Metrics
}

// New builds a Router. actuator may be nil to disable quarantine
// actions (e.g. in tests or dry-run mode).
func New(sink storage.Sink, realtime *zap.Logger, correlator Correlator, actuator firewall.Actuator, metrics *telemetry.Metrics) *Router {
	return &Router{sink: sink, realtime: realtime, correlator: correlator, actuator: actuator, metrics: metrics}
}

// PacketContext carries the identity fields the router needs that are
// not part of a rule-engine FeatureMap.
type PacketContext struct {
	SrcIP, DstIP string
	SrcPort      *uint16
	DstPort      *uint16
	Protocol     models.Protocol
	PacketSeq    uint64
}

// Route finishes a single packet's detection: ruleAlerts and
// anomalyVerdict are the two concurrent verdicts computed for pc;
// either may be empty/nil.
func (r *Router) Route(pc PacketContext, ruleAlerts []models.Alert, anomalyVerdict *anomaly.Verdict) {
	alerts := make([]models.Alert, 0, len(ruleAlerts)+1)

	for _, a := range ruleAlerts {
		alerts = append(alerts, fillContext(a, pc))
	}
	if anomalyVerdict != nil && anomalyVerdict.Attack {
		conf := anomalyVerdict.Confidence
		alerts = append(alerts, fillContext(models.Alert{
			Kind:       models.AlertKindAnomaly,
			Severity:   anomalySeverity(conf),
			Confidence: &conf,
		}, pc))
	}
	if len(alerts) == 0 {
		return
	}

	banReason := ""
	for i := range alerts {
		alerts[i].ID = uuid.NewString()
		alerts[i].Timestamp = time.Now()

		if err := r.sink.SaveAlert(&alerts[i]); err != nil && r.metrics != nil {
			r.metrics.SinkErrors.Inc()
		}
		if r.realtime != nil {
			r.realtime.Info("alert",
				zap.String("kind", string(alerts[i].Kind)),
				zap.String("severity", string(alerts[i].Severity)),
				zap.String("src_ip", alerts[i].SrcIP),
				zap.String("dst_ip", alerts[i].DstIP),
			)
		}
		if r.metrics != nil {
			r.metrics.AlertsEmitted.WithLabelValues(string(alerts[i].Kind)).Inc()
		}
		if r.correlator != nil {
			r.correlator.Process(alerts[i])
		}

		if alerts[i].Severity == models.SeverityHigh || alerts[i].Severity == models.SeverityCritical {
			banReason = banReasonFor(alerts[i])
		}
		if alerts[i].Kind == models.AlertKindAnomaly && alerts[i].Confidence != nil && *alerts[i].Confidence > AnomalyConfidenceBanThreshold {
			banReason = banReasonFor(alerts[i])
		}
	}

	if banReason != "" && r.actuator != nil {
		if ok, err := r.actuator.Ban(pc.SrcIP, banReason); err != nil && r.metrics != nil {
			r.metrics.SinkErrors.Inc()
		} else if ok && r.metrics != nil {
			r.metrics.BansIssued.Inc()
		}
	}
}

func fillContext(a models.Alert, pc PacketContext) models.Alert {
	a.SrcIP = pc.SrcIP
	a.DstIP = pc.DstIP
	a.SrcPort = pc.SrcPort
	a.DstPort = pc.DstPort
	a.Protocol = pc.Protocol
	a.PacketSeq = pc.PacketSeq
	return a
}

func anomalySeverity(confidence float64) models.Severity {
	if confidence > AnomalyConfidenceBanThreshold {
		return models.SeverityHigh
	}
	return models.SeverityMedium
}

func banReasonFor(a models.Alert) string {
	if a.RuleName != nil {
		return "rule match: " + *a.RuleName
	}
	return "anomaly detected, kind=" + string(a.Kind)
}
