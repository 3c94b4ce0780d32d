/**
 * Pipeline End-to-End Scenario Tests.
 *
 * Drives real collaborators (rules.Engine, session.Tracker,
 * alert.Router, correlator.Correlator, with anomaly.NullScorer) through
 * a capture.ReplaySource to exercise a SYN flood scenario and a large
 * packet scenario end to end, plus a clean Quiesce.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package pipeline

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kleaSCM/sentryd/internal/alert"
	"github.com/kleaSCM/sentryd/internal/anomaly"
	"github.com/kleaSCM/sentryd/internal/capture"
	"github.com/kleaSCM/sentryd/internal/correlator"
	"github.com/kleaSCM/sentryd/internal/models"
	"github.com/kleaSCM/sentryd/internal/rules"
	"github.com/kleaSCM/sentryd/internal/session"
	"github.com/kleaSCM/sentryd/internal/storage"
)

const builtinYAML = `
rules:
  - name: "Port Scan Detection"
    conditions:
      - ["tcp_dport", "in", "1-1023"]
      - ["packet_count", ">", 100]
      - ["duration", "<", 10]
    severity: high
    enabled: true

  - name: "SYN Flood Detection"
    conditions:
      - ["tcp_flags", "==", "0x02"]
      - ["packet_count", ">", 200]
      - ["duration", "<", 5]
    severity: high
    enabled: true

  - name: "Large Packet Detection"
    conditions:
      - ["ip_len", ">", 1500]
    severity: medium
    enabled: true
`

func newTestEngine(t *testing.T) *rules.Engine {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "builtin.yaml"), []byte(builtinYAML), 0o644))
	e, err := rules.New(dir, zap.NewNop(), nil)
	require.NoError(t, err)
	return e
}

// recordingSink is a storage.Sink that just remembers what it was
// given, enough to assert on without a real database.
type recordingSink struct {
	mu     sync.Mutex
	alerts []*models.Alert
}

func (s *recordingSink) Close() error   { return nil }
func (s *recordingSink) Migrate() error { return nil }
func (s *recordingSink) SaveAlert(a *models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
	return nil
}
func (s *recordingSink) ListAlerts(limit, offset int) ([]*models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alerts, nil
}
func (s *recordingSink) SeverityHistogram(since int64) (map[string]int, error) { return nil, nil }
func (s *recordingSink) SaveCorrelationAlert(ca *models.CorrelationAlert) error { return nil }
func (s *recordingSink) ListCorrelationAlerts(limit, offset int) ([]*models.CorrelationAlert, error) {
	return nil, nil
}
func (s *recordingSink) RecordPacketStats(srcIP, dstIP string, bytes int) error { return nil }
func (s *recordingSink) TopTalkers(limit int) ([]storage.TalkerStat, error)     { return nil, nil }

func (s *recordingSink) snapshot() []*models.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Alert, len(s.alerts))
	copy(out, s.alerts)
	return out
}

var _ storage.Sink = (*recordingSink)(nil)

// noopActuator records bans without touching any real firewall.
type noopActuator struct {
	mu   sync.Mutex
	bans []string
}

func (a *noopActuator) Ban(ip, reason string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bans = append(a.bans, ip)
	return true, nil
}
func (a *noopActuator) Unban(ip string) (bool, error) { return true, nil }
func (a *noopActuator) IsBanned(ip string) bool       { return false }
func (a *noopActuator) SweepExpired() []string        { return nil }

func synTCPPacket(t *testing.T, srcIP, dstIP string, srcPort, dstPort uint16, totalLen int, at time.Time) *models.PacketRecord {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{5, 4, 3, 2, 1, 0},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		SrcIP: net.ParseIP(srcIP).To4(), DstIP: net.ParseIP(dstIP).To4(),
		Protocol: layers.IPProtocolTCP, TTL: 64, Version: 4,
	}
	tcp := &layers.TCP{SrcPort: layers.TCPPort(srcPort), DstPort: layers.TCPPort(dstPort), SYN: true, Window: 1024}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	// Pad past the 20-byte IPv4 and 20-byte TCP headers so the IP total
	// length field carries totalLen.
	var payload gopacket.Payload
	if totalLen > 40 {
		payload = make(gopacket.Payload, totalLen-40)
	}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, tcp, payload))

	sp, dp := srcPort, dstPort
	flags := uint8(0x02)
	return &models.PacketRecord{
		CaptureAt: at,
		SrcIP:     srcIP,
		DstIP:     dstIP,
		Protocol:  models.ProtoTCP,
		SrcPort:   &sp,
		DstPort:   &dp,
		TotalLen:  totalLen,
		TCPFlags:  &flags,
		Raw:       buf.Bytes(),
	}
}

// newTestPipeline wires real collaborators around a ReplaySource,
// returning the pipeline plus the sink/actuator so the caller can
// assert on what was routed.
func newTestPipeline(t *testing.T, records []*models.PacketRecord) (*Pipeline, *recordingSink, *noopActuator) {
	t.Helper()
	engine := newTestEngine(t)
	tracker := session.New(time.Minute)
	scorer := anomaly.NullScorer{}
	sink := &recordingSink{}
	act := &noopActuator{}

	corr := correlator.New(false, func(models.CorrelationAlert) {})
	router := alert.New(sink, zap.NewNop(), corr, act, nil)

	src := capture.NewReplaySource(records)
	p := New(src, tracker, engine, scorer, router, corr, nil, zap.NewNop(), Config{
		Workers:       2,
		QueueCapacity: 4096,
		SessionIdle:   time.Minute,
		SweepEvery:    time.Hour,
	})
	return p, sink, act
}

// runUntilDrained starts the pipeline, waits for the replay source to
// exhaust its records and the queue to empty, then quiesces.
func runUntilDrained(t *testing.T, p *Pipeline) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan struct{})
	go func() {
		_ = p.Run(ctx)
		close(runDone)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && p.q.Len() > 0 {
		time.Sleep(20 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond) // let in-flight workers finish routing

	qctx, qcancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer qcancel()
	require.NoError(t, p.Quiesce(qctx))
	<-runDone
}

// TestPipelineScenarioS1SynFlood replays 250 SYN packets from one
// source within under five seconds and expects the SYN Flood Detection
// rule to fire and the source to be banned.
func TestPipelineScenarioS1SynFlood(t *testing.T) {
	const n = 250
	base := time.Now()
	records := make([]*models.PacketRecord, 0, n)
	for i := 0; i < n; i++ {
		at := base.Add(time.Duration(i) * 10 * time.Millisecond) // spans ~2.5s
		records = append(records, synTCPPacket(t, "9.9.9.9", "10.0.0.5", 4000, 22, 60, at))
	}

	p, sink, act := newTestPipeline(t, records)
	runUntilDrained(t, p)

	alerts := sink.snapshot()
	require.NotEmpty(t, alerts, "expected at least one alert from the SYN flood replay")

	var sawSynFlood bool
	for _, a := range alerts {
		if a.RuleName != nil && *a.RuleName == "SYN Flood Detection" {
			sawSynFlood = true
		}
		require.Equal(t, "9.9.9.9", a.SrcIP)
	}
	require.True(t, sawSynFlood, "expected a SYN Flood Detection alert among %d alerts", len(alerts))

	act.mu.Lock()
	defer act.mu.Unlock()
	require.Contains(t, act.bans, "9.9.9.9")
}

// TestPipelineScenarioS2LargePacket replays a single oversized packet
// and expects the Large Packet Detection rule to fire
// on the first packet, before any flow-level threshold could matter.
func TestPipelineScenarioS2LargePacket(t *testing.T) {
	rec := synTCPPacket(t, "8.8.4.4", "10.0.0.9", 5000, 443, 2000, time.Now())
	p, sink, _ := newTestPipeline(t, []*models.PacketRecord{rec})
	runUntilDrained(t, p)

	alerts := sink.snapshot()
	require.Len(t, alerts, 1)
	require.NotNil(t, alerts[0].RuleName)
	require.Equal(t, "Large Packet Detection", *alerts[0].RuleName)
	require.Equal(t, models.SeverityMedium, alerts[0].Severity)
}

// TestPipelineQuietTrafficProducesNoAlerts is the negative control: a
// handful of ordinary packets below every rule's threshold should
// never reach the sink.
func TestPipelineQuietTrafficProducesNoAlerts(t *testing.T) {
	base := time.Now()
	records := []*models.PacketRecord{
		synTCPPacket(t, "1.1.1.1", "10.0.0.1", 50000, 443, 600, base),
		synTCPPacket(t, "1.1.1.1", "10.0.0.1", 50000, 443, 600, base.Add(time.Second)),
	}
	p, sink, act := newTestPipeline(t, records)
	runUntilDrained(t, p)

	require.Empty(t, sink.snapshot())
	act.mu.Lock()
	defer act.mu.Unlock()
	require.Empty(t, act.bans)
}

// TestPipelineQuiesceIsIdempotentAndBounded verifies Quiesce returns
// promptly even with no traffic and that a second call, after the
// pipeline has stopped, neither blocks nor panics.
func TestPipelineQuiesceIsIdempotentAndBounded(t *testing.T) {
	p, _, _ := newTestPipeline(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	runDone := make(chan struct{})
	go func() {
		_ = p.Run(ctx)
		close(runDone)
	}()
	time.Sleep(50 * time.Millisecond)

	qctx, qcancel := context.WithTimeout(context.Background(), time.Second)
	defer qcancel()
	require.NoError(t, p.Quiesce(qctx))
	cancel()
	<-runDone

	// A second Quiesce call must not block or panic (sync.Once guard).
	qctx2, qcancel2 := context.WithTimeout(context.Background(), time.Second)
	defer qcancel2()
	require.NoError(t, p.Quiesce(qctx2))
}
