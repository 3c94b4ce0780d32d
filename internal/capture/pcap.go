/**
 * Live Packet Capture Source.
 *
 * Wraps github.com/google/gopacket/pcap with an inactive-handle-then-
 * activate sequence (set SnapLen/Promisc/Timeout/BufferSize, then
 * compile and attach a BPF filter), emitting models.PacketRecord.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package capture

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/kleaSCM/sentryd/internal/models"
)

// PcapConfig controls how a live capture handle is opened and filtered.
type PcapConfig struct {
	Interface   string
	SnapLen     int32
	Promiscuous bool
	Timeout     time.Duration
	BufferSizeMB int
	BPFFilter   string
}

// DefaultPcapConfig returns sane capture defaults: full-size Ethernet
// snaplen, promiscuous, block-forever read timeout, 32MB kernel
// buffer, no filter.
func DefaultPcapConfig(iface string) PcapConfig {
	return PcapConfig{
		Interface:    iface,
		SnapLen:      65536,
		Promiscuous:  true,
		Timeout:      pcap.BlockForever,
		BufferSizeMB: 32,
	}
}

// PcapSource is the live Source implementation.
type PcapSource struct {
	cfg          PcapConfig
	handle       *pcap.Handle
	packetSource *gopacket.PacketSource
	running      atomic.Bool
	stop         chan struct{}
}

// NewPcapSource builds an unopened source for cfg.
func NewPcapSource(cfg PcapConfig) *PcapSource {
	return &PcapSource{cfg: cfg, stop: make(chan struct{})}
}

// Open resolves the configured interface (falling back to
// GetDefaultInterface when none is configured), validates it exists,
// and activates the pcap handle. Any failure here is fatal to startup.
func (s *PcapSource) Open() error {
	if s.cfg.Interface == "" {
		def, err := GetDefaultInterface()
		if err != nil {
			return fmt.Errorf("resolve default interface: %w", err)
		}
		s.cfg.Interface = def.Name
	}
	if _, err := FindInterface(s.cfg.Interface); err != nil {
		return fmt.Errorf("interface error: %w", err)
	}

	inactive, err := pcap.NewInactiveHandle(s.cfg.Interface)
	if err != nil {
		return fmt.Errorf("create inactive handle: %w", err)
	}
	defer inactive.CleanUp()

	if err := inactive.SetSnapLen(int(s.cfg.SnapLen)); err != nil {
		return fmt.Errorf("set snaplen: %w", err)
	}
	if err := inactive.SetPromisc(s.cfg.Promiscuous); err != nil {
		return fmt.Errorf("set promiscuous: %w", err)
	}
	if err := inactive.SetTimeout(s.cfg.Timeout); err != nil {
		return fmt.Errorf("set timeout: %w", err)
	}
	if s.cfg.BufferSizeMB > 0 {
		if err := inactive.SetBufferSize(s.cfg.BufferSizeMB * 1024 * 1024); err != nil {
			return fmt.Errorf("set buffer size: %w", err)
		}
	}

	handle, err := inactive.Activate()
	if err != nil {
		return fmt.Errorf("activate handle: %w", err)
	}
	s.handle = handle

	if s.cfg.BPFFilter != "" {
		if err := handle.SetBPFFilter(s.cfg.BPFFilter); err != nil {
			handle.Close()
			return fmt.Errorf("set BPF filter: %w", err)
		}
	}

	s.packetSource = gopacket.NewPacketSource(handle, handle.LinkType())
	return nil
}

// Start runs the capture loop until ctx is cancelled or Stop is called,
// invoking sink exactly once per delivered packet.
func (s *PcapSource) Start(ctx context.Context, sink Sink) error {
	if s.packetSource == nil {
		return fmt.Errorf("source not opened")
	}
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("source already running")
	}
	defer s.running.Store(false)

	packets := s.packetSource.Packets()
	var seq uint64

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stop:
			return nil
		case pkt, ok := <-packets:
			if !ok {
				return nil
			}
			if pkt == nil {
				continue
			}
			seq++
			sink(toPacketRecord(pkt, seq))
		}
	}
}

// Stop causes Start's loop to return after its current iteration.
func (s *PcapSource) Stop() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
}

// DropStats reports the kernel's packet-drop counter, surfaced through
// telemetry rather than the sink.
func (s *PcapSource) DropStats() (uint64, error) {
	if s.handle == nil {
		return 0, fmt.Errorf("source not opened")
	}
	st, err := s.handle.Stats()
	if err != nil {
		return 0, err
	}
	return uint64(st.PacketsDropped), nil
}

func toPacketRecord(pkt gopacket.Packet, seq uint64) *models.PacketRecord {
	rec := &models.PacketRecord{
		Seq:       seq,
		CaptureAt: pkt.Metadata().Timestamp,
		Mono:      time.Now(),
		Protocol:  models.ProtoOther,
		TotalLen:  pkt.Metadata().Length,
		Raw:       pkt.Data(),
	}

	if ip4, ok := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4); ok {
		rec.SrcIP, rec.DstIP = ip4.SrcIP.String(), ip4.DstIP.String()
	} else if ip6, ok := pkt.Layer(layers.LayerTypeIPv6).(*layers.IPv6); ok {
		rec.SrcIP, rec.DstIP = ip6.SrcIP.String(), ip6.DstIP.String()
	}

	if tcp, ok := pkt.Layer(layers.LayerTypeTCP).(*layers.TCP); ok {
		rec.Protocol = models.ProtoTCP
		sp, dp := uint16(tcp.SrcPort), uint16(tcp.DstPort)
		rec.SrcPort, rec.DstPort = &sp, &dp
		flags := tcpFlagsByte(tcp)
		rec.TCPFlags = &flags
	} else if udp, ok := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP); ok {
		rec.Protocol = models.ProtoUDP
		sp, dp := uint16(udp.SrcPort), uint16(udp.DstPort)
		rec.SrcPort, rec.DstPort = &sp, &dp
	}

	return rec
}

// tcpFlagsByte packs gopacket's exploded boolean TCP flags back into
// the raw 8-bit value, mirroring internal/features/extract.go's copy
// used for rule evaluation (kept local so capture does not depend on
// features).
func tcpFlagsByte(tcp *layers.TCP) uint8 {
	var flags uint8
	if tcp.FIN {
		flags |= 0x01
	}
	if tcp.SYN {
		flags |= 0x02
	}
	if tcp.RST {
		flags |= 0x04
	}
	if tcp.PSH {
		flags |= 0x08
	}
	if tcp.ACK {
		flags |= 0x10
	}
	if tcp.URG {
		flags |= 0x20
	}
	if tcp.ECE {
		flags |= 0x40
	}
	if tcp.CWR {
		flags |= 0x80
	}
	return flags
}
