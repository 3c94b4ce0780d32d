/**
 * Packet Record Model.
 *
 * Represents the immutable per-packet record handed from the capture
 * adapter through the ingress queue to a worker, carrying only the
 * header fields the detection pipeline consumes; DNS/TLS layer details
 * are out of scope.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package models

import (
	"strconv"
	"time"
)

// Protocol identifies the L4 protocol tag carried on a PacketRecord.
type Protocol string

const (
	ProtoTCP   Protocol = "TCP"
	ProtoUDP   Protocol = "UDP"
	ProtoOther Protocol = "OTHER"
)

// PacketRecord is created once by the packet source and owned
// exclusively by the worker processing it until it is routed. Seq is assigned by the ingress queue and used only to
// prove per-worker ordering in tests; it carries no detection meaning.
type PacketRecord struct {
	Seq       uint64
	CaptureAt time.Time // wall clock
	Mono      time.Time // monotonic reading taken at enqueue time

	SrcIP, DstIP string
	Protocol     Protocol
	SrcPort      *uint16
	DstPort      *uint16
	TotalLen     int
	TCPFlags     *uint8 // raw 8-bit flags, TCP only

	Raw []byte // opaque byte view, header decoding only
}

// FlowKey canonicalises the unordered 5-tuple so both directions of a
// conversation map to the same Session.
type FlowKey struct {
	EndpointA, EndpointB string // "ip:port"
	Protocol             Protocol
}

// Key computes the canonical FlowKey for a packet, ordering the two
// endpoints lexicographically so P and its reverse-direction packet
// produce an identical key.
func (p *PacketRecord) Key() FlowKey {
	a := endpoint(p.SrcIP, p.SrcPort)
	b := endpoint(p.DstIP, p.DstPort)
	if a > b {
		a, b = b, a
	}
	return FlowKey{EndpointA: a, EndpointB: b, Protocol: p.Protocol}
}

func endpoint(ip string, port *uint16) string {
	if port == nil {
		return ip + ":0"
	}
	return ip + ":" + strconv.Itoa(int(*port))
}
