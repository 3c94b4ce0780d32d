/**
 * Session Model.
 *
 * Defines the data structure for a network session: packets sharing a
 * canonical 5-tuple, grouped so flow-level features can be computed
 * over the conversation rather than a single packet.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package models

import (
	"fmt"
	"math"
	"time"
)

// PacketRef pairs a packet's sequence number with its capture time so a
// Session's history can be replayed for flow-feature computation
// without holding the full PacketRecord.
type PacketRef struct {
	Seq       uint64
	Timestamp time.Time
	IPLen     int
}

// Session is keyed by FlowKey and accumulates the append-only packet
// history for one conversation. FirstSeen/LastSeen track the
// earliest and latest timestamps observed under this key.
type Session struct {
	Key       FlowKey
	FirstSeen time.Time
	LastSeen  time.Time
	Packets   []PacketRef
}

// Touch appends a packet reference and advances LastSeen, enforcing
// the invariant that LastSeen is the max timestamp observed.
func (s *Session) Touch(ref PacketRef) {
	if len(s.Packets) == 0 {
		s.FirstSeen = ref.Timestamp
	}
	s.Packets = append(s.Packets, ref)
	if ref.Timestamp.After(s.LastSeen) {
		s.LastSeen = ref.Timestamp
	}
}

// Idle reports whether the session has been silent for longer than
// timeout as of now.
func (s *Session) Idle(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.LastSeen) > timeout
}

// FlowFeatures computes the flow-level feature formulas over the
// session's packet history.
func (s *Session) FlowFeatures() FeatureMap {
	n := len(s.Packets)
	fm := FeatureMap{}
	if n == 0 {
		return fm
	}

	duration := s.LastSeen.Sub(s.FirstSeen).Seconds()
	if duration < 0 {
		duration = 0
	}

	var bytesTotal int64
	for _, p := range s.Packets {
		bytesTotal += int64(p.IPLen)
	}

	var mean float64
	if n > 0 {
		mean = float64(bytesTotal) / float64(n)
	}

	var variance float64
	if n >= 2 {
		var sumSq float64
		for _, p := range s.Packets {
			d := float64(p.IPLen) - mean
			sumSq += d * d
		}
		variance = sumSq / float64(n)
	}
	std := math.Sqrt(variance)

	var bytesPerSecond float64
	if duration > 0 {
		bytesPerSecond = float64(bytesTotal) / duration
	}

	fm[FeatureDuration] = FloatValue(duration)
	fm[FeaturePacketCount] = IntValue(int64(n))
	fm[FeatureBytesTotal] = IntValue(bytesTotal)
	fm[FeatureBytesPerSecond] = FloatValue(bytesPerSecond)
	fm[FeaturePacketSizeMean] = FloatValue(mean)
	fm[FeaturePacketSizeStd] = FloatValue(std)
	return fm
}

// String renders a human-readable form of the flow key, used in logs.
func (k FlowKey) String() string {
	return fmt.Sprintf("%s <-> %s [%s]", k.EndpointA, k.EndpointB, k.Protocol)
}
