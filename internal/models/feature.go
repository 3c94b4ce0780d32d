/**
 * Feature Model.
 *
 * Defines the closed set of feature names the detection pipeline knows
 * about and the typed value union carried for each. Replaces the
 * free-form string-keyed dictionaries of the original detector with a
 * fixed enumeration so the rule engine can reason about types instead
 * of guessing at runtime.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package models

import "fmt"

// FeatureKey identifies one entry in a FeatureMap. The set is closed:
// the YAML rule loader rejects any name outside this list as a
// ConfigError at load time.
type FeatureKey string

const (
	FeatureIPLen    FeatureKey = "ip_len"
	FeatureIPTTL    FeatureKey = "ip_ttl"
	FeatureIPProto  FeatureKey = "ip_proto"
	FeatureTCPSport FeatureKey = "tcp_sport"
	FeatureTCPDport FeatureKey = "tcp_dport"
	FeatureTCPFlags FeatureKey = "tcp_flags"
	FeatureTCPWin   FeatureKey = "tcp_window"
	FeatureUDPSport FeatureKey = "udp_sport"
	FeatureUDPDport FeatureKey = "udp_dport"
	FeatureUDPLen   FeatureKey = "udp_len"

	// Flow-level features, computed on demand by the session tracker.
	FeatureDuration       FeatureKey = "duration"
	FeaturePacketCount    FeatureKey = "packet_count"
	FeatureBytesTotal     FeatureKey = "bytes_total"
	FeatureBytesPerSecond FeatureKey = "bytes_per_second"
	FeaturePacketSizeMean FeatureKey = "packet_size_mean"
	FeaturePacketSizeStd  FeatureKey = "packet_size_std"
)

// PerPacketKeys is the subset of FeatureKey populated by the feature
// extractor (C3) directly from packet headers.
var PerPacketKeys = map[FeatureKey]bool{
	FeatureIPLen: true, FeatureIPTTL: true, FeatureIPProto: true,
	FeatureTCPSport: true, FeatureTCPDport: true, FeatureTCPFlags: true, FeatureTCPWin: true,
	FeatureUDPSport: true, FeatureUDPDport: true, FeatureUDPLen: true,
}

// FlowKeys is the subset of FeatureKey computed by the session tracker
// (C4) over a flow's accumulated packets.
var FlowKeys = map[FeatureKey]bool{
	FeatureDuration: true, FeaturePacketCount: true, FeatureBytesTotal: true,
	FeatureBytesPerSecond: true, FeaturePacketSizeMean: true, FeaturePacketSizeStd: true,
}

// ValueKind tags which field of FeatureValue holds the live value.
type ValueKind int

const (
	KindInt ValueKind = iota
	KindFloat
	KindString
)

// FeatureValue is a typed union; exactly one of Int/Float/Str is
// meaningful depending on Kind.
type FeatureValue struct {
	Kind  ValueKind
	Int   int64
	Float float64
	Str   string
}

func IntValue(v int64) FeatureValue     { return FeatureValue{Kind: KindInt, Int: v} }
func FloatValue(v float64) FeatureValue { return FeatureValue{Kind: KindFloat, Float: v} }
func StringValue(v string) FeatureValue { return FeatureValue{Kind: KindString, Str: v} }

// AsFloat returns the value widened to float64 for numeric comparisons.
// ok is false for string values.
func (v FeatureValue) AsFloat() (float64, bool) {
	switch v.Kind {
	case KindInt:
		return float64(v.Int), true
	case KindFloat:
		return v.Float, true
	default:
		return 0, false
	}
}

func (v FeatureValue) String() string {
	switch v.Kind {
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindFloat:
		return fmt.Sprintf("%g", v.Float)
	default:
		return v.Str
	}
}

// FeatureMap is a mapping from FeatureKey to FeatureValue. Absence of a
// key means "not applicable"; it is never represented with a sentinel
// zero value.
type FeatureMap map[FeatureKey]FeatureValue

// Domain reports whether every key present in the map belongs to the
// per-packet set, the flow set, or a mix of both (as in the merged
// packet-plus-flow maps the pipeline hands to the rule engine).
func (m FeatureMap) Domain() string {
	hasPacket, hasFlow := false, false
	for k := range m {
		if PerPacketKeys[k] {
			hasPacket = true
		}
		if FlowKeys[k] {
			hasFlow = true
		}
	}
	switch {
	case hasPacket && hasFlow:
		return "mixed"
	case hasFlow:
		return "flow"
	default:
		return "packet"
	}
}
