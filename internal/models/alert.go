/**
 * Alert Model.
 *
 * The verdict emitted by the rule engine, the anomaly scorer, or the
 * event correlator.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package models

import (
	"strconv"
	"time"
)

// AlertKind distinguishes the detector that produced an alert.
type AlertKind string

const (
	AlertKindRule        AlertKind = "rule"
	AlertKindAnomaly     AlertKind = "anomaly"
	AlertKindCorrelation AlertKind = "correlation"
)

// Alert is the emitted verdict record. RuleName and Confidence are
// nullable depending on Kind: RuleName is set for AlertKindRule,
// Confidence for AlertKindAnomaly.
type Alert struct {
	ID         string
	Timestamp  time.Time
	Severity   Severity
	SrcIP      string
	DstIP      string
	SrcPort    *uint16
	DstPort    *uint16
	Protocol   Protocol
	Kind       AlertKind
	RuleName   *string
	Confidence *float64
	PacketSeq  uint64 // reference to the triggering packet, not its bytes
}

// Field returns the string form of an alert field by name, used by the
// correlator's selection predicate and group-by key computation.
// Unknown fields return ("", false).
func (a Alert) Field(name string) (string, bool) {
	switch name {
	case "src_ip":
		return a.SrcIP, true
	case "dst_ip":
		return a.DstIP, true
	case "protocol":
		return string(a.Protocol), true
	case "kind":
		return string(a.Kind), true
	case "severity":
		return string(a.Severity), true
	case "rule_name":
		if a.RuleName == nil {
			return "", false
		}
		return *a.RuleName, true
	case "dst_port":
		if a.DstPort == nil {
			return "", false
		}
		return portString(*a.DstPort), true
	case "src_port":
		if a.SrcPort == nil {
			return "", false
		}
		return portString(*a.SrcPort), true
	default:
		return "", false
	}
}

func portString(p uint16) string { return strconv.Itoa(int(p)) }
