/**
 * HTTP Control Plane DTOs.
 *
 * JSON request/response shapes for the admin HTTP surface,
 * kept separate from internal/models so the wire format can evolve
 * independently of the detection pipeline's internal types.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package api

import "time"

// AlertDTO is the wire representation of models.Alert.
type AlertDTO struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Severity   string    `json:"severity"`
	SrcIP      string    `json:"src_ip"`
	DstIP      string    `json:"dst_ip"`
	SrcPort    *uint16   `json:"src_port,omitempty"`
	DstPort    *uint16   `json:"dst_port,omitempty"`
	Protocol   string    `json:"protocol"`
	Kind       string    `json:"kind"`
	RuleName   *string   `json:"rule_name,omitempty"`
	Confidence *float64  `json:"confidence,omitempty"`
}

// AlertListResponse is the paginated alert list response.
type AlertListResponse struct {
	Total  int        `json:"total"`
	Alerts []AlertDTO `json:"alerts"`
}

// SeverityHistogramResponse is the 24h severity histogram.
type SeverityHistogramResponse struct {
	Stats map[string]int `json:"stats"`
}

// ConditionDTO is the wire form of a rule condition triple.
type ConditionDTO struct {
	Feature  string      `json:"feature"`
	Operator string      `json:"operator"`
	Operand  interface{} `json:"operand"`
}

// RuleDTO is the wire representation of models.Rule.
type RuleDTO struct {
	Name       string         `json:"name"`
	Conditions []ConditionDTO `json:"conditions"`
	Severity   string         `json:"severity"`
	Enabled    bool           `json:"enabled"`
	Custom     bool           `json:"custom"`
}

// RuleListResponse wraps GET /api/rules.
type RuleListResponse struct {
	Rules []RuleDTO `json:"rules"`
}

// TalkerDTO is one row of the top-talkers report. Country/Org and
// Hostname are opportunistic GeoIP/reverse-DNS enrichment: both are
// left blank when the corresponding service is disabled or the lookup
// misses.
type TalkerDTO struct {
	IP           string `json:"ip"`
	BytesTotal   int64  `json:"bytes_total"`
	PacketsTotal int64  `json:"packets_total"`
	Country      string `json:"country,omitempty"`
	Org          string `json:"org,omitempty"`
	Hostname     string `json:"hostname,omitempty"`
}

// TopTalkersResponse wraps GET /api/stats/top-ips and GET
// /api/stats/traffic.
type TopTalkersResponse struct {
	Talkers []TalkerDTO `json:"talkers"`
}

// ErrorResponse is the uniform error body for non-2xx responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// OKResponse acknowledges a mutation with no further payload.
type OKResponse struct {
	OK bool `json:"ok"`
}
