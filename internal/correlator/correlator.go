/**
 * Event Correlator.
 *
 * Time-windowed group-by counting over the alert stream: alerts are
 * appended to a per-group-key deque and a rule fires when enough of
 * them land inside its window. A single sync.Mutex guards a map of
 * pointer-sliced deques, with a context-cancelled time.Ticker goroutine
 * periodically evicting expired entries.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package correlator

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kleaSCM/sentryd/internal/models"
	"github.com/kleaSCM/sentryd/internal/rules"
)

// MaxRelatedAlerts bounds the tail of related alerts a CorrelationAlert
// carries.
const MaxRelatedAlerts = 10

// MaxWindow bounds how long any entry is retained regardless of rule,
// used by the sweeper to cap memory during quiet periods.
const MaxWindow = 10 * time.Minute

// groupKey identifies one (correlation_rule, group_by values) bucket.
type groupKey struct {
	rule string
	key  string
}

// Correlator holds the live correlation rule set and the per-group-key
// entry buffers, keyed by (correlation_rule_id, group_key) and holding
// a deque of (timestamp, alert_ref) pairs.
type Correlator struct {
	mu      sync.Mutex
	rulesBy []models.CorrelationRule
	buffer  map[groupKey][]models.CorrelationEntry

	// EmitOnEveryMatch toggles whether a firing group-key's buffer is
	// reset (spec default) or left to slide forever (legacy Python
	// behavior, which never clears event_buffer) — resolved Open
	// Question, see DESIGN.md.
	EmitOnEveryMatch bool

	onAlert func(models.CorrelationAlert)
}

// New constructs a Correlator seeded with the three default rules
// and wired to emit CorrelationAlert through onAlert.
func New(emitOnEveryMatch bool, onAlert func(models.CorrelationAlert)) *Correlator {
	c := &Correlator{
		buffer:           make(map[groupKey][]models.CorrelationEntry),
		EmitOnEveryMatch: emitOnEveryMatch,
		onAlert:          onAlert,
	}
	for _, r := range defaultRules() {
		c.AddRule(r)
	}
	return c
}

// defaultRules mirrors EventCorrelator._setup_default_rules exactly
// to seed the default correlation rules.
func defaultRules() []models.CorrelationRule {
	return []models.CorrelationRule{
		{
			Name: "Distributed Port Scan",
			Selection: []models.Condition{
				{Feature: "kind", Operator: models.OpEq, Operand: strOperand("rule")},
				{Feature: "rule_name", Operator: models.OpEq, Operand: strOperand("Port Scan Detection")},
			},
			GroupBy:    []string{"src_ip"},
			TimeWindow: 300 * time.Second,
			Threshold:  3,
			Severity:   models.SeverityHigh,
		},
		{
			Name: "Brute Force",
			Selection: []models.Condition{
				{Feature: "dst_port", Operator: models.OpIn, Operand: intSetOperand(22, 23, 3389)},
			},
			GroupBy:    []string{"src_ip", "dst_ip"},
			TimeWindow: 600 * time.Second,
			Threshold:  100,
			Severity:   models.SeverityHigh,
		},
		{
			Name: "DDoS",
			Selection: []models.Condition{
				{Feature: "kind", Operator: models.OpIn, Operand: strSetOperand("rule", "anomaly")},
				{Feature: "severity", Operator: models.OpEq, Operand: strOperand("high")},
			},
			GroupBy:    []string{"dst_ip"},
			TimeWindow: 60 * time.Second,
			Threshold:  1000,
			Severity:   models.SeverityCritical,
		},
	}
}

func strOperand(s string) models.Operand {
	return models.Operand{Kind: models.OperandStr, Str: s}
}

func intSetOperand(vals ...int64) models.Operand {
	set := make(map[int64]bool, len(vals))
	for _, v := range vals {
		set[v] = true
	}
	return models.Operand{Kind: models.OperandIntSet, IntSet: set}
}

func strSetOperand(vals ...string) models.Operand {
	set := make(map[string]bool, len(vals))
	for _, v := range vals {
		set[v] = true
	}
	return models.Operand{Kind: models.OperandStrSet, StrSet: set}
}

// AddRule registers an additional correlation rule at runtime.
func (c *Correlator) AddRule(r models.CorrelationRule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rulesBy = append(c.rulesBy, r)
}

// Process appends alert to every matching correlation rule's
// group-key buffer, evicts stale entries, and emits a CorrelationAlert
// when the resulting count reaches threshold.
func (c *Correlator) Process(alert models.Alert) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for _, rule := range c.rulesBy {
		if !matches(rule.Selection, alert) {
			continue
		}
		key := groupKey{rule: rule.Name, key: buildGroupKey(rule.GroupBy, alert)}
		entries := append(c.buffer[key], models.CorrelationEntry{Timestamp: now, Alert: alert})
		entries = evictOlder(entries, now.Add(-rule.TimeWindow))
		c.buffer[key] = entries

		if len(entries) >= rule.Threshold {
			c.emit(key, rule, entries, now)
			if !c.EmitOnEveryMatch {
				c.buffer[key] = nil // reset-on-fire
			}
		}
	}
}

func (c *Correlator) emit(key groupKey, rule models.CorrelationRule, entries []models.CorrelationEntry, now time.Time) {
	related := make([]models.Alert, 0, MaxRelatedAlerts)
	start := 0
	if len(entries) > MaxRelatedAlerts {
		start = len(entries) - MaxRelatedAlerts
	}
	for _, e := range entries[start:] {
		related = append(related, e.Alert)
	}

	ca := models.CorrelationAlert{
		ID:            uuid.NewString(),
		RuleName:      rule.Name,
		Severity:      rule.Severity,
		GroupKey:      key.key,
		FirstEntry:    entries[0].Timestamp,
		LastEntry:     entries[len(entries)-1].Timestamp,
		EntriesCount:  len(entries),
		RelatedAlerts: related,
	}
	if c.onAlert != nil {
		c.onAlert(ca)
	}
}

// matches evaluates rule's selection predicate against alert's fields
// using the shared rules.Condition evaluator.
func matches(selection []models.Condition, alert models.Alert) bool {
	for _, cond := range selection {
		val, ok := alert.Field(cond.Feature)
		if !ok {
			return false
		}
		if !rules.EvalAgainstString(cond.Operator, cond.Operand, val) {
			return false
		}
	}
	return true
}

// buildGroupKey joins the named alert fields with "|", substituting the
// empty string for any missing field.
func buildGroupKey(fields []string, alert models.Alert) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		v, _ := alert.Field(f)
		parts[i] = v
	}
	return strings.Join(parts, "|")
}

func evictOlder(entries []models.CorrelationEntry, cutoff time.Time) []models.CorrelationEntry {
	kept := entries[:0:0]
	for _, e := range entries {
		if !e.Timestamp.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	return kept
}

// RunSweeper blocks, running a full-buffer eviction pass once per
// minute until ctx is cancelled.
func (c *Correlator) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.sweep(now)
		}
	}
}

func (c *Correlator) sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := now.Add(-MaxWindow)
	for key, entries := range c.buffer {
		kept := evictOlder(entries, cutoff)
		if len(kept) == 0 {
			delete(c.buffer, key)
		} else {
			c.buffer[key] = kept
		}
	}
}
