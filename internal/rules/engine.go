/**
 * Rule Engine.
 *
 * Holds the live rule table behind a copy-on-write atomic.Pointer swap
 * so Check never blocks on mutation and mutation never blocks on
 * evaluation. Supports loading built-in and custom rule files,
 * enabling/disabling/adding/removing rules at runtime, and hot-reload
 * from disk.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package rules

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/kleaSCM/sentryd/internal/errkind"
	"github.com/kleaSCM/sentryd/internal/models"
	"github.com/kleaSCM/sentryd/internal/telemetry"
)

// table is the immutable snapshot swapped in on every successful
// reload; rules is the evaluation order (built-ins then custom).
type table struct {
	rules []models.Rule
}

// Engine evaluates FeatureMaps against the current rule table and
// exposes synchronous mutation operations.
type Engine struct {
	dir     string
	current atomic.Pointer[table]
	// mu serializes mutation so add/remove/enable/disable/reload never
	// interleave their read-modify-write of the on-disk custom file or
	// stomp each other's swap.
	mu      sync.Mutex
	log     *zap.Logger
	metrics *telemetry.Metrics
	watcher *fsnotify.Watcher
}

// New constructs an Engine rooted at dir (containing built-in *.yaml
// files plus custom_rules.yaml) and performs an initial load.
func New(dir string, log *zap.Logger, metrics *telemetry.Metrics) (*Engine, error) {
	e := &Engine{dir: dir, log: log, metrics: metrics}
	if err := e.reloadLocked(); err != nil {
		return nil, err
	}
	return e, nil
}

// Check evaluates every enabled rule against fm, returning one Alert
// per firing rule. fm is expected to carry both per-packet and
// flow features merged together; a rule whose conditions reference keys absent from fm
// simply never matches those conditions.
// Rule.Domain is informational only — it classifies which feature
// namespace a rule draws from, but does not gate evaluation and is not
// exposed by the control plane. A panic or internal error in a single
// rule's evaluation is isolated: it is counted and skipped rather than
// aborting the batch.
func (e *Engine) Check(fm models.FeatureMap) []models.Alert {
	t := e.current.Load()
	if t == nil {
		return nil
	}

	var alerts []models.Alert
	for _, rule := range t.rules {
		if !rule.Enabled {
			continue
		}
		if e.fires(rule, fm) {
			name := rule.Name
			alerts = append(alerts, models.Alert{
				Kind:     models.AlertKindRule,
				RuleName: &name,
				Severity: rule.Severity,
			})
		}
	}
	return alerts
}

func (e *Engine) fires(rule models.Rule, fm models.FeatureMap) (matched bool) {
	defer func() {
		if r := recover(); r != nil {
			matched = false
			if e.metrics != nil {
				e.metrics.RuleEvalErrors.WithLabelValues(rule.Name).Inc()
			}
			if e.log != nil {
				e.log.Error("rule evaluation panicked", zap.String("rule", rule.Name), zap.Any("recover", r))
			}
		}
	}()
	for _, cond := range rule.Conditions {
		if !evalCondition(cond, fm) {
			return false
		}
	}
	return len(rule.Conditions) > 0
}

// Snapshot returns a copy of every rule currently loaded, for the
// control plane's rule-listing endpoint.
func (e *Engine) Snapshot() []models.Rule {
	t := e.current.Load()
	if t == nil {
		return nil
	}
	out := make([]models.Rule, len(t.rules))
	copy(out, t.rules)
	return out
}

// Reload re-reads every rule file from disk and atomically swaps in the
// new table. On a parse failure the previous table is retained and the
// error is returned.
func (e *Engine) Reload() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reloadLocked()
}

func (e *Engine) reloadLocked() error {
	builtins, custom, err := loadDir(e.dir)
	if err != nil {
		return err
	}
	merged := mergeRules(builtins, custom)
	e.current.Store(&table{rules: merged})
	return nil
}

// mergeRules returns builtins with any custom rule of the same name
// replacing it, plus custom rules with no built-in counterpart appended.
func mergeRules(builtins, custom []models.Rule) []models.Rule {
	byName := make(map[string]int, len(builtins))
	merged := make([]models.Rule, len(builtins))
	copy(merged, builtins)
	for i, r := range merged {
		byName[r.Name] = i
	}
	for _, c := range custom {
		if i, ok := byName[c.Name]; ok {
			merged[i] = c
		} else {
			merged = append(merged, c)
			byName[c.Name] = len(merged) - 1
		}
	}
	return merged
}

// Add inserts or replaces a custom rule, persists it to
// custom_rules.yaml, and reloads the live table.
func (e *Engine) Add(rule models.Rule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	rule.Custom = true
	if err := writeCustomRule(e.dir, rule); err != nil {
		return err
	}
	return e.reloadLocked()
}

// setEnabled flips Enabled for the named rule in-place on the live
// snapshot and, if the rule is custom, persists the change. Returns
// false if name is unknown.
func (e *Engine) setEnabled(name string, enabled bool) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t := e.current.Load()
	if t == nil {
		return false, nil
	}
	found := false
	next := make([]models.Rule, len(t.rules))
	copy(next, t.rules)
	for i, r := range next {
		if r.Name == name {
			next[i].Enabled = enabled
			found = true
			if r.Custom {
				next[i].Custom = true
				if err := writeCustomRule(e.dir, next[i]); err != nil {
					return false, err
				}
			}
			break
		}
	}
	if !found {
		return false, nil
	}
	e.current.Store(&table{rules: next})
	return true, nil
}

// Enable turns a rule on without discarding its definition.
func (e *Engine) Enable(name string) (bool, error) { return e.setEnabled(name, true) }

// Disable turns a rule off without discarding its definition.
func (e *Engine) Disable(name string) (bool, error) { return e.setEnabled(name, false) }

// Remove drops name from the live table. Only custom rules can be
// removed outright; attempting to remove a built-in rule is rejected in
// favor of Disable, so a built-in's definition can always be recovered
// by editing rules/builtin.yaml back to its seed state.
func (e *Engine) Remove(name string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t := e.current.Load()
	if t == nil {
		return false, nil
	}
	idx := -1
	for i, r := range t.rules {
		if r.Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, nil
	}
	if !t.rules[idx].Custom {
		return false, errkind.Wrap(errkind.Config, "remove_rule",
			fmt.Errorf("rule %q is built-in; disable it instead of removing", name))
	}

	next := make([]models.Rule, 0, len(t.rules)-1)
	next = append(next, t.rules[:idx]...)
	next = append(next, t.rules[idx+1:]...)
	e.current.Store(&table{rules: next})

	if err := removeCustomRule(e.dir, name); err != nil {
		return false, err
	}
	return true, nil
}

// WatchReload starts an fsnotify watch on dir and triggers Reload on
// any write/create/rename event, logging and discarding reload errors
// so a transient bad edit does not crash the watcher goroutine. Call Close to stop watching.
func (e *Engine) WatchReload() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errkind.Wrap(errkind.Config, "create_watcher", err)
	}
	if err := w.Add(e.dir); err != nil {
		_ = w.Close()
		return errkind.Wrap(errkind.Config, "watch_rules_dir", err)
	}
	e.watcher = w

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := e.Reload(); err != nil && e.log != nil {
					e.log.Warn("rule hot-reload failed; keeping previous table",
						zap.String("file", ev.Name), zap.Error(err))
				}
			case werr, ok := <-w.Errors:
				if !ok {
					return
				}
				if e.log != nil {
					e.log.Warn("rule watcher error", zap.Error(werr))
				}
			}
		}
	}()
	return nil
}

// Close stops the hot-reload watcher, if one was started.
func (e *Engine) Close() error {
	if e.watcher == nil {
		return nil
	}
	return e.watcher.Close()
}
