/**
 * Control Plane Hooks.
 *
 * Synchronous operations safe to call from a goroutine distinct from
 * the worker pool: reload/add/remove/enable/disable rules,
 * and quiesce. Backed by the same rules.Engine the workers read, so a
 * mutation is visible to the very next dequeued packet.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package control

import (
	"context"

	"github.com/kleaSCM/sentryd/internal/models"
	"github.com/kleaSCM/sentryd/internal/rules"
)

// Quiescer is implemented by the pipeline: stop accepting new packets,
// drain in-flight work, then stop workers.
type Quiescer interface {
	Quiesce(ctx context.Context) error
}

// Hooks exposes the control-plane operations over the live rule engine
// and pipeline lifecycle.
type Hooks struct {
	Engine   *rules.Engine
	Pipeline Quiescer
}

// New builds a Hooks bound to engine and pipeline.
func New(engine *rules.Engine, pipeline Quiescer) *Hooks {
	return &Hooks{Engine: engine, Pipeline: pipeline}
}

// ReloadRules re-reads every rule file from disk.
func (h *Hooks) ReloadRules() error { return h.Engine.Reload() }

// AddRule inserts or replaces a custom rule.
func (h *Hooks) AddRule(rule models.Rule) error { return h.Engine.Add(rule) }

// RemoveRule deletes a custom rule by name.
func (h *Hooks) RemoveRule(name string) (bool, error) { return h.Engine.Remove(name) }

// EnableRule turns a rule on without discarding its definition.
func (h *Hooks) EnableRule(name string) (bool, error) { return h.Engine.Enable(name) }

// DisableRule turns a rule off without discarding its definition.
func (h *Hooks) DisableRule(name string) (bool, error) { return h.Engine.Disable(name) }

// ListRules returns the current rule table (used by the HTTP admin
// surface's GET /api/rules).
func (h *Hooks) ListRules() []models.Rule { return h.Engine.Snapshot() }

// Quiesce stops accepting new packets, drains the queue, then joins
// workers: it stops the source and sets the stop signal, workers
// process what is still queued, then all goroutines are joined with a
// bounded timeout.
func (h *Hooks) Quiesce(ctx context.Context) error { return h.Pipeline.Quiesce(ctx) }
