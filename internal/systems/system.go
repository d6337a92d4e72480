// Package systems implements the fixed catalog of per-tick behaviors.
//
// A System is invoked once per tick, in declared order, with a rules.Context
// bound to that tick. Later systems observe earlier systems' mutations within
// the same tick. Systems keep only ids between calls; any per-run memory
// (cooldowns, trigger arming, completed era transitions) lives inside the
// System value built for that run.
//
// Systems that need bundle-defined templates or actions receive them through
// the Template and Action interfaces; package interp provides the
// implementations.
package systems

import (
	"errors"
	"slices"

	"github.com/roach88/loreweave/internal/ir"
	"github.com/roach88/loreweave/internal/rules"
)

// ErrReentrantTransition is returned when an era that already transitioned
// becomes the active era and tries to transition again.
var ErrReentrantTransition = errors.New("reentrant era transition")

// System is one entry of the catalog.
type System struct {
	ID         string
	Type       ir.SystemType
	Eras       []string
	Conditions []ir.Condition
	Run        func(ctx *rules.Context) error
}

// Active reports whether the system runs this tick: the current era must be
// listed (when eras are declared) and every gate condition must hold.
func (s System) Active(ctx *rules.Context) bool {
	if len(s.Eras) > 0 && !slices.Contains(s.Eras, ctx.EraID) {
		return false
	}
	return rules.EvaluateAll(ctx, s.Conditions, rules.SimpleResolver{})
}

// Template creates one entity per expansion.
type Template interface {
	ID() string
	// EraWeight scales the template's selection weight in an era.
	EraWeight(eraID string) float64
	CanApply(ctx *rules.Context) bool
	// Expand creates the entity and returns its id, or "" when the template
	// found nothing to anchor on.
	Expand(ctx *rules.Context) (ir.EntityID, error)
}

// Action is an agent behavior attempted by the catalyst or a trigger.
type Action interface {
	ID() string
	Category() string
	Cooldown() int
	// CanPerform checks the actor filters only.
	CanPerform(ctx *rules.Context, actor ir.Entity) bool
	CalculateAttemptChance(ctx *rules.Context, actor ir.Entity) float64
	// Execute resolves targets, checks conditions and applies the outcome.
	// It reports false when the action degraded to a no-op.
	Execute(ctx *rules.Context, actor ir.EntityID) (bool, error)
	// Fire executes with the most prominent eligible actor.
	Fire(ctx *rules.Context) (bool, error)
}

// WeightedTemplate pairs a template with its weight in a growth system.
type WeightedTemplate struct {
	Template Template
	Weight   float64
}

func base(cfg ir.SystemConfig) System {
	return System{
		ID:         cfg.ID,
		Type:       cfg.Type,
		Eras:       slices.Clone(cfg.Eras),
		Conditions: slices.Clone(cfg.Conditions),
	}
}

// structural reports whether edges of kind are maintained by the graph
// itself rather than by relationship systems.
func structural(kind string) bool {
	return kind == ir.KindPartOf || kind == ir.KindSupersedes
}

// viaKind reports whether an edge of kind participates in propagation over
// the listed kinds. An empty list admits every non-structural kind.
func viaKind(via []string, kind string) bool {
	if len(via) == 0 {
		return !structural(kind)
	}
	return slices.Contains(via, kind)
}
