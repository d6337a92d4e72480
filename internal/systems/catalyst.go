package systems

import (
	"fmt"

	"github.com/roach88/loreweave/internal/ir"
	"github.com/roach88/loreweave/internal/rules"
)

type cooldownKey struct {
	entity ir.EntityID
	name   string
}

// Cooldowns tracks the tick until which an (entity, name) pair is blocked.
type Cooldowns struct {
	until map[cooldownKey]int64
}

// NewCooldowns creates an empty tracker.
func NewCooldowns() *Cooldowns {
	return &Cooldowns{until: make(map[cooldownKey]int64)}
}

// Ready reports whether the pair may act at tick.
func (c *Cooldowns) Ready(entity ir.EntityID, name string, tick int64) bool {
	return tick >= c.until[cooldownKey{entity, name}]
}

// Start blocks the pair for ticks ticks after tick.
func (c *Cooldowns) Start(entity ir.EntityID, name string, tick int64, ticks int) {
	if ticks <= 0 {
		return
	}
	c.until[cooldownKey{entity, name}] = tick + int64(ticks) + 1
}

// NewUniversalCatalyst builds the universal catalyst. Each tick it makes
// attempts_per_tick draws of an agent weighted by prominence, picks one of
// the agent's eligible actions uniformly, and executes it with probability
// CalculateAttemptChance * base_rate. Successful actions start a cooldown
// per (agent, action) and per (agent, category).
func NewUniversalCatalyst(cfg ir.SystemConfig, s ir.CatalystSettings, actions []Action) System {
	sys := base(cfg)
	actionCD := NewCooldowns()
	categoryCD := NewCooldowns()
	sys.Run = func(ctx *rules.Context) error {
		if len(actions) == 0 {
			return nil
		}
		for range s.AttemptsPerTick {
			agents := rules.MatchingEntities(ctx, s.Agents, rules.SimpleResolver{})
			if len(agents) == 0 {
				return nil
			}
			weights := make([]float64, len(agents))
			for i, a := range agents {
				weights[i] = a.Prominence
			}
			agent := agents[rules.WeightedIndex(weights, ctx.Rand)]

			var eligible []Action
			for _, act := range actions {
				if !actionCD.Ready(agent.ID, act.ID(), ctx.Tick) {
					continue
				}
				if act.Category() != "" && !categoryCD.Ready(agent.ID, act.Category(), ctx.Tick) {
					continue
				}
				if act.CanPerform(ctx, agent) {
					eligible = append(eligible, act)
				}
			}
			if len(eligible) == 0 {
				continue
			}
			act := eligible[ctx.Rand.IntN(len(eligible))]
			chance := act.CalculateAttemptChance(ctx, agent) * s.BaseRate
			if ctx.Rand.Float64() >= chance {
				continue
			}
			ok, err := act.Execute(ctx, agent.ID)
			if err != nil {
				return fmt.Errorf("action %s by %s: %w", act.ID(), agent.ID, err)
			}
			if !ok {
				continue
			}
			actionCD.Start(agent.ID, act.ID(), ctx.Tick, act.Cooldown())
			if act.Category() != "" {
				categoryCD.Start(agent.ID, act.Category(), ctx.Tick, s.CategoryCooldown)
			}
		}
		return nil
	}
	return sys
}
