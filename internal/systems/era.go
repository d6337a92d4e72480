package systems

import (
	"fmt"

	"github.com/roach88/loreweave/internal/ir"
	"github.com/roach88/loreweave/internal/rules"
)

// ActiveEra returns the active era entity, if any. With several active eras
// the earliest created wins.
func ActiveEra(ctx *rules.Context) (ir.Entity, bool) {
	eras := ctx.Graph.ActiveEntities(func(e ir.Entity) bool { return e.Kind == ir.KindEra })
	if len(eras) == 0 {
		return ir.Entity{}, false
	}
	return eras[0], true
}

func eraInit(cfg ir.EraConfig) ir.EntityInit {
	name := cfg.Name
	if name == "" {
		name = cfg.ID
	}
	return ir.EntityInit{Kind: ir.KindEra, Subtype: cfg.ID, Name: name, Prominence: 1}
}

func findEra(eras []ir.EraConfig, id string) (ir.EraConfig, bool) {
	for _, e := range eras {
		if e.ID == id {
			return e, true
		}
	}
	return ir.EraConfig{}, false
}

// NewEraSpawner builds the era spawner system: when no era is active it
// creates the configured starting era, or the first declared one.
func NewEraSpawner(cfg ir.SystemConfig, s ir.EraSpawnerSettings, eras []ir.EraConfig) System {
	sys := base(cfg)
	sys.Run = func(ctx *rules.Context) error {
		if len(eras) == 0 {
			return nil
		}
		if _, ok := ActiveEra(ctx); ok {
			return nil
		}
		start := eras[0]
		if s.Era != "" {
			e, ok := findEra(eras, s.Era)
			if !ok {
				return fmt.Errorf("unknown era %q", s.Era)
			}
			start = e
		}
		id, err := ctx.Graph.AddEntity(eraInit(start))
		if err != nil {
			return fmt.Errorf("spawn era %s: %w", start.ID, err)
		}
		ctx.Graph.Annotate("era_began", id, nil, start.Name, 1)
		return nil
	}
	return sys
}

// EraReady reports whether an era of the given age may transition: it must
// be at least min_ticks old, and either reach max_ticks or satisfy its
// conditions. An era with neither conditions nor max_ticks transitions as
// soon as min_ticks has elapsed.
func EraReady(ctx *rules.Context, era ir.EraConfig, age int64) bool {
	if era.Next == "" || age < int64(era.MinTicks) {
		return false
	}
	if era.MaxTicks > 0 && age >= int64(era.MaxTicks) {
		return true
	}
	if len(era.Conditions) > 0 {
		return rules.EvaluateAll(ctx, era.Conditions, rules.SimpleResolver{})
	}
	return era.MaxTicks == 0
}

// NewEraTransition builds the era transition system. Transitions are
// one-shot per era: the second transition out of the same era returns
// ErrReentrantTransition.
func NewEraTransition(cfg ir.SystemConfig, _ ir.EraTransitionSettings, eras []ir.EraConfig) System {
	sys := base(cfg)
	done := make(map[string]bool)
	sys.Run = func(ctx *rules.Context) error {
		current, ok := ActiveEra(ctx)
		if !ok {
			return nil
		}
		era, ok := findEra(eras, current.Subtype)
		if !ok {
			return nil
		}
		if !EraReady(ctx, era, ctx.Tick-current.CreatedTick) {
			return nil
		}
		if done[era.ID] {
			return fmt.Errorf("%w: era %s already transitioned", ErrReentrantTransition, era.ID)
		}
		next, ok := findEra(eras, era.Next)
		if !ok {
			return fmt.Errorf("era %s: unknown next era %q", era.ID, era.Next)
		}
		id, err := ctx.Graph.SupersedeEntity(current.ID, eraInit(next))
		if err != nil {
			return fmt.Errorf("transition %s -> %s: %w", era.ID, next.ID, err)
		}
		done[era.ID] = true
		ctx.Graph.Annotate("era_transition", id, []ir.EntityID{current.ID}, next.Name, 3)
		return nil
	}
	return sys
}
