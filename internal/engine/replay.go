package engine

// # Replay and Determinism
//
// Replay in loreweave is STRUCTURAL, not a special mode: a run is fully
// determined by (world seed, bundle, seed, tick count). Replaying means
// building a fresh engine from the same inputs and running it again on the
// identical code path.
//
// Three mechanisms make that sound:
//
// 1. Seeded randomness
//
//	rand.New(rand.NewPCG(seed, seed^golden))
//
// Systems draw only from the engine's source; nothing reads wall-clock time
// or map iteration order while mutating state.
//
// 2. Fresh per-run system state
//
//	program.Systems()
//
// Stateful systems (cooldowns, trigger arming, completed transitions) are
// built per engine, so a program shared by two runs cannot leak state.
//
// 3. Content-addressed digests
//
//	ir.StateDigest(entities, relationships)
//
// The final graph is hashed over canonical JSON with entities and
// relationships sorted by id. Equal digests mean equal worlds.

import (
	"context"
	"fmt"

	"github.com/roach88/loreweave/internal/interp"
	"github.com/roach88/loreweave/internal/ir"
)

// ReplayReport compares a replayed run with a recorded digest.
type ReplayReport struct {
	Seed     int64  `json:"seed"`
	Ticks    int64  `json:"ticks"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Match    bool   `json:"match"`
	Halted   bool   `json:"halted"`
}

// Replay re-runs world and program with seed for ticks ticks and compares
// the final state digest with expected.
func Replay(ctx context.Context, world *ir.World, program *interp.Program, seed int64, ticks int, expected string, opts ...Option) (*ReplayReport, error) {
	opts = append([]Option{WithRunIDGenerator(NewFixedGenerator("replay"))}, opts...)
	opts = append(opts, WithSeed(seed))
	e, err := New(world, program, opts...)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	if err := e.RunTicks(ctx, ticks); err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	res, err := e.Result()
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	return &ReplayReport{
		Seed:     seed,
		Ticks:    res.Ticks,
		Expected: expected,
		Actual:   res.Digest,
		Match:    res.Digest == expected,
		Halted:   res.Halted,
	}, nil
}
