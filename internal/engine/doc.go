// Package engine drives a world simulation tick by tick.
//
// The engine owns the graph, the seeded random source, the pressure table
// and the per-run system instances. One call to Step advances the world by
// exactly one tick.
//
// TICK SEQUENCE:
//
//  1. Publish tick-start.
//  2. Advance the logical clock, clear per-tick claims and saturation.
//  3. Recompute pressures in declared order.
//  4. Run every active system in declared order. Each system runs under its
//     own actor id and inside recover; a failing system is logged and
//     skipped, the tick continues.
//  5. Enforce the mutation quota and run the contract enforcer. A hard
//     violation restores the state captured at tick start and halts the run.
//  6. Derive narrative events from the tick's mutations.
//  7. Collect statistics, hand the TickResult to the sink, publish
//     tick-complete.
//
// DETERMINISM:
//
// Systems run sequentially in declaration order and draw randomness only
// from the engine's PCG source, seeded from the world seed. Two engines
// built from the same world, bundle and seed produce identical mutation
// streams, events and state digests.
//
// The engine is single-writer: Step must not be called concurrently.
// Cancellation is observed between ticks only, so a tick is never left half
// applied.
package engine
