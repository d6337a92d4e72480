// Package harness runs simulation scenarios as executable tests.
//
// A scenario names a rule bundle and a world seed, runs the engine for a
// fixed number of ticks and checks assertions against the outcome.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: growth_to_twenty
//	description: "Settlements grow by one per tick until twenty"
//	bundle: ../bundles/growth.yaml
//	world: ../worlds/villages.yaml
//	seed: 42
//	ticks: 15
//	assertions:
//	  - type: entity_count
//	    kind: settlement
//	    at_tick: 10
//	    equals: 20
//	  - type: no_violations
//	  - type: deterministic
//
// Bundle and world paths are resolved relative to the scenario file.
//
// # Assertion Types
//
//   - entity_count: active entities (optionally of one kind) at a tick or at the end
//   - relationship_count: active relationships (optionally of one kind) at the end
//   - event_kind: stored narrative events of a kind
//   - no_violations: no contract violations (optionally of one severity)
//   - halted: whether the run halted on a hard violation
//   - pressure_range: every observed value of a pressure stays within bounds
//   - deterministic: a second run with the same inputs reaches the same digests
//
// Numeric assertions take any of equals, min and max.
//
// # Deterministic Testing
//
// Every scenario runs with a fixed run id, a stepping wall clock and a
// fresh in-memory store, so the trace of a scenario is byte-identical
// across runs and can be compared against a golden file.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/growth.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(context.Background(), scenario)
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
