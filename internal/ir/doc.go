// Package ir provides the shared data model for loreweave.
//
// This package contains type definitions only: graph records (entities,
// relationships), narrative events, recorded mutations, contract violations,
// the world seed and the compiled form of a declarative rule bundle.
// All other internal packages import ir; ir imports nothing internal.
//
// Rule expressions (conditions, filters, mutations, metrics) are closed
// tagged variants: each is a sealed interface implemented only by the
// structs in this package, so interpreters can switch exhaustively over
// them. New variants are added here or not at all.
//
// All JSON tags use snake_case. Ticks are logical time; wall-clock time
// never participates in simulation state.
package ir
