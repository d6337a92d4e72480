package harness

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/loreweave/internal/engine"
	"github.com/roach88/loreweave/internal/ir"
	"github.com/roach88/loreweave/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TracePoint // Trace tail for debugging context
}

// traceTail is how many trace points an AssertionError prints.
const traceTail = 5

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	// Header with assertion type
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)

	// Expected vs Actual (most important info)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nLast ticks:\n")
		start := max(0, len(e.Trace)-traceTail)
		for _, p := range e.Trace[start:] {
			fmt.Fprintf(&buf, "  %s\n", renderPoint(p))
		}
	}
	return buf.String()
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Ctx     context.Context
	Store   *store.Store
	Engine  *engine.Engine
	Harness *Harness
}

// bounds checks v against the numeric bounds of a and describes them.
func bounds(a Assertion, v float64) (bool, string) {
	var parts []string
	ok := true
	if a.Equals != nil {
		parts = append(parts, "= "+formatFloat(*a.Equals))
		ok = ok && v == *a.Equals
	}
	if a.Min != nil {
		parts = append(parts, ">= "+formatFloat(*a.Min))
		ok = ok && v >= *a.Min
	}
	if a.Max != nil {
		parts = append(parts, "<= "+formatFloat(*a.Max))
		ok = ok && v <= *a.Max
	}
	return ok, strings.Join(parts, " and ")
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func subject(what, kind string) string {
	if kind == "" {
		return what
	}
	return fmt.Sprintf("%s of kind %q", what, kind)
}

// assertEntityCount checks the active entity count at a tick, or at the
// last completed tick.
func assertEntityCount(result *Result, a Assertion) error {
	var (
		p  TracePoint
		ok bool
	)
	if a.AtTick > 0 {
		p, ok = result.At(a.AtTick)
	} else {
		p, ok = result.Final()
	}
	if !ok {
		return &AssertionError{
			Type:     AssertEntityCount,
			Expected: fmt.Sprintf("tick %d in trace", a.AtTick),
			Actual:   fmt.Sprintf("%d ticks recorded", len(result.Trace)),
			Trace:    result.Trace,
		}
	}

	n := 0
	if a.Kind != "" {
		n = p.ByKind[a.Kind]
	} else {
		for _, c := range p.ByKind {
			n += c
		}
	}
	pass, want := bounds(a, float64(n))
	if pass {
		return nil
	}
	return &AssertionError{
		Type:     AssertEntityCount,
		Expected: fmt.Sprintf("%s %s at tick %d", subject("entities", a.Kind), want, p.Tick),
		Actual:   strconv.Itoa(n),
		Trace:    result.Trace,
	}
}

// assertRelationshipCount checks the active relationships of the final graph.
func assertRelationshipCount(result *Result, eng *engine.Engine, a Assertion) error {
	rels := eng.Graph().Relationships(func(r ir.Relationship) bool {
		return r.Active() && (a.Kind == "" || r.Kind == a.Kind)
	})
	pass, want := bounds(a, float64(len(rels)))
	if pass {
		return nil
	}
	return &AssertionError{
		Type:     AssertRelationshipCount,
		Expected: fmt.Sprintf("%s %s", subject("relationships", a.Kind), want),
		Actual:   strconv.Itoa(len(rels)),
		Trace:    result.Trace,
	}
}

// assertEventKind checks how many recorded events have a kind. Without
// bounds at least one is required.
func assertEventKind(ctx context.Context, st *store.Store, result *Result, a Assertion) error {
	events, err := st.QueryEvents(ctx, result.RunID, store.EventFilter{
		MinSignificance: a.MinSignificance,
		Kind:            a.Kind,
	})
	if err != nil {
		return fmt.Errorf("event_kind: %w", err)
	}
	n := len(events)

	if a.Equals == nil && a.Min == nil && a.Max == nil {
		one := 1.0
		a.Min = &one
	}
	pass, want := bounds(a, float64(n))
	if pass {
		return nil
	}
	return &AssertionError{
		Type:     AssertEventKind,
		Expected: fmt.Sprintf("%q events with significance >= %s %s", a.Kind, formatFloat(a.MinSignificance), want),
		Actual:   strconv.Itoa(n),
		Trace:    result.Trace,
	}
}

// assertNoViolations checks that the store recorded no violation of the
// given severity, or none at all.
func assertNoViolations(ctx context.Context, st *store.Store, result *Result, a Assertion) error {
	violations, err := st.QueryViolations(ctx, result.RunID, store.ViolationFilter{Severity: ir.Severity(a.Severity)})
	if err != nil {
		return fmt.Errorf("no_violations: %w", err)
	}
	var found []string
	for _, v := range violations {
		found = append(found, fmt.Sprintf("tick %d %s/%s: %s", v.Tick, v.Class, v.Severity, v.Message))
	}
	if len(found) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertNoViolations,
		Expected: "no " + strings.TrimSpace(a.Severity+" violations"),
		Actual:   strings.Join(found, "; "),
		Trace:    result.Trace,
	}
}

func assertHalted(result *Result, a Assertion) error {
	want := true
	if a.Expect != nil {
		want = *a.Expect
	}
	if result.Halted == want {
		return nil
	}
	return &AssertionError{
		Type:     AssertHalted,
		Expected: fmt.Sprintf("halted=%t", want),
		Actual:   fmt.Sprintf("halted=%t after %d ticks", result.Halted, result.Ticks),
		Trace:    result.Trace,
	}
}

// assertPressureRange checks every observed value of a pressure.
func assertPressureRange(result *Result, a Assertion) error {
	seen := false
	for _, p := range result.Trace {
		v, ok := p.Pressures[a.Pressure]
		if !ok {
			continue
		}
		seen = true
		if pass, want := bounds(a, v); !pass {
			return &AssertionError{
				Type:     AssertPressureRange,
				Expected: fmt.Sprintf("pressure %s %s", a.Pressure, want),
				Actual:   fmt.Sprintf("%s at tick %d", formatFloat(v), p.Tick),
				Trace:    result.Trace,
			}
		}
	}
	if !seen {
		return &AssertionError{
			Type:     AssertPressureRange,
			Expected: fmt.Sprintf("pressure %s observed", a.Pressure),
			Actual:   "never observed",
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertDeterministic re-runs the scenario with a fresh engine and
// compares both digests.
func assertDeterministic(ctx context.Context, h *Harness, result *Result) error {
	again, err := h.rerun(ctx)
	if err != nil {
		return fmt.Errorf("deterministic: rerun: %w", err)
	}
	if again.Digest == result.Digest && again.EventDigest == result.EventDigest {
		return nil
	}
	return &AssertionError{
		Type:     AssertDeterministic,
		Expected: fmt.Sprintf("digest %s events %s", result.Digest, result.EventDigest),
		Actual:   fmt.Sprintf("digest %s events %s", again.Digest, again.EventDigest),
	}
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides the store, the finished engine and the
// harness for assertions that need more than the trace.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertEntityCount:
			err = assertEntityCount(result, assertion)
		case AssertHalted:
			err = assertHalted(result, assertion)
		case AssertPressureRange:
			err = assertPressureRange(result, assertion)
		case AssertRelationshipCount:
			if actx == nil || actx.Engine == nil {
				err = fmt.Errorf("assertion[%d]: relationship_count requires the engine", i)
			} else {
				err = assertRelationshipCount(result, actx.Engine, assertion)
			}
		case AssertEventKind, AssertNoViolations:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: %s requires database context", i, assertion.Type)
			} else if assertion.Type == AssertEventKind {
				err = assertEventKind(actx.Ctx, actx.Store, result, assertion)
			} else {
				err = assertNoViolations(actx.Ctx, actx.Store, result, assertion)
			}
		case AssertDeterministic:
			if actx == nil || actx.Harness == nil {
				err = fmt.Errorf("assertion[%d]: deterministic requires the harness", i)
			} else {
				err = assertDeterministic(actx.Ctx, actx.Harness, result)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
