package harness

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// RenderTrace renders a trace as line-oriented text: a header naming the
// scenario, then one line per tick. Map keys are sorted so the text is
// stable across runs.
//
//	scenario growth_to_twenty
//	tick 1 entities: settlement=11 relationships: 0 pressures: growth=1
func RenderTrace(name string, trace []TracePoint) []byte {
	var buf strings.Builder
	fmt.Fprintf(&buf, "scenario %s\n", name)
	for _, p := range trace {
		buf.WriteString(renderPoint(p))
		buf.WriteByte('\n')
	}
	return []byte(buf.String())
}

func renderPoint(p TracePoint) string {
	if p.Halted {
		return fmt.Sprintf("tick %d halted", p.Tick)
	}
	var buf strings.Builder
	fmt.Fprintf(&buf, "tick %d", p.Tick)
	if p.Era != "" {
		fmt.Fprintf(&buf, " era=%s", p.Era)
	}

	buf.WriteString(" entities:")
	if len(p.ByKind) == 0 {
		buf.WriteString(" none")
	}
	for _, k := range slices.Sorted(maps.Keys(p.ByKind)) {
		fmt.Fprintf(&buf, " %s=%d", k, p.ByKind[k])
	}

	fmt.Fprintf(&buf, " relationships: %d", p.Relationships)

	buf.WriteString(" pressures:")
	if len(p.Pressures) == 0 {
		buf.WriteString(" none")
	}
	for _, k := range slices.Sorted(maps.Keys(p.Pressures)) {
		fmt.Fprintf(&buf, " %s=%s", k, formatFloat(p.Pressures[k]))
	}
	return buf.String()
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, RenderTrace(scenarioName, result.Trace))
}
