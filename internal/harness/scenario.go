package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario defines a simulation test.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Bundle and World are paths to the rule bundle and world seed.
	// Relative paths are resolved against the scenario file's directory.
	Bundle string `yaml:"bundle"`
	World  string `yaml:"world"`

	// Seed overrides the world params seed when set.
	Seed *int64 `yaml:"seed,omitempty"`

	// Ticks overrides the world params tick count when positive.
	Ticks int `yaml:"ticks,omitempty"`

	// MaxMutations sets the per-tick mutation quota. Zero keeps the
	// engine default; negative disables the quota.
	MaxMutations int `yaml:"max_mutations,omitempty"`

	// Assertions validate the run outcome.
	Assertions []Assertion `yaml:"assertions"`

}

// Assertion validates one property of a run.
type Assertion struct {
	// Type selects the check; see the Assert* constants.
	Type string `yaml:"type"`

	// Kind filters entities, relationships or events by kind.
	Kind string `yaml:"kind,omitempty"`

	// Pressure names the pressure checked by pressure_range.
	Pressure string `yaml:"pressure,omitempty"`

	// Severity restricts no_violations to one severity.
	Severity string `yaml:"severity,omitempty"`

	// AtTick evaluates entity_count at a tick instead of the end.
	AtTick int64 `yaml:"at_tick,omitempty"`

	// MinSignificance filters events for event_kind.
	MinSignificance float64 `yaml:"min_significance,omitempty"`

	// Numeric bounds. Any combination may be given.
	Equals *float64 `yaml:"equals,omitempty"`
	Min    *float64 `yaml:"min,omitempty"`
	Max    *float64 `yaml:"max,omitempty"`

	// Expect is the expected outcome of halted. Default: true.
	Expect *bool `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertEntityCount       = "entity_count"
	AssertRelationshipCount = "relationship_count"
	AssertEventKind         = "event_kind"
	AssertNoViolations      = "no_violations"
	AssertHalted            = "halted"
	AssertPressureRange     = "pressure_range"
	AssertDeterministic     = "deterministic"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, filepath.Dir(path))
}

// ParseScenario parses scenario YAML, resolving bundle and world paths
// against dir.
func ParseScenario(data []byte, dir string) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	scenario.Bundle = resolve(dir, scenario.Bundle)
	scenario.World = resolve(dir, scenario.World)

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func resolve(dir, path string) string {
	if path == "" || filepath.IsAbs(path) || dir == "" {
		return path
	}
	return filepath.Join(dir, path)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if strings.ContainsAny(s.Name, `/\ `) {
		return fmt.Errorf("name %q must not contain spaces or path separators", s.Name)
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Bundle == "" {
		return fmt.Errorf("bundle is required")
	}
	if s.World == "" {
		return fmt.Errorf("world is required")
	}
	if s.Ticks < 0 {
		return fmt.Errorf("ticks must be non-negative")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for _, path := range []string{s.Bundle, s.World} {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return fmt.Errorf("file not found: %s", path)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	hasBounds := a.Equals != nil || a.Min != nil || a.Max != nil
	switch a.Type {
	case AssertEntityCount, AssertRelationshipCount:
		if !hasBounds {
			return fmt.Errorf("assertions[%d]: equals, min or max is required for %s", index, a.Type)
		}
		if a.AtTick < 0 {
			return fmt.Errorf("assertions[%d]: at_tick must be non-negative", index)
		}
	case AssertEventKind:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for event_kind", index)
		}
	case AssertNoViolations:
		if a.Severity != "" && !slices.Contains([]string{"hard", "soft"}, a.Severity) {
			return fmt.Errorf("assertions[%d]: unknown severity %q", index, a.Severity)
		}
	case AssertHalted, AssertDeterministic:
	case AssertPressureRange:
		if a.Pressure == "" {
			return fmt.Errorf("assertions[%d]: pressure is required for pressure_range", index)
		}
		if a.Min == nil && a.Max == nil {
			return fmt.Errorf("assertions[%d]: min or max is required for pressure_range", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
