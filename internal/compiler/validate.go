package compiler

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/loreweave/internal/interp"
	"github.com/roach88/loreweave/internal/ir"
)

// Validation error codes. E1xx concern the bundle, E2xx the world seed.
const (
	// Bundle errors (E100-E199)
	ErrBundleSchema      = "E100" // bundle failed to load or match #Bundle
	ErrBundleMissingID   = "E101" // entry without id
	ErrBundleDuplicateID = "E102" // duplicate id within a section
	ErrUnknownTemplate   = "E103" // reference to an undeclared template
	ErrUnknownAction     = "E104" // reference to an undeclared action
	ErrUnknownPressure   = "E105" // reference to an undeclared pressure
	ErrUnknownEra        = "E106" // reference to an undeclared era
	ErrInvalidRule       = "E107" // rule rejected by the interpreter
	ErrEmptySystem       = "E108" // system settings that can never do anything

	// World errors (E200-E299)
	ErrWorldSchema        = "E200" // world failed to load or match #World
	ErrDuplicateKind      = "E201" // kind declared twice
	ErrDuplicateEntityID  = "E202" // explicit entity id used twice
	ErrUnknownKind        = "E203" // entity kind missing from the taxonomy
	ErrUnknownSubtype     = "E204" // subtype not declared for its kind
	ErrUnknownEndpoint    = "E205" // relationship endpoint not in the seed
	ErrUnknownParent      = "E206" // part_of names an entity not in the seed
	ErrInvalidParams      = "E207" // negative ticks
	ErrUndeclaredKindRule = "E210" // bundle creates a kind the world does not declare
)

// ValidationError represents a schema or semantic validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate cross-checks a bundle and a world seed. Either may be nil.
// Returns all errors found (does not fail-fast), except that interpreter
// errors stop at the first rejected entry.
func Validate(b *ir.Bundle, w *ir.World) []ValidationError {
	var errs []ValidationError
	if b != nil {
		errs = append(errs, validateBundle(b)...)
	}
	if w != nil {
		errs = append(errs, validateWorld(w)...)
	}
	if b != nil && w != nil && len(w.Kinds) > 0 {
		errs = append(errs, validateKinds(b, w)...)
	}
	return errs
}

func validateBundle(b *ir.Bundle) []ValidationError {
	var errs []ValidationError
	add := func(code, field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Code: code})
	}

	ids := func(section string, n int, id func(int) string) map[string]bool {
		seen := make(map[string]bool, n)
		for i := range n {
			field := fmt.Sprintf("%s[%d].id", section, i)
			switch v := id(i); {
			case strings.TrimSpace(v) == "":
				add(ErrBundleMissingID, field, "id is required")
			case seen[v]:
				add(ErrBundleDuplicateID, field, "duplicate id %q", v)
			default:
				seen[v] = true
			}
		}
		return seen
	}
	pressures := ids("pressures", len(b.Pressures), func(i int) string { return b.Pressures[i].ID })
	templates := ids("templates", len(b.Templates), func(i int) string { return b.Templates[i].ID })
	actions := ids("actions", len(b.Actions), func(i int) string { return b.Actions[i].ID })
	ids("systems", len(b.Systems), func(i int) string { return b.Systems[i].ID })
	eras := ids("eras", len(b.Eras), func(i int) string { return b.Eras[i].ID })

	for i, a := range b.Actions {
		for j, pm := range a.PressureModifiers {
			if !pressures[pm.Pressure] {
				add(ErrUnknownPressure, fmt.Sprintf("actions[%d].pressure_modifiers[%d].pressure", i, j),
					"unknown pressure %q", pm.Pressure)
			}
		}
	}
	for i, e := range b.Eras {
		if e.Next != "" && !eras[e.Next] {
			add(ErrUnknownEra, fmt.Sprintf("eras[%d].next", i), "unknown era %q", e.Next)
		}
		for j, pm := range e.PressureModifiers {
			if !pressures[pm.Pressure] {
				add(ErrUnknownPressure, fmt.Sprintf("eras[%d].pressure_modifiers[%d].pressure", i, j),
					"unknown pressure %q", pm.Pressure)
			}
		}
	}
	for i, t := range b.Templates {
		for _, era := range slices.Sorted(maps.Keys(t.EraWeights)) {
			if !eras[era] {
				add(ErrUnknownEra, fmt.Sprintf("templates[%d].era_weights.%s", i, era), "unknown era %q", era)
			}
		}
	}

	for i, s := range b.Systems {
		field := fmt.Sprintf("systems[%d]", i)
		for _, era := range s.Eras {
			if !eras[era] {
				add(ErrUnknownEra, field+".eras", "unknown era %q", era)
			}
		}
		switch st := s.Settings.(type) {
		case ir.GrowthSettings:
			if len(st.Templates) == 0 {
				add(ErrEmptySystem, field+".settings.templates", "growth needs at least one template")
			}
			for j, ref := range st.Templates {
				if !templates[ref.Template] {
					add(ErrUnknownTemplate, fmt.Sprintf("%s.settings.templates[%d]", field, j),
						"unknown template %q", ref.Template)
				}
			}
			if st.Pressure != "" && !pressures[st.Pressure] {
				add(ErrUnknownPressure, field+".settings.pressure", "unknown pressure %q", st.Pressure)
			}
		case ir.ThresholdSettings:
			if st.Action == "" && len(st.Mutations) == 0 {
				add(ErrEmptySystem, field+".settings", "threshold trigger needs an action or mutations")
			}
			if st.Action != "" && !actions[st.Action] {
				add(ErrUnknownAction, field+".settings.action", "unknown action %q", st.Action)
			}
		case ir.CatalystSettings:
			for _, id := range st.Actions {
				if !actions[id] {
					add(ErrUnknownAction, field+".settings.actions", "unknown action %q", id)
				}
			}
		case ir.EraSpawnerSettings:
			if st.Era != "" && !eras[st.Era] {
				add(ErrUnknownEra, field+".settings.era", "unknown era %q", st.Era)
			}
		}
	}

	// Reference errors make the interpreter's messages redundant.
	if len(errs) == 0 {
		if _, err := interp.Compile(b); err != nil {
			var ce *interp.ConfigError
			if errors.As(err, &ce) {
				field := ce.Kind
				if ce.ID != "" {
					field += " " + ce.ID
				}
				if ce.Field != "" {
					field += "." + ce.Field
				}
				add(ErrInvalidRule, field, "%s", ce.Message)
			} else {
				add(ErrInvalidRule, "bundle", "%v", err)
			}
		}
	}
	return errs
}

func validateWorld(w *ir.World) []ValidationError {
	var errs []ValidationError
	add := func(code, field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Code: code})
	}

	kinds := make(map[string][]string, len(w.Kinds))
	for i, k := range w.Kinds {
		if _, dup := kinds[k.Name]; dup {
			add(ErrDuplicateKind, fmt.Sprintf("kinds[%d].name", i), "duplicate kind %q", k.Name)
			continue
		}
		kinds[k.Name] = k.Subtypes
	}

	// Entities without an id get <kind>-<n> in seed order, the way the
	// graph assigns them.
	ids := make(map[ir.EntityID]bool, len(w.Entities))
	counters := make(map[string]int)
	for i, e := range w.Entities {
		field := fmt.Sprintf("entities[%d]", i)
		if e.ID != "" {
			if ids[e.ID] {
				add(ErrDuplicateEntityID, field+".id", "duplicate entity id %q", e.ID)
			}
			ids[e.ID] = true
		} else {
			for {
				counters[e.Kind]++
				id := ir.EntityID(fmt.Sprintf("%s-%d", e.Kind, counters[e.Kind]))
				if !ids[id] {
					ids[id] = true
					break
				}
			}
		}
		if !w.HasKind(e.Kind) {
			add(ErrUnknownKind, field+".kind", "unknown kind %q", e.Kind)
			continue
		}
		if subs := kinds[e.Kind]; e.Subtype != "" && len(subs) > 0 && !slices.Contains(subs, e.Subtype) {
			add(ErrUnknownSubtype, field+".subtype", "kind %q has no subtype %q", e.Kind, e.Subtype)
		}
	}
	for i, e := range w.Entities {
		if e.PartOf != "" && !ids[e.PartOf] {
			add(ErrUnknownParent, fmt.Sprintf("entities[%d].part_of", i), "unknown entity %q", e.PartOf)
		}
	}
	for i, r := range w.Relationships {
		field := fmt.Sprintf("relationships[%d]", i)
		if !ids[r.Src] {
			add(ErrUnknownEndpoint, field+".src", "unknown entity %q", r.Src)
		}
		if !ids[r.Dst] {
			add(ErrUnknownEndpoint, field+".dst", "unknown entity %q", r.Dst)
		}
	}
	if w.Params.Ticks < 0 {
		add(ErrInvalidParams, "params.ticks", "must not be negative, got %d", w.Params.Ticks)
	}
	return errs
}

// validateKinds checks that every kind the bundle creates is declared.
func validateKinds(b *ir.Bundle, w *ir.World) []ValidationError {
	var errs []ValidationError
	check := func(field, kind string) {
		if kind != "" && !w.HasKind(kind) {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("kind %q is not declared by the world", kind),
				Code:    ErrUndeclaredKindRule,
			})
		}
	}
	for i, t := range b.Templates {
		check(fmt.Sprintf("templates[%d].entity.kind", i), t.Entity.Kind)
	}
	for i, s := range b.Systems {
		if cs, ok := s.Settings.(ir.ClusterSettings); ok {
			check(fmt.Sprintf("systems[%d].settings.composite.kind", i), cs.Composite.Kind)
		}
	}
	for i, a := range b.Actions {
		for j, m := range a.Mutations {
			if ce, ok := m.(ir.CreateEntityMutation); ok {
				check(fmt.Sprintf("actions[%d].mutations[%d].entity.kind", i, j), ce.Entity.Kind)
			}
		}
	}
	return errs
}
