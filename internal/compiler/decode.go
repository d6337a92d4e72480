package compiler

import (
	"cuelang.org/go/cue"

	"github.com/roach88/loreweave/internal/ir"
)

// binding pairs a field label with its destination. A nil destination
// marks a field the caller decodes itself.
type binding struct {
	name string
	dst  any
}

func field(name string, dst any) binding { return binding{name: name, dst: dst} }

func nested(name string) binding { return binding{name: name} }

// lookup returns the regular field name of v.
func lookup(v cue.Value, name string) (cue.Value, bool) {
	f := v.LookupPath(cue.MakePath(cue.Str(name)))
	return f, f.Exists()
}

// decodeFields rejects fields of v that no binding names, then decodes
// every present field that has a destination. The variant tag "type" is
// always allowed.
func decodeFields(v cue.Value, bs ...binding) error {
	allowed := make(map[string]bool, len(bs)+1)
	allowed["type"] = true
	for _, b := range bs {
		allowed[b.name] = true
	}

	iter, err := v.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		label := iter.Selector().Unquoted()
		if !allowed[label] {
			return compileErr(iter.Value(), "", "unknown field %q", label)
		}
	}

	for _, b := range bs {
		if b.dst == nil {
			continue
		}
		f, ok := lookup(v, b.name)
		if !ok {
			continue
		}
		if err := f.Decode(b.dst); err != nil {
			return formatCUEError(err)
		}
	}
	return nil
}

// has reports whether v sets field name.
func has(v cue.Value, name string) bool {
	_, ok := lookup(v, name)
	return ok
}

// eachElem calls fn for every element of the list field name, if present.
func eachElem(v cue.Value, name string, fn func(cue.Value) error) error {
	f, ok := lookup(v, name)
	if !ok {
		return nil
	}
	iter, err := f.List()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		if err := fn(iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

// variantType reads the "type" tag of a variant value.
func variantType(v cue.Value) (string, error) {
	t, ok := lookup(v, "type")
	if !ok {
		return "", compileErr(v, "type", "missing variant type")
	}
	s, err := t.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// =============================================================================
// Filters
// =============================================================================

func decodeFilterList(v cue.Value, name string) ([]ir.Filter, error) {
	var out []ir.Filter
	err := eachElem(v, name, func(e cue.Value) error {
		f, err := decodeFilter(e)
		if err != nil {
			return err
		}
		out = append(out, f)
		return nil
	})
	return out, err
}

func decodeFilter(v cue.Value) (ir.Filter, error) {
	typ, err := variantType(v)
	if err != nil {
		return nil, err
	}
	switch typ {
	case "kind":
		var f ir.KindFilter
		err = decodeFields(v, field("kind", &f.Kind), field("subtypes", &f.Subtypes))
		return f, err
	case "status":
		var f ir.StatusFilter
		err = decodeFields(v, field("status", &f.Status))
		return f, err
	case "tag":
		f := ir.TagFilter{Present: true}
		err = decodeFields(v, field("tag", &f.Tag), field("present", &f.Present), field("op", &f.Op), field("value", &f.Value))
		f.Compared = has(v, "op")
		return f, err
	case "culture":
		var f ir.CultureFilter
		err = decodeFields(v, field("culture", &f.Culture), field("same_as", &f.SameAs), field("different", &f.Different))
		return f, err
	case "prominence":
		var f ir.ProminenceFilter
		err = decodeFields(v, field("op", &f.Op), field("value", &f.Value))
		return f, err
	case "relationship":
		f := ir.RelationshipFilter{Direction: ir.DirectionBoth, Op: ir.OpGTE, Count: 1}
		err = decodeFields(v,
			field("kind", &f.Kind), field("direction", &f.Direction), field("with", &f.With),
			field("op", &f.Op), field("count", &f.Count))
		return f, err
	case "plane":
		var f ir.PlaneFilter
		err = decodeFields(v, field("plane", &f.Plane))
		return f, err
	case "near":
		var f ir.NearFilter
		err = decodeFields(v, field("of", &f.Of), field("radius", &f.Radius))
		return f, err
	case "part_of":
		f := ir.PartOfFilter{Present: true}
		err = decodeFields(v, field("of", &f.Of), field("present", &f.Present))
		return f, err
	case "exclude":
		var f ir.ExcludeFilter
		err = decodeFields(v, field("entities", &f.Entities))
		return f, err
	case "not":
		if err := decodeFields(v, nested("filter")); err != nil {
			return nil, err
		}
		inner, ok := lookup(v, "filter")
		if !ok {
			return nil, compileErr(v, "filter", "not filter requires filter")
		}
		child, err := decodeFilter(inner)
		if err != nil {
			return nil, err
		}
		return ir.NotFilter{Filter: child}, nil
	default:
		return nil, compileErr(v, "type", "unknown filter type %q", typ)
	}
}

// =============================================================================
// Conditions
// =============================================================================

func decodeConditionList(v cue.Value, name string) ([]ir.Condition, error) {
	var out []ir.Condition
	err := eachElem(v, name, func(e cue.Value) error {
		c, err := decodeCondition(e)
		if err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	return out, err
}

func decodeCondition(v cue.Value) (ir.Condition, error) {
	typ, err := variantType(v)
	if err != nil {
		return nil, err
	}
	switch typ {
	case "count":
		var c ir.CountCondition
		if err := decodeFields(v, nested("filters"), field("op", &c.Op), field("value", &c.Value)); err != nil {
			return nil, err
		}
		c.Filters, err = decodeFilterList(v, "filters")
		return c, err
	case "metric":
		var c ir.MetricCondition
		if err := decodeFields(v, nested("metric"), field("op", &c.Op), field("value", &c.Value)); err != nil {
			return nil, err
		}
		c.Metric, err = decodeMetricField(v, "metric")
		return c, err
	case "pressure":
		var c ir.PressureCondition
		err = decodeFields(v, field("pressure", &c.Pressure), field("op", &c.Op), field("value", &c.Value))
		return c, err
	case "tag":
		c := ir.TagCondition{Present: true}
		err = decodeFields(v, field("entity", &c.Entity), field("tag", &c.Tag), field("present", &c.Present))
		return c, err
	case "prominence":
		var c ir.ProminenceCondition
		err = decodeFields(v, field("entity", &c.Entity), field("op", &c.Op), field("value", &c.Value))
		return c, err
	case "relationship":
		c := ir.RelationshipCondition{Direction: ir.DirectionBoth, Present: true}
		err = decodeFields(v,
			field("entity", &c.Entity), field("kind", &c.Kind), field("direction", &c.Direction),
			field("with", &c.With), field("present", &c.Present))
		return c, err
	case "chance":
		var c ir.ChanceCondition
		err = decodeFields(v, field("probability", &c.Probability))
		return c, err
	case "era":
		var c ir.EraCondition
		err = decodeFields(v, field("eras", &c.Eras))
		return c, err
	case "tick":
		var c ir.TickCondition
		err = decodeFields(v, field("op", &c.Op), field("value", &c.Value))
		return c, err
	case "all", "any":
		if err := decodeFields(v, nested("conditions")); err != nil {
			return nil, err
		}
		children, err := decodeConditionList(v, "conditions")
		if err != nil {
			return nil, err
		}
		if typ == "all" {
			return ir.AllCondition{Conditions: children}, nil
		}
		return ir.AnyCondition{Conditions: children}, nil
	case "not":
		if err := decodeFields(v, nested("condition")); err != nil {
			return nil, err
		}
		inner, ok := lookup(v, "condition")
		if !ok {
			return nil, compileErr(v, "condition", "not condition requires condition")
		}
		child, err := decodeCondition(inner)
		if err != nil {
			return nil, err
		}
		return ir.NotCondition{Condition: child}, nil
	default:
		return nil, compileErr(v, "type", "unknown condition type %q", typ)
	}
}

// =============================================================================
// Metrics
// =============================================================================

// decodeMetricField decodes the required metric field name of v.
func decodeMetricField(v cue.Value, name string) (ir.Metric, error) {
	f, ok := lookup(v, name)
	if !ok {
		return nil, compileErr(v, name, "metric is required")
	}
	return decodeMetric(f)
}

func decodeMetric(v cue.Value) (ir.Metric, error) {
	typ, err := variantType(v)
	if err != nil {
		return nil, err
	}
	switch typ {
	case "count", "avg_prominence":
		if err := decodeFields(v, nested("filters")); err != nil {
			return nil, err
		}
		filters, err := decodeFilterList(v, "filters")
		if err != nil {
			return nil, err
		}
		if typ == "count" {
			return ir.CountMetric{Filters: filters}, nil
		}
		return ir.AvgProminenceMetric{Filters: filters}, nil
	case "ratio":
		if err := decodeFields(v, nested("numerator"), nested("denominator")); err != nil {
			return nil, err
		}
		var m ir.RatioMetric
		if m.Numerator, err = decodeFilterList(v, "numerator"); err != nil {
			return nil, err
		}
		m.Denominator, err = decodeFilterList(v, "denominator")
		return m, err
	case "relationship_count":
		var m ir.RelationshipCountMetric
		err = decodeFields(v, field("kind", &m.Kind), field("entity", &m.Entity))
		return m, err
	case "tag_sum":
		var m ir.TagSumMetric
		if err := decodeFields(v, field("tag", &m.Tag), nested("filters")); err != nil {
			return nil, err
		}
		m.Filters, err = decodeFilterList(v, "filters")
		return m, err
	case "pressure":
		var m ir.PressureMetric
		err = decodeFields(v, field("pressure", &m.Pressure))
		return m, err
	case "constant":
		var m ir.ConstantMetric
		err = decodeFields(v, field("value", &m.Value))
		return m, err
	case "scaled":
		m := ir.ScaledMetric{Factor: 1}
		if err := decodeFields(v, nested("metric"), field("factor", &m.Factor), field("offset", &m.Offset)); err != nil {
			return nil, err
		}
		m.Metric, err = decodeMetricField(v, "metric")
		return m, err
	default:
		return nil, compileErr(v, "type", "unknown metric type %q", typ)
	}
}

// =============================================================================
// Mutations
// =============================================================================

func decodeMutationList(v cue.Value, name string) ([]ir.Mutation, error) {
	var out []ir.Mutation
	err := eachElem(v, name, func(e cue.Value) error {
		m, err := decodeMutation(e)
		if err != nil {
			return err
		}
		out = append(out, m)
		return nil
	})
	return out, err
}

func decodeMutation(v cue.Value) (ir.Mutation, error) {
	typ, err := variantType(v)
	if err != nil {
		return nil, err
	}
	switch typ {
	case "set_tag":
		m := ir.SetTagMutation{Value: 1}
		err = decodeFields(v, field("entity", &m.Entity), field("tag", &m.Tag), field("value", &m.Value))
		return m, err
	case "remove_tag":
		var m ir.RemoveTagMutation
		err = decodeFields(v, field("entity", &m.Entity), field("tag", &m.Tag))
		return m, err
	case "adjust_prominence":
		var m ir.AdjustProminenceMutation
		err = decodeFields(v, field("entity", &m.Entity), field("delta", &m.Delta))
		return m, err
	case "set_status":
		var m ir.SetStatusMutation
		err = decodeFields(v, field("entity", &m.Entity), field("status", &m.Status))
		return m, err
	case "create_relationship":
		m := ir.CreateRelationshipMutation{Strength: 0.5}
		err = decodeFields(v,
			field("kind", &m.Kind), field("src", &m.Src), field("dst", &m.Dst), field("strength", &m.Strength))
		return m, err
	case "archive_relationship":
		var m ir.ArchiveRelationshipMutation
		err = decodeFields(v, field("kind", &m.Kind), field("src", &m.Src), field("dst", &m.Dst))
		return m, err
	case "adjust_relationship":
		var m ir.AdjustRelationshipMutation
		err = decodeFields(v,
			field("kind", &m.Kind), field("src", &m.Src), field("dst", &m.Dst), field("delta", &m.Delta))
		return m, err
	case "create_entity":
		var m ir.CreateEntityMutation
		if err := decodeFields(v, field("bind", &m.Bind), nested("entity")); err != nil {
			return nil, err
		}
		m.Entity, err = decodeEntitySpecField(v, "entity")
		return m, err
	case "archive_entity":
		m := ir.ArchiveEntityMutation{Policy: ir.PolicyArchiveMembers}
		err = decodeFields(v, field("entity", &m.Entity), field("policy", &m.Policy))
		return m, err
	case "adjust_pressure":
		var m ir.AdjustPressureMutation
		err = decodeFields(v, field("pressure", &m.Pressure), field("delta", &m.Delta))
		return m, err
	case "narrate":
		m := ir.NarrateMutation{Magnitude: 1}
		err = decodeFields(v,
			field("kind", &m.Kind), field("subject", &m.Subject), field("participants", &m.Participants),
			field("description", &m.Description), field("magnitude", &m.Magnitude))
		return m, err
	default:
		return nil, compileErr(v, "type", "unknown mutation type %q", typ)
	}
}

// =============================================================================
// Shared shapes
// =============================================================================

func decodeEntitySpecField(v cue.Value, name string) (ir.EntitySpec, error) {
	var spec ir.EntitySpec
	f, ok := lookup(v, name)
	if !ok {
		return spec, compileErr(v, name, "entity is required")
	}
	err := decodeFields(f,
		field("kind", &spec.Kind), field("subtype", &spec.Subtype), field("name", &spec.Name),
		field("culture", &spec.Culture), field("culture_from", &spec.CultureFrom),
		field("prominence", &spec.Prominence), field("tags", &spec.Tags),
		field("part_of", &spec.PartOf), field("near", &spec.Near), field("plane", &spec.Plane))
	return spec, err
}

func decodeSelection(v cue.Value) (ir.SelectionSpec, error) {
	spec := ir.SelectionSpec{Pick: ir.PickFirst, Count: 1}
	var sat *ir.Saturation
	if has(v, "saturation") {
		sat = &ir.Saturation{}
	}
	bs := []binding{
		nested("filters"), nested("prefer"),
		field("pick", &spec.Pick), field("count", &spec.Count), field("weight_tag", &spec.WeightTag),
		nested("saturation"),
	}
	if err := decodeFields(v, bs...); err != nil {
		return spec, err
	}
	if sat != nil {
		f, _ := lookup(v, "saturation")
		if err := decodeFields(f,
			field("relationship_kind", &sat.RelationshipKind), field("max_relationships", &sat.MaxRelationships),
			field("max_wins_per_tick", &sat.MaxWinsPerTick), field("per_cluster", &sat.PerCluster)); err != nil {
			return spec, err
		}
		spec.Saturation = sat
	}
	var err error
	if spec.Filters, err = decodeFilterList(v, "filters"); err != nil {
		return spec, err
	}
	spec.Prefer, err = decodeFilterList(v, "prefer")
	return spec, err
}

func decodeNarrative(v cue.Value, name string) (*ir.NarrativeSpec, error) {
	f, ok := lookup(v, name)
	if !ok {
		return nil, nil
	}
	n := &ir.NarrativeSpec{Magnitude: 1}
	err := decodeFields(f, field("kind", &n.Kind), field("description", &n.Description), field("magnitude", &n.Magnitude))
	return n, err
}
