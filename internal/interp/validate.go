package interp

import (
	"fmt"

	"github.com/roach88/loreweave/internal/ir"
)

func bad(field, format string, args ...any) error {
	return fieldError{field: field, msg: fmt.Sprintf(format, args...)}
}

func checkOp(field string, op ir.Operator) error {
	if !ir.ValidOperators[op] {
		return bad(field+".op", "unknown operator %q", op)
	}
	return nil
}

func checkConditions(field string, conds []ir.Condition) error {
	for i, c := range conds {
		if err := checkCondition(fmt.Sprintf("%s[%d]", field, i), c); err != nil {
			return err
		}
	}
	return nil
}

func checkCondition(field string, cond ir.Condition) error {
	switch c := cond.(type) {
	case nil:
		return bad(field, "missing condition")
	case ir.CountCondition:
		if err := checkOp(field, c.Op); err != nil {
			return err
		}
		return checkFilters(field+".filters", c.Filters)
	case ir.MetricCondition:
		if err := checkOp(field, c.Op); err != nil {
			return err
		}
		return checkMetric(field+".metric", c.Metric)
	case ir.PressureCondition:
		if c.Pressure == "" {
			return bad(field+".pressure", "required")
		}
		return checkOp(field, c.Op)
	case ir.TagCondition:
		if c.Tag == "" {
			return bad(field+".tag", "required")
		}
	case ir.ProminenceCondition:
		return checkOp(field, c.Op)
	case ir.RelationshipCondition:
		if !ir.ValidDirections[c.Direction] {
			return bad(field+".direction", "unknown direction %q", c.Direction)
		}
	case ir.ChanceCondition:
		if c.Probability < 0 || c.Probability > 1 {
			return bad(field+".probability", "must be within [0, 1], got %v", c.Probability)
		}
	case ir.EraCondition:
		if len(c.Eras) == 0 {
			return bad(field+".eras", "at least one era required")
		}
	case ir.TickCondition:
		return checkOp(field, c.Op)
	case ir.AllCondition:
		return checkConditions(field+".all", c.Conditions)
	case ir.AnyCondition:
		return checkConditions(field+".any", c.Conditions)
	case ir.NotCondition:
		return checkCondition(field+".not", c.Condition)
	default:
		return bad(field, "unknown condition %T", cond)
	}
	return nil
}

func checkFilters(field string, filters []ir.Filter) error {
	for i, f := range filters {
		if err := checkFilter(fmt.Sprintf("%s[%d]", field, i), f); err != nil {
			return err
		}
	}
	return nil
}

func checkFilter(field string, filter ir.Filter) error {
	switch f := filter.(type) {
	case nil:
		return bad(field, "missing filter")
	case ir.KindFilter:
		if f.Kind == "" {
			return bad(field+".kind", "required")
		}
	case ir.StatusFilter:
		if !ir.ValidStatuses[f.Status] {
			return bad(field+".status", "unknown status %q", f.Status)
		}
	case ir.TagFilter:
		if f.Tag == "" {
			return bad(field+".tag", "required")
		}
		if f.Compared {
			return checkOp(field, f.Op)
		}
	case ir.CultureFilter:
		if f.Culture == "" && f.SameAs == "" {
			return bad(field, "culture or same_as required")
		}
	case ir.ProminenceFilter:
		return checkOp(field, f.Op)
	case ir.RelationshipFilter:
		if !ir.ValidDirections[f.Direction] {
			return bad(field+".direction", "unknown direction %q", f.Direction)
		}
		return checkOp(field, f.Op)
	case ir.PlaneFilter:
		if f.Plane == "" {
			return bad(field+".plane", "required")
		}
	case ir.NearFilter:
		if f.Radius <= 0 {
			return bad(field+".radius", "must be positive")
		}
	case ir.PartOfFilter, ir.ExcludeFilter:
	case ir.NotFilter:
		return checkFilter(field+".not", f.Filter)
	default:
		return bad(field, "unknown filter %T", filter)
	}
	return nil
}

func checkMetric(field string, metric ir.Metric) error {
	switch m := metric.(type) {
	case nil:
		return bad(field, "missing metric")
	case ir.CountMetric:
		return checkFilters(field+".filters", m.Filters)
	case ir.RatioMetric:
		if err := checkFilters(field+".numerator", m.Numerator); err != nil {
			return err
		}
		return checkFilters(field+".denominator", m.Denominator)
	case ir.AvgProminenceMetric:
		return checkFilters(field+".filters", m.Filters)
	case ir.RelationshipCountMetric:
	case ir.TagSumMetric:
		if m.Tag == "" {
			return bad(field+".tag", "required")
		}
		return checkFilters(field+".filters", m.Filters)
	case ir.PressureMetric:
		if m.Pressure == "" {
			return bad(field+".pressure", "required")
		}
	case ir.ConstantMetric:
	case ir.ScaledMetric:
		return checkMetric(field+".metric", m.Metric)
	default:
		return bad(field, "unknown metric %T", metric)
	}
	return nil
}

func checkMutations(field string, muts []ir.Mutation) error {
	for i, m := range muts {
		if err := checkMutation(fmt.Sprintf("%s[%d]", field, i), m); err != nil {
			return err
		}
	}
	return nil
}

func checkMutation(field string, mutation ir.Mutation) error {
	switch m := mutation.(type) {
	case nil:
		return bad(field, "missing mutation")
	case ir.SetTagMutation:
		if m.Tag == "" {
			return bad(field+".tag", "required")
		}
	case ir.RemoveTagMutation:
		if m.Tag == "" {
			return bad(field+".tag", "required")
		}
	case ir.AdjustProminenceMutation:
	case ir.SetStatusMutation:
		if !ir.ValidStatuses[m.Status] {
			return bad(field+".status", "unknown status %q", m.Status)
		}
	case ir.CreateRelationshipMutation:
		if m.Kind == "" {
			return bad(field+".kind", "required")
		}
		if m.Strength < 0 || m.Strength > 1 {
			return bad(field+".strength", "must be within [0, 1], got %v", m.Strength)
		}
	case ir.ArchiveRelationshipMutation:
		if m.Kind == "" {
			return bad(field+".kind", "required")
		}
	case ir.AdjustRelationshipMutation:
		if m.Kind == "" {
			return bad(field+".kind", "required")
		}
	case ir.CreateEntityMutation:
		return checkEntitySpec(field+".entity", m.Entity)
	case ir.ArchiveEntityMutation:
		if m.Policy != "" && !ir.ValidArchivePolicies[m.Policy] {
			return bad(field+".policy", "unknown archive policy %q", m.Policy)
		}
	case ir.AdjustPressureMutation:
		if m.Pressure == "" {
			return bad(field+".pressure", "required")
		}
	case ir.NarrateMutation:
		if m.Kind == "" {
			return bad(field+".kind", "required")
		}
	default:
		return bad(field, "unknown mutation %T", mutation)
	}
	return nil
}

func checkEntitySpec(field string, spec ir.EntitySpec) error {
	if spec.Kind == "" {
		return bad(field+".kind", "required")
	}
	if spec.Kind == ir.KindEra {
		return bad(field+".kind", "era entities are created by era systems only")
	}
	return nil
}

func checkSelection(field string, spec ir.SelectionSpec) error {
	if err := checkFilters(field+".filters", spec.Filters); err != nil {
		return err
	}
	if err := checkFilters(field+".prefer", spec.Prefer); err != nil {
		return err
	}
	if spec.Pick != "" && !ir.ValidPickStrategies[spec.Pick] {
		return bad(field+".pick", "unknown pick strategy %q", spec.Pick)
	}
	if spec.Count < 0 {
		return bad(field+".count", "must not be negative")
	}
	if s := spec.Saturation; s != nil {
		if s.MaxRelationships > 0 && s.RelationshipKind == "" {
			return bad(field+".saturation.relationship_kind", "required with max_relationships")
		}
		if s.MaxRelationships < 0 || s.MaxWinsPerTick < 0 {
			return bad(field+".saturation", "caps must not be negative")
		}
	}
	return nil
}

func checkWeights(field string, w ir.SimilarityWeights) error {
	if w.Tags < 0 || w.Culture < 0 || w.Proximity < 0 {
		return bad(field, "weights must not be negative")
	}
	return nil
}
