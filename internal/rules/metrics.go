package rules

import "github.com/roach88/loreweave/internal/ir"

// EvaluateMetric computes a metric. Metrics over an empty set are 0.
func EvaluateMetric(ctx *Context, metric ir.Metric, r EntityResolver) float64 {
	switch m := metric.(type) {
	case ir.CountMetric:
		return float64(len(MatchingEntities(ctx, m.Filters, r)))

	case ir.RatioMetric:
		den := len(MatchingEntities(ctx, m.Denominator, r))
		if den == 0 {
			return 0
		}
		return float64(len(MatchingEntities(ctx, m.Numerator, r))) / float64(den)

	case ir.AvgProminenceMetric:
		ents := MatchingEntities(ctx, m.Filters, r)
		if len(ents) == 0 {
			return 0
		}
		sum := 0.0
		for _, e := range ents {
			sum += e.Prominence
		}
		return sum / float64(len(ents))

	case ir.RelationshipCountMetric:
		if m.Entity != "" {
			id, ok := r.Resolve(ctx, m.Entity)
			if !ok {
				return 0
			}
			return float64(ctx.Graph.CountRelationships(id, m.Kind, ir.DirectionBoth))
		}
		return float64(len(ctx.Graph.Relationships(func(rel ir.Relationship) bool {
			return rel.Active() && (m.Kind == "" || rel.Kind == m.Kind)
		})))

	case ir.TagSumMetric:
		sum := 0.0
		for _, e := range MatchingEntities(ctx, m.Filters, r) {
			sum += e.Tags[m.Tag]
		}
		return sum

	case ir.PressureMetric:
		return ctx.Pressures.Get(m.Pressure)

	case ir.ConstantMetric:
		return m.Value

	case ir.ScaledMetric:
		return EvaluateMetric(ctx, m.Metric, r)*m.Factor + m.Offset

	default:
		return 0
	}
}
