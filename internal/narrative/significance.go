package narrative

import (
	"math"

	"github.com/roach88/loreweave/internal/ir"
)

// DefaultWeights apply when a bundle leaves every weight at zero.
var DefaultWeights = ir.SignificanceWeights{
	Magnitude:    0.4,
	Prominence:   0.3,
	Rarity:       0.15,
	Participants: 0.15,
}

// DefaultProminenceScale is the prominence at which the prominence
// component reaches one half.
const DefaultProminenceScale = 10.0

// SignificanceInput is the context a change is scored in.
type SignificanceInput struct {
	// Prominence of the subject entity.
	Prominence float64
	// Frequency counts earlier events of the same kind in the run.
	Frequency int
	Scale     float64
	Weights   ir.SignificanceWeights
}

// CalculateSignificance scores a change in [0, 1] as the weighted mean of
// four saturating components: magnitude m/(1+m), prominence p/(p+scale),
// rarity 1/(1+freq) and participants n/(1+n).
func CalculateSignificance(c Change, in SignificanceInput) float64 {
	w := in.Weights
	if w == (ir.SignificanceWeights{}) {
		w = DefaultWeights
	}
	total := w.Magnitude + w.Prominence + w.Rarity + w.Participants
	if total <= 0 {
		return 0
	}
	scale := in.Scale
	if scale <= 0 {
		scale = DefaultProminenceScale
	}

	m := finite(c.Magnitude)
	p := finite(in.Prominence)
	n := float64(len(c.Participants))
	freq := float64(max(in.Frequency, 0))

	sum := w.Magnitude*m/(1+m) +
		w.Prominence*p/(p+scale) +
		w.Rarity/(1+freq) +
		w.Participants*n/(1+n)
	return sum / total
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
