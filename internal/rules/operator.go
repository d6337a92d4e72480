package rules

import (
	"math"

	"github.com/roach88/loreweave/internal/ir"
)

// epsilon is the tolerance of eq and neq.
const epsilon = 1e-9

// ApplyOperator compares a to b. Unknown operators compare false.
func ApplyOperator(op ir.Operator, a, b float64) bool {
	switch op {
	case ir.OpGT:
		return a > b
	case ir.OpGTE:
		return a >= b
	case ir.OpLT:
		return a < b
	case ir.OpLTE:
		return a <= b
	case ir.OpEQ:
		return math.Abs(a-b) <= epsilon
	case ir.OpNEQ:
		return math.Abs(a-b) > epsilon
	default:
		return false
	}
}
