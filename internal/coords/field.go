package coords

import (
	"math"
	"slices"

	"github.com/roach88/loreweave/internal/ir"
)

// Field is a scalar grid over a plane.
type Field struct {
	cols, rows int
	cell       float64
	values     []float64
}

func newField(p ir.Plane) *Field {
	cell := p.CellSize
	if cell <= 0 {
		cell = defaultCellSize
	}
	cols := max(1, int(math.Ceil(p.Width/cell)))
	rows := max(1, int(math.Ceil(p.Height/cell)))
	return &Field{cols: cols, rows: rows, cell: cell, values: make([]float64, cols*rows)}
}

func (f *Field) index(p ir.Coordinates) int {
	col := min(f.cols-1, max(0, int(p.X/f.cell)))
	row := min(f.rows-1, max(0, int(p.Y/f.cell)))
	return row*f.cols + col
}

// Size returns the grid dimensions.
func (f *Field) Size() (cols, rows int) {
	return f.cols, f.rows
}

// Inject adds amount to the cell containing p.
func (f *Field) Inject(p ir.Coordinates, amount float64) {
	f.values[f.index(p)] += amount
}

// Sample returns the value of the cell containing p.
func (f *Field) Sample(p ir.Coordinates) float64 {
	return f.values[f.index(p)]
}

// Step diffuses the field synchronously over 4-neighborhoods and then decays
// every cell: v' = (v + rate*(mean(neighbors) - v)) * (1 - decay).
func (f *Field) Step(rate, decay float64) {
	next := make([]float64, len(f.values))
	for row := range f.rows {
		for col := range f.cols {
			i := row*f.cols + col
			sum, n := 0.0, 0
			if col > 0 {
				sum += f.values[i-1]
				n++
			}
			if col < f.cols-1 {
				sum += f.values[i+1]
				n++
			}
			if row > 0 {
				sum += f.values[i-f.cols]
				n++
			}
			if row < f.rows-1 {
				sum += f.values[i+f.cols]
				n++
			}
			v := f.values[i]
			if n > 0 {
				v += rate * (sum/float64(n) - v)
			}
			next[i] = v * (1 - decay)
		}
	}
	f.values = next
}

// Total returns the sum over all cells.
func (f *Field) Total() float64 {
	total := 0.0
	for _, v := range f.values {
		total += v
	}
	return total
}

func (f *Field) clone() *Field {
	c := *f
	c.values = slices.Clone(f.values)
	return &c
}
