// Package coords places entities on named planes and keeps per-plane scalar
// fields for placement-sensitive systems.
//
// Placement is deterministic given the run rng: candidate points are drawn
// from the rng and scored by cell crowding, with OpenSimplex noise as the
// tie-breaker so settlements drift toward "favorable" terrain instead of
// piling into one cell.
package coords

import (
	"math"
	"math/rand/v2"
	"slices"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/roach88/loreweave/internal/ir"
)

// Default bounds for planes that were never declared.
const (
	defaultExtent   = 100.0
	defaultCellSize = 10.0
	placeCandidates = 6
	noiseFrequency  = 0.05
)

// Context is the plane registry of one run.
type Context struct {
	planes map[string]ir.Plane
	order  []string
	noise  opensimplex.Noise
	fields map[string]*Field
}

// New creates a context for planes. The seed drives the noise baseline.
func New(planes []ir.Plane, seed int64) *Context {
	c := &Context{
		planes: make(map[string]ir.Plane, len(planes)),
		noise:  opensimplex.NewNormalized(seed),
		fields: make(map[string]*Field),
	}
	for _, p := range planes {
		if p.CellSize <= 0 {
			p.CellSize = defaultCellSize
		}
		c.planes[p.Name] = p
		c.order = append(c.order, p.Name)
	}
	return c
}

// Plane returns the declared plane, or default bounds for an unknown name.
func (c *Context) Plane(name string) ir.Plane {
	if p, ok := c.planes[name]; ok {
		return p
	}
	return ir.Plane{Name: name, Width: defaultExtent, Height: defaultExtent, CellSize: defaultCellSize}
}

// Planes returns declared plane names in declaration order.
func (c *Context) Planes() []string {
	return slices.Clone(c.order)
}

// DefaultPlane is the first declared plane, or "" when none are declared.
func (c *Context) DefaultPlane() string {
	if len(c.order) == 0 {
		return ""
	}
	return c.order[0]
}

// Clamp keeps p inside its plane's bounds.
func (c *Context) Clamp(p ir.Coordinates) ir.Coordinates {
	pl := c.Plane(p.Plane)
	p.X = min(pl.Width, max(0, p.X))
	p.Y = min(pl.Height, max(0, p.Y))
	return p
}

// Noise samples the normalized baseline noise at p, in [0, 1].
func (c *Context) Noise(p ir.Coordinates) float64 {
	return c.noise.Eval2(p.X*noiseFrequency, p.Y*noiseFrequency)
}

// PlaceNear picks a point within radius of anchor on the anchor's plane.
func (c *Context) PlaceNear(anchor ir.Coordinates, radius float64, rng *rand.Rand, occupied []ir.Coordinates) ir.Coordinates {
	if radius <= 0 {
		radius = c.Plane(anchor.Plane).CellSize
	}
	return c.best(anchor.Plane, occupied, func() ir.Coordinates {
		angle := rng.Float64() * 2 * math.Pi
		dist := radius * math.Sqrt(rng.Float64())
		return ir.Coordinates{
			Plane: anchor.Plane,
			X:     anchor.X + dist*math.Cos(angle),
			Y:     anchor.Y + dist*math.Sin(angle),
		}
	})
}

// PlaceRandom picks a point anywhere on plane.
func (c *Context) PlaceRandom(plane string, rng *rand.Rand, occupied []ir.Coordinates) ir.Coordinates {
	pl := c.Plane(plane)
	return c.best(plane, occupied, func() ir.Coordinates {
		return ir.Coordinates{Plane: plane, X: rng.Float64() * pl.Width, Y: rng.Float64() * pl.Height}
	})
}

// best draws placeCandidates points and keeps the least crowded one. Ties go
// to higher noise, then to the earlier draw.
func (c *Context) best(plane string, occupied []ir.Coordinates, draw func() ir.Coordinates) ir.Coordinates {
	cell := c.Plane(plane).CellSize
	var chosen ir.Coordinates
	bestCrowd, bestNoise := math.MaxInt, -1.0
	for range placeCandidates {
		p := c.Clamp(draw())
		crowd := 0
		for _, o := range occupied {
			if o.Plane == plane && Distance(o, p) < cell {
				crowd++
			}
		}
		n := c.Noise(p)
		if crowd < bestCrowd || (crowd == bestCrowd && n > bestNoise) {
			chosen, bestCrowd, bestNoise = p, crowd, n
		}
	}
	return chosen
}

// Distance is the Euclidean distance between two points on the same plane.
// Points on different planes are infinitely far apart.
func Distance(a, b ir.Coordinates) float64 {
	if a.Plane != b.Plane {
		return math.Inf(1)
	}
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Centroid returns the mean position of points, on the first point's plane.
// Points on other planes are ignored.
func Centroid(points []ir.Coordinates) ir.Coordinates {
	if len(points) == 0 {
		return ir.Coordinates{}
	}
	out := ir.Coordinates{Plane: points[0].Plane}
	n := 0
	for _, p := range points {
		if p.Plane != out.Plane {
			continue
		}
		out.X += p.X
		out.Y += p.Y
		n++
	}
	out.X /= float64(n)
	out.Y /= float64(n)
	return out
}

// Field returns the scalar field of plane, creating it on first use with a
// noise baseline scaled by baseline.
func (c *Context) Field(plane string, baseline float64) *Field {
	if f, ok := c.fields[plane]; ok {
		return f
	}
	f := newField(c.Plane(plane))
	if baseline != 0 {
		for row := range f.rows {
			for col := range f.cols {
				center := ir.Coordinates{
					X: (float64(col) + 0.5) * f.cell,
					Y: (float64(row) + 0.5) * f.cell,
				}
				f.values[row*f.cols+col] = baseline * c.Noise(center)
			}
		}
	}
	c.fields[plane] = f
	return f
}

// Clone returns a copy with independent fields.
func (c *Context) Clone() *Context {
	out := &Context{
		planes: c.planes,
		order:  c.order,
		noise:  c.noise,
		fields: make(map[string]*Field, len(c.fields)),
	}
	for k, f := range c.fields {
		out.fields[k] = f.clone()
	}
	return out
}
