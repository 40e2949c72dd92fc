// Package generate synthesizes field values and assembles records from them.
package generate

import (
	"math/rand/v2"

	"github.com/tckz/go-datagen/internal/schema"
)

// Generator draws field values from its own random source.
// A Generator is not safe for concurrent use; each worker owns one.
type Generator struct {
	r *rand.Rand
}

// NewGenerator returns a Generator drawing from src.
func NewGenerator(src rand.Source) *Generator {
	return &Generator{r: rand.New(src)}
}

// NewSeeded returns a Generator whose draws are reproducible for a given (seed, stream).
// seed == 0 picks a random seed.
func NewSeeded(seed, stream uint64) *Generator {
	if seed == 0 {
		seed = rand.Uint64()
		stream = rand.Uint64()
	}
	return NewGenerator(rand.NewPCG(seed, stream))
}

// Value produces one value for f: a uniformly chosen candidate of a categorical
// field or a uniform draw from [Low, High] for a numeric range.
func (g *Generator) Value(f schema.FieldSpec) (any, error) {
	if err := f.Check(); err != nil {
		return nil, err
	}

	switch f.Kind {
	case schema.KindCategorical:
		return f.Values[g.r.IntN(len(f.Values))], nil
	default:
		return g.between(f.Low, f.High), nil
	}
}

func (g *Generator) between(low, high float64) float64 {
	if low == high {
		return low
	}
	// high-low overflows for ranges wider than MaxFloat64, so interpolate instead
	f := g.r.Float64()
	v := low*(1-f) + high*f
	// rounding may land a hair outside
	if v > high {
		v = high
	}
	if v < low {
		v = low
	}
	return v
}
