// Package field implements the metaball scalar field: radial sources with
// unit compact support, and the composite Shape that sums them.
package field

import (
	"errors"
	"fmt"
	"math"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Threshold is the influence level of the isosurface.
const Threshold = 0.5

// SupportRadius is the distance beyond which a source contributes nothing.
const SupportRadius = 1.0

// ErrInvalidPosition is returned when a source coordinate is NaN or Inf.
var ErrInvalidPosition = errors.New("field: source position is not finite")

// Source is a single radial contributor to the field.
type Source struct {
	Pos v3.Vec
}

// Influence returns (1-r²)² inside the unit support sphere and 0 outside.
func (s Source) Influence(p v3.Vec) float64 {
	r2 := p.Sub(s.Pos).Length2()
	if r2 > 1 {
		return 0
	}
	k := 1 - r2
	return k * k
}

// Gradient returns the exact derivative of Influence: -4(p-pos)(1-r²).
func (s Source) Gradient(p v3.Vec) v3.Vec {
	r := p.Sub(s.Pos)
	r2 := r.Length2()
	if r2 > 1 {
		return v3.Vec{}
	}
	return r.MulScalar(-4 * (1 - r2))
}

// Shape is a composite field over an ordered, immutable set of sources.
// The zero value is an empty shape.
type Shape struct {
	sources []Source
}

// New builds a Shape from source positions, preserving their order.
func New(positions ...v3.Vec) (*Shape, error) {
	sources := make([]Source, 0, len(positions))
	for i, p := range positions {
		if !finite(p) {
			return nil, fmt.Errorf("source %d (%v): %w", i, p, ErrInvalidPosition)
		}
		sources = append(sources, Source{Pos: p})
	}
	return &Shape{sources: sources}, nil
}

// MustNew is like New but panics on invalid input.
func MustNew(positions ...v3.Vec) *Shape {
	s, err := New(positions...)
	if err != nil {
		panic(err)
	}
	return s
}

// Len returns the number of sources.
func (s *Shape) Len() int {
	return len(s.sources)
}

// Sources returns a copy of the source list.
func (s *Shape) Sources() []Source {
	out := make([]Source, len(s.sources))
	copy(out, s.sources)
	return out
}

// Source returns the i-th source.
func (s *Shape) Source(i int) Source {
	return s.sources[i]
}

// Influence returns the summed influence of all sources at p.
func (s *Shape) Influence(p v3.Vec) float64 {
	var sum float64
	for _, src := range s.sources {
		sum += src.Influence(p)
	}
	return sum
}

// Gradient returns the unit direction of fastest influence increase,
// weighting each source gradient by that source's influence.
// ok is false where the weighted sum vanishes (outside all support, or at
// a field extremum); the returned vector is then the zero vector.
func (s *Shape) Gradient(p v3.Vec) (g v3.Vec, ok bool) {
	var sum v3.Vec
	for _, src := range s.sources {
		w := src.Influence(p)
		if w == 0 {
			continue
		}
		sum = sum.Add(src.Gradient(p).MulScalar(w))
	}
	l := sum.Length()
	if l == 0 || math.IsNaN(l) || math.IsInf(l, 0) {
		return v3.Vec{}, false
	}
	return sum.DivScalar(l), true
}

// Inside reports whether p lies on or within the isosurface.
func (s *Shape) Inside(p v3.Vec) bool {
	return s.Influence(p) >= Threshold
}

func finite(p v3.Vec) bool {
	for _, c := range [3]float64{p.X, p.Y, p.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
