// Package surface pulls points onto a field's isosurface by damped
// gradient descent on the threshold residual.
package surface

import (
	"math"

	"github.com/chazu/metaball/pkg/field"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

const (
	// StepDivisor damps each descent step.
	StepDivisor = 5.0
	// Tolerance is the accepted |influence - threshold| residual.
	Tolerance = 0.01
	// MaxIterations bounds the descent; past it the result is approximate.
	MaxIterations = 256
)

// Field is the scalar field a point is projected onto.
type Field interface {
	Influence(p v3.Vec) float64
	Gradient(p v3.Vec) (v3.Vec, bool)
}

// Projection is the outcome of Project.
type Projection struct {
	Point      v3.Vec
	Residual   float64 // influence(Point) - threshold
	Iterations int
	Converged  bool
}

// Project moves p along the field gradient until its influence is within
// Tolerance of field.Threshold. If the gradient degenerates or the
// iteration cap is reached, the point with the smallest residual seen so
// far is returned with Converged unset.
func Project(f Field, p v3.Vec) Projection {
	residual := f.Influence(p) - field.Threshold
	best := Projection{Point: p, Residual: residual}

	for i := 0; i < MaxIterations; i++ {
		if math.Abs(residual) <= Tolerance {
			return Projection{Point: p, Residual: residual, Iterations: i, Converged: true}
		}

		g, ok := f.Gradient(p)
		if !ok {
			best.Iterations = i
			return best
		}

		next := p.Sub(g.MulScalar(residual / StepDivisor))
		if !finite(next) {
			best.Iterations = i
			return best
		}
		p = next
		residual = f.Influence(p) - field.Threshold

		if math.Abs(residual) < math.Abs(best.Residual) {
			best.Point, best.Residual = p, residual
		}
	}

	if math.Abs(residual) <= Tolerance {
		return Projection{Point: p, Residual: residual, Iterations: MaxIterations, Converged: true}
	}
	best.Iterations = MaxIterations
	return best
}

func finite(p v3.Vec) bool {
	return !math.IsNaN(p.X+p.Y+p.Z) && !math.IsInf(p.X+p.Y+p.Z, 0)
}
