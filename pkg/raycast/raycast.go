// Package raycast finds the first isosurface crossing along a ray by
// marching through the field, summing only the sources whose support
// sphere the ray currently occupies.
package raycast

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/chazu/metaball/pkg/field"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Step is the marching increment along the ray.
const Step = 0.05

// ErrInvalidRay is returned for a zero-length or non-finite ray.
var ErrInvalidRay = errors.New("raycast: ray must have a finite origin and a nonzero finite direction")

// Ray is a half-line. NewRay normalizes Direction; Intersect accepts any
// finite nonzero Direction.
type Ray struct {
	Origin    v3.Vec
	Direction v3.Vec
}

// NewRay builds a ray, normalizing dir.
func NewRay(origin, dir v3.Vec) (Ray, error) {
	l := dir.Length()
	if !finite(origin) || !finite(dir) || l == 0 || math.IsInf(l, 0) {
		return Ray{}, fmt.Errorf("%w: origin %v, direction %v", ErrInvalidRay, origin, dir)
	}
	return Ray{Origin: origin, Direction: dir.DivScalar(l)}, nil
}

// At returns the point at parameter t.
func (r Ray) At(t float64) v3.Vec {
	return r.Origin.Add(r.Direction.MulScalar(t))
}

// Hit is an isosurface intersection.
type Hit struct {
	Point v3.Vec
	T     float64
	// Normal points out of the surface; valid only when HasNormal is set.
	Normal    v3.Vec
	HasNormal bool
}

// window is the ray parameter interval a source's support sphere covers.
type window struct {
	enter, exit float64
	src         field.Source
}

// activation returns the windows of every source the ray passes through
// ahead of its origin, sorted by entry parameter. Windows that do not
// resolve to finite parameters are dropped.
func activation(s *field.Shape, r Ray) []window {
	var ws []window
	for i := 0; i < s.Len(); i++ {
		src := s.Source(i)
		// |o + t d - c|² = R² with |d| = 1, using the perpendicular
		// distance so a far origin does not square its own range.
		oc := src.Pos.Sub(r.Origin)
		b := oc.Dot(r.Direction)
		perp := oc.Sub(r.Direction.MulScalar(b))
		disc := field.SupportRadius*field.SupportRadius - perp.Length2()
		if !(disc >= 0) {
			continue
		}
		sq := math.Sqrt(disc)
		w := window{enter: b - sq, exit: b + sq, src: src}
		if math.IsNaN(w.enter) || math.IsInf(w.enter, 0) || math.IsNaN(w.exit) || math.IsInf(w.exit, 0) {
			continue
		}
		if w.exit < 0 {
			continue
		}
		ws = append(ws, w)
	}
	sort.SliceStable(ws, func(i, j int) bool { return ws[i].enter < ws[j].enter })
	return ws
}

// Intersect marches r through s and returns the first sample whose
// influence reaches field.Threshold. The hit lies within Step of the true
// crossing and T is measured in units of distance. r is normalized first,
// so a literal Ray need not carry a unit direction; an invalid ray, a nil
// shape or an empty shape never hits. The march stops once it passes the
// last window or the parameter can no longer advance at Step resolution.
func Intersect(s *field.Shape, r Ray) (Hit, bool) {
	if s == nil {
		return Hit{}, false
	}
	r, err := NewRay(r.Origin, r.Direction)
	if err != nil {
		return Hit{}, false
	}
	ws := activation(s, r)
	if len(ws) == 0 {
		return Hit{}, false
	}
	last := ws[0].exit
	for _, w := range ws[1:] {
		last = math.Max(last, w.exit)
	}

	from, to := 0, 0
	start := math.Max(ws[0].enter, 0)
	prev := math.Inf(-1)
	for i := 1; from < len(ws); i++ {
		t := start + float64(i)*Step

		// Nothing active and a gap ahead: jump to the next entry.
		if from == to && to < len(ws) && ws[to].enter > t {
			start = math.Max(ws[to].enter, 0)
			i = 0
			continue
		}
		if t > last || t <= prev || t-Step == t {
			break
		}
		prev = t

		for to < len(ws) && ws[to].enter <= t {
			to++
		}

		p := r.At(t)
		var sum float64
		for _, w := range ws[from:to] {
			sum += w.src.Influence(p)
		}
		if sum >= field.Threshold {
			h := Hit{Point: p, T: t}
			if g, ok := s.Gradient(p); ok {
				h.Normal, h.HasNormal = g.Neg(), true
			}
			return h, true
		}

		for from < to && ws[from].exit < t {
			from++
		}
	}
	return Hit{}, false
}

func finite(p v3.Vec) bool {
	for _, c := range [3]float64{p.X, p.Y, p.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
