package engine

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/chazu/metaball/pkg/kernel"
	"github.com/chazu/metaball/pkg/scene"
	v3 "github.com/deadsy/sdfx/vec/v3"
	zygo "github.com/glycerine/zygomys/zygo"
)

// Defaults for the generator builtins.
const (
	defaultCloudCount  = 20
	defaultCloudSpread = 2.0
	defaultCloudSeed   = 1
	defaultGridN       = 2
	defaultGridSpacing = 0.5
	maxGeneratedBalls  = 100000
)

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpVec3 wraps a point.
type sexpVec3 struct {
	vec v3.Vec
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %g %g %g)", v.vec.X, v.vec.Y, v.vec.Z)
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

// sexpBalls wraps one or more source positions produced by ball, cloud
// or grid and consumed by blob.
type sexpBalls struct {
	pos []v3.Vec
}

func (b *sexpBalls) SexpString(ps *zygo.PrintState) string {
	if len(b.pos) == 1 {
		p := b.pos[0]
		return fmt.Sprintf("(ball %g %g %g)", p.X, p.Y, p.Z)
	}
	return fmt.Sprintf("(balls %d)", len(b.pos))
}
func (b *sexpBalls) Type() *zygo.RegisteredType { return nil }

// sexpBlobRef is returned by blob.
type sexpBlobRef struct {
	name string
}

func (r *sexpBlobRef) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(blob %q)", r.name)
}
func (r *sexpBlobRef) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// isKW checks if a Sexp is a preprocessed keyword string and returns the
// keyword name without its prefix.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], true
	}
	return "", false
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	i := 0
	for i < len(args) {
		name, ok := isKW(args[i])
		if !ok {
			result.positional = append(result.positional, args[i])
			i++
			continue
		}
		if i+1 < len(args) {
			result.kw[name] = args[i+1]
			i += 2
		} else {
			result.kw[name] = zygo.SexpNull
			i++
		}
	}
	return result
}

// getFloat returns keyword k as a float64, or def when absent.
func (a kwArgs) getFloat(k string, def float64) (float64, error) {
	v, ok := a.kw[k]
	if !ok {
		return def, nil
	}
	f, err := toFloat64(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return f, nil
}

// getInt returns keyword k as an int, or def when absent.
func (a kwArgs) getInt(k string, def int) (int, error) {
	f, err := a.getFloat(k, float64(def))
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("%s: expected integer, got %g", k, f)
	}
	return int(f), nil
}

// getVec returns keyword k as a point, or def when absent.
func (a kwArgs) getVec(k string, def v3.Vec) (v3.Vec, error) {
	v, ok := a.kw[k]
	if !ok {
		return def, nil
	}
	p, err := toVec3(v)
	if err != nil {
		return v3.Vec{}, fmt.Errorf("%s: %w", k, err)
	}
	return p, nil
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toString extracts a string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toKeywordString extracts a keyword name or plain string from a Sexp.
func toKeywordString(s zygo.Sexp) (string, error) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", fmt.Errorf("expected keyword or string, got %T (%s)", s, s.SexpString(nil))
	}
	return strings.TrimPrefix(str.S, kwPrefix), nil
}

// toVec3 extracts a point from a sexpVec3.
func toVec3(s zygo.Sexp) (v3.Vec, error) {
	if v, ok := s.(*sexpVec3); ok {
		return v.vec, nil
	}
	return v3.Vec{}, fmt.Errorf("expected vec3, got %T (%s)", s, s.SexpString(nil))
}

// sexpListToSlice converts a SexpPair (Lisp list) or SexpArray to a Go slice.
func sexpListToSlice(s zygo.Sexp) ([]zygo.Sexp, error) {
	switch v := s.(type) {
	case *zygo.SexpPair:
		return zygo.ListToArray(v)
	case *zygo.SexpArray:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected list or array, got %T", s)
}

// collectPositions flattens blob members: balls, bare vec3 points, and
// lists or arrays of either, in order.
func collectPositions(s zygo.Sexp, out []v3.Vec) ([]v3.Vec, error) {
	switch v := s.(type) {
	case *sexpBalls:
		return append(out, v.pos...), nil
	case *sexpVec3:
		return append(out, v.vec), nil
	}
	items, err := sexpListToSlice(s)
	if err != nil {
		return nil, fmt.Errorf("expected ball, vec3 or list, got %T (%s)", s, s.SexpString(nil))
	}
	for _, item := range items {
		out, err = collectPositions(item, out)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// registerBuiltins installs the scene builtins into a zygomys environment.
// The builtins populate sc during evaluation and refuse to run once ctx is
// done, which ends any script that keeps building geometry.
//
// Source must be preprocessed with preprocessSource so that :keyword
// tokens arrive as recognizable string literals.
func registerBuiltins(ctx context.Context, env *zygo.Zlisp, sc *scene.Scene) {
	addFunction := func(name string, fn zygo.ZlispUserFunction) {
		env.AddFunction(name, func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			if err := ctx.Err(); err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: %w", name, err)
			}
			return fn(env, name, args)
		})
	}

	// -----------------------------------------------------------------------
	// (vec3 1 2 3)
	// -----------------------------------------------------------------------
	addFunction("vec3", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("vec3 requires exactly 3 arguments, got %d", len(args))
		}
		var c [3]float64
		for i, axis := range []string{"x", "y", "z"} {
			f, err := toFloat64(args[i])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("vec3: %s: %w", axis, err)
			}
			c[i] = f
		}
		return &sexpVec3{vec: v3.Vec{X: c[0], Y: c[1], Z: c[2]}}, nil
	})

	// -----------------------------------------------------------------------
	// (ball 0 0 0) or (ball (vec3 0 0 0))
	// -----------------------------------------------------------------------
	addFunction("ball", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		switch len(args) {
		case 1:
			p, err := toVec3(args[0])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("ball: %w", err)
			}
			return &sexpBalls{pos: []v3.Vec{p}}, nil
		case 3:
			var c [3]float64
			for i := range args {
				f, err := toFloat64(args[i])
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("ball: %w", err)
				}
				c[i] = f
			}
			return &sexpBalls{pos: []v3.Vec{{X: c[0], Y: c[1], Z: c[2]}}}, nil
		}
		return zygo.SexpNull, fmt.Errorf("ball requires a vec3 or 3 coordinates, got %d arguments", len(args))
	})

	// -----------------------------------------------------------------------
	// (cloud :count 20 :spread 2 :seed 1 :center (vec3 0 0 0))
	//
	// Uniformly random sources in the cube center +/- spread. A given seed
	// always yields the same cloud.
	// -----------------------------------------------------------------------
	addFunction("cloud", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		count, err := pa.getInt("count", defaultCloudCount)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("cloud: %w", err)
		}
		spread, err := pa.getFloat("spread", defaultCloudSpread)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("cloud: %w", err)
		}
		seed, err := pa.getInt("seed", defaultCloudSeed)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("cloud: %w", err)
		}
		center, err := pa.getVec("center", v3.Vec{})
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("cloud: %w", err)
		}
		if count < 0 || count > maxGeneratedBalls {
			return zygo.SexpNull, fmt.Errorf("cloud: count must be in [0, %d], got %d", maxGeneratedBalls, count)
		}
		if !(spread >= 0) || math.IsInf(spread, 0) {
			return zygo.SexpNull, fmt.Errorf("cloud: spread must be non-negative and finite, got %g", spread)
		}
		return &sexpBalls{pos: cloud(count, spread, int64(seed), center)}, nil
	})

	// -----------------------------------------------------------------------
	// (grid :n 3 :spacing 0.5 :center (vec3 0 0 0))
	//
	// n^3 sources on a cubic lattice centered on center.
	// -----------------------------------------------------------------------
	addFunction("grid", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		n, err := pa.getInt("n", defaultGridN)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("grid: %w", err)
		}
		spacing, err := pa.getFloat("spacing", defaultGridSpacing)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("grid: %w", err)
		}
		center, err := pa.getVec("center", v3.Vec{})
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("grid: %w", err)
		}
		if n < 0 || math.Pow(float64(n), 3) > maxGeneratedBalls {
			return zygo.SexpNull, fmt.Errorf("grid: n^3 must be at most %d, got n=%d", maxGeneratedBalls, n)
		}
		if math.IsNaN(spacing) || math.IsInf(spacing, 0) {
			return zygo.SexpNull, fmt.Errorf("grid: spacing must be finite, got %g", spacing)
		}
		return &sexpBalls{pos: grid(n, spacing, center)}, nil
	})

	// -----------------------------------------------------------------------
	// (blob "name" (ball ...) (cloud ...) (list (ball ...) ...) ...)
	// -----------------------------------------------------------------------
	addFunction("blob", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) < 1 {
			return zygo.SexpNull, fmt.Errorf("blob requires a name argument")
		}
		blobName, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("blob: name: %w", err)
		}

		var pos []v3.Vec
		for i := 1; i < len(args); i++ {
			pos, err = collectPositions(args[i], pos)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("blob %q: member %d: %w", blobName, i, err)
			}
		}

		if err := sc.AddBlob(&scene.Blob{Name: blobName, Positions: pos}); err != nil {
			return zygo.SexpNull, fmt.Errorf("blob: %w", err)
		}
		return &sexpBlobRef{name: blobName}, nil
	})

	// -----------------------------------------------------------------------
	// (resolution 0.25)
	// -----------------------------------------------------------------------
	addFunction("resolution", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("resolution requires exactly 1 argument, got %d", len(args))
		}
		f, err := toFloat64(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("resolution: %w", err)
		}
		if !(f > 0) || math.IsInf(f, 0) {
			return zygo.SexpNull, fmt.Errorf("resolution must be positive and finite, got %g", f)
		}
		sc.Settings.MinSize = f
		return zygo.SexpNull, nil
	})

	// -----------------------------------------------------------------------
	// (mode :skin), (mode :cubes), (mode :marching)
	// -----------------------------------------------------------------------
	addFunction("mode", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("mode requires exactly 1 argument, got %d", len(args))
		}
		s, err := toKeywordString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("mode: %w", err)
		}
		m, err := kernel.ParseMode(s)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("mode: %w", err)
		}
		sc.Settings.Mode = m
		return zygo.SexpNull, nil
	})
}

// cloud returns count points drawn uniformly from center +/- spread.
func cloud(count int, spread float64, seed int64, center v3.Vec) []v3.Vec {
	rng := rand.New(rand.NewSource(seed))
	pos := make([]v3.Vec, count)
	for i := range pos {
		pos[i] = v3.Vec{
			X: center.X + (rng.Float64()*2-1)*spread,
			Y: center.Y + (rng.Float64()*2-1)*spread,
			Z: center.Z + (rng.Float64()*2-1)*spread,
		}
	}
	return pos
}

// grid returns n^3 lattice points, x-major, centered on center.
func grid(n int, spacing float64, center v3.Vec) []v3.Vec {
	pos := make([]v3.Vec, 0, n*n*n)
	off := float64(n-1) / 2
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			for k := 0; k < n; k++ {
				pos = append(pos, v3.Vec{
					X: center.X + (float64(i)-off)*spacing,
					Y: center.Y + (float64(j)-off)*spacing,
					Z: center.Z + (float64(k)-off)*spacing,
				})
			}
		}
	}
	return pos
}
