// Package interp provides the curve evaluators used by the tuning engine:
// a centripetal Catmull-Rom spline for shaped response curves and
// piecewise-linear breakpoint tables for speed-indexed limits.
package interp

import (
	"math"
	"sort"
)

// Centripetal is the knot parameterization exponent used by CatmullRom.
const Centripetal = 0.5

// CatmullRom evaluates a centripetal Catmull-Rom spline through the control
// points (xp, fp) at x. xp must be strictly increasing. Outside the control
// domain the curve is flat: x <= xp[0] yields fp[0] and x >= xp[last] yields
// fp[last].
//
// The first and last segments use mirrored endpoints (2*fp[0]-fp[1] and
// 2*fp[n-1]-fp[n-2]) as the missing neighbours for tangent estimation.
//
// Panics if fewer than 2 control points are supplied or the slices differ in
// length; profile validation rules both out before any cycle runs.
func CatmullRom(x float64, xp, fp []float64) float64 {
	return catmullRom(x, xp, fp, Centripetal)
}

func catmullRom(x float64, xp, fp []float64, alpha float64) float64 {
	n := len(xp)
	if n < 2 || len(fp) != n {
		panic("interp: CatmullRom needs at least 2 control points of equal length")
	}

	if x <= xp[0] {
		return fp[0]
	}
	if x >= xp[n-1] {
		return fp[n-1]
	}

	// Segment i satisfies xp[i] < x <= xp[i+1].
	i := sort.SearchFloat64s(xp, x) - 1
	if i < 0 {
		i = 0
	} else if i > n-2 {
		i = n - 2
	}

	var p0 float64
	if i == 0 {
		p0 = 2*fp[0] - fp[1]
	} else {
		p0 = fp[i-1]
	}
	p1 := fp[i]
	p2 := fp[i+1]
	var p3 float64
	if i+2 >= n {
		p3 = 2*fp[n-1] - fp[n-2]
	} else {
		p3 = fp[i+2]
	}

	t0 := 0.0
	t1 := t0 + math.Pow(math.Abs(p1-p0), alpha)
	t2 := t1 + math.Pow(math.Abs(p2-p1), alpha)
	t3 := t2 + math.Pow(math.Abs(p3-p2), alpha)

	span := xp[i+1] - xp[i]
	seg := t2 - t1
	if span <= 0 || seg == 0 {
		// Flat segment in parameter space: p1 == p2.
		return p2
	}
	s := (x - xp[i]) / span

	s2 := s * s
	s3 := s2 * s
	h00 := 2*s3 - 3*s2 + 1
	h10 := s3 - 2*s2 + s
	h01 := -2*s3 + 3*s2
	h11 := s3 - s2

	var m1, m2 float64
	if d := t2 - t0; d != 0 {
		m1 = (p2 - p0) / d * seg
	}
	if d := t3 - t1; d != 0 {
		m2 = (p3 - p1) / d * seg
	}

	return h00*p1 + h10*m1 + h01*p2 + h11*m2
}
