package interp

import (
	"errors"
	"fmt"
	"math"

	gonuminterp "gonum.org/v1/gonum/interp"
)

var (
	errEmptyTable      = errors.New("interp: table has no breakpoints")
	errLengthMismatch  = errors.New("interp: breakpoint and value counts differ")
	errNotIncreasing   = errors.New("interp: breakpoints must be strictly increasing")
	errNonFiniteSample = errors.New("interp: table contains NaN or Inf")
)

// Table is a piecewise-linear lookup keyed by breakpoints BP. Values outside
// the breakpoint range clamp to the first/last value.
type Table struct {
	BP []float64 `json:"bp" yaml:"bp"`
	V  []float64 `json:"v" yaml:"v"`
}

// Validate checks the table shape without fitting it.
func (t Table) Validate() error {
	if len(t.BP) == 0 {
		return errEmptyTable
	}
	if len(t.BP) != len(t.V) {
		return fmt.Errorf("%w: %d vs %d", errLengthMismatch, len(t.BP), len(t.V))
	}
	for i := range t.BP {
		if !finite(t.BP[i]) || !finite(t.V[i]) {
			return errNonFiniteSample
		}
		if i > 0 && t.BP[i] <= t.BP[i-1] {
			return fmt.Errorf("%w: bp[%d]=%g after %g", errNotIncreasing, i, t.BP[i], t.BP[i-1])
		}
	}
	return nil
}

// Min returns the smallest value in the table.
func (t Table) Min() float64 {
	m := math.Inf(1)
	for _, v := range t.V {
		m = math.Min(m, v)
	}
	return m
}

// Compile validates the table and fits it for repeated evaluation.
func (t Table) Compile() (*Curve, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	c := &Curve{first: t.V[0], last: t.V[len(t.V)-1]}
	if len(t.BP) == 1 {
		c.constant = true
		return c, nil
	}
	if err := c.pl.Fit(t.BP, t.V); err != nil {
		return nil, fmt.Errorf("interp: fit table: %w", err)
	}
	return c, nil
}

// MustCompile is Compile for tables known to be valid, such as built-in
// defaults. It panics on error.
func (t Table) MustCompile() *Curve {
	c, err := t.Compile()
	if err != nil {
		panic(err)
	}
	return c
}

// Curve is a fitted Table.
type Curve struct {
	pl       gonuminterp.PiecewiseLinear
	constant bool
	first    float64
	last     float64
}

// At evaluates the curve at x. NaN evaluates to the first value.
func (c *Curve) At(x float64) float64 {
	if c.constant || math.IsNaN(x) {
		return c.first
	}
	return c.pl.Predict(x)
}

// Linear interpolates x over (xp, fp) with flat extrapolation, fitting the
// table on every call. Use Table.Compile on hot paths.
func Linear(x float64, xp, fp []float64) (float64, error) {
	c, err := Table{BP: xp, V: fp}.Compile()
	if err != nil {
		return 0, err
	}
	return c.At(x), nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
