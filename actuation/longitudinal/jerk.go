package longitudinal

import (
	"fmt"
	"math"

	"adas-actuation-core/actuation/interp"
	"adas-actuation-core/actuation/profile"
)

// Jerk levels of the basic policy (m/s³).
const (
	BasicPidJerk  = 3.0
	BasicIdleJerk = 1.0
)

// JerkBounds are the allowed rates of change of acceleration for one cycle.
// Both are magnitudes. Held is set when the inputs were unusable and the
// previous bounds were reused.
type JerkBounds struct {
	Upper float64
	Lower float64
	Held  bool
}

// JerkLimiter produces per-cycle jerk bounds. The policy (basic or shaped) is
// fixed at construction from the profile mode.
type JerkLimiter struct {
	shaped  bool
	dt      float64
	limits  profile.JerkLimits
	shaping profile.JerkShaping

	upperEnv *interp.Curve
	lowerEnv *interp.Curve
	alpha    float64 // low-pass coefficient for the 2*dt update period

	primed   bool
	filtered float64
	jerk     float64
	bounds   JerkBounds
	hasLast  bool
}

// NewJerkLimiter builds a limiter from a validated profile.
func NewJerkLimiter(p profile.TuningProfile) (*JerkLimiter, error) {
	j := &JerkLimiter{
		shaped:  p.Mode == profile.ModeShaped,
		dt:      p.ControlPeriod,
		limits:  p.JerkLimits,
		shaping: p.Jerk,
	}
	if !j.shaped {
		return j, nil
	}

	var err error
	if j.upperEnv, err = p.Jerk.UpperEnvelope.Compile(); err != nil {
		return nil, fmt.Errorf("upper jerk envelope: %w", err)
	}
	if j.lowerEnv, err = p.Jerk.LowerEnvelope.Compile(); err != nil {
		return nil, fmt.Errorf("lower jerk envelope: %w", err)
	}
	period := 2 * p.ControlPeriod
	j.alpha = period / (p.Jerk.TimeConstant + period)
	return j, nil
}

// Update returns the bounds for this cycle. Inputs that are NaN, or a
// negative speed, leave the previous bounds in place (or the minimum jerk
// before any valid cycle).
func (j *JerkLimiter) Update(frame int64, vEgo, aEgo, plannedAccel float64, state ControlState) JerkBounds {
	if !validSpeed(vEgo) || math.IsNaN(aEgo) || math.IsNaN(plannedAccel) {
		b := j.bounds
		if !j.hasLast {
			b = JerkBounds{Upper: j.limits.Min, Lower: j.limits.Min}
		}
		b.Held = true
		return b
	}

	var b JerkBounds
	if j.shaped {
		b = j.shapedBounds(frame, vEgo, aEgo, plannedAccel, state)
	} else {
		b = j.basicBounds(state)
	}
	j.bounds = b
	j.hasLast = true
	return b
}

// Reset clears filter memory and the held bounds.
func (j *JerkLimiter) Reset() {
	j.primed = false
	j.filtered = 0
	j.jerk = 0
	j.bounds = JerkBounds{}
	j.hasLast = false
}

func (j *JerkLimiter) basicBounds(state ControlState) JerkBounds {
	level := BasicIdleJerk
	if state == StatePid {
		level = BasicPidJerk
	}
	return JerkBounds{
		Upper: clamp(level, j.limits.Min, j.limits.MaxUpper),
		Lower: clamp(level, j.limits.Min, j.limits.MaxLower),
	}
}

func (j *JerkLimiter) shapedBounds(frame int64, vEgo, aEgo, planned float64, state ControlState) JerkBounds {
	s := j.shaping
	blend := s.PlannedWeight*planned + (1-s.PlannedWeight)*aEgo

	switch {
	case !j.primed:
		j.filtered = blend
		j.jerk = 0
		j.primed = true
	case frame%2 == 0:
		prev := j.filtered
		j.filtered += j.alpha * (blend - j.filtered)
		j.jerk = (j.filtered - prev) / (2 * j.dt)
	}

	upperCap := j.upperEnv.At(vEgo)
	if state != StatePid {
		upperCap = math.Min(upperCap, s.NonPidUpperJerk)
	}
	upperTarget := clamp(s.UpperMultiplier*j.jerk, j.limits.Min, upperCap)
	lowerTarget := clamp(-s.LowerMultiplier*j.jerk, j.limits.Min, j.lowerEnv.At(vEgo))

	if !j.hasLast {
		return JerkBounds{Upper: upperTarget, Lower: lowerTarget}
	}
	return JerkBounds{
		Upper: ramp(j.bounds.Upper, upperTarget, s.RampStep, s.RampDeadband),
		Lower: ramp(j.bounds.Lower, lowerTarget, s.RampStep, s.RampDeadband),
	}
}

// ramp moves cur toward target by at most step; within deadband it snaps.
func ramp(cur, target, step, deadband float64) float64 {
	d := target - cur
	if math.Abs(d) <= deadband {
		return target
	}
	if d > 0 {
		return math.Min(cur+step, target)
	}
	return math.Max(cur-step, target)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}

func validSpeed(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
