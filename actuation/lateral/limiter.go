// Package lateral rate-limits steering commands and decides when lateral
// control is allowed to act.
package lateral

import (
	"fmt"
	"math"

	"adas-actuation-core/actuation/interp"
	"adas-actuation-core/actuation/profile"
)

// Input is one cycle of lateral input. Desired is a torque in actuator units
// or an angle in degrees, depending on the profile's lateral mode.
type Input struct {
	Desired          float64
	LatActive        bool
	VEgo             float64
	SteeringAngleDeg float64
	DriverTorque     float64
	EpsTorque        float64
	Standstill       bool
}

// Output is the limiter's result for one cycle.
type Output struct {
	Command        float64
	Enabled        bool
	OverrideActive bool
	Degraded       bool
}

// State is the limiter memory between cycles.
type State struct {
	AppliedLast        float64
	ControlEnabledPrev bool
	LastDisableFrame   int64
	OverrideActive     bool
	HandsOnLastFrame   int64
	SpeedOK            bool
}

// neverFrame seeds frame fields so the first engagement is never inside a
// cooldown window.
const neverFrame = math.MinInt64 / 4

// Limiter is the lateral rate limiter. Not safe for concurrent use.
type Limiter struct {
	mode           profile.LateralMode
	cfg            profile.LateralProfile
	minSteerSpeed  float64
	minEnableSpeed float64
	cooldownCycles int64
	handsOffCycles int64

	rateUp     *interp.Curve
	rateDown   *interp.Curve
	blendScale *interp.Curve

	state State
}

// NewLimiter builds a limiter from a validated profile.
func NewLimiter(p profile.TuningProfile) (*Limiter, error) {
	l := &Limiter{
		mode:           p.Lateral.Mode,
		cfg:            p.Lateral,
		minSteerSpeed:  p.MinSteerSpeed,
		minEnableSpeed: p.MinEnableSpeed,
		cooldownCycles: p.Cycles(p.Lateral.ReenableCooldown),
		handsOffCycles: p.Cycles(p.Lateral.HandsOffClear),
	}
	if l.mode == profile.LateralAngle {
		var err error
		a := p.Lateral.Angle
		if l.rateUp, err = a.RateUp.Compile(); err != nil {
			return nil, fmt.Errorf("angle rate_up: %w", err)
		}
		if l.rateDown, err = a.RateDown.Compile(); err != nil {
			return nil, fmt.Errorf("angle rate_down: %w", err)
		}
		if l.blendScale, err = a.BlendSpeedScale.Compile(); err != nil {
			return nil, fmt.Errorf("angle blend_speed_scale: %w", err)
		}
	}
	l.Reset()
	return l, nil
}

// State returns a copy of the limiter memory.
func (l *Limiter) State() State { return l.state }

// Reset forgets all history, including any pending cooldown.
func (l *Limiter) Reset() {
	l.state = State{LastDisableFrame: neverFrame, HandsOnLastFrame: neverFrame}
}

// Update advances one cycle. A cleared LatActive always commands zero, even
// when the rest of the input is invalid; invalid input while engaged holds
// the last command.
func (l *Limiter) Update(frame int64, in Input) Output {
	st := &l.state
	valid := l.inputsValid(in)
	if !in.LatActive {
		l.disengage(frame, in, valid)
		return Output{}
	}
	if !valid {
		out := Output{Enabled: st.ControlEnabledPrev, OverrideActive: st.OverrideActive, Degraded: true}
		if st.ControlEnabledPrev {
			out.Command = st.AppliedLast
		}
		return out
	}

	enabled := l.controlEnabled(frame, in)
	l.updateOverride(frame, in, enabled)

	var cmd float64
	switch {
	case !enabled && l.mode == profile.LateralAngle:
		st.AppliedLast = in.SteeringAngleDeg
	case !enabled:
		st.AppliedLast = 0
	case l.mode == profile.LateralAngle:
		if !st.ControlEnabledPrev {
			st.AppliedLast = in.SteeringAngleDeg
		}
		cmd = l.angleStep(in)
		st.AppliedLast = cmd
	default:
		cmd = l.torqueStep(in)
		st.AppliedLast = cmd
	}
	st.ControlEnabledPrev = enabled

	return Output{Command: cmd, Enabled: enabled, OverrideActive: st.OverrideActive}
}

// disengage handles a cycle without a lateral request. Speed and wheel angle
// are only tracked when the input is usable.
func (l *Limiter) disengage(frame int64, in Input, valid bool) {
	st := &l.state
	if st.ControlEnabledPrev {
		st.LastDisableFrame = frame
	}
	st.ControlEnabledPrev = false
	st.OverrideActive = false
	st.AppliedLast = 0
	if !valid {
		return
	}
	l.trackSpeed(in.VEgo)
	if l.mode == profile.LateralAngle {
		st.AppliedLast = in.SteeringAngleDeg
	}
}

func (l *Limiter) inputsValid(in Input) bool {
	if math.IsNaN(in.Desired) || math.IsInf(in.Desired, 0) || math.IsNaN(in.DriverTorque) {
		return false
	}
	if math.IsNaN(in.VEgo) || math.IsInf(in.VEgo, 0) || in.VEgo < 0 {
		return false
	}
	if l.mode == profile.LateralAngle && math.IsNaN(in.SteeringAngleDeg) {
		return false
	}
	if l.mode == profile.LateralTorque && l.cfg.Torque.Kind == profile.LimitMeasured && math.IsNaN(in.EpsTorque) {
		return false
	}
	return true
}

// controlEnabled applies speed hysteresis and the re-enable cooldown, and
// records the falling edge.
func (l *Limiter) controlEnabled(frame int64, in Input) bool {
	st := &l.state
	l.trackSpeed(in.VEgo)

	enabled := in.LatActive && st.SpeedOK
	if enabled && !st.ControlEnabledPrev && frame-st.LastDisableFrame <= l.cooldownCycles {
		enabled = false
	}
	if st.ControlEnabledPrev && !enabled {
		st.LastDisableFrame = frame
	}
	return enabled
}

func (l *Limiter) trackSpeed(vEgo float64) {
	switch {
	case vEgo < l.minSteerSpeed:
		l.state.SpeedOK = false
	case vEgo >= l.minEnableSpeed:
		l.state.SpeedOK = true
	}
}

// updateOverride latches the override on a firm driver grip. Once latched it
// clears after the hands-off period; in angle mode it also clears as soon as
// the wheel agrees with the request again.
func (l *Limiter) updateOverride(frame int64, in Input, enabled bool) {
	st := &l.state
	driver := math.Abs(in.DriverTorque)
	if driver >= l.cfg.HandsOnTorque {
		st.HandsOnLastFrame = frame
	}
	if !enabled || !st.ControlEnabledPrev {
		st.OverrideActive = false
	}
	if !enabled {
		return
	}

	switch {
	case driver >= l.cfg.OverrideTorque:
		st.OverrideActive = true
	case !st.OverrideActive:
	case frame-st.HandsOnLastFrame >= l.handsOffCycles:
		st.OverrideActive = false
	case l.mode == profile.LateralAngle:
		st.OverrideActive = l.angleDisagrees(in)
	}
}

func (l *Limiter) angleDisagrees(in Input) bool {
	if in.Standstill {
		return false
	}
	return math.Abs(in.SteeringAngleDeg-in.Desired) > l.cfg.Angle.ContinuedOverrideAngle
}
