package profile

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"adas-actuation-core/actuation/interp"
)

// ErrInvalidProfile wraps every validation failure.
var ErrInvalidProfile = errors.New("invalid tuning profile")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidProfile, fmt.Sprintf(format, args...))
}

// Validate checks every configuration-time invariant. It does not apply
// defaults; call ApplyDefaults first for partially specified profiles.
func (p TuningProfile) Validate() error {
	if p.Mode != ModeBasic && p.Mode != ModeShaped {
		return invalid("unknown mode %q", p.Mode)
	}
	if !positive(p.ControlPeriod) {
		return invalid("control_period must be > 0, got %g", p.ControlPeriod)
	}

	jl := p.JerkLimits
	if floats.HasNaN([]float64{jl.Min, jl.MaxLower, jl.MaxUpper}) {
		return invalid("jerk_limits contain NaN")
	}
	if jl.Min < 0 {
		return invalid("jerk_limits.min must be >= 0, got %g", jl.Min)
	}
	if jl.MaxUpper < jl.Min {
		return invalid("jerk_limits.max_upper %g below min %g", jl.MaxUpper, jl.Min)
	}
	if jl.MaxLower < jl.Min {
		return invalid("jerk_limits.max_lower %g below min %g", jl.MaxLower, jl.Min)
	}

	if !(p.AccelMin < 0) || !(p.AccelMax > 0) {
		return invalid("accel limits must satisfy accel_min < 0 < accel_max, got [%g, %g]", p.AccelMin, p.AccelMax)
	}
	if p.StandstillDelay < 0 || math.IsNaN(p.StandstillDelay) {
		return invalid("standstill_delay must be >= 0, got %g", p.StandstillDelay)
	}

	if p.Mode == ModeShaped {
		if err := p.validateShaping(); err != nil {
			return err
		}
	}
	if p.BrakeResponse.Enabled {
		if err := p.BrakeResponse.validate(); err != nil {
			return err
		}
	}
	if !nonNegative(p.MinSteerSpeed) || !nonNegative(p.MinEnableSpeed) {
		return invalid("min_steer_speed and min_enable_speed must be finite and >= 0, got %g and %g", p.MinSteerSpeed, p.MinEnableSpeed)
	}
	if p.MinSteerSpeed > p.MinEnableSpeed {
		return invalid("min_steer_speed %g above min_enable_speed %g", p.MinSteerSpeed, p.MinEnableSpeed)
	}
	if !nonNegative(p.SteerActuatorDelay) {
		return invalid("steer_actuator_delay must be >= 0, got %g", p.SteerActuatorDelay)
	}
	return p.Lateral.validate()
}

func (p TuningProfile) validateShaping() error {
	j := p.Jerk
	if !positive(j.TimeConstant) {
		return invalid("jerk.time_constant must be > 0")
	}
	if j.PlannedWeight < 0 || j.PlannedWeight > 1 {
		return invalid("jerk.planned_weight must be in [0,1], got %g", j.PlannedWeight)
	}
	if !positive(j.UpperMultiplier) || !positive(j.LowerMultiplier) {
		return invalid("jerk multipliers must be > 0")
	}
	if !positive(j.RampStep) || j.RampDeadband < 0 {
		return invalid("jerk ramp step must be > 0 and deadband >= 0")
	}
	if j.NonPidUpperJerk < p.JerkLimits.Min {
		return invalid("jerk.non_pid_upper_jerk %g below min jerk %g", j.NonPidUpperJerk, p.JerkLimits.Min)
	}
	for name, t := range map[string]interp.Table{
		"upper_envelope": j.UpperEnvelope,
		"lower_envelope": j.LowerEnvelope,
	} {
		if err := t.Validate(); err != nil {
			return invalid("jerk.%s: %v", name, err)
		}
		if t.Min() < p.JerkLimits.Min {
			return invalid("jerk.%s drops below min jerk %g", name, p.JerkLimits.Min)
		}
	}
	return nil
}

func (b BrakeResponse) validate() error {
	if len(b.RatioBP) != 4 || len(b.Rate) != 4 {
		return invalid("brake_response needs 4 control points, got %d/%d", len(b.RatioBP), len(b.Rate))
	}
	if floats.HasNaN(b.RatioBP) || floats.HasNaN(b.Rate) {
		return invalid("brake_response contains NaN")
	}
	if b.RatioBP[0] < 0 || b.RatioBP[3] > 1 {
		return invalid("brake_response.ratio_bp must lie within [0,1]")
	}
	for i := 1; i < 4; i++ {
		if b.RatioBP[i] <= b.RatioBP[i-1] {
			return invalid("brake_response.ratio_bp must be strictly increasing")
		}
	}
	if !sort.Float64sAreSorted(b.Rate) {
		return invalid("brake_response.rate must be non-decreasing")
	}
	if floats.Min(b.Rate) <= 0 {
		return invalid("brake_response.rate must be > 0")
	}
	if b.MinSpeed < 0 {
		return invalid("brake_response.min_speed must be >= 0")
	}
	return nil
}

func (l LateralProfile) validate() error {
	if !nonNegative(l.ReenableCooldown) {
		return invalid("lateral.reenable_cooldown must be finite and >= 0")
	}
	if !nonNegative(l.HandsOffClear) {
		return invalid("lateral.hands_off_clear must be finite and >= 0")
	}
	if !positive(l.OverrideTorque) || l.HandsOnTorque < 0 {
		return invalid("lateral.override_torque must be > 0 and hands_on_torque >= 0")
	}
	if l.OverrideTorque < l.HandsOnTorque {
		return invalid("lateral.override_torque %g below hands_on_torque %g", l.OverrideTorque, l.HandsOnTorque)
	}

	switch l.Mode {
	case LateralTorque:
		t := l.Torque
		if !positive(t.SteerMax) || !positive(t.DeltaUp) || !positive(t.DeltaDown) {
			return invalid("lateral.torque steer_max, delta_up and delta_down must be > 0")
		}
		switch t.Kind {
		case LimitDriver:
			if t.DriverAllowance < 0 || t.DriverFactor < 0 || t.DriverMultiplier < 0 {
				return invalid("lateral.torque driver limits must be >= 0")
			}
		case LimitMeasured:
			if !positive(t.ErrorMax) {
				return invalid("lateral.torque.error_max must be > 0 for measured limits")
			}
		default:
			return invalid("unknown lateral.torque.kind %q", t.Kind)
		}
		if t.OpposeReleaseGain < 1 || t.OpposeWindupGain <= 0 || t.OpposeWindupGain > 1 {
			return invalid("lateral.torque oppose gains must satisfy release >= 1 and 0 < windup <= 1")
		}
	case LateralAngle:
		a := l.Angle
		if !positive(a.AngleMax) {
			return invalid("lateral.angle.angle_max must be > 0")
		}
		for name, t := range map[string]interp.Table{
			"rate_up":           a.RateUp,
			"rate_down":         a.RateDown,
			"blend_speed_scale": a.BlendSpeedScale,
		} {
			if err := t.Validate(); err != nil {
				return invalid("lateral.angle.%s: %v", name, err)
			}
			if t.Min() < 0 {
				return invalid("lateral.angle.%s must be >= 0", name)
			}
		}
		if a.TorqueDeadzone < 0 || a.TorqueClip < 0 || a.MultiplierOuter < 0 || a.MultiplierInner < 0 {
			return invalid("lateral.angle torque blend parameters must be >= 0")
		}
		if a.ContinuedOverrideAngle < 0 {
			return invalid("lateral.angle.continued_override_angle must be >= 0")
		}
	default:
		return invalid("unknown lateral.mode %q", l.Mode)
	}
	return nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

// nonNegative also rejects NaN, which compares false against everything.
func nonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0)
}
