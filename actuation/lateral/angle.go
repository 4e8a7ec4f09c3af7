package lateral

import "math"

// angleStep biases the desired angle by driver torque, rate-limits it by
// speed and clips it to the maximum angle. During an override the target is
// the measured wheel angle, still rate-limited.
func (l *Limiter) angleStep(in Input) float64 {
	a := l.cfg.Angle
	target := in.Desired + l.torqueBlend(in)
	if l.state.OverrideActive {
		target = in.SteeringAngleDeg
	}
	last := l.state.AppliedLast

	rate := l.rateDown.At(in.VEgo)
	if last*target >= 0 && math.Abs(target) > math.Abs(last) {
		rate = l.rateUp.At(in.VEgo)
	}
	out := clamp(target, last-rate, last+rate)
	return clamp(out, -a.AngleMax, a.AngleMax)
}

// RateBound returns the largest per-cycle command change allowed at vEgo
// while enabled, overridden or not.
func (l *Limiter) RateBound(vEgo float64) float64 {
	if l.rateUp == nil {
		t := l.cfg.Torque
		return math.Max(t.DeltaUp, t.DeltaDown*t.OpposeReleaseGain)
	}
	return math.Max(l.rateUp.At(vEgo), l.rateDown.At(vEgo))
}

// torqueBlend converts driver torque outside the deadzone into an angle
// offset. Torque with the command uses the outer multiplier, torque against
// it the inner one.
func (l *Limiter) torqueBlend(in Input) float64 {
	a := l.cfg.Angle
	mag := math.Abs(in.DriverTorque)
	if mag <= a.TorqueDeadzone {
		return 0
	}
	over := math.Min(mag, a.TorqueClip) - a.TorqueDeadzone
	if over <= 0 {
		return 0
	}
	eff := math.Copysign(over, in.DriverTorque)
	mult := a.MultiplierInner
	if eff*in.Desired >= 0 {
		mult = a.MultiplierOuter
	}
	return eff * mult * l.blendScale.At(in.VEgo)
}
