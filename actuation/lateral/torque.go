package lateral

import (
	"math"

	"adas-actuation-core/actuation/profile"
)

// torqueStep limits the desired torque against the feedback window, then
// applies the asymmetric rate limit around the last applied torque.
func (l *Limiter) torqueStep(in Input) float64 {
	t := l.cfg.Torque
	last := l.state.AppliedLast

	target := in.Desired
	if l.state.OverrideActive {
		target = 0
	}

	var lo, hi float64
	switch t.Kind {
	case profile.LimitMeasured:
		lo, hi = measuredWindow(t, in.EpsTorque)
	default:
		lo, hi = driverWindow(t, in.DriverTorque)
	}
	target = clamp(target, lo, hi)

	up, down := t.DeltaUp, t.DeltaDown
	if opposing(in.DriverTorque, last, t.OpposeThreshold) {
		up *= t.OpposeWindupGain
		down *= t.OpposeReleaseGain
	}

	var out float64
	if last > 0 {
		out = clamp(target, math.Max(last-down, -up), last+up)
	} else {
		out = clamp(target, last-up, math.Min(last+down, up))
	}
	return clamp(out, -t.SteerMax, t.SteerMax)
}

// driverWindow narrows the allowed torque range as the driver pushes against
// the command.
func driverWindow(t profile.TorqueLimits, driver float64) (lo, hi float64) {
	maxDriver := t.SteerMax + (t.DriverAllowance+driver*t.DriverFactor)*t.DriverMultiplier
	minDriver := -t.SteerMax + (-t.DriverAllowance+driver*t.DriverFactor)*t.DriverMultiplier
	hi = math.Max(math.Min(t.SteerMax, maxDriver), 0)
	lo = math.Min(math.Max(-t.SteerMax, minDriver), 0)
	return lo, hi
}

// measuredWindow keeps the command within ErrorMax of what the motor reports.
func measuredWindow(t profile.TorqueLimits, motor float64) (lo, hi float64) {
	hi = math.Min(math.Max(motor+t.ErrorMax, t.ErrorMax), t.SteerMax)
	lo = math.Max(math.Min(motor-t.ErrorMax, -t.ErrorMax), -t.SteerMax)
	return lo, hi
}

func opposing(driver, applied, threshold float64) bool {
	if threshold <= 0 || math.Abs(driver) <= threshold {
		return false
	}
	return driver*applied < 0
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}
