package main

import (
	"math"

	"adas-actuation-core/actuation/longitudinal"
	"adas-actuation-core/actuation/profile"
)

// PlannerConfig holds the speed-tracking gains of the replay planner.
type PlannerConfig struct {
	Kp            float64 `json:"kp"`
	Ki            float64 `json:"ki"`
	Kd            float64 `json:"kd"`
	IntegralLimit float64 `json:"integral_limit"`
	// KffTarget feeds the target speed's rate of change forward as accel.
	KffTarget float64 `json:"kff_target"`
}

// SpeedPlanner stands in for the upstream planner during replay: it tracks a
// target speed with a discrete PID and declares the longitudinal control
// state, including the stop and start hand-offs.
type SpeedPlanner struct {
	cfg PlannerConfig

	accelMin, accelMax float64
	vEgoStopping       float64
	vEgoStarting       float64
	stoppingDecelRate  float64
	startAccel         float64

	// State
	integral    float64
	prevError   float64
	prevTarget  float64
	lastAccel   float64
	state       longitudinal.ControlState
	initialized bool
}

// NewSpeedPlanner takes its stop/start thresholds and accel limits from p.
func NewSpeedPlanner(cfg PlannerConfig, p profile.TuningProfile) *SpeedPlanner {
	return &SpeedPlanner{
		cfg:               cfg,
		accelMin:          p.AccelMin,
		accelMax:          p.AccelMax,
		vEgoStopping:      p.VEgoStopping,
		vEgoStarting:      p.VEgoStarting,
		stoppingDecelRate: p.StoppingDecelRate,
		startAccel:        p.StartAccel,
	}
}

// Reset clears the PID state
func (sp *SpeedPlanner) Reset() {
	sp.integral = 0
	sp.prevError = 0
	sp.prevTarget = 0
	sp.lastAccel = 0
	sp.state = longitudinal.StateOff
	sp.initialized = false
}

// State returns the control state declared by the last Update.
func (sp *SpeedPlanner) State() longitudinal.ControlState { return sp.state }

// Update returns the desired acceleration and declared control state for
// one cycle.
func (sp *SpeedPlanner) Update(target, vEgo, dt float64) (float64, longitudinal.ControlState) {
	if !sp.initialized {
		sp.prevError = target - vEgo
		sp.prevTarget = target
		sp.state = longitudinal.StatePid
		if vEgo < sp.vEgoStopping && target > sp.vEgoStarting {
			sp.state = longitudinal.StateStarting
		}
		sp.initialized = true
	}

	stopping := target < sp.vEgoStopping && vEgo < sp.vEgoStopping
	starting := target > sp.vEgoStarting

	switch sp.state {
	case longitudinal.StatePid:
		if stopping {
			sp.state = longitudinal.StateStopping
		}
	case longitudinal.StateStopping:
		if starting {
			sp.state = longitudinal.StateStarting
		}
	case longitudinal.StateStarting:
		if stopping {
			sp.state = longitudinal.StateStopping
		} else if vEgo > sp.vEgoStarting {
			sp.state = longitudinal.StatePid
			sp.integral = 0
		}
	}

	var accel float64
	switch sp.state {
	case longitudinal.StateStopping:
		// Ramp the request down; the actuator holds zero until standstill.
		accel = math.Max(sp.lastAccel-sp.stoppingDecelRate*dt, sp.accelMin)
		sp.integral = 0
	case longitudinal.StateStarting:
		accel = sp.startAccel
	default:
		accel = sp.pid(target, vEgo, dt)
	}

	accel = math.Max(sp.accelMin, math.Min(accel, sp.accelMax))
	sp.prevTarget = target
	sp.lastAccel = accel
	return accel, sp.state
}

func (sp *SpeedPlanner) pid(target, vEgo, dt float64) float64 {
	err := target - vEgo
	p := sp.cfg.Kp * err

	// Integral term with anti-windup
	sp.integral += err * dt
	if sp.cfg.IntegralLimit > 0 {
		sp.integral = math.Max(-sp.cfg.IntegralLimit, math.Min(sp.integral, sp.cfg.IntegralLimit))
	}
	i := sp.cfg.Ki * sp.integral

	var d, ff float64
	if dt > 0 {
		d = sp.cfg.Kd * (err - sp.prevError) / dt
		ff = sp.cfg.KffTarget * (target - sp.prevTarget) / dt
	}
	sp.prevError = err

	accel := p + i + d + ff
	if sat := math.Max(sp.accelMin, math.Min(accel, sp.accelMax)); sat != accel && sp.cfg.Ki > 0 {
		// Back-calculate so the integral stops winding while saturated.
		sp.integral = (sat - p - d - ff) / sp.cfg.Ki
		accel = sat
	}
	return accel
}
