package main

import (
	"math"

	"adas-actuation-core/actuation"
	"adas-actuation-core/actuation/profile"
)

const (
	plantAccelLag     = 0.3  // s, powertrain/brake first-order lag
	plantHoldDecel    = 1.0  // m/s², brake applied on a stop request
	plantStandstill   = 0.01 // m/s
	fullTorqueRate    = 90.0 // deg/s at SteerMax in torque mode
	overrideSteerRate = 30.0 // deg/s at the override torque threshold
	defaultSteerLag   = 0.1  // s, when the profile has no actuator delay
)

// Plant is a first-order vehicle model closing the loop in replay. It
// reports the vehicle state the controller sees and integrates the command
// the controller produced.
type Plant struct {
	dt       float64
	mode     profile.LateralMode
	steerLag float64
	torqueK  float64 // deg/s per unit of motor torque
	driverK  float64 // deg/s per unit of driver torque

	v, a   float64
	angle  float64
	eps    float64
	driver float64
}

// NewPlant builds a plant matching p's cycle period and steering interface.
func NewPlant(p profile.TuningProfile, init InitialState) *Plant {
	pl := &Plant{
		dt:       p.ControlPeriod,
		mode:     p.Lateral.Mode,
		steerLag: p.SteerActuatorDelay,
		v:        init.VEgo,
		angle:    init.SteeringAngleDeg,
	}
	if pl.steerLag <= 0 {
		pl.steerLag = defaultSteerLag
	}
	if p.Lateral.Torque.SteerMax > 0 {
		pl.torqueK = fullTorqueRate / p.Lateral.Torque.SteerMax
	}
	if p.Lateral.OverrideTorque > 0 {
		pl.driverK = overrideSteerRate / p.Lateral.OverrideTorque
	}
	return pl
}

// SetDriverTorque sets the torque the driver applies from now on.
func (pl *Plant) SetDriverTorque(t float64) { pl.driver = t }

// State is the measured vehicle state for the current cycle.
func (pl *Plant) State() actuation.VehicleState {
	return actuation.VehicleState{
		VEgo:              pl.v,
		AEgo:              pl.a,
		SteeringAngleDeg:  pl.angle,
		SteeringTorque:    pl.driver,
		SteeringTorqueEps: pl.eps,
		Standstill:        pl.v < plantStandstill,
	}
}

// Step advances the model by one cycle under cmd.
func (pl *Plant) Step(cmd actuation.ActuationCommand) {
	target := cmd.ActualAccel
	if cmd.StopRequest && pl.v > 0 {
		target = math.Min(target, -plantHoldDecel)
	}
	pl.a += (target - pl.a) * pl.dt / (plantAccelLag + pl.dt)
	pl.v += pl.a * pl.dt
	if pl.v <= 0 {
		pl.v = 0
		pl.a = math.Max(pl.a, 0)
	}

	alpha := pl.dt / (pl.steerLag + pl.dt)
	switch pl.mode {
	case profile.LateralAngle:
		pl.angle += (cmd.LateralCommand - pl.angle) * alpha
		pl.eps = 0
	default:
		pl.eps += (cmd.LateralCommand - pl.eps) * alpha
		pl.angle += pl.eps * pl.torqueK * pl.dt
	}
	pl.angle += pl.driver * pl.driverK * pl.dt
}
