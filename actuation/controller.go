package actuation

import (
	"fmt"

	"adas-actuation-core/actuation/lateral"
	"adas-actuation-core/actuation/longitudinal"
	"adas-actuation-core/actuation/profile"
	"adas-actuation-core/utils"
)

// Option configures a Controller.
type Option func(*Controller)

// WithLogger logs phase transitions, lateral engagement edges and degraded
// cycles to l.
func WithLogger(l *utils.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// Controller runs the jerk limiter, the acceleration integrator and the
// lateral limiter for one vehicle, once per control cycle. Not safe for
// concurrent use.
type Controller struct {
	p     profile.TuningProfile
	jerk  *longitudinal.JerkLimiter
	accel *longitudinal.Integrator
	lat   *lateral.Limiter
	log   *utils.Logger

	prev          ActuationCommand
	degradedSince int64
}

// New validates p and builds a controller. Configuration errors wrap
// profile.ErrInvalidProfile.
func New(p profile.TuningProfile, opts ...Option) (*Controller, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("actuation: %w", err)
	}
	p = p.Clone()

	jerk, err := longitudinal.NewJerkLimiter(p)
	if err != nil {
		return nil, fmt.Errorf("actuation: %w", err)
	}
	lat, err := lateral.NewLimiter(p)
	if err != nil {
		return nil, fmt.Errorf("actuation: %w", err)
	}
	c := &Controller{
		p:     p,
		jerk:  jerk,
		accel: longitudinal.NewIntegrator(p),
		lat:   lat,
		log:   utils.NewLogger(nil, utils.INFO),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Profile returns a copy of the profile the controller was built with.
func (c *Controller) Profile() profile.TuningProfile { return c.p.Clone() }

// Reset drops all limiter state, including any lateral cooldown.
func (c *Controller) Reset() {
	c.jerk.Reset()
	c.accel.Reset()
	c.lat.Reset()
	c.prev = ActuationCommand{}
}

// Step computes one cycle. frame is the caller's monotonically increasing
// cycle index; the jerk bounds are refreshed before acceleration is
// integrated.
func (c *Controller) Step(frame int64, vs VehicleState, in ControlIntent) ActuationCommand {
	var bounds longitudinal.JerkBounds
	if in.LongActive {
		bounds = c.jerk.Update(frame, vs.VEgo, vs.AEgo, in.DesiredAccel, in.LongControlState)
	} else {
		c.jerk.Reset()
	}

	long := c.accel.Update(longitudinal.Input{
		Frame:        frame,
		Active:       in.LongActive,
		ControlState: in.LongControlState,
		DesiredAccel: in.DesiredAccel,
		VEgo:         vs.VEgo,
		Bounds:       bounds,
	})

	latActive := in.LatActive && (in.LongActive || !c.p.LateralRequiresLongitudinal)
	lat := c.lat.Update(frame, lateral.Input{
		Desired:          in.DesiredLateral,
		LatActive:        latActive,
		VEgo:             vs.VEgo,
		SteeringAngleDeg: vs.SteeringAngleDeg,
		DriverTorque:     vs.SteeringTorque,
		EpsTorque:        vs.SteeringTorqueEps,
		Standstill:       vs.Standstill,
	})

	cmd := ActuationCommand{
		ActualAccel:           long.Accel,
		JerkUpper:             bounds.Upper,
		JerkLower:             bounds.Lower,
		LateralCommand:        lat.Command,
		LateralOverrideActive: lat.OverrideActive,
		Degraded:              bounds.Held || long.Degraded || lat.Degraded,
		LongPhase:             long.Phase,
		LateralEnabled:        lat.Enabled,
		StopRequest:           long.StopRequest,
	}
	c.logTransitions(frame, cmd)
	c.prev = cmd
	return cmd
}

func (c *Controller) logTransitions(frame int64, cmd ActuationCommand) {
	prev := c.prev
	if cmd.LongPhase != prev.LongPhase {
		c.log.Debug("frame %d: longitudinal %s -> %s", frame, prev.LongPhase, cmd.LongPhase)
	}
	if cmd.LateralEnabled != prev.LateralEnabled {
		c.log.Debug("frame %d: lateral enabled=%t", frame, cmd.LateralEnabled)
	}
	if cmd.LateralOverrideActive && !prev.LateralOverrideActive {
		c.log.Info("frame %d: driver steering override", frame)
	}
	switch {
	case cmd.Degraded && !prev.Degraded:
		c.degradedSince = frame
		c.log.Warn("frame %d: invalid inputs, holding last safe command", frame)
	case !cmd.Degraded && prev.Degraded:
		c.log.Info("frame %d: inputs valid again after %d cycles", frame, frame-c.degradedSince)
	}
}
