// Package profile holds the per-vehicle tuning data consumed by the
// longitudinal and lateral limiters. A TuningProfile is loaded once per
// vehicle instance, validated, and then treated as immutable.
package profile

import (
	"math"

	"adas-actuation-core/actuation/interp"
)

// Mode selects the longitudinal jerk policy.
type Mode string

const (
	// ModeBasic uses the coarse two-level jerk rule. Always available.
	ModeBasic Mode = "basic"
	// ModeShaped uses the filtered, speed-enveloped and ramped jerk policy
	// plus the optional brake-response curve.
	ModeShaped Mode = "shaped"
)

// LateralMode selects the steering actuator interface.
type LateralMode string

const (
	LateralTorque LateralMode = "torque"
	LateralAngle  LateralMode = "angle"
)

// TorqueLimitKind selects how the torque window is narrowed by feedback.
type TorqueLimitKind string

const (
	// LimitDriver narrows the window by driver-applied torque.
	LimitDriver TorqueLimitKind = "driver"
	// LimitMeasured narrows the window around the EPS-reported motor torque.
	LimitMeasured TorqueLimitKind = "measured"
)

// JerkLimits are (min jerk, max lower jerk, max upper jerk) in m/s³.
type JerkLimits struct {
	Min      float64 `json:"min" yaml:"min"`
	MaxLower float64 `json:"max_lower" yaml:"max_lower"`
	MaxUpper float64 `json:"max_upper" yaml:"max_upper"`
}

// BrakeResponse maps the normalized braking ratio |accel/AccelMin| to an
// allowed decel rate-of-change (m/s³).
type BrakeResponse struct {
	Enabled  bool      `json:"enabled" yaml:"enabled"`
	MinSpeed float64   `json:"min_speed" yaml:"min_speed"` // m/s
	RatioBP  []float64 `json:"ratio_bp" yaml:"ratio_bp"`
	Rate     []float64 `json:"rate" yaml:"rate"`
}

// JerkShaping parameterizes the Shaped jerk policy.
type JerkShaping struct {
	TimeConstant    float64      `json:"time_constant" yaml:"time_constant"`   // s
	PlannedWeight   float64      `json:"planned_weight" yaml:"planned_weight"` // blend weight of planned accel
	UpperMultiplier float64      `json:"upper_multiplier" yaml:"upper_multiplier"`
	LowerMultiplier float64      `json:"lower_multiplier" yaml:"lower_multiplier"`
	NonPidUpperJerk float64      `json:"non_pid_upper_jerk" yaml:"non_pid_upper_jerk"`
	RampStep        float64      `json:"ramp_step" yaml:"ramp_step"`
	RampDeadband    float64      `json:"ramp_deadband" yaml:"ramp_deadband"`
	UpperEnvelope   interp.Table `json:"upper_envelope" yaml:"upper_envelope"` // speed -> max upper jerk
	LowerEnvelope   interp.Table `json:"lower_envelope" yaml:"lower_envelope"` // speed -> max lower jerk
}

// TorqueLimits configure torque-mode steering.
type TorqueLimits struct {
	Kind      TorqueLimitKind `json:"kind" yaml:"kind"`
	SteerMax  float64         `json:"steer_max" yaml:"steer_max"`
	DeltaUp   float64         `json:"delta_up" yaml:"delta_up"`     // per cycle, away from zero
	DeltaDown float64         `json:"delta_down" yaml:"delta_down"` // per cycle, toward zero

	DriverAllowance  float64 `json:"driver_allowance" yaml:"driver_allowance"`
	DriverFactor     float64 `json:"driver_factor" yaml:"driver_factor"`
	DriverMultiplier float64 `json:"driver_multiplier" yaml:"driver_multiplier"`
	ErrorMax         float64 `json:"error_max" yaml:"error_max"`

	OpposeThreshold   float64 `json:"oppose_threshold" yaml:"oppose_threshold"`
	OpposeReleaseGain float64 `json:"oppose_release_gain" yaml:"oppose_release_gain"`
	OpposeWindupGain  float64 `json:"oppose_windup_gain" yaml:"oppose_windup_gain"`
}

// AngleLimits configure angle-mode steering. Rates are degrees per cycle.
type AngleLimits struct {
	AngleMax float64      `json:"angle_max" yaml:"angle_max"`
	RateUp   interp.Table `json:"rate_up" yaml:"rate_up"`
	RateDown interp.Table `json:"rate_down" yaml:"rate_down"`

	TorqueDeadzone  float64      `json:"torque_deadzone" yaml:"torque_deadzone"`
	TorqueClip      float64      `json:"torque_clip" yaml:"torque_clip"`
	MultiplierOuter float64      `json:"multiplier_outer" yaml:"multiplier_outer"` // driver steering with the command
	MultiplierInner float64      `json:"multiplier_inner" yaml:"multiplier_inner"` // driver opposing the command
	BlendSpeedScale interp.Table `json:"blend_speed_scale" yaml:"blend_speed_scale"`

	ContinuedOverrideAngle float64 `json:"continued_override_angle" yaml:"continued_override_angle"`
}

// LateralProfile configures the lateral rate limiter.
type LateralProfile struct {
	Mode             LateralMode `json:"mode" yaml:"mode"`
	ReenableCooldown float64     `json:"reenable_cooldown" yaml:"reenable_cooldown"` // s
	HandsOffClear    float64     `json:"hands_off_clear" yaml:"hands_off_clear"`     // s
	HandsOnTorque    float64     `json:"hands_on_torque" yaml:"hands_on_torque"`
	OverrideTorque   float64     `json:"override_torque" yaml:"override_torque"`

	Torque TorqueLimits `json:"torque" yaml:"torque"`
	Angle  AngleLimits  `json:"angle" yaml:"angle"`
}

// TuningProfile is the complete per-vehicle configuration.
type TuningProfile struct {
	Name          string  `json:"name" yaml:"name"`
	Mode          Mode    `json:"mode" yaml:"mode"`
	ControlPeriod float64 `json:"control_period" yaml:"control_period"` // s

	JerkLimits JerkLimits `json:"jerk_limits" yaml:"jerk_limits"`
	AccelMin   float64    `json:"accel_min" yaml:"accel_min"`
	AccelMax   float64    `json:"accel_max" yaml:"accel_max"`

	VEgoStopping      float64 `json:"v_ego_stopping" yaml:"v_ego_stopping"`
	VEgoStarting      float64 `json:"v_ego_starting" yaml:"v_ego_starting"`
	StoppingDecelRate float64 `json:"stopping_decel_rate" yaml:"stopping_decel_rate"`
	StartAccel        float64 `json:"start_accel" yaml:"start_accel"`
	StandstillDelay   float64 `json:"standstill_delay" yaml:"standstill_delay"` // s

	BrakeResponse BrakeResponse `json:"brake_response" yaml:"brake_response"`
	Jerk          JerkShaping   `json:"jerk" yaml:"jerk"`

	Lateral                     LateralProfile `json:"lateral" yaml:"lateral"`
	MinEnableSpeed              float64        `json:"min_enable_speed" yaml:"min_enable_speed"`
	MinSteerSpeed               float64        `json:"min_steer_speed" yaml:"min_steer_speed"`
	SteerActuatorDelay          float64        `json:"steer_actuator_delay" yaml:"steer_actuator_delay"`
	LateralRequiresLongitudinal bool           `json:"lateral_requires_longitudinal" yaml:"lateral_requires_longitudinal"`
}

// Defaults applied to zero-valued fields by ApplyDefaults.
const (
	DefaultControlPeriod    = 0.01
	DefaultStandstillDelay  = 0.9
	DefaultBrakeMinSpeed    = 10.0
	DefaultTimeConstant     = 0.25
	DefaultPlannedWeight    = 0.8
	DefaultUpperMultiplier  = 2.0
	DefaultLowerMultiplier  = 4.0
	DefaultNonPidUpperJerk  = 1.0
	DefaultRampStep         = 0.1
	DefaultRampDeadband     = 0.1
	DefaultReenableCooldown = 1.0
	DefaultHandsOffClear    = 1.0

	envelopeLowSpeed  = 5.0  // m/s, full allowance below
	envelopeHighSpeed = 20.0 // m/s, floor above
	isoDecelFloor     = 2.5  // m/s³ at and above envelopeHighSpeed
)

// DefaultBrakeRatioBP are the brake-response ratio knots.
var DefaultBrakeRatioBP = []float64{0.25, 0.5, 0.75, 1.0}

// ApplyDefaults fills zero-valued tuning fields with their defaults. Envelopes
// left empty are derived from JerkLimits.
func (p *TuningProfile) ApplyDefaults() {
	if p.Mode == "" {
		p.Mode = ModeBasic
	}
	if p.ControlPeriod == 0 {
		p.ControlPeriod = DefaultControlPeriod
	}
	if p.StandstillDelay == 0 {
		p.StandstillDelay = DefaultStandstillDelay
	}
	if p.BrakeResponse.MinSpeed == 0 {
		p.BrakeResponse.MinSpeed = DefaultBrakeMinSpeed
	}
	if len(p.BrakeResponse.RatioBP) == 0 {
		p.BrakeResponse.RatioBP = append([]float64(nil), DefaultBrakeRatioBP...)
	}

	j := &p.Jerk
	setIfZero(&j.TimeConstant, DefaultTimeConstant)
	setIfZero(&j.PlannedWeight, DefaultPlannedWeight)
	setIfZero(&j.UpperMultiplier, DefaultUpperMultiplier)
	setIfZero(&j.LowerMultiplier, DefaultLowerMultiplier)
	setIfZero(&j.NonPidUpperJerk, DefaultNonPidUpperJerk)
	setIfZero(&j.RampStep, DefaultRampStep)
	setIfZero(&j.RampDeadband, DefaultRampDeadband)
	upper, lower := derivedEnvelopes(p.JerkLimits)
	if len(j.UpperEnvelope.BP) == 0 {
		j.UpperEnvelope = upper
	}
	if len(j.LowerEnvelope.BP) == 0 {
		j.LowerEnvelope = lower
	}

	l := &p.Lateral
	if l.Mode == "" {
		l.Mode = LateralTorque
	}
	setIfZero(&l.ReenableCooldown, DefaultReenableCooldown)
	setIfZero(&l.HandsOffClear, DefaultHandsOffClear)
	if l.Torque.Kind == "" {
		l.Torque.Kind = LimitDriver
	}
	setIfZero(&l.Torque.OpposeReleaseGain, 1)
	setIfZero(&l.Torque.OpposeWindupGain, 1)
	if len(l.Angle.BlendSpeedScale.BP) == 0 {
		l.Angle.BlendSpeedScale = interp.Table{BP: []float64{0}, V: []float64{1}}
	}
}

// derivedEnvelopes builds the default speed envelopes from the jerk limits:
// full allowance up to 5 m/s falling linearly to a floor at 20 m/s. The lower
// floor of 2.5 m/s³ reproduces the ISO 15622 line 5.83 - v/6 for a 5 m/s³
// maximum.
func derivedEnvelopes(jl JerkLimits) (upper, lower interp.Table) {
	upper = interp.Table{
		BP: []float64{envelopeLowSpeed, envelopeHighSpeed},
		V:  []float64{jl.MaxUpper, math.Max(jl.Min, jl.MaxUpper/2)},
	}
	lower = interp.Table{
		BP: []float64{envelopeLowSpeed, envelopeHighSpeed},
		V:  []float64{jl.MaxLower, math.Max(jl.Min, math.Min(jl.MaxLower, isoDecelFloor))},
	}
	return upper, lower
}

// Cycles converts a duration in seconds to a whole number of control cycles.
func (p TuningProfile) Cycles(seconds float64) int64 {
	return int64(math.Round(seconds / p.ControlPeriod))
}

// Clone returns a deep copy whose slices do not alias p.
func (p TuningProfile) Clone() TuningProfile {
	c := p
	c.BrakeResponse.RatioBP = cloneFloats(p.BrakeResponse.RatioBP)
	c.BrakeResponse.Rate = cloneFloats(p.BrakeResponse.Rate)
	c.Jerk.UpperEnvelope = cloneTable(p.Jerk.UpperEnvelope)
	c.Jerk.LowerEnvelope = cloneTable(p.Jerk.LowerEnvelope)
	c.Lateral.Angle.RateUp = cloneTable(p.Lateral.Angle.RateUp)
	c.Lateral.Angle.RateDown = cloneTable(p.Lateral.Angle.RateDown)
	c.Lateral.Angle.BlendSpeedScale = cloneTable(p.Lateral.Angle.BlendSpeedScale)
	return c
}

func cloneTable(t interp.Table) interp.Table {
	return interp.Table{BP: cloneFloats(t.BP), V: cloneFloats(t.V)}
}

func cloneFloats(s []float64) []float64 {
	if s == nil {
		return nil
	}
	return append([]float64(nil), s...)
}

func setIfZero(v *float64, def float64) {
	if *v == 0 {
		*v = def
	}
}
