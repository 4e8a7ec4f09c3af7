package profile

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gopkg.in/yaml.v3"

	"adas-actuation-core/actuation/interp"
)

// Overrides carries live-tuned values layered over a profile. Nil fields
// leave the profile untouched.
type Overrides struct {
	VEgoStopping      *float64    `json:"v_ego_stopping,omitempty" yaml:"v_ego_stopping,omitempty"`
	VEgoStarting      *float64    `json:"v_ego_starting,omitempty" yaml:"v_ego_starting,omitempty"`
	StoppingDecelRate *float64    `json:"stopping_decel_rate,omitempty" yaml:"stopping_decel_rate,omitempty"`
	StartAccel        *float64    `json:"start_accel,omitempty" yaml:"start_accel,omitempty"`
	StandstillDelay   *float64    `json:"standstill_delay,omitempty" yaml:"standstill_delay,omitempty"`
	JerkLimits        *JerkLimits `json:"jerk_limits,omitempty" yaml:"jerk_limits,omitempty"`
}

// Empty reports whether no field is set.
func (o Overrides) Empty() bool {
	return o == Overrides{}
}

// Apply returns a validated copy of p with the overrides applied. p itself is
// never modified. Jerk envelopes derived from the old limits are rebuilt only
// when they still match what the old limits would have produced.
func (o Overrides) Apply(p TuningProfile) (TuningProfile, error) {
	out := p.Clone()
	if o.VEgoStopping != nil {
		out.VEgoStopping = *o.VEgoStopping
	}
	if o.VEgoStarting != nil {
		out.VEgoStarting = *o.VEgoStarting
	}
	if o.StoppingDecelRate != nil {
		out.StoppingDecelRate = *o.StoppingDecelRate
	}
	if o.StartAccel != nil {
		out.StartAccel = *o.StartAccel
	}
	if o.StandstillDelay != nil {
		out.StandstillDelay = *o.StandstillDelay
	}
	if o.JerkLimits != nil {
		oldUpper, oldLower := derivedEnvelopes(p.JerkLimits)
		newUpper, newLower := derivedEnvelopes(*o.JerkLimits)
		out.JerkLimits = *o.JerkLimits
		if tableEqual(p.Jerk.UpperEnvelope, oldUpper) {
			out.Jerk.UpperEnvelope = newUpper
		}
		if tableEqual(p.Jerk.LowerEnvelope, oldLower) {
			out.Jerk.LowerEnvelope = newLower
		}
	}
	if err := out.Validate(); err != nil {
		return TuningProfile{}, fmt.Errorf("apply overrides: %w", err)
	}
	return out, nil
}

// ParseOverrides decodes an overrides document (YAML or JSON).
func ParseOverrides(data []byte) (Overrides, error) {
	var o Overrides
	if err := yaml.Unmarshal(data, &o); err != nil {
		return Overrides{}, fmt.Errorf("failed to parse overrides: %w", err)
	}
	return o, nil
}

// LoadOverrides reads an overrides YAML file.
func LoadOverrides(path string) (Overrides, error) {
	data, err := readConfigFile(path)
	if err != nil {
		return Overrides{}, err
	}
	return ParseOverrides(data)
}

func tableEqual(a, b interp.Table) bool {
	return floats.Equal(a.BP, b.BP) && floats.Equal(a.V, b.V)
}
