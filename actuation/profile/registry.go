package profile

import (
	"errors"
	"fmt"
	"sort"

	"adas-actuation-core/actuation/interp"
)

// ErrUnknownProfile is returned by Lookup for names not in the registry.
var ErrUnknownProfile = errors.New("unknown tuning profile")

// registry maps profile names to constructors so every Lookup hands out an
// independent copy.
var registry = map[string]func() TuningProfile{
	"basic":           basicProfile,
	"hyundai-ev":      hyundaiEVProfile,
	"hyundai-hybrid":  hyundaiHybridProfile,
	"hyundai-ice":     hyundaiICEProfile,
	"kia-niro-ev":     kiaNiroEVProfile,
	"chrysler-torque": chryslerProfile,
	"tesla-angle":     teslaProfile,
}

// Lookup returns a defaulted, validated copy of a built-in profile.
func Lookup(name string) (TuningProfile, error) {
	ctor, ok := registry[name]
	if !ok {
		return TuningProfile{}, fmt.Errorf("%w %q (available: %v)", ErrUnknownProfile, name, Names())
	}
	p := ctor()
	p.ApplyDefaults()
	if err := p.Validate(); err != nil {
		return TuningProfile{}, fmt.Errorf("built-in profile %q: %w", name, err)
	}
	return p, nil
}

// Names lists the built-in profiles in sorted order.
func Names() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func basicProfile() TuningProfile {
	return TuningProfile{
		Name:                        "basic",
		Mode:                        ModeBasic,
		ControlPeriod:               0.01,
		JerkLimits:                  JerkLimits{Min: 0.6, MaxLower: 5.0, MaxUpper: 3.0},
		AccelMin:                    -3.5,
		AccelMax:                    2.0,
		VEgoStopping:                0.5,
		VEgoStarting:                0.1,
		StoppingDecelRate:           0.3,
		StartAccel:                  1.0,
		SteerActuatorDelay:          0.1,
		LateralRequiresLongitudinal: true,
		Lateral:                     hyundaiLateral(),
	}
}

// Min jerk of 0.60 follows Horn et al., 2024.
func hyundaiEVProfile() TuningProfile {
	return hyundaiProfile("hyundai-ev", 0.20, 0.10, 1.6, []float64{1.2, 1.8, 2.5, 3.5})
}

func hyundaiHybridProfile() TuningProfile {
	return hyundaiProfile("hyundai-hybrid", 0.20, 0.12, 1.5, []float64{1.25, 1.85, 2.55, 3.5})
}

func hyundaiICEProfile() TuningProfile {
	return hyundaiProfile("hyundai-ice", 0.30, 0.10, 1.6, []float64{1.3, 1.9, 2.65, 3.5})
}

func hyundaiProfile(name string, stoppingDecelRate, vEgoStarting, startAccel float64, brake []float64) TuningProfile {
	return TuningProfile{
		Name:              name,
		Mode:              ModeShaped,
		ControlPeriod:     0.01,
		JerkLimits:        JerkLimits{Min: 0.60, MaxLower: 5.0, MaxUpper: 3.0},
		AccelMin:          -3.5,
		AccelMax:          2.0,
		VEgoStopping:      0.25,
		VEgoStarting:      vEgoStarting,
		StoppingDecelRate: stoppingDecelRate,
		StartAccel:        startAccel,
		StandstillDelay:   DefaultStandstillDelay,
		BrakeResponse: BrakeResponse{
			Enabled:  true,
			MinSpeed: 10.0,
			RatioBP:  append([]float64(nil), DefaultBrakeRatioBP...),
			Rate:     brake,
		},
		SteerActuatorDelay:          0.1,
		LateralRequiresLongitudinal: true,
		Lateral:                     hyundaiLateral(),
	}
}

func kiaNiroEVProfile() TuningProfile {
	p := hyundaiProfile("kia-niro-ev", 0.05, 0.10, 1.0, []float64{1.3, 1.5, 2.5, 3.5})
	p.JerkLimits = JerkLimits{Min: 0.5, MaxLower: 5.0, MaxUpper: 3.0}
	return p
}

func hyundaiLateral() LateralProfile {
	return LateralProfile{
		Mode:             LateralTorque,
		ReenableCooldown: DefaultReenableCooldown,
		HandsOffClear:    DefaultHandsOffClear,
		HandsOnTorque:    30,
		OverrideTorque:   150,
		Torque: TorqueLimits{
			Kind:              LimitDriver,
			SteerMax:          384,
			DeltaUp:           3,
			DeltaDown:         7,
			DriverAllowance:   50,
			DriverFactor:      1,
			DriverMultiplier:  2,
			OpposeThreshold:   50,
			OpposeReleaseGain: 1.5,
			OpposeWindupGain:  0.5,
		},
	}
}

// The EPS faults if LKAS re-enables too quickly, so this platform uses a
// longer cooldown than the default.
func chryslerProfile() TuningProfile {
	return TuningProfile{
		Name:               "chrysler-torque",
		Mode:               ModeBasic,
		ControlPeriod:      0.01,
		JerkLimits:         JerkLimits{Min: 0.6, MaxLower: 5.0, MaxUpper: 3.0},
		AccelMin:           -3.5,
		AccelMax:           2.0,
		VEgoStopping:       0.5,
		VEgoStarting:       0.1,
		StoppingDecelRate:  0.3,
		StartAccel:         1.0,
		MinSteerSpeed:      3.8,
		MinEnableSpeed:     3.9,
		SteerActuatorDelay: 0.1,
		Lateral: LateralProfile{
			Mode:             LateralTorque,
			ReenableCooldown: 2.0,
			HandsOffClear:    DefaultHandsOffClear,
			HandsOnTorque:    20,
			OverrideTorque:   120,
			Torque: TorqueLimits{
				Kind:      LimitMeasured,
				SteerMax:  261,
				DeltaUp:   3,
				DeltaDown: 3,
				ErrorMax:  80,
			},
		},
	}
}

// Angle rates are degrees per 20 ms cycle.
func teslaProfile() TuningProfile {
	return TuningProfile{
		Name:               "tesla-angle",
		Mode:               ModeBasic,
		ControlPeriod:      0.02,
		JerkLimits:         JerkLimits{Min: 0.6, MaxLower: 5.0, MaxUpper: 3.0},
		AccelMin:           -3.48,
		AccelMax:           2.0,
		VEgoStopping:       0.5,
		VEgoStarting:       0.1,
		StoppingDecelRate:  0.3,
		StartAccel:         1.0,
		SteerActuatorDelay: 0.25,
		Lateral: LateralProfile{
			Mode:             LateralAngle,
			ReenableCooldown: DefaultReenableCooldown,
			HandsOffClear:    DefaultHandsOffClear,
			HandsOnTorque:    0.5,
			OverrideTorque:   3.0,
			Angle: AngleLimits{
				AngleMax:               360,
				RateUp:                 interp.Table{BP: []float64{0, 5, 15}, V: []float64{10, 1.6, 0.3}},
				RateDown:               interp.Table{BP: []float64{0, 5, 15}, V: []float64{10, 7.0, 0.8}},
				TorqueDeadzone:         0.5,
				TorqueClip:             10,
				MultiplierOuter:        4,
				MultiplierInner:        8,
				BlendSpeedScale:        interp.Table{BP: []float64{5, 30}, V: []float64{1.0, 0.5}},
				ContinuedOverrideAngle: 10,
			},
		},
	}
}
