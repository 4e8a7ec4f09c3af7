package main

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"adas-actuation-core/actuation/longitudinal"
)

// Scenario is a replay timeline: what the upstream planner and the driver do
// over time.
type Scenario struct {
	Meta     ScenarioMeta      `json:"meta"`
	Timing   ScenarioTiming    `json:"timing"`
	Initial  InitialState      `json:"initial"`
	Segments []ScenarioSegment `json:"segments"`
	Planner  *PlannerConfig    `json:"planner,omitempty"` // required by speed-target segments
}

// ScenarioMeta contains scenario metadata
type ScenarioMeta struct {
	Name        string `json:"name"`
	Version     int    `json:"version"`
	Description string `json:"description"`
	Profile     string `json:"profile,omitempty"` // built-in name or YAML path, overridable on the CLI
}

// ScenarioTiming defines timing parameters. The cycle period comes from the
// tuning profile.
type ScenarioTiming struct {
	DurationS    float64 `json:"duration_s"`
	RealTimeMode bool    `json:"real_time_mode"`
}

// InitialState seeds the plant model.
type InitialState struct {
	VEgo             float64 `json:"v_ego"`
	SteeringAngleDeg float64 `json:"steering_angle_deg"`
}

// ScenarioSegment holds the planner intent and driver input over [T0, T1).
// A negative T1 runs to the end of the scenario. A segment either commands
// an acceleration directly or a target speed tracked by the speed planner.
type ScenarioSegment struct {
	T0 float64 `json:"t0"`
	T1 float64 `json:"t1"`

	LongActive   bool                      `json:"long_active"`
	LongState    longitudinal.ControlState `json:"long_state"`
	DesiredAccel float64                   `json:"desired_accel,omitempty"`
	TargetSpeed  *float64                  `json:"target_speed,omitempty"` // m/s

	LatActive      bool    `json:"lat_active"`
	DesiredLateral float64 `json:"desired_lateral,omitempty"`

	DriverTorque float64 `json:"driver_torque,omitempty"`
	Comment      string  `json:"comment,omitempty"`
}

// SegmentCmd is the timeline evaluated at one instant.
type SegmentCmd struct {
	LongActive     bool
	LongState      longitudinal.ControlState
	DesiredAccel   float64
	TargetSpeed    *float64
	LatActive      bool
	DesiredLateral float64
	DriverTorque   float64
}

// LoadScenario loads a scenario from JSON file
func LoadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("read file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a scenario document.
func ParseScenario(data []byte) (Scenario, error) {
	var scen Scenario
	if err := json.Unmarshal(data, &scen); err != nil {
		return Scenario{}, fmt.Errorf("unmarshal: %w", err)
	}

	if scen.Timing.DurationS <= 0 {
		return Scenario{}, fmt.Errorf("invalid duration_s: %f", scen.Timing.DurationS)
	}
	if scen.Initial.VEgo < 0 || math.IsNaN(scen.Initial.VEgo) {
		return Scenario{}, fmt.Errorf("invalid initial v_ego: %f", scen.Initial.VEgo)
	}

	for i, seg := range scen.Segments {
		if seg.T1 >= 0 && seg.T1 <= seg.T0 {
			return Scenario{}, fmt.Errorf("segment %d: t1 %.3f must be after t0 %.3f", i, seg.T1, seg.T0)
		}
		if seg.TargetSpeed != nil {
			if scen.Planner == nil {
				return Scenario{}, fmt.Errorf("segment %d: target_speed requires planner config", i)
			}
			if *seg.TargetSpeed < 0 {
				return Scenario{}, fmt.Errorf("segment %d: invalid target_speed %f", i, *seg.TargetSpeed)
			}
		}
	}
	return scen, nil
}

// EvalSegment returns the command of the first segment covering t. Outside
// every segment nothing is engaged.
func EvalSegment(scen *Scenario, t float64) SegmentCmd {
	for _, seg := range scen.Segments {
		t1 := seg.T1
		if t1 < 0 {
			t1 = scen.Timing.DurationS
		}
		if t >= seg.T0 && t < t1 {
			return SegmentCmd{
				LongActive:     seg.LongActive,
				LongState:      seg.LongState,
				DesiredAccel:   seg.DesiredAccel,
				TargetSpeed:    seg.TargetSpeed,
				LatActive:      seg.LatActive,
				DesiredLateral: seg.DesiredLateral,
				DriverTorque:   seg.DriverTorque,
			}
		}
	}
	return SegmentCmd{}
}
