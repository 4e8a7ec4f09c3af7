// Package actuation turns per-cycle planner intent into rate-limited
// longitudinal and lateral actuator commands for one vehicle.
package actuation

import "adas-actuation-core/actuation/longitudinal"

// VehicleState is the measured vehicle state for one cycle.
type VehicleState struct {
	VEgo              float64 `json:"v_ego"`               // m/s
	AEgo              float64 `json:"a_ego"`               // m/s²
	SteeringAngleDeg  float64 `json:"steering_angle_deg"`  // measured wheel angle
	SteeringTorque    float64 `json:"steering_torque"`     // driver applied
	SteeringTorqueEps float64 `json:"steering_torque_eps"` // motor reported
	Standstill        bool    `json:"standstill"`
}

// ControlIntent is what the upstream planner asks for this cycle.
type ControlIntent struct {
	DesiredAccel     float64                   `json:"desired_accel"`
	LongActive       bool                      `json:"long_active"`
	LongControlState longitudinal.ControlState `json:"long_control_state"`
	DesiredLateral   float64                   `json:"desired_lateral"` // torque units or degrees
	LatActive        bool                      `json:"lat_active"`
}

// ActuationCommand is the per-cycle output handed to the CAN encoder.
type ActuationCommand struct {
	ActualAccel           float64 `json:"actual_accel"`
	JerkUpper             float64 `json:"jerk_upper"`
	JerkLower             float64 `json:"jerk_lower"`
	LateralCommand        float64 `json:"lateral_command"`
	LateralOverrideActive bool    `json:"lateral_override_active"`

	// Degraded is set when any input was unusable and a limiter held its
	// last safe value.
	Degraded       bool               `json:"degraded"`
	LongPhase      longitudinal.Phase `json:"long_phase"`
	LateralEnabled bool               `json:"lateral_enabled"`
	StopRequest    bool               `json:"stop_request"`
}
