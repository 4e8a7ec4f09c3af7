package main

import (
	"fmt"
	"math"
	"time"

	"go.einride.tech/can"

	"adas-actuation-core/actuation"
	"adas-actuation-core/actuation/longitudinal"
	"adas-actuation-core/utils"
)

// Frame names in config/can/can_map.csv.
const (
	frameVehicleState  = "VEHICLE_STATE"
	frameSteeringState = "STEERING_STATE"
	frameControlIntent = "CONTROL_INTENT"
	frameAccCmd        = "ACC_CMD"
	frameLkasCmd       = "LKAS_CMD"
)

// EncodeCommand packs one cycle's output into the ACC and LKAS frames.
func EncodeCommand(seq *utils.FrameSequencer, cmd actuation.ActuationCommand, longActive bool) ([]can.Frame, error) {
	acc, err := seq.Encode(frameAccCmd, map[string]float64{
		"ACCEL_CMD":   cmd.ActualAccel,
		"JERK_UPPER":  cmd.JerkUpper,
		"JERK_LOWER":  cmd.JerkLower,
		"LONG_ACTIVE": boolToFloat(longActive),
		"STOP_REQ":    boolToFloat(cmd.StopRequest),
		"LONG_PHASE":  float64(cmd.LongPhase),
		"DEGRADED":    boolToFloat(cmd.Degraded),
	})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", frameAccCmd, err)
	}
	lkas, err := seq.Encode(frameLkasCmd, map[string]float64{
		"STEER_CMD":     cmd.LateralCommand,
		"LKAS_ENABLED":  boolToFloat(cmd.LateralEnabled),
		"LKAS_OVERRIDE": boolToFloat(cmd.LateralOverrideActive),
	})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", frameLkasCmd, err)
	}
	return []can.Frame{acc, lkas}, nil
}

// liveInputs accumulates decoded RX frames into the latest vehicle state and
// planner intent, tracking when each source was last heard from.
type liveInputs struct {
	vs     actuation.VehicleState
	intent actuation.ControlIntent

	vehicleAt  time.Time
	steeringAt time.Time
	intentAt   time.Time
}

// apply folds one decoded frame into the inputs. Frames the loop does not
// consume are reported as not applied.
func (in *liveInputs) apply(name string, values map[string]float64, now time.Time) bool {
	switch name {
	case frameVehicleState:
		in.vs.VEgo = values["V_EGO"]
		in.vs.AEgo = values["A_EGO"]
		in.vs.Standstill = values["STANDSTILL"] != 0
		in.vehicleAt = now
	case frameSteeringState:
		in.vs.SteeringAngleDeg = values["STEER_ANGLE"]
		in.vs.SteeringTorque = values["DRIVER_TORQUE"]
		in.vs.SteeringTorqueEps = values["EPS_TORQUE"]
		in.steeringAt = now
	case frameControlIntent:
		in.intent = actuation.ControlIntent{
			DesiredAccel:     values["DESIRED_ACCEL"],
			DesiredLateral:   values["DESIRED_LATERAL"],
			LongActive:       values["LONG_ACTIVE"] != 0,
			LatActive:        values["LAT_ACTIVE"] != 0,
			LongControlState: longitudinal.ControlState(int(math.Round(values["LONG_STATE"]))),
		}
		in.intentAt = now
	default:
		return false
	}
	return true
}

// snapshot returns the inputs for a cycle at now. Vehicle or steering
// feedback older than staleAfter is replaced by NaN so the controller holds
// its last safe command; a stale or missing intent disengages both axes.
func (in *liveInputs) snapshot(now time.Time, staleAfter time.Duration) (actuation.VehicleState, actuation.ControlIntent) {
	vs, intent := in.vs, in.intent
	if stale(in.vehicleAt, now, staleAfter) {
		vs.VEgo = math.NaN()
	}
	if stale(in.steeringAt, now, staleAfter) {
		vs.SteeringAngleDeg = math.NaN()
		vs.SteeringTorque = math.NaN()
		vs.SteeringTorqueEps = math.NaN()
	}
	if stale(in.intentAt, now, staleAfter) {
		intent = actuation.ControlIntent{}
	}
	return vs, intent
}

func stale(at, now time.Time, after time.Duration) bool {
	return at.IsZero() || now.Sub(at) > after
}

func boolToFloat(b bool) float64 {
	if b {
		return 1.0
	}
	return 0.0
}
