package main

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adas-actuation-core/actuation"
	"adas-actuation-core/actuation/longitudinal"
	"adas-actuation-core/utils"
)

func loadMap(t *testing.T) *utils.CANMap {
	t.Helper()
	cmap, err := utils.LoadCANMap("../config/can/can_map.csv")
	require.NoError(t, err)
	return cmap
}

func TestEncodeCommand(t *testing.T) {
	cmap := loadMap(t)
	seq := utils.NewFrameSequencer(cmap)

	cmd := actuation.ActuationCommand{
		ActualAccel:    -1.234,
		JerkUpper:      2.5,
		JerkLower:      4.0,
		LateralCommand: -120.3,
		Degraded:       true,
		LongPhase:      longitudinal.PhaseStandstillDelay,
		LateralEnabled: true,
		StopRequest:    true,
	}
	frames, err := EncodeCommand(seq, cmd, true)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, uint32(0x200), frames[0].ID)
	assert.Equal(t, uint32(0x201), frames[1].ID)

	acc, err := cmap.DecodeFrame(frames[0])
	require.NoError(t, err)
	assert.InDelta(t, -1.234, acc["ACCEL_CMD"], 1e-9)
	assert.InDelta(t, 2.5, acc["JERK_UPPER"], 1e-9)
	assert.InDelta(t, 4.0, acc["JERK_LOWER"], 1e-9)
	assert.Equal(t, 1.0, acc["LONG_ACTIVE"])
	assert.Equal(t, 1.0, acc["STOP_REQ"])
	assert.Equal(t, 2.0, acc["LONG_PHASE"])
	assert.Equal(t, 1.0, acc["DEGRADED"])
	assert.Equal(t, 0.0, acc["COUNTER"])

	lkas, err := cmap.DecodeFrame(frames[1])
	require.NoError(t, err)
	assert.InDelta(t, -120.3, lkas["STEER_CMD"], 1e-9)
	assert.Equal(t, 1.0, lkas["LKAS_ENABLED"])
	assert.Equal(t, 0.0, lkas["LKAS_OVERRIDE"])

	frames, err = EncodeCommand(seq, actuation.ActuationCommand{}, false)
	require.NoError(t, err)
	acc, err = cmap.DecodeFrame(frames[0])
	require.NoError(t, err)
	assert.Equal(t, 1.0, acc["COUNTER"], "rolling counter advances per frame")
	assert.Equal(t, 0.0, acc["LONG_ACTIVE"])
}

func TestEncodeCommand_RejectsNaN(t *testing.T) {
	seq := utils.NewFrameSequencer(loadMap(t))
	_, err := EncodeCommand(seq, actuation.ActuationCommand{ActualAccel: math.NaN()}, true)
	assert.Error(t, err)
}

func TestLiveInputs_ApplyAndSnapshot(t *testing.T) {
	now := time.Unix(1000, 0)
	var in liveInputs

	assert.True(t, in.apply(frameVehicleState, map[string]float64{"V_EGO": 12.5, "A_EGO": -0.4, "STANDSTILL": 0}, now))
	assert.True(t, in.apply(frameSteeringState, map[string]float64{"STEER_ANGLE": -3.2, "DRIVER_TORQUE": 0.8, "EPS_TORQUE": 40}, now))
	assert.True(t, in.apply(frameControlIntent, map[string]float64{
		"DESIRED_ACCEL": 0.7, "DESIRED_LATERAL": 55, "LONG_ACTIVE": 1, "LAT_ACTIVE": 1, "LONG_STATE": 2,
	}, now))
	assert.False(t, in.apply("ACC_CMD", map[string]float64{}, now))

	vs, intent := in.snapshot(now.Add(10*time.Millisecond), 100*time.Millisecond)
	assert.Equal(t, actuation.VehicleState{
		VEgo: 12.5, AEgo: -0.4, SteeringAngleDeg: -3.2, SteeringTorque: 0.8, SteeringTorqueEps: 40,
	}, vs)
	assert.Equal(t, actuation.ControlIntent{
		DesiredAccel: 0.7, LongActive: true, LongControlState: longitudinal.StateStopping, DesiredLateral: 55, LatActive: true,
	}, intent)

	// Only the intent keeps arriving; feedback goes stale.
	later := now.Add(time.Second)
	in.apply(frameControlIntent, map[string]float64{"DESIRED_ACCEL": 0.7, "LONG_ACTIVE": 1, "LONG_STATE": 1}, later)
	vs, intent = in.snapshot(later, 100*time.Millisecond)
	assert.True(t, math.IsNaN(vs.VEgo))
	assert.True(t, math.IsNaN(vs.SteeringAngleDeg))
	assert.True(t, intent.LongActive)

	_, intent = in.snapshot(later.Add(time.Second), 100*time.Millisecond)
	assert.Equal(t, actuation.ControlIntent{}, intent, "stale intent disengages")
}

func TestLiveInputs_NothingReceived(t *testing.T) {
	var in liveInputs
	vs, intent := in.snapshot(time.Now(), time.Second)
	assert.True(t, math.IsNaN(vs.VEgo))
	assert.False(t, intent.LongActive)
	assert.False(t, intent.LatActive)
}
