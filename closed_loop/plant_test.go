package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adas-actuation-core/actuation"
	"adas-actuation-core/actuation/profile"
)

func lookup(t *testing.T, name string) profile.TuningProfile {
	t.Helper()
	p, err := profile.Lookup(name)
	require.NoError(t, err)
	return p
}

func TestPlant_AccelLag(t *testing.T) {
	pl := NewPlant(lookup(t, "hyundai-ev"), InitialState{VEgo: 10})

	pl.Step(actuation.ActuationCommand{ActualAccel: 1})
	first := pl.State().AEgo
	assert.Greater(t, first, 0.0)
	assert.Less(t, first, 0.1)

	for i := 0; i < 500; i++ {
		pl.Step(actuation.ActuationCommand{ActualAccel: 1})
	}
	vs := pl.State()
	assert.InDelta(t, 1.0, vs.AEgo, 1e-3)
	assert.Greater(t, vs.VEgo, 14.0)
	assert.False(t, vs.Standstill)
}

func TestPlant_StopRequestHoldsAtStandstill(t *testing.T) {
	pl := NewPlant(lookup(t, "hyundai-ev"), InitialState{VEgo: 0.3})

	for i := 0; i < 200; i++ {
		pl.Step(actuation.ActuationCommand{StopRequest: true})
	}
	vs := pl.State()
	assert.Zero(t, vs.VEgo)
	assert.GreaterOrEqual(t, vs.AEgo, 0.0)
	assert.True(t, vs.Standstill)
}

func TestPlant_TorqueSteering(t *testing.T) {
	p := lookup(t, "chrysler-torque")
	pl := NewPlant(p, InitialState{VEgo: 10})

	for i := 0; i < 100; i++ {
		pl.Step(actuation.ActuationCommand{LateralCommand: p.Lateral.Torque.SteerMax})
	}
	vs := pl.State()
	assert.InDelta(t, p.Lateral.Torque.SteerMax, vs.SteeringTorqueEps, 1)
	assert.Greater(t, vs.SteeringAngleDeg, 10.0)
	assert.Less(t, vs.SteeringAngleDeg, 90.0)
}

func TestPlant_AngleSteeringAndDriver(t *testing.T) {
	p := lookup(t, "tesla-angle")
	pl := NewPlant(p, InitialState{VEgo: 20, SteeringAngleDeg: 2})
	assert.Equal(t, 2.0, pl.State().SteeringAngleDeg)

	for i := 0; i < 200; i++ {
		pl.Step(actuation.ActuationCommand{LateralCommand: 10})
	}
	assert.InDelta(t, 10.0, pl.State().SteeringAngleDeg, 0.01)
	assert.Zero(t, pl.State().SteeringTorqueEps)

	pl.SetDriverTorque(p.Lateral.OverrideTorque)
	assert.Equal(t, p.Lateral.OverrideTorque, pl.State().SteeringTorque)
	pl.Step(actuation.ActuationCommand{LateralCommand: 10})
	assert.Greater(t, pl.State().SteeringAngleDeg, 10.0, "driver torque moves the wheel")
}
