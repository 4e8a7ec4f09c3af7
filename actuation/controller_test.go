package actuation

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adas-actuation-core/actuation/longitudinal"
	"adas-actuation-core/actuation/profile"
	"adas-actuation-core/utils"
)

func newController(t *testing.T, name string, opts ...Option) *Controller {
	t.Helper()
	p, err := profile.Lookup(name)
	require.NoError(t, err)
	c, err := New(p, opts...)
	require.NoError(t, err)
	return c
}

func cruising(v float64) VehicleState {
	return VehicleState{VEgo: v}
}

func TestNew_RejectsInvalidProfile(t *testing.T) {
	p, err := profile.Lookup("hyundai-ev")
	require.NoError(t, err)
	p.JerkLimits.MaxUpper = 0.1

	_, err = New(p)
	assert.ErrorIs(t, err, profile.ErrInvalidProfile)
}

func TestStep_DisabledZeroesEverything(t *testing.T) {
	c := newController(t, "hyundai-ev")
	for f := int64(0); f < 100; f++ {
		c.Step(f, cruising(15), ControlIntent{DesiredAccel: 1, LongActive: true, LongControlState: longitudinal.StatePid, DesiredLateral: 200, LatActive: true})
	}

	cmd := c.Step(100, cruising(15), ControlIntent{DesiredAccel: 1, LongActive: false, LongControlState: longitudinal.StatePid, DesiredLateral: 200, LatActive: true})
	assert.Zero(t, cmd.ActualAccel)
	assert.Zero(t, cmd.JerkUpper)
	assert.Zero(t, cmd.JerkLower)
	assert.Zero(t, cmd.LateralCommand)
	assert.False(t, cmd.LateralEnabled)
	assert.Equal(t, longitudinal.PhaseDisabled, cmd.LongPhase)
}

func TestStep_DisengageWithStaleFeedbackZeroesLateral(t *testing.T) {
	c := newController(t, "hyundai-ev")
	intent := ControlIntent{DesiredAccel: 0.5, LongActive: true, LongControlState: longitudinal.StatePid, DesiredLateral: 300, LatActive: true}
	var cmd ActuationCommand
	for f := int64(0); f < 100; f++ {
		cmd = c.Step(f, cruising(20), intent)
	}
	require.Equal(t, 300.0, cmd.LateralCommand)

	for f := int64(100); f < 200; f++ {
		cmd = c.Step(f, VehicleState{VEgo: math.NaN(), SteeringAngleDeg: math.NaN()}, ControlIntent{})
		assert.Zero(t, cmd.LateralCommand, "frame %d", f)
		assert.False(t, cmd.LateralEnabled, "frame %d", f)
		assert.Zero(t, cmd.ActualAccel, "frame %d", f)
	}
}

func TestStep_IndependentLateral(t *testing.T) {
	c := newController(t, "chrysler-torque")
	require.False(t, c.Profile().LateralRequiresLongitudinal)

	var cmd ActuationCommand
	for f := int64(0); f < 10; f++ {
		cmd = c.Step(f, cruising(10), ControlIntent{DesiredLateral: 100, LatActive: true})
	}
	assert.True(t, cmd.LateralEnabled)
	assert.Equal(t, 30.0, cmd.LateralCommand)
	assert.Zero(t, cmd.ActualAccel)
}

func TestStep_StandstillScenario(t *testing.T) {
	c := newController(t, "hyundai-ev")

	states := make([]longitudinal.ControlState, 0, 215)
	for i := 0; i < 10; i++ {
		states = append(states, longitudinal.StatePid)
	}
	for i := 0; i < 5; i++ {
		states = append(states, longitudinal.StateStopping)
	}
	for i := 0; i < 200; i++ {
		states = append(states, longitudinal.StatePid)
	}

	for frame, s := range states {
		cmd := c.Step(int64(frame), VehicleState{Standstill: true}, ControlIntent{DesiredAccel: 1.0, LongActive: true, LongControlState: s})
		switch {
		case frame >= 10 && frame <= 105:
			assert.Zero(t, cmd.ActualAccel, "frame %d", frame)
			assert.True(t, cmd.StopRequest, "frame %d", frame)
		case frame == 106:
			assert.Greater(t, cmd.ActualAccel, 0.0)
			assert.False(t, cmd.StopRequest)
		}
	}
}

func TestStep_JerkBoundAcrossProfiles(t *testing.T) {
	for _, name := range profile.Names() {
		t.Run(name, func(t *testing.T) {
			c := newController(t, name)
			dt := c.Profile().ControlPeriod

			prev := ActuationCommand{}
			a := 0.0
			for f := int64(0); f < 2000; f++ {
				desired := 1.5 * math.Sin(float64(f)/90)
				if f%500 > 450 {
					desired = -3.0
				}
				cmd := c.Step(f, VehicleState{VEgo: 12, AEgo: a}, ControlIntent{DesiredAccel: desired, LongActive: true, LongControlState: longitudinal.StatePid})
				if prev.LongPhase == longitudinal.PhaseActive && cmd.LongPhase == longitudinal.PhaseActive {
					limit := math.Max(cmd.JerkUpper, cmd.JerkLower) * dt
					assert.LessOrEqual(t, math.Abs(cmd.ActualAccel-prev.ActualAccel), limit+1e-9, "frame %d", f)
				}
				a = cmd.ActualAccel
				prev = cmd
			}
		})
	}
}

func TestStep_DegradedInputsNeverLeakNaN(t *testing.T) {
	c := newController(t, "hyundai-ev")
	intent := ControlIntent{DesiredAccel: 1, LongActive: true, LongControlState: longitudinal.StatePid, DesiredLateral: 50, LatActive: true}
	var cmd ActuationCommand
	for f := int64(0); f < 400; f++ {
		cmd = c.Step(f, cruising(20), intent)
	}
	held := cmd
	require.Equal(t, 1.0, held.ActualAccel)
	require.Equal(t, 50.0, held.LateralCommand)

	bad := []struct {
		name   string
		vs     VehicleState
		intent ControlIntent
	}{
		{"nan accel", cruising(20), ControlIntent{DesiredAccel: math.NaN(), LongActive: true, LongControlState: longitudinal.StatePid, DesiredLateral: 50, LatActive: true}},
		{"nan speed", VehicleState{VEgo: math.NaN()}, intent},
		{"negative speed", VehicleState{VEgo: -3}, intent},
		{"nan lateral", cruising(20), ControlIntent{DesiredAccel: 1, LongActive: true, LongControlState: longitudinal.StatePid, DesiredLateral: math.NaN(), LatActive: true}},
	}
	for i, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			cmd := c.Step(int64(400+i), tt.vs, tt.intent)
			assert.True(t, cmd.Degraded)
			for _, v := range []float64{cmd.ActualAccel, cmd.JerkUpper, cmd.JerkLower, cmd.LateralCommand} {
				assert.False(t, math.IsNaN(v))
			}
			assert.Equal(t, held.ActualAccel, cmd.ActualAccel)
			assert.Equal(t, held.LateralCommand, cmd.LateralCommand)
		})
	}

	cmd = c.Step(410, cruising(20), intent)
	assert.False(t, cmd.Degraded)
}

func TestStep_LogsTransitions(t *testing.T) {
	var buf bytes.Buffer
	c := newController(t, "hyundai-ev", WithLogger(utils.NewLogger(&buf, utils.DEBUG)))

	intent := ControlIntent{DesiredAccel: 0.5, LongActive: true, LongControlState: longitudinal.StatePid, LatActive: true}
	c.Step(0, cruising(10), intent)
	c.Step(1, VehicleState{VEgo: 10, SteeringTorque: 500}, intent)
	c.Step(2, VehicleState{VEgo: math.NaN()}, intent)
	c.Step(3, cruising(10), intent)

	out := buf.String()
	assert.Contains(t, out, "longitudinal disabled -> active")
	assert.Contains(t, out, "lateral enabled=true")
	assert.Contains(t, out, "driver steering override")
	assert.Contains(t, out, "holding last safe command")
	assert.Contains(t, out, "inputs valid again after 1 cycles")
}

func TestReset_ClearsCooldown(t *testing.T) {
	c := newController(t, "hyundai-ev")
	intent := ControlIntent{LongActive: true, LongControlState: longitudinal.StatePid, LatActive: true, DesiredLateral: 30}
	c.Step(0, cruising(10), intent)
	c.Step(1, cruising(10), ControlIntent{LongActive: true, LongControlState: longitudinal.StatePid})

	cmd := c.Step(2, cruising(10), intent)
	assert.False(t, cmd.LateralEnabled, "inside cooldown")

	c.Reset()
	cmd = c.Step(3, cruising(10), intent)
	assert.True(t, cmd.LateralEnabled)
}

func TestProfile_ReturnsCopy(t *testing.T) {
	c := newController(t, "hyundai-ev")
	p := c.Profile()
	p.BrakeResponse.Rate[0] = 42
	assert.NotEqual(t, 42.0, c.Profile().BrakeResponse.Rate[0])
}
