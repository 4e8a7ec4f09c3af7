package longitudinal

import (
	"math"

	"adas-actuation-core/actuation/interp"
	"adas-actuation-core/actuation/profile"
)

// snapEpsilon absorbs accumulated floating point error when the integrated
// value lands on its target.
const snapEpsilon = 1e-9

// Input is one cycle of integrator input.
type Input struct {
	Frame        int64
	Active       bool
	ControlState ControlState
	DesiredAccel float64
	VEgo         float64
	Bounds       JerkBounds
}

// Output is the integrator's result for one cycle.
type Output struct {
	// Desired is the clamped planner request; zero outside PhaseActive.
	Desired float64
	// Accel is the jerk-limited acceleration to actuate.
	Accel float64
	Phase Phase
	// StopRequest is set while stopping or holding through the standstill
	// delay.
	StopRequest bool
	Degraded    bool
}

// Integrator turns desired acceleration into a jerk-bounded actual
// acceleration and runs the stopping / standstill-delay state machine.
type Integrator struct {
	dt          float64
	accelMin    float64
	accelMax    float64
	delayCycles int64

	brake         bool
	brakeMinSpeed float64
	brakeBP       []float64
	brakeRate     []float64

	state State
}

// NewIntegrator builds an integrator from a validated profile.
func NewIntegrator(p profile.TuningProfile) *Integrator {
	g := &Integrator{
		dt:          p.ControlPeriod,
		accelMin:    p.AccelMin,
		accelMax:    p.AccelMax,
		delayCycles: p.Cycles(p.StandstillDelay),
	}
	if p.Mode == profile.ModeShaped && p.BrakeResponse.Enabled {
		g.brake = true
		g.brakeMinSpeed = p.BrakeResponse.MinSpeed
		g.brakeBP = append([]float64(nil), p.BrakeResponse.RatioBP...)
		g.brakeRate = append([]float64(nil), p.BrakeResponse.Rate...)
	}
	return g
}

// State returns a copy of the integrator memory.
func (g *Integrator) State() State { return g.state }

// Reset returns the integrator to the disabled state.
func (g *Integrator) Reset() { g.state = State{} }

// Update advances one cycle.
func (g *Integrator) Update(in Input) Output {
	if !in.Active {
		g.state = State{}
		return Output{Phase: PhaseDisabled}
	}

	st := &g.state
	st.JerkUpper, st.JerkLower = in.Bounds.Upper, in.Bounds.Lower
	wasEnabled := st.Phase != PhaseDisabled
	prev := st.PrevControlState
	st.PrevControlState = in.ControlState

	if in.ControlState == StateStopping {
		if !st.Stopping {
			st.Stopping = true
			st.StoppingEntryFrame = in.Frame
		}
		st.StoppingFrameCount++
		st.Phase = PhaseStopping
		st.AccelLast = 0
		return Output{Phase: PhaseStopping, StopRequest: true}
	}

	if st.Stopping {
		st.Stopping = false
		if wasEnabled && prev == StateStopping && g.delayCycles > 0 {
			st.StopReqTransitionFrame = in.Frame
			st.Phase = PhaseStandstillDelay
		}
	}
	if st.Phase == PhaseStandstillDelay {
		if in.Frame-st.StopReqTransitionFrame <= g.delayCycles {
			st.AccelLast = 0
			return Output{Phase: PhaseStandstillDelay, StopRequest: true}
		}
	}
	st.Phase = PhaseActive

	if math.IsNaN(in.DesiredAccel) || !validSpeed(in.VEgo) {
		return Output{Accel: st.AccelLast, Phase: PhaseActive, Degraded: true}
	}

	desired := clamp(in.DesiredAccel, g.accelMin, g.accelMax)
	last := st.AccelLast
	actual := desired
	switch {
	case desired > last:
		actual = math.Min(desired, last+in.Bounds.Upper*g.dt)
	case desired < last:
		step := in.Bounds.Lower * g.dt
		if g.brakeApplies(in.VEgo, desired) {
			ratio := math.Abs(desired / g.accelMin)
			step = math.Min(step, interp.CatmullRom(ratio, g.brakeBP, g.brakeRate)*g.dt)
		}
		actual = math.Max(desired, last-step)
	}
	if math.Abs(desired-actual) < snapEpsilon {
		actual = desired
	}
	st.AccelLast = actual

	return Output{Desired: desired, Accel: actual, Phase: PhaseActive, Degraded: in.Bounds.Held}
}

func (g *Integrator) brakeApplies(vEgo, desired float64) bool {
	return g.brake && vEgo > g.brakeMinSpeed && desired < 0
}
