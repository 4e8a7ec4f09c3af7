package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"gonum.org/v1/gonum/floats"

	"adas-actuation-core/actuation"
	"adas-actuation-core/actuation/longitudinal"
	"adas-actuation-core/utils"
)

var traceHeader = []string{
	"run_id", "frame", "t",
	"v_ego", "a_ego", "steering_angle_deg", "driver_torque",
	"long_active", "long_state", "desired_accel",
	"actual_accel", "jerk_upper", "jerk_lower", "long_phase", "stop_request",
	"lat_active", "desired_lateral", "lateral_command", "lateral_enabled", "override",
	"degraded",
}

// Summary aggregates a replay.
type Summary struct {
	RunID          string
	Frames         int64
	MaxJerk        float64 // m/s³, over consecutive active cycles
	MaxLateralRate float64 // command units per cycle, over consecutive enabled cycles
	MeanAccel      float64 // over active cycles
	FinalSpeed     float64
	DegradedCycles int
	OverrideCycles int
	PhaseCycles    map[longitudinal.Phase]int
}

// Replayer drives a Controller through a scenario against the plant model.
type Replayer struct {
	scen    *Scenario
	ctrl    *actuation.Controller
	plant   *Plant
	planner *SpeedPlanner
	log     *utils.Logger
	runID   string
}

// NewReplayer wires ctrl to a fresh plant seeded from the scenario.
func NewReplayer(scen *Scenario, ctrl *actuation.Controller, runID string, log *utils.Logger) *Replayer {
	p := ctrl.Profile()
	r := &Replayer{
		scen:  scen,
		ctrl:  ctrl,
		plant: NewPlant(p, scen.Initial),
		log:   log,
		runID: runID,
	}
	if scen.Planner != nil {
		r.planner = NewSpeedPlanner(*scen.Planner, p)
	}
	return r
}

// Run replays the whole scenario, writing one CSV row per cycle to trace if
// it is non-nil. In real-time mode cycles are paced by the profile period.
func (r *Replayer) Run(ctx context.Context, trace io.Writer) (Summary, error) {
	dt := r.ctrl.Profile().ControlPeriod
	total := int64(math.Ceil(r.scen.Timing.DurationS/dt - 1e-9))

	var w *csv.Writer
	if trace != nil {
		w = csv.NewWriter(trace)
		if err := w.Write(traceHeader); err != nil {
			return Summary{}, fmt.Errorf("write trace header: %w", err)
		}
	}

	var tick <-chan time.Time
	if r.scen.Timing.RealTimeMode {
		ticker := time.NewTicker(time.Duration(dt * float64(time.Second)))
		defer ticker.Stop()
		tick = ticker.C
	}

	r.log.Info("Starting replay: scenario=%s run=%s frames=%d dt=%.3fs", r.scen.Meta.Name, r.runID, total, dt)

	sum := Summary{RunID: r.runID, PhaseCycles: map[longitudinal.Phase]int{}}
	var (
		jerks, latSteps, accels []float64
		prev                    actuation.ActuationCommand
	)
	for frame := int64(0); frame < total; frame++ {
		if tick != nil {
			select {
			case <-ctx.Done():
				return sum, ctx.Err()
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			return sum, err
		}

		t := float64(frame) * dt
		seg := EvalSegment(r.scen, t)
		r.plant.SetDriverTorque(seg.DriverTorque)
		vs := r.plant.State()
		intent := r.intent(seg, vs, dt)

		cmd := r.ctrl.Step(frame, vs, intent)
		r.plant.Step(cmd)

		if w != nil {
			if err := w.Write(r.row(frame, t, vs, intent, cmd)); err != nil {
				return sum, fmt.Errorf("write trace frame %d: %w", frame, err)
			}
		}

		sum.PhaseCycles[cmd.LongPhase]++
		if cmd.Degraded {
			sum.DegradedCycles++
		}
		if cmd.LateralOverrideActive {
			sum.OverrideCycles++
		}
		if cmd.LongPhase == longitudinal.PhaseActive {
			accels = append(accels, cmd.ActualAccel)
			if prev.LongPhase == longitudinal.PhaseActive {
				jerks = append(jerks, (cmd.ActualAccel-prev.ActualAccel)/dt)
			}
		}
		if cmd.LateralEnabled && prev.LateralEnabled {
			latSteps = append(latSteps, cmd.LateralCommand-prev.LateralCommand)
		}
		prev = cmd
		sum.Frames++
	}

	if w != nil {
		w.Flush()
		if err := w.Error(); err != nil {
			return sum, fmt.Errorf("flush trace: %w", err)
		}
	}

	if len(jerks) > 0 {
		sum.MaxJerk = floats.Norm(jerks, math.Inf(1))
	}
	if len(latSteps) > 0 {
		sum.MaxLateralRate = floats.Norm(latSteps, math.Inf(1))
	}
	if len(accels) > 0 {
		sum.MeanAccel = floats.Sum(accels) / float64(len(accels))
	}
	sum.FinalSpeed = r.plant.State().VEgo

	r.log.Info("Completed replay: run=%s frames=%d max_jerk=%.3f max_lat_step=%.3f degraded=%d overrides=%d final_v=%.2f",
		r.runID, sum.Frames, sum.MaxJerk, sum.MaxLateralRate, sum.DegradedCycles, sum.OverrideCycles, sum.FinalSpeed)
	return sum, nil
}

// intent builds the planner output for one cycle. Speed-target segments go
// through the speed planner; anything else is passed through.
func (r *Replayer) intent(seg SegmentCmd, vs actuation.VehicleState, dt float64) actuation.ControlIntent {
	in := actuation.ControlIntent{
		DesiredAccel:     seg.DesiredAccel,
		LongActive:       seg.LongActive,
		LongControlState: seg.LongState,
		DesiredLateral:   seg.DesiredLateral,
		LatActive:        seg.LatActive,
	}
	if seg.TargetSpeed == nil || r.planner == nil || !seg.LongActive {
		if r.planner != nil {
			r.planner.Reset()
		}
		return in
	}
	in.DesiredAccel, in.LongControlState = r.planner.Update(*seg.TargetSpeed, vs.VEgo, dt)
	return in
}

func (r *Replayer) row(frame int64, t float64, vs actuation.VehicleState, in actuation.ControlIntent, cmd actuation.ActuationCommand) []string {
	return []string{
		r.runID,
		strconv.FormatInt(frame, 10),
		ff(t),
		ff(vs.VEgo), ff(vs.AEgo), ff(vs.SteeringAngleDeg), ff(vs.SteeringTorque),
		strconv.FormatBool(in.LongActive), in.LongControlState.String(), ff(in.DesiredAccel),
		ff(cmd.ActualAccel), ff(cmd.JerkUpper), ff(cmd.JerkLower), cmd.LongPhase.String(), strconv.FormatBool(cmd.StopRequest),
		strconv.FormatBool(in.LatActive), ff(in.DesiredLateral), ff(cmd.LateralCommand), strconv.FormatBool(cmd.LateralEnabled), strconv.FormatBool(cmd.LateralOverrideActive),
		strconv.FormatBool(cmd.Degraded),
	}
}

func ff(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }
