// Package longitudinal computes the per-cycle jerk bounds and integrates the
// planner's desired acceleration under them.
package longitudinal

import (
	"fmt"
	"strings"
)

// ControlState is the longitudinal state declared by the upstream planner.
type ControlState int

const (
	StateOff ControlState = iota
	StatePid
	StateStopping
	StateStarting
)

func (s ControlState) String() string {
	switch s {
	case StateOff:
		return "off"
	case StatePid:
		return "pid"
	case StateStopping:
		return "stopping"
	case StateStarting:
		return "starting"
	default:
		return fmt.Sprintf("ControlState(%d)", int(s))
	}
}

// ParseControlState accepts the names produced by String, case-insensitively.
func ParseControlState(s string) (ControlState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "":
		return StateOff, nil
	case "pid":
		return StatePid, nil
	case "stopping":
		return StateStopping, nil
	case "starting":
		return StateStarting, nil
	}
	return StateOff, fmt.Errorf("unknown longitudinal control state %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (s ControlState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *ControlState) UnmarshalText(b []byte) error {
	v, err := ParseControlState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Phase is the integrator's own phase, derived from the enable flag and the
// declared control state.
type Phase int

const (
	PhaseDisabled Phase = iota
	PhaseStopping
	PhaseStandstillDelay
	PhaseActive
)

func (p Phase) String() string {
	switch p {
	case PhaseDisabled:
		return "disabled"
	case PhaseStopping:
		return "stopping"
	case PhaseStandstillDelay:
		return "standstill_delay"
	case PhaseActive:
		return "active"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// State is the integrator's memory between cycles. It is reset to the zero
// value whenever longitudinal control is disabled.
type State struct {
	Phase     Phase
	AccelLast float64
	JerkUpper float64
	JerkLower float64

	Stopping               bool
	StoppingFrameCount     int64
	StoppingEntryFrame     int64
	StopReqTransitionFrame int64

	// PrevControlState is the declared state of the previous enabled cycle.
	PrevControlState ControlState
}
