package utils

import (
	"errors"
	"sort"
)

// ErrUnknownFrame is returned for frame names or IDs missing from a CANMap.
var ErrUnknownFrame = errors.New("unknown CAN frame")

// ErrChecksum is returned by DecodeFrame when a checksum signal does not match
// the payload.
var ErrChecksum = errors.New("CAN checksum mismatch")

// SignalRole marks signals the codec fills in itself.
type SignalRole string

const (
	RoleValue    SignalRole = ""
	RoleCounter  SignalRole = "counter"
	RoleChecksum SignalRole = "checksum"
)

type Endianness string

const (
	LittleEndian Endianness = "little"
	BigEndian    Endianness = "big"
)

type SignalDef struct {
	Name       string
	StartBit   int
	BitLength  int
	Signed     bool
	Factor     float64
	Offset     float64
	Min        float64
	Max        float64
	Default    float64
	Unit       string
	Comment    string
	Endianness Endianness
	Role       SignalRole
}

type FrameDef struct {
	ID        uint32
	Name      string
	DLC       int
	Direction string
	CycleMS   int
	Signals   []SignalDef
}

// Signal returns the named signal definition.
func (fd *FrameDef) Signal(name string) (SignalDef, bool) {
	for _, s := range fd.Signals {
		if s.Name == name {
			return s, true
		}
	}
	return SignalDef{}, false
}

func (fd *FrameDef) signalWithRole(role SignalRole) (SignalDef, bool) {
	for _, s := range fd.Signals {
		if s.Role == role {
			return s, true
		}
	}
	return SignalDef{}, false
}

type CANMap struct {
	ByID   map[uint32]*FrameDef
	ByName map[string]*FrameDef
}

func (m *CANMap) FrameNames() []string {
	out := make([]string, 0, len(m.ByName))
	for k := range m.ByName {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
