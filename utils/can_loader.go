package utils

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

var requiredColumns = []string{
	"direction", "frame_id", "frame_name", "cycle_ms", "dlc",
	"signal_name", "start_bit", "bit_length", "endianness",
	"signed", "factor", "offset", "min", "max", "default", "unit", "comment",
}

// LoadCANMap reads a signal dictionary CSV. See ParseCANMap for the format.
func LoadCANMap(csvPath string) (*CANMap, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := ParseCANMap(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", csvPath, err)
	}
	return m, nil
}

// ParseCANMap reads one signal per row. Rows sharing a frame_id form a frame.
// An optional "role" column marks counter and checksum signals.
func ParseCANMap(r io.Reader) (*CANMap, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	for _, k := range requiredColumns {
		if _, ok := idx[k]; !ok {
			return nil, fmt.Errorf("can map missing required column: %q", k)
		}
	}
	roleCol, hasRole := idx["role"]

	m := &CANMap{
		ByID:   map[uint32]*FrameDef{},
		ByName: map[string]*FrameDef{},
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)
		p := rowParser{rec: rec, idx: idx}

		frameID, err := parseHexOrDecUint32(p.text("frame_id"))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid frame_id %q: %w", line, p.text("frame_id"), err)
		}
		frameName := p.text("frame_name")
		cycleMS := p.integer("cycle_ms")
		dlc := p.integer("dlc")

		sig := SignalDef{
			Name:       p.text("signal_name"),
			StartBit:   p.integer("start_bit"),
			BitLength:  p.integer("bit_length"),
			Endianness: Endianness(strings.ToLower(p.text("endianness"))),
			Signed:     p.flag("signed"),
			Factor:     p.number("factor"),
			Offset:     p.number("offset"),
			Min:        p.number("min"),
			Max:        p.number("max"),
			Default:    p.number("default"),
			Unit:       p.text("unit"),
			Comment:    p.text("comment"),
		}
		if hasRole && roleCol < len(rec) {
			sig.Role = SignalRole(strings.ToLower(strings.TrimSpace(rec[roleCol])))
		}
		if p.err != nil {
			return nil, fmt.Errorf("line %d: frame %s signal %s: %w", line, frameName, sig.Name, p.err)
		}
		if sig.Endianness == "" {
			sig.Endianness = LittleEndian
		}
		if err := validateSignal(sig, dlc); err != nil {
			return nil, fmt.Errorf("line %d: frame %s (0x%X): %w", line, frameName, frameID, err)
		}

		fd, ok := m.ByID[frameID]
		if !ok {
			if _, dup := m.ByName[frameName]; dup {
				return nil, fmt.Errorf("line %d: frame name %s reused for id 0x%X", line, frameName, frameID)
			}
			fd = &FrameDef{
				ID:        frameID,
				Name:      frameName,
				DLC:       dlc,
				Direction: p.text("direction"),
				CycleMS:   cycleMS,
			}
			m.ByID[frameID] = fd
			m.ByName[frameName] = fd
		}
		if fd.DLC != dlc {
			return nil, fmt.Errorf("frame %s (0x%X) has inconsistent DLC (%d vs %d)", frameName, frameID, fd.DLC, dlc)
		}
		if sig.Role != RoleValue {
			if _, taken := fd.signalWithRole(sig.Role); taken {
				return nil, fmt.Errorf("frame %s has more than one %s signal", frameName, sig.Role)
			}
		}
		fd.Signals = append(fd.Signals, sig)
	}

	for _, fd := range m.ByID {
		sort.Slice(fd.Signals, func(i, j int) bool { return fd.Signals[i].StartBit < fd.Signals[j].StartBit })
	}
	return m, nil
}

func validateSignal(s SignalDef, dlc int) error {
	if dlc <= 0 || dlc > 8 {
		return fmt.Errorf("invalid dlc %d", dlc)
	}
	if s.BitLength <= 0 || s.BitLength > 64 {
		return fmt.Errorf("signal %s: invalid bit_length %d", s.Name, s.BitLength)
	}
	if s.StartBit < 0 || s.StartBit >= dlc*8 {
		return fmt.Errorf("signal %s: start_bit %d outside %d-byte payload", s.Name, s.StartBit, dlc)
	}
	switch s.Endianness {
	case LittleEndian:
		if s.StartBit+s.BitLength > dlc*8 {
			return fmt.Errorf("signal %s: bits %d..%d exceed %d-byte payload", s.Name, s.StartBit, s.StartBit+s.BitLength-1, dlc)
		}
	case BigEndian:
	default:
		return fmt.Errorf("signal %s: unsupported endianness %q", s.Name, s.Endianness)
	}
	if s.Factor == 0 {
		return fmt.Errorf("signal %s: factor must be non-zero", s.Name)
	}
	switch s.Role {
	case RoleValue:
	case RoleCounter, RoleChecksum:
		if s.Signed || s.Factor != 1 || s.Offset != 0 {
			return fmt.Errorf("signal %s: %s signals must be unsigned raw values", s.Name, s.Role)
		}
	default:
		return fmt.Errorf("signal %s: unknown role %q", s.Name, s.Role)
	}
	return nil
}

func (m *CANMap) FrameByName(name string) (*FrameDef, error) {
	fd, ok := m.ByName[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %v)", ErrUnknownFrame, name, m.FrameNames())
	}
	return fd, nil
}

func (m *CANMap) FrameByID(id uint32) (*FrameDef, error) {
	fd, ok := m.ByID[id]
	if !ok {
		return nil, fmt.Errorf("%w id 0x%X", ErrUnknownFrame, id)
	}
	return fd, nil
}

// rowParser reads typed columns from one record, keeping the first error.
type rowParser struct {
	rec []string
	idx map[string]int
	err error
}

func (p *rowParser) text(col string) string {
	i := p.idx[col]
	if i >= len(p.rec) {
		return ""
	}
	return strings.TrimSpace(p.rec[i])
}

func (p *rowParser) integer(col string) int {
	s := p.text(col)
	v, err := strconv.Atoi(s)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("column %s: %w", col, err)
	}
	return v
}

func (p *rowParser) number(col string) float64 {
	s := p.text(col)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("column %s: %w", col, err)
	}
	return v
}

func (p *rowParser) flag(col string) bool {
	switch strings.ToLower(p.text(col)) {
	case "true", "1", "yes":
		return true
	}
	return false
}

func parseHexOrDecUint32(s string) (uint32, error) {
	ss := strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(ss, "0x") || strings.HasPrefix(ss, "0X") {
		base = 16
		ss = ss[2:]
	}
	u, err := strconv.ParseUint(ss, base, 32)
	if err != nil {
		return 0, err
	}
	return uint32(u), nil
}
