package utils

import (
	"fmt"
	"math"

	"go.einride.tech/can"
)

// EncodeFrame packs physical values into a frame. Signals missing from values
// take their default. A checksum signal, if defined, is computed over the
// packed payload and overrides any supplied value.
func (m *CANMap) EncodeFrame(frameName string, values map[string]float64) (can.Frame, error) {
	fd, err := m.FrameByName(frameName)
	if err != nil {
		return can.Frame{}, err
	}

	f := can.Frame{ID: fd.ID, Length: uint8(fd.DLC)}
	for _, s := range fd.Signals {
		if s.Role == RoleChecksum {
			continue
		}
		v, ok := values[s.Name]
		if !ok {
			v = s.Default
		}
		if math.IsNaN(v) {
			return can.Frame{}, fmt.Errorf("frame %s signal %s: value is NaN", fd.Name, s.Name)
		}
		if s.Max > s.Min {
			v = math.Max(s.Min, math.Min(v, s.Max))
		}
		raw := clampRaw(int64(math.Round((v-s.Offset)/s.Factor)), s.BitLength, s.Signed)
		putRaw(&f.Data, s, raw)
	}

	if cs, ok := fd.signalWithRole(RoleChecksum); ok {
		putRaw(&f.Data, cs, int64(frameChecksum(fd, f.Data, cs)))
	}
	return f, nil
}

// DecodeFrame unpacks a received frame into physical values keyed by signal
// name. Frames with a checksum signal are verified.
func (m *CANMap) DecodeFrame(f can.Frame) (map[string]float64, error) {
	fd, err := m.FrameByID(f.ID)
	if err != nil {
		return nil, err
	}
	if int(f.Length) < fd.DLC {
		return nil, fmt.Errorf("frame 0x%X expects DLC %d, got %d", f.ID, fd.DLC, f.Length)
	}

	if cs, ok := fd.signalWithRole(RoleChecksum); ok {
		got := uint64(getRaw(f.Data, cs))
		if want := frameChecksum(fd, f.Data, cs); got != want {
			return nil, fmt.Errorf("%w: frame %s got 0x%X want 0x%X", ErrChecksum, fd.Name, got, want)
		}
	}

	out := make(map[string]float64, len(fd.Signals))
	for _, s := range fd.Signals {
		out[s.Name] = float64(getRaw(f.Data, s))*s.Factor + s.Offset
	}
	return out, nil
}

// FrameSequencer stamps a rolling counter on every frame it encodes.
type FrameSequencer struct {
	m        *CANMap
	counters map[uint32]uint64
}

func NewFrameSequencer(m *CANMap) *FrameSequencer {
	return &FrameSequencer{m: m, counters: map[uint32]uint64{}}
}

// Encode is EncodeFrame with the frame's counter signal, if any, set to the
// next value modulo its bit width.
func (s *FrameSequencer) Encode(frameName string, values map[string]float64) (can.Frame, error) {
	fd, err := s.m.FrameByName(frameName)
	if err != nil {
		return can.Frame{}, err
	}
	ctr, ok := fd.signalWithRole(RoleCounter)
	if !ok {
		return s.m.EncodeFrame(frameName, values)
	}

	n := s.counters[fd.ID]
	merged := make(map[string]float64, len(values)+1)
	for k, v := range values {
		merged[k] = v
	}
	merged[ctr.Name] = float64(n)
	s.counters[fd.ID] = (n + 1) % (uint64(1) << ctr.BitLength)
	return s.m.EncodeFrame(frameName, merged)
}

// frameChecksum sums the payload bytes, with the checksum bits cleared, and
// the two low bytes of the frame ID, truncated to the checksum width.
func frameChecksum(fd *FrameDef, data can.Data, cs SignalDef) uint64 {
	putRaw(&data, cs, 0)
	sum := uint64(fd.ID&0xFF) + uint64((fd.ID>>8)&0xFF)
	for i := 0; i < fd.DLC; i++ {
		sum += uint64(data[i])
	}
	if cs.BitLength >= 64 {
		return sum
	}
	return sum & (uint64(1)<<cs.BitLength - 1)
}

func putRaw(d *can.Data, s SignalDef, raw int64) {
	start, length := uint8(s.StartBit), uint8(s.BitLength)
	switch {
	case s.Endianness == BigEndian && s.Signed:
		d.SetSignedBitsBigEndian(start, length, raw)
	case s.Endianness == BigEndian:
		d.SetUnsignedBitsBigEndian(start, length, uint64(raw))
	case s.Signed:
		d.SetSignedBitsLittleEndian(start, length, raw)
	default:
		d.SetUnsignedBitsLittleEndian(start, length, uint64(raw))
	}
}

func getRaw(d can.Data, s SignalDef) int64 {
	start, length := uint8(s.StartBit), uint8(s.BitLength)
	switch {
	case s.Endianness == BigEndian && s.Signed:
		return d.SignedBitsBigEndian(start, length)
	case s.Endianness == BigEndian:
		return int64(d.UnsignedBitsBigEndian(start, length))
	case s.Signed:
		return d.SignedBitsLittleEndian(start, length)
	default:
		return int64(d.UnsignedBitsLittleEndian(start, length))
	}
}

func clampRaw(raw int64, bitLen int, signed bool) int64 {
	if bitLen <= 0 || bitLen > 63 {
		return raw
	}
	if !signed {
		hi := int64(1)<<bitLen - 1
		return max(0, min(raw, hi))
	}
	lo := -(int64(1) << (bitLen - 1))
	hi := int64(1)<<(bitLen-1) - 1
	return max(lo, min(raw, hi))
}
