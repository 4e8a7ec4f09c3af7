package main

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.einride.tech/can"

	"adas-actuation-core/actuation"
	"adas-actuation-core/actuation/longitudinal"
	"adas-actuation-core/utils"
)

type fakeReader struct {
	frames chan can.Frame
}

func (r *fakeReader) ReadFrame(ctx context.Context) (can.Frame, error) {
	select {
	case <-ctx.Done():
		return can.Frame{}, ctx.Err()
	case f, ok := <-r.frames:
		if !ok {
			return can.Frame{}, utils.ErrReaderClosed
		}
		return f, nil
	}
}

func (r *fakeReader) Close() error { return nil }

type fakeWriter struct {
	mu     sync.Mutex
	frames []can.Frame
}

func (w *fakeWriter) WriteFrame(_ context.Context, f can.Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.frames = append(w.frames, f)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func (w *fakeWriter) sent() []can.Frame {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]can.Frame(nil), w.frames...)
}

func newTestRunner(t *testing.T, log *utils.Logger) (*Runner, *fakeReader, *fakeWriter) {
	t.Helper()
	ctrl, err := actuation.New(lookup(t, "basic"))
	require.NoError(t, err)
	reader := &fakeReader{frames: make(chan can.Frame, 16)}
	writer := &fakeWriter{}
	r := newRunner(RunnerConfig{Interface: "vcan-test", RunID: "test"}, loadMap(t), ctrl, reader, writer, log)
	return r, reader, writer
}

// counterValue reads one counter from the runner's registry. label is the
// value of the counter's only label, or empty for unlabeled counters.
func counterValue(t *testing.T, r *Runner, name, label string) float64 {
	t.Helper()
	mfs, err := r.reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			lps := m.GetLabel()
			if label == "" || (len(lps) == 1 && lps[0].GetValue() == label) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func encode(t *testing.T, cmap *utils.CANMap, name string, values map[string]float64) can.Frame {
	t.Helper()
	f, err := cmap.EncodeFrame(name, values)
	require.NoError(t, err)
	return f
}

func TestRunner_DecodeAndCycle(t *testing.T) {
	r, _, writer := newTestRunner(t, utils.NewLogger(nil, utils.INFO))
	assert.Equal(t, 500*time.Millisecond, r.cfg.StaleAfter, "defaults to 50 cycles")

	now := time.Now()
	var in liveInputs
	for _, f := range []can.Frame{
		encode(t, r.cmap, frameVehicleState, map[string]float64{"V_EGO": 20}),
		encode(t, r.cmap, frameSteeringState, map[string]float64{}),
		encode(t, r.cmap, frameControlIntent, map[string]float64{"DESIRED_ACCEL": 1, "LONG_ACTIVE": 1, "LONG_STATE": float64(longitudinal.StatePid)}),
	} {
		rx, ok := r.decode(f)
		require.True(t, ok)
		in.apply(rx.name, rx.values, now)
	}

	_, ok := r.decode(encode(t, r.cmap, frameAccCmd, nil))
	assert.False(t, ok, "own TX frames are ignored")
	_, ok = r.decode(can.Frame{ID: 0x7FF, Length: 8})
	assert.False(t, ok, "unknown frames are ignored")

	bad := encode(t, r.cmap, frameVehicleState, map[string]float64{"V_EGO": 20})
	bad.Data[0] ^= 0xFF
	_, ok = r.decode(bad)
	assert.False(t, ok)
	assert.Equal(t, 1.0, counterValue(t, r, "actuation_can_errors_total", "rx"))

	for frame := int64(0); frame < 3; frame++ {
		n, err := r.cycle(context.Background(), frame, &in, now)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	}

	sent := writer.sent()
	require.Len(t, sent, 6)
	last, err := r.cmap.DecodeFrame(sent[4])
	require.NoError(t, err)
	assert.Equal(t, 2.0, last["COUNTER"])
	assert.InDelta(t, 0.09, last["ACCEL_CMD"], 1e-9, "3 m/s³ for three cycles")
	assert.Equal(t, 3.0, last["LONG_PHASE"])
	assert.Equal(t, 3.0, counterValue(t, r, "actuation_cycles_total", "active"))
}

func TestRunner_StaleFeedbackDegrades(t *testing.T) {
	var buf bytes.Buffer
	log := utils.NewLogger(&buf, utils.WARN)
	r, _, writer := newTestRunner(t, log)
	r.ctrl = mustController(t, log)

	now := time.Now()
	var in liveInputs
	in.apply(frameVehicleState, map[string]float64{"V_EGO": 10}, now)
	in.apply(frameSteeringState, map[string]float64{}, now)
	in.apply(frameControlIntent, map[string]float64{"DESIRED_ACCEL": 0.5, "LONG_ACTIVE": 1, "LONG_STATE": 1}, now)

	_, err := r.cycle(context.Background(), 0, &in, now)
	require.NoError(t, err)

	// Intent keeps arriving but vehicle feedback stops.
	later := now.Add(time.Second)
	in.apply(frameControlIntent, map[string]float64{"DESIRED_ACCEL": 0.5, "LONG_ACTIVE": 1, "LONG_STATE": 1}, later)
	_, err = r.cycle(context.Background(), 1, &in, later)
	require.NoError(t, err)

	sent := writer.sent()
	require.Len(t, sent, 4)
	acc, err := r.cmap.DecodeFrame(sent[2])
	require.NoError(t, err)
	assert.Equal(t, 1.0, acc["DEGRADED"])
	assert.Equal(t, 1.0, counterValue(t, r, "actuation_degraded_cycles_total", ""))
	assert.Contains(t, buf.String(), "holding last safe command")
}

func mustController(t *testing.T, log *utils.Logger) *actuation.Controller {
	t.Helper()
	ctrl, err := actuation.New(lookup(t, "basic"), actuation.WithLogger(log))
	require.NoError(t, err)
	return ctrl
}

func TestRunner_RunTransmitsUntilCanceled(t *testing.T) {
	r, reader, writer := newTestRunner(t, utils.NewLogger(nil, utils.INFO))
	reader.frames <- encode(t, r.cmap, frameVehicleState, map[string]float64{"V_EGO": 5})
	reader.frames <- encode(t, r.cmap, frameControlIntent, map[string]float64{"LONG_ACTIVE": 1, "LONG_STATE": 1})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err := r.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	sent := writer.sent()
	require.NotEmpty(t, sent)
	assert.Zero(t, len(sent)%2, "ACC and LKAS go out together")
	for i, f := range sent {
		want := uint32(0x200)
		if i%2 == 1 {
			want = 0x201
		}
		assert.Equal(t, want, f.ID)
	}
}

func TestRunner_RunStopsAfterDuration(t *testing.T) {
	r, reader, _ := newTestRunner(t, utils.NewLogger(nil, utils.INFO))
	r.cfg.DurationS = 0.05
	close(reader.frames)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, r.Run(ctx))
}
