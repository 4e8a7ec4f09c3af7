package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.einride.tech/can"

	"adas-actuation-core/actuation"
	"adas-actuation-core/utils"
)

type RunnerConfig struct {
	Interface   string
	MapPath     string
	MetricsAddr string        // empty disables the /metrics endpoint
	StaleAfter  time.Duration // feedback age at which inputs count as invalid
	DurationS   float64       // 0 runs until canceled
	RunID       string
}

// Runner is the live loop: RX feedback and intent over SocketCAN, one
// Controller.Step per profile period, TX of the encoded command.
type Runner struct {
	cfg     RunnerConfig
	log     *utils.Logger
	cmap    *utils.CANMap
	seq     *utils.FrameSequencer
	ctrl    *actuation.Controller
	writer  utils.CANWriter
	reader  utils.CANReader
	reg     *prometheus.Registry
	metrics *utils.Metrics
	period  time.Duration
}

func NewRunner(ctx context.Context, cfg RunnerConfig, ctrl *actuation.Controller, log *utils.Logger) (*Runner, error) {
	cmap, err := utils.LoadCANMap(cfg.MapPath)
	if err != nil {
		return nil, fmt.Errorf("load can map: %w", err)
	}
	for _, name := range []string{frameVehicleState, frameSteeringState, frameControlIntent, frameAccCmd, frameLkasCmd} {
		if _, err := cmap.FrameByName(name); err != nil {
			return nil, fmt.Errorf("can map %s: %w", cfg.MapPath, err)
		}
	}

	writer, err := utils.NewSocketCANWriter(ctx, cfg.Interface)
	if err != nil {
		return nil, err
	}
	reader, err := utils.NewSocketCANReader(ctx, cfg.Interface)
	if err != nil {
		_ = writer.Close()
		return nil, err
	}
	return newRunner(cfg, cmap, ctrl, reader, writer, log), nil
}

func newRunner(cfg RunnerConfig, cmap *utils.CANMap, ctrl *actuation.Controller, reader utils.CANReader, writer utils.CANWriter, log *utils.Logger) *Runner {
	reg := prometheus.NewRegistry()
	period := time.Duration(ctrl.Profile().ControlPeriod * float64(time.Second))
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 50 * period
	}
	return &Runner{
		cfg:     cfg,
		log:     log,
		cmap:    cmap,
		seq:     utils.NewFrameSequencer(cmap),
		ctrl:    ctrl,
		writer:  writer,
		reader:  reader,
		reg:     reg,
		metrics: utils.NewMetrics(reg),
		period:  period,
	}
}

func (r *Runner) Close() {
	if r.reader != nil {
		_ = r.reader.Close()
	}
	if r.writer != nil {
		_ = r.writer.Close()
	}
}

// rxFrame is a decoded frame handed from the receive goroutine to the loop.
type rxFrame struct {
	name   string
	values map[string]float64
	at     time.Time
}

func (r *Runner) Run(ctx context.Context) error {
	p := r.ctrl.Profile()
	r.log.Info("Starting live loop: run=%s profile=%s iface=%s period=%s stale_after=%s",
		r.cfg.RunID, p.Name, r.cfg.Interface, r.period, r.cfg.StaleAfter)

	if r.cfg.MetricsAddr != "" {
		srv := r.serveMetrics()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	rxCtx, cancelRx := context.WithCancel(ctx)
	defer cancelRx()
	rxChan := make(chan rxFrame, 100)
	go r.receiveLoop(rxCtx, rxChan)

	ticker := time.NewTicker(r.period)
	defer ticker.Stop()

	var (
		inputs liveInputs
		frame  int64
		sent   uint64
	)
	start := time.Now()
	endAfter := time.Duration(r.cfg.DurationS * float64(time.Second))

	for {
		select {
		case <-ctx.Done():
			r.log.Warn("Context canceled; stopping loop")
			r.log.Info("Completed loop. cycles=%d frames_sent=%d", frame, sent)
			return ctx.Err()

		case rx := <-rxChan:
			inputs.apply(rx.name, rx.values, rx.at)

		case now := <-ticker.C:
			if endAfter > 0 && now.Sub(start) > endAfter {
				r.log.Info("Completed loop. cycles=%d frames_sent=%d", frame, sent)
				return nil
			}

			n, err := r.cycle(ctx, frame, &inputs, now)
			sent += uint64(n)
			if err != nil {
				r.log.Critical("Transmit failed at frame %d: %v", frame, err)
				return err
			}
			frame++
		}
	}
}

// cycle runs one control step and transmits its frames.
func (r *Runner) cycle(ctx context.Context, frame int64, inputs *liveInputs, now time.Time) (int, error) {
	began := time.Now()
	vs, intent := inputs.snapshot(now, r.cfg.StaleAfter)
	cmd := r.ctrl.Step(frame, vs, intent)

	r.metrics.ObserveCycle(utils.CycleSample{
		Phase:          cmd.LongPhase.String(),
		ActualAccel:    cmd.ActualAccel,
		JerkUpper:      cmd.JerkUpper,
		JerkLower:      cmd.JerkLower,
		LateralCommand: cmd.LateralCommand,
		LateralEnabled: cmd.LateralEnabled,
		Override:       cmd.LateralOverrideActive,
		Degraded:       cmd.Degraded,
		Seconds:        time.Since(began).Seconds(),
	})

	frames, err := EncodeCommand(r.seq, cmd, intent.LongActive)
	if err != nil {
		r.metrics.CANError("tx")
		return 0, err
	}
	for i, f := range frames {
		if err := r.writer.WriteFrame(ctx, f); err != nil {
			r.metrics.CANError("tx")
			return i, err
		}
		r.log.Trace("TX frame=%d id=0x%X len=%d data=% X", frame, uint32(f.ID), f.Length, f.Data[:f.Length])
	}
	return len(frames), nil
}

// receiveLoop continuously reads CAN frames and decodes the ones in the map
func (r *Runner) receiveLoop(ctx context.Context, out chan<- rxFrame) {
	r.log.Debug("RX loop started")
	defer r.log.Debug("RX loop stopped")

	for {
		f, err := r.reader.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, utils.ErrReaderClosed) {
				return
			}
			r.metrics.CANError("rx")
			r.log.Error("RX error: %v", err)
			continue
		}
		r.log.Trace("RX id=0x%X len=%d data=% X", uint32(f.ID), f.Length, f.Data[:f.Length])

		rx, ok := r.decode(f)
		if !ok {
			continue
		}
		select {
		case out <- rx:
		case <-ctx.Done():
			return
		}
	}
}

func (r *Runner) decode(f can.Frame) (rxFrame, bool) {
	fd, err := r.cmap.FrameByID(f.ID)
	if err != nil || !strings.EqualFold(fd.Direction, "rx") {
		return rxFrame{}, false
	}
	values, err := r.cmap.DecodeFrame(f)
	if err != nil {
		r.metrics.CANError("rx")
		r.log.Warn("RX decode %s: %v", fd.Name, err)
		return rxFrame{}, false
	}
	return rxFrame{name: fd.Name, values: values, at: time.Now()}, true
}

func (r *Runner) serveMetrics() *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: r.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.log.Error("metrics server: %v", err)
		}
	}()
	r.log.Info("Serving metrics on %s/metrics", r.cfg.MetricsAddr)
	return srv
}
