package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"adas-actuation-core/actuation"
	"adas-actuation-core/actuation/profile"
	"adas-actuation-core/utils"
)

var (
	logLevel      string
	logFile       string
	profileName   string
	overridesPath string

	tracePath string

	iface       string
	mapPath     string
	metricsAddr string
	runSeconds  float64

	rootCmd = &cobra.Command{
		Use:           "actuation",
		Short:         "Jerk- and rate-limited ADAS actuation loop",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	replayCmd = &cobra.Command{
		Use:   "replay <scenario.json>",
		Short: "Replay a scenario against the plant model and write a CSV trace",
		Args:  cobra.ExactArgs(1),
		RunE:  runReplay,
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the live loop over SocketCAN",
		Args:  cobra.NoArgs,
		RunE:  runLive,
	}

	profilesCmd = &cobra.Command{
		Use:   "profiles",
		Short: "List the built-in tuning profiles",
		Args:  cobra.NoArgs,
		RunE:  listProfiles,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "trace|debug|info|warn|error|critical")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "closed_loop.log", "Log file (also echoed to stdout)")
	rootCmd.PersistentFlags().StringVar(&profileName, "profile", "", "Built-in profile name or YAML profile path")
	rootCmd.PersistentFlags().StringVar(&overridesPath, "overrides", "", "YAML file of live-tuning overrides")

	replayCmd.Flags().StringVar(&tracePath, "trace", "", "CSV trace output (default: no trace)")

	runCmd.Flags().StringVar(&iface, "iface", "vcan0", "SocketCAN interface name")
	runCmd.Flags().StringVar(&mapPath, "map", "config/can/can_map.csv", "Path to can_map.csv")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9108", "Prometheus listen address (empty disables)")
	runCmd.Flags().Float64Var(&runSeconds, "duration", 0, "Stop after this many seconds (0 runs until interrupted)")

	rootCmd.AddCommand(replayCmd, runCmd, profilesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "ERROR:", err)
		os.Exit(1)
	}
}

func openLog() (*utils.Logger, error) {
	level, err := utils.ParseLevel(logLevel)
	if err != nil {
		return nil, err
	}
	if logFile == "" {
		return utils.NewLogger(os.Stdout, level), nil
	}
	log, err := utils.NewFileLogger(logFile, level, true)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", logFile, err)
	}
	return log, nil
}

// loadProfile resolves the profile flag (falling back to fallback) and layers
// any overrides file on top.
func loadProfile(fallback string) (profile.TuningProfile, error) {
	name := profileName
	if name == "" {
		name = fallback
	}
	if name == "" {
		return profile.TuningProfile{}, errors.New("no tuning profile: pass --profile or set meta.profile in the scenario")
	}
	p, err := profile.Resolve(name)
	if err != nil {
		return profile.TuningProfile{}, err
	}
	if overridesPath == "" {
		return p, nil
	}
	o, err := profile.LoadOverrides(overridesPath)
	if err != nil {
		return profile.TuningProfile{}, err
	}
	return o.Apply(p)
}

func runReplay(cmd *cobra.Command, args []string) error {
	log, err := openLog()
	if err != nil {
		return err
	}
	defer log.Close()

	scen, err := LoadScenario(args[0])
	if err != nil {
		return fmt.Errorf("load scenario: %w", err)
	}
	p, err := loadProfile(scen.Meta.Profile)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	ctrl, err := actuation.New(p, actuation.WithLogger(log.WithPrefix(p.Name)))
	if err != nil {
		return err
	}

	var trace *os.File
	if tracePath != "" {
		trace, err = os.Create(tracePath)
		if err != nil {
			return fmt.Errorf("create trace: %w", err)
		}
		defer trace.Close()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rep := NewReplayer(&scen, ctrl, runID, log.WithPrefix("replay"))
	var sum Summary
	if trace != nil {
		sum, err = rep.Run(ctx, trace)
	} else {
		sum, err = rep.Run(ctx, nil)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "run %s: %d frames, max jerk %.3f m/s³, max lateral step %.3f, mean accel %.3f m/s², final speed %.2f m/s\n",
		sum.RunID, sum.Frames, sum.MaxJerk, sum.MaxLateralRate, sum.MeanAccel, sum.FinalSpeed)
	_, _ = fmt.Fprintf(out, "degraded cycles %d, override cycles %d\n", sum.DegradedCycles, sum.OverrideCycles)
	return nil
}

func runLive(cmd *cobra.Command, _ []string) error {
	log, err := openLog()
	if err != nil {
		return err
	}
	defer log.Close()

	p, err := loadProfile("")
	if err != nil {
		return err
	}
	ctrl, err := actuation.New(p, actuation.WithLogger(log.WithPrefix(p.Name)))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := RunnerConfig{
		Interface:   iface,
		MapPath:     mapPath,
		MetricsAddr: metricsAddr,
		DurationS:   runSeconds,
		RunID:       uuid.NewString(),
	}
	runner, err := NewRunner(ctx, cfg, ctrl, log.WithPrefix("live"))
	if err != nil {
		log.Critical("Startup failed: %v", err)
		return err
	}
	defer runner.Close()

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Critical("Run failed: %v", err)
		return err
	}
	return nil
}

func listProfiles(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	for _, name := range profile.Names() {
		p, err := profile.Lookup(name)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "%-16s mode=%-6s lateral=%-6s dt=%.3fs accel=[%.2f, %.2f] jerk=%.1f/%.1f/%.1f\n",
			name, p.Mode, p.Lateral.Mode, p.ControlPeriod, p.AccelMin, p.AccelMax,
			p.JerkLimits.Min, p.JerkLimits.MaxLower, p.JerkLimits.MaxUpper)
	}
	return nil
}
