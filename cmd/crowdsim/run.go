package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/lao-tseu-is-alive/go-crowd-avoidance/internal/crowd"
	"github.com/lao-tseu-is-alive/go-crowd-avoidance/internal/observability"
)

const (
	formatSummary = "summary"
	formatJSON    = "json"
)

func newRunCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a built-in scenario or a scenario file",
		Long: `Run steps a scenario and reports the final state.

With --format summary (the default) a short report is printed. With --format json
one snapshot per line is written every --every steps, and always after the last step.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := commandConfig(cmd, v)
			if err != nil {
				return err
			}
			return runSimulation(cmd.Context(), cmd.OutOrStdout(), cfg.Run, observability.GetLogger())
		},
	}

	keys := addSourceFlags(cmd.Flags())
	flags := cmd.Flags()
	flags.StringP("output", "o", "", "write the report to this file instead of stdout")
	flags.String("format", formatSummary, "output format: summary or json")
	flags.Int("every", 0, "with --format json, also emit a snapshot every N steps")
	keys["run.output"] = "output"
	keys["run.format"] = "format"
	keys["run.every"] = "every"
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		return bindFlags(v, cmd.Flags(), keys)
	}
	return cmd
}

// addSourceFlags declares the flags that pick and tune the scenario.
func addSourceFlags(flags *pflag.FlagSet) map[string]string {
	flags.String("scenario", "circle", "built-in scenario to run (see 'crowdsim scenarios')")
	flags.String("file", "", "scenario file (.json, .yaml or .yml)")
	flags.Uint64("seed", 1, "seed for the randomised built-in scenarios")
	flags.Int("steps", 0, "number of steps (0 keeps the scenario's value)")
	flags.Float64("dt", 0, "time step in seconds (0 keeps the scenario's value)")
	flags.Int("workers", 0, "agents computed concurrently (0 uses the scenario's value, else GOMAXPROCS)")
	return map[string]string{
		"run.scenario": "scenario",
		"run.file":     "file",
		"run.seed":     "seed",
		"run.steps":    "steps",
		"run.dt":       "dt",
		"run.workers":  "workers",
	}
}

// commandConfig reads the merged configuration. A --file given without an
// explicit --scenario replaces the default scenario.
func commandConfig(cmd *cobra.Command, v *viper.Viper) (appConfig, error) {
	var cfg appConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to read settings: %w", err)
	}
	if !cmd.Flags().Changed("scenario") && cfg.Run.File != "" {
		cfg.Run.Scenario = ""
	}
	return cfg, nil
}

func loadScenario(s runSettings) (*crowd.Config, error) {
	switch {
	case s.File != "" && s.Scenario != "":
		return nil, errors.New("--scenario and --file are mutually exclusive")
	case s.File != "":
		return crowd.LoadConfig(s.File)
	case s.Scenario != "":
		return crowd.Scenario(s.Scenario, s.Seed)
	default:
		return nil, errors.New("one of --scenario or --file is required")
	}
}

// prepareWorld loads the scenario, applies the command line overrides and
// builds the world.
func prepareWorld(s runSettings, logger *zap.Logger) (*crowd.Config, *crowd.World, error) {
	if s.Steps < 0 || s.Dt < 0 {
		return nil, nil, errors.New("--steps and --dt must not be negative")
	}
	cfg, err := loadScenario(s)
	if err != nil {
		return nil, nil, err
	}
	if s.Steps > 0 {
		cfg.Steps = s.Steps
	}
	if s.Dt > 0 {
		cfg.TimeStep = s.Dt
	}

	world, err := cfg.NewWorld(crowd.WithWorkers(s.Workers), crowd.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	logger.Info("scenario loaded",
		zap.String("scenario", cfg.Name),
		zap.String("run_id", world.RunID()),
		zap.Int("agents", len(cfg.Agents)),
		zap.Int("obstacles", len(cfg.Obstacles)),
		zap.Int("steps", cfg.Steps),
		zap.Float64("dt", cfg.TimeStep))
	return cfg, world, nil
}

func runSimulation(ctx context.Context, stdout io.Writer, s runSettings, logger *zap.Logger) (err error) {
	if s.Format != formatSummary && s.Format != formatJSON {
		return fmt.Errorf("unknown format %q, want %s or %s", s.Format, formatSummary, formatJSON)
	}
	if s.Every < 0 {
		return errors.New("--every must not be negative")
	}

	cfg, world, err := prepareWorld(s, logger)
	if err != nil {
		return err
	}

	out := stdout
	if s.Output != "" {
		f, cerr := os.Create(s.Output)
		if cerr != nil {
			return fmt.Errorf("failed to create output file: %w", cerr)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		out = f
	}
	bw := bufio.NewWriter(out)
	defer func() {
		if ferr := bw.Flush(); ferr != nil && err == nil {
			err = ferr
		}
	}()

	var observe func(crowd.Snapshot)
	var writeErr error
	enc := json.NewEncoder(bw)
	if s.Format == formatJSON && s.Every > 0 {
		observe = func(snap crowd.Snapshot) {
			if writeErr == nil && snap.Step%s.Every == 0 && snap.Step != cfg.Steps {
				writeErr = enc.Encode(snap)
			}
		}
	}

	if err := world.Run(ctx, cfg.Steps, cfg.TimeStep, observe); err != nil {
		return err
	}
	if writeErr != nil {
		return fmt.Errorf("failed to write snapshot: %w", writeErr)
	}

	final := world.Snapshot()
	if s.Format == formatJSON {
		return enc.Encode(final)
	}
	return writeSummary(bw, cfg, final)
}

func writeSummary(w io.Writer, cfg *crowd.Config, snap crowd.Snapshot) error {
	_, err := fmt.Fprintf(w,
		"scenario:        %s\n"+
			"run id:          %s\n"+
			"agents:          %d\n"+
			"obstacles:       %d\n"+
			"steps:           %d\n"+
			"simulated time:  %.3fs\n"+
			"arrived:         %d/%d\n"+
			"min separation:  %.4f\n"+
			"fingerprint:     %016x\n",
		cfg.Name, snap.RunID, len(snap.Agents), len(cfg.Obstacles), snap.Step, snap.Time,
		snap.ArrivedCount(), len(snap.Agents), snap.MinSeparation(), snap.Fingerprint())
	return err
}
