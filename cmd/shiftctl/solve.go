package main

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arnavshah/weekly-scheduler-go/pkg/config"
	"github.com/arnavshah/weekly-scheduler-go/pkg/export"
	"github.com/arnavshah/weekly-scheduler-go/pkg/logger"
	"github.com/arnavshah/weekly-scheduler-go/pkg/scheduler"
)

type solveOptions struct {
	seed   int64
	format string
	out    string
	swaps  []string
	reset  bool
	debug  bool
}

func solveCmd() *cobra.Command {
	opts := &solveOptions{}

	cmd := &cobra.Command{
		Use:   "solve [availability.csv]",
		Short: "Solve a weekly schedule, optionally apply swaps, and export it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rng *rand.Rand
			if cmd.Flags().Changed("seed") {
				rng = rand.New(rand.NewSource(opts.seed))
			}
			return runSolve(cmd, args[0], rng, opts)
		},
	}

	cmd.Flags().Int64Var(&opts.seed, "seed", 0, "Seed for the employee shuffle (random when unset)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "csv", "Output format (csv, xlsx)")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "Output file (stdout when empty)")
	cmd.Flags().StringArrayVar(&opts.swaps, "swap", nil, "Swap to apply after solving, as EMPLOYEE_A,EMPLOYEE_B,SHIFT (repeatable)")
	cmd.Flags().BoolVar(&opts.reset, "reset", false, "Reset to the solved schedule after applying swaps")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Verbose logging")

	return cmd
}

func runSolve(cmd *cobra.Command, path string, rng *rand.Rand, opts *solveOptions) error {
	level := "warn"
	if opts.debug {
		level = "debug"
	}
	log, err := logger.New(&config.LogConfig{Level: level, Format: "console"})
	if err != nil {
		return err
	}
	defer log.Sync()

	if opts.format != "csv" && opts.format != "xlsx" {
		return fmt.Errorf("unknown format %q", opts.format)
	}

	model, err := loadModel(path)
	if err != nil {
		return err
	}

	st := scheduler.Solve(model, rng)
	log.Debug("schedule solved",
		zap.Int("employees", len(model.Employees())),
		zap.Int("shifts", len(model.Shifts())),
		zap.Strings("uncovered", st.Uncovered()),
	)

	stderr := cmd.ErrOrStderr()
	for _, c := range st.Conflicts() {
		fmt.Fprintf(stderr, "uncovered %s: %s\n", c.Shift, strings.Join(c.Reasons, "; "))
	}

	for _, arg := range opts.swaps {
		parts := strings.Split(arg, ",")
		if len(parts) != 3 {
			return fmt.Errorf("invalid --swap %q: want EMPLOYEE_A,EMPLOYEE_B,SHIFT", arg)
		}
		ok, err := scheduler.Swap(st, parts[0], parts[1], parts[2])
		if err != nil {
			return fmt.Errorf("swap %s: %w", arg, err)
		}
		if ok {
			fmt.Fprintf(stderr, "swapped %s between %s and %s\n", parts[2], parts[0], parts[1])
		} else {
			fmt.Fprintf(stderr, "swap not allowed: %s and %s must both hold %s\n", parts[0], parts[1], parts[2])
		}
	}

	if opts.reset {
		st.Reset()
		log.Debug("schedule reset")
	}

	fmt.Fprintf(stderr, "fairness score: %.1f%%\n", st.FairnessScore())

	if opts.out == "" {
		return writeSchedule(cmd.OutOrStdout(), opts.format, st)
	}

	f, err := os.Create(opts.out)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := writeSchedule(f, opts.format, st); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	return nil
}

func writeSchedule(w io.Writer, format string, st *scheduler.ScheduleState) error {
	if format == "xlsx" {
		return export.WriteXLSX(w, "Weekly schedule", st.Export())
	}
	return export.WriteCSV(w, st.Export())
}

func loadModel(path string) (*scheduler.AvailabilityModel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open availability: %w", err)
	}
	defer f.Close()

	table, err := scheduler.ReadCSV(f)
	if err != nil {
		return nil, err
	}
	return scheduler.NewAvailabilityModel(table)
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [availability.csv]",
		Short: "Check an availability CSV without solving it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := loadModel(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "valid: %d employees, %d shifts\n",
				len(model.Employees()), len(model.Shifts()))
			return nil
		},
	}
}
