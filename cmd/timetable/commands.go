package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/sma-adp-timetable/internal/audit"
	"github.com/noah-isme/sma-adp-timetable/internal/conflictgen"
	"github.com/noah-isme/sma-adp-timetable/internal/scheduler"
	"github.com/noah-isme/sma-adp-timetable/pkg/config"
)

type cliOptions struct {
	fixture string
	output  string
	verbose bool
	budget  time.Duration
	level   string
	seed    int64
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}
	root := &cobra.Command{
		Use:           "timetable",
		Short:         "Solve, audit and stress course timetables from YAML fixtures",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.fixture, "fixture", "f", "", "path to the YAML fixture")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "yaml", "output format: yaml or json")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log engine progress to stderr")
	_ = root.MarkPersistentFlagRequired("fixture")

	solve := &cobra.Command{
		Use:   "solve",
		Short: "Run the assignment engine over the fixture and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSolve(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	solve.Flags().DurationVar(&opts.budget, "budget", 0, "override the solve time budget")

	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Check the fixture assignments for conflicts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	inject := &cobra.Command{
		Use:   "inject",
		Short: "Plant a synthetic conflict into the fixture assignments and audit the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInject(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	inject.Flags().StringVar(&opts.level, "level", string(conflictgen.LevelBasic), "scenario level: basic, complex or extreme")
	inject.Flags().Int64Var(&opts.seed, "seed", 1, "random seed for scenario selection")

	root.AddCommand(solve, auditCmd, inject)
	return root
}

func engineOptions() scheduler.Options {
	cfg, err := config.Load()
	if err != nil {
		return scheduler.DefaultOptions()
	}
	return scheduler.OptionsFromConfig(cfg.Scheduler)
}

func cliLogger(verbose bool) *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func runSolve(ctx context.Context, out io.Writer, opts *cliOptions) error {
	fx, err := loadFixture(opts.fixture)
	if err != nil {
		return err
	}
	engineOpts := engineOptions()
	if opts.budget > 0 {
		engineOpts.Budget = opts.budget
	}
	logr := cliLogger(opts.verbose)
	defer logr.Sync() //nolint:errcheck

	result, err := scheduler.NewEngine(engineOpts, logr).Solve(ctx, fx.reference())
	if err != nil {
		return fmt.Errorf("solve: %w", err)
	}
	report, err := audit.New(engineOpts.Registry, logr).Audit(ctx, fx.reference(), result.Assignments)
	if err != nil {
		return fmt.Errorf("audit solve result: %w", err)
	}
	return render(out, opts.output, solveOutput{Result: result, Audit: report.Summary})
}

func runAudit(ctx context.Context, out io.Writer, opts *cliOptions) error {
	fx, err := loadFixture(opts.fixture)
	if err != nil {
		return err
	}
	if len(fx.Assignments) == 0 {
		return fmt.Errorf("fixture %s has no assignments to audit", opts.fixture)
	}
	engineOpts := engineOptions()
	report, err := audit.New(engineOpts.Registry, cliLogger(opts.verbose)).Audit(ctx, fx.reference(), fx.Assignments)
	if err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	return render(out, opts.output, report)
}

func runInject(ctx context.Context, out io.Writer, opts *cliOptions) error {
	level, err := conflictgen.ParseLevel(opts.level)
	if err != nil {
		return err
	}
	fx, err := loadFixture(opts.fixture)
	if err != nil {
		return err
	}
	engineOpts := engineOptions()
	logr := cliLogger(opts.verbose)
	ref := fx.reference()

	assignments := fx.Assignments
	if len(assignments) == 0 {
		result, err := scheduler.NewEngine(engineOpts, logr).Solve(ctx, ref)
		if err != nil {
			return fmt.Errorf("solve base schedule: %w", err)
		}
		assignments = result.Assignments
	}

	injection, err := conflictgen.New(opts.seed, engineOpts.Registry, logr).Inject(level, ref, assignments)
	if err != nil {
		return fmt.Errorf("inject: %w", err)
	}
	report, err := audit.New(engineOpts.Registry, logr).Audit(ctx, ref, injection.Assignments)
	if err != nil {
		return fmt.Errorf("audit injected schedule: %w", err)
	}
	return render(out, opts.output, injectOutput{
		Scenario: injection.Scenario,
		Expected: injection.Expected,
		Exact:    injection.Exact,
		Detected: report.Summary,
		Report:   report.Violations,
	})
}

func render(out io.Writer, format string, v interface{}) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}
