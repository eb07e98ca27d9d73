package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/launchdarkly/http-server-contract-tests/config"
	"github.com/launchdarkly/http-server-contract-tests/framework"
	"github.com/launchdarkly/http-server-contract-tests/history"
)

const (
	exitFailure     = 1
	exitInterrupted = 130

	defaultHistoryLimit = 20
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, framework.ErrInterrupted):
		return exitInterrupted
	case errors.Is(err, errAlreadyReported):
		return exitFailure
	default:
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return exitFailure
	}
}

func newRootCommand() *cobra.Command {
	params := &commandParams{}

	runCmd := func(cmd *cobra.Command, _ []string) error {
		h, err := newHarness(params, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer h.close()
		return h.runOnce(cmd.Context())
	}

	root := &cobra.Command{
		Use:           "http-server-contract-tests",
		Short:         "Contract tests for HTTP/1.1 servers",
		Long:          "Runs a battery of conformance, robustness, security and load checks against a running HTTP server.",
		Args:          cobra.NoArgs,
		RunE:          runCmd,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	params.addFlags(root.PersistentFlags())

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the checks once (the default)",
		Args:  cobra.NoArgs,
		RunE:  runCmd,
	})
	root.AddCommand(newWatchCommand(params))
	root.AddCommand(newHistoryCommand(params))
	root.AddCommand(newConfigCommand(params))
	return root
}

func newWatchCommand(params *commandParams) *cobra.Command {
	var schedule string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the checks immediately and then on a cron schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, err := newHarness(params, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer h.close()
			if !cmd.Flags().Changed("schedule") && h.cfg.Schedule != "" {
				schedule = h.cfg.Schedule
			}
			return h.watch(cmd.Context(), schedule)
		},
	}
	cmd.Flags().StringVar(&schedule, "schedule", config.DefaultSchedule, "cron expression or descriptor such as \"@every 10m\"")
	return cmd
}

func (h *harness) watch(ctx context.Context, schedule string) error {
	logger := cron.PrintfLogger(h.logger)
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(logger)), cron.WithLogger(logger))
	runAndLog := func() {
		if err := h.runOnce(ctx); err != nil && !errors.Is(err, errAlreadyReported) &&
			!errors.Is(err, framework.ErrInterrupted) {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
	}
	if _, err := c.AddFunc(schedule, runAndLog); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	runAndLog()
	if ctx.Err() != nil {
		return framework.ErrInterrupted
	}
	c.Start()
	if entries := c.Entries(); len(entries) > 0 {
		fmt.Fprintf(h.out, "Watching %s on schedule %q, next run at %s\n",
			h.target, schedule, entries[0].Next.Format(time.RFC3339))
	}
	<-ctx.Done()
	<-c.Stop().Done()
	return framework.ErrInterrupted
}

func newHistoryCommand(params *commandParams) *cobra.Command {
	var (
		limit int
		runID int64
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs and the checks that fail most often, or the checks of one run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := params.resolve()
			if err != nil {
				return err
			}
			if cfg.Report.History == "" {
				return errors.New("no history database given (use --history or report.history in the config file)")
			}
			store, err := history.Open(cfg.Report.History, nil)
			if err != nil {
				return err
			}
			defer store.Close()
			if runID > 0 {
				return printRunChecks(cmd, store, runID)
			}
			return printHistory(cmd, store, limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", defaultHistoryLimit, "number of most recent runs to show")
	cmd.Flags().Int64Var(&runID, "id", 0, "show the check results of the run with this ID")
	return cmd
}

func printHistory(cmd *cobra.Command, store *history.Store, limit int) error {
	runs, err := store.Runs(limit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tTARGET\tPASSED\tCRITICAL FAILED\tRESULT\tELAPSED")
	for _, r := range runs {
		result := "OK"
		if !r.Success {
			result = "ISSUES"
		}
		if r.CriticalOnly {
			result += " (quick)"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d/%d\t%d\t%s\t%.1fs\n",
			r.ID, r.StartTime.Local().Format("2006-01-02 15:04:05"), r.Target,
			r.Stats.Passed, r.Stats.Total, r.Stats.CriticalFailed, result, r.Elapsed.Seconds())
	}
	if err := w.Flush(); err != nil {
		return err
	}

	counts, err := store.FailureCounts(len(runs))
	if err != nil {
		return err
	}
	if len(counts) == 0 {
		return nil
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	fmt.Fprintf(out, "\nFailures over the last %d runs:\n", len(runs))
	for _, name := range names {
		fmt.Fprintf(out, "  %3d  %s\n", counts[name], name)
	}
	return nil
}

func printRunChecks(cmd *cobra.Command, store *history.Store, runID int64) error {
	checks, err := store.Checks(runID)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(checks) == 0 {
		fmt.Fprintf(out, "No checks recorded for run %d\n", runID)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHECK\tRESULT\tDURATION\tDETAIL")
	for _, c := range checks {
		result := "PASS"
		switch {
		case !c.Passed && c.Critical:
			result = "CRITICAL"
		case !c.Passed:
			result = "FAIL"
		}
		fmt.Fprintf(w, "%s\t%s\t%.3fs\t%s\n", c.Name, result, c.Duration.Seconds(), c.Detail)
	}
	return w.Flush()
}

func newConfigCommand(params *commandParams) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := params.resolve()
			if err != nil {
				return err
			}
			data, err := config.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
