package framework

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type RunState int

const (
	NotStarted RunState = iota
	SettingUp
	ProbingReachability
	Running
	Completed
)

func (s RunState) String() string {
	switch s {
	case NotStarted:
		return "not started"
	case SettingUp:
		return "setting up"
	case ProbingReachability:
		return "probing reachability"
	case Running:
		return "running"
	case Completed:
		return "completed"
	default:
		return fmt.Sprintf("RunState(%d)", int(s))
	}
}

// RunnerConfig contains everything a Runner needs. Only Checks is required.
type RunnerConfig struct {
	// Target is a human-readable description of the server under test, used in reports.
	Target string
	// DefaultTimeout applies to checks that do not set their own timeout.
	DefaultTimeout time.Duration
	Policy         Policy
	Checks         []CheckDefinition
	Reporter       Reporter
	Logger         Logger
	// Setup, if set, prepares the environment before anything else happens. An error
	// aborts the run.
	Setup func(ctx context.Context) error
	// Reachability, if set, is retried according to Policy.Reachability until it
	// succeeds. If it never does, the run is aborted without executing any checks.
	Reachability func(ctx context.Context) error
	// CriticalOnly restricts the run to the checks that are registered as critical.
	CriticalOnly bool
	// Filter, if set, excludes checks whose names it rejects.
	Filter Filter
}

// RunOutcome is what a Runner reports at the end of a run.
type RunOutcome struct {
	State RunState
	// Unavailable is true if the target never became reachable.
	Unavailable bool
	Stats       RunStatistics
	Results     []Result
	Success     bool
}

// Runner executes a fixed list of checks, one at a time, in registration order.
type Runner struct {
	config   RunnerConfig
	selected []CheckDefinition
	skipped  []string
	state    RunState
}

func NewRunner(config RunnerConfig) (*Runner, error) {
	if config.Reporter == nil {
		config.Reporter = NullReporter()
	}
	if config.Logger == nil {
		config.Logger = NullLogger()
	}
	if config.Policy == (Policy{}) {
		config.Policy = DefaultPolicy()
	}

	names := make(map[string]bool, len(config.Checks))
	r := &Runner{config: config}
	for _, def := range config.Checks {
		if def.Name == "" {
			return nil, errors.New("check registered without a name")
		}
		if names[def.Name] {
			return nil, fmt.Errorf("check %q is registered more than once", def.Name)
		}
		names[def.Name] = true
		if def.Body == nil {
			return nil, fmt.Errorf("check %q has no body", def.Name)
		}
		if config.CriticalOnly && !def.Critical {
			continue
		}
		if config.Filter != nil && !config.Filter(def.Name) {
			r.skipped = append(r.skipped, def.Name)
			continue
		}
		r.selected = append(r.selected, def)
	}
	return r, nil
}

// Selected returns the checks that will be executed, in order.
func (r *Runner) Selected() []CheckDefinition {
	return append([]CheckDefinition(nil), r.selected...)
}

func (r *Runner) State() RunState {
	return r.state
}

// Run performs setup, waits for the target to become reachable, and then executes the
// selected checks in order.
//
// Failures of individual checks never cause Run to return an error. Run returns a
// *SetupError if setup or the reachability probe failed, and ErrInterrupted if ctx was
// cancelled before the run completed; the check that was in flight at that moment is not
// recorded.
func (r *Runner) Run(ctx context.Context) (RunOutcome, error) {
	startTime := time.Now()
	reporter := r.config.Reporter
	logger := r.config.Logger

	r.state = SettingUp
	if r.config.Setup != nil {
		logger.Printf("Setting up test environment")
		if err := r.config.Setup(ctx); err != nil {
			return r.abort(RunOutcome{}, &SetupError{Stage: StageSetup, Err: err})
		}
	}

	r.state = ProbingReachability
	if r.config.Reachability != nil {
		policy := r.config.Policy.Reachability
		err := Retry(ctx, policy, func(ctx context.Context, attempt int) error {
			err := r.config.Reachability(ctx)
			if err != nil {
				logger.Printf("Target %s not reachable (attempt %d/%d): %s", r.config.Target, attempt, policy.Attempts, err)
			}
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return r.abort(RunOutcome{}, ErrInterrupted)
			}
			return r.abort(RunOutcome{Unavailable: true}, &SetupError{Stage: StageReachability, Err: err})
		}
		logger.Printf("Target %s is reachable", r.config.Target)
	}

	r.state = Running
	reporter.RunStarted(RunInfo{
		Target:       r.config.Target,
		CriticalOnly: r.config.CriticalOnly,
		CheckCount:   len(r.selected),
		StartTime:    startTime,
	})
	for _, name := range r.skipped {
		reporter.CheckSkipped(name, "excluded by filter parameters")
	}

	agg := NewAggregator(r.config.Policy)
	for _, def := range r.selected {
		if ctx.Err() != nil {
			return r.abort(r.outcome(agg), ErrInterrupted)
		}
		reporter.CheckStarted(def)
		result := Execute(ctx, def, r.config.DefaultTimeout)
		if ctx.Err() != nil {
			logger.Printf("Discarding result of %q because the run was interrupted", def.Name)
			return r.abort(r.outcome(agg), ErrInterrupted)
		}
		agg.Fold(result)
		reporter.OnResult(result)
	}

	r.state = Completed
	outcome := r.outcome(agg)
	reporter.OnComplete(RunSummary{
		Target:         r.config.Target,
		StartTime:      startTime,
		Elapsed:        time.Since(startTime),
		Stats:          outcome.Stats,
		Results:        outcome.Results,
		Skipped:        append([]string(nil), r.skipped...),
		Success:        outcome.Success,
		Recommendation: r.config.Policy.Recommend(outcome.Stats),
	})
	return outcome, nil
}

func (r *Runner) outcome(agg *Aggregator) RunOutcome {
	return RunOutcome{
		State:   r.state,
		Stats:   agg.Snapshot(),
		Results: agg.Results(),
		Success: agg.OverallSuccess(),
	}
}

func (r *Runner) abort(outcome RunOutcome, err error) (RunOutcome, error) {
	r.state = Completed
	outcome.State = Completed
	outcome.Success = false
	r.config.Reporter.RunFailed(err)
	return outcome, err
}
