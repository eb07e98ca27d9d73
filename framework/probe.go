package framework

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ProbeFunc is one operation of a stress probe. It is called concurrently from several
// goroutines, so it must be safe for that.
type ProbeFunc func(ctx context.Context, operationID int) error

// ProbeConfig controls the shape of a stress probe.
type ProbeConfig struct {
	// Operations is the total number of times the operation is invoked.
	Operations int
	// Workers is the maximum number of operations in flight at once.
	Workers int
	// OperationTimeout, if non-zero, bounds each operation through its context.
	OperationTimeout time.Duration
	// Rate, if non-zero, limits how many operations are started per second.
	Rate float64
}

// ProbeOutcome is the result of a single probe operation.
type ProbeOutcome struct {
	OperationID int
	Success     bool
	TimedOut    bool
	Latency     time.Duration
	Err         string
}

// ProbeAggregate summarizes the outcomes of a stress probe. Latency figures only cover
// successful operations.
type ProbeAggregate struct {
	Count       int
	Successes   int
	Timeouts    int
	SuccessRate float64
	MeanLatency time.Duration
	MaxLatency  time.Duration
}

func (a ProbeAggregate) Failures() int {
	return a.Count - a.Successes
}

func (a ProbeAggregate) String() string {
	return fmt.Sprintf("%d/%d successful (%.1f%%), %d timed out, mean latency %s, max latency %s",
		a.Successes, a.Count, a.SuccessRate*100, a.Timeouts, a.MeanLatency, a.MaxLatency)
}

// RequireSuccessRate returns an error if the success rate is below the given minimum.
func (a ProbeAggregate) RequireSuccessRate(min float64) error {
	if a.SuccessRate < min {
		return fmt.Errorf("success rate %.1f%% is below the required %.1f%%", a.SuccessRate*100, min*100)
	}
	return nil
}

// RequireMeanLatencyBelow returns an error if the mean latency is not below the given limit.
func (a ProbeAggregate) RequireMeanLatencyBelow(limit time.Duration) error {
	if a.MeanLatency >= limit {
		return fmt.Errorf("mean latency %s is not below %s", a.MeanLatency, limit)
	}
	return nil
}

// Probe invokes op config.Operations times over at most config.Workers concurrent
// goroutines, and returns the aggregate together with the individual outcomes sorted by
// operation ID.
//
// A failing operation never affects the others. If ctx is cancelled, operations that had
// not yet been started are recorded as failures, so the number of outcomes always equals
// config.Operations. The only error Probe itself returns is ErrInvalidProbe.
func Probe(ctx context.Context, config ProbeConfig, op ProbeFunc) (ProbeAggregate, []ProbeOutcome, error) {
	if config.Operations <= 0 || config.Workers <= 0 || op == nil {
		return ProbeAggregate{}, nil, fmt.Errorf("%w: %d operations, %d workers",
			ErrInvalidProbe, config.Operations, config.Workers)
	}

	var limiter *rate.Limiter
	if config.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.Rate), 1)
	}

	var (
		outcomes = make([]ProbeOutcome, 0, config.Operations)
		lock     sync.Mutex
	)
	record := func(o ProbeOutcome) {
		lock.Lock()
		outcomes = append(outcomes, o)
		lock.Unlock()
	}

	var g errgroup.Group
	g.SetLimit(config.Workers)
	for i := 0; i < config.Operations; i++ {
		id := i
		if err := ctx.Err(); err != nil {
			record(ProbeOutcome{OperationID: id, Err: "not started: " + err.Error()})
			continue
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				record(ProbeOutcome{OperationID: id, Err: "not started: " + err.Error()})
				continue
			}
		}
		g.Go(func() error {
			record(runProbeOperation(ctx, config.OperationTimeout, id, op))
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].OperationID < outcomes[j].OperationID })
	return Aggregate(outcomes), outcomes, nil
}

func runProbeOperation(ctx context.Context, timeout time.Duration, id int, op ProbeFunc) (outcome ProbeOutcome) {
	outcome.OperationID = id
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	startTime := time.Now()
	defer func() {
		if r := recover(); r != nil {
			outcome.Success = false
			outcome.Err = fmt.Sprintf("unexpected panic in probe operation: %+v", r)
		}
		outcome.Latency = time.Since(startTime)
	}()
	if err := op(ctx, id); err != nil {
		outcome.Err = err.Error()
		outcome.TimedOut = isTimeout(err)
		return outcome
	}
	outcome.Success = true
	return outcome
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// Aggregate reduces probe outcomes to summary statistics. The result does not depend on
// the order of the outcomes.
func Aggregate(outcomes []ProbeOutcome) ProbeAggregate {
	var (
		agg          ProbeAggregate
		totalLatency time.Duration
	)
	for _, o := range outcomes {
		agg.Count++
		if o.TimedOut {
			agg.Timeouts++
		}
		if !o.Success {
			continue
		}
		agg.Successes++
		totalLatency += o.Latency
		if o.Latency > agg.MaxLatency {
			agg.MaxLatency = o.Latency
		}
	}
	if agg.Count > 0 {
		agg.SuccessRate = float64(agg.Successes) / float64(agg.Count)
	}
	if agg.Successes > 0 {
		agg.MeanLatency = totalLatency / time.Duration(agg.Successes)
	}
	return agg
}
