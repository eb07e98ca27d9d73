package framework

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeWithAllOperationsSucceeding(t *testing.T) {
	latency := 10 * time.Millisecond
	agg, outcomes, err := Probe(context.Background(), ProbeConfig{Operations: 20, Workers: 5},
		func(ctx context.Context, id int) error {
			time.Sleep(latency)
			return nil
		})
	require.NoError(t, err)

	assert.Equal(t, 20, agg.Count)
	assert.Equal(t, 20, agg.Successes)
	assert.Equal(t, 1.0, agg.SuccessRate)
	assert.GreaterOrEqual(t, int64(agg.MeanLatency), int64(latency))
	assert.Less(t, int64(agg.MeanLatency), int64(latency+40*time.Millisecond))
	assert.GreaterOrEqual(t, int64(agg.MaxLatency), int64(agg.MeanLatency))

	require.Len(t, outcomes, 20)
	for i, o := range outcomes {
		assert.Equal(t, i, o.OperationID)
		assert.True(t, o.Success)
	}
}

func TestProbeNeverExceedsWorkerLimit(t *testing.T) {
	var active, maxActive int32
	_, _, err := Probe(context.Background(), ProbeConfig{Operations: 40, Workers: 4},
		func(ctx context.Context, id int) error {
			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			return nil
		})
	require.NoError(t, err)

	assert.LessOrEqual(t, atomic.LoadInt32(&maxActive), int32(4))
	assert.Greater(t, atomic.LoadInt32(&maxActive), int32(1))
}

func TestProbeFailuresDoNotAffectOtherOperations(t *testing.T) {
	agg, outcomes, err := Probe(context.Background(), ProbeConfig{Operations: 10, Workers: 3},
		func(ctx context.Context, id int) error {
			if id%2 == 0 {
				return fmt.Errorf("operation %d failed", id)
			}
			return nil
		})
	require.NoError(t, err)

	assert.Equal(t, 10, agg.Count)
	assert.Equal(t, 5, agg.Successes)
	assert.Equal(t, 5, agg.Failures())
	assert.Equal(t, 0.5, agg.SuccessRate)
	assert.Equal(t, "operation 4 failed", outcomes[4].Err)
	assert.True(t, outcomes[5].Success)
}

func TestProbeRecordsPanicsAsFailures(t *testing.T) {
	agg, outcomes, err := Probe(context.Background(), ProbeConfig{Operations: 3, Workers: 3},
		func(ctx context.Context, id int) error {
			if id == 1 {
				panic("bad operation")
			}
			return nil
		})
	require.NoError(t, err)

	assert.Equal(t, 2, agg.Successes)
	assert.False(t, outcomes[1].Success)
	assert.Contains(t, outcomes[1].Err, "bad operation")
}

func TestProbeAppliesOperationTimeout(t *testing.T) {
	agg, outcomes, err := Probe(context.Background(),
		ProbeConfig{Operations: 4, Workers: 4, OperationTimeout: 20 * time.Millisecond},
		func(ctx context.Context, id int) error {
			if id == 0 {
				return nil
			}
			<-ctx.Done()
			return ctx.Err()
		})
	require.NoError(t, err)

	assert.Equal(t, 1, agg.Successes)
	assert.Equal(t, 3, agg.Timeouts)
	assert.True(t, outcomes[3].TimedOut)
}

func TestProbeRejectsInvalidConfig(t *testing.T) {
	op := func(context.Context, int) error { return nil }
	for _, config := range []ProbeConfig{
		{Operations: 0, Workers: 1},
		{Operations: 1, Workers: 0},
		{Operations: -1, Workers: 5},
	} {
		t.Run(fmt.Sprintf("%d operations %d workers", config.Operations, config.Workers), func(t *testing.T) {
			_, outcomes, err := Probe(context.Background(), config, op)
			assert.True(t, errors.Is(err, ErrInvalidProbe))
			assert.Nil(t, outcomes)
		})
	}
}

func TestProbeAfterCancellationStillAccountsForEveryOperation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	agg, outcomes, err := Probe(ctx, ProbeConfig{Operations: 5, Workers: 2},
		func(context.Context, int) error { return nil })
	require.NoError(t, err)

	assert.Equal(t, 5, agg.Count)
	assert.Equal(t, 0, agg.Successes)
	assert.Len(t, outcomes, 5)
	assert.Contains(t, outcomes[0].Err, "not started")
}

func TestProbeWithRateLimit(t *testing.T) {
	startTime := time.Now()
	agg, _, err := Probe(context.Background(), ProbeConfig{Operations: 5, Workers: 5, Rate: 50},
		func(context.Context, int) error { return nil })
	require.NoError(t, err)

	assert.Equal(t, 5, agg.Successes)
	// one token is available immediately, the other four arrive every 20ms
	assert.GreaterOrEqual(t, int64(time.Since(startTime)), int64(70*time.Millisecond))
}

func TestAggregateIsIndependentOfCompletionOrder(t *testing.T) {
	random := rand.New(rand.NewSource(1))
	var outcomes []ProbeOutcome
	for i := 0; i < 50; i++ {
		o := ProbeOutcome{OperationID: i, Latency: time.Duration(random.Intn(5000)) * time.Microsecond}
		switch random.Intn(4) {
		case 0:
			o.Err = "connection refused"
		case 1:
			o.Err = "timeout"
			o.TimedOut = true
		default:
			o.Success = true
		}
		outcomes = append(outcomes, o)
	}
	expected := Aggregate(outcomes)
	var successes int
	for _, o := range outcomes {
		if o.Success {
			successes++
		}
	}
	assert.Equal(t, float64(successes)/50, expected.SuccessRate)

	for i := 0; i < 100; i++ {
		shuffled := append([]ProbeOutcome(nil), outcomes...)
		random.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, expected, Aggregate(shuffled))
	}
}

func TestProbeAggregateIsIndependentOfSchedulingOrder(t *testing.T) {
	op := func(ctx context.Context, id int) error {
		time.Sleep(time.Duration(rand.Intn(3)) * time.Millisecond)
		if id%3 == 0 {
			return errors.New("refused")
		}
		return nil
	}
	first, _, err := Probe(context.Background(), ProbeConfig{Operations: 30, Workers: 7}, op)
	require.NoError(t, err)
	second, _, err := Probe(context.Background(), ProbeConfig{Operations: 30, Workers: 2}, op)
	require.NoError(t, err)

	assert.Equal(t, first.Count, second.Count)
	assert.Equal(t, first.Successes, second.Successes)
	assert.Equal(t, first.SuccessRate, second.SuccessRate)
}

func TestAggregateOfNoOutcomes(t *testing.T) {
	agg := Aggregate(nil)
	assert.Equal(t, ProbeAggregate{}, agg)
	assert.Equal(t, 0.0, agg.SuccessRate)
}

func TestProbeAggregateRequirements(t *testing.T) {
	agg := ProbeAggregate{Count: 20, Successes: 17, SuccessRate: 0.85, MeanLatency: 2 * time.Second}

	assert.NoError(t, agg.RequireSuccessRate(0.85))
	assert.Error(t, agg.RequireSuccessRate(0.9))
	assert.NoError(t, agg.RequireMeanLatencyBelow(3*time.Second))
	assert.Error(t, agg.RequireMeanLatencyBelow(2*time.Second))
}
