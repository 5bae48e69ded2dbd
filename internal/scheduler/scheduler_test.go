package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saleharvest/internal/clock"
	"saleharvest/internal/harvest"
	"saleharvest/internal/logger"
)

type fakeRunner struct {
	mu       sync.Mutex
	outcomes []harvest.Outcome
	rounds   []int
	onRun    func(round int)
}

func (f *fakeRunner) Run(_ context.Context, round int) harvest.Summary {
	f.mu.Lock()
	n := len(f.rounds)
	f.rounds = append(f.rounds, round)
	outcome := harvest.OutcomeNoNewItems
	if len(f.outcomes) > 0 {
		outcome = f.outcomes[n%len(f.outcomes)]
	}
	hook := f.onRun
	f.mu.Unlock()

	if hook != nil {
		hook(round)
	}
	s := harvest.Summary{Round: round, Outcome: outcome}
	if outcome == harvest.OutcomeNewItems {
		s.Accepted = 2
	}
	if outcome == harvest.OutcomeFailed {
		s.Err = errors.New("timed out")
	}
	return s
}

func (f *fakeRunner) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rounds)
}

type fakeObserver struct {
	rounds int
	alerts []int
}

func (o *fakeObserver) ObserveRound(harvest.Summary) { o.rounds++ }

func (o *fakeObserver) ObserveSustainedFailure(n int) { o.alerts = append(o.alerts, n) }

func newScheduler(r Runner) (*Scheduler, *clock.Fake, *fakeObserver) {
	clk := clock.NewFake(time.Date(2024, 11, 3, 0, 0, 0, 0, time.UTC))
	obs := &fakeObserver{}
	return New(r, clk, logger.NewNop(), obs), clk, obs
}

func TestMonitorRunsExactlyMaxRounds(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{outcomes: []harvest.Outcome{harvest.OutcomeNewItems, harvest.OutcomeNoNewItems, harvest.OutcomeFailed}}
	s, clk, obs := newScheduler(runner)

	report, err := s.Monitor(context.Background(), Options{Interval: 60 * time.Second, MaxRounds: 3})
	require.NoError(t, err)

	assert.Equal(t, 3, runner.calls())
	assert.Equal(t, []int{1, 2, 3}, runner.rounds)
	assert.Equal(t, []time.Duration{60 * time.Second, 60 * time.Second}, clk.Sleeps())
	assert.Equal(t, 3, report.Rounds)
	assert.Equal(t, 1, report.NewItemRounds)
	assert.Equal(t, 1, report.NoNewRounds)
	assert.Equal(t, 1, report.FailedRounds)
	assert.Equal(t, 2, report.Accepted)
	assert.False(t, report.Stopped)
	assert.Equal(t, 3, obs.rounds)
	assert.False(t, s.Running())

	last, ok := s.Last()
	require.True(t, ok)
	assert.Equal(t, 3, last.Round)
}

func TestMonitorRunsRegardlessOfResults(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{outcomes: []harvest.Outcome{harvest.OutcomeNoNewItems}}
	s, _, _ := newScheduler(runner)

	report, err := s.Monitor(context.Background(), Options{Interval: time.Minute, MaxRounds: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, report.NoNewRounds)
}

func TestMonitorUnboundedUntilStop(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	s, clk, _ := newScheduler(runner)
	clk.OnSleep = func(n int) {
		if n == 4 {
			s.Stop()
		}
	}

	report, err := s.Monitor(context.Background(), Options{Interval: time.Second})
	require.NoError(t, err)
	assert.Equal(t, 4, runner.calls())
	assert.True(t, report.Stopped)
	assert.False(t, s.Stop(), "no monitor left to stop")
}

func TestStopDuringCycleFinishesThatCycle(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	s, clk, _ := newScheduler(runner)
	runner.onRun = func(round int) {
		if round == 2 {
			assert.True(t, s.Stop())
		}
	}

	report, err := s.Monitor(context.Background(), Options{Interval: time.Second, MaxRounds: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Rounds)
	assert.True(t, report.Stopped)
	assert.Len(t, clk.Sleeps(), 1)
}

func TestMonitorContextCancel(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	s, clk, _ := newScheduler(runner)
	ctx, cancel := context.WithCancel(context.Background())
	clk.OnSleep = func(int) { cancel() }

	report, err := s.Monitor(ctx, Options{Interval: time.Second})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Rounds)
	assert.True(t, report.Stopped)
}

func TestMonitorRejectsInvalidOptions(t *testing.T) {
	t.Parallel()

	tests := []Options{
		{Interval: 0, MaxRounds: 3},
		{Interval: -time.Second},
		{Interval: time.Second, MaxRounds: -1},
		{Interval: time.Second, FailureAlertThreshold: -2},
	}
	for _, opts := range tests {
		runner := &fakeRunner{}
		s, _, _ := newScheduler(runner)
		_, err := s.Monitor(context.Background(), opts)
		require.ErrorIs(t, err, ErrInvalidOptions)
		assert.Zero(t, runner.calls())
		assert.False(t, s.Running())
	}
}

func TestSustainedFailureAlertsWithoutChangingInterval(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{outcomes: []harvest.Outcome{harvest.OutcomeFailed}}
	s, clk, obs := newScheduler(runner)

	report, err := s.Monitor(context.Background(), Options{Interval: 30 * time.Second, MaxRounds: 5, FailureAlertThreshold: 3})
	require.NoError(t, err)
	assert.Equal(t, 5, report.FailedRounds)
	assert.Equal(t, []int{3, 4, 5}, obs.alerts)
	for _, d := range clk.Sleeps() {
		assert.Equal(t, 30*time.Second, d)
	}
}

func TestFailureStreakResetsOnSuccess(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{outcomes: []harvest.Outcome{
		harvest.OutcomeFailed, harvest.OutcomeFailed, harvest.OutcomeNoNewItems,
		harvest.OutcomeFailed, harvest.OutcomeFailed,
	}}
	s, _, obs := newScheduler(runner)

	_, err := s.Monitor(context.Background(), Options{Interval: time.Second, MaxRounds: 5, FailureAlertThreshold: 3})
	require.NoError(t, err)
	assert.Empty(t, obs.alerts)
}

func TestRunOnceAndBusy(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{outcomes: []harvest.Outcome{harvest.OutcomeNewItems}}
	s, clk, _ := newScheduler(runner)

	var busyErr error
	runner.onRun = func(round int) {
		if round == 1 && busyErr == nil {
			_, busyErr = s.RunOnce(context.Background())
		}
	}

	sum, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, harvest.OutcomeNewItems, sum.Outcome)
	assert.ErrorIs(t, busyErr, ErrBusy)
	assert.Empty(t, clk.Sleeps())
	assert.Equal(t, 1, runner.calls())
}

func TestStartMonitorInBackground(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	s, _, _ := newScheduler(runner)

	done, err := s.StartMonitor(context.Background(), Options{Interval: time.Second, MaxRounds: 2})
	require.NoError(t, err)

	select {
	case report := <-done:
		assert.Equal(t, 2, report.Rounds)
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not finish")
	}
	assert.Eventually(t, func() bool { return !s.Running() }, time.Second, 10*time.Millisecond)

	_, err = s.StartMonitor(context.Background(), Options{})
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestRunnerOverride(t *testing.T) {
	t.Parallel()

	base := &fakeRunner{}
	override := &fakeRunner{outcomes: []harvest.Outcome{harvest.OutcomeNewItems}}
	s, _, _ := newScheduler(base)

	sum, err := s.RunOnceWith(context.Background(), override)
	require.NoError(t, err)
	assert.Equal(t, harvest.OutcomeNewItems, sum.Outcome)

	_, err = s.Monitor(context.Background(), Options{Interval: time.Second, MaxRounds: 2, Runner: override})
	require.NoError(t, err)
	assert.Equal(t, 3, override.calls())
	assert.Zero(t, base.calls())
}
