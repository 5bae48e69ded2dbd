// Package scheduler runs harvest cycles once or on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"saleharvest/internal/clock"
	"saleharvest/internal/harvest"
	"saleharvest/internal/logger"
)

var (
	// ErrInvalidOptions is returned before any cycle runs when the
	// interval, round limit or alert threshold is out of range.
	ErrInvalidOptions = errors.New("invalid schedule options")
	// ErrBusy is returned when a run is already in progress.
	ErrBusy = errors.New("a harvest run is already in progress")
)

// DefaultFailureAlertThreshold is the number of consecutive failed rounds
// after which every further failure raises an alert.
const DefaultFailureAlertThreshold = 3

// Runner executes one cycle.
type Runner interface {
	Run(ctx context.Context, round int) harvest.Summary
}

// Observer receives every finished round. metrics.Recorder implements it.
type Observer interface {
	ObserveRound(s harvest.Summary)
	ObserveSustainedFailure(consecutive int)
}

// Options configures monitoring.
type Options struct {
	Interval time.Duration
	// MaxRounds bounds the number of rounds; 0 means run until stopped.
	MaxRounds int
	// FailureAlertThreshold is the streak of failed rounds that triggers an
	// alert; 0 disables alerts.
	FailureAlertThreshold int
	// Runner replaces the scheduler's runner for this run when set.
	Runner Runner
}

// Validate checks opts for monitoring mode.
func (o Options) Validate() error {
	if o.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %s", ErrInvalidOptions, o.Interval)
	}
	if o.MaxRounds < 0 {
		return fmt.Errorf("%w: max rounds must be >= 0, got %d", ErrInvalidOptions, o.MaxRounds)
	}
	if o.FailureAlertThreshold < 0 {
		return fmt.Errorf("%w: failure alert threshold must be >= 0, got %d", ErrInvalidOptions, o.FailureAlertThreshold)
	}
	return nil
}

// Report aggregates a monitoring run.
type Report struct {
	Rounds        int             `json:"rounds"`
	NewItemRounds int             `json:"new_item_rounds"`
	NoNewRounds   int             `json:"no_new_rounds"`
	FailedRounds  int             `json:"failed_rounds"`
	Accepted      int             `json:"accepted"`
	Stopped       bool            `json:"stopped"`
	Last          harvest.Summary `json:"last"`
}

func (r *Report) add(s harvest.Summary) {
	r.Rounds++
	r.Accepted += s.Accepted
	r.Last = s
	switch s.Outcome {
	case harvest.OutcomeNewItems:
		r.NewItemRounds++
	case harvest.OutcomeNoNewItems:
		r.NoNewRounds++
	case harvest.OutcomeFailed:
		r.FailedRounds++
	}
}

// Scheduler serialises runs: at most one RunOnce or Monitor is active.
type Scheduler struct {
	runner   Runner
	clock    clock.Clock
	log      logger.Logger
	observer Observer

	mu          sync.Mutex
	running     bool
	stop        context.CancelFunc
	last        *harvest.Summary
	failStreak  int
	alertAtFail int
}

// New creates a Scheduler. observer may be nil.
func New(runner Runner, clk clock.Clock, log logger.Logger, observer Observer) *Scheduler {
	return &Scheduler{
		runner:      runner,
		clock:       clk,
		log:         log,
		observer:    observer,
		alertAtFail: DefaultFailureAlertThreshold,
	}
}

// RunOnce runs exactly one cycle.
func (s *Scheduler) RunOnce(ctx context.Context) (harvest.Summary, error) {
	return s.RunOnceWith(ctx, nil)
}

// RunOnceWith runs exactly one cycle with r, or the scheduler's runner when
// r is nil.
func (s *Scheduler) RunOnceWith(ctx context.Context, r Runner) (harvest.Summary, error) {
	if err := s.acquire(func() {}); err != nil {
		return harvest.Summary{}, err
	}
	defer s.release()
	return s.round(ctx, s.pick(r), 1), nil
}

func (s *Scheduler) pick(r Runner) Runner {
	if r != nil {
		return r
	}
	return s.runner
}

// Monitor runs a cycle, waits Interval, and repeats until MaxRounds rounds
// have run, Stop is called, or ctx is done. There is no wait after the final
// round. Stop interrupts the wait between rounds, never a running cycle.
func (s *Scheduler) Monitor(ctx context.Context, opts Options) (Report, error) {
	stopCtx, cancel, err := s.startMonitor(ctx, opts)
	if err != nil {
		return Report{}, err
	}
	defer s.release()
	defer cancel()
	return s.monitor(ctx, stopCtx, opts), nil
}

// StartMonitor validates opts and reserves the scheduler synchronously, then
// monitors in the background. The returned channel receives the report once.
func (s *Scheduler) StartMonitor(ctx context.Context, opts Options) (<-chan Report, error) {
	stopCtx, cancel, err := s.startMonitor(ctx, opts)
	if err != nil {
		return nil, err
	}
	done := make(chan Report, 1)
	go func() {
		defer s.release()
		defer cancel()
		done <- s.monitor(ctx, stopCtx, opts)
	}()
	return done, nil
}

func (s *Scheduler) startMonitor(ctx context.Context, opts Options) (context.Context, context.CancelFunc, error) {
	if err := opts.Validate(); err != nil {
		return nil, nil, err
	}
	stopCtx, cancel := context.WithCancel(ctx)
	if err := s.acquire(func() {
		s.stop = cancel
		s.alertAtFail = opts.FailureAlertThreshold
	}); err != nil {
		cancel()
		return nil, nil, err
	}
	return stopCtx, cancel, nil
}

func (s *Scheduler) monitor(ctx, stopCtx context.Context, opts Options) Report {
	s.log.Info("Monitoring started",
		logger.Duration("interval", opts.Interval),
		logger.Int("max_rounds", opts.MaxRounds),
	)

	runner := s.pick(opts.Runner)
	var report Report
	for n := 1; opts.MaxRounds == 0 || n <= opts.MaxRounds; n++ {
		if stopCtx.Err() != nil {
			report.Stopped = true
			break
		}
		report.add(s.round(ctx, runner, n))
		if n == opts.MaxRounds {
			break
		}
		if err := s.clock.Sleep(stopCtx, opts.Interval); err != nil {
			report.Stopped = true
			break
		}
	}

	s.log.Info("Monitoring finished",
		logger.Int("rounds", report.Rounds),
		logger.Int("accepted", report.Accepted),
		logger.Int("failed_rounds", report.FailedRounds),
		logger.Bool("stopped", report.Stopped),
	)
	return report
}

// Stop asks an active Monitor to finish at the next round boundary. It
// reports whether a monitor was running.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop == nil {
		return false
	}
	s.stop()
	return true
}

// Running reports whether a run is in progress.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Last returns the most recent round summary.
func (s *Scheduler) Last() (harvest.Summary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return harvest.Summary{}, false
	}
	return *s.last, true
}

// acquire marks the scheduler running and calls init under the lock, or
// returns ErrBusy.
func (s *Scheduler) acquire(init func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrBusy
	}
	s.running = true
	init()
	return nil
}

func (s *Scheduler) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.stop = nil
}

func (s *Scheduler) round(ctx context.Context, runner Runner, n int) harvest.Summary {
	sum := runner.Run(ctx, n)

	s.mu.Lock()
	s.last = &sum
	if sum.Outcome == harvest.OutcomeFailed {
		s.failStreak++
	} else {
		s.failStreak = 0
	}
	streak, threshold := s.failStreak, s.alertAtFail
	s.mu.Unlock()

	switch sum.Outcome {
	case harvest.OutcomeFailed:
		s.log.Warn("Round failed", sum.Fields()...)
	case harvest.OutcomeNoNewItems:
		s.log.Info("Round found no new items", sum.Fields()...)
	default:
		s.log.Info("Round finished", sum.Fields()...)
	}
	if s.observer != nil {
		s.observer.ObserveRound(sum)
	}

	if threshold > 0 && streak >= threshold {
		s.log.Error("Sustained harvest failure",
			logger.Int("consecutive_failures", streak),
			logger.Int("threshold", threshold),
		)
		if s.observer != nil {
			s.observer.ObserveSustainedFailure(streak)
		}
	}
	return sum
}
