package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Participant is one unit of work executed once per round
type Participant interface {
	ID() string
	Active() bool
	Step(ctx context.Context) error
}

// Environment is polled between rounds
type Environment interface {
	// Shutdown reports whether the loop should stop
	Shutdown() bool
	// Tick marks the end of a round and returns the new round count
	Tick() uint64
}

// Config controls how rounds are executed
type Config struct {
	// Workers bounds the number of participants stepping at once.
	// Zero or one runs the round sequentially.
	Workers    int
	Sequential bool
	Logger     *slog.Logger
}

// Report summarises one round
type Report struct {
	Round    uint64        `json:"round"`
	Executed int           `json:"executed"`
	Failed   int           `json:"failed"`
	Pruned   int           `json:"pruned"`
	Duration time.Duration `json:"duration"`
}

// Scheduler drives participants in rounds separated by a full barrier
type Scheduler struct {
	env    Environment
	cfg    Config
	logger *slog.Logger

	mu           sync.Mutex
	participants []Participant
	roundHooks   []func(Report)
	stopHooks    []func() error
	stopped      bool
}

// New creates a scheduler polling env for shutdown
func New(env Environment, cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		env:    env,
		cfg:    cfg,
		logger: logger.With("component", "scheduler"),
	}
}

// Add registers participants for the following rounds
func (s *Scheduler) Add(participants ...Participant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participants = append(s.participants, participants...)
}

// Len returns the number of participants still scheduled
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.participants)
}

// OnRound registers a hook called after every completed round
func (s *Scheduler) OnRound(hook func(Report)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roundHooks = append(s.roundHooks, hook)
}

// OnShutdown registers a hook run once when the loop terminates
func (s *Scheduler) OnShutdown(hook func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopHooks = append(s.stopHooks, hook)
}

// sequential reports whether rounds run on the calling goroutine
func (s *Scheduler) sequential() bool {
	return s.cfg.Sequential || s.cfg.Workers <= 1
}

// Round executes every active participant once and waits for all of them.
// A failing or panicking participant is logged and counted; it never aborts
// the round. Participants are not ordered within a round.
func (s *Scheduler) Round(ctx context.Context) Report {
	start := time.Now()

	s.mu.Lock()
	active := s.participants[:0:0]
	pruned := 0
	for _, p := range s.participants {
		if p.Active() {
			active = append(active, p)
		} else {
			pruned++
		}
	}
	s.participants = active
	hooks := append([]func(Report){}, s.roundHooks...)
	s.mu.Unlock()

	var failed atomic.Int64
	run := func(p Participant) {
		if err := s.execute(ctx, p); err != nil {
			failed.Add(1)
		}
	}

	if s.sequential() {
		for _, p := range active {
			run(p)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(s.cfg.Workers)
		for _, p := range active {
			g.Go(func() error {
				run(p)
				return nil
			})
		}
		_ = g.Wait()
	}

	report := Report{
		Round:    s.env.Tick(),
		Executed: len(active),
		Failed:   int(failed.Load()),
		Pruned:   pruned,
		Duration: time.Since(start),
	}
	for _, hook := range hooks {
		hook(report)
	}
	return report
}

// execute runs one participant and converts panics into errors
func (s *Scheduler) execute(ctx context.Context, p Participant) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.logger.Warn("participant panicked",
				"participant", p.ID(),
				"error", err,
				"stack", string(debug.Stack()))
		}
	}()

	if err = p.Step(ctx); err != nil {
		s.logger.Warn("participant step failed", "participant", p.ID(), "error", err)
	}
	return err
}

// Run executes rounds until the environment requests shutdown or ctx is
// cancelled. Both are only checked between rounds; a running round always
// completes. Shutdown hooks run once afterwards and their errors are
// combined.
func (s *Scheduler) Run(ctx context.Context) error {
	for !s.env.Shutdown() && ctx.Err() == nil {
		report := s.Round(ctx)
		if report.Failed > 0 {
			s.logger.Info("round finished with failures",
				"round", report.Round,
				"executed", report.Executed,
				"failed", report.Failed)
		}
	}
	return s.Stop()
}

// Stop runs the shutdown hooks. Calling Stop more than once is a no-op.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	hooks := s.stopHooks
	s.mu.Unlock()

	var err error
	for _, hook := range hooks {
		err = multierr.Append(err, hook())
	}
	return err
}
