package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/wricardo/traffic-sim/game/scheduler"
)

// Engine provides the main interface for simulation operations
type Engine interface {
	// Simulation control
	Step(ctx context.Context, rounds int) []scheduler.Report
	Run(ctx context.Context) error
	Shutdown() bool
	Close() error

	// Inspection
	Snapshot() State
	Perceive(vehicleID string, zone Zone) ([]Neighbor, error)
	DrainEvents() []Event
	Scenario() *Scenario
}

// DeciderFactory returns the decision layer for a new vehicle of the given kind.
// A nil Decider leaves the vehicle cruising at constant speed.
type DeciderFactory func(kind Kind) Decider

// Options configures a Simulation
type Options struct {
	Decider DeciderFactory
	Logger  *slog.Logger
}

// Simulation composes the grid, the vehicle generator and the round scheduler
// for one scenario.
type Simulation struct {
	scenario  *Scenario
	grid      *Grid
	generator *Generator
	scheduler *scheduler.Scheduler
	factory   DeciderFactory
	opts      Options
	logger    *slog.Logger

	// serialises Step and Run; rounds never overlap
	runMu sync.Mutex
}

var _ Engine = (*Simulation)(nil)

// NewSimulation validates the scenario and populates a fresh grid. The
// placement and vehicle parameters are drawn from the scenario seed, so the
// same scenario always produces the same initial state.
func NewSimulation(s *Scenario, opts Options) (*Simulation, error) {
	sim, err := newSimulation(s, opts)
	if err != nil {
		return nil, err
	}
	if err := sim.populate(); err != nil {
		return nil, err
	}
	sim.logger.Debug("simulation created",
		"scenario", s.Name,
		"vehicles", sim.grid.ActiveCount(),
		"lanes", s.Lanes,
		"length", s.Length)
	return sim, nil
}

// RestoreSimulation rebuilds a simulation from a persisted state. Vehicles
// keep their ids, positions and speeds; the round counter continues.
func RestoreSimulation(s *Scenario, state *State, opts Options) (*Simulation, error) {
	if state == nil {
		return nil, fmt.Errorf("state cannot be nil")
	}
	sim, err := newSimulation(s, opts)
	if err != nil {
		return nil, err
	}
	if state.Lanes != s.Lanes || state.Length != s.Length {
		return nil, fmt.Errorf("%w: state is %dx%d, scenario %q is %dx%d",
			ErrInvalidScenario, state.Lanes, state.Length, s.Name, s.Lanes, s.Length)
	}

	sim.grid.resume(state.Round, state.Terminated)
	for _, snap := range state.Vehicles {
		v, err := sim.generator.Restore(snap, sim.decider(snap.Type))
		if err != nil {
			return nil, fmt.Errorf("failed to restore vehicle: %w", err)
		}
		if v.Active() {
			sim.scheduler.Add(v)
		}
	}
	sim.generator.advance(state.NextVehicleID)
	return sim, nil
}

func newSimulation(s *Scenario, opts Options) (*Simulation, error) {
	if err := ValidateScenario(s); err != nil {
		return nil, err
	}

	grid, err := NewGrid(GridOptions{
		Lanes:          s.Lanes,
		Length:         s.Length,
		Unit:           s.Unit(),
		Iterations:     s.Iterations,
		TerminalEvents: s.TerminalEvents,
		StopWhenEmpty:  s.StopWhenEmpty,
	})
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("scenario", s.Name)

	return &Simulation{
		scenario:  s,
		grid:      grid,
		generator: NewGenerator(grid, s.Shift()),
		scheduler: scheduler.New(grid, scheduler.Config{
			Workers:    s.Workers,
			Sequential: s.Sequential,
			Logger:     logger,
		}),
		factory: opts.Decider,
		opts:    opts,
		logger:  logger,
	}, nil
}

func (s *Simulation) decider(kind Kind) Decider {
	if s.factory == nil {
		return nil
	}
	return s.factory(kind)
}

// populate spawns every population in declaration order. Start cells are
// drawn without replacement from each population's span.
func (s *Simulation) populate() error {
	rng := rand.New(rand.NewPCG(s.scenario.Seed, s.scenario.Seed^0x9e3779b97f4a7c15))

	for i, p := range s.scenario.Populations {
		var candidates []Cell
		for _, lane := range populationLanes(s.scenario, p) {
			for x := p.StartMin; x <= p.StartMax; x++ {
				candidates = append(candidates, Cell{Lane: lane, X: x})
			}
		}
		rng.Shuffle(len(candidates), func(a, b int) {
			candidates[a], candidates[b] = candidates[b], candidates[a]
		})

		placed := 0
		for _, c := range candidates {
			if placed == p.Count {
				break
			}
			if s.grid.At(c) != nil {
				continue
			}
			v, err := s.generator.Generate(VehicleParams{
				Kind:         p.Kind,
				Start:        c,
				Goal:         p.Goal,
				Speed:        sample(rng, p.Speed),
				MaxSpeed:     sample(rng, p.MaxSpeed),
				Acceleration: sample(rng, p.Acceleration),
				Deceleration: sample(rng, p.Deceleration),
				Decider:      s.decider(p.Kind),
			})
			if err != nil {
				return fmt.Errorf("population %d: %w", i+1, err)
			}
			s.scheduler.Add(v)
			placed++
		}
		if placed < p.Count {
			return fmt.Errorf("%w: population %d: placed %d of %d vehicles", ErrCellOccupied, i+1, placed, p.Count)
		}
	}
	return nil
}

// sample draws uniformly from [r.Min, r.Max)
func sample(rng *rand.Rand, r Range) float64 {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + rng.Float64()*(r.Max-r.Min)
}

// Step runs up to rounds rounds, stopping early once the simulation shuts
// down. It returns one report per executed round.
func (s *Simulation) Step(ctx context.Context, rounds int) []scheduler.Report {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if rounds < 0 {
		rounds = 0
	}
	reports := make([]scheduler.Report, 0, rounds)
	for i := 0; i < rounds; i++ {
		if s.grid.Shutdown() || ctx.Err() != nil {
			break
		}
		reports = append(reports, s.scheduler.Round(ctx))
	}
	if s.grid.Shutdown() {
		if err := s.scheduler.Stop(); err != nil {
			s.logger.Warn("shutdown hooks failed", "error", err)
		}
	}
	return reports
}

// Run executes rounds until the simulation shuts down or ctx is cancelled
func (s *Simulation) Run(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.scheduler.Run(ctx)
}

// OnRound registers a hook called after every round
func (s *Simulation) OnRound(hook func(scheduler.Report)) {
	s.scheduler.OnRound(hook)
}

// OnShutdown registers a hook run once when the simulation stops
func (s *Simulation) OnShutdown(hook func() error) {
	s.scheduler.OnShutdown(hook)
}

// Restart closes the simulation and returns a fresh one built from the same
// scenario and options
func (s *Simulation) Restart() (*Simulation, error) {
	if err := s.Close(); err != nil {
		s.logger.Warn("shutdown hooks failed on restart", "error", err)
	}
	return NewSimulation(s.scenario, s.opts)
}

// Shutdown reports whether the simulation has finished
func (s *Simulation) Shutdown() bool {
	return s.grid.Shutdown()
}

// Close ends the simulation and runs the shutdown hooks
func (s *Simulation) Close() error {
	s.grid.Terminate()
	return s.scheduler.Stop()
}

// Snapshot returns the current state of the simulation. Vehicles are listed
// in creation order.
func (s *Simulation) Snapshot() State {
	round := s.grid.Round()
	vehicles := s.grid.Vehicles()
	snaps := make([]Snapshot, 0, len(vehicles))
	for _, v := range vehicles {
		status := StatusExecute
		switch {
		case !v.Active():
			status = StatusRelease
		case round == 0:
			status = StatusInitialize
		}
		snaps = append(snaps, v.Snapshot(status))
	}

	return State{
		ScenarioName:  s.scenario.Name,
		Round:         round,
		Iterations:    s.grid.Iterations(),
		Lanes:         s.grid.Lanes(),
		Length:        s.grid.Length(),
		Shutdown:      s.grid.Shutdown(),
		Terminated:    s.grid.Terminated(),
		Active:        s.grid.ActiveCount(),
		Occupancy:     s.grid.Occupancy(),
		DroppedEvents: s.grid.Dropped(),
		NextVehicleID: s.generator.NextID(),
		Vehicles:      snaps,
	}
}

// Perceive returns what the vehicle sees in the given zone
func (s *Simulation) Perceive(vehicleID string, zone Zone) ([]Neighbor, error) {
	v, ok := s.grid.Lookup(vehicleID)
	if !ok {
		return nil, fmt.Errorf("vehicle %q not found", vehicleID)
	}
	if zone != ZoneForward && zone != ZoneBackward {
		return nil, fmt.Errorf("unknown zone %q", zone)
	}
	return v.Perceive(zone), nil
}

// Events returns the channel domain events are delivered on
func (s *Simulation) Events() <-chan Event { return s.grid.Events() }

// DrainEvents returns the buffered events without waiting
func (s *Simulation) DrainEvents() []Event { return s.grid.DrainEvents() }

// Grid returns the underlying grid
func (s *Simulation) Grid() *Grid { return s.grid }

// Generator returns the vehicle generator of the simulation
func (s *Simulation) Generator() *Generator { return s.generator }

// Scenario returns the scenario the simulation was built from
func (s *Simulation) Scenario() *Scenario { return s.scenario }

// Spawn adds a vehicle while the simulation is paused between rounds
func (s *Simulation) Spawn(p VehicleParams) (*Vehicle, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if p.Decider == nil {
		p.Decider = s.decider(p.Kind)
	}
	v, err := s.generator.Generate(p)
	if err != nil {
		return nil, err
	}
	s.scheduler.Add(v)
	return v, nil
}
