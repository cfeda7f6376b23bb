package engine

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/multierr"
)

const vehicleIDPrefix = "vehicle "

// VehicleParams are the creation arguments of a vehicle
type VehicleParams struct {
	Kind         Kind
	Start        Cell
	Goal         int
	Speed        float64
	MaxSpeed     float64
	Acceleration float64
	Deceleration float64
	Decider      Decider
}

// Generator creates vehicles on one grid. It owns the id counter, so ids are
// unique and never reused for the generator's lifetime.
type Generator struct {
	grid  *Grid
	shift LaneShift

	mu   sync.Mutex
	next uint64
}

// NewGenerator creates a generator for the grid. A nil shift uses GoalSideShift.
func NewGenerator(grid *Grid, shift LaneShift) *Generator {
	if shift == nil {
		shift = GoalSideShift
	}
	return &Generator{grid: grid, shift: shift}
}

// NextID returns the counter value the next vehicle will get
func (g *Generator) NextID() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.next
}

// advance moves the counter to at least next
func (g *Generator) advance(next uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if next > g.next {
		g.next = next
	}
}

// ValidateVehicleParams checks the physical bounds of a vehicle
func ValidateVehicleParams(p VehicleParams) error {
	var err error
	if p.Kind != UserVehicle && p.Kind != AutonomousVehicle {
		err = multierr.Append(err, fmt.Errorf("unknown vehicle kind %q", p.Kind))
	}
	if p.MaxSpeed < MinMaxSpeed {
		err = multierr.Append(err, fmt.Errorf("maximum speed too low: %.2f < %.0f", p.MaxSpeed, MinMaxSpeed))
	}
	if p.Acceleration < MinAcceleration {
		err = multierr.Append(err, fmt.Errorf("acceleration too low: %.2f < %.0f", p.Acceleration, MinAcceleration))
	}
	if p.Deceleration < MinDeceleration {
		err = multierr.Append(err, fmt.Errorf("deceleration too low: %.2f < %.0f", p.Deceleration, MinDeceleration))
	}
	if p.Deceleration < p.Acceleration {
		err = multierr.Append(err, fmt.Errorf("deceleration %.2f should not be lower than acceleration %.2f", p.Deceleration, p.Acceleration))
	}
	if p.Speed < 0 || p.Speed > p.MaxSpeed {
		err = multierr.Append(err, fmt.Errorf("speed %.2f outside [0, %.2f]", p.Speed, p.MaxSpeed))
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidVehicle, err)
	}
	return nil
}

// Generate validates the parameters, assigns the next id and claims the
// start cell. On any failure no vehicle exists afterwards; the id is spent
// either way.
func (g *Generator) Generate(p VehicleParams) (*Vehicle, error) {
	g.mu.Lock()
	id := g.next
	g.next++
	g.mu.Unlock()

	return g.build(vehicleIDPrefix+strconv.FormatUint(id, 10), p)
}

// Restore rebuilds a vehicle from a snapshot, keeping its id. The counter
// moves past the restored id so later vehicles never reuse it. Released
// snapshots are registered as released and do not claim a cell.
func (g *Generator) Restore(s Snapshot, decider Decider) (*Vehicle, error) {
	if n, ok := parseVehicleID(s.ID); ok {
		g.mu.Lock()
		if n >= g.next {
			g.next = n + 1
		}
		g.mu.Unlock()
	}

	p := VehicleParams{
		Kind:         s.Type,
		Start:        Cell{Lane: s.Lane, X: s.X},
		Goal:         s.Goal,
		Speed:        s.Speed,
		MaxSpeed:     s.MaxSpeed,
		Acceleration: s.Acceleration,
		Deceleration: s.Deceleration,
		Decider:      decider,
	}
	if s.Status != StatusRelease {
		return g.build(s.ID, p, s.Penalty)
	}

	v, err := g.newVehicle(s.ID, p, s.Penalty)
	if err != nil {
		return nil, err
	}
	v.position.Store(p.Start)
	v.released.Store(true)
	g.grid.adopt(v)
	return v, nil
}

func (g *Generator) build(id string, p VehicleParams, penalty ...float64) (*Vehicle, error) {
	if p.Goal == p.Start.X {
		return nil, fmt.Errorf("%s: %w: start already at goal %d", id, ErrInvalidVehicle, p.Goal)
	}
	v, err := g.newVehicle(id, p, penalty...)
	if err != nil {
		return nil, err
	}
	if err := g.grid.register(v, p.Start); err != nil {
		return nil, err
	}
	return v, nil
}

func (g *Generator) newVehicle(id string, p VehicleParams, penalty ...float64) (*Vehicle, error) {
	if err := ValidateVehicleParams(p); err != nil {
		return nil, fmt.Errorf("%s: %w", id, err)
	}
	if p.Goal < 0 || p.Goal >= g.grid.Length() {
		return nil, fmt.Errorf("%s: %w: goal %d outside [0, %d)", id, ErrInvalidVehicle, p.Goal, g.grid.Length())
	}

	v := &Vehicle{
		id:           id,
		kind:         p.Kind,
		goal:         p.Goal,
		dir:          sign(p.Goal - p.Start.X),
		maxSpeed:     p.MaxSpeed,
		acceleration: p.Acceleration,
		deceleration: p.Deceleration,
		forward:      ForwardCone(),
		backward:     BackwardCone(),
		grid:         g.grid,
		decider:      p.Decider,
		shift:        g.shift,
	}
	v.speed.Store(p.Speed)
	for _, amount := range penalty {
		v.penalty.Add(amount)
	}
	return v, nil
}

func parseVehicleID(id string) (uint64, bool) {
	if !strings.HasPrefix(id, vehicleIDPrefix) {
		return 0, false
	}
	n, err := strconv.ParseUint(strings.TrimPrefix(id, vehicleIDPrefix), 10, 64)
	return n, err == nil
}
