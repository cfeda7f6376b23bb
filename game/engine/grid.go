package engine

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// GridOptions configures a Grid
type GridOptions struct {
	Lanes          int
	Length         int
	Unit           Unit
	Iterations     uint64      // round budget; 0 means unlimited
	TerminalEvents []EventType // events that end the simulation
	StopWhenEmpty  bool        // shut down once every vehicle is released
}

// Grid is the shared spatial index of a simulation. Every cell is an
// independent atomic slot, so claims on different cells never contend and
// two claims on the same cell never both succeed.
type Grid struct {
	lanes  int
	length int
	unit   Unit
	cells  []atomic.Pointer[Vehicle]

	iterations    uint64
	terminal      map[EventType]bool
	stopWhenEmpty bool

	round      atomic.Uint64
	terminated atomic.Bool
	active     atomic.Int64

	mu       sync.RWMutex
	vehicles []*Vehicle

	events  chan Event
	dropped atomic.Uint64
}

// NewGrid creates an empty grid
func NewGrid(opts GridOptions) (*Grid, error) {
	if opts.Lanes < MinLanes || opts.Lanes > MaxLanes {
		return nil, fmt.Errorf("%w: lanes must be between %d and %d, got %d", ErrInvalidScenario, MinLanes, MaxLanes, opts.Lanes)
	}
	if opts.Length < MinLength || opts.Length > MaxLength {
		return nil, fmt.Errorf("%w: length must be between %d and %d, got %d", ErrInvalidScenario, MinLength, MaxLength, opts.Length)
	}
	if opts.Unit == (Unit{}) {
		opts.Unit = DefaultUnit
	}
	if !opts.Unit.valid() {
		return nil, fmt.Errorf("%w: cell size and tick must be positive", ErrInvalidScenario)
	}

	terminal := make(map[EventType]bool, len(opts.TerminalEvents))
	for _, t := range opts.TerminalEvents {
		terminal[t] = true
	}

	return &Grid{
		lanes:         opts.Lanes,
		length:        opts.Length,
		unit:          opts.Unit,
		cells:         make([]atomic.Pointer[Vehicle], opts.Lanes*opts.Length),
		iterations:    opts.Iterations,
		terminal:      terminal,
		stopWhenEmpty: opts.StopWhenEmpty,
		events:        make(chan Event, EventBufferSize),
	}, nil
}

// Lanes returns the number of lanes
func (g *Grid) Lanes() int { return g.lanes }

// Length returns the number of cells per lane
func (g *Grid) Length() int { return g.length }

// Unit returns the kinematics shared by every vehicle on the grid
func (g *Grid) Unit() Unit { return g.unit }

// Inside reports whether the cell lies on the grid
func (g *Grid) Inside(c Cell) bool {
	return c.Lane >= 0 && c.Lane < g.lanes && c.X >= 0 && c.X < g.length
}

func (g *Grid) slot(c Cell) *atomic.Pointer[Vehicle] {
	return &g.cells[c.Lane*g.length+c.X]
}

// At returns the vehicle occupying the cell, or nil
func (g *Grid) At(c Cell) *Vehicle {
	if !g.Inside(c) {
		return nil
	}
	return g.slot(c).Load()
}

// Set claims the cell for v. It returns v when the claim succeeded (or v
// already held the cell), the current occupant when the cell is taken, and
// nil when the cell is outside the grid. A failed claim leaves the grid
// unchanged.
func (g *Grid) Set(v *Vehicle, c Cell) *Vehicle {
	if !g.Inside(c) {
		return nil
	}
	slot := g.slot(c)
	for {
		if slot.CompareAndSwap(nil, v) {
			return v
		}
		if current := slot.Load(); current != nil {
			return current
		}
		// the occupant left between the swap and the load
	}
}

// clear frees the cell only if v still holds it
func (g *Grid) clear(c Cell, v *Vehicle) {
	if g.Inside(c) {
		g.slot(c).CompareAndSwap(v, nil)
	}
}

// register places a freshly generated vehicle on its start cell
func (g *Grid) register(v *Vehicle, start Cell) error {
	v.position.Store(start)
	switch occupant := g.Set(v, start); {
	case occupant == nil:
		return fmt.Errorf("%w: %s start (%d,%d)", ErrOutOfBounds, v.id, start.Lane, start.X)
	case occupant != v:
		return fmt.Errorf("%w: %s start (%d,%d) held by %s", ErrCellOccupied, v.id, start.Lane, start.X, occupant.id)
	}

	g.mu.Lock()
	g.vehicles = append(g.vehicles, v)
	g.mu.Unlock()
	g.active.Add(1)
	return nil
}

// adopt records an already released vehicle without claiming a cell
func (g *Grid) adopt(v *Vehicle) {
	g.mu.Lock()
	g.vehicles = append(g.vehicles, v)
	g.mu.Unlock()
}

// Release takes the vehicle off the grid. Released vehicles no longer claim
// cells or take part in rounds. Releasing twice is a no-op.
func (g *Grid) Release(v *Vehicle) {
	if !v.released.CompareAndSwap(false, true) {
		return
	}
	g.clear(v.Position(), v)
	g.active.Add(-1)
	g.Trigger(g.newEvent(EventReleased, v))
}

// Vehicles returns every vehicle registered on the grid, released ones included
func (g *Grid) Vehicles() []*Vehicle {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Vehicle, len(g.vehicles))
	copy(out, g.vehicles)
	return out
}

// Lookup returns the registered vehicle with the given id
func (g *Grid) Lookup(id string) (*Vehicle, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, v := range g.vehicles {
		if v.id == id {
			return v, true
		}
	}
	return nil, false
}

// ActiveCount returns the number of vehicles not yet released
func (g *Grid) ActiveCount() int {
	return int(g.active.Load())
}

// Occupancy counts the occupied cells. A move claims its target before it
// frees its old cell, so during a round a moving vehicle may be counted
// twice; between rounds the count equals ActiveCount.
func (g *Grid) Occupancy() int {
	n := 0
	for i := range g.cells {
		if g.cells[i].Load() != nil {
			n++
		}
	}
	return n
}

// Round returns the number of completed rounds
func (g *Grid) Round() uint64 { return g.round.Load() }

// Tick marks the end of a round and returns the new round count
func (g *Grid) Tick() uint64 { return g.round.Add(1) }

// resume sets the round counter of a restored grid
func (g *Grid) resume(round uint64, terminated bool) {
	g.round.Store(round)
	g.terminated.Store(terminated)
}

// Iterations returns the round budget (0 = unlimited)
func (g *Grid) Iterations() uint64 { return g.iterations }

// Terminate stops the simulation at the next shutdown poll
func (g *Grid) Terminate() { g.terminated.Store(true) }

// Terminated reports whether a terminal event or Terminate ended the run
func (g *Grid) Terminated() bool { return g.terminated.Load() }

// Shutdown reports whether the simulation should stop: the round budget is
// spent, a terminal event occurred, or no vehicle is left when the grid is
// configured to stop when empty.
func (g *Grid) Shutdown() bool {
	if g.terminated.Load() {
		return true
	}
	if g.iterations > 0 && g.round.Load() >= g.iterations {
		return true
	}
	if g.stopWhenEmpty && g.active.Load() == 0 {
		g.mu.RLock()
		registered := len(g.vehicles)
		g.mu.RUnlock()
		return registered > 0
	}
	return false
}

// Trigger forwards a domain event to the event channel without blocking.
// Events that do not fit in the buffer are counted and dropped.
func (g *Grid) Trigger(event Event) {
	if g.terminal[event.Type] {
		g.terminated.Store(true)
	}
	select {
	case g.events <- event:
	default:
		g.dropped.Add(1)
	}
}

// Events returns the channel domain events are delivered on
func (g *Grid) Events() <-chan Event { return g.events }

// DrainEvents returns the events currently buffered without waiting
func (g *Grid) DrainEvents() []Event {
	var out []Event
	for {
		select {
		case e := <-g.events:
			out = append(out, e)
		default:
			return out
		}
	}
}

// Dropped returns the number of events lost to a full buffer
func (g *Grid) Dropped() uint64 { return g.dropped.Load() }

func (g *Grid) newEvent(t EventType, v *Vehicle) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		VehicleID: v.id,
		Kind:      v.kind,
		Position:  v.Position(),
		Round:     g.Round(),
		Timestamp: time.Now(),
	}
}
