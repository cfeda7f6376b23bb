package engine

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
)

// Decider is the decision layer invoked once per vehicle per round. It reads
// the vehicle (speed, perception) and calls its actions: Accelerate,
// Decelerate, Swingout, Goback. The kernel never depends on how it decides.
type Decider interface {
	Decide(ctx context.Context, v *Vehicle) error
}

// DeciderFunc adapts a function to the Decider interface
type DeciderFunc func(ctx context.Context, v *Vehicle) error

// Decide calls f(ctx, v)
func (f DeciderFunc) Decide(ctx context.Context, v *Vehicle) error {
	return f(ctx, v)
}

// LaneShift returns the lane offset a vehicle uses to swing out. Goback uses
// the opposite offset.
type LaneShift func(v *Vehicle) int

// GoalSideShift swings out toward +1 when the goal is x=0 and toward -1
// otherwise. It assumes a two-lane road with opposite directions.
func GoalSideShift(v *Vehicle) int {
	if v.Goal() == 0 {
		return 1
	}
	return -1
}

// FixedShift always swings out by the given lane offset
func FixedShift(offset int) LaneShift {
	return func(*Vehicle) int { return offset }
}

// Vehicle is one agent on the grid. Its position is mutated only through
// Grid operations; speed, penalty and position are atomics because other
// vehicles read them through perception while the owner updates them.
type Vehicle struct {
	id           string
	kind         Kind
	goal         int
	dir          int
	maxSpeed     float64
	acceleration float64
	deceleration float64
	forward      []Cell
	backward     []Cell

	grid    *Grid
	decider Decider
	shift   LaneShift

	position atomicCell
	speed    atomicFloat
	penalty  atomicFloat
	released atomic.Bool
}

// ID returns the vehicle's unique id
func (v *Vehicle) ID() string { return v.id }

// Kind returns whether the vehicle is user-controlled or autonomous
func (v *Vehicle) Kind() Kind { return v.kind }

// Goal returns the target x coordinate
func (v *Vehicle) Goal() int { return v.goal }

// Direction is +1 when travelling toward increasing x, -1 otherwise
func (v *Vehicle) Direction() int { return v.dir }

// Position returns the current cell
func (v *Vehicle) Position() Cell { return v.position.Load() }

// Speed returns the current speed in km/h
func (v *Vehicle) Speed() float64 { return v.speed.Load() }

func (v *Vehicle) MaxSpeed() float64     { return v.maxSpeed }
func (v *Vehicle) Acceleration() float64 { return v.acceleration }
func (v *Vehicle) Deceleration() float64 { return v.deceleration }

// PenaltyValue returns the accumulated penalty
func (v *Vehicle) PenaltyValue() float64 { return v.penalty.Load() }

// Penalty adds value to the penalty accumulator
func (v *Vehicle) Penalty(value float64) {
	v.penalty.Add(value)
}

// Active reports whether the vehicle still takes part in rounds
func (v *Vehicle) Active() bool { return !v.released.Load() }

// Unit returns the kinematics shared with the rest of the grid
func (v *Vehicle) Unit() Unit { return v.grid.Unit() }

// Accelerate raises the speed by the acceleration scaled with strength,
// clamped to [0,1]. A NaN strength or exceeding the maximum speed is an
// error and leaves the speed unchanged.
func (v *Vehicle) Accelerate(strength float64) error {
	if math.IsNaN(strength) {
		return fmt.Errorf("%w: acceleration strength of %s is NaN", ErrSpeedBounds, v.id)
	}
	value := v.Speed() + v.grid.Unit().AccelerationToSpeed(v.acceleration*clamp01(strength))
	if value > v.maxSpeed {
		return fmt.Errorf("%w: cannot increment speed of %s to %.2f (max %.2f)", ErrSpeedBounds, v.id, value, v.maxSpeed)
	}
	v.speed.Store(value)
	return nil
}

// Decelerate lowers the speed by the deceleration scaled with strength,
// clamped to [0,1]. A NaN strength or dropping below zero is an error and
// leaves the speed unchanged.
func (v *Vehicle) Decelerate(strength float64) error {
	if math.IsNaN(strength) {
		return fmt.Errorf("%w: deceleration strength of %s is NaN", ErrSpeedBounds, v.id)
	}
	value := v.Speed() - v.grid.Unit().AccelerationToSpeed(v.deceleration*clamp01(strength))
	if value < 0 {
		return fmt.Errorf("%w: cannot decrement speed of %s to %.2f", ErrSpeedBounds, v.id, value)
	}
	v.speed.Store(value)
	return nil
}

// SwingoutLane returns the lane a swing-out would move to
func (v *Vehicle) SwingoutLane() int {
	return v.Position().Lane + v.shift(v)
}

// GobackLane returns the lane a return from overtaking would move to
func (v *Vehicle) GobackLane() int {
	return v.Position().Lane - v.shift(v)
}

// Swingout shifts one lane out for overtaking. A blocked shift raises the
// collision event and returns false.
func (v *Vehicle) Swingout() bool {
	if !v.grid.LaneChange(v, v.SwingoutLane()) {
		v.collide()
		return false
	}
	return true
}

// Goback returns to the original lane after overtaking. A blocked shift
// raises the collision event and returns false.
func (v *Vehicle) Goback() bool {
	if !v.grid.LaneChange(v, v.GobackLane()) {
		v.collide()
		return false
	}
	return true
}

// NextPosition is the cell the vehicle would occupy after this tick: the
// current cell advanced along x toward the goal, never past it.
func (v *Vehicle) NextPosition() Cell {
	pos := v.Position()
	cells := v.grid.Unit().SpeedToCells(v.Speed())
	remaining := abs(v.goal - pos.X)
	if cells > remaining {
		cells = remaining
	}
	return Cell{Lane: pos.Lane, X: pos.X + v.dir*cells}
}

// Step runs one decide-then-move cycle. A blocked move raises the collision
// event; it is not an error. Errors from the decider are returned to the
// scheduler after the move has been attempted.
func (v *Vehicle) Step(ctx context.Context) error {
	if !v.Active() {
		return nil
	}

	var decideErr error
	if v.decider != nil {
		decideErr = v.decider.Decide(ctx, v)
	}

	if v.Active() && !v.grid.Move(v) {
		v.collide()
	}

	if decideErr != nil {
		return fmt.Errorf("%s: %w", v.id, decideErr)
	}
	return nil
}

// Snapshot returns the flat telemetry record of the vehicle
func (v *Vehicle) Snapshot(status Status) Snapshot {
	pos := v.Position()
	return Snapshot{
		Type:         v.kind,
		Status:       status,
		ID:           v.id,
		Lane:         pos.Lane,
		X:            pos.X,
		Goal:         v.goal,
		Speed:        v.Speed(),
		MaxSpeed:     v.maxSpeed,
		Acceleration: v.acceleration,
		Deceleration: v.deceleration,
		Penalty:      v.PenaltyValue(),
	}
}

func (v *Vehicle) String() string {
	pos := v.Position()
	return fmt.Sprintf("%s[%s lane=%d x=%d goal=%d speed=%.1f]", v.id, v.kind, pos.Lane, pos.X, v.goal, v.Speed())
}

// collide routes a blocked move or lane change to the decision layer.
// User vehicles raise a user collision, autonomous vehicles a plain one.
func (v *Vehicle) collide() {
	event := EventCollision
	if v.kind == UserVehicle {
		event = EventUserCollision
	}
	v.grid.Trigger(v.grid.newEvent(event, v))
}
