package engine

import (
	"errors"
	"time"
)

// Kind distinguishes user-controlled vehicles from autonomous ones
type Kind string

const (
	UserVehicle       Kind = "user"
	AutonomousVehicle Kind = "autonomous"

	// Vehicle parameter bounds
	MinMaxSpeed     = 120.0
	MinAcceleration = 1.0
	MinDeceleration = 1.0

	// Grid bounds accepted from scenarios
	MinLanes  = 1
	MaxLanes  = 16
	MinLength = 10
	MaxLength = 10000

	// EventBufferSize is the capacity of the grid's event channel
	EventBufferSize = 1024
)

var (
	ErrInvalidVehicle  = errors.New("invalid vehicle parameters")
	ErrSpeedBounds     = errors.New("speed out of bounds")
	ErrCellOccupied    = errors.New("cell is occupied")
	ErrOutOfBounds     = errors.New("cell is outside the grid")
	ErrInvalidScenario = errors.New("invalid scenario")
)

// Cell is a discrete (lane, x) coordinate on the grid
type Cell struct {
	Lane int `json:"lane" yaml:"lane"`
	X    int `json:"x" yaml:"x"`
}

// Add returns the cell shifted by the given offset
func (c Cell) Add(offset Cell) Cell {
	return Cell{Lane: c.Lane + offset.Lane, X: c.X + offset.X}
}

// Status is the lifecycle tag attached to a snapshot
type Status string

const (
	StatusInitialize Status = "initialize"
	StatusExecute    Status = "execute"
	StatusRelease    Status = "release"
)

// EventType names a domain event raised by the grid
type EventType string

const (
	EventCollision     EventType = "collision"
	EventUserCollision EventType = "user_collision"
	EventGoalReached   EventType = "goal_reached"
	EventReleased      EventType = "released"
)

// KnownEventTypes lists every event type a scenario may reference
var KnownEventTypes = []EventType{EventCollision, EventUserCollision, EventGoalReached, EventReleased}

// Event is a domain event forwarded to the decision layer and telemetry sinks
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	VehicleID string    `json:"vehicle_id"`
	Kind      Kind      `json:"kind"`
	Position  Cell      `json:"position"`
	Round     uint64    `json:"round"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is the flat, read-only telemetry record of one vehicle
type Snapshot struct {
	Type         Kind    `json:"type"`
	Status       Status  `json:"status"`
	ID           string  `json:"id"`
	Lane         int     `json:"lane"`
	X            int     `json:"x"`
	Goal         int     `json:"goal"`
	Speed        float64 `json:"speed"`
	MaxSpeed     float64 `json:"maxspeed"`
	Acceleration float64 `json:"acceleration"`
	Deceleration float64 `json:"deceleration"`
	Penalty      float64 `json:"penalty"`
}

// Neighbor is one perceived vehicle, relative to the perceiving vehicle
type Neighbor struct {
	Distance float64 `json:"distance"`
	ID       string  `json:"id"`
	Speed    float64 `json:"speed"`
	Lane     int     `json:"lane"`
	X        int     `json:"x"`
}

// State is a point-in-time view of a whole simulation
type State struct {
	ScenarioName  string     `json:"scenario_name"`
	Round         uint64     `json:"round"`
	Iterations    uint64     `json:"iterations"`
	Lanes         int        `json:"lanes"`
	Length        int        `json:"length"`
	Shutdown      bool       `json:"shutdown"`
	Terminated    bool       `json:"terminated"`
	Active        int        `json:"active"`
	Occupancy     int        `json:"occupancy"`
	DroppedEvents uint64     `json:"dropped_events"`
	NextVehicleID uint64     `json:"next_vehicle_id"`
	Vehicles      []Snapshot `json:"vehicles"`
}
