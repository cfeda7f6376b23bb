package service

import (
	"time"

	"github.com/wricardo/traffic-sim/game/engine"
	"github.com/wricardo/traffic-sim/game/scheduler"
)

// MaxStepRounds caps the rounds a single Step call may run
const MaxStepRounds = 1000

// Stop reason codes reported by Step
const (
	StopIterations = "iterations"
	StopTerminal   = "terminal_event"
	StopEmpty      = "empty"
)

// SessionInfo provides information about a simulation session
type SessionInfo struct {
	ID             string           `json:"id"`
	ScenarioName   string           `json:"scenario_name"`
	CreatedAt      time.Time        `json:"created_at"`
	LastAccessedAt time.Time        `json:"last_accessed_at"`
	State          *engine.State    `json:"state"`
	Scenario       *engine.Scenario `json:"scenario"`
}

// StepResult contains the result of advancing a simulation
type StepResult struct {
	RequestedRounds int                `json:"requested_rounds"`
	RoundsExecuted  int                `json:"rounds_executed"`
	Truncated       bool               `json:"truncated,omitempty"`
	Limit           int                `json:"limit,omitempty"`
	Reports         []scheduler.Report `json:"reports"`
	Events          []engine.Event     `json:"events"`
	State           *engine.State      `json:"state"`
	Shutdown        bool               `json:"shutdown"`
	StopReasonCode  string             `json:"stop_reason_code,omitempty"` // iterations|terminal_event|empty
	Collisions      int                `json:"collisions"`
	GoalsReached    int                `json:"goals_reached"`
}

// HistoryOptions configures event history retrieval
type HistoryOptions struct {
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
	Order string           `json:"order"` // "asc" or "desc"
	Type  engine.EventType `json:"type"`  // optional filter
}

// HistoryResponse contains paginated event history
type HistoryResponse struct {
	Events      []engine.Event `json:"events"`
	TotalEvents int            `json:"total_events"`
	Page        int            `json:"page"`
	PageSize    int            `json:"page_size"`
	TotalPages  int            `json:"total_pages"`
	HasNext     bool           `json:"has_next"`
	HasPrevious bool           `json:"has_previous"`
}

// PerceptionResult is what one vehicle currently sees in one zone
type PerceptionResult struct {
	VehicleID string            `json:"vehicle_id"`
	Zone      engine.Zone       `json:"zone"`
	Position  engine.Cell       `json:"position"`
	Speed     float64           `json:"speed"`
	Neighbors []engine.Neighbor `json:"neighbors"`
}

// ScenarioInfo provides information about a scenario file
type ScenarioInfo struct {
	Filename    string `json:"filename"`
	ScenarioID  string `json:"scenario_id"` // The identifier to use for session creation
	Name        string `json:"name"`        // Display name
	Description string `json:"description"`
	Lanes       int    `json:"lanes"`
	Length      int    `json:"length"`
	Iterations  uint64 `json:"iterations"`
	Vehicles    int    `json:"vehicles"`
}
