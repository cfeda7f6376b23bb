package service

import (
	"context"
	"time"

	"github.com/wricardo/traffic-sim/game/engine"
)

// SimulationService defines all simulation-related operations
type SimulationService interface {
	// Session Management
	CreateSimulation(ctx context.Context, scenarioName string) (*SessionInfo, error)
	GetSimulation(ctx context.Context, sessionID string) (*SessionInfo, error)
	ListSimulations(ctx context.Context) ([]*SessionInfo, error)
	DeleteSimulation(ctx context.Context, sessionID string) error

	// Simulation Control
	Step(ctx context.Context, sessionID string, rounds int) (*StepResult, error)
	Reset(ctx context.Context, sessionID string) (*engine.State, error)

	// Inspection
	GetState(ctx context.Context, sessionID string) (*engine.State, error)
	GetEvents(ctx context.Context, sessionID string, opts HistoryOptions) (*HistoryResponse, error)
	Perceive(ctx context.Context, sessionID, vehicleID string, zone engine.Zone) (*PerceptionResult, error)

	// Scenarios
	ListScenarios(ctx context.Context) ([]*ScenarioInfo, error)
	LoadScenario(ctx context.Context, scenarioName string) (*engine.Scenario, error)
	SaveScenario(ctx context.Context, scenarioName string, scenario *engine.Scenario) error
}

// SessionManager defines session storage operations
type SessionManager interface {
	Create(id string, scenario *engine.Scenario) (*Session, error)
	Get(id string) (*Session, error)
	GetOrCreate(id string, scenario *engine.Scenario) (*Session, error)
	List() []*Session
	Delete(id string) error
	UpdateLastAccessed(id string) error
	Save(id string) error
}

// ScenarioManager handles scenario loading
type ScenarioManager interface {
	LoadScenario(name string) (*engine.Scenario, error)
	ListScenarios() ([]*ScenarioInfo, error)
	GetDefault() *engine.Scenario
	SaveScenario(name string, scenario *engine.Scenario) error
}

// Session represents a running simulation
type Session struct {
	ID             string
	Simulation     *engine.Simulation
	Scenario       *engine.Scenario
	History        *EventLog
	CreatedAt      time.Time
	LastAccessedAt time.Time
}
