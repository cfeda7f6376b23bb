package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/wricardo/traffic-sim/game/engine"
)

// ErrUnknownVehicle is returned when a perception query names no vehicle of the session
var ErrUnknownVehicle = errors.New("vehicle not found")

// simulationServiceImpl implements the SimulationService interface
type simulationServiceImpl struct {
	sessions  SessionManager
	scenarios ScenarioManager
	mu        sync.RWMutex
}

// NewSimulationService creates a new simulation service instance
func NewSimulationService(sessions SessionManager, scenarios ScenarioManager) SimulationService {
	return &simulationServiceImpl{
		sessions:  sessions,
		scenarios: scenarios,
	}
}

// getScenarioID returns the scenario_id for a given display name, used for consistent API responses
func (s *simulationServiceImpl) getScenarioID(name string) string {
	available, err := s.scenarios.ListScenarios()
	if err == nil {
		for _, info := range available {
			if info.Name == name {
				return info.ScenarioID
			}
		}
	}
	if name == "" {
		return "default"
	}
	return name
}

func (s *simulationServiceImpl) info(sess *Session) *SessionInfo {
	state := sess.Simulation.Snapshot()
	return &SessionInfo{
		ID:             sess.ID,
		ScenarioName:   s.getScenarioID(sess.Scenario.Name),
		CreatedAt:      sess.CreatedAt,
		LastAccessedAt: sess.LastAccessedAt,
		State:          &state,
		Scenario:       sess.Scenario,
	}
}

// CreateSimulation creates a new simulation session
func (s *simulationServiceImpl) CreateSimulation(ctx context.Context, scenarioName string) (*SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var scenario *engine.Scenario
	var err error
	if scenarioName != "" {
		scenario, err = s.scenarios.LoadScenario(scenarioName)
		if err != nil {
			if strings.Contains(err.Error(), "scenario not found") {
				available, listErr := s.scenarios.ListScenarios()
				if listErr == nil && len(available) > 0 {
					var ids []string
					for _, info := range available {
						ids = append(ids, info.ScenarioID)
					}
					return nil, fmt.Errorf("scenario '%s' not found. Available scenarios: %v", scenarioName, ids)
				}
				return nil, fmt.Errorf("scenario '%s' not found. Use /api/scenarios to list available scenarios", scenarioName)
			}
			return nil, fmt.Errorf("failed to load scenario %s: %w", scenarioName, err)
		}
	} else {
		scenario = s.scenarios.GetDefault()
	}

	// Let session manager generate a proper 4-character ID
	sess, err := s.sessions.Create("", scenario)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	info := s.info(sess)
	if scenarioName != "" {
		info.ScenarioName = scenarioName
	}
	return info, nil
}

// GetSimulation retrieves session information
func (s *simulationServiceImpl) GetSimulation(ctx context.Context, sessionID string) (*SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}

	s.sessions.UpdateLastAccessed(sessionID)
	return s.info(sess), nil
}

// ListSimulations returns all active sessions
func (s *simulationServiceImpl) ListSimulations(ctx context.Context) ([]*SessionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := s.sessions.List()
	result := make([]*SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		result = append(result, s.info(sess))
	}
	return result, nil
}

// DeleteSimulation stops and removes a session
func (s *simulationServiceImpl) DeleteSimulation(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, err := s.sessions.Get(sessionID); err == nil {
		if err := sess.Simulation.Close(); err != nil {
			fmt.Printf("Warning: shutdown hooks failed for session %s: %v\n", sessionID, err)
		}
	}
	return s.sessions.Delete(sessionID)
}

// Step advances a simulation by up to rounds rounds. Rounds of one session
// never overlap; different sessions step independently.
func (s *simulationServiceImpl) Step(ctx context.Context, sessionID string, rounds int) (*StepResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rounds <= 0 {
		return nil, fmt.Errorf("rounds must be positive, got %d", rounds)
	}

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}
	s.sessions.UpdateLastAccessed(sessionID)

	result := &StepResult{RequestedRounds: rounds}
	if rounds > MaxStepRounds {
		result.Truncated = true
		result.Limit = MaxStepRounds
		rounds = MaxStepRounds
	}

	result.Reports = sess.Simulation.Step(ctx, rounds)
	result.RoundsExecuted = len(result.Reports)

	result.Events = sess.Simulation.DrainEvents()
	if result.Events == nil {
		result.Events = []engine.Event{}
	}
	sess.History.Append(result.Events...)
	for _, e := range result.Events {
		switch e.Type {
		case engine.EventCollision, engine.EventUserCollision:
			result.Collisions++
		case engine.EventGoalReached:
			result.GoalsReached++
		}
	}

	state := sess.Simulation.Snapshot()
	result.State = &state
	result.Shutdown = state.Shutdown
	if state.Shutdown {
		result.StopReasonCode = StopReason(sess.Scenario, &state)
	}

	// Auto-save session after stepping
	if err := s.sessions.Save(sessionID); err != nil {
		fmt.Printf("Warning: Failed to persist session %s after step: %v\n", sessionID, err)
	}

	return result, nil
}

// StopReason names the condition that shut the simulation down, or "" while
// it is still running
func StopReason(scenario *engine.Scenario, state *engine.State) string {
	switch {
	case state.Terminated:
		return StopTerminal
	case state.Iterations > 0 && state.Round >= state.Iterations:
		return StopIterations
	case scenario.StopWhenEmpty && state.Active == 0:
		return StopEmpty
	}
	return ""
}

// Reset rebuilds the simulation from its scenario. The event history is kept.
func (s *simulationServiceImpl) Reset(ctx context.Context, sessionID string) (*engine.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}

	fresh, err := sess.Simulation.Restart()
	if err != nil {
		return nil, fmt.Errorf("failed to reset simulation: %w", err)
	}
	sess.Simulation = fresh
	s.sessions.UpdateLastAccessed(sessionID)

	if err := s.sessions.Save(sessionID); err != nil {
		fmt.Printf("Warning: Failed to persist session %s after reset: %v\n", sessionID, err)
	}

	state := fresh.Snapshot()
	return &state, nil
}

// GetState returns the current simulation state
func (s *simulationServiceImpl) GetState(ctx context.Context, sessionID string) (*engine.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}

	s.sessions.UpdateLastAccessed(sessionID)
	state := sess.Simulation.Snapshot()
	return &state, nil
}

// GetEvents returns paginated event history
func (s *simulationServiceImpl) GetEvents(ctx context.Context, sessionID string, opts HistoryOptions) (*HistoryResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}

	history := sess.History.Events()
	if opts.Type != "" {
		filtered := history[:0]
		for _, e := range history {
			if e.Type == opts.Type {
				filtered = append(filtered, e)
			}
		}
		history = filtered
	}
	total := len(history)

	// Apply defaults
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Limit > 100 {
		opts.Limit = 100
	}
	if opts.Order == "" {
		opts.Order = "desc"
	}

	// Calculate pagination
	totalPages := (total + opts.Limit - 1) / opts.Limit
	if totalPages == 0 {
		totalPages = 1
	}

	start := (opts.Page - 1) * opts.Limit
	end := start + opts.Limit
	if end > total {
		end = total
	}

	var events []engine.Event
	if opts.Order == "desc" {
		// Most recent first
		for i := total - 1 - start; i >= 0 && i >= total-end; i-- {
			events = append(events, history[i])
		}
	} else if start < total {
		events = history[start:end]
	}

	if events == nil {
		events = []engine.Event{}
	}

	return &HistoryResponse{
		Events:      events,
		TotalEvents: total,
		Page:        opts.Page,
		PageSize:    opts.Limit,
		TotalPages:  totalPages,
		HasNext:     opts.Page < totalPages,
		HasPrevious: opts.Page > 1,
	}, nil
}

// Perceive returns the neighbours one vehicle currently perceives
func (s *simulationServiceImpl) Perceive(ctx context.Context, sessionID, vehicleID string, zone engine.Zone) (*PerceptionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}

	if zone == "" {
		zone = engine.ZoneForward
	}
	v, ok := sess.Simulation.Grid().Lookup(vehicleID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVehicle, vehicleID)
	}
	neighbors, err := sess.Simulation.Perceive(vehicleID, zone)
	if err != nil {
		return nil, err
	}

	return &PerceptionResult{
		VehicleID: vehicleID,
		Zone:      zone,
		Position:  v.Position(),
		Speed:     v.Speed(),
		Neighbors: neighbors,
	}, nil
}

// ListScenarios returns all available scenarios
func (s *simulationServiceImpl) ListScenarios(ctx context.Context) ([]*ScenarioInfo, error) {
	return s.scenarios.ListScenarios()
}

// LoadScenario loads a specific scenario
func (s *simulationServiceImpl) LoadScenario(ctx context.Context, scenarioName string) (*engine.Scenario, error) {
	return s.scenarios.LoadScenario(scenarioName)
}

// SaveScenario saves a scenario
func (s *simulationServiceImpl) SaveScenario(ctx context.Context, scenarioName string, scenario *engine.Scenario) error {
	return s.scenarios.SaveScenario(scenarioName, scenario)
}
