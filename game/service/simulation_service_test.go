package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/wricardo/traffic-sim/game/engine"
	"github.com/wricardo/traffic-sim/game/service"
)

// MockSessionManager implements service.SessionManager for testing
type MockSessionManager struct {
	sessions map[string]*service.Session
	saves    int
}

func NewMockSessionManager() *MockSessionManager {
	return &MockSessionManager{
		sessions: make(map[string]*service.Session),
	}
}

func (m *MockSessionManager) Create(id string, scenario *engine.Scenario) (*service.Session, error) {
	// Generate ID if empty (mimics real session manager behavior)
	if id == "" {
		id = fmt.Sprintf("test_%d", len(m.sessions)+1)
	}

	if _, exists := m.sessions[id]; exists {
		return nil, errors.New("session already exists")
	}

	sim, err := engine.NewSimulation(scenario, engine.Options{})
	if err != nil {
		return nil, err
	}

	session := &service.Session{
		ID:             id,
		Simulation:     sim,
		Scenario:       scenario,
		History:        service.NewEventLog(),
		CreatedAt:      time.Now(),
		LastAccessedAt: time.Now(),
	}

	m.sessions[id] = session
	return session, nil
}

func (m *MockSessionManager) Get(id string) (*service.Session, error) {
	session, exists := m.sessions[id]
	if !exists {
		return nil, errors.New("session not found")
	}
	return session, nil
}

func (m *MockSessionManager) GetOrCreate(id string, scenario *engine.Scenario) (*service.Session, error) {
	if session, exists := m.sessions[id]; exists {
		return session, nil
	}
	return m.Create(id, scenario)
}

func (m *MockSessionManager) List() []*service.Session {
	result := make([]*service.Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		result = append(result, session)
	}
	return result
}

func (m *MockSessionManager) Delete(id string) error {
	if _, exists := m.sessions[id]; !exists {
		return errors.New("session not found")
	}
	delete(m.sessions, id)
	return nil
}

func (m *MockSessionManager) UpdateLastAccessed(id string) error {
	if session, exists := m.sessions[id]; exists {
		session.LastAccessedAt = time.Now()
		return nil
	}
	return errors.New("session not found")
}

func (m *MockSessionManager) Save(id string) error {
	if _, exists := m.sessions[id]; !exists {
		return errors.New("session not found")
	}
	m.saves++
	return nil
}

// MockScenarioManager implements service.ScenarioManager for testing
type MockScenarioManager struct {
	scenarios map[string]*engine.Scenario
}

// createTestScenario sends one vehicle three cells per round down a 20 cell road
func createTestScenario() *engine.Scenario {
	return &engine.Scenario{
		Name:          "Service Test",
		Description:   "Single vehicle trip",
		Lanes:         2,
		Length:        20,
		Iterations:    50,
		Sequential:    true,
		StopWhenEmpty: true,
		Populations: []engine.Population{
			{
				Kind:         engine.AutonomousVehicle,
				Count:        1,
				Lanes:        []int{0},
				StartMin:     0,
				StartMax:     0,
				Goal:         19,
				Speed:        engine.Range{Min: 150, Max: 150},
				MaxSpeed:     engine.Range{Min: 150, Max: 150},
				Acceleration: engine.Range{Min: 5, Max: 5},
				Deceleration: engine.Range{Min: 10, Max: 10},
			},
		},
	}
}

func NewMockScenarioManager() *MockScenarioManager {
	scenario := createTestScenario()
	return &MockScenarioManager{
		scenarios: map[string]*engine.Scenario{
			"test":    scenario,
			"default": scenario,
		},
	}
}

func (m *MockScenarioManager) LoadScenario(name string) (*engine.Scenario, error) {
	scenario, exists := m.scenarios[name]
	if !exists {
		return nil, errors.New("scenario not found")
	}
	return scenario, nil
}

func (m *MockScenarioManager) ListScenarios() ([]*service.ScenarioInfo, error) {
	result := make([]*service.ScenarioInfo, 0, len(m.scenarios))
	for name, scenario := range m.scenarios {
		result = append(result, &service.ScenarioInfo{
			Filename:    name + ".json",
			ScenarioID:  name,
			Name:        scenario.Name,
			Description: scenario.Description,
			Lanes:       scenario.Lanes,
			Length:      scenario.Length,
		})
	}
	return result, nil
}

func (m *MockScenarioManager) GetDefault() *engine.Scenario {
	return m.scenarios["default"]
}

func (m *MockScenarioManager) SaveScenario(name string, scenario *engine.Scenario) error {
	if err := engine.ValidateScenario(scenario); err != nil {
		return err
	}
	m.scenarios[name] = scenario
	return nil
}

func newTestService() (service.SimulationService, *MockSessionManager) {
	sessions := NewMockSessionManager()
	return service.NewSimulationService(sessions, NewMockScenarioManager()), sessions
}

// Test cases
func TestSimulationService_CreateSimulation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	tests := []struct {
		name         string
		scenarioName string
		wantErr      bool
	}{
		{"create with default scenario", "", false},
		{"create with named scenario", "test", false},
		{"create with unknown scenario", "missing", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := svc.CreateSimulation(ctx, tt.scenarioName)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error")
				}
				if !strings.Contains(err.Error(), "Available scenarios") {
					t.Errorf("Expected the error to list available scenarios, got: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if info.ID == "" {
				t.Error("Expected session ID to be set")
			}
			if info.State == nil || len(info.State.Vehicles) != 1 {
				t.Errorf("Expected state with one vehicle, got %+v", info.State)
			}
			if info.Scenario == nil || info.Scenario.Name != "Service Test" {
				t.Errorf("Expected scenario to be returned, got %+v", info.Scenario)
			}
		})
	}
}

func TestSimulationService_GetAndList(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	created, err := svc.CreateSimulation(ctx, "test")
	if err != nil {
		t.Fatalf("Failed to create simulation: %v", err)
	}

	info, err := svc.GetSimulation(ctx, created.ID)
	if err != nil {
		t.Fatalf("Failed to get simulation: %v", err)
	}
	if info.ID != created.ID {
		t.Errorf("Expected ID %s, got %s", created.ID, info.ID)
	}

	list, err := svc.ListSimulations(ctx)
	if err != nil {
		t.Fatalf("Failed to list simulations: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("Expected 1 simulation, got %d", len(list))
	}

	if _, err := svc.GetSimulation(ctx, "nope"); err == nil {
		t.Error("Expected error for unknown session")
	}
}

func TestSimulationService_Step(t *testing.T) {
	ctx := context.Background()
	svc, sessions := newTestService()

	created, err := svc.CreateSimulation(ctx, "test")
	if err != nil {
		t.Fatalf("Failed to create simulation: %v", err)
	}

	if _, err := svc.Step(ctx, created.ID, 0); err == nil {
		t.Error("Expected error for zero rounds")
	}

	result, err := svc.Step(ctx, created.ID, 3)
	if err != nil {
		t.Fatalf("Failed to step: %v", err)
	}
	if result.RoundsExecuted != 3 || len(result.Reports) != 3 || result.State.Round != 3 {
		t.Errorf("Expected 3 rounds, got %+v", result)
	}
	if result.Shutdown {
		t.Error("Expected the simulation to keep running")
	}
	if result.State.Vehicles[0].X != 9 {
		t.Errorf("Expected the vehicle at x=9, got %d", result.State.Vehicles[0].X)
	}

	// 9 -> 12 -> 15 -> 18 -> 19
	result, err = svc.Step(ctx, created.ID, 100)
	if err != nil {
		t.Fatalf("Failed to step: %v", err)
	}
	if result.RoundsExecuted != 4 {
		t.Errorf("Expected 4 rounds to the goal, got %d", result.RoundsExecuted)
	}
	if !result.Shutdown || result.StopReasonCode != service.StopEmpty {
		t.Errorf("Expected shutdown because the road is empty, got %v %q", result.Shutdown, result.StopReasonCode)
	}
	if result.GoalsReached != 1 || result.Collisions != 0 {
		t.Errorf("Expected 1 goal and no collisions, got %d and %d", result.GoalsReached, result.Collisions)
	}
	if len(result.Events) != 2 {
		t.Errorf("Expected goal_reached and released events, got %+v", result.Events)
	}
	if sessions.saves != 2 {
		t.Errorf("Expected a save per step, got %d", sessions.saves)
	}
}

func TestSimulationService_StepTruncated(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	created, err := svc.CreateSimulation(ctx, "test")
	if err != nil {
		t.Fatalf("Failed to create simulation: %v", err)
	}

	result, err := svc.Step(ctx, created.ID, service.MaxStepRounds+1)
	if err != nil {
		t.Fatalf("Failed to step: %v", err)
	}
	if !result.Truncated || result.Limit != service.MaxStepRounds || result.RequestedRounds != service.MaxStepRounds+1 {
		t.Errorf("Expected truncation to %d, got %+v", service.MaxStepRounds, result)
	}
}

func TestSimulationService_GetEvents(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	created, err := svc.CreateSimulation(ctx, "test")
	if err != nil {
		t.Fatalf("Failed to create simulation: %v", err)
	}
	if _, err := svc.Step(ctx, created.ID, 100); err != nil {
		t.Fatalf("Failed to step: %v", err)
	}

	history, err := svc.GetEvents(ctx, created.ID, service.HistoryOptions{Order: "asc"})
	if err != nil {
		t.Fatalf("Failed to get events: %v", err)
	}
	if history.TotalEvents != 2 || len(history.Events) != 2 {
		t.Fatalf("Expected 2 events, got %+v", history)
	}
	if history.Events[0].Type != engine.EventGoalReached || history.Events[1].Type != engine.EventReleased {
		t.Errorf("Expected goal_reached then released, got %s then %s", history.Events[0].Type, history.Events[1].Type)
	}
	if history.Page != 1 || history.PageSize != 20 || history.TotalPages != 1 || history.HasNext {
		t.Errorf("Unexpected pagination %+v", history)
	}

	desc, err := svc.GetEvents(ctx, created.ID, service.HistoryOptions{Limit: 1})
	if err != nil {
		t.Fatalf("Failed to get events: %v", err)
	}
	if len(desc.Events) != 1 || desc.Events[0].Type != engine.EventReleased || !desc.HasNext {
		t.Errorf("Expected the most recent event first with a next page, got %+v", desc)
	}

	filtered, err := svc.GetEvents(ctx, created.ID, service.HistoryOptions{Type: engine.EventGoalReached})
	if err != nil {
		t.Fatalf("Failed to get events: %v", err)
	}
	if filtered.TotalEvents != 1 || filtered.Events[0].Type != engine.EventGoalReached {
		t.Errorf("Expected one goal_reached event, got %+v", filtered)
	}

	empty, err := svc.GetEvents(ctx, created.ID, service.HistoryOptions{Page: 5})
	if err != nil {
		t.Fatalf("Failed to get events: %v", err)
	}
	if empty.Events == nil || len(empty.Events) != 0 {
		t.Errorf("Expected an empty page, got %+v", empty.Events)
	}
}

func TestSimulationService_Reset(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	created, err := svc.CreateSimulation(ctx, "test")
	if err != nil {
		t.Fatalf("Failed to create simulation: %v", err)
	}
	if _, err := svc.Step(ctx, created.ID, 100); err != nil {
		t.Fatalf("Failed to step: %v", err)
	}

	state, err := svc.Reset(ctx, created.ID)
	if err != nil {
		t.Fatalf("Failed to reset: %v", err)
	}
	if state.Round != 0 || state.Active != 1 || state.Shutdown {
		t.Errorf("Expected a fresh simulation, got %+v", state)
	}
	if state.Vehicles[0].X != 0 {
		t.Errorf("Expected the vehicle back at x=0, got %d", state.Vehicles[0].X)
	}

	history, err := svc.GetEvents(ctx, created.ID, service.HistoryOptions{})
	if err != nil {
		t.Fatalf("Failed to get events: %v", err)
	}
	if history.TotalEvents != 2 {
		t.Errorf("Expected history to survive the reset, got %d events", history.TotalEvents)
	}

	current, err := svc.GetState(ctx, created.ID)
	if err != nil {
		t.Fatalf("Failed to get state: %v", err)
	}
	if current.Round != 0 {
		t.Errorf("Expected round 0 after reset, got %d", current.Round)
	}
}

func TestSimulationService_Perceive(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	created, err := svc.CreateSimulation(ctx, "test")
	if err != nil {
		t.Fatalf("Failed to create simulation: %v", err)
	}

	result, err := svc.Perceive(ctx, created.ID, "vehicle 0", "")
	if err != nil {
		t.Fatalf("Failed to perceive: %v", err)
	}
	if result.Zone != engine.ZoneForward || result.Position != (engine.Cell{Lane: 0, X: 0}) {
		t.Errorf("Unexpected perception result %+v", result)
	}
	if len(result.Neighbors) != 0 {
		t.Errorf("Expected an empty road, got %+v", result.Neighbors)
	}

	if _, err := svc.Perceive(ctx, created.ID, "vehicle 9", engine.ZoneForward); !errors.Is(err, service.ErrUnknownVehicle) {
		t.Errorf("Expected ErrUnknownVehicle, got %v", err)
	}
	if _, err := svc.Perceive(ctx, created.ID, "vehicle 0", "up"); err == nil {
		t.Error("Expected error for unknown zone")
	}
}

func TestSimulationService_DeleteSimulation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	created, err := svc.CreateSimulation(ctx, "test")
	if err != nil {
		t.Fatalf("Failed to create simulation: %v", err)
	}
	if err := svc.DeleteSimulation(ctx, created.ID); err != nil {
		t.Fatalf("Failed to delete simulation: %v", err)
	}
	if _, err := svc.GetSimulation(ctx, created.ID); err == nil {
		t.Error("Expected deleted session to be gone")
	}
	if err := svc.DeleteSimulation(ctx, created.ID); err == nil {
		t.Error("Expected error deleting a missing session")
	}
}

func TestSimulationService_Scenarios(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	scenarios, err := svc.ListScenarios(ctx)
	if err != nil {
		t.Fatalf("Failed to list scenarios: %v", err)
	}
	if len(scenarios) != 2 {
		t.Errorf("Expected 2 scenarios, got %d", len(scenarios))
	}

	custom := createTestScenario()
	custom.Name = "Custom"
	if err := svc.SaveScenario(ctx, "custom", custom); err != nil {
		t.Fatalf("Failed to save scenario: %v", err)
	}
	loaded, err := svc.LoadScenario(ctx, "custom")
	if err != nil {
		t.Fatalf("Failed to load scenario: %v", err)
	}
	if loaded.Name != "Custom" {
		t.Errorf("Expected 'Custom', got '%s'", loaded.Name)
	}

	invalid := createTestScenario()
	invalid.Lanes = 0
	if err := svc.SaveScenario(ctx, "invalid", invalid); err == nil {
		t.Error("Expected error saving an invalid scenario")
	}
}

func TestEventLog_Trim(t *testing.T) {
	log := service.NewEventLog()
	for i := 0; i < service.MaxEventHistory+5; i++ {
		log.Append(engine.Event{Round: uint64(i)})
	}
	if log.Len() != service.MaxEventHistory {
		t.Errorf("Expected %d retained events, got %d", service.MaxEventHistory, log.Len())
	}
	if log.Total() != service.MaxEventHistory+5 {
		t.Errorf("Expected total %d, got %d", service.MaxEventHistory+5, log.Total())
	}
	if first := log.Events()[0]; first.Round != 5 {
		t.Errorf("Expected the oldest events to be dropped, first round is %d", first.Round)
	}
}
