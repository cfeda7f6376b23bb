package session

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wricardo/traffic-sim/game/config"
	"github.com/wricardo/traffic-sim/game/engine"
	"github.com/wricardo/traffic-sim/game/service"
)

func newTestSession(t *testing.T, id string, scenario *engine.Scenario) *service.Session {
	t.Helper()
	sim, err := buildSimulation(scenario, nil)
	if err != nil {
		t.Fatalf("Failed to create simulation: %v", err)
	}
	return &service.Session{
		ID:             id,
		Simulation:     sim,
		Scenario:       scenario,
		History:        service.NewEventLog(),
		CreatedAt:      time.Now(),
		LastAccessedAt: time.Now(),
	}
}

// sameVehicles compares the restorable part of two vehicle lists
func sameVehicles(t *testing.T, want, got []engine.Snapshot) {
	t.Helper()
	if len(want) != len(got) {
		t.Fatalf("Expected %d vehicles, got %d", len(want), len(got))
	}
	for i := range want {
		w, g := want[i], got[i]
		if w.ID != g.ID || w.Lane != g.Lane || w.X != g.X || w.Speed != g.Speed || w.Penalty != g.Penalty {
			t.Errorf("Vehicle %d not restored: want %+v, got %+v", i, w, g)
		}
		if (w.Status == engine.StatusRelease) != (g.Status == engine.StatusRelease) {
			t.Errorf("Vehicle %s release status not restored", w.ID)
		}
	}
}

func TestFilePersistence(t *testing.T) {
	tempDir := t.TempDir()

	scenarioManager, err := config.NewManager("../../configs")
	if err != nil {
		t.Fatalf("Failed to create scenario manager: %v", err)
	}

	persistence, err := NewFilePersistence(tempDir, scenarioManager)
	if err != nil {
		t.Fatalf("Failed to create file persistence: %v", err)
	}

	session := newTestSession(t, "test1", scenarioManager.GetDefault())

	t.Run("Save and Load Session", func(t *testing.T) {
		if err := persistence.Save(session); err != nil {
			t.Fatalf("Failed to save session: %v", err)
		}
		if !persistence.Exists("test1") {
			t.Error("Session file should exist after save")
		}

		loaded, err := persistence.Load("test1")
		if err != nil {
			t.Fatalf("Failed to load session: %v", err)
		}
		if loaded.ID != session.ID {
			t.Errorf("Expected ID %s, got %s", session.ID, loaded.ID)
		}
		if loaded.Scenario.Name != session.Scenario.Name {
			t.Errorf("Expected scenario %s, got %s", session.Scenario.Name, loaded.Scenario.Name)
		}
		sameVehicles(t, session.Simulation.Snapshot().Vehicles, loaded.Simulation.Snapshot().Vehicles)
	})

	t.Run("Save State Changes", func(t *testing.T) {
		session.Simulation.Step(context.Background(), 10)
		session.History.Append(session.Simulation.DrainEvents()...)

		if err := persistence.Save(session); err != nil {
			t.Fatalf("Failed to save updated session: %v", err)
		}

		loaded, err := persistence.Load("test1")
		if err != nil {
			t.Fatalf("Failed to load updated session: %v", err)
		}

		want := session.Simulation.Snapshot()
		got := loaded.Simulation.Snapshot()
		if got.Round != want.Round {
			t.Errorf("Expected round %d, got %d", want.Round, got.Round)
		}
		if got.NextVehicleID != want.NextVehicleID {
			t.Errorf("Expected next vehicle id %d, got %d", want.NextVehicleID, got.NextVehicleID)
		}
		sameVehicles(t, want.Vehicles, got.Vehicles)
		if loaded.History.Len() != session.History.Len() {
			t.Errorf("Expected %d events, got %d", session.History.Len(), loaded.History.Len())
		}
	})

	t.Run("Restored Session Keeps Running", func(t *testing.T) {
		loaded, err := persistence.Load("test1")
		if err != nil {
			t.Fatalf("Failed to load session: %v", err)
		}
		before := loaded.Simulation.Snapshot().Round
		reports := loaded.Simulation.Step(context.Background(), 5)
		if len(reports) == 0 && !loaded.Simulation.Shutdown() {
			t.Fatal("Expected the restored simulation to step")
		}
		if after := loaded.Simulation.Snapshot().Round; after != before+uint64(len(reports)) {
			t.Errorf("Expected round %d, got %d", before+uint64(len(reports)), after)
		}
	})

	t.Run("List All Sessions", func(t *testing.T) {
		session2 := newTestSession(t, "test2", scenarioManager.GetDefault())
		if err := persistence.Save(session2); err != nil {
			t.Fatalf("Failed to save second session: %v", err)
		}

		sessionIDs, err := persistence.ListAll()
		if err != nil {
			t.Fatalf("Failed to list sessions: %v", err)
		}

		found := make(map[string]bool)
		for _, id := range sessionIDs {
			found[id] = true
		}
		if len(sessionIDs) != 2 || !found["test1"] || !found["test2"] {
			t.Errorf("Expected test1 and test2, got %v", sessionIDs)
		}
	})

	t.Run("Delete Session", func(t *testing.T) {
		if err := persistence.Delete("test2"); err != nil {
			t.Fatalf("Failed to delete session: %v", err)
		}
		if persistence.Exists("test2") {
			t.Error("Session should not exist after delete")
		}
		if _, err := persistence.Load("test2"); err != ErrSessionNotFound {
			t.Errorf("Expected ErrSessionNotFound, got %v", err)
		}
	})

	t.Run("Error Cases", func(t *testing.T) {
		if _, err := persistence.Load("nonexistent"); err == nil {
			t.Error("Should get error when loading non-existent session")
		}
		if err := persistence.Delete("nonexistent"); err == nil {
			t.Error("Should get error when deleting non-existent session")
		}
		if err := persistence.Save(nil); err == nil {
			t.Error("Should get error when saving nil session")
		}

		os.WriteFile(filepath.Join(tempDir, "broken.json"), []byte("{"), 0644)
		if _, err := persistence.Load("broken"); err == nil {
			t.Error("Should get error when loading a malformed session")
		}
	})
}

func TestFilePersistence_ScenarioFallback(t *testing.T) {
	scenarioDir := t.TempDir()
	sessionsDir := t.TempDir()

	scenarioManager, err := config.NewManager(scenarioDir)
	if err != nil {
		t.Fatalf("Failed to create scenario manager: %v", err)
	}

	scenario := createTestScenario()
	if err := scenarioManager.SaveScenario("temporary", scenario); err != nil {
		t.Fatalf("Failed to save scenario: %v", err)
	}

	persistence, err := NewFilePersistence(sessionsDir, scenarioManager)
	if err != nil {
		t.Fatalf("Failed to create file persistence: %v", err)
	}

	session := newTestSession(t, "orphan", scenario)
	if err := persistence.Save(session); err != nil {
		t.Fatalf("Failed to save session: %v", err)
	}

	// Remove the scenario file so only the embedded copy remains
	if err := os.Remove(filepath.Join(scenarioDir, "temporary.json")); err != nil {
		t.Fatalf("Failed to remove scenario: %v", err)
	}
	if err := scenarioManager.RefreshCache(); err != nil {
		t.Fatalf("Failed to refresh cache: %v", err)
	}

	loaded, err := persistence.Load("orphan")
	if err != nil {
		t.Fatalf("Expected the embedded scenario to be used, got %v", err)
	}
	if loaded.Scenario.Name != scenario.Name || loaded.Scenario.Lanes != scenario.Lanes {
		t.Errorf("Unexpected scenario %+v", loaded.Scenario)
	}
}

func TestFilePersistenceFileStructure(t *testing.T) {
	tempDir := t.TempDir()

	scenarioManager, err := config.NewManager("../../configs")
	if err != nil {
		t.Fatalf("Failed to create scenario manager: %v", err)
	}

	persistence, err := NewFilePersistence(tempDir, scenarioManager)
	if err != nil {
		t.Fatalf("Failed to create file persistence: %v", err)
	}

	session := newTestSession(t, "file_test", scenarioManager.GetDefault())
	if err := persistence.Save(session); err != nil {
		t.Fatalf("Failed to save session: %v", err)
	}

	expectedFile := filepath.Join(tempDir, "file_test.json")
	data, err := os.ReadFile(expectedFile)
	if err != nil {
		t.Fatalf("Failed to read session file: %v", err)
	}

	content := string(data)
	expectedFields := []string{"\"id\"", "\"scenario_id\"", "\"scenario\"", "\"created_at\"", "\"state\""}
	for _, field := range expectedFields {
		if !strings.Contains(content, field) {
			t.Errorf("Session file should contain field %s", field)
		}
	}

	var persisted PersistedSessionData
	if err := json.Unmarshal(data, &persisted); err != nil {
		t.Fatalf("Session file should contain valid JSON: %v", err)
	}
	if persisted.ScenarioID != "classic" {
		t.Errorf("Expected scenario id 'classic', got '%s'", persisted.ScenarioID)
	}

	if _, err := os.Stat(expectedFile + ".tmp"); !os.IsNotExist(err) {
		t.Error("Temporary file should not be left behind")
	}
}
