package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wricardo/traffic-sim/game/engine"
	"github.com/wricardo/traffic-sim/game/service"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// singleVehicleScenario sends one vehicle down an empty lane
func singleVehicleScenario() *engine.Scenario {
	return &engine.Scenario{
		Name:          "Single",
		Lanes:         1,
		Length:        20,
		Iterations:    50,
		Sequential:    true,
		StopWhenEmpty: true,
		Populations: []engine.Population{
			{
				Kind:         engine.AutonomousVehicle,
				Count:        1,
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

func TestAnalyze_RunsToCompletion(t *testing.T) {
	report, err := analyze(context.Background(), singleVehicleScenario(), quietLogger())
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}

	if report.StopReason != service.StopEmpty {
		t.Errorf("Expected stop reason %s, got %s", service.StopEmpty, report.StopReason)
	}
	if report.GoalsReached != 1 || report.Released != 1 {
		t.Errorf("Expected one arrival and one release, got %d/%d", report.GoalsReached, report.Released)
	}
	if report.Active != 0 {
		t.Errorf("Expected no active vehicles, got %d", report.Active)
	}
	if report.Rounds == 0 || report.Rounds >= 50 {
		t.Errorf("Expected the run to end early, got %d rounds", report.Rounds)
	}
	if report.Collisions != 0 || report.FailedSteps != 0 {
		t.Errorf("Expected a clean run, got %+v", report)
	}
}

func TestAnalyze_IterationLimit(t *testing.T) {
	scenario := engine.DefaultScenario()
	scenario.Iterations = 5
	scenario.TerminalEvents = nil

	report, err := analyze(context.Background(), scenario, quietLogger())
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if report.Rounds != 5 {
		t.Errorf("Expected 5 rounds, got %d", report.Rounds)
	}
	if report.StopReason != service.StopIterations {
		t.Errorf("Expected stop reason %s, got %s", service.StopIterations, report.StopReason)
	}
	if report.Vehicles != 25 {
		t.Errorf("Expected 25 vehicles, got %d", report.Vehicles)
	}
}

func TestAnalyze_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := analyze(ctx, engine.DefaultScenario(), quietLogger())
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if report.Rounds != 0 || report.StopReason != StopInterrupted {
		t.Errorf("Expected an interrupted run with no rounds, got %+v", report)
	}
}

func TestAnalyze_InvalidScenario(t *testing.T) {
	scenario := singleVehicleScenario()
	scenario.Lanes = 0

	if _, err := analyze(context.Background(), scenario, quietLogger()); err == nil {
		t.Error("Expected error for invalid scenario")
	}
}

func TestResolveScenario(t *testing.T) {
	tests := []struct {
		name         string
		scenario     string
		expectedName string
		expectError  bool
	}{
		{"Built-in default", "", "default", false},
		{"By id", "rush_hour", "Rush Hour", false},
		{"By yaml id", "highway", "Highway", false},
		{"By path", "../../configs/classic.json", "Classic", false},
		{"Unknown id", "nope", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scenario, err := resolveScenario(tt.scenario, "../../configs")
			if tt.expectError {
				if err == nil {
					t.Error("Expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("resolveScenario failed: %v", err)
			}
			if scenario.Name != tt.expectedName {
				t.Errorf("Expected scenario %q, got %q", tt.expectedName, scenario.Name)
			}
		})
	}
}

func TestWriteScenario(t *testing.T) {
	for _, name := range []string{"generated.json", "generated.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			if err := writeScenario(path, engine.DefaultScenario()); err != nil {
				t.Fatalf("writeScenario failed: %v", err)
			}

			loaded, err := engine.LoadScenario(path)
			if err != nil {
				t.Fatalf("Generated scenario does not load: %v", err)
			}
			if loaded.VehicleCount() != engine.DefaultScenario().VehicleCount() {
				t.Errorf("Expected %d vehicles, got %d", engine.DefaultScenario().VehicleCount(), loaded.VehicleCount())
			}
		})
	}
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newCommand()
	cmd.Writer = &out
	err := cmd.Run(context.Background(), append([]string{"analyze"}, args...))
	return out.String(), err
}

func TestCommand_Report(t *testing.T) {
	output, err := runCommand(t, "--scenario", "rush_hour", "--config-dir", "../../configs", "--iterations", "10", "--workers", "2")
	if err != nil {
		t.Fatalf("command failed: %v", err)
	}

	for _, expected := range []string{"=== Rush Hour ===", "Road: 1 lanes x 100 cells, 40 vehicles", "Rounds: 10/10", "Stop reason: iterations"} {
		if !strings.Contains(output, expected) {
			t.Errorf("Expected %q in output, got: %s", expected, output)
		}
	}
}

func TestCommand_JSON(t *testing.T) {
	output, err := runCommand(t, "--iterations", "3", "--sequential", "--json")
	if err != nil {
		t.Fatalf("command failed: %v", err)
	}

	var report Report
	if err := json.Unmarshal([]byte(output), &report); err != nil {
		t.Fatalf("Expected JSON report, got %q: %v", output, err)
	}
	if report.Scenario != "default" || report.Rounds == 0 || report.Rounds > 3 {
		t.Errorf("Unexpected report %+v", report)
	}
}

func TestCommand_GenerateConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.yml")
	output, err := runCommand(t, "--generate-config", path)
	if err != nil {
		t.Fatalf("command failed: %v", err)
	}
	if !strings.Contains(output, "Wrote default scenario") {
		t.Errorf("Unexpected output %q", output)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Expected %s to exist: %v", path, err)
	}
}

func TestCommand_List(t *testing.T) {
	output, err := runCommand(t, "--list", "--config-dir", "../../configs")
	if err != nil {
		t.Fatalf("command failed: %v", err)
	}
	for _, id := range []string{"classic", "highway", "rush_hour"} {
		if !strings.Contains(output, id) {
			t.Errorf("Expected %q in listing, got: %s", id, output)
		}
	}
}

func TestCommand_NegativeWorkers(t *testing.T) {
	if _, err := runCommand(t, "--workers", "-1"); err == nil {
		t.Error("Expected error for negative workers")
	}
}

func TestReportTally(t *testing.T) {
	var r Report
	r.tally([]engine.Event{
		{Type: engine.EventCollision},
		{Type: engine.EventCollision},
		{Type: engine.EventUserCollision},
		{Type: engine.EventGoalReached},
		{Type: engine.EventReleased},
	})

	if r.Collisions != 2 || r.UserCollisions != 1 || r.GoalsReached != 1 || r.Released != 1 {
		t.Errorf("Unexpected tally %+v", r)
	}
}
