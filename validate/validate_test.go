package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wricardo/traffic-sim/game/engine"
)

const validScenario = `{
	"name": "Test Scenario",
	"description": "Test scenario",
	"lanes": 2,
	"length": 50,
	"iterations": 100,
	"terminal_events": ["user_collision"],
	"populations": [
		{
			"kind": "user",
			"count": 1,
			"lanes": [1],
			"start_min": 0,
			"start_max": 4,
			"goal": 49,
			"speed": {"min": 40, "max": 40},
			"max_speed": {"min": 150, "max": 150},
			"acceleration": {"min": 5, "max": 5},
			"deceleration": {"min": 10, "max": 10}
		},
		{
			"kind": "autonomous",
			"count": 5,
			"lanes": [0],
			"start_min": 30,
			"start_max": 49,
			"goal": 0,
			"speed": {"min": 40, "max": 60},
			"max_speed": {"min": 120, "max": 140},
			"acceleration": {"min": 2, "max": 4},
			"deceleration": {"min": 6, "max": 8}
		}
	]
}`

func writeScenario(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write scenario: %v", err)
	}
	return path
}

func TestValidateScenario_ValidScenario(t *testing.T) {
	path := writeScenario(t, "test_scenario.json", validScenario)

	result := validateScenario(path)
	if !result.Valid {
		t.Errorf("Expected valid scenario, but got errors: %v", result.Errors)
	}

	if result.File != "test_scenario.json" {
		t.Errorf("Expected file name test_scenario.json, got %s", result.File)
	}

	for _, info := range []string{"✓ Name: Test Scenario", "✓ Road: 2 lanes x 50 cells", "✓ Vehicles: 6 (1 user)", "✓ Traffic: no head-on conflicts"} {
		if !contains(result.Errors, info) {
			t.Errorf("Expected %q in %v", info, result.Errors)
		}
	}
}

func TestValidateScenario_YAML(t *testing.T) {
	yamlScenario := `
name: Yaml Road
lanes: 1
length: 30
iterations: 10
populations:
  - kind: autonomous
    count: 3
    start_min: 0
    start_max: 9
    goal: 29
    speed: {min: 10, max: 20}
    max_speed: {min: 100, max: 120}
    acceleration: {min: 2, max: 3}
    deceleration: {min: 5, max: 6}
`
	result := validateScenario(writeScenario(t, "road.yaml", yamlScenario))
	if !result.Valid {
		t.Errorf("Expected valid YAML scenario, got errors: %v", result.Errors)
	}
}

func TestValidateScenario_InvalidJSON(t *testing.T) {
	result := validateScenario(writeScenario(t, "broken.json", `{"name": "test", invalid json}`))
	if result.Valid {
		t.Error("Expected invalid scenario for malformed JSON")
	}
	if len(result.Errors) == 0 || !strings.Contains(result.Errors[0], "Invalid JSON") {
		t.Errorf("Expected 'Invalid JSON' error, got: %v", result.Errors)
	}
}

func TestValidateScenario_MissingFile(t *testing.T) {
	result := validateScenario("/non/existent/file.json")
	if result.Valid {
		t.Error("Expected invalid result for missing file")
	}
	if len(result.Errors) == 0 || !strings.Contains(result.Errors[0], "Failed to read file") {
		t.Errorf("Expected 'Failed to read file' error, got: %v", result.Errors)
	}
}

func TestValidateScenario_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		replace  [2]string
		expected string
	}{
		{"Too many lanes", [2]string{`"lanes": 2`, `"lanes": 99`}, "lanes must be between"},
		{"No iterations", [2]string{`"iterations": 100`, `"iterations": 0`}, "iterations must be positive"},
		{"Goal outside road", [2]string{`"goal": 49`, `"goal": 50`}, "outside"},
		{"Unknown terminal event", [2]string{`["user_collision"]`, `["explosion"]`}, "unknown terminal event"},
		{"Too many vehicles", [2]string{`"count": 5`, `"count": 500`}, "do not fit"},
		{"Terminal event without users", [2]string{`"kind": "user"`, `"kind": "autonomous"`}, "can never fire"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := strings.Replace(validScenario, tt.replace[0], tt.replace[1], 1)
			result := validateScenario(writeScenario(t, "scenario.json", content))
			if result.Valid {
				t.Fatal("Expected invalid scenario")
			}
			found := false
			for _, err := range result.Errors {
				if strings.Contains(err, tt.expected) {
					found = true
				}
			}
			if !found {
				t.Errorf("Expected error containing %q, got: %v", tt.expected, result.Errors)
			}
		})
	}
}

func TestValidateTraffic_NoConflicts(t *testing.T) {
	result := validateTraffic(engine.DefaultScenario())
	if !result.Valid {
		t.Errorf("Expected default scenario to be free of head-on traffic, got: %v", result.Errors)
	}
}

func TestValidateTraffic_HeadOn(t *testing.T) {
	scenario := engine.DefaultScenario()
	// Oncoming traffic moved into the user's lane
	scenario.Populations[2].Lanes = []int{1}

	result := validateTraffic(scenario)
	if result.Valid {
		t.Fatal("Expected head-on conflict to be detected")
	}
	if !strings.Contains(result.Errors[0], "Traffic failure: 2 head-on conflicts") {
		t.Errorf("Expected conflict summary first, got: %v", result.Errors)
	}
	if !contains(result.Errors, "Head-on traffic in lane 1: population 1 and population 3 drive toward each other") {
		t.Errorf("Expected the conflicting populations to be named, got: %v", result.Errors)
	}
}

func TestValidateTraffic_DisjointPaths(t *testing.T) {
	scenario := engine.DefaultScenario()
	// Same lane, opposite directions, but the paths never meet
	scenario.Populations = []engine.Population{
		{Kind: engine.AutonomousVehicle, Count: 1, Lanes: []int{0}, StartMin: 0, StartMax: 10, Goal: 50},
		{Kind: engine.AutonomousVehicle, Count: 1, Lanes: []int{0}, StartMin: 150, StartMax: 199, Goal: 100},
	}

	if result := validateTraffic(scenario); !result.Valid {
		t.Errorf("Expected disjoint paths to pass, got: %v", result.Errors)
	}
}

func TestScenarioFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.yaml", "a.json", "c.yml", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	files, err := scenarioFiles(dir)
	if err != nil {
		t.Fatalf("scenarioFiles failed: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("Expected 3 scenario files, got %v", files)
	}
	if filepath.Base(files[0]) != "a.json" || filepath.Base(files[2]) != "c.yml" {
		t.Errorf("Expected sorted files, got %v", files)
	}
}

func TestBundledScenarios(t *testing.T) {
	files, err := scenarioFiles("../configs")
	if err != nil {
		t.Fatalf("scenarioFiles failed: %v", err)
	}
	if len(files) == 0 {
		t.Skip("Skipping test - no bundled scenarios")
	}
	for _, file := range files {
		if result := validateScenario(file); !result.Valid {
			t.Errorf("%s: %v", result.File, result.Errors)
		}
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
