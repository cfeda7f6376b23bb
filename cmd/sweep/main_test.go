package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wricardo/traffic-sim/api"
	"github.com/wricardo/traffic-sim/game/config"
	"github.com/wricardo/traffic-sim/game/engine"
	"github.com/wricardo/traffic-sim/game/service"
	"github.com/wricardo/traffic-sim/game/session"
)

func laneScenario() *engine.Scenario {
	return &engine.Scenario{
		Name:          "Lane",
		Lanes:         1,
		Length:        30,
		Iterations:    200,
		Sequential:    true,
		StopWhenEmpty: true,
		Populations: []engine.Population{
			{
				Kind:         engine.AutonomousVehicle,
				Count:        1,
				StartMin:     0,
				StartMax:     9,
				Goal:         29,
				Speed:        engine.Range{Min: 40, Max: 60},
				MaxSpeed:     engine.Range{Min: 150, Max: 150},
				Acceleration: engine.Range{Min: 5, Max: 5},
				Deceleration: engine.Range{Min: 10, Max: 10},
			},
		},
	}
}

func setupServer(t *testing.T) (*httptest.Server, service.SimulationService, string) {
	t.Helper()
	dir := t.TempDir()
	scenarios, err := config.NewManager(dir)
	if err != nil {
		t.Fatalf("Failed to create scenario manager: %v", err)
	}
	if err := scenarios.SaveScenario("lane", laneScenario()); err != nil {
		t.Fatalf("Failed to save scenario: %v", err)
	}

	svc := service.NewSimulationService(session.NewManager(), scenarios)
	ts := httptest.NewServer(api.NewServer(svc, nil))
	t.Cleanup(ts.Close)
	return ts, svc, dir
}

func TestSweep(t *testing.T) {
	ts, svc, dir := setupServer(t)

	results, err := sweep(NewClient(ts.URL), "lane", 1, 3, 5, 1000)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}

	for i, r := range results {
		if r.Seed != uint64(i+1) {
			t.Errorf("Expected seed %d, got %d", i+1, r.Seed)
		}
		if r.StopReason != service.StopEmpty || r.GoalsReached != 1 || r.Active != 0 {
			t.Errorf("Seed %d: expected the vehicle to arrive, got %+v", r.Seed, r)
		}
		if _, err := os.Stat(filepath.Join(dir, r.ScenarioID+".json")); err != nil {
			t.Errorf("Expected scenario file for %s: %v", r.ScenarioID, err)
		}
	}

	// Sessions are cleaned up after each seed
	sessions, err := svc.ListSimulations(context.Background())
	if err != nil {
		t.Fatalf("ListSimulations failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("Expected no sessions left, got %d", len(sessions))
	}
}

func TestSweep_MaxRounds(t *testing.T) {
	ts, _, _ := setupServer(t)

	results, err := sweep(NewClient(ts.URL), "lane", 7, 1, 5, 2)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if results[0].StopReason != "max_rounds" || results[0].Rounds != 2 {
		t.Errorf("Expected the run to stop after 2 rounds, got %+v", results[0])
	}
}

func TestSweep_UnknownScenario(t *testing.T) {
	ts, _, _ := setupServer(t)

	if _, err := sweep(NewClient(ts.URL), "missing", 1, 1, 5, 10); err == nil {
		t.Error("Expected error for unknown scenario")
	}
}

func TestRank(t *testing.T) {
	results := []Result{
		{Seed: 1, Collisions: 4, Rounds: 10},
		{Seed: 2, Collisions: 1, Rounds: 30},
		{Seed: 3, Collisions: 1, Rounds: 20},
	}

	ranked := rank(results)
	if ranked[0].Seed != 3 || ranked[1].Seed != 2 || ranked[2].Seed != 1 {
		t.Errorf("Unexpected order %+v", ranked)
	}
	if results[0].Seed != 1 {
		t.Error("rank must not reorder its input")
	}
}

func TestPrintResults(t *testing.T) {
	var out bytes.Buffer
	printResults(&out, []Result{{Seed: 5, Rounds: 12, Collisions: 2, GoalsReached: 3, StopReason: "empty"}, {Seed: 6}})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected header and 2 rows, got %q", out.String())
	}
	if !strings.HasPrefix(lines[1], "5 ") || !strings.HasSuffix(lines[1], "empty") {
		t.Errorf("Unexpected row %q", lines[1])
	}
	if !strings.HasSuffix(lines[2], "-") {
		t.Errorf("Expected placeholder stop reason, got %q", lines[2])
	}
}
