// Command validate provides a small CLI that validates scenario files
// (.json, .yaml, .yml) in a scenario directory, ../configs by default. It
// checks:
//   - JSON/YAML structure
//   - Road dimensions, iteration limit and vehicle parameter bounds
//   - Population capacity against the start spans and the whole road
//   - Terminal events that can actually fire
//   - Head-on traffic: populations driving toward each other in one lane
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wricardo/traffic-sim/game/engine"
)

// ValidationResult captures the outcome of validating a single file.
// If Valid is true, Errors contains informational messages; otherwise it
// accumulates the validation errors that were found.
type ValidationResult struct {
	File   string
	Valid  bool
	Errors []string
}

// validateScenario loads and validates a single scenario file
func validateScenario(filePath string) ValidationResult {
	result := ValidationResult{
		File:   filepath.Base(filePath),
		Valid:  true,
		Errors: []string{},
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("Failed to read file: %v", err))
		return result
	}

	scenario, err := engine.DecodeScenario(data, engine.FormatOf(filePath))
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("Invalid %s: %v", strings.ToUpper(engine.FormatOf(filePath)), err))
		return result
	}

	if err := engine.ValidateScenario(scenario); err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	// Terminal events must be able to fire
	users := 0
	for _, p := range scenario.Populations {
		if p.Kind == engine.UserVehicle {
			users += p.Count
		}
	}
	for _, t := range scenario.TerminalEvents {
		if t == engine.EventUserCollision && users == 0 {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("Terminal event %s can never fire: scenario has no user vehicles", t))
		}
	}

	if result.Valid {
		traffic := validateTraffic(scenario)
		result.Errors = append(result.Errors, traffic.Errors...)
		if !traffic.Valid {
			result.Valid = false
		}
	}

	// Add informational data
	if result.Valid {
		result.Errors = append(result.Errors, fmt.Sprintf("✓ Name: %s", scenario.Name))
		result.Errors = append(result.Errors, fmt.Sprintf("✓ Road: %d lanes x %d cells", scenario.Lanes, scenario.Length))
		result.Errors = append(result.Errors, fmt.Sprintf("✓ Vehicles: %d (%d user)", scenario.VehicleCount(), users))
		result.Errors = append(result.Errors, fmt.Sprintf("✓ Density: %.1f%%", 100*float64(scenario.VehicleCount())/float64(scenario.Lanes*scenario.Length)))
		result.Errors = append(result.Errors, fmt.Sprintf("✓ Iterations: %d", scenario.Iterations))
	}

	return result
}

// validateTraffic reports lanes where two populations drive toward each
// other with overlapping paths. Such traffic can only collide head-on, since
// overtaking uses the neighbouring lane and returns.
func validateTraffic(scenario *engine.Scenario) ValidationResult {
	result := ValidationResult{
		Valid:  true,
		Errors: []string{},
	}

	type path struct {
		population int
		from, to   int // inclusive x span swept by the population
	}
	up := make(map[int][]path)
	down := make(map[int][]path)

	for i, p := range scenario.Populations {
		if p.Count == 0 {
			continue
		}
		lanes := p.Lanes
		if len(lanes) == 0 {
			lanes = make([]int, scenario.Lanes)
			for l := range lanes {
				lanes[l] = l
			}
		}
		for _, lane := range lanes {
			if p.Goal > p.StartMax {
				up[lane] = append(up[lane], path{population: i + 1, from: p.StartMin, to: p.Goal})
			} else {
				down[lane] = append(down[lane], path{population: i + 1, from: p.Goal, to: p.StartMax})
			}
		}
	}

	lanes := make([]int, 0, len(up))
	for lane := range up {
		lanes = append(lanes, lane)
	}
	sort.Ints(lanes)

	conflicts := 0
	for _, lane := range lanes {
		for _, a := range up[lane] {
			for _, b := range down[lane] {
				if a.from <= b.to && b.from <= a.to {
					conflicts++
					result.Errors = append(result.Errors, fmt.Sprintf(
						"Head-on traffic in lane %d: population %d and population %d drive toward each other", lane, a.population, b.population))
				}
			}
		}
	}

	if conflicts > 0 {
		result.Valid = false
		result.Errors = append([]string{fmt.Sprintf("Traffic failure: %d head-on conflicts", conflicts)}, result.Errors...)
	} else {
		result.Errors = append(result.Errors, "✓ Traffic: no head-on conflicts")
	}

	return result
}

// scenarioFiles lists the scenario files in dir, sorted by name
func scenarioFiles(dir string) ([]string, error) {
	var files []string
	for _, pattern := range []string{"*.json", "*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	sort.Strings(files)
	return files, nil
}

// main scans the scenario directory (first argument, default ../configs),
// validates every file and exits with non-zero status if any are invalid.
func main() {
	scenarioDir := "../configs"
	if len(os.Args) > 1 {
		scenarioDir = os.Args[1]
	}
	files, err := scenarioFiles(scenarioDir)
	if err != nil {
		fmt.Printf("Error finding scenario files: %v\n", err)
		os.Exit(1)
	}

	allValid := true
	for _, file := range files {
		result := validateScenario(file)

		fmt.Printf("\n%s %s\n", strings.Repeat("=", 20), result.File)

		if result.Valid {
			fmt.Println("✅ VALID")
			for _, info := range result.Errors {
				fmt.Println("  " + info)
			}
		} else {
			fmt.Println("❌ INVALID")
			allValid = false
			for _, err := range result.Errors {
				if !strings.HasPrefix(err, "✓") {
					fmt.Println("  ❌ " + err)
				}
			}
		}
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 40))
	if allValid {
		fmt.Println("✅ All scenarios are valid!")
	} else {
		fmt.Println("❌ Some scenarios have errors")
		os.Exit(1)
	}
}
