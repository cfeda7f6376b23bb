// Package config provides scenario management for the traffic simulator.
//
// The config package handles:
//   - Loading scenarios from JSON and YAML files
//   - Scenario validation before use and before saving
//   - Default scenario selection
//   - Scenario discovery and listing
//
// Scenario Format:
//
// Scenarios are stored as .json, .yaml or .yml files in the configs
// directory. Each scenario defines the road (lanes and length), the run
// budget (iterations, workers), the kinematic unit, the lane shift policy,
// the terminal events and one or more vehicle populations.
//
// The default scenario is classic when present, then the first scenario by
// id, then engine.DefaultScenario.
//
// Usage:
//
//	manager, err := config.NewManager("configs")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	scenario, err := manager.LoadScenario("highway")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	scenarios, err := manager.ListScenarios()
package config
