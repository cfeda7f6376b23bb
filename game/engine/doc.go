// Package engine provides the simulation kernel for the traffic simulator.
//
// The engine package implements the shared environment of a multi-agent
// traffic simulation:
//   - A lane/x grid whose cells are claimed atomically
//   - Vehicle kinematics converting speed and acceleration to cells per tick
//   - Perception cones that report nearby vehicles
//   - A vehicle generator that owns id assignment
//   - Scenario loading and validation (JSON or YAML)
//
// Core Types:
//
// Grid is the spatial index. Each cell is an independent atomic slot, so at
// most one vehicle ever occupies a cell and claims on different cells never
// contend. Vehicle holds the per-agent state and exposes the actions a
// decision layer may take: Accelerate, Decelerate, Swingout and Goback.
// Decisions are injected through the Decider interface; the kernel does not
// know how they are made.
//
// Simulation composes a Grid, a Generator and a scheduler for one Scenario.
//
// Usage:
//
//	scenario, err := engine.LoadScenario("configs/classic.json")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	sim, err := engine.NewSimulation(scenario, engine.Options{})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	reports := sim.Step(ctx, 10)
//	state := sim.Snapshot()
//
// Movement Rules:
//
// A vehicle advances SpeedToCells(speed) cells toward its goal each round and
// never past it. Arriving at the goal raises goal_reached and releases the
// vehicle. A move or lane change into an occupied cell, or off the grid,
// fails without changing anything and raises a collision event
// (user_collision for user vehicles). Scenarios choose which events end the
// run.
package engine
