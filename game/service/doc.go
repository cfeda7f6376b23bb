// Package service provides the business logic layer for the traffic simulator.
//
// The service package implements:
//   - Multi-session simulation management
//   - Scenario loading and saving
//   - Round stepping with per-call event collection
//   - Paginated event history
//   - Perception queries for single vehicles
//
// Core Interfaces:
//
// SimulationService is the main service interface used by every transport.
// SessionManager handles session creation, retrieval and persistence.
// ScenarioManager loads, lists and saves scenario files.
//
// Architecture:
//
// The service layer sits between the transport layer (HTTP/WebSocket/MCP)
// and the simulation engine. Each session owns one engine.Simulation with
// independent state and an EventLog holding the events drained after every
// step. Steps of different sessions may run at the same time; rounds of one
// session never overlap.
//
// Usage:
//
//	sessionMgr := session.NewManager()
//	scenarioMgr, _ := config.NewManager("configs")
//	svc := service.NewSimulationService(sessionMgr, scenarioMgr)
//
//	info, err := svc.CreateSimulation(ctx, "classic")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	result, err := svc.Step(ctx, info.ID, 10)
package service
