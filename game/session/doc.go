// Package session provides session management for the traffic simulator.
//
// The session package implements:
//   - Thread-safe session storage and retrieval
//   - Unique session ID generation
//   - Session lifecycle management
//   - Optional file persistence with restore on startup
//   - Session cleanup and expiration
//
// Core Types:
//
// Manager is the main session manager that handles all session operations.
// Each session owns one engine.Simulation driven by the cruise driver, the
// scenario it was built from and its event history.
//
// Session Identifiers:
//
// Sessions use 4-character hex IDs for easy reference. Lookups are
// case-insensitive.
//
// Persistence:
//
// FilePersistence writes one JSON file per session holding the scenario id,
// an embedded copy of the scenario, the simulation state and the event
// history. Loading resolves the scenario through the scenario manager and
// falls back to the embedded copy, then restores vehicles with their ids,
// positions and speeds.
//
// Usage:
//
//	persistence, _ := session.NewFilePersistence("sessions", scenarioManager)
//	manager := session.NewManagerWithPersistence(persistence)
//	_ = manager.LoadPersistedSessions()
//
//	sess, err := manager.Create("", scenario)
//	if err != nil {
//		log.Fatal(err)
//	}
package session
