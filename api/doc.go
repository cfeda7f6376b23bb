// Package api provides HTTP REST API handlers for the traffic simulator.
//
// The api package implements:
//   - Session management endpoints
//   - Stepping, resetting and inspecting a simulation
//   - Per-vehicle perception queries
//   - Scenario listing, retrieval and upload
//   - WebSocket upgrade for live telemetry
//
// Endpoints:
//
// Session Management:
//   - POST /api/sessions - Create a session, body {"scenario_id": "highway"}
//   - GET /api/sessions - List sessions (sort=created|accessed, order, limit)
//   - GET /api/sessions/unified - Compact summaries (sessionIds=a,b or scenario=x)
//   - GET /api/sessions/{id} - Get a session
//   - DELETE /api/sessions/{id} - Delete a session and shut its simulation down
//
// Simulation:
//   - GET /api/sessions/{id}/state - Current snapshot
//   - POST /api/sessions/{id}/step - Run rounds, body {"rounds": 10} (default 1)
//   - POST /api/sessions/{id}/reset - Rebuild from the scenario
//   - GET /api/sessions/{id}/events - Event history (page, limit, order, type)
//   - GET /api/sessions/{id}/vehicles/{vid}/perception?zone=forward|backward
//
// A vehicle may be addressed by its full id ("vehicle 3") or its number.
//
// Scenarios:
//   - GET /api/scenarios
//   - GET /api/scenarios/{name}
//   - POST /api/scenarios - Save a scenario; the id comes from ?id= or the name
//
// Every step broadcasts its events and the resulting snapshot to the
// WebSocket clients of the session (GET /ws?session={id}).
//
// Errors are returned as JSON with an appropriate status code:
//
//	{"error": "error message"}
package api
