// Package mcp provides a Model Context Protocol server for the traffic
// simulator.
//
// The server is a thin client: every tool call is proxied to the REST API,
// so MCP agents and HTTP clients see the same sessions.
//
// MCP Tools:
//   - create_simulation, list_simulations, get_simulation
//   - simulation_state: counters plus an ASCII drawing of the road
//   - step: run rounds, with a free-form intent for the agent's reasoning
//   - reset_simulation
//   - simulation_events: paginated, optionally filtered by event type
//   - perceive: neighbours in a vehicle's forward or backward zone
//   - list_scenarios
//   - simulation_instructions
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080")
//	server.ServeStdio(client.GetMCPServer())
package mcp
