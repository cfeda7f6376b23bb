// Package websocket provides WebSocket telemetry for the traffic simulator.
//
// The websocket package implements:
//   - Session-aware WebSocket connections
//   - Snapshot broadcasting after every step and reset
//   - Domain event broadcasting
//   - Connection lifecycle management
//
// Architecture:
//
// A central Hub manages all connections. Each client has a read pump and a
// write pump goroutine. Snapshots and events are pushed to the clients of
// one session; slow clients whose buffer fills up are disconnected.
//
// Message Protocol:
//
// Every frame holds one JSON message:
//   - {"session_id": "ab12", "event": "snapshot", "state": {...}}
//   - {"session_id": "ab12", "event": "events", "events": [...]}
//
// The hub mirrors simulation state for observers. Nothing received on a
// connection changes a simulation.
//
// Usage:
//
//	hub := websocket.NewHub()
//	go hub.Run()
//
//	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
//		hub.ServeWS(w, r, r.URL.Query().Get("session"))
//	})
package websocket
