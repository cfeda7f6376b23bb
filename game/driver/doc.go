// Package driver provides the default decision layer for simulated vehicles.
//
// Cruise is a rule-based engine.Decider. Each round it looks at the forward
// perception zone and picks one of four actions:
//   - swing out to overtake when the vehicle ahead is too close and the
//     overtaking lane is clear
//   - brake in proportion to how close the vehicle ahead is
//   - return to its home lane once that lane is clear again
//   - otherwise accelerate toward its maximum speed
//
// Speed changes are sized so they never cross the vehicle's bounds. A Cruise
// keeps per-vehicle state (its home lane), so every vehicle needs its own
// instance; Factory builds one per vehicle.
package driver
