package engine

import "math"

const kmhPerMetrePerSecond = 3.6

// Unit converts between speed (km/h), acceleration (m/s²) and grid
// displacement per tick. One Unit is shared by every vehicle of a grid so
// speeds stay comparable.
type Unit struct {
	CellSize    float64 `json:"cell_size"`    // metres per cell
	TickSeconds float64 `json:"tick_seconds"` // seconds per tick
}

// DefaultUnit is a 7.5m cell advanced in half-second ticks
var DefaultUnit = Unit{CellSize: 7.5, TickSeconds: 0.5}

// AccelerationToSpeed returns the speed delta in km/h produced by sustaining
// acceleration a (m/s²) for one tick.
func (u Unit) AccelerationToSpeed(a float64) float64 {
	return a * u.TickSeconds * kmhPerMetrePerSecond
}

// SpeedToCells returns the number of cells advanced in one tick at speed s (km/h)
func (u Unit) SpeedToCells(s float64) int {
	if s <= 0 {
		return 0
	}
	return int(math.Round(s / kmhPerMetrePerSecond * u.TickSeconds / u.CellSize))
}

// CellsToSpeed returns the speed in km/h needed to advance n cells per tick
func (u Unit) CellsToSpeed(n int) float64 {
	if n <= 0 {
		return 0
	}
	return float64(n) * u.CellSize / u.TickSeconds * kmhPerMetrePerSecond
}

func (u Unit) valid() bool {
	return u.CellSize > 0 && u.TickSeconds > 0
}
