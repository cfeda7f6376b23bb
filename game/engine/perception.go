package engine

import (
	"math"
	"sort"
)

// Zone selects one of a vehicle's perception cones
type Zone string

const (
	ZoneForward  Zone = "forward"
	ZoneBackward Zone = "backward"
)

// Perception cone shapes. Angles are degrees relative to the travel direction.
const (
	forwardRadius  = 8
	backwardRadius = 5
)

// CellAngle returns the relative offsets (dLane, dX) whose Euclidean distance
// is at most radius and whose polar angle, measured from the forward x axis
// and normalised to [0,360), lies in [angleMin, angleMax). The origin is never
// included. The result is sorted by lane then x.
func CellAngle(radius, angleMin, angleMax float64) []Cell {
	r := int(math.Floor(radius))
	cells := []Cell{}
	for dl := -r; dl <= r; dl++ {
		for dx := -r; dx <= r; dx++ {
			if dl == 0 && dx == 0 {
				continue
			}
			if math.Hypot(float64(dl), float64(dx)) > radius {
				continue
			}
			angle := polarAngle(dl, dx)
			if angle >= angleMin && angle < angleMax {
				cells = append(cells, Cell{Lane: dl, X: dx})
			}
		}
	}
	return cells
}

// ForwardCone is the forward sensor: 60 degrees either side of the travel axis
func ForwardCone() []Cell {
	return unionCells(CellAngle(forwardRadius, 0, 60), CellAngle(forwardRadius, 300, 360))
}

// BackwardCone is the rear sensor: 45 degrees either side of the reverse axis
func BackwardCone() []Cell {
	return CellAngle(backwardRadius, 135, 225)
}

func polarAngle(dl, dx int) float64 {
	angle := math.Atan2(float64(dl), float64(dx)) * 180 / math.Pi
	if angle < 0 {
		angle += 360
	}
	return angle
}

func unionCells(sets ...[]Cell) []Cell {
	seen := make(map[Cell]bool)
	var out []Cell
	for _, set := range sets {
		for _, c := range set {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	sortCells(out)
	return out
}

func sortCells(cells []Cell) {
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Lane != cells[j].Lane {
			return cells[i].Lane < cells[j].Lane
		}
		return cells[i].X < cells[j].X
	})
}

// Perceive maps the zone's offsets onto the grid around the vehicle and
// returns the vehicles found there, nearest first. Offsets are rotated with
// the travel direction, so "forward" always looks toward the goal. The view
// is evaluated against the live grid on every call.
func (v *Vehicle) Perceive(zone Zone) []Neighbor {
	offsets := v.forward
	if zone == ZoneBackward {
		offsets = v.backward
	}

	pos := v.Position()
	dir := v.Direction()
	neighbors := make([]Neighbor, 0, 4)
	for _, offset := range offsets {
		cell := pos.Add(Cell{Lane: offset.Lane * dir, X: offset.X * dir})
		other := v.grid.At(cell)
		if other == nil || other == v {
			continue
		}
		neighbors = append(neighbors, Neighbor{
			Distance: Distance(pos, cell),
			ID:       other.ID(),
			Speed:    other.Speed(),
			Lane:     cell.Lane,
			X:        cell.X,
		})
	}

	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].Distance != neighbors[j].Distance {
			return neighbors[i].Distance < neighbors[j].Distance
		}
		return neighbors[i].ID < neighbors[j].ID
	})

	// A vehicle that is mid-move can hold its old and new cell for a moment
	seen := make(map[string]bool, len(neighbors))
	out := neighbors[:0]
	for _, n := range neighbors {
		if seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		out = append(out, n)
	}
	return out
}

// Free reports whether c lies on the grid and is empty or already held by v
func (v *Vehicle) Free(c Cell) bool {
	if !v.grid.Inside(c) {
		return false
	}
	occupant := v.grid.At(c)
	return occupant == nil || occupant == v
}
