package engine

// Move advances the vehicle to its next position. The target cell is claimed
// atomically; when the claim wins the old cell is released and the position
// updated, otherwise nothing changes and Move returns false. A vehicle that
// arrives at its goal is released.
func (g *Grid) Move(v *Vehicle) bool {
	if !v.Active() {
		return false
	}

	from := v.Position()
	to := v.NextPosition()
	if to == from {
		return true
	}
	if !g.commit(v, from, to) {
		return false
	}

	if to.X == v.goal {
		g.Trigger(g.newEvent(EventGoalReached, v))
		g.Release(v)
	}
	return true
}

// LaneChange moves the vehicle sideways to lane at its current x. A lane
// outside the grid or an occupied cell blocks the change; a blocked change
// leaves no partial state.
func (g *Grid) LaneChange(v *Vehicle, lane int) bool {
	if !v.Active() {
		return false
	}

	from := v.Position()
	to := Cell{Lane: lane, X: from.X}
	if to == from {
		return true
	}
	return g.commit(v, from, to)
}

// commit claims to for v and, on success, moves v there from from
func (g *Grid) commit(v *Vehicle, from, to Cell) bool {
	if g.Set(v, to) != v {
		return false
	}
	v.position.Store(to)
	g.clear(from, v)
	return true
}
