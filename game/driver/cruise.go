package driver

import (
	"context"
	"log/slog"
	"math"

	"github.com/wricardo/traffic-sim/game/engine"
)

// DefaultGap is the safety margin in cells kept on top of one tick of travel
const DefaultGap = 3

// stopped is the speed in km/h below which a vehicle counts as standing
const stopped = 1e-6

// Config tunes the Cruise decider
type Config struct {
	Gap    int // safety margin in cells; zero uses DefaultGap
	Logger *slog.Logger
}

// Cruise is the default rule-based driver
type Cruise struct {
	gap    int
	logger *slog.Logger

	home    int
	started bool
}

var _ engine.Decider = (*Cruise)(nil)

// New creates a Cruise decider for one vehicle
func New(cfg Config) *Cruise {
	gap := cfg.Gap
	if gap <= 0 {
		gap = DefaultGap
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Cruise{gap: gap, logger: logger.With("component", "driver")}
}

// Factory returns a DeciderFactory handing every vehicle its own Cruise
func Factory(cfg Config) engine.DeciderFactory {
	return func(engine.Kind) engine.Decider {
		return New(cfg)
	}
}

// Decide picks and applies one action for the round
func (c *Cruise) Decide(ctx context.Context, v *engine.Vehicle) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	pos := v.Position()
	if !c.started {
		c.home = pos.Lane
		c.started = true
	}

	reach := v.Unit().SpeedToCells(v.Speed()) + c.gap
	gap, blocked := leader(v.Perceive(engine.ZoneForward), pos, v.Direction())

	if blocked && gap <= reach {
		if pos.Lane == c.home && c.clear(v, v.SwingoutLane(), reach) {
			if v.Swingout() {
				c.logger.Debug("swingout", "vehicle", v.ID(), "lane", v.Position().Lane, "x", pos.X)
			}
			return nil
		}
		return c.brake(v, gap, reach)
	}

	if pos.Lane != c.home && v.GobackLane() == c.home && c.clear(v, c.home, reach) {
		if v.Goback() {
			c.logger.Debug("goback", "vehicle", v.ID(), "lane", c.home, "x", pos.X)
		}
		return nil
	}

	return c.accelerate(v)
}

// leader returns the distance to the nearest vehicle ahead in the same lane
func leader(neighbors []engine.Neighbor, pos engine.Cell, dir int) (int, bool) {
	best, found := 0, false
	for _, n := range neighbors {
		if n.Lane != pos.Lane {
			continue
		}
		ahead := (n.X - pos.X) * dir
		if ahead <= 0 {
			continue
		}
		if !found || ahead < best {
			best, found = ahead, true
		}
	}
	return best, found
}

// clear reports whether lane is free alongside the vehicle and for reach
// cells ahead of it. Cells past the goal are not checked.
func (c *Cruise) clear(v *engine.Vehicle, lane, reach int) bool {
	pos := v.Position()
	dir := v.Direction()
	if !v.Free(engine.Cell{Lane: lane, X: pos.X}) {
		return false
	}
	for k := 1; k <= reach; k++ {
		cell := engine.Cell{Lane: lane, X: pos.X + dir*k}
		if (cell.X-v.Goal())*dir > 0 {
			break
		}
		if !v.Free(cell) {
			return false
		}
	}
	return true
}

// brake decelerates harder the closer the leader is. A stop is aimed at
// exactly zero; rounding never takes the speed below it.
func (c *Cruise) brake(v *engine.Vehicle, gap, reach int) error {
	speed := v.Speed()
	if speed < stopped {
		return nil
	}

	strength := 1 - float64(gap-1)/float64(reach)
	if strength < 0.25 {
		strength = 0.25
	}
	unit := v.Unit()
	if unit.AccelerationToSpeed(v.Deceleration()*strength) >= speed {
		strength = speed / unit.AccelerationToSpeed(v.Deceleration())
		for strength > 0 && speed-unit.AccelerationToSpeed(v.Deceleration()*strength) < 0 {
			strength = math.Nextafter(strength, 0)
		}
	}
	return v.Decelerate(strength)
}

// accelerate moves toward maximum speed without exceeding it
func (c *Cruise) accelerate(v *engine.Vehicle) error {
	speed := v.Speed()
	if v.MaxSpeed()-speed < stopped {
		return nil
	}

	strength := 1.0
	unit := v.Unit()
	if speed+unit.AccelerationToSpeed(v.Acceleration()) > v.MaxSpeed() {
		strength = (v.MaxSpeed() - speed) / unit.AccelerationToSpeed(v.Acceleration())
		for strength > 0 && speed+unit.AccelerationToSpeed(v.Acceleration()*strength) > v.MaxSpeed() {
			strength = math.Nextafter(strength, 0)
		}
	}
	return v.Accelerate(strength)
}
