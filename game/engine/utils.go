package engine

import (
	"math"
	"sync/atomic"
)

// Distance returns the Euclidean distance between two cells
func Distance(from, to Cell) float64 {
	return math.Hypot(float64(from.Lane-to.Lane), float64(from.X-to.X))
}

// clamp01 limits a control strength to [0,1]
func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// sign returns -1 for negative values and 1 otherwise
func sign(v int) int {
	if v < 0 {
		return -1
	}
	return 1
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// atomicFloat is a float64 safe for concurrent reads during a single
// writer's update.
type atomicFloat struct {
	bits atomic.Uint64
}

func (f *atomicFloat) Load() float64 {
	return math.Float64frombits(f.bits.Load())
}

func (f *atomicFloat) Store(v float64) {
	f.bits.Store(math.Float64bits(v))
}

func (f *atomicFloat) Add(delta float64) float64 {
	for {
		old := f.bits.Load()
		next := math.Float64frombits(old) + delta
		if f.bits.CompareAndSwap(old, math.Float64bits(next)) {
			return next
		}
	}
}

// atomicCell stores a Cell packed into one 64-bit word so readers never see
// a lane from one update and an x from another.
type atomicCell struct {
	bits atomic.Uint64
}

func (c *atomicCell) Load() Cell {
	v := c.bits.Load()
	return Cell{Lane: int(int32(uint32(v >> 32))), X: int(int32(uint32(v)))}
}

func (c *atomicCell) Store(cell Cell) {
	c.bits.Store(uint64(uint32(int32(cell.Lane)))<<32 | uint64(uint32(int32(cell.X))))
}
