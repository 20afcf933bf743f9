package field

import (
	"fmt"
	"math"
)

// Axis is a regular coordinate axis: value i is Start + i*Step.
type Axis struct {
	Start float64
	Step  float64
	Count int
}

// NewAxis returns an axis with count points. Count must be at least one.
func NewAxis(start, step float64, count int) (Axis, error) {
	if count < 1 {
		return Axis{}, fmt.Errorf("axis count must be positive, got %d", count)
	}
	return Axis{Start: start, Step: step, Count: count}, nil
}

// AxisFromBounds builds an axis from a header that declares start, end,
// step and count. Count is authoritative. When the step's sign disagrees
// with the direction from start to end, the step is negated so the axis
// runs toward the declared end.
func AxisFromBounds(start, end, step float64, count int) (Axis, error) {
	if end != start && step != 0 && (end-start)*step < 0 {
		step = -step
	}
	return NewAxis(start, step, count)
}

// Linspace returns count evenly spaced points from start to end inclusive.
func Linspace(start, end float64, count int) (Axis, error) {
	step := 0.0
	if count > 1 {
		step = (end - start) / float64(count-1)
	}
	return NewAxis(start, step, count)
}

// At returns coordinate i.
func (a Axis) At(i int) float64 { return a.Start + float64(i)*a.Step }

// End returns the last coordinate.
func (a Axis) End() float64 { return a.At(a.Count - 1) }

// Values materializes the coordinates.
func (a Axis) Values() []float64 {
	v := make([]float64, a.Count)
	for i := range v {
		v[i] = a.At(i)
	}
	return v
}

// Descending reports whether coordinates decrease with index.
func (a Axis) Descending() bool { return a.Count > 1 && a.Step < 0 }

// Reversed returns the axis traversed from its last point to its first.
func (a Axis) Reversed() Axis {
	if a.Count == 0 {
		return a
	}
	return Axis{Start: a.End(), Step: -a.Step, Count: a.Count}
}

// within returns the index range [lo, hi) of coordinates inside [min, max].
// The axis must be ascending or a single point.
func (a Axis) within(min, max float64) (int, int) {
	lo, hi := -1, -1
	for i := 0; i < a.Count; i++ {
		v := a.At(i)
		if v >= min-1e-9 && v <= max+1e-9 {
			if lo < 0 {
				lo = i
			}
			hi = i + 1
		}
	}
	if lo < 0 {
		return 0, 0
	}
	return lo, hi
}

func (a Axis) slice(lo, hi int) Axis {
	return Axis{Start: a.At(lo), Step: a.Step, Count: hi - lo}
}

// Equal compares axes with a small tolerance on coordinates.
func (a Axis) Equal(b Axis) bool {
	return a.Count == b.Count &&
		math.Abs(a.Start-b.Start) < 1e-9 &&
		math.Abs(a.Step-b.Step) < 1e-9
}
