package touch

import "fmt"

// Point is a 2D position.
type Point struct {
	X, Y float64
}

// Sub returns the vector from q to p.
func (p Point) Sub(q Point) Vector {
	return Vector{DX: p.X - q.X, DY: p.Y - q.Y}
}

func (p Point) String() string {
	return fmt.Sprintf("(%.4f, %.4f)", p.X, p.Y)
}

// Vector is a 2D displacement.
type Vector struct {
	DX, DY float64
}

func (v Vector) String() string {
	return fmt.Sprintf("(%.4f, %.4f)", v.DX, v.DY)
}

// Size is a 2D extent.
type Size struct {
	Width, Height float64
}

// Clamp returns s with both components limited to [0,1].
func (s Size) Clamp() Size {
	return Size{Width: clamp01(s.Width), Height: clamp01(s.Height)}
}

func clamp01(v float64) float64 {
	// NaN compares false on both sides and must not leak through.
	if !(v > 0) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Average returns the mean position of the given contacts.
// It returns the zero point for an empty set.
func Average(touches []Touch) Point {
	if len(touches) == 0 {
		return Point{}
	}
	var sum Point
	for _, t := range touches {
		sum.X += t.Position.X
		sum.Y += t.Position.Y
	}
	n := float64(len(touches))
	return Point{X: sum.X / n, Y: sum.Y / n}
}
