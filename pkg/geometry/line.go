package geometry

import "fmt"

// Line is a directed boundary in velocity space. The half-plane on its left
// (counter-clockwise side) is the feasible one: x satisfies the line when
// Direction.Cross(x - Point) >= 0.
type Line struct {
	Point     Vector2D `json:"point"`
	Direction Vector2D `json:"direction"`
}

// Contains reports whether x lies on the feasible side of the line, boundary included.
func (l Line) Contains(x Vector2D) bool {
	return l.Direction.Cross(x.Sub(l.Point)) >= 0
}

// Penetration is the signed depth of x into the infeasible side, scaled by the
// length of Direction. It is positive only when x violates the line.
func (l Line) Penetration(x Vector2D) float64 {
	return l.Direction.Cross(l.Point.Sub(x))
}

// String implements the fmt.Stringer interface.
func (l Line) String() string {
	return fmt.Sprintf("line{point: %s, direction: %s}", l.Point, l.Direction)
}
