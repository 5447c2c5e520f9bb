package avoidance

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/lao-tseu-is-alive/go-crowd-avoidance/pkg/geometry"
)

// Shape tells how the vertices of an Obstacle are connected.
type Shape uint8

const (
	// ShapeClosed is a polygon: edges wrap from the last vertex back to the first.
	// Vertices are expected counter-clockwise, clockwise input is reversed.
	ShapeClosed Shape = iota
	// ShapeOpen is a polyline blocking from both sides, without a closing edge.
	ShapeOpen
)

func (s Shape) String() string {
	switch s {
	case ShapeClosed:
		return "closed"
	case ShapeOpen:
		return "open"
	default:
		return fmt.Sprintf("Shape(%d)", uint8(s))
	}
}

// ParseShape converts "closed" or "open" (case-insensitive) to a Shape.
func ParseShape(s string) (Shape, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "closed":
		return ShapeClosed, nil
	case "open":
		return ShapeOpen, nil
	default:
		return 0, fmt.Errorf("unknown obstacle shape %q", s)
	}
}

// Obstacle is static blocking geometry expressed in the agents' frame.
type Obstacle struct {
	Shape    Shape
	Vertices []geometry.Vector2D
}

// ClosedObstacle builds a polygon obstacle.
func ClosedObstacle(vertices ...geometry.Vector2D) Obstacle {
	return Obstacle{Shape: ShapeClosed, Vertices: vertices}
}

// OpenObstacle builds a polyline obstacle.
func OpenObstacle(vertices ...geometry.Vector2D) Obstacle {
	return Obstacle{Shape: ShapeOpen, Vertices: vertices}
}

// RectObstacle is the axis-aligned box centred on the origin, ready to be
// placed with Transformed. Vertex order is top-right, top-left, bottom-left,
// bottom-right.
func RectObstacle(halfExtents geometry.Vector2D) Obstacle {
	hx, hy := math.Abs(halfExtents.X), math.Abs(halfExtents.Y)
	return ClosedObstacle(
		geometry.Vector2D{X: hx, Y: hy},
		geometry.Vector2D{X: -hx, Y: hy},
		geometry.Vector2D{X: -hx, Y: -hy},
		geometry.Vector2D{X: hx, Y: -hy},
	)
}

// Transformed returns a copy of the obstacle with every vertex mapped by tf.
// A mirroring transform reverses closed polygons to keep them counter-clockwise.
func (o Obstacle) Transformed(tf geometry.Transform) Obstacle {
	vertices := make([]geometry.Vector2D, len(o.Vertices))
	for i, v := range o.Vertices {
		vertices[i] = tf.Apply(v)
	}
	// Keep closed polygons counter-clockwise.
	if o.Shape == ShapeClosed && tf.Mirrors() {
		slices.Reverse(vertices)
	}
	return Obstacle{Shape: o.Shape, Vertices: vertices}
}

// Bounds returns the axis-aligned bounding box of the vertices.
// ok is false for an obstacle without vertices.
func (o Obstacle) Bounds() (lo, hi geometry.Vector2D, ok bool) {
	if len(o.Vertices) == 0 {
		return lo, hi, false
	}
	lo, hi = o.Vertices[0], o.Vertices[0]
	for _, v := range o.Vertices[1:] {
		lo.X, lo.Y = math.Min(lo.X, v.X), math.Min(lo.Y, v.Y)
		hi.X, hi.Y = math.Max(hi.X, v.X), math.Max(hi.Y, v.Y)
	}
	return lo, hi, true
}

// DistanceSquaredToBounds is the squared distance from p to the bounding box,
// zero when p is inside it and +Inf for an empty obstacle.
func (o Obstacle) DistanceSquaredToBounds(p geometry.Vector2D) float64 {
	lo, hi, ok := o.Bounds()
	if !ok {
		return math.Inf(1)
	}
	dx := math.Max(0, math.Max(lo.X-p.X, p.X-hi.X))
	dy := math.Max(0, math.Max(lo.Y-p.Y, p.Y-hi.Y))
	return dx*dx + dy*dy
}

func signedArea(vertices []geometry.Vector2D) float64 {
	area := 0.0
	for i, v := range vertices {
		area += v.Cross(vertices[(i+1)%len(vertices)])
	}
	return area / 2
}

// leftOf is positive when c lies to the left of the directed line a->b.
func leftOf(a, b, c geometry.Vector2D) float64 {
	return b.Sub(a).Cross(c.Sub(a))
}
