// Package geometry holds the planar value types shared by the avoidance
// solver and the crowd host: vectors, directed half-plane lines and rigid
// transforms.
package geometry

import (
	"fmt"
	"math"
)

// Epsilon is the absolute tolerance used wherever two float64 quantities are
// compared for "close enough": vector equality, parallel-line tests and
// degenerate lengths.
const Epsilon = 1e-9

// Vector2D is a point or a displacement in the plane. It is a small value
// type; every operation returns a fresh value and never mutates its receiver.
type Vector2D struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// NewVector returns the vector (x, y).
func NewVector(x, y float64) Vector2D { return Vector2D{X: x, Y: y} }

// NewVectorPolar builds the vector of length r pointing theta radians
// counter-clockwise from +X. Components within Epsilon of zero snap to
// exactly zero so that quarter turns give clean axes.
func NewVectorPolar(r, theta float64) Vector2D {
	sin, cos := math.Sincos(theta)
	return Vector2D{X: snap(r * cos), Y: snap(r * sin)}
}

func snap(f float64) float64 {
	if math.Abs(f) < Epsilon {
		return 0
	}
	return f
}

// String formats v with two decimals, as "(x, y)".
func (v Vector2D) String() string { return fmt.Sprintf("(%.2f, %.2f)", v.X, v.Y) }

// Add returns v + w.
func (v Vector2D) Add(w Vector2D) Vector2D { return Vector2D{X: v.X + w.X, Y: v.Y + w.Y} }

// Sub returns v - w, the displacement from w to v.
func (v Vector2D) Sub(w Vector2D) Vector2D { return Vector2D{X: v.X - w.X, Y: v.Y - w.Y} }

// Mul scales v by k.
func (v Vector2D) Mul(k float64) Vector2D { return Vector2D{X: k * v.X, Y: k * v.Y} }

// Neg returns -v.
func (v Vector2D) Neg() Vector2D { return Vector2D{X: -v.X, Y: -v.Y} }

// Perp is v turned a quarter turn counter-clockwise, (-y, x).
func (v Vector2D) Perp() Vector2D { return Vector2D{X: -v.Y, Y: v.X} }

// Dot is the scalar product of v and w.
func (v Vector2D) Dot(w Vector2D) float64 { return v.X*w.X + v.Y*w.Y }

// Cross is the signed area of the parallelogram spanned by v and w. It is
// positive when w lies to the left of v.
func (v Vector2D) Cross(w Vector2D) float64 { return v.X*w.Y - v.Y*w.X }

// Determinant of the 2x2 matrix with columns a and b; same as a.Cross(b).
func Determinant(a, b Vector2D) float64 { return a.Cross(b) }

// LenSqr is the squared length of v; compare against it to skip the root.
func (v Vector2D) LenSqr() float64 { return v.Dot(v) }

// Len is the Euclidean length of v.
func (v Vector2D) Len() float64 { return math.Hypot(v.X, v.Y) }

// Normalize returns the unit vector along v, or the zero vector when v is
// shorter than Epsilon.
func (v Vector2D) Normalize() Vector2D {
	n := v.Len()
	if n < Epsilon {
		return Vector2D{}
	}
	return Vector2D{X: v.X / n, Y: v.Y / n}
}

// ClampLength shortens v to limit when it is longer; shorter vectors come
// back untouched.
func (v Vector2D) ClampLength(limit float64) Vector2D {
	if v.LenSqr() <= limit*limit {
		return v
	}
	return v.Normalize().Mul(limit)
}

// IsZero reports whether both components are exactly zero.
func (v Vector2D) IsZero() bool { return v == Vector2D{} }

// DistanceTo is the Euclidean distance between the points v and p.
func (v Vector2D) DistanceTo(p Vector2D) float64 { return p.Sub(v).Len() }

// DistanceSquaredTo is the squared distance between v and p.
func (v Vector2D) DistanceSquaredTo(p Vector2D) float64 { return p.Sub(v).LenSqr() }

// Rotate turns v by theta radians about the origin.
func (v Vector2D) Rotate(theta float64) Vector2D {
	sin, cos := math.Sincos(theta)
	return Vector2D{X: cos*v.X - sin*v.Y, Y: sin*v.X + cos*v.Y}
}

// Eq reports whether each component of v is within Epsilon of w's.
func (v Vector2D) Eq(w Vector2D) bool {
	d := v.Sub(w)
	return math.Abs(d.X) <= Epsilon && math.Abs(d.Y) <= Epsilon
}

// IsFinite is false as soon as either component is NaN or ±Inf.
func (v Vector2D) IsFinite() bool {
	return !math.IsNaN(v.X+v.Y) && !math.IsInf(v.X, 0) && !math.IsInf(v.Y, 0)
}
